package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"autoqa/internal/domain"
)

// visit fetches one URL, hands accepted content to the sink and queues its links.
func (s *session) visit(ctx context.Context, current string) error {
	host := Host(current)
	if err := s.limiter(host).Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9,en;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		s.retries[current]++
		if err := sleep(ctx, s.backoff()); err != nil {
			return err
		}
		if s.retries[current] <= 1 {
			delete(s.visited, current)
			s.enqueue(current)
			return nil
		}
		return fmt.Errorf("429 Too Many Requests for %s", current)
	case resp.StatusCode == http.StatusForbidden:
		s.blocked[host] = struct{}{}
		return fmt.Errorf("403 Forbidden for domain %s", host)
	case resp.StatusCode >= 400:
		return fmt.Errorf("fetch %s: %s", current, resp.Status)
	}

	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/html") {
		return nil
	}
	if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil && n > s.cfg.MaxBodyBytes {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxBodyBytes+1))
	if err != nil {
		return err
	}
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		return nil
	}

	base := resp.Request.URL
	if base == nil {
		base, _ = url.Parse(current)
	}
	page, err := Extract(bytes.NewReader(body), base)
	if err != nil {
		return fmt.Errorf("parse %s: %w", current, err)
	}

	for _, link := range page.Links {
		if s.domain != "" && !SameDomain(link, s.domain) {
			continue
		}
		if s.excluded(Host(link)) {
			continue
		}
		s.enqueue(link)
	}

	content := strings.TrimSpace(page.Text)
	if len([]rune(content)) < s.cfg.MinContentChars {
		return nil
	}
	title := truncate(page.Title, s.cfg.MaxTitleChars)
	if title == "" {
		title = current
	}
	doc := domain.Document{Title: title, URL: current, Content: truncate(content, s.cfg.MaxContentChars)}
	if s.sink == nil {
		return nil
	}
	added, err := s.sink.Ingest(ctx, doc)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", current, err)
	}
	if added {
		s.added++
	}
	return nil
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
