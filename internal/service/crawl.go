package service

import (
	"context"
	"time"

	"autoqa/internal/crawler"
)

const crawlPollInterval = 200 * time.Millisecond

// worker starts the crawl worker on first use. It is nil after Close.
func (s *RAGService) worker() *crawler.Worker {
	s.crawlerOnce.Do(func() {
		s.crawler = crawler.New(s.crawlerCfg, s, s.httpClient)
		ctx, cancel := context.WithCancel(context.Background())
		s.crawlerCancel = cancel
		s.crawlerDone = make(chan struct{})
		go func() {
			defer close(s.crawlerDone)
			s.crawler.Run(ctx)
		}()
	})
	return s.crawler
}

// StartCrawl starts a background crawl session feeding this service.
func (s *RAGService) StartCrawl(ctx context.Context, req crawler.Request) (crawler.Status, error) {
	w := s.worker()
	if w == nil {
		return crawler.Status{}, crawler.ErrNotRunning
	}
	return w.Start(ctx, req)
}

// StopCrawl stops the running crawl session.
func (s *RAGService) StopCrawl(ctx context.Context) (crawler.Status, error) {
	w := s.worker()
	if w == nil {
		return crawler.Status{}, crawler.ErrNotRunning
	}
	return w.Stop(ctx)
}

// CrawlStatus reports the running or last crawl session.
func (s *RAGService) CrawlStatus(ctx context.Context) (crawler.Status, error) {
	w := s.worker()
	if w == nil {
		return crawler.Status{}, crawler.ErrNotRunning
	}
	return w.Status(ctx)
}

// Crawl runs a session to completion. Cancelling ctx stops the session.
func (s *RAGService) Crawl(ctx context.Context, req crawler.Request) (crawler.Status, error) {
	st, err := s.StartCrawl(ctx, req)
	if err != nil {
		return st, err
	}
	ticker := time.NewTicker(crawlPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return s.StopCrawl(context.WithoutCancel(ctx))
		case <-ticker.C:
			st, err = s.CrawlStatus(ctx)
			if err != nil || !st.Running {
				return st, err
			}
		}
	}
}

// Close stops the crawl worker if it was started.
func (s *RAGService) Close() error {
	s.crawlerOnce.Do(func() {})
	if s.crawlerCancel != nil {
		s.crawlerCancel()
		<-s.crawlerDone
	}
	return nil
}
