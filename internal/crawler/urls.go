package crawler

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultSkipDomains are hosts with anti-bot protection or little prose.
var DefaultSkipDomains = []string{
	"facebook.com", "m.facebook.com", "instagram.com", "linkedin.com", "x.com", "twitter.com",
	"tiktok.com", "pinterest.com", "youtube.com", "youtu.be", "tripadvisor.com", "tripadvisor.fr",
}

var embeddedURL = regexp.MustCompile(`https?://[^\s'"]+`)

// CleanSeed turns user input into a crawlable URL. It strips surrounding
// quotes, extracts an embedded http(s) URL and prefixes bare www. hosts with
// https. It returns "" when nothing usable remains.
func CleanSeed(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' && s[len(s)-1] == '\'' || s[0] == '"' && s[len(s)-1] == '"') {
		s = s[1 : len(s)-1]
	}
	if !hasHTTPScheme(s) && strings.Contains(s, "http") {
		if m := embeddedURL.FindString(s); m != "" {
			s = m
		}
	}
	if !hasHTTPScheme(s) && strings.HasPrefix(strings.ToLower(s), "www.") {
		s = "https://" + s
	}
	if !hasHTTPScheme(s) {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	return Normalize(s)
}

// CleanSeeds cleans every seed and drops the unusable ones.
func CleanSeeds(seeds []string) []string {
	out := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if c := CleanSeed(s); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Normalize removes the fragment from raw.
func Normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// IsHTTP reports whether raw is an absolute http(s) URL with a host.
func IsHTTP(raw string) bool {
	if !hasHTTPScheme(raw) {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Host != ""
}

// Host returns the host (with port) of raw, or "".
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// SameDomain reports whether raw's host ends with domain.
func SameDomain(raw, domain string) bool {
	return strings.HasSuffix(Host(raw), strings.ToLower(domain))
}

func hasHTTPScheme(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
