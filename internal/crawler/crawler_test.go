package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoqa/internal/domain"
)

type mockSink struct {
	mu      sync.Mutex
	docs    []domain.Document
	urls    map[string]bool
	flushes int
}

func newMockSink() *mockSink { return &mockSink{urls: make(map[string]bool)} }

func (m *mockSink) Ingest(_ context.Context, doc domain.Document) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.urls[doc.URL] {
		return false, nil
	}
	m.urls[doc.URL] = true
	m.docs = append(m.docs, doc)
	return true, nil
}

func (m *mockSink) Flush(context.Context) error {
	m.mu.Lock()
	m.flushes++
	m.mu.Unlock()
	return nil
}

func (m *mockSink) snapshot() ([]domain.Document, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Document(nil), m.docs...), m.flushes
}

var longText = strings.Repeat("La tour Eiffel est un monument de Paris. ", 10)

func page(title, body string) string {
	return "<html><head><title>" + title + "</title></head><body>" + body + "</body></html>"
}

func startWorker(t *testing.T, sink Sink) *Worker {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	w := New(cfg, sink, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-w.done
	})
	return w
}

func waitIdle(t *testing.T, w *Worker) Status {
	t.Helper()
	var st Status
	require.Eventually(t, func() bool {
		var err error
		st, err = w.Status(context.Background())
		return err == nil && !st.Running
	}, 5*time.Second, 5*time.Millisecond)
	return st
}

func siteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page("Accueil", "<p>"+longText+"</p>"+
			`<a href="/a#top">A</a> <a href="/short">S</a> <a href="/pdf">P</a>`+
			`<a href="mailto:x@y.z">M</a> <a href="javascript:void(0)">J</a>`+
			`<a href="http://other.example/x">O</a>`))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page("", "<p>"+strings.Repeat("Paris est la capitale de la France. ", 8)+"</p><a href=\"/\">home</a>"))
	})
	mux.HandleFunc("/short", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page("Court", "<p>trop court</p>"))
	})
	mux.HandleFunc("/pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, longText)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCrawlSessionAddsAcceptedPages(t *testing.T) {
	srv := siteServer(t)
	sink := newMockSink()
	w := startWorker(t, sink)

	st, err := w.Start(context.Background(), Request{Seeds: []string{`"` + srv.URL + `/"`}, MaxPages: 10, Delay: 0.001})
	require.NoError(t, err)
	assert.Equal(t, Host(srv.URL), st.Domain)

	st = waitIdle(t, w)
	docs, flushes := sink.snapshot()
	require.Len(t, docs, 2)
	assert.Equal(t, srv.URL+"/", docs[0].URL)
	assert.Equal(t, "Accueil", docs[0].Title)
	assert.Equal(t, srv.URL+"/a", docs[1].URL)
	assert.Equal(t, srv.URL+"/a", docs[1].Title, "missing title falls back to url")
	assert.Equal(t, 1, flushes)

	assert.Equal(t, 2, st.Added)
	assert.Equal(t, 4, st.Visited)
	assert.Zero(t, st.Errors)
	assert.Zero(t, st.Queue)
	assert.False(t, st.FinishedAt.IsZero())
}

func TestCrawlRespectsPageBudget(t *testing.T) {
	srv := siteServer(t)
	w := startWorker(t, newMockSink())

	_, err := w.Start(context.Background(), Request{Seeds: []string{srv.URL}, MaxPages: 1, Delay: 0.001})
	require.NoError(t, err)
	st := waitIdle(t, w)
	assert.Equal(t, 1, st.Visited)
	assert.Positive(t, st.Queue)
}

func TestStartWhileRunning(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	w := startWorker(t, newMockSink())
	_, err := w.Start(context.Background(), Request{Seeds: []string{srv.URL}, Delay: 0.001})
	require.NoError(t, err)

	_, err = w.Start(context.Background(), Request{Seeds: []string{srv.URL}})
	assert.ErrorIs(t, err, domain.ErrCrawlInProgress)

	st, err := w.Stop(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Running)

	st, err = w.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Running)
}

func TestStartRejectsInvalidSeeds(t *testing.T) {
	w := startWorker(t, newMockSink())
	_, err := w.Start(context.Background(), Request{Seeds: []string{"pas une url", "  "}})
	assert.ErrorIs(t, err, domain.ErrInvalidURL)

	_, err = w.Start(context.Background(), Request{Seeds: []string{"https://a.example"}, MaxPages: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestForbiddenBlocksDomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	w := startWorker(t, newMockSink())
	_, err := w.Start(context.Background(), Request{Seeds: []string{srv.URL + "/1", srv.URL + "/2"}, Delay: 0.001})
	require.NoError(t, err)
	st := waitIdle(t, w)

	assert.Equal(t, []string{Host(srv.URL)}, st.BlockedDomains)
	assert.Equal(t, 1, st.Errors)
	assert.Contains(t, st.LastError, "403")
	assert.Equal(t, 2, st.Visited)
}

func TestTooManyRequestsRetriedOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page("Ok", "<p>"+longText+"</p>"))
	}))
	defer srv.Close()

	sink := newMockSink()
	w := startWorker(t, sink)
	_, err := w.Start(context.Background(), Request{Seeds: []string{srv.URL}, Delay: 0.001})
	require.NoError(t, err)
	st := waitIdle(t, w)

	assert.EqualValues(t, 2, hits.Load())
	assert.Equal(t, 1, st.Added)
	assert.Zero(t, st.Errors)
}

func TestOversizedBodySkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page("Gros", "<p>"+longText+"</p>"))
	}))
	defer srv.Close()

	sink := newMockSink()
	cfg := DefaultConfig()
	cfg.MaxBodyBytes = 100
	w := New(cfg, sink, srv.Client())
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); <-w.done }()
	go w.Run(ctx)

	_, err := w.Start(context.Background(), Request{Seeds: []string{srv.URL}, Delay: 0.001})
	require.NoError(t, err)
	st := waitIdle(t, w)
	assert.Zero(t, st.Added)
	docs, flushes := sink.snapshot()
	assert.Empty(t, docs)
	assert.Zero(t, flushes)
}

func TestControlAfterRunReturns(t *testing.T) {
	w := New(DefaultConfig(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	cancel()
	<-w.done
	_, err := w.Status(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestBlockedDomainsSortedAndCapped(t *testing.T) {
	s := &session{blocked: make(map[string]struct{})}
	for i := 20; i > 0; i-- {
		s.blocked[fmt.Sprintf("d%02d.example", i)] = struct{}{}
	}
	s.publish(true)
	st := s.snapshot()
	require.Len(t, st.BlockedDomains, maxReportedBlocked)
	assert.Equal(t, "d01.example", st.BlockedDomains[0])
	assert.Equal(t, "d10.example", st.BlockedDomains[9])
}

func TestCleanSeed(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://example.com/page#frag", "https://example.com/page"},
		{"'https://example.com'", "https://example.com"},
		{`"http://example.com/x"`, "http://example.com/x"},
		{"voir https://example.com/doc ici", "https://example.com/doc"},
		{"www.example.com", "https://www.example.com"},
		{"example.com", ""},
		{"ftp://example.com", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanSeed(tt.in), tt.in)
	}
}

func TestSameDomain(t *testing.T) {
	assert.True(t, SameDomain("https://fr.wikipedia.org/wiki/Paris", "wikipedia.org"))
	assert.False(t, SameDomain("https://example.com/", "wikipedia.org"))
	assert.True(t, IsHTTP("http://a.b"))
	assert.False(t, IsHTTP("mailto:x@y"))
}

func TestExtract(t *testing.T) {
	base, _ := url.Parse("https://site.example/dir/page")
	html := `<html><head><title> Mon   titre </title><script>var p = "<p>no</p>";</script></head>
<body><p>Premier <b>paragraphe</b>.</p><div>hors paragraphe</div><p>  </p><p>Second.</p>
<a href="../autre#x">1</a><a href="https://site.example/dir/autre">dup</a><a href="mailto:a@b">m</a>
<a href="javascript:alert(1)">j</a><a href="ftp://f">f</a></body></html>`
	p, err := Extract(strings.NewReader(html), base)
	require.NoError(t, err)
	assert.Equal(t, "Mon titre", p.Title)
	assert.Equal(t, "Premier paragraphe .\nSecond.", p.Text)
	assert.Equal(t, []string{"https://site.example/autre", "https://site.example/dir/autre"}, p.Links)
}
