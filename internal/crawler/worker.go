// Package crawler fetches web pages breadth-first and hands their text to a sink.
//
// A Worker owns at most one crawl session at a time. Start, Stop and Status
// are messages processed by the goroutine running Worker.Run; the session
// itself runs in a goroutine that alone touches the frontier and publishes
// immutable Status snapshots.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"autoqa/internal/domain"
	"autoqa/internal/logger"
)

// ErrNotRunning is returned by control calls when Run is not active.
var ErrNotRunning = errors.New("crawler is not running")

// Sink receives accepted pages. Ingest reports whether the document was new.
// Flush is called when a session ends after at least one addition.
type Sink interface {
	Ingest(ctx context.Context, doc domain.Document) (bool, error)
	Flush(ctx context.Context) error
}

// Config holds the crawler limits.
type Config struct {
	UserAgent       string
	Timeout         time.Duration
	MaxBodyBytes    int64
	MinContentChars int
	MaxContentChars int
	MaxTitleChars   int
	DefaultMaxPages int
	DefaultDelay    time.Duration
	MaxBackoff      time.Duration
	SkipDomains     []string
}

// DefaultConfig returns the stock crawler limits.
func DefaultConfig() Config {
	return Config{
		UserAgent:       "AutoEvolveBot/0.1 (+https://example.local)",
		Timeout:         20 * time.Second,
		MaxBodyBytes:    3_000_000,
		MinContentChars: 200,
		MaxContentChars: 5000,
		MaxTitleChars:   200,
		DefaultMaxPages: 50,
		DefaultDelay:    1500 * time.Millisecond,
		MaxBackoff:      10 * time.Second,
		SkipDomains:     DefaultSkipDomains,
	}
}

// Request starts a crawl session. Delay is in seconds; zero values take defaults.
// SameDomain defaults to true.
type Request struct {
	Seeds      []string `json:"seeds"`
	MaxPages   int      `json:"max_pages"`
	Delay      float64  `json:"delay"`
	SameDomain *bool    `json:"same_domain"`
}

// Status is a point-in-time view of the current or last session.
type Status struct {
	Running        bool      `json:"running"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	FinishedAt     time.Time `json:"finished_at,omitzero"`
	Seeds          []string  `json:"seeds"`
	Domain         string    `json:"domain,omitempty"`
	MaxPages       int       `json:"max_pages"`
	Delay          float64   `json:"delay"`
	Visited        int       `json:"visited"`
	Queue          int       `json:"queue"`
	Added          int       `json:"added"`
	Errors         int       `json:"errors"`
	LastURL        string    `json:"last_url,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	BlockedDomains []string  `json:"blocked_domains"`
}

const maxReportedBlocked = 10

type msgKind int

const (
	msgStart msgKind = iota
	msgStop
	msgStatus
)

type message struct {
	kind  msgKind
	req   Request
	reply chan reply
}

type reply struct {
	status Status
	err    error
}

// Worker runs crawl sessions.
type Worker struct {
	cfg    Config
	sink   Sink
	client *http.Client

	ctrl chan message
	done chan struct{}

	// owned by the Run goroutine
	session *session
	last    atomic.Pointer[Status]
}

// New creates a worker. client may be nil.
func New(cfg Config, sink Sink, client *http.Client) *Worker {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	w := &Worker{
		cfg:    cfg,
		sink:   sink,
		client: client,
		ctrl:   make(chan message),
		done:   make(chan struct{}),
	}
	w.last.Store(&Status{Seeds: []string{}, BlockedDomains: []string{}})
	return w
}

// Run processes control messages until ctx is cancelled. A running session is
// stopped and awaited before Run returns.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		var finished <-chan struct{}
		if w.session != nil {
			finished = w.session.done
		}
		select {
		case <-ctx.Done():
			if w.session != nil {
				w.session.cancel()
				<-w.session.done
				w.last.Store(w.session.snapshot())
			}
			return
		case <-finished:
			w.reap()
		case m := <-w.ctrl:
			m.reply <- w.handle(ctx, m)
		}
	}
}

// reap retires a session that finished on its own.
func (w *Worker) reap() {
	if w.session == nil {
		return
	}
	select {
	case <-w.session.done:
		w.last.Store(w.session.snapshot())
		w.session = nil
	default:
	}
}

func (w *Worker) handle(ctx context.Context, m message) reply {
	w.reap()
	switch m.kind {
	case msgStart:
		if w.session != nil {
			return reply{status: *w.session.snapshot(), err: domain.ErrCrawlInProgress}
		}
		s, err := w.newSession(m.req)
		if err != nil {
			return reply{status: *w.last.Load(), err: err}
		}
		w.session = s
		sctx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		go s.run(sctx)
		logger.Info("crawl started: %d seeds, max %d pages, domain %q", len(s.seeds), s.maxPages, s.domain)
		return reply{status: *s.snapshot()}
	case msgStop:
		if w.session == nil {
			return reply{status: *w.last.Load()}
		}
		w.session.cancel()
		<-w.session.done
		st := w.session.snapshot()
		w.last.Store(st)
		w.session = nil
		logger.Info("crawl stopped after %d pages", st.Visited)
		return reply{status: *st}
	default:
		if w.session != nil {
			return reply{status: *w.session.snapshot()}
		}
		return reply{status: *w.last.Load()}
	}
}

func (w *Worker) send(ctx context.Context, m message) (Status, error) {
	m.reply = make(chan reply, 1)
	select {
	case w.ctrl <- m:
	case <-w.done:
		return Status{}, ErrNotRunning
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case r := <-m.reply:
		return r.status, r.err
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Start begins a session. It fails with domain.ErrCrawlInProgress while one
// is running and with domain.ErrInvalidURL when no seed is usable.
func (w *Worker) Start(ctx context.Context, req Request) (Status, error) {
	return w.send(ctx, message{kind: msgStart, req: req})
}

// Stop ends the running session, if any, and waits for it to finish.
func (w *Worker) Stop(ctx context.Context) (Status, error) {
	return w.send(ctx, message{kind: msgStop})
}

// Status returns a snapshot of the running or last session.
func (w *Worker) Status(ctx context.Context) (Status, error) {
	return w.send(ctx, message{kind: msgStatus})
}

func (w *Worker) newSession(req Request) (*session, error) {
	seeds := CleanSeeds(req.Seeds)
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: no usable seed (expected http(s)://...)", domain.ErrInvalidURL)
	}
	if req.MaxPages < 0 || req.Delay < 0 {
		return nil, fmt.Errorf("%w: max_pages and delay must be non-negative", domain.ErrInvalidInput)
	}
	maxPages := req.MaxPages
	if maxPages == 0 {
		maxPages = w.cfg.DefaultMaxPages
	}
	delay := time.Duration(req.Delay * float64(time.Second))
	if req.Delay == 0 {
		delay = w.cfg.DefaultDelay
	}
	sameDomain := req.SameDomain == nil || *req.SameDomain
	var dom string
	if sameDomain {
		dom = Host(seeds[0])
	}

	skip := make(map[string]struct{}, len(w.cfg.SkipDomains))
	for _, d := range w.cfg.SkipDomains {
		skip[d] = struct{}{}
	}
	s := &session{
		cfg:      w.cfg,
		client:   w.client,
		sink:     w.sink,
		seeds:    seeds,
		domain:   dom,
		maxPages: maxPages,
		delay:    delay,
		started:  time.Now().UTC(),
		skip:     skip,
		blocked:  make(map[string]struct{}),
		visited:  make(map[string]struct{}),
		queued:   make(map[string]struct{}),
		retries:  make(map[string]int),
		limiters: make(map[string]*rate.Limiter),
		done:     make(chan struct{}),
	}
	for _, seed := range seeds {
		s.enqueue(seed)
	}
	s.publish(true)
	return s, nil
}

// session is the state of one crawl. Only the session goroutine mutates it;
// others read the published snapshot.
type session struct {
	cfg    Config
	client *http.Client
	sink   Sink

	seeds    []string
	domain   string
	maxPages int
	delay    time.Duration
	started  time.Time

	queue    []string
	queued   map[string]struct{}
	visited  map[string]struct{}
	skip     map[string]struct{}
	blocked  map[string]struct{}
	retries  map[string]int
	limiters map[string]*rate.Limiter

	added     int
	errors    int
	lastURL   string
	lastError string

	status atomic.Pointer[Status]
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *session) snapshot() *Status {
	return s.status.Load()
}

func (s *session) publish(running bool) {
	blocked := make([]string, 0, len(s.blocked))
	for d := range s.blocked {
		blocked = append(blocked, d)
	}
	sort.Strings(blocked)
	if len(blocked) > maxReportedBlocked {
		blocked = blocked[:maxReportedBlocked]
	}
	st := &Status{
		Running:        running,
		StartedAt:      s.started,
		Seeds:          append([]string(nil), s.seeds...),
		Domain:         s.domain,
		MaxPages:       s.maxPages,
		Delay:          s.delay.Seconds(),
		Visited:        len(s.visited),
		Queue:          len(s.queue),
		Added:          s.added,
		Errors:         s.errors,
		LastURL:        s.lastURL,
		LastError:      s.lastError,
		BlockedDomains: blocked,
	}
	if !running {
		st.FinishedAt = time.Now().UTC()
	}
	s.status.Store(st)
}

func (s *session) run(ctx context.Context) {
	defer close(s.done)
	defer s.finish()

	for ctx.Err() == nil && len(s.queue) > 0 && len(s.visited) < s.maxPages {
		current := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.queued, current)
		if _, ok := s.visited[current]; ok {
			continue
		}
		s.visited[current] = struct{}{}
		s.lastURL = current

		if s.excluded(Host(current)) {
			s.publish(true)
			continue
		}
		if err := s.visit(ctx, current); err != nil && ctx.Err() == nil {
			s.errors++
			s.lastError = err.Error()
			logger.Debug("crawl %s: %v", current, err)
		}
		s.publish(true)
	}
}

func (s *session) finish() {
	if s.added > 0 && s.sink != nil {
		// The session context may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.sink.Flush(ctx); err != nil {
			logger.Warn("crawl flush failed: %v", err)
		}
	}
	s.publish(false)
	logger.Info("crawl finished: visited %d, added %d, errors %d", len(s.visited), s.added, s.errors)
}

func (s *session) excluded(host string) bool {
	if _, ok := s.skip[host]; ok {
		return true
	}
	_, ok := s.blocked[host]
	return ok
}

func (s *session) enqueue(link string) {
	if _, ok := s.visited[link]; ok {
		return
	}
	if _, ok := s.queued[link]; ok {
		return
	}
	s.queued[link] = struct{}{}
	s.queue = append(s.queue, link)
}

func (s *session) limiter(host string) *rate.Limiter {
	l, ok := s.limiters[host]
	if !ok {
		if s.delay > 0 {
			l = rate.NewLimiter(rate.Every(s.delay), 1)
		} else {
			l = rate.NewLimiter(rate.Inf, 1)
		}
		s.limiters[host] = l
	}
	return l
}

func (s *session) backoff() time.Duration {
	return min(s.cfg.MaxBackoff, 2*s.delay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
