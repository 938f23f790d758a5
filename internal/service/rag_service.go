// Package service wires retrieval, answer composition, the adaptive threshold
// and the crawler into the question-answering service.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"autoqa/internal/answer"
	"autoqa/internal/crawler"
	"autoqa/internal/domain"
	"autoqa/internal/embedding"
	"autoqa/internal/index"
	"autoqa/internal/logger"
	"autoqa/internal/retrieval"
	"autoqa/internal/threshold"
	"autoqa/internal/vectorstore"
)

// Defaults for Options.
const (
	DefaultTopK         = 6
	DefaultRebuildEvery = 5
	EvolveStep          = -0.01
)

// Options configures a RAGService. Documents, Interactions, Threshold and
// Composer are required; Embedder and Vectors enable the vector backend.
type Options struct {
	Documents    domain.DocumentStore
	Interactions domain.InteractionLog
	Threshold    *threshold.Controller
	Composer     *answer.Composer
	Embedder     embedding.Embedder
	Vectors      vectorstore.Storage
	TopK         int
	RebuildEvery int
	Crawler      crawler.Config
	HTTPClient   *http.Client
}

// Stats summarises the service state.
type Stats struct {
	Documents    int     `json:"documents"`
	Vocabulary   int     `json:"vocabulary"`
	Interactions int     `json:"interactions"`
	Threshold    float64 `json:"threshold"`
	Backend      string  `json:"backend"`
}

// RAGService answers questions over the crawled documents.
type RAGService struct {
	docs         domain.DocumentStore
	log          domain.InteractionLog
	threshold    *threshold.Controller
	composer     *answer.Composer
	topK         int
	rebuildEvery int

	snapshot atomic.Pointer[retrieval.Snapshot]
	tfidf    *retrieval.TFIDFBackend
	vector   retrieval.Backend

	embedder embedding.Embedder
	vectors  vectorstore.Storage

	// rebuildMu serialises rebuilds and guards the fields below.
	rebuildMu    sync.Mutex
	pending      int
	embedded     map[string]struct{}
	vectorsReady bool

	crawlerCfg    crawler.Config
	httpClient    *http.Client
	crawlerOnce   sync.Once
	crawler       *crawler.Worker
	crawlerCancel context.CancelFunc
	crawlerDone   chan struct{}
}

// New creates the service. Call Init before serving questions.
func New(opts Options) (*RAGService, error) {
	if opts.Documents == nil || opts.Interactions == nil {
		return nil, fmt.Errorf("%w: document store and interaction log are required", domain.ErrInvalidInput)
	}
	if opts.Threshold == nil {
		opts.Threshold = threshold.New(threshold.DefaultConfig())
	}
	if opts.Composer == nil {
		opts.Composer = answer.NewComposer(nil, answer.DefaultConfidenceThreshold, 0)
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.RebuildEvery <= 0 {
		opts.RebuildEvery = DefaultRebuildEvery
	}
	if opts.Crawler.MaxBodyBytes == 0 {
		opts.Crawler = crawler.DefaultConfig()
	}
	s := &RAGService{
		docs:         opts.Documents,
		log:          opts.Interactions,
		threshold:    opts.Threshold,
		composer:     opts.Composer,
		topK:         opts.TopK,
		rebuildEvery: opts.RebuildEvery,
		embedder:     opts.Embedder,
		vectors:      opts.Vectors,
		embedded:     make(map[string]struct{}),
		crawlerCfg:   opts.Crawler,
		httpClient:   opts.HTTPClient,
	}
	s.tfidf = retrieval.NewTFIDFBackend(s.snapshot.Load)
	if opts.Embedder != nil && opts.Vectors != nil {
		s.vector = retrieval.NewVectorBackend(opts.Embedder, opts.Vectors)
	}
	return s, nil
}

// Init restores the threshold from the interaction log and builds the first index.
func (s *RAGService) Init(ctx context.Context) error {
	last, err := s.log.LastInteraction(ctx)
	switch {
	case err == nil:
		v := s.threshold.Restore(last.ThresholdAfter)
		logger.Debug("threshold restored to %.3f", v)
	case errors.Is(err, domain.ErrNotFound):
	default:
		logger.Warn("could not read last interaction: %v", err)
	}
	_, err = s.RebuildIndex(ctx)
	return err
}

// RebuildIndex rebuilds the TF-IDF index from the document store and swaps it
// in. New documents are embedded into the vector store when one is configured.
func (s *RAGService) RebuildIndex(ctx context.Context) (index.Stats, error) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()
	return s.rebuildLocked(ctx)
}

func (s *RAGService) rebuildLocked(ctx context.Context) (index.Stats, error) {
	docs, err := s.docs.AllDocuments(ctx)
	if err != nil {
		return index.Stats{}, fmt.Errorf("loading documents: %w", err)
	}
	idx := index.Build(docs)
	s.snapshot.Store(&retrieval.Snapshot{Index: idx, Documents: docs})
	s.pending = 0
	stats := idx.Stats()
	logger.Info("index rebuilt: %d documents, %d terms", stats.Documents, stats.Vocabulary)

	if s.vector != nil {
		s.embedNew(ctx, docs)
	}
	return stats, nil
}

// embedNew upserts documents not yet embedded. Failures are logged and the
// documents retried on the next rebuild.
func (s *RAGService) embedNew(ctx context.Context, docs []domain.Document) {
	var (
		batch   []domain.Document
		vectors [][]float64
	)
	for _, d := range docs {
		if _, ok := s.embedded[d.URL]; ok {
			continue
		}
		vec, err := s.embedder.Embed(ctx, d.Title+"\n"+d.Content)
		if err != nil || len(vec) == 0 {
			logger.Warn("embedding %s failed: %v", d.URL, err)
			return
		}
		if !s.vectorsReady {
			if err := s.vectors.Init(ctx, len(vec)); err != nil {
				logger.Warn("vector store init failed: %v", err)
				return
			}
			s.vectorsReady = true
		}
		batch = append(batch, d)
		vectors = append(vectors, vec)
	}
	if len(batch) == 0 {
		return
	}
	if err := s.vectors.Upsert(ctx, batch, vectors); err != nil {
		logger.Warn("vector upsert failed: %v", err)
		return
	}
	for _, d := range batch {
		s.embedded[d.URL] = struct{}{}
	}
	logger.Debug("embedded %d documents", len(batch))
}

// Ingest validates and stores one document. Every RebuildEvery additions the
// index is rebuilt. It reports whether the document was new.
func (s *RAGService) Ingest(ctx context.Context, doc domain.Document) (bool, error) {
	doc.URL = strings.TrimSpace(doc.URL)
	doc.Title = strings.TrimSpace(doc.Title)
	doc.Content = strings.TrimSpace(doc.Content)
	if !crawler.IsHTTP(doc.URL) {
		return false, fmt.Errorf("%w: %q", domain.ErrInvalidURL, doc.URL)
	}
	doc.URL = crawler.Normalize(doc.URL)
	if doc.Content == "" {
		return false, fmt.Errorf("%w: empty content", domain.ErrInvalidInput)
	}
	if doc.Title == "" {
		doc.Title = doc.URL
	}

	added, err := s.docs.AppendDocument(ctx, doc)
	if err != nil || !added {
		return false, err
	}

	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()
	s.pending++
	if s.pending >= s.rebuildEvery {
		if _, err := s.rebuildLocked(ctx); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Flush rebuilds the index when additions are pending.
func (s *RAGService) Flush(ctx context.Context) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()
	if s.pending == 0 {
		return nil
	}
	_, err := s.rebuildLocked(ctx)
	return err
}

// Search runs retrieval only, without touching the threshold or the log.
func (s *RAGService) Search(ctx context.Context, query string, topK int) ([]domain.Passage, string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, "", domain.ErrEmptyQuery
	}
	if topK <= 0 {
		topK = s.topK
	}
	backend := retrieval.Select(s.vector, s.tfidf)
	passages, name := retrieval.RetrieveWithFallback(ctx, backend, s.tfidf, query, topK, s.threshold.Value())
	return passages, name, nil
}

// Answer answers query. Only a blank query is an error; every collaborator
// failure degrades to the local path.
func (s *RAGService) Answer(ctx context.Context, query string) (domain.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Result{}, domain.ErrEmptyQuery
	}
	start := time.Now()

	backend := retrieval.Select(s.vector, s.tfidf)
	passages, backendName := retrieval.RetrieveWithFallback(ctx, backend, s.tfidf, query, s.topK, s.threshold.Value())
	ans := s.composer.Compose(ctx, query, passages)

	urls := make([]string, 0, len(ans.Citations))
	for _, c := range ans.Citations {
		urls = append(urls, c.URL)
	}
	sources := threshold.Distinct(urls)
	outcome := s.threshold.Observe(sources)
	elapsed := time.Since(start)

	in := domain.Interaction{
		ID:             uuid.NewString(),
		Timestamp:      start.UTC(),
		Question:       query,
		Answer:         ans.Text,
		Sources:        sources,
		Success:        outcome.Success,
		ResponseTime:   elapsed,
		ThresholdAfter: outcome.After,
		Confidence:     ans.Confidence,
		Backend:        backendName,
	}
	// The answer stands even when the log write fails.
	if err := s.log.AppendInteraction(context.WithoutCancel(ctx), in); err != nil {
		logger.Error("recording interaction: %v", err)
	}
	logger.Debug("answered %q via %s: success=%t threshold %.3f -> %.3f", query, backendName, outcome.Success, outcome.Before, outcome.After)

	return domain.Result{
		Answer:       ans,
		Sources:      sources,
		Success:      outcome.Success,
		Threshold:    outcome.After,
		ResponseTime: elapsed,
		Backend:      backendName,
	}, nil
}

// Threshold returns the current retrieval threshold.
func (s *RAGService) Threshold() float64 {
	return s.threshold.Value()
}

// Nudge shifts the threshold by delta within its bounds.
func (s *RAGService) Nudge(delta float64) threshold.Outcome {
	out := s.threshold.Nudge(delta)
	logger.Info("threshold nudged %.3f -> %.3f", out.Before, out.After)
	return out
}

// Interactions returns the newest interactions first.
func (s *RAGService) Interactions(ctx context.Context, limit int) ([]domain.Interaction, error) {
	return s.log.ListInteractions(ctx, limit)
}

// Stats reports index, log and threshold figures.
func (s *RAGService) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Threshold: s.threshold.Value(), Backend: retrieval.Select(s.vector, s.tfidf).Name()}
	if snap := s.snapshot.Load(); snap != nil {
		is := snap.Index.Stats()
		st.Vocabulary = is.Vocabulary
	}
	n, err := s.docs.CountDocuments(ctx)
	if err != nil {
		return st, err
	}
	st.Documents = n
	if st.Interactions, err = s.log.CountInteractions(ctx); err != nil {
		return st, err
	}
	return st, nil
}
