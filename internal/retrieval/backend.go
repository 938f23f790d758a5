package retrieval

import (
	"context"
	"fmt"
	"sort"

	"autoqa/internal/domain"
	"autoqa/internal/embedding"
	"autoqa/internal/index"
	"autoqa/internal/logger"
	"autoqa/internal/vectorstore"
)

// minHitScore is the score at or below which a vector hit counts as no match.
const minHitScore = 1e-9

// Backend retrieves scored passages for a question.
type Backend interface {
	Name() string
	Retrieve(ctx context.Context, query string, topK int, scoreThreshold float64) ([]domain.Passage, error)
}

// Snapshot is an immutable index paired with the documents it was built from.
type Snapshot struct {
	Index     *index.Index
	Documents []domain.Document
}

// SnapshotSource yields the current snapshot; it may return nil before the first build.
type SnapshotSource func() *Snapshot

// TFIDFBackend ranks the current snapshot locally. It never fails.
type TFIDFBackend struct {
	current SnapshotSource
}

// NewTFIDFBackend creates the local backend over the given snapshot source.
func NewTFIDFBackend(current SnapshotSource) *TFIDFBackend {
	return &TFIDFBackend{current: current}
}

func (b *TFIDFBackend) Name() string { return "tfidf" }

func (b *TFIDFBackend) Retrieve(_ context.Context, query string, topK int, scoreThreshold float64) ([]domain.Passage, error) {
	snap := b.current()
	if snap == nil {
		return nil, nil
	}
	return ToPassages(Retrieve(query, snap.Index, snap.Documents, topK, scoreThreshold)), nil
}

// VectorBackend embeds the question and asks the vector store for neighbours.
type VectorBackend struct {
	embedder embedding.Embedder
	store    vectorstore.Storage
}

// NewVectorBackend creates a vector-similarity backend.
func NewVectorBackend(embedder embedding.Embedder, store vectorstore.Storage) *VectorBackend {
	return &VectorBackend{embedder: embedder, store: store}
}

func (b *VectorBackend) Name() string { return "vector:" + b.embedder.Name() }

func (b *VectorBackend) Retrieve(ctx context.Context, query string, topK int, scoreThreshold float64) ([]domain.Passage, error) {
	if topK <= 0 {
		return nil, nil
	}
	vec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %v", domain.ErrVectorBackendUnavailable, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", domain.ErrVectorBackendUnavailable)
	}
	hits, err := b.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", domain.ErrVectorBackendUnavailable, err)
	}
	if !anyPositive(hits) {
		// Empty or all-zero hits defer to the fallback.
		return nil, fmt.Errorf("%w: no hits", domain.ErrVectorBackendUnavailable)
	}
	out := make([]domain.Passage, 0, len(hits))
	for _, h := range hits {
		if h.Score >= scoreThreshold {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func anyPositive(hits []domain.Passage) bool {
	for _, h := range hits {
		if h.Score > minHitScore {
			return true
		}
	}
	return false
}

// Select picks the backend for one request: the vector backend when one is
// configured, the TF-IDF fallback otherwise.
func Select(vector Backend, fallback Backend) Backend {
	if vector != nil {
		return vector
	}
	return fallback
}

// RetrieveWithFallback queries primary and silently degrades to fallback on any
// error. It returns the passages and the name of the backend that produced them.
func RetrieveWithFallback(ctx context.Context, primary, fallback Backend, query string, topK int, scoreThreshold float64) ([]domain.Passage, string) {
	if primary != nil && primary != fallback {
		passages, err := primary.Retrieve(ctx, query, topK, scoreThreshold)
		if err == nil {
			return passages, primary.Name()
		}
		logger.Warn("retrieval: %s failed, falling back to %s: %v", primary.Name(), fallback.Name(), err)
	}
	passages, err := fallback.Retrieve(ctx, query, topK, scoreThreshold)
	if err != nil {
		logger.Warn("retrieval: %s failed: %v", fallback.Name(), err)
		return nil, fallback.Name()
	}
	return passages, fallback.Name()
}
