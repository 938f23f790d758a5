package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"autoqa/internal/domain"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
// Upserting a URL that is already stored replaces its vector.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
	docs      []domain.Document
	byURL     map[string]int
}

func NewStorage() *Storage { return &Storage{byURL: make(map[string]int)} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != dimension {
		s.dimension = dimension
		s.vectors = nil
		s.docs = nil
		s.byURL = make(map[string]int)
	}
	return nil
}

func (s *Storage) Upsert(_ context.Context, docs []domain.Document, vectors [][]float64) error {
	if len(docs) != len(vectors) {
		return errors.New("documents and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return errors.New("storage not initialised")
	}
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	for i, d := range docs {
		if j, ok := s.byURL[d.URL]; ok {
			s.docs[j] = d
			s.vectors[j] = vectors[i]
			continue
		}
		s.byURL[d.URL] = len(s.docs)
		s.docs = append(s.docs, d)
		s.vectors = append(s.vectors, vectors[i])
	}
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float64, topK int) ([]domain.Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, errors.New("query dimension mismatch")
	}
	idxs := make([]int, len(s.vectors))
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		idxs[i] = i
		scores[i] = cosine(s.vectors[i], vector)
	}
	// stable: ties keep insertion order
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.Passage, 0, topK)
	for _, j := range idxs[:topK] {
		d := s.docs[j]
		results = append(results, domain.Passage{Title: d.Title, URL: d.URL, Content: d.Content, Score: scores[j]})
	}
	return results, nil
}

func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.docs = nil
	s.byURL = make(map[string]int)
	return nil
}

// Len returns the number of stored vectors.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

func cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
