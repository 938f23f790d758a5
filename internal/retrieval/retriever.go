// Package retrieval ranks documents against a question and chooses between
// the vector-similarity backend and the local TF-IDF fallback.
package retrieval

import (
	"sort"

	"autoqa/internal/domain"
	"autoqa/internal/index"
)

// Scored is a document with its similarity to a query.
type Scored struct {
	Score    float64
	Document domain.Document
}

// Retrieve returns at most topK documents scoring at least scoreThreshold,
// best first. Equal scores keep document order.
func Retrieve(query string, idx *index.Index, docs []domain.Document, topK int, scoreThreshold float64) []Scored {
	if idx == nil || topK <= 0 {
		return nil
	}
	n := min(idx.Len(), len(docs))
	scores := idx.Scores(idx.Vectorize(query))
	ranked := make([]Scored, 0, n)
	for i := 0; i < n; i++ {
		if scores[i] < scoreThreshold {
			continue
		}
		ranked = append(ranked, Scored{Score: scores[i], Document: docs[i]})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// ToPassages converts ranked documents into passages.
func ToPassages(ranked []Scored) []domain.Passage {
	out := make([]domain.Passage, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, domain.Passage{
			Title:   r.Document.Title,
			URL:     r.Document.URL,
			Content: r.Document.Content,
			Score:   r.Score,
		})
	}
	return out
}
