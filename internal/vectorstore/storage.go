package vectorstore

import (
	"context"

	"autoqa/internal/domain"
)

// Storage persists document vectors and supports similarity search.
// Search results carry cosine similarity as Passage.Score.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, docs []domain.Document, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]domain.Passage, error)
	Clear(ctx context.Context) error
}
