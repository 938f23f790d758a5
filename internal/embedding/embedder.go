package embedding

import "context"

// Embedder converts free text into a dense vector for the vector backend.
type Embedder interface {
	Name() string
	// Dimension is known after the first successful Embed call.
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}
