package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoqa/internal/domain"
	"autoqa/internal/index"
	"autoqa/internal/vectorstore/memory"
)

func scenarioDocs() []domain.Document {
	return []domain.Document{
		{Title: "Capitale de la France", URL: "https://a", Content: "Paris est la capitale de la France."},
		{Title: "Recette de crêpes", URL: "https://b", Content: "Mélanger farine, oeufs et lait."},
	}
}

func TestRetrieveRanksCapitalFirst(t *testing.T) {
	docs := scenarioDocs()
	res := Retrieve("capitale France", index.Build(docs), docs, 2, 0.0)
	require.Len(t, res, 2)
	assert.Equal(t, "https://a", res[0].Document.URL)
	assert.Equal(t, "https://b", res[1].Document.URL)
	assert.Greater(t, res[0].Score, res[1].Score)
}

func TestRetrieveRespectsTopKAndThreshold(t *testing.T) {
	docs := []domain.Document{
		{Title: "un", URL: "https://1", Content: "chat noir"},
		{Title: "deux", URL: "https://2", Content: "chat blanc"},
		{Title: "trois", URL: "https://3", Content: "chien noir"},
		{Title: "quatre", URL: "https://4", Content: "oiseau bleu"},
	}
	idx := index.Build(docs)
	for _, topK := range []int{0, 1, 2, 3, 10} {
		for _, th := range []float64{-1, 0, 0.1, 0.3, 0.9} {
			res := Retrieve("chat noir", idx, docs, topK, th)
			assert.LessOrEqual(t, len(res), max(topK, 0))
			for i, r := range res {
				assert.GreaterOrEqual(t, r.Score, th)
				if i > 0 {
					assert.GreaterOrEqual(t, res[i-1].Score, r.Score)
				}
			}
		}
	}
}

func TestRetrieveTiesKeepDocumentOrder(t *testing.T) {
	docs := []domain.Document{
		{Title: "x", URL: "https://1", Content: "rien"},
		{Title: "y", URL: "https://2", Content: "rien"},
		{Title: "z", URL: "https://3", Content: "rien"},
	}
	res := Retrieve("inconnu", index.Build(docs), docs, 3, 0.0)
	require.Len(t, res, 3)
	assert.Equal(t, "https://1", res[0].Document.URL)
	assert.Equal(t, "https://2", res[1].Document.URL)
	assert.Equal(t, "https://3", res[2].Document.URL)
}

func TestRetrieveEmptyIndex(t *testing.T) {
	assert.Empty(t, Retrieve("capitale", index.Build(nil), nil, 5, 0))
	assert.Empty(t, Retrieve("capitale", nil, nil, 5, 0))
}

func TestToPassages(t *testing.T) {
	docs := scenarioDocs()
	p := ToPassages([]Scored{{Score: 0.4, Document: docs[0]}})
	require.Len(t, p, 1)
	assert.Equal(t, domain.Passage{Title: docs[0].Title, URL: docs[0].URL, Content: docs[0].Content, Score: 0.4}, p[0])
}

// --- backends ---

type fakeEmbedder struct {
	vec []float64
	err error
}

func (f *fakeEmbedder) Name() string   { return "fake" }
func (f *fakeEmbedder) Dimension() int { return len(f.vec) }
func (f *fakeEmbedder) Embed(context.Context, string) ([]float64, error) {
	return f.vec, f.err
}

type failingStore struct{}

func (failingStore) Init(context.Context, int) error { return nil }
func (failingStore) Upsert(context.Context, []domain.Document, [][]float64) error {
	return nil
}
func (failingStore) Clear(context.Context) error { return nil }
func (failingStore) Search(context.Context, []float64, int) ([]domain.Passage, error) {
	return nil, errors.New("connection refused")
}

func tfidfBackend(docs []domain.Document) *TFIDFBackend {
	snap := &Snapshot{Index: index.Build(docs), Documents: docs}
	return NewTFIDFBackend(func() *Snapshot { return snap })
}

func vectorStore(t *testing.T) *memory.Storage {
	t.Helper()
	ctx := context.Background()
	s := memory.NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.Document{
		{Title: "V1", URL: "https://v1"},
		{Title: "V2", URL: "https://v2"},
	}, [][]float64{{1, 0}, {0, 1}}))
	return s
}

func TestTFIDFBackendWithoutSnapshot(t *testing.T) {
	b := NewTFIDFBackend(func() *Snapshot { return nil })
	p, err := b.Retrieve(context.Background(), "x", 3, 0)
	assert.NoError(t, err)
	assert.Empty(t, p)
	assert.Equal(t, "tfidf", b.Name())
}

func TestVectorBackendAppliesThreshold(t *testing.T) {
	b := NewVectorBackend(&fakeEmbedder{vec: []float64{1, 0}}, vectorStore(t))
	p, err := b.Retrieve(context.Background(), "q", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, p, 1)
	assert.Equal(t, "https://v1", p[0].URL)
	assert.Equal(t, "vector:fake", b.Name())
}

func TestVectorBackendErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewVectorBackend(&fakeEmbedder{err: errors.New("no key")}, vectorStore(t)).Retrieve(ctx, "q", 5, 0)
	assert.ErrorIs(t, err, domain.ErrVectorBackendUnavailable)

	_, err = NewVectorBackend(&fakeEmbedder{}, vectorStore(t)).Retrieve(ctx, "q", 5, 0)
	assert.ErrorIs(t, err, domain.ErrVectorBackendUnavailable)

	_, err = NewVectorBackend(&fakeEmbedder{vec: []float64{1, 0}}, failingStore{}).Retrieve(ctx, "q", 5, 0)
	assert.ErrorIs(t, err, domain.ErrVectorBackendUnavailable)
}

func TestVectorBackendWithoutHitsIsUnavailable(t *testing.T) {
	ctx := context.Background()
	empty := memory.NewStorage()
	_, err := NewVectorBackend(&fakeEmbedder{vec: []float64{1, 0}}, empty).Retrieve(ctx, "q", 5, 0)
	assert.ErrorIs(t, err, domain.ErrVectorBackendUnavailable)

	zero := memory.NewStorage()
	require.NoError(t, zero.Init(ctx, 2))
	require.NoError(t, zero.Upsert(ctx, []domain.Document{{Title: "V", URL: "https://v"}}, [][]float64{{0, 1}}))
	_, err = NewVectorBackend(&fakeEmbedder{vec: []float64{1, 0}}, zero).Retrieve(ctx, "q", 5, 0)
	assert.ErrorIs(t, err, domain.ErrVectorBackendUnavailable)

	p, name := RetrieveWithFallback(ctx, NewVectorBackend(&fakeEmbedder{vec: []float64{1, 0}}, empty), tfidfBackend(scenarioDocs()), "capitale France", 2, 0)
	require.NotEmpty(t, p)
	assert.Equal(t, "https://a", p[0].URL)
	assert.Equal(t, "tfidf", name)
}

func TestSelect(t *testing.T) {
	fallback := tfidfBackend(scenarioDocs())
	vector := NewVectorBackend(&fakeEmbedder{vec: []float64{1, 0}}, vectorStore(t))

	assert.Same(t, fallback, Select(nil, fallback))
	assert.Same(t, vector, Select(vector, fallback))
}

func TestRetrieveWithFallbackPrefersVector(t *testing.T) {
	fallback := tfidfBackend(scenarioDocs())
	vector := NewVectorBackend(&fakeEmbedder{vec: []float64{0, 1}}, vectorStore(t))

	p, name := RetrieveWithFallback(context.Background(), vector, fallback, "capitale France", 1, 0)
	require.Len(t, p, 1)
	assert.Equal(t, "https://v2", p[0].URL)
	assert.Equal(t, "vector:fake", name)
}

func TestRetrieveWithFallbackDegradesSilently(t *testing.T) {
	fallback := tfidfBackend(scenarioDocs())
	vector := NewVectorBackend(&fakeEmbedder{err: errors.New("timeout")}, vectorStore(t))

	p, name := RetrieveWithFallback(context.Background(), vector, fallback, "capitale France", 2, 0)
	require.NotEmpty(t, p)
	assert.Equal(t, "https://a", p[0].URL)
	assert.Equal(t, "tfidf", name)
}

func TestRetrieveWithFallbackNoPrimary(t *testing.T) {
	fallback := tfidfBackend(scenarioDocs())
	p, name := RetrieveWithFallback(context.Background(), nil, fallback, "crêpes", 1, 0)
	require.Len(t, p, 1)
	assert.Equal(t, "https://b", p[0].URL)
	assert.Equal(t, "tfidf", name)
}
