package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoqa/internal/domain"
)

func TestDuplicateURLIsNoOp(t *testing.T) {
	ctx := context.Background()
	s := New()

	added, err := s.AppendDocument(ctx, domain.Document{Title: "A", URL: "https://a", Content: "un"})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AppendDocument(ctx, domain.Document{Title: "B", URL: "https://a", Content: "deux"})
	require.NoError(t, err)
	assert.False(t, added)

	added, err = s.AppendDocument(ctx, domain.Document{Title: "C", URL: "https://c", Content: "un"})
	require.NoError(t, err)
	assert.False(t, added)

	docs, err := s.AllDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "A", docs[0].Title)
	assert.Equal(t, int64(1), docs[0].ID)
}

func TestAllDocumentsReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.AppendDocument(ctx, domain.Document{URL: "https://a", Content: "x"})
	docs, _ := s.AllDocuments(ctx)
	docs[0].URL = "mutated"
	again, _ := s.AllDocuments(ctx)
	assert.Equal(t, "https://a", again[0].URL)
}

func TestInteractionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.LastInteraction(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.AppendInteraction(ctx, domain.Interaction{ID: fmt.Sprint(i)}))
	}
	last, err := s.LastInteraction(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3", last.ID)

	n, err := s.CountInteractions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	list, err := s.ListInteractions(ctx, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"3", "2", "1"}, []string{list[0].ID, list[1].ID, list[2].ID})

	list, _ = s.ListInteractions(ctx, 0)
	assert.Empty(t, list)
}

func TestConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.AppendDocument(ctx, domain.Document{URL: fmt.Sprintf("https://%d", i%10), Content: fmt.Sprint(i % 10)})
		}(i)
	}
	wg.Wait()
	n, err := s.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}
