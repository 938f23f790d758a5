package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoqa/internal/domain"
)

func TestInitCreatesMissingCollection(t *testing.T) {
	var created bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/docs", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("api-key"))
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			var body map[string]map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Cosine", body["vectors"]["distance"])
			assert.EqualValues(t, 3, body["vectors"]["size"])
			created = true
		}
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, APIKey: "k", Collection: "docs"})
	require.NoError(t, s.Init(context.Background(), 3))
	assert.True(t, created)
}

func TestInitKeepsExistingCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected %s", r.Method)
		}
	}))
	defer srv.Close()

	require.NoError(t, NewStorage(Config{URL: srv.URL}).Init(context.Background(), 3))
}

func TestUpsertSendsStablePointIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/documents/points", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		var body struct {
			Points []struct {
				ID      string         `json:"id"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Points, 1)
		assert.Equal(t, PointID("https://a"), body.Points[0].ID)
		assert.Equal(t, "Capitale", body.Points[0].Payload["title"])
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL})
	err := s.Upsert(context.Background(), []domain.Document{{Title: "Capitale", URL: "https://a"}}, [][]float64{{1, 0}})
	require.NoError(t, err)
	assert.Error(t, s.Upsert(context.Background(), []domain.Document{{URL: "x"}}, nil))
}

func TestSearchDecodesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/documents/points/search", r.URL.Path)
		_, _ = w.Write([]byte(`{"result":[{"score":0.8,"payload":{"title":"T","url":"https://t","content":"C"}}]}`))
	}))
	defer srv.Close()

	hits, err := NewStorage(Config{URL: srv.URL}).Search(context.Background(), []float64{1}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, domain.Passage{Title: "T", URL: "https://t", Content: "C", Score: 0.8}, hits[0])
}

func TestSearchPropagatesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewStorage(Config{URL: srv.URL}).Search(context.Background(), []float64{1}, 3)
	assert.Error(t, err)
}

func TestPointIDDeterministic(t *testing.T) {
	assert.Equal(t, PointID("https://a"), PointID("https://a"))
	assert.NotEqual(t, PointID("https://a"), PointID("https://b"))
}
