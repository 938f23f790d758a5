package openai

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

func newClient(t *testing.T, url string) *Client {
	t.Helper()
	t.Setenv("TEST_LLM_KEY", "secret")
	c, err := NewClient(Config{BaseURL: url + "/", APIKeyEnv: "TEST_LLM_KEY", Model: "m", Temperature: 0.2})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("TEST_LLM_MISSING", "")
	_, err := NewClient(Config{APIKeyEnv: "TEST_LLM_MISSING"})
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "m", req.Model)
		assert.InDelta(t, 0.2, req.Temperature, 1e-9)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "sys", req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  Paris [A](https://a)\n"}}]}`))
	}))
	defer srv.Close()

	out, err := newClient(t, srv.URL).Generate(context.Background(), "sys", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Paris [A](https://a)", out)
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"status", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`},
		{"api error", http.StatusOK, `{"error":{"message":"overloaded"}}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newClient(t, srv.URL).Generate(context.Background(), "s", "p")
			assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
		})
	}
}
