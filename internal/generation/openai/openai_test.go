package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/generation"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	t.Setenv("TEST_CHAT_KEY", "k")
	c, err := NewClient(Config{BaseURL: url, APIKeyEnv: "TEST_CHAT_KEY", Model: "m"})
	require.NoError(t, err)
	return c
}

func TestClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "hello", body.Messages[0].Content)
		assert.Equal(t, 50, body.MaxTokens)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" hi "}}]}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv.URL).Generate(context.Background(), "hello", generation.Options{MaxTokens: 50})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Generate(context.Background(), "hello", generation.Options{})
	assert.Error(t, err)
}

func TestClient_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Generate(context.Background(), "hello", generation.Options{})
	assert.ErrorIs(t, err, generation.ErrUnavailable)
	assert.False(t, c.Available(context.Background()))
}

func TestNewClient_MissingKey(t *testing.T) {
	_, err := NewClient(Config{APIKeyEnv: "DOCQA_TEST_UNSET_CHAT_KEY"})
	assert.Error(t, err)
}
