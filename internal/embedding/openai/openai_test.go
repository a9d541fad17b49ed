package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	t.Setenv("TEST_EMBED_KEY", "secret")
	c, err := NewClient(Config{BaseURL: url, APIKeyEnv: "TEST_EMBED_KEY", Model: "m"})
	require.NoError(t, err)
	return c
}

func TestNewClient_MissingKey(t *testing.T) {
	_, err := NewClient(Config{APIKeyEnv: "DOCQA_TEST_UNSET_KEY"})
	assert.Error(t, err)

	c, err := NewClient(Config{APIKeyEnv: "DOCQA_TEST_UNSET_KEY", AllowMissingKey: true})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())
}

func TestEmbed_OpenAIShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "m", body["model"])
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, 3, c.Dimension())
}

func TestEmbed_OllamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[1,2]}`))
	}))
	defer srv.Close()

	vec, err := newTestClient(t, srv.URL).Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, vec)
}

func TestEmbed_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embedding":[1]}`))
	}))
	defer srv.Close()

	vec, err := newTestClient(t, srv.URL).Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, vec)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbed_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Embed(context.Background(), "x")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, retryDelay(0), retryDelay(-3))
	assert.Less(t, retryDelay(0), retryDelay(1))
	assert.Equal(t, retryDelay(10), retryDelay(20))
}
