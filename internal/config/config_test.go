package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LLM_BASE_URL", "LLM_MODEL", "WEAVIATE_URL", "WEAVIATE_API_KEY", "EVAL_DIR", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "tfidf", cfg.Embedder.Type)
	assert.Equal(t, "ollama", cfg.Generation.Type)
	assert.Equal(t, "mistral", cfg.Generation.Model)
	assert.Equal(t, 5, cfg.Pipeline.TopK)
	assert.True(t, cfg.Pipeline.UseDecomposition)
	assert.Equal(t, 1024, cfg.Chunker.ChunkSize)
	assert.Equal(t, 100, cfg.Chunker.ChunkOverlap)
	assert.Equal(t, "ring", cfg.History.Type)
}

func TestParse_PartialYAMLKeepsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte(`
pipeline:
  top_k: 8
  use_decomposition: false
vector_store:
  type: weaviate
`))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Pipeline.TopK)
	assert.False(t, cfg.Pipeline.UseDecomposition)
	assert.Equal(t, 200, cfg.Pipeline.RerankPreviewChars)
	require.NotNil(t, cfg.VectorStore.Weaviate)
	assert.Equal(t, "http://localhost:8080", cfg.VectorStore.Weaviate.URL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestParse_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_BASE_URL", "http://llm:11434")
	t.Setenv("LLM_MODEL", "llama3")
	t.Setenv("WEAVIATE_URL", "http://weaviate:8080")
	t.Setenv("EVAL_DIR", "/tmp/eval")

	cfg, err := Parse([]byte("generation:\n  model: phi\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://llm:11434", cfg.Generation.BaseURL)
	assert.Equal(t, "llama3", cfg.Generation.Model)
	assert.Equal(t, "http://weaviate:8080", cfg.VectorStore.Weaviate.URL)
	assert.Equal(t, "/tmp/eval", cfg.Evaluation.OutputDir)
}

func TestParse_RejectsUnknownTypes(t *testing.T) {
	clearEnv(t)
	_, err := Parse([]byte("generation:\n  type: gpt9000\n"))
	assert.ErrorContains(t, err, "generation.type")

	_, err = Parse([]byte("vector_store:\n  type: qdrant\n"))
	assert.ErrorContains(t, err, "qdrant")
}

func TestParse_OpenAIEmbedderDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte("embedder:\n  type: openai\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
}

func TestSaveAndLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Pipeline.TopK = 3
	require.NoError(t, Save(path, cfg))

	_, err := os.Stat(path)
	require.NoError(t, err)
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Pipeline.TopK)
}
