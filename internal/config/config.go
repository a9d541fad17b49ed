package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	// AllowMissingKey permits keyless servers such as a local Ollama.
	AllowMissingKey bool `yaml:"allow_missing_key"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
	ChunkSize         int    `yaml:"chunk_size"`
	ChunkOverlap      int    `yaml:"chunk_overlap"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	Weaviate *WeaviateConfig `yaml:"weaviate,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// WeaviateConfig contains connection details for a Weaviate vector store.
type WeaviateConfig struct {
	URL       string `yaml:"url"`
	Scheme    string `yaml:"scheme"`
	APIKey    string `yaml:"api_key"`
	ClassName string `yaml:"class_name"`
}

// GenerationConfig selects the text generation backend.
type GenerationConfig struct {
	Type           string  `yaml:"type"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	TimeoutSecs    int     `yaml:"timeout_secs"`
	MaxConcurrency int     `yaml:"max_concurrency"`
	RatePerSec     float64 `yaml:"rate_per_sec"`
}

// PipelineConfig tunes the question answering pipeline.
type PipelineConfig struct {
	TopK               int  `yaml:"top_k"`
	UseDecomposition   bool `yaml:"use_decomposition"`
	Adaptive           bool `yaml:"adaptive"`
	NumSubQuestions    int  `yaml:"num_sub_questions"`
	RerankPreviewChars int  `yaml:"rerank_preview_chars"`
	MaxContexts        int  `yaml:"max_contexts"`
}

// HistoryConfig selects where completed answers are recorded.
type HistoryConfig struct {
	Type       string `yaml:"type"`
	Capacity   int    `yaml:"capacity"`
	SQLitePath string `yaml:"sqlite_path"`
}

// EvaluationConfig configures the offline evaluator.
type EvaluationConfig struct {
	OutputDir   string `yaml:"output_dir"`
	Concurrency int    `yaml:"concurrency"`
	Scorer      string `yaml:"scorer"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string   `yaml:"level"`
	Format      string   `yaml:"format"`
	OutputPaths []string `yaml:"output_paths"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Namespace string `yaml:"namespace"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Generation  GenerationConfig  `yaml:"generation"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	History     HistoryConfig     `yaml:"history"`
	Evaluation  EvaluationConfig  `yaml:"evaluation"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults, so omitted keys keep their default
// values, then applies environment overrides.
func Parse(data []byte) (*AppConfig, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyConfigDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/docqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects unknown component types.
func (c *AppConfig) Validate() error {
	checks := []struct {
		field   string
		value   string
		allowed []string
	}{
		{"embedder.type", c.Embedder.Type, []string{"tfidf", "openai"}},
		{"chunker.type", c.Chunker.Type, []string{"sentence", "window"}},
		{"vector_store.type", c.VectorStore.Type, []string{"memory", "qdrant", "weaviate"}},
		{"generation.type", c.Generation.Type, []string{"ollama", "openai"}},
		{"history.type", c.History.Type, []string{"ring", "sqlite", "none"}},
		{"evaluation.scorer", c.Evaluation.Scorer, []string{"lexical", "semantic"}},
		{"summarizer.type", c.Summarizer.Type, []string{"frequency"}},
	}
	for _, ch := range checks {
		ok := false
		for _, a := range ch.allowed {
			if ch.value == a {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("invalid %s %q (want one of %s)", ch.field, ch.value, strings.Join(ch.allowed, ", "))
		}
	}
	if c.VectorStore.Type == "qdrant" && c.VectorStore.Qdrant == nil {
		return errors.New("vector_store.qdrant section is required")
	}
	return nil
}

// DefaultUserConfigPath returns ~/.config/docqa/config.yaml.
func DefaultUserConfigPath() (string, error) {
	dir, err := UserDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// UserDir returns ~/.config/docqa.
func UserDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docqa"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "tfidf"},
		Chunker:     ChunkerConfig{Type: "window", SentencesPerChunk: 5, OverlapSentences: 1, ChunkSize: 1024, ChunkOverlap: 100},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Generation: GenerationConfig{
			Type:           "ollama",
			BaseURL:        "http://localhost:11434",
			Model:          "mistral",
			APIKeyEnv:      "OPENAI_API_KEY",
			TimeoutSecs:    120,
			MaxConcurrency: 4,
		},
		Pipeline: PipelineConfig{
			TopK:               5,
			UseDecomposition:   true,
			Adaptive:           true,
			NumSubQuestions:    3,
			RerankPreviewChars: 200,
			MaxContexts:        5,
		},
		History:    HistoryConfig{Type: "ring", Capacity: 100},
		Evaluation: EvaluationConfig{OutputDir: "evaluation_results", Concurrency: 1, Scorer: "lexical"},
		Summarizer: SummarizerConfig{Type: "frequency", MaxSentences: 5},
		Logging:    LoggingConfig{Level: "info", Format: "json", OutputPaths: []string{"stderr"}},
		Metrics:    MetricsConfig{Listen: ":9090", Namespace: "docqa"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Chunker.ChunkSize <= 0 {
		cfg.Chunker.ChunkSize = 1024
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI == nil {
		cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.VectorStore.Type == "weaviate" && cfg.VectorStore.Weaviate == nil {
		cfg.VectorStore.Weaviate = &WeaviateConfig{URL: "http://localhost:8080"}
	}
	if cfg.Pipeline.TopK <= 0 {
		cfg.Pipeline.TopK = 5
	}
	if cfg.Pipeline.MaxContexts <= 0 || cfg.Pipeline.MaxContexts > 5 {
		cfg.Pipeline.MaxContexts = 5
	}
	if cfg.Pipeline.NumSubQuestions <= 0 {
		cfg.Pipeline.NumSubQuestions = 3
	}
	if cfg.Generation.TimeoutSecs <= 0 {
		cfg.Generation.TimeoutSecs = 120
	}
	if cfg.History.Capacity <= 0 {
		cfg.History.Capacity = 100
	}
	if cfg.Evaluation.Concurrency <= 0 {
		cfg.Evaluation.Concurrency = 1
	}
	if len(cfg.Logging.OutputPaths) == 0 {
		cfg.Logging.OutputPaths = []string{"stderr"}
	}
}

// applyEnvOverrides lets deployment environments point at their own
// backends without editing the YAML file.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.Generation.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Generation.Model = v
	}
	if v := os.Getenv("WEAVIATE_URL"); v != "" {
		if cfg.VectorStore.Weaviate == nil {
			cfg.VectorStore.Weaviate = &WeaviateConfig{}
		}
		cfg.VectorStore.Weaviate.URL = v
	}
	if v := os.Getenv("WEAVIATE_API_KEY"); v != "" {
		if cfg.VectorStore.Weaviate == nil {
			cfg.VectorStore.Weaviate = &WeaviateConfig{URL: "http://localhost:8080"}
		}
		cfg.VectorStore.Weaviate.APIKey = v
	}
	if v := os.Getenv("EVAL_DIR"); v != "" {
		cfg.Evaluation.OutputDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
