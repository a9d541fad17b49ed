package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/embedding"
	embedopenai "docqa/internal/embedding/openai"
	"docqa/internal/embedding/tfidf"
	"docqa/internal/evaluation"
	"docqa/internal/generation"
	"docqa/internal/generation/ollama"
	genopenai "docqa/internal/generation/openai"
	"docqa/internal/history"
	"docqa/internal/metrics"
	"docqa/internal/service"
	"docqa/internal/summarizer"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
	"docqa/internal/vectorstore/qdrant"
	"docqa/internal/vectorstore/weaviate"
)

// app holds the assembled components and whatever must be closed on exit.
type app struct {
	svc      *service.QAService
	embedder embedding.Embedder
	closers  []func() error
}

func (a *app) Close() {
	for _, c := range a.closers {
		_ = c()
	}
}

func buildApp(cfg *config.AppConfig, collector *metrics.Collector, logger *zap.Logger) (*app, error) {
	a := &app{}
	emb, err := buildEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	a.embedder = emb

	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "sentence":
		ch = chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences)
	default:
		ch = chunker.NewWindowChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	}

	st, err := buildStore(cfg.VectorStore, logger)
	if err != nil {
		return nil, err
	}

	gen, err := buildGenerator(cfg.Generation)
	if err != nil {
		return nil, err
	}

	var hist history.Store
	switch cfg.History.Type {
	case "sqlite":
		path := cfg.History.SQLitePath
		if path == "" {
			dir, err := config.UserDir()
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
			path = filepath.Join(dir, "history.db")
		}
		db, err := history.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		hist = db
	case "none":
		hist = history.Discard{}
	default:
		hist = history.NewRing(cfg.History.Capacity)
	}

	var sum domain.Summarizer = summarizer.NewFrequencySummarizer()

	a.svc = service.NewQAService(service.Dependencies{
		Chunker:    ch,
		Embedder:   emb,
		Store:      st,
		Generator:  gen,
		Summarizer: sum,
		History:    hist,
		Metrics:    collector,
		Logger:     logger,
	}, service.Settings{
		SummaryMaxSentences: cfg.Summarizer.MaxSentences,
		RerankPreviewChars:  cfg.Pipeline.RerankPreviewChars,
		MaxContexts:         cfg.Pipeline.MaxContexts,
	})
	return a, nil
}

func buildEmbedder(cfg config.EmbedderConfig) (embedding.Embedder, error) {
	switch cfg.Type {
	case "openai":
		client, err := embedopenai.NewClient(embedopenai.Config{
			BaseURL:         cfg.OpenAI.BaseURL,
			APIKeyEnv:       cfg.OpenAI.APIKeyEnv,
			Model:           cfg.OpenAI.Model,
			Timeout:         time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			AllowMissingKey: cfg.OpenAI.AllowMissingKey,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	default:
		return tfidf.NewEmbedder(), nil
	}
}

func buildStore(cfg config.VectorStoreConfig, logger *zap.Logger) (vectorstore.Storage, error) {
	switch cfg.Type {
	case "qdrant":
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	case "weaviate":
		scheme := cfg.Weaviate.Scheme
		if u, err := url.Parse(cfg.Weaviate.URL); err == nil && u.Scheme != "" && scheme == "" {
			scheme = u.Scheme
		}
		return weaviate.NewStorage(weaviate.Config{
			Host:      cfg.Weaviate.URL,
			Scheme:    scheme,
			APIKey:    cfg.Weaviate.APIKey,
			ClassName: cfg.Weaviate.ClassName,
		}, logger)
	default:
		return memory.NewStorage(), nil
	}
}

func buildGenerator(cfg config.GenerationConfig) (generation.Provider, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	var p generation.Provider
	switch cfg.Type {
	case "openai":
		client, err := genopenai.NewClient(genopenai.Config{
			BaseURL:   cfg.BaseURL,
			APIKeyEnv: cfg.APIKeyEnv,
			Model:     cfg.Model,
			Timeout:   timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("openai generation init failed: %w", err)
		}
		p = client
	default:
		p = ollama.NewClient(ollama.Config{BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: timeout})
	}
	return generation.NewLimited(p, cfg.MaxConcurrency, cfg.RatePerSec), nil
}

func buildScorer(cfg config.EvaluationConfig, emb embedding.Embedder) evaluation.AnswerScorer {
	if cfg.Scorer == "semantic" {
		return evaluation.Semantic{Embedder: emb}
	}
	return evaluation.WordOverlap{}
}
