// Package service wires the question answering pipeline to its indexing,
// generation and history collaborators.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docqa/internal/decompose"
	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/generation"
	"docqa/internal/history"
	"docqa/internal/metrics"
	"docqa/internal/rerank"
	"docqa/internal/retrieve"
	"docqa/internal/synthesis"
	"docqa/internal/vectorstore"
)

// embedConcurrency bounds parallel Embed calls during loading.
const embedConcurrency = 4

// Dependencies are the collaborators of a QAService. Chunker, Embedder, Store
// and Generator are required.
type Dependencies struct {
	Chunker    domain.Chunker
	Embedder   embedding.Embedder
	Store      vectorstore.Storage
	Generator  generation.Provider
	Summarizer domain.Summarizer
	History    history.Store
	Metrics    *metrics.Collector
	Logger     *zap.Logger
}

// Settings tune the pipeline stages.
type Settings struct {
	SummaryMaxSentences int
	RerankPreviewChars  int
	MaxContexts         int
	Estimator           synthesis.ConfidenceEstimator
}

// QAService answers questions over the loaded documents.
type QAService struct {
	chunker    domain.Chunker
	embedder   embedding.Embedder
	store      vectorstore.Storage
	generator  generation.Provider
	summarizer domain.Summarizer
	history    history.Store
	metrics    *metrics.Collector
	logger     *zap.Logger

	decomposer  *decompose.Decomposer
	retriever   *retrieve.Retriever
	reranker    *rerank.Reranker
	synthesizer *synthesis.Synthesizer

	summaryMaxSentences int

	mu      sync.RWMutex
	chunks  []domain.Chunk
	vectors [][]float64
}

func NewQAService(deps Dependencies, settings Settings) *QAService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hist := deps.History
	if hist == nil {
		hist = history.NewRing(history.DefaultCapacity)
	}
	gen := instrument(deps.Generator, deps.Metrics)

	s := &QAService{
		chunker:             deps.Chunker,
		embedder:            deps.Embedder,
		store:               deps.Store,
		generator:           gen,
		summarizer:          deps.Summarizer,
		history:             hist,
		metrics:             deps.Metrics,
		logger:              logger.With(zap.String("component", "qa_service")),
		summaryMaxSentences: settings.SummaryMaxSentences,
	}
	opts := []synthesis.Option{synthesis.WithMaxContexts(settings.MaxContexts)}
	if settings.Estimator != nil {
		opts = append(opts, synthesis.WithEstimator(settings.Estimator))
	}
	s.decomposer = decompose.New(gen, logger)
	s.retriever = retrieve.New(s, logger)
	s.reranker = rerank.New(gen, settings.RerankPreviewChars, logger)
	s.synthesizer = synthesis.New(gen, logger, opts...)
	return s
}

// LoadDocuments chunks and indexes documents. Previously loaded chunks are
// kept and the whole corpus is re-embedded, since corpus-fitted embedders
// change with every load. Failures are reported in the result.
func (s *QAService) LoadDocuments(ctx context.Context, docs []domain.Document) domain.LoadResult {
	res, err := s.loadDocuments(ctx, docs)
	if err != nil {
		s.logger.Error("loading documents failed", zap.Error(err))
		return domain.LoadResult{Success: false, Error: err.Error()}
	}
	s.logger.Info("documents loaded",
		zap.Int("documents", res.DocumentsProcessed),
		zap.Int("chunks", res.ChunksCreated))
	return res
}

func (s *QAService) loadDocuments(ctx context.Context, docs []domain.Document) (domain.LoadResult, error) {
	if len(docs) == 0 {
		return domain.LoadResult{}, fmt.Errorf("no documents to load")
	}
	var newChunks []domain.Chunk
	var allText strings.Builder
	for _, d := range docs {
		chunks, err := s.chunker.Chunk(d)
		if err != nil {
			return domain.LoadResult{}, fmt.Errorf("chunk %s: %w", d.Source, err)
		}
		newChunks = append(newChunks, chunks...)
		allText.WriteString("\n")
		allText.WriteString(d.Content)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	corpus := append(append([]domain.Chunk(nil), s.chunks...), newChunks...)
	if len(corpus) == 0 {
		return domain.LoadResult{}, fmt.Errorf("documents produced no chunks")
	}
	texts := make([]string, len(corpus))
	for i := range corpus {
		texts[i] = corpus[i].Text
	}
	if err := s.embedder.Prepare(texts); err != nil {
		return domain.LoadResult{}, fmt.Errorf("prepare embedder: %w", err)
	}
	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		s.restore(ctx, false)
		return domain.LoadResult{}, err
	}
	dim := s.embedder.Dimension()
	if len(vectors) > 0 && len(vectors[0]) > 0 {
		dim = len(vectors[0])
	}
	if err := s.store.Clear(ctx); err != nil {
		s.restore(ctx, true)
		return domain.LoadResult{}, fmt.Errorf("clear index: %w", err)
	}
	if err := s.store.Init(ctx, dim); err != nil {
		s.restore(ctx, true)
		return domain.LoadResult{}, fmt.Errorf("init index: %w", err)
	}
	if err := s.store.Upsert(ctx, corpus, vectors); err != nil {
		s.restore(ctx, true)
		return domain.LoadResult{}, fmt.Errorf("upsert chunks: %w", err)
	}
	s.chunks = corpus
	s.vectors = vectors

	ids := make([]string, len(newChunks))
	for i, c := range newChunks {
		ids[i] = c.ChunkID
	}
	res := domain.LoadResult{
		Success:            true,
		DocumentsProcessed: len(docs),
		ChunksCreated:      len(newChunks),
		ChunkIDs:           ids,
	}
	if s.summarizer != nil {
		summary, err := s.summarizer.Summarize(allText.String(), s.summaryMaxSentences)
		if err != nil {
			s.logger.Warn("summarizing documents failed", zap.Error(err))
		}
		res.Summary = summary
	}
	return res, nil
}

// restore puts the embedder and, when cleared is set, the index back to the
// last successfully loaded corpus. If that fails too, the corpus is dropped so
// that ChunkCount and the index agree. Callers hold s.mu.
func (s *QAService) restore(ctx context.Context, cleared bool) {
	ctx = context.WithoutCancel(ctx)
	if len(s.chunks) == 0 {
		if cleared {
			_ = s.store.Clear(ctx)
		}
		return
	}
	texts := make([]string, len(s.chunks))
	for i := range s.chunks {
		texts[i] = s.chunks[i].Text
	}
	err := s.embedder.Prepare(texts)
	if err == nil && cleared {
		err = s.reindex(ctx, s.chunks, s.vectors)
	}
	if err != nil {
		s.logger.Error("restoring previous corpus failed, index emptied", zap.Error(err))
		_ = s.store.Clear(ctx)
		s.chunks = nil
		s.vectors = nil
		return
	}
	s.logger.Warn("load failed, previous corpus restored", zap.Int("chunks", len(s.chunks)))
}

func (s *QAService) reindex(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	dim := s.embedder.Dimension()
	if len(vectors) > 0 && len(vectors[0]) > 0 {
		dim = len(vectors[0])
	}
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	if err := s.store.Init(ctx, dim); err != nil {
		return err
	}
	return s.store.Upsert(ctx, chunks, vectors)
}

func (s *QAService) embedAll(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, t := range texts {
		i, t := i, t
		g.Go(func() error {
			v, err := s.embedder.Embed(gctx, t)
			s.metrics.RecordProviderCall("embed", err)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// ClearDocuments empties the index and the in-memory corpus.
func (s *QAService) ClearDocuments(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	s.chunks = nil
	s.vectors = nil
	s.logger.Info("all documents cleared")
	return nil
}

// HealthCheck probes the index and the generation backend.
func (s *QAService) HealthCheck(ctx context.Context) domain.Health {
	var indexReady, genReady bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { indexReady = s.store.Ready(gctx); return nil })
	g.Go(func() error { genReady = s.generator.Available(gctx); return nil })
	_ = g.Wait()
	return domain.NewHealth(indexReady, genReady)
}

// History returns up to limit completed answers, oldest first.
func (s *QAService) History(ctx context.Context, limit int) ([]domain.Answer, error) {
	return s.history.Recent(ctx, limit)
}

// ChunkCount reports how many chunks are indexed.
func (s *QAService) ChunkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}
