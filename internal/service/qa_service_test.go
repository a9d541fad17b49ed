package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/embedding/tfidf"
	"docqa/internal/generation"
	"docqa/internal/history"
	"docqa/internal/metrics"
	"docqa/internal/summarizer"
	"docqa/internal/vectorstore/memory"
)

// scriptedGenerator answers each pipeline prompt kind with a canned response.
type scriptedGenerator struct {
	mu         sync.Mutex
	decompose  string
	rate       string
	answer     string
	failAnswer bool
	failAll    bool
	prompts    []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string, _ generation.Options) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.failAll {
		return "", generation.ErrUnavailable
	}
	switch {
	case strings.HasPrefix(prompt, "Decompose"):
		return g.decompose, nil
	case strings.HasPrefix(prompt, "Rate the relevance"):
		return g.rate, nil
	default:
		if g.failAnswer {
			return "", generation.ErrUnavailable
		}
		return g.answer, nil
	}
}

func (g *scriptedGenerator) Available(context.Context) bool { return !g.failAll }

func (g *scriptedGenerator) count(prefix string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.prompts {
		if strings.HasPrefix(p, prefix) {
			n++
		}
	}
	return n
}

type countingStore struct {
	*memory.Storage
	searches    atomic.Int32
	failUpserts atomic.Int32
	ready       bool
}

func (c *countingStore) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if c.failUpserts.Load() > 0 {
		c.failUpserts.Add(-1)
		return errors.New("index write failed")
	}
	return c.Storage.Upsert(ctx, chunks, vectors)
}

func (c *countingStore) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	c.searches.Add(1)
	return c.Storage.Search(ctx, vector, topK)
}

func (c *countingStore) Ready(context.Context) bool { return c.ready }

var corpus = []domain.Document{
	{ID: "ml", Source: "ml_basics.pdf", Content: "The main types of machine learning are supervised learning, unsupervised learning and reinforcement learning."},
	{ID: "dl", Source: "deep.txt", Content: "Deep learning uses neural networks with many layers to learn representations."},
	{ID: "rl", Source: "rl.txt", Content: "Reinforcement learning agents learn by maximizing reward from an environment."},
}

func newTestService(t *testing.T, gen *scriptedGenerator, hist history.Store) (*QAService, *countingStore) {
	t.Helper()
	store := &countingStore{Storage: memory.NewStorage(), ready: true}
	svc := NewQAService(Dependencies{
		Chunker:    chunker.NewWindowChunker(1024, 100),
		Embedder:   tfidf.NewEmbedder(),
		Store:      store,
		Generator:  gen,
		Summarizer: summarizer.NewFrequencySummarizer(),
		History:    hist,
		Metrics:    metrics.NewCollector(prometheus.NewRegistry(), "", nil),
	}, Settings{SummaryMaxSentences: 2})
	res := svc.LoadDocuments(context.Background(), corpus)
	require.True(t, res.Success, res.Error)
	store.searches.Store(0)
	return svc, store
}

func TestLoadDocuments(t *testing.T) {
	svc, _ := newTestService(t, &scriptedGenerator{}, nil)
	assert.Equal(t, 3, svc.ChunkCount())

	more := svc.LoadDocuments(context.Background(), []domain.Document{{ID: "x", Source: "x.txt", Content: "Gradient descent minimizes loss."}})
	require.True(t, more.Success)
	assert.Equal(t, 1, more.DocumentsProcessed)
	assert.Equal(t, 1, more.ChunksCreated)
	assert.Equal(t, []string{"x:0"}, more.ChunkIDs)
	assert.NotEmpty(t, more.Summary)
	assert.Equal(t, 4, svc.ChunkCount())
}

func TestLoadDocuments_UpsertFailureRestoresCorpus(t *testing.T) {
	svc, store := newTestService(t, &scriptedGenerator{}, nil)
	store.failUpserts.Store(1)

	res := svc.LoadDocuments(context.Background(), []domain.Document{{ID: "x", Source: "x.txt", Content: "Gradient descent minimizes loss."}})
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "index write failed")

	assert.Equal(t, 3, svc.ChunkCount())
	assert.Equal(t, 3, store.Len())
	hits, err := svc.Search(context.Background(), "reinforcement reward", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "rl.txt", hits[0].Chunk.Source)
	assert.Equal(t, int32(1), store.searches.Load())
}

func TestLoadDocuments_UnrecoverableFailureEmptiesCorpus(t *testing.T) {
	svc, store := newTestService(t, &scriptedGenerator{}, nil)
	store.failUpserts.Store(2)

	res := svc.LoadDocuments(context.Background(), []domain.Document{{ID: "x", Source: "x.txt", Content: "Gradient descent minimizes loss."}})
	require.False(t, res.Success)
	assert.Equal(t, 0, svc.ChunkCount())
	assert.Equal(t, 0, store.Len())
}

func TestLoadDocuments_Empty(t *testing.T) {
	svc, _ := newTestService(t, &scriptedGenerator{}, nil)
	res := svc.LoadDocuments(context.Background(), nil)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestAnswerQuestion_WithoutDecomposition(t *testing.T) {
	gen := &scriptedGenerator{rate: "[0]=5 [1]=2", answer: "Supervised, unsupervised and reinforcement learning."}
	svc, store := newTestService(t, gen, nil)
	query := "What are the main types of machine learning?"

	ans, err := svc.AnswerQuestion(context.Background(), query, AskOptions{UseDecomposition: false, TopK: 2})
	require.NoError(t, err)
	require.True(t, ans.Success, ans.Error)
	assert.Equal(t, []string{query}, ans.SubQuestions)
	assert.EqualValues(t, 1, store.searches.Load())
	assert.Zero(t, gen.count("Decompose"))

	log := ans.ExecutionLog
	assert.Equal(t, domain.StateCompleted, log.State)
	assert.NotEmpty(t, log.RunID)
	require.Len(t, log.Steps, 3)
	assert.Equal(t, domain.StageDecomposition, log.Steps[0].Stage)
	assert.Equal(t, []string{query}, log.Steps[0].SubQuestions)
	assert.Equal(t, domain.StageRetrieval, log.Steps[1].Stage)
	assert.Equal(t, 2, *log.Steps[1].TotalContexts)
	require.Len(t, log.Steps[1].Details, 1)
	assert.Equal(t, "ml_basics.pdf", log.Steps[1].Details[0].Sources[0])
	assert.Equal(t, domain.StageSynthesis, log.Steps[2].Stage)
	assert.Equal(t, ans.ContextsUsed, *log.Steps[2].ContextsUsed)
	assert.Equal(t, ans.Confidence, *log.Steps[2].Confidence)
	assert.Greater(t, ans.Confidence, 0.0)
}

func TestAnswerQuestion_WithDecomposition(t *testing.T) {
	gen := &scriptedGenerator{
		decompose: "1. What is deep learning?\n2. What is reinforcement learning?\n3. What is supervised learning?",
		rate:      "[0]=3",
		answer:    "An answer.",
	}
	svc, store := newTestService(t, gen, nil)

	ans, err := svc.AnswerQuestion(context.Background(), "Compare learning paradigms", AskOptions{UseDecomposition: true, NumSubQuestions: 3, TopK: 1})
	require.NoError(t, err)
	require.True(t, ans.Success)
	assert.Equal(t, []string{"What is deep learning?", "What is reinforcement learning?", "What is supervised learning?"}, ans.SubQuestions)
	assert.EqualValues(t, 3, store.searches.Load())
	assert.Equal(t, 1, gen.count("Decompose"))
	assert.Equal(t, 1, gen.count("Rate the relevance"))

	step, ok := ans.ExecutionLog.StepFor(domain.StageRetrieval)
	require.True(t, ok)
	assert.Len(t, step.Details, 3)
}

func TestAnswerQuestion_SynthesisOutage(t *testing.T) {
	hist := history.NewRing(10)
	gen := &scriptedGenerator{failAll: true}
	svc, _ := newTestService(t, gen, hist)

	ans, err := svc.AnswerQuestion(context.Background(), "What is deep learning?", DefaultAskOptions())
	require.NoError(t, err)
	assert.False(t, ans.Success)
	assert.Empty(t, ans.Answer)
	assert.Equal(t, domain.StateError, ans.ExecutionLog.State)
	assert.NotEmpty(t, ans.Error)
	assert.Equal(t, ans.Error, ans.ExecutionLog.Error)

	// decomposition and reranking degrade, so the trace reaches retrieval
	_, ok := ans.ExecutionLog.StepFor(domain.StageRetrieval)
	assert.True(t, ok)
	_, ok = ans.ExecutionLog.StepFor(domain.StageSynthesis)
	assert.False(t, ok)
	assert.Zero(t, hist.Len())
}

func TestAnswerQuestion_EmptyQuery(t *testing.T) {
	svc, _ := newTestService(t, &scriptedGenerator{}, nil)
	_, err := svc.AnswerQuestion(context.Background(), "   ", DefaultAskOptions())
	assert.True(t, errors.Is(err, domain.ErrEmptyQuery))
}

func TestAnswerQuestion_KeepsQueryVerbatim(t *testing.T) {
	gen := &scriptedGenerator{answer: "Deep learning uses neural networks."}
	svc, _ := newTestService(t, gen, nil)
	query := "  What is deep learning?\n"

	ans, err := svc.AnswerQuestion(context.Background(), query, AskOptions{})
	require.NoError(t, err)
	require.True(t, ans.Success, ans.Error)
	assert.Equal(t, query, ans.Query)
	assert.Equal(t, query, ans.ExecutionLog.Query)
	assert.Equal(t, []string{query}, ans.SubQuestions)
}

func TestAnswerQuestion_RecordsHistory(t *testing.T) {
	hist := history.NewRing(10)
	svc, _ := newTestService(t, &scriptedGenerator{answer: "ok"}, hist)
	for _, q := range []string{"deep learning?", "reward?"} {
		ans, err := svc.AnswerQuestion(context.Background(), q, AskOptions{})
		require.NoError(t, err)
		require.True(t, ans.Success)
	}
	got, err := svc.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "deep learning?", got[0].Query)
	assert.Equal(t, "reward?", got[1].Query)
}

func TestAnswerQuestion_Cancelled(t *testing.T) {
	svc, _ := newTestService(t, &scriptedGenerator{answer: "ok"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ans, err := svc.AnswerQuestion(ctx, "deep learning?", AskOptions{})
	require.NoError(t, err)
	assert.False(t, ans.Success)
	assert.Equal(t, domain.StateError, ans.ExecutionLog.State)
}

func TestHealthCheck(t *testing.T) {
	svc, store := newTestService(t, &scriptedGenerator{}, nil)
	h := svc.HealthCheck(context.Background())
	assert.Equal(t, domain.StatusOperational, h.Status)

	store.ready = false
	h = svc.HealthCheck(context.Background())
	assert.False(t, h.IndexReady)
	assert.True(t, h.GenerationReady)
	assert.Equal(t, domain.StatusDegraded, h.Status)
}

func TestClearDocuments(t *testing.T) {
	svc, store := newTestService(t, &scriptedGenerator{}, nil)
	require.NoError(t, svc.ClearDocuments(context.Background()))
	assert.Zero(t, svc.ChunkCount())
	assert.Zero(t, store.Len())
}

func TestSearch_LexicalFallback(t *testing.T) {
	svc, store := newTestService(t, &scriptedGenerator{}, nil)

	res, err := svc.Search(context.Background(), "reward", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "rl.txt", res[0].Chunk.Source)
	assert.EqualValues(t, 1, store.searches.Load())

	// stopwords embed to a zero vector, so ranking falls back to token overlap
	store.searches.Store(0)
	res, err = svc.Search(context.Background(), "with", 3)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "deep.txt", res[0].Chunk.Source)
	assert.Zero(t, store.searches.Load())

	res, err = svc.Search(context.Background(), "zzyzx", 3)
	require.NoError(t, err)
	assert.Empty(t, res)
}
