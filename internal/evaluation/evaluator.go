// Package evaluation replays test cases through the pipeline and scores the
// answers against ground truth.
package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docqa/internal/domain"
	"docqa/internal/metrics"
)

// ErrNoResults is returned by Summary before any batch has been evaluated.
var ErrNoResults = errors.New("no evaluation results available")

// TestCase is one question with its expected evidence and answer.
type TestCase struct {
	Query               string   `json:"query"`
	GroundTruthContexts []string `json:"ground_truth_contexts"`
	GroundTruthAnswer   string   `json:"ground_truth_answer"`
}

// Answerer runs the question answering pipeline.
type Answerer interface {
	Answer(ctx context.Context, query string) (*domain.Answer, error)
}

// AnswererFunc adapts a function to Answerer.
type AnswererFunc func(ctx context.Context, query string) (*domain.Answer, error)

func (f AnswererFunc) Answer(ctx context.Context, query string) (*domain.Answer, error) {
	return f(ctx, query)
}

// CaseResult is the outcome of one test case. Failed cases carry only the
// query and the error.
type CaseResult struct {
	TestCaseID       int               `json:"test_case_id"`
	Query            string            `json:"query"`
	Success          bool              `json:"success"`
	RetrievalMetrics *RetrievalMetrics `json:"retrieval_metrics,omitempty"`
	AnswerMetrics    *AnswerMetrics    `json:"answer_metrics,omitempty"`
	AgentConfidence  float64           `json:"agent_confidence"`
	Error            string            `json:"error,omitempty"`
}

// AggregateMetrics are means over the successful cases of a batch.
type AggregateMetrics struct {
	AvgRetrievalAccuracy   float64 `json:"avg_retrieval_accuracy"`
	AvgRetrievalPrecision  float64 `json:"avg_retrieval_precision"`
	AvgRetrievalF1         float64 `json:"avg_retrieval_f1"`
	AvgContextualAccuracy  float64 `json:"avg_contextual_accuracy"`
	AvgContextualPrecision float64 `json:"avg_contextual_precision"`
	AvgContextualF1        float64 `json:"avg_contextual_f1"`
}

// Report is the result of one EvaluateBatch call. AggregateMetrics is nil
// when no case succeeded.
type Report struct {
	EvaluationDate   time.Time         `json:"evaluation_date"`
	TotalTestCases   int               `json:"total_test_cases"`
	SuccessfulCases  int               `json:"successful_cases"`
	FailedCases      int               `json:"failed_cases"`
	TestResults      []CaseResult      `json:"test_results"`
	AggregateMetrics *AggregateMetrics `json:"aggregate_metrics,omitempty"`
}

// Summary condenses the latest report.
type Summary struct {
	EvaluationDate   time.Time         `json:"evaluation_date"`
	TotalTestCases   int               `json:"total_test_cases"`
	AggregateMetrics *AggregateMetrics `json:"aggregate_metrics,omitempty"`
	Text             string            `json:"summary"`
}

type Evaluator struct {
	answerer    Answerer
	retrieval   RetrievalScorer
	answer      AnswerScorer
	concurrency int
	metrics     *metrics.Collector
	logger      *zap.Logger

	mu      sync.Mutex
	reports []Report
}

// Option customises an Evaluator.
type Option func(*Evaluator)

func WithRetrievalScorer(s RetrievalScorer) Option { return func(e *Evaluator) { e.retrieval = s } }

func WithAnswerScorer(s AnswerScorer) Option { return func(e *Evaluator) { e.answer = s } }

// WithConcurrency sets how many cases run at once. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(e *Evaluator) {
		if n >= 1 {
			e.concurrency = n
		}
	}
}

func WithMetrics(c *metrics.Collector) Option { return func(e *Evaluator) { e.metrics = c } }

func New(answerer Answerer, logger *zap.Logger, opts ...Option) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Evaluator{
		answerer:    answerer,
		retrieval:   SubstringRetrieval{},
		answer:      WordOverlap{},
		concurrency: 1,
		logger:      logger.With(zap.String("component", "evaluator")),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// EvaluateBatch runs every case and aggregates the successful ones. A case
// that fails is recorded with its error and does not stop the batch. Results
// keep the order of cases.
func (e *Evaluator) EvaluateBatch(ctx context.Context, cases []TestCase) (Report, error) {
	results := make([]CaseResult, len(cases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, tc := range cases {
		i, tc := i, tc
		g.Go(func() error {
			results[i] = e.evaluateCase(gctx, i+1, tc)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	report := Report{
		EvaluationDate: time.Now().UTC(),
		TotalTestCases: len(cases),
		TestResults:    results,
	}
	var sum AggregateMetrics
	for _, r := range results {
		if !r.Success {
			report.FailedCases++
			continue
		}
		report.SuccessfulCases++
		sum.AvgRetrievalAccuracy += r.RetrievalMetrics.Accuracy
		sum.AvgRetrievalPrecision += r.RetrievalMetrics.Precision
		sum.AvgRetrievalF1 += r.RetrievalMetrics.F1
		sum.AvgContextualAccuracy += r.AnswerMetrics.Accuracy
		sum.AvgContextualPrecision += r.AnswerMetrics.Precision
		sum.AvgContextualF1 += r.AnswerMetrics.F1
	}
	if n := float64(report.SuccessfulCases); n > 0 {
		report.AggregateMetrics = &AggregateMetrics{
			AvgRetrievalAccuracy:   round4(sum.AvgRetrievalAccuracy / n),
			AvgRetrievalPrecision:  round4(sum.AvgRetrievalPrecision / n),
			AvgRetrievalF1:         round4(sum.AvgRetrievalF1 / n),
			AvgContextualAccuracy:  round4(sum.AvgContextualAccuracy / n),
			AvgContextualPrecision: round4(sum.AvgContextualPrecision / n),
			AvgContextualF1:        round4(sum.AvgContextualF1 / n),
		}
	}

	e.mu.Lock()
	e.reports = append(e.reports, report)
	e.mu.Unlock()
	e.logger.Info("evaluation batch finished",
		zap.Int("total", report.TotalTestCases),
		zap.Int("failed", report.FailedCases))
	return report, nil
}

func (e *Evaluator) evaluateCase(ctx context.Context, id int, tc TestCase) CaseResult {
	res := CaseResult{TestCaseID: id, Query: tc.Query}
	err := func() error {
		ans, err := e.answerer.Answer(ctx, tc.Query)
		if err != nil {
			return err
		}
		if !ans.Success {
			if ans.Error == "" {
				return errors.New("pipeline failed")
			}
			return errors.New(ans.Error)
		}
		rm := e.retrieval.ScoreRetrieval(tc.GroundTruthContexts, ans.ExecutionLog.RetrievedSources())
		am, err := e.answer.ScoreAnswer(ctx, tc.Query, ans.Answer, tc.GroundTruthAnswer)
		if err != nil {
			return fmt.Errorf("score answer: %w", err)
		}
		res.RetrievalMetrics, res.AnswerMetrics = &rm, &am
		res.AgentConfidence = ans.Confidence
		return nil
	}()
	e.metrics.RecordEvaluationCase(err)
	if err != nil {
		e.logger.Warn("test case failed", zap.Int("test_case_id", id), zap.Error(err))
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

// Reports returns a copy of every report produced so far.
func (e *Evaluator) Reports() []Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Report(nil), e.reports...)
}

// SaveResults writes all reports as a JSON array, creating parent
// directories as needed.
func (e *Evaluator) SaveResults(path string) error {
	data, err := json.MarshalIndent(e.Reports(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Summary describes the latest report.
func (e *Evaluator) Summary() (Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.reports) == 0 {
		return Summary{}, ErrNoResults
	}
	latest := e.reports[len(e.reports)-1]
	acc := 0.0
	if latest.AggregateMetrics != nil {
		acc = latest.AggregateMetrics.AvgRetrievalAccuracy
	}
	return Summary{
		EvaluationDate:   latest.EvaluationDate,
		TotalTestCases:   latest.TotalTestCases,
		AggregateMetrics: latest.AggregateMetrics,
		Text:             fmt.Sprintf("Evaluated %d test cases with average retrieval accuracy: %g", latest.TotalTestCases, acc),
	}, nil
}

// LoadTestCases reads a JSON array of test cases.
func LoadTestCases(path string) ([]TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cases []TestCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("decode test cases: %w", err)
	}
	return cases, nil
}
