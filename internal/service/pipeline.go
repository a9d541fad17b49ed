package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docqa/internal/decompose"
	"docqa/internal/domain"
)

// AskOptions control one AnswerQuestion call.
type AskOptions struct {
	UseDecomposition bool
	// Adaptive sizes the decomposition from the query length and ignores
	// NumSubQuestions.
	Adaptive        bool
	NumSubQuestions int
	TopK            int
}

// DefaultAskOptions decompose adaptively and retrieve five passages per
// sub-question.
func DefaultAskOptions() AskOptions {
	return AskOptions{UseDecomposition: true, Adaptive: true, NumSubQuestions: 3, TopK: 5}
}

// run is the state of one pipeline execution.
type run struct {
	log    domain.ExecutionLog
	logger *zap.Logger
}

func (r *run) transition(to domain.State) {
	r.logger.Debug("state transition", zap.String("from", string(r.log.State)), zap.String("to", string(to)))
	r.log.State = to
}

func (r *run) record(step domain.Step) {
	r.log.Steps = append(r.log.Steps, step)
}

// AnswerQuestion runs decomposition, retrieval, reranking and synthesis. The
// only returned error is domain.ErrEmptyQuery; pipeline failures come back as
// an Answer with Success false and the trace in state error.
func (s *QAService) AnswerQuestion(ctx context.Context, query string, opts AskOptions) (*domain.Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	runID := uuid.NewString()
	r := &run{
		log: domain.ExecutionLog{
			RunID:     runID,
			Timestamp: time.Now().UTC(),
			Query:     query,
			State:     domain.StateDecomposing,
			Steps:     []domain.Step{},
		},
		logger: s.logger.With(zap.String("run_id", runID)),
	}
	r.logger.Info("answering question", zap.String("query", query), zap.Bool("decompose", opts.UseDecomposition))

	start := time.Now()
	subQuestions := []string{query}
	if opts.UseDecomposition {
		if opts.Adaptive {
			subQuestions = s.decomposer.DecomposeAdaptive(ctx, query)
		} else {
			n := opts.NumSubQuestions
			if n > decompose.MaxSubQuestions {
				n = decompose.MaxSubQuestions
			}
			subQuestions = s.decomposer.Decompose(ctx, query, n)
		}
	}
	r.record(domain.Step{Stage: domain.StageDecomposition, SubQuestions: subQuestions})
	s.metrics.ObserveStage(string(domain.StageDecomposition), time.Since(start))
	if err := ctx.Err(); err != nil {
		return s.fail(r, err), nil
	}

	r.transition(domain.StateRetrieving)
	start = time.Now()
	retrieved, err := s.retriever.RetrieveAll(ctx, subQuestions, opts.TopK)
	if err != nil {
		return s.fail(r, err), nil
	}
	total := len(retrieved.Pool)
	r.record(domain.Step{Stage: domain.StageRetrieval, TotalContexts: &total, Details: retrieved.Details})
	s.metrics.ObserveStage(string(domain.StageRetrieval), time.Since(start))
	r.logger.Debug("evidence retrieved", zap.Int("total_contexts", total))

	r.transition(domain.StateSynthesizing)
	start = time.Now()
	ranked := s.reranker.Rerank(ctx, query, retrieved.Pool)
	result, err := s.synthesizer.Synthesize(ctx, query, ranked, subQuestions)
	if err != nil {
		return s.fail(r, err), nil
	}
	used, confidence := result.ContextsUsed, result.Confidence
	r.record(domain.Step{Stage: domain.StageSynthesis, ContextsUsed: &used, Confidence: &confidence})
	s.metrics.ObserveStage(string(domain.StageSynthesis), time.Since(start))

	r.transition(domain.StateCompleted)
	answer := &domain.Answer{
		Success:      true,
		Query:        query,
		Answer:       result.Answer,
		Confidence:   result.Confidence,
		SubQuestions: result.SubQuestions,
		ContextsUsed: result.ContextsUsed,
		ExecutionLog: r.log,
	}
	if err := s.history.Append(ctx, *answer); err != nil {
		r.logger.Warn("recording answer in history failed", zap.Error(err))
	}
	s.metrics.RecordRun(string(domain.StateCompleted), answer.Confidence)
	r.logger.Info("question answered",
		zap.Int("contexts_used", answer.ContextsUsed),
		zap.Float64("confidence", answer.Confidence))
	return answer, nil
}

func (s *QAService) fail(r *run, err error) *domain.Answer {
	r.transition(domain.StateError)
	r.log.Error = err.Error()
	r.logger.Error("pipeline failed", zap.Error(err))
	s.metrics.RecordRun(string(domain.StateError), 0)
	return &domain.Answer{
		Success:      false,
		Query:        r.log.Query,
		Error:        err.Error(),
		ExecutionLog: r.log,
	}
}
