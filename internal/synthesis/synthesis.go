// Package synthesis produces the final answer from reranked evidence.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"docqa/internal/generation"
)

// MaxContexts caps how many distinct passages are placed in the prompt.
const MaxContexts = 5

const (
	temperature = 0.7
	maxTokens   = 1024
)

// ErrEmptyAnswer is returned when the provider produced no answer text.
var ErrEmptyAnswer = errors.New("generation returned an empty answer")

const withSubQuestionsTemplate = `Based on the following contexts and sub-questions, provide a comprehensive answer to the original question.

Original Question: %s

Sub-questions considered:
%s

Available Contexts:
%s

Please provide:
1. A clear, comprehensive answer to the original question
2. Key findings from the contexts
3. Any relevant limitations or caveats

Answer:`

const plainTemplate = `Based on the following contexts, provide a comprehensive answer to the question.

Question: %s

Contexts:
%s

Please provide a clear, comprehensive answer based on the provided contexts.

Answer:`

// Result is the synthesized answer. Confidence is derived by the
// synthesizer's estimator and never set by callers.
type Result struct {
	Answer       string   `json:"answer"`
	ContextsUsed int      `json:"contexts_used"`
	Confidence   float64  `json:"confidence"`
	SubQuestions []string `json:"sub_questions"`
}

type Synthesizer struct {
	gen         generation.Provider
	estimator   ConfidenceEstimator
	maxContexts int
	logger      *zap.Logger
}

// Option customises a Synthesizer.
type Option func(*Synthesizer)

// WithEstimator replaces the surface-statistics confidence estimator.
func WithEstimator(e ConfidenceEstimator) Option {
	return func(s *Synthesizer) {
		if e != nil {
			s.estimator = e
		}
	}
}

// WithMaxContexts lowers the prompt context cap. Values outside
// [1, MaxContexts] are ignored.
func WithMaxContexts(n int) Option {
	return func(s *Synthesizer) {
		if n >= 1 && n <= MaxContexts {
			s.maxContexts = n
		}
	}
}

func New(gen generation.Provider, logger *zap.Logger, opts ...Option) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Synthesizer{
		gen:         gen,
		estimator:   SurfaceConfidence{},
		maxContexts: MaxContexts,
		logger:      logger.With(zap.String("component", "synthesizer")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize makes exactly one generation call. Provider failures and empty
// completions are returned as errors; there is no partial result.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, evidence []string, subQuestions []string) (*Result, error) {
	contexts := Select(evidence, s.maxContexts)
	text, err := s.gen.Generate(ctx, s.prompt(query, contexts, subQuestions), generation.Options{Temperature: temperature, MaxTokens: maxTokens})
	if err != nil {
		return nil, fmt.Errorf("synthesize answer: %w", err)
	}
	answer := strings.TrimSpace(text)
	if answer == "" {
		return nil, ErrEmptyAnswer
	}
	if subQuestions == nil {
		subQuestions = []string{}
	}
	res := &Result{
		Answer:       answer,
		ContextsUsed: len(contexts),
		Confidence:   s.estimator.Estimate(answer, len(evidence)),
		SubQuestions: subQuestions,
	}
	s.logger.Debug("answer synthesized",
		zap.Int("contexts_used", res.ContextsUsed),
		zap.Float64("confidence", res.Confidence))
	return res, nil
}

func (s *Synthesizer) prompt(query string, contexts, subQuestions []string) string {
	var ctxText strings.Builder
	for i, c := range contexts {
		if i > 0 {
			ctxText.WriteString("\n\n")
		}
		fmt.Fprintf(&ctxText, "[Context %d]: %s", i+1, c)
	}
	if len(subQuestions) == 0 {
		return fmt.Sprintf(plainTemplate, query, ctxText.String())
	}
	lines := make([]string, len(subQuestions))
	for i, q := range subQuestions {
		lines[i] = "- " + q
	}
	return fmt.Sprintf(withSubQuestionsTemplate, query, strings.Join(lines, "\n"), ctxText.String())
}

// Select drops blank and exact-duplicate passages, keeping first occurrence
// order, and returns at most limit of them.
func Select(evidence []string, limit int) []string {
	seen := make(map[string]struct{}, len(evidence))
	out := make([]string, 0, min(limit, len(evidence)))
	for _, e := range evidence {
		if len(out) == limit {
			break
		}
		if strings.TrimSpace(e) == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
