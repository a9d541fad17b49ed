// Package decompose splits a question into atomic sub-questions with a
// generation provider.
package decompose

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"docqa/internal/generation"
	"docqa/internal/promptparse"
)

const (
	// MaxSubQuestions caps adaptive decomposition.
	MaxSubQuestions = 5
	temperature     = 0.3
	maxTokens       = 512
)

const promptTemplate = `Decompose the following user question into %d atomic, specific sub-questions that would help answer the original question. Each sub-question should be independent and answerable.

Original Question: %s

Provide exactly %d sub-questions, one per line, numbered 1-%d. Do not include the number in your response, just the questions.`

// Decomposer never fails: provider errors and short responses are padded with
// the original query.
type Decomposer struct {
	gen    generation.Provider
	logger *zap.Logger
}

func New(gen generation.Provider, logger *zap.Logger) *Decomposer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decomposer{gen: gen, logger: logger.With(zap.String("component", "decomposer"))}
}

// Decompose returns exactly count sub-questions (count < 1 is treated as 1).
func (d *Decomposer) Decompose(ctx context.Context, query string, count int) []string {
	if count < 1 {
		count = 1
	}
	prompt := fmt.Sprintf(promptTemplate, count, query, count, count)
	text, err := d.gen.Generate(ctx, prompt, generation.Options{Temperature: temperature, MaxTokens: maxTokens})
	if err != nil {
		d.logger.Warn("decomposition failed, falling back to original query", zap.Error(err))
		text = ""
	}
	subs := Fit(promptparse.Lines(text), query, count)
	d.logger.Debug("query decomposed", zap.Int("requested", count), zap.Strings("sub_questions", subs))
	return subs
}

// DecomposeAdaptive sizes the decomposition from the query's word count.
func (d *Decomposer) DecomposeAdaptive(ctx context.Context, query string) []string {
	return d.Decompose(ctx, query, AdaptiveCount(query))
}

// AdaptiveCount is clamp(1, 5, floor((words-10)/10)+1).
func AdaptiveCount(query string) int {
	words := len(strings.Fields(query))
	n := floorDiv(words-10, 10) + 1
	if n < 1 {
		return 1
	}
	if n > MaxSubQuestions {
		return MaxSubQuestions
	}
	return n
}

// Fit truncates or pads parsed with query so that its length is count.
func Fit(parsed []string, query string, count int) []string {
	out := make([]string, 0, count)
	for _, s := range parsed {
		if len(out) == count {
			break
		}
		out = append(out, s)
	}
	for len(out) < count {
		out = append(out, query)
	}
	return out
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
