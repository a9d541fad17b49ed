// Package rerank orders an evidence pool by relevance ratings obtained from a
// generation provider acting as a judge.
package rerank

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"docqa/internal/generation"
	"docqa/internal/promptparse"
)

const (
	// DefaultPreviewChars bounds how much of each passage is shown to the judge.
	DefaultPreviewChars = 200
	temperature         = 0.1
	maxTokens           = 50
)

const promptTemplate = `Rate the relevance of each context to the question on a scale of 1-5.

Question: %s

Contexts:
%s

Provide only the ratings as: [0]=X [1]=Y [2]=Z etc. Do not explain.`

// Reranker never fails; on provider errors the pool order is kept.
type Reranker struct {
	gen          generation.Provider
	previewChars int
	logger       *zap.Logger
}

func New(gen generation.Provider, previewChars int, logger *zap.Logger) *Reranker {
	if previewChars <= 0 {
		previewChars = DefaultPreviewChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reranker{gen: gen, previewChars: previewChars, logger: logger.With(zap.String("component", "reranker"))}
}

// Rerank returns pool ordered by rating. Pools of zero or one item are
// returned as is without calling the provider.
func (r *Reranker) Rerank(ctx context.Context, query string, pool []string) []string {
	if len(pool) <= 1 {
		return pool
	}
	text, err := r.gen.Generate(ctx, r.prompt(query, pool), generation.Options{Temperature: temperature, MaxTokens: maxTokens})
	if err != nil {
		r.logger.Warn("rerank failed, keeping retrieval order", zap.Error(err))
		return pool
	}
	ratings := promptparse.Ratings(text)
	if len(ratings) == 0 {
		r.logger.Warn("no ratings parsed, keeping retrieval order", zap.String("response", text))
		return pool
	}
	return Order(pool, ratings)
}

func (r *Reranker) prompt(query string, pool []string) string {
	var b strings.Builder
	for i, c := range pool {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d]: %s...", i, preview(c, r.previewChars))
	}
	return fmt.Sprintf(promptTemplate, query, b.String())
}

// Order sorts pool by descending rating. Rated indexes keep their parse order
// on ties (a repeated index keeps its first position and its last rating).
// Unrated items count as rating 0 and follow every rated item in pool order.
// Out-of-range indexes are ignored.
func Order(pool []string, ratings []promptparse.Rating) []string {
	type rated struct {
		idx   int
		score int
	}
	pos := make(map[int]int)
	var ranked []rated
	for _, r := range ratings {
		if r.Index < 0 || r.Index >= len(pool) {
			continue
		}
		if p, ok := pos[r.Index]; ok {
			ranked[p].score = r.Score
			continue
		}
		pos[r.Index] = len(ranked)
		ranked = append(ranked, rated{idx: r.Index, score: r.Score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]string, 0, len(pool))
	for _, r := range ranked {
		out = append(out, pool[r.idx])
	}
	for i, c := range pool {
		if _, ok := pos[i]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
