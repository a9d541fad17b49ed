// Package retrieve runs retrieval for every sub-question and merges the
// passages into one evidence pool.
package retrieve

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docqa/internal/domain"
)

// Searcher finds the passages closest to a text query.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error)
}

// Result is the merged evidence of one retrieval stage.
type Result struct {
	// Pool holds passage texts in sub-question order, then index rank order.
	// Duplicates across sub-questions are kept.
	Pool    []string
	Items   []domain.SearchResult
	Details []domain.RetrievalDetail
}

// Retriever issues one search per sub-question concurrently.
type Retriever struct {
	searcher Searcher
	logger   *zap.Logger
}

func New(searcher Searcher, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{searcher: searcher, logger: logger.With(zap.String("component", "retriever"))}
}

// RetrieveAll never fails because of the index: a sub-question whose search
// errors contributes no passages and records the error in its detail. Only a
// cancelled context is returned as an error.
func (r *Retriever) RetrieveAll(ctx context.Context, subQuestions []string, topK int) (Result, error) {
	perQuestion := make([][]domain.SearchResult, len(subQuestions))
	errs := make([]error, len(subQuestions))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range subQuestions {
		i, q := i, q
		g.Go(func() error {
			res, err := r.searcher.Search(gctx, q, topK)
			if err != nil {
				errs[i] = err
				return nil
			}
			perQuestion[i] = res
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var out Result
	out.Details = make([]domain.RetrievalDetail, len(subQuestions))
	for i, q := range subQuestions {
		detail := domain.RetrievalDetail{SubQuestion: q, Sources: []string{}}
		if errs[i] != nil {
			r.logger.Warn("retrieval failed for sub-question", zap.String("sub_question", q), zap.Error(errs[i]))
			detail.Error = errs[i].Error()
		}
		for _, item := range perQuestion[i] {
			out.Pool = append(out.Pool, item.Chunk.Text)
			out.Items = append(out.Items, item)
			detail.Sources = append(detail.Sources, sourceOf(item.Chunk))
		}
		detail.RetrievedCount = len(perQuestion[i])
		out.Details[i] = detail
	}
	return out, nil
}

func sourceOf(c domain.Chunk) string {
	if c.Source == "" {
		return "unknown"
	}
	return c.Source
}
