package evaluation

import (
	"context"
	"math"
	"strings"

	"docqa/internal/embedding"
)

// RetrievalMetrics compare retrieved sources with ground-truth contexts.
type RetrievalMetrics struct {
	Accuracy  float64 `json:"retrieval_accuracy"`
	Precision float64 `json:"retrieval_precision"`
	F1        float64 `json:"retrieval_f1"`
}

// AnswerMetrics compare a generated answer with the query and ground truth.
type AnswerMetrics struct {
	Accuracy  float64 `json:"contextual_accuracy"`
	Precision float64 `json:"contextual_precision"`
	F1        float64 `json:"contextual_f1"`
}

type RetrievalScorer interface {
	ScoreRetrieval(groundTruth, retrieved []string) RetrievalMetrics
}

type AnswerScorer interface {
	ScoreAnswer(ctx context.Context, query, answer, groundTruth string) (AnswerMetrics, error)
}

// SubstringRetrieval matches strings when either contains the other,
// ignoring case.
type SubstringRetrieval struct{}

func (SubstringRetrieval) ScoreRetrieval(groundTruth, retrieved []string) RetrievalMetrics {
	accuracy := 1.0
	if len(groundTruth) > 0 {
		accuracy = matchFraction(groundTruth, retrieved)
	}
	precision := 1.0
	if len(retrieved) > 0 {
		precision = matchFraction(retrieved, groundTruth)
	}
	return RetrievalMetrics{
		Accuracy:  round4(accuracy),
		Precision: round4(precision),
		F1:        round4(f1(accuracy, precision)),
	}
}

// matchFraction is the share of items in from matching any item in against.
func matchFraction(from, against []string) float64 {
	matches := 0
	for _, a := range from {
		la := strings.ToLower(a)
		for _, b := range against {
			lb := strings.ToLower(b)
			if strings.Contains(lb, la) || strings.Contains(la, lb) {
				matches++
				break
			}
		}
	}
	return float64(matches) / float64(len(from))
}

// WordOverlap scores answers on lower-cased whitespace-split word sets.
type WordOverlap struct{}

func (WordOverlap) ScoreAnswer(_ context.Context, query, answer, groundTruth string) (AnswerMetrics, error) {
	q, a, g := wordSet(query), wordSet(answer), wordSet(groundTruth)
	accuracy := 0.0
	if len(q) > 0 {
		accuracy = float64(intersect(q, a)) / float64(len(q))
	}
	precision := 0.0
	if len(g) > 0 && len(a) > 0 {
		precision = float64(intersect(g, a)) / float64(len(a))
	}
	return AnswerMetrics{
		Accuracy:  round4(accuracy),
		Precision: round4(precision),
		F1:        round4(f1(accuracy, precision)),
	}, nil
}

// Semantic scores answers by embedding similarity: accuracy against the
// query and precision against the ground truth. Negative similarities count
// as zero.
type Semantic struct {
	Embedder embedding.Embedder
}

func (s Semantic) ScoreAnswer(ctx context.Context, query, answer, groundTruth string) (AnswerMetrics, error) {
	accuracy, err := embedding.Similarity(ctx, s.Embedder, query, answer)
	if err != nil {
		return AnswerMetrics{}, err
	}
	precision := 0.0
	if strings.TrimSpace(groundTruth) != "" {
		precision, err = embedding.Similarity(ctx, s.Embedder, groundTruth, answer)
		if err != nil {
			return AnswerMetrics{}, err
		}
	}
	accuracy, precision = math.Max(0, accuracy), math.Max(0, precision)
	return AnswerMetrics{
		Accuracy:  round4(accuracy),
		Precision: round4(precision),
		F1:        round4(f1(accuracy, precision)),
	}, nil
}

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	m := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		m[f] = struct{}{}
	}
	return m
}

func intersect(a, b map[string]struct{}) int {
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func f1(a, b float64) float64 {
	if a+b == 0 {
		return 0
	}
	return 2 * a * b / (a + b)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
