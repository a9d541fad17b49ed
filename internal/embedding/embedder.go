package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Similarity embeds both texts and returns their cosine similarity in [-1, 1].
// A zero vector on either side yields 0.
func Similarity(ctx context.Context, e Embedder, a, b string) (float64, error) {
	va, err := e.Embed(ctx, a)
	if err != nil {
		return 0, fmt.Errorf("embed first text: %w", err)
	}
	vb, err := e.Embed(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("embed second text: %w", err)
	}
	return Cosine(va, vb)
}

// Cosine returns the cosine similarity of two equally sized vectors.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.New("vector dimension mismatch")
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, sim)), nil
}

// IsZero reports whether every component of v is zero.
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
