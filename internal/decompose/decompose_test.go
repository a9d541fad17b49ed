package decompose

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"docqa/internal/generation"
)

type fakeGenerator struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, _ generation.Options) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func (f *fakeGenerator) Available(context.Context) bool { return f.err == nil }

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func TestAdaptiveCount(t *testing.T) {
	tests := []struct {
		words int
		want  int
	}{
		{0, 1},
		{5, 1},
		{10, 1},
		{19, 1},
		{20, 2},
		{29, 2},
		{45, 4},
		{50, 5},
		{200, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AdaptiveCount(words(tt.words)), "words=%d", tt.words)
	}
}

func TestDecompose_ParsesEnumeratedLines(t *testing.T) {
	gen := &fakeGenerator{response: "1. What is supervised learning?\n2. What is unsupervised learning?\n\n3) What is reinforcement learning?"}
	d := New(gen, nil)

	subs := d.Decompose(context.Background(), "What are the main types of machine learning?", 3)
	assert.Equal(t, []string{
		"What is supervised learning?",
		"What is unsupervised learning?",
		"What is reinforcement learning?",
	}, subs)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "into 3 atomic")
	assert.Contains(t, gen.prompts[0], "What are the main types of machine learning?")
}

func TestDecompose_PadsShortResponse(t *testing.T) {
	d := New(&fakeGenerator{response: "1. Only one"}, nil)
	assert.Equal(t, []string{"Only one", "q", "q"}, d.Decompose(context.Background(), "q", 3))
}

func TestDecompose_TruncatesLongResponse(t *testing.T) {
	d := New(&fakeGenerator{response: "a\nb\nc\nd"}, nil)
	assert.Equal(t, []string{"a", "b"}, d.Decompose(context.Background(), "q", 2))
}

func TestDecompose_ProviderFailure(t *testing.T) {
	d := New(&fakeGenerator{err: errors.New("connection refused")}, nil)
	assert.Equal(t, []string{"q", "q", "q"}, d.Decompose(context.Background(), "q", 3))
}

func TestDecompose_NonPositiveCount(t *testing.T) {
	d := New(&fakeGenerator{response: "x\ny"}, nil)
	assert.Equal(t, []string{"x"}, d.Decompose(context.Background(), "q", 0))
}

func TestDecomposeAdaptive_ShortQuery(t *testing.T) {
	gen := &fakeGenerator{response: "1. Rephrased"}
	subs := New(gen, nil).DecomposeAdaptive(context.Background(), "What is machine learning exactly?")
	assert.Len(t, subs, 1)
}

func TestDecomposeAdaptive_LongQuery(t *testing.T) {
	gen := &fakeGenerator{}
	subs := New(gen, nil).DecomposeAdaptive(context.Background(), words(45))
	assert.Len(t, subs, 4)
	assert.Contains(t, gen.prompts[0], "exactly 4 sub-questions")
}

func TestProperty_DecomposeLengthInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		count := rapid.IntRange(1, 12).Draw(rt, "count")
		response := rapid.String().Draw(rt, "response")
		fail := rapid.Bool().Draw(rt, "fail")
		gen := &fakeGenerator{response: response}
		if fail {
			gen.err = errors.New("down")
		}
		subs := New(gen, nil).Decompose(context.Background(), "original", count)
		assert.Len(rt, subs, count)
		for _, s := range subs {
			assert.NotEmpty(rt, strings.TrimSpace(s))
		}
	})
}

func TestProperty_AdaptiveCountBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 500).Draw(rt, "words")
		c := AdaptiveCount(words(n))
		assert.GreaterOrEqual(rt, c, 1)
		assert.LessOrEqual(rt, c, MaxSubQuestions)
	})
}
