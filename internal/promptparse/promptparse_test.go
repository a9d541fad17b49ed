package promptparse

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestStripEnumeration(t *testing.T) {
	cases := map[string]string{
		"1. What is ML?":         "What is ML?",
		"2) What is supervised?": "What is supervised?",
		"(3) Why?":               "Why?",
		"Q4: How?":               "How?",
		"10. Ten":                "Ten",
		"- bullet":               "bullet",
		"* star":                 "star",
		"• dot":                  "dot",
		"   5 - spaced   ":       "spaced",
		"No marker here":         "No marker here",
		"3.5 GHz bands in use?":  "3.5 GHz bands in use?",
		"-dash":                  "-dash",
		"":                       "",
		"   ":                    "",
		"1.":                     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, StripEnumeration(in), "input %q", in)
	}
}

func TestLines(t *testing.T) {
	text := "1. What are the types?\n\n2) How does supervised learning work?\n   \n3. What is reinforcement learning?\n"
	assert.Equal(t, []string{
		"What are the types?",
		"How does supervised learning work?",
		"What is reinforcement learning?",
	}, Lines(text))

	assert.Empty(t, Lines(""))
	assert.Empty(t, Lines("\n \n1.\n"))
}

func TestRatings(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Rating
	}{
		{"well formed", "[0]=5 [1]=3 [2]=1", []Rating{{0, 5}, {1, 3}, {2, 1}}},
		{"garbage rating skipped", "[0]=5 [2]=3 [1]=garbage", []Rating{{0, 5}, {2, 3}}},
		{"no brackets", "0=4 1=2", []Rating{{0, 4}, {1, 2}}},
		{"trailing punctuation", "[0]=4, [1]=2.", []Rating{{0, 4}, {1, 2}}},
		{"prose ignored", "Ratings: [0]=2 are given", []Rating{{0, 2}}},
		{"bad index", "[x]=3 [1]=2", []Rating{{1, 2}}},
		{"missing rating", "[0]= [1]=4", []Rating{{1, 4}}},
		{"multiple equals", "[0]=1=2 [1]=3", []Rating{{1, 3}}},
		{"empty", "", nil},
		{"no tokens", "I cannot rate these.", nil},
		{"negative index kept", "[-1]=3", []Rating{{-1, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Ratings(tt.in))
		})
	}
}

func TestProperty_RatingsNeverPanics(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := rapid.String().Draw(rt, "in")
		for _, r := range Ratings(in) {
			_ = r.Index
		}
		_ = Lines(in)
	})
}

func TestProperty_RatingsRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(rt, "n")
		var want []Rating
		text := ""
		for i := 0; i < n; i++ {
			score := rapid.IntRange(1, 5).Draw(rt, "score")
			want = append(want, Rating{Index: i, Score: score})
			text += " [" + strconv.Itoa(i) + "]=" + strconv.Itoa(score)
		}
		assert.Equal(rt, want, Ratings(text))
	})
}
