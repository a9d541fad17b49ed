// Package summarizer produces extractive summaries of loaded documents.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var (
	tokenPattern    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// DefaultMaxSentences is used when a non-positive limit is requested.
const DefaultMaxSentences = 5

// FrequencySummarizer ranks sentences by word frequency (stopwords filtered).
type FrequencySummarizer struct {
	stopwords map[string]struct{}
}

// NewFrequencySummarizer creates a frequency-based sentence ranker summarizer.
func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{stopwords: defaultStopwords()}
}

// Summarize picks the maxSentences highest scoring sentences and returns them
// in document order. Text without sentence punctuation is returned trimmed.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	sentences := sentencePattern.FindAllString(text, -1)
	if len(sentences) == 0 {
		return strings.TrimSpace(text), nil
	}

	tokenized := make([][]string, len(sentences))
	freq := map[string]float64{}
	for i, sent := range sentences {
		tokenized[i] = tokens(sent)
		for _, tok := range tokenized[i] {
			if _, ok := s.stopwords[tok]; ok {
				continue
			}
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, toks := range tokenized {
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
		}
		// sqrt length normalisation keeps long sentences from dominating
		if l := float64(len(toks)); l > 0 {
			score /= math.Sqrt(l)
		}
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}
	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)

	out := make([]string, 0, len(selected))
	for _, idx := range selected {
		out = append(out, strings.TrimSpace(sentences[idx]))
	}
	return strings.Join(out, " "), nil
}

func tokens(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now", "which", "also", "has", "have",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
