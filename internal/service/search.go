package service

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/embedding"
)

// Search embeds query and asks the index for its nearest chunks. When the
// query embeds to a zero vector or every hit scores zero, it falls back to a
// lexical overlap ranking of the loaded chunks.
func (s *QAService) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	vec, err := s.embedder.Embed(ctx, query)
	s.metrics.RecordProviderCall("embed", err)
	if err != nil {
		return nil, err
	}
	if embedding.IsZero(vec) {
		return s.lexicalSearch(query, topK), nil
	}
	res, err := s.store.Search(ctx, vec, topK)
	s.metrics.RecordProviderCall("search", err)
	if err != nil {
		return nil, err
	}
	allZero := true
	for _, r := range res {
		if r.Score > 1e-9 {
			allZero = false
			break
		}
	}
	if allZero {
		return s.lexicalSearch(query, topK), nil
	}
	return res, nil
}

var unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// lexicalSearch ranks chunks by Ochiai overlap with the query tokens. Chunks
// sharing no token with the query are not returned.
func (s *QAService) lexicalSearch(query string, topK int) []domain.SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	qset := toTokenSet(query)
	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, 0, len(s.chunks))
	for i, ch := range s.chunks {
		if sc := overlapOchiai(qset, ch.Text); sc > 0 {
			scores = append(scores, pair{i, sc})
		}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if topK <= 0 {
		topK = 5
	}
	if topK > len(scores) {
		topK = len(scores)
	}
	out := make([]domain.SearchResult, 0, topK)
	for _, p := range scores[:topK] {
		out = append(out, domain.SearchResult{Chunk: s.chunks[p.idx], Score: p.score})
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over distinct tokens.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	stoks := unicodeWordRe.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, len(stoks))
	inter := 0
	for _, t := range stoks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}
