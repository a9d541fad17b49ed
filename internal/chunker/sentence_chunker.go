package chunker

import (
	"regexp"
	"strings"

	"docqa/internal/domain"
)

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	sentences := c.splitter.FindAllString(document.Content, -1)
	if len(sentences) == 0 {
		trimmed := strings.TrimSpace(document.Content)
		if trimmed == "" {
			return nil, nil
		}
		sentences = []string{trimmed}
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}
	var chunks []domain.Chunk
	i := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, newChunk(document, len(chunks), strings.Join(sentences[i:end], " ")))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks, nil
}
