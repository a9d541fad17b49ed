package chunker

import (
	"strconv"
	"strings"
	"unicode"

	"docqa/internal/domain"
)

// WindowChunker cuts text into windows of at most size runes that overlap by
// overlap runes. Window ends are moved back to the nearest whitespace when one
// exists in the second half of the window.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) *WindowChunker {
	if size <= 0 {
		size = 1024
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &WindowChunker{size: size, overlap: overlap}
}

func (c *WindowChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	text := []rune(strings.TrimSpace(document.Content))
	if len(text) == 0 {
		return nil, nil
	}
	var chunks []domain.Chunk
	start := 0
	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			end = len(text)
		} else {
			for j := end; j > start+c.size/2; j-- {
				if unicode.IsSpace(text[j]) {
					end = j
					break
				}
			}
		}
		piece := strings.TrimSpace(string(text[start:end]))
		if piece != "" {
			chunks = append(chunks, newChunk(document, len(chunks), piece))
		}
		if end == len(text) {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks, nil
}

func newChunk(document domain.Document, idx int, text string) domain.Chunk {
	return domain.Chunk{
		DocumentID: document.ID,
		ChunkID:    document.ID + ":" + strconv.Itoa(idx),
		Source:     document.Source,
		DocType:    document.Type,
		Text:       text,
		Index:      idx,
	}
}
