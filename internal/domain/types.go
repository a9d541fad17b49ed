package domain

import "errors"

// ErrEmptyQuery is returned when a question is blank before the pipeline starts.
var ErrEmptyQuery = errors.New("query must not be empty")

// Document is one evidence record loaded into the system.
type Document struct {
	ID       string            `json:"id,omitempty"`
	Source   string            `json:"source"`
	Type     string            `json:"type,omitempty"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Chunk is a retrievable part of a document. Source is carried through
// indexing so that every passage can be traced back to its document.
type Chunk struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	Source     string `json:"source"`
	DocType    string `json:"doc_type,omitempty"`
	Text       string `json:"text"`
	Index      int    `json:"index"`
}

// SearchResult is a passage returned by the retrieval index together with its
// closeness score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
