// Package loader reads evidence documents from the filesystem.
package loader

import (
	"crypto/sha1"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"docqa/internal/domain"
)

// ErrUnsupportedFormat is returned for files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrNoDocuments is returned when nothing loadable matched the inputs.
var ErrNoDocuments = errors.New("no supported documents found")

// Supported lists the file extensions Load understands.
var Supported = []string{".txt", ".md", ".csv", ".json"}

// LoadPaths expands each path as a glob and loads every supported file.
// Unsupported files reached through a glob are skipped; an unsupported file
// named explicitly is an error. A pattern matching nothing contributes no
// documents.
func LoadPaths(paths []string) ([]domain.Document, error) {
	var docs []domain.Document
	for _, p := range paths {
		explicit := !hasMeta(p)
		matches := []string{p}
		if !explicit {
			var err error
			matches, err = filepath.Glob(p)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p, err)
			}
		}
		for _, m := range matches {
			if !IsSupported(m) {
				if explicit {
					return nil, fmt.Errorf("%s: %w", m, ErrUnsupportedFormat)
				}
				continue
			}
			loaded, err := LoadFile(m)
			if err != nil {
				return nil, err
			}
			docs = append(docs, loaded...)
		}
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	return docs, nil
}

// hasMeta mirrors the metacharacter set of filepath.Match.
func hasMeta(path string) bool {
	magic := `*?[`
	if runtime.GOOS != "windows" {
		magic = `*?[\`
	}
	return strings.ContainsAny(path, magic)
}

// IsSupported reports whether path has a loadable extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range Supported {
		if ext == s {
			return true
		}
	}
	return false
}

// LoadFile reads one file. JSON files hold an array of evidence records;
// every other format yields a single document.
func LoadFile(path string) ([]domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return []domain.Document{{ID: hashString(path), Source: path, Type: "text", Content: string(data)}}, nil
	case ".csv":
		table, rows, err := csvToMarkdown(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return []domain.Document{{
			ID:       hashString(path),
			Source:   path,
			Type:     "table",
			Content:  table,
			Metadata: map[string]string{"rows": fmt.Sprint(rows)},
		}}, nil
	case ".json":
		return decodeRecords(path, data)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

func decodeRecords(path string, data []byte) ([]domain.Document, error) {
	var records []domain.Document
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%s: decode evidence records: %w", path, err)
	}
	out := records[:0]
	for i, r := range records {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		if r.Source == "" {
			r.Source = path
		}
		if r.Type == "" {
			r.Type = "text"
		}
		if r.ID == "" {
			r.ID = hashString(fmt.Sprintf("%s#%d", path, i))
		}
		out = append(out, r)
	}
	return out, nil
}

// csvToMarkdown renders a CSV table as a markdown table so that header names
// stay next to their values after chunking.
func csvToMarkdown(text string) (string, int, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return "", 0, err
	}
	if len(rows) == 0 {
		return "", 0, nil
	}
	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("| ")
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString(" |\n")
	}
	writeRow(rows[0])
	sep := make([]string, len(rows[0]))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(sep)
	for _, row := range rows[1:] {
		writeRow(row)
	}
	return strings.TrimRight(b.String(), "\n"), len(rows) - 1, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
