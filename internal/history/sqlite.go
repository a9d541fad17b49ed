package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"docqa/internal/domain"
)

// SQLite persists answers to a SQLite database so that history survives
// restarts.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dsn and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS answers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    query TEXT NOT NULL,
    success INTEGER NOT NULL,
    confidence REAL NOT NULL DEFAULT 0,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_answers_run ON answers(run_id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate history database: %w", err)
	}
	return nil
}

func (s *SQLite) Append(ctx context.Context, answer domain.Answer) error {
	payload, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("failed to encode answer: %w", err)
	}
	createdAt := answer.ExecutionLog.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO answers (run_id, query, success, confidence, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		answer.ExecutionLog.RunID,
		answer.Query,
		answer.Success,
		answer.Confidence,
		string(payload),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert answer: %w", err)
	}
	return nil
}

func (s *SQLite) Recent(ctx context.Context, limit int) ([]domain.Answer, error) {
	query := `SELECT payload FROM (SELECT id, payload FROM answers ORDER BY id DESC LIMIT ?) ORDER BY id ASC`
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer rows.Close()

	var out []domain.Answer
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		var a domain.Answer
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("failed to decode answer: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
