// Package sqlite persists documents and the interaction log in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"autoqa/internal/domain"
)

var (
	_ domain.DocumentStore  = (*Store)(nil)
	_ domain.InteractionLog = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	title        TEXT NOT NULL,
	url          TEXT NOT NULL UNIQUE,
	content      TEXT NOT NULL,
	content_hash TEXT NOT NULL UNIQUE,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS interactions (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	ts              TEXT NOT NULL,
	question        TEXT NOT NULL,
	answer          TEXT NOT NULL,
	sources_json    TEXT NOT NULL,
	success         INTEGER NOT NULL,
	response_ms     INTEGER NOT NULL,
	threshold_after REAL NOT NULL,
	confidence      REAL NOT NULL,
	backend         TEXT NOT NULL
);
`

// Store is the SQLite-backed document store and interaction log.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies the schema.
// The special path ":memory:" keeps everything in a single in-memory connection.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// AppendDocument inserts doc unless its URL or content hash is already stored.
func (s *Store) AppendDocument(ctx context.Context, doc domain.Document) (bool, error) {
	created := doc.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO documents (title, url, content, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		doc.Title, doc.URL, doc.Content, domain.ContentHash(doc.Content), created.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("inserting document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting document: %w", err)
	}
	return n == 1, nil
}

// AllDocuments returns every document in insertion order.
func (s *Store) AllDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, url, content, created_at FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var d domain.Document
		var created string
		if err := rows.Scan(&d.ID, &d.Title, &d.URL, &d.Content, &created); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// CountDocuments returns the number of stored documents.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// AppendInteraction records one answered question.
func (s *Store) AppendInteraction(ctx context.Context, in domain.Interaction) error {
	sources := in.Sources
	if sources == nil {
		sources = []string{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshaling sources: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interactions
			(id, ts, question, answer, sources_json, success, response_ms, threshold_after, confidence, backend)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.Timestamp.UTC().Format(time.RFC3339Nano), in.Question, in.Answer, string(sourcesJSON),
		boolToInt(in.Success), in.ResponseTime.Milliseconds(), in.ThresholdAfter, in.Confidence, in.Backend,
	)
	if err != nil {
		return fmt.Errorf("inserting interaction: %w", err)
	}
	return nil
}

// LastInteraction returns the most recent interaction or domain.ErrNotFound.
func (s *Store) LastInteraction(ctx context.Context) (*domain.Interaction, error) {
	list, err := s.ListInteractions(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.ErrNotFound
	}
	return &list[0], nil
}

// ListInteractions returns at most limit interactions, newest first.
func (s *Store) ListInteractions(ctx context.Context, limit int) ([]domain.Interaction, error) {
	if limit <= 0 {
		return []domain.Interaction{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, question, answer, sources_json, success, response_ms, threshold_after, confidence, backend
		FROM interactions ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying interactions: %w", err)
	}
	defer rows.Close()

	out := []domain.Interaction{}
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// CountInteractions returns the number of logged interactions.
func (s *Store) CountInteractions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting interactions: %w", err)
	}
	return n, nil
}

func scanInteraction(rows *sql.Rows) (domain.Interaction, error) {
	var (
		in          domain.Interaction
		ts          string
		sourcesJSON string
		success     int
		responseMS  int64
	)
	err := rows.Scan(&in.ID, &ts, &in.Question, &in.Answer, &sourcesJSON, &success, &responseMS,
		&in.ThresholdAfter, &in.Confidence, &in.Backend)
	if err != nil {
		return in, fmt.Errorf("scanning interaction: %w", err)
	}
	in.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	in.Success = success != 0
	in.ResponseTime = time.Duration(responseMS) * time.Millisecond
	if err := json.Unmarshal([]byte(sourcesJSON), &in.Sources); err != nil {
		return in, fmt.Errorf("decoding sources: %w", errors.Join(domain.ErrInvalidInput, err))
	}
	return in, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
