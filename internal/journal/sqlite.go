// Package journal provides the SQLite processing journal: the persisted
// daily id sequence and a per-page outcome trail for auditing.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a SQLite-backed journal.
type Store struct {
	db *sql.DB
}

// PageRecord is one journaled page outcome.
type PageRecord struct {
	CandidateID string    `json:"candidate_id"`
	SourcePath  string    `json:"source_path"`
	Outcome     string    `json:"outcome"`
	DocumentID  string    `json:"document_id"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Open opens or creates the journal database at dbPath and initializes the
// schema. Parent directories are created if they do not exist.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sequence (
		day TEXT PRIMARY KEY,
		last INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		candidate_id TEXT,
		source_path TEXT,
		outcome TEXT NOT NULL,
		document_id TEXT,
		detail TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_pages_document_id ON pages(document_id);
	CREATE INDEX IF NOT EXISTS idx_pages_created_at ON pages(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// LastSequence returns the highest sequence number issued for day, zero when
// the day is unseen.
func (s *Store) LastSequence(day string) (int, error) {
	var last int
	err := s.db.QueryRow(`SELECT last FROM sequence WHERE day = ?`, day).Scan(&last)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence: %w", err)
	}
	return last, nil
}

// SetSequence records the highest sequence number issued for day.
func (s *Store) SetSequence(day string, n int) error {
	_, err := s.db.Exec(
		`INSERT INTO sequence (day, last) VALUES (?, ?)
		 ON CONFLICT(day) DO UPDATE SET last = excluded.last`, day, n)
	if err != nil {
		return fmt.Errorf("failed to persist sequence: %w", err)
	}
	return nil
}

// RecordPage appends one page outcome to the trail.
func (s *Store) RecordPage(candidateID, sourcePath, outcome, documentID, detail string) error {
	_, err := s.db.Exec(
		`INSERT INTO pages (candidate_id, source_path, outcome, document_id, detail)
		 VALUES (?, ?, ?, ?, ?)`,
		candidateID, sourcePath, outcome, documentID, detail)
	if err != nil {
		return fmt.Errorf("failed to record page: %w", err)
	}
	return nil
}

// PagesForDocument returns the journaled outcomes that touched one
// document, oldest first.
func (s *Store) PagesForDocument(documentID string) ([]PageRecord, error) {
	rows, err := s.db.Query(
		`SELECT candidate_id, source_path, outcome, document_id, detail, created_at
		 FROM pages WHERE document_id = ? ORDER BY id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var records []PageRecord
	for rows.Next() {
		var r PageRecord
		if err := rows.Scan(&r.CandidateID, &r.SourcePath, &r.Outcome, &r.DocumentID, &r.Detail, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
