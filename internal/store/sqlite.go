// Package store persists everything Tablecast keeps per document: the host
// snapshots (form structure, sheet data), received submissions, the
// document-scoped property bag, and recurring-trigger registrations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tablecast/tablecast/internal/document"
)

// SQLiteStore is the SQLite-backed document database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath, applies pragmas
// and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// PutForm stores or replaces a form snapshot.
func (s *SQLiteStore) PutForm(ctx context.Context, form *document.Form) error {
	payload, err := json.Marshal(form)
	if err != nil {
		return fmt.Errorf("encode form: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO form_documents (doc_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, form.ID, payload, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store form: %w", err)
	}
	return nil
}

// GetForm loads a form snapshot. Returns ErrNotFound when the document has
// never been pushed by the host.
func (s *SQLiteStore) GetForm(ctx context.Context, docID string) (*document.Form, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM form_documents WHERE doc_id = ?", docID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load form: %w", err)
	}
	var form document.Form
	if err := json.Unmarshal(payload, &form); err != nil {
		return nil, fmt.Errorf("decode form: %w", err)
	}
	return &form, nil
}

// PutSheetDocument stores or replaces a spreadsheet snapshot.
func (s *SQLiteStore) PutSheetDocument(ctx context.Context, doc *document.SheetDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode sheet document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sheet_documents (doc_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, doc.ID, payload, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store sheet document: %w", err)
	}
	return nil
}

// GetSheetDocument loads a spreadsheet snapshot.
func (s *SQLiteStore) GetSheetDocument(ctx context.Context, docID string) (*document.SheetDocument, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM sheet_documents WHERE doc_id = ?", docID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load sheet document: %w", err)
	}
	var doc document.SheetDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode sheet document: %w", err)
	}
	return &doc, nil
}

// AddSubmission records a form submission. Re-delivery of the same
// submission ID replaces the stored copy.
func (s *SQLiteStore) AddSubmission(ctx context.Context, docID string, sub *document.Submission) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO submissions (id, doc_id, payload, received_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload
	`, sub.ID, docID, payload, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store submission: %w", err)
	}
	return nil
}

// GetSubmission loads one submission by ID.
func (s *SQLiteStore) GetSubmission(ctx context.Context, docID, subID string) (*document.Submission, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM submissions WHERE doc_id = ? AND id = ?", docID, subID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load submission: %w", err)
	}
	var sub document.Submission
	if err := json.Unmarshal(payload, &sub); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	return &sub, nil
}

// Submissions lists a document's submissions in arrival order.
func (s *SQLiteStore) Submissions(ctx context.Context, docID string) ([]*document.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM submissions WHERE doc_id = ? ORDER BY received_at, id", docID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []*document.Submission
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		var sub document.Submission
		if err := json.Unmarshal(payload, &sub); err != nil {
			return nil, fmt.Errorf("decode submission: %w", err)
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// GetProperty reads a document-scoped property blob. found is false when
// nothing has been stored under the key.
func (s *SQLiteStore) GetProperty(ctx context.Context, docID, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM document_properties WHERE doc_id = ? AND key = ?", docID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load property %s: %w", key, err)
	}
	return value, true, nil
}

// SetProperty replaces a document-scoped property blob wholesale.
func (s *SQLiteStore) SetProperty(ctx context.Context, docID, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_properties (doc_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(doc_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, docID, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store property %s: %w", key, err)
	}
	return nil
}

// EnsureTrigger registers the recurring submission trigger for a document.
// Registration is idempotent: a second call leaves the existing row alone,
// so a document never holds more than one trigger.
func (s *SQLiteStore) EnsureTrigger(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_triggers (doc_id, created_at)
		VALUES (?, ?)
		ON CONFLICT(doc_id) DO NOTHING
	`, docID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("register trigger: %w", err)
	}
	return nil
}

// TriggerCount returns the number of triggers registered for a document
// (zero or one by construction).
func (s *SQLiteStore) TriggerCount(ctx context.Context, docID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sync_triggers WHERE doc_id = ?", docID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count triggers: %w", err)
	}
	return count, nil
}
