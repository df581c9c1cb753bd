// Package store persists document metadata, chunk text, and the query log
// in a local SQLite database. The vector index holds embeddings; this store
// is the source of truth for everything else, including the chunk text the
// retrieval engine resolves hit ids against.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
)

// Store is the persistence contract the pipeline depends on.
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateDocument inserts a document row. The (owner, fingerprint) pair
	// is unique; a duplicate insert fails.
	CreateDocument(ctx context.Context, doc qa.Document) error
	// FindByFingerprint returns the owner's document with the given content
	// hash, or nil when none exists.
	FindByFingerprint(ctx context.Context, ownerID, fingerprint string) (*qa.Document, error)
	// InsertChunks persists a document's chunks in one transaction.
	InsertChunks(ctx context.Context, chunks []qa.Chunk) error
	// ChunkTexts resolves chunk ids to their text for the given owner.
	// Unknown ids are simply absent from the result.
	ChunkTexts(ctx context.Context, ownerID string, chunkIDs []string) (map[string]string, error)
	// ListDocuments returns the owner's documents, newest first.
	ListDocuments(ctx context.Context, ownerID string) ([]qa.Document, error)
	// GetDocument returns one document, or nil when it does not exist or
	// belongs to a different owner.
	GetDocument(ctx context.Context, ownerID, documentID string) (*qa.Document, error)
	// DeleteDocument removes a document and its chunks. Deleting an unknown
	// document is not an error.
	DeleteDocument(ctx context.Context, ownerID, documentID string) error
	// DeleteOwner removes every row belonging to the owner.
	DeleteOwner(ctx context.Context, ownerID string) error
	// AppendQuery records one answered question in the query log.
	AppendQuery(ctx context.Context, rec qa.QueryRecord) error
	// RecentQueries returns the owner's most recent n log entries,
	// newest first.
	RecentQueries(ctx context.Context, ownerID string, n int) ([]qa.QueryRecord, error)
	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns the default database location, ~/.docqa/docqa.db,
// creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "docqa.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    id           TEXT    PRIMARY KEY,
    owner_id     TEXT    NOT NULL,
    filename     TEXT    NOT NULL,
    content_hash TEXT    NOT NULL,
    chunk_count  INTEGER NOT NULL,
    file_size    INTEGER NOT NULL,
    created_at   INTEGER NOT NULL,  -- Unix timestamp (seconds)
    UNIQUE (owner_id, content_hash)
);
CREATE INDEX IF NOT EXISTS idx_documents_owner
    ON documents (owner_id, created_at);

CREATE TABLE IF NOT EXISTS chunks (
    id           TEXT    PRIMARY KEY,
    document_id  TEXT    NOT NULL,
    owner_id     TEXT    NOT NULL,
    seq          INTEGER NOT NULL,
    text         TEXT    NOT NULL,
    text_hash    TEXT    NOT NULL,
    target_size  INTEGER NOT NULL,
    overlap      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_owner_document
    ON chunks (owner_id, document_id);

CREATE TABLE IF NOT EXISTS query_log (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id     TEXT    NOT NULL,
    question     TEXT    NOT NULL,
    answer       TEXT    NOT NULL,
    response_ms  INTEGER NOT NULL,
    chunks_used  INTEGER NOT NULL,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_log_owner_created
    ON query_log (owner_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// CreateDocument inserts a document row.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc qa.Document) error {
	const q = `
INSERT INTO documents (id, owner_id, filename, content_hash, chunk_count, file_size, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, q,
		doc.ID, doc.OwnerID, doc.Filename, doc.Fingerprint, doc.ChunkCount, doc.Size, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("store: create document: %w", err)
	}
	return nil
}

// FindByFingerprint returns the owner's document with the given content
// hash, or nil when none exists.
func (s *SQLiteStore) FindByFingerprint(ctx context.Context, ownerID, fingerprint string) (*qa.Document, error) {
	const q = `
SELECT id, owner_id, filename, content_hash, chunk_count, file_size, created_at
FROM   documents
WHERE  owner_id = ? AND content_hash = ?`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, q, ownerID, fingerprint))
	if err != nil {
		return nil, fmt.Errorf("store: find by fingerprint: %w", err)
	}
	return doc, nil
}

// InsertChunks persists a document's chunks in one transaction.
func (s *SQLiteStore) InsertChunks(ctx context.Context, chunks []qa.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: insert chunks begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	const q = `
INSERT INTO chunks (id, document_id, owner_id, seq, text, text_hash, target_size, overlap)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	for _, c := range chunks {
		_, err := tx.ExecContext(ctx, q,
			c.ID, c.DocumentID, c.OwnerID, c.Seq, c.Text, c.Fingerprint, c.TargetSize, c.Overlap)
		if err != nil {
			return fmt.Errorf("store: insert chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: insert chunks commit: %w", err)
	}
	return nil
}

// ChunkTexts resolves chunk ids to text for the given owner. The owner
// predicate keeps a stale or hostile id list from reading foreign chunks.
func (s *SQLiteStore) ChunkTexts(ctx context.Context, ownerID string, chunkIDs []string) (map[string]string, error) {
	if len(chunkIDs) == 0 {
		return map[string]string{}, nil
	}

	placeholders := strings.Repeat("?,", len(chunkIDs))
	placeholders = placeholders[:len(placeholders)-1]
	q := `SELECT id, text FROM chunks WHERE owner_id = ? AND id IN (` + placeholders + `)`

	args := make([]any, 0, len(chunkIDs)+1)
	args = append(args, ownerID)
	for _, id := range chunkIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: chunk texts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string, len(chunkIDs))
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("store: chunk texts scan: %w", err)
		}
		out[id] = text
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: chunk texts rows: %w", err)
	}
	return out, nil
}

// ListDocuments returns the owner's documents, newest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, ownerID string) ([]qa.Document, error) {
	const q = `
SELECT id, owner_id, filename, content_hash, chunk_count, file_size, created_at
FROM   documents
WHERE  owner_id = ?
ORDER  BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()

	var docs []qa.Document
	for rows.Next() {
		doc, err := scanDocumentRow(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list documents scan: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list documents rows: %w", err)
	}
	return docs, nil
}

// GetDocument returns one of the owner's documents, or nil when absent.
func (s *SQLiteStore) GetDocument(ctx context.Context, ownerID, documentID string) (*qa.Document, error) {
	const q = `
SELECT id, owner_id, filename, content_hash, chunk_count, file_size, created_at
FROM   documents
WHERE  owner_id = ? AND id = ?`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, q, ownerID, documentID))
	if err != nil {
		return nil, fmt.Errorf("store: get document: %w", err)
	}
	return doc, nil
}

// DeleteDocument removes a document and its chunks in one transaction.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete document begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE owner_id = ? AND document_id = ?`, ownerID, documentID); err != nil {
		return fmt.Errorf("store: delete document chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE owner_id = ? AND id = ?`, ownerID, documentID); err != nil {
		return fmt.Errorf("store: delete document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete document commit: %w", err)
	}
	return nil
}

// DeleteOwner removes every row belonging to the owner: documents, chunks,
// and query history.
func (s *SQLiteStore) DeleteOwner(ctx context.Context, ownerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete owner begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for _, q := range []string{
		`DELETE FROM chunks WHERE owner_id = ?`,
		`DELETE FROM documents WHERE owner_id = ?`,
		`DELETE FROM query_log WHERE owner_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, ownerID); err != nil {
			return fmt.Errorf("store: delete owner: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete owner commit: %w", err)
	}
	return nil
}

// AppendQuery records one answered question in the query log.
func (s *SQLiteStore) AppendQuery(ctx context.Context, rec qa.QueryRecord) error {
	const q = `
INSERT INTO query_log (owner_id, question, answer, response_ms, chunks_used, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, q,
		rec.OwnerID, rec.Question, rec.Answer, rec.Elapsed.Milliseconds(), rec.ChunksUsed, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("store: append query: %w", err)
	}
	return nil
}

// RecentQueries returns the owner's most recent n log entries, newest first.
func (s *SQLiteStore) RecentQueries(ctx context.Context, ownerID string, n int) ([]qa.QueryRecord, error) {
	const q = `
SELECT owner_id, question, answer, response_ms, chunks_used, created_at
FROM   query_log
WHERE  owner_id = ?
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, ownerID, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent queries: %w", err)
	}
	defer rows.Close()

	var recs []qa.QueryRecord
	for rows.Next() {
		var rec qa.QueryRecord
		var ms, ts int64
		if err := rows.Scan(&rec.OwnerID, &rec.Question, &rec.Answer, &ms, &rec.ChunksUsed, &ts); err != nil {
			return nil, fmt.Errorf("store: recent queries scan: %w", err)
		}
		rec.Elapsed = time.Duration(ms) * time.Millisecond
		rec.CreatedAt = time.Unix(ts, 0)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent queries rows: %w", err)
	}
	return recs, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows for the document scans.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocumentRow(r rowScanner) (qa.Document, error) {
	var doc qa.Document
	var ts int64
	err := r.Scan(&doc.ID, &doc.OwnerID, &doc.Filename, &doc.Fingerprint, &doc.ChunkCount, &doc.Size, &ts)
	if err != nil {
		return qa.Document{}, err
	}
	doc.CreatedAt = time.Unix(ts, 0)
	return doc, nil
}

func scanDocument(row *sql.Row) (*qa.Document, error) {
	doc, err := scanDocumentRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
