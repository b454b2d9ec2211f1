package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/diagramguard/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows, so they go through QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

const documentColumns = "id, title, mode, candidates, accepted, rules_version, created_at, updated_at"

// SaveDocument inserts doc or replaces the stored row with the same ID. An
// empty ID is filled with a fresh UUID; CreatedAt survives a replace.
func (s *LibSQLStore) SaveDocument(ctx context.Context, doc *Document) error {
	if doc == nil {
		return schema.NewError(schema.ErrCodeInvalidInput, "document is nil")
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Mode == "" {
		doc.Mode = "sections"
	}

	candidates, err := encodeSet(doc.Candidates)
	if err != nil {
		return fmt.Errorf("marshal candidates: %w", err)
	}
	accepted, err := encodeSet(doc.Accepted)
	if err != nil {
		return fmt.Errorf("marshal accepted: %w", err)
	}

	now := time.Now().UTC()
	doc.CreatedAt = timeOrNow(doc.CreatedAt)
	doc.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title=excluded.title, mode=excluded.mode,
		   candidates=excluded.candidates, accepted=excluded.accepted,
		   rules_version=excluded.rules_version, updated_at=excluded.updated_at`,
		doc.ID, nullStr(doc.Title), doc.Mode, candidates, accepted, doc.RulesVersion, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "save document %q", doc.ID).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("document", id)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "get document %q", id).WithCause(err)
	}
	return doc, nil
}

func (s *LibSQLStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]*Document, error) {
	var where []string
	var args []any

	if filter.Title != "" {
		where = append(where, "title = ?")
		args = append(args, filter.Title)
	}
	if filter.Since != nil {
		where = append(where, "updated_at >= ?")
		args = append(args, *filter.Since)
	}

	query := "SELECT " + documentColumns + " FROM documents"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	return s.queryDocuments(ctx, query, args...)
}

func (s *LibSQLStore) ListStale(ctx context.Context, rulesVersion, limit int) ([]*Document, error) {
	query := "SELECT " + documentColumns + " FROM documents WHERE rules_version < ? ORDER BY updated_at ASC, id ASC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryDocuments(ctx, query, rulesVersion)
}

// DeleteDocument removes a document together with its history.
func (s *LibSQLStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_events WHERE document_id = ?`, id); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "delete events of document %q", id).WithCause(err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "delete document %q", id).WithCause(err)
	}
	if err := checkRowsAffected(res, "document", id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *LibSQLStore) queryDocuments(ctx context.Context, query string, args ...any) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list documents").WithCause(err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeStore, "scan document").WithCause(err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	doc := &Document{}
	var title sql.NullString
	var candidates, accepted string
	if err := row.Scan(&doc.ID, &title, &doc.Mode, &candidates, &accepted,
		&doc.RulesVersion, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Title = title.String

	var err error
	if doc.Candidates, err = decodeSet(candidates); err != nil {
		return nil, fmt.Errorf("unmarshal candidates: %w", err)
	}
	if doc.Accepted, err = decodeSet(accepted); err != nil {
		return nil, fmt.Errorf("unmarshal accepted: %w", err)
	}
	return doc, nil
}

func encodeSet(set *schema.DiagramSet) (string, error) {
	if set == nil {
		return "{}", nil
	}
	data, err := set.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeSet(raw string) (*schema.DiagramSet, error) {
	set := schema.NewDiagramSet()
	if raw == "" {
		return set, nil
	}
	if err := set.UnmarshalJSON([]byte(raw)); err != nil {
		return nil, err
	}
	return set, nil
}

func storeNotFound(resource, id string) *schema.GuardError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*LibSQLStore)(nil)
