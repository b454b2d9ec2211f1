package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/diagramguard/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func seedDocument(t *testing.T, s *LibSQLStore, title string, rulesVersion int) *Document {
	t.Helper()
	doc := &Document{
		Title:        title,
		Candidates:   schema.DiagramSetOf("flow", "graph TD\n  A-->B", "junk", "hello"),
		Accepted:     schema.DiagramSetOf("flow", "graph TD\n    A-->B"),
		RulesVersion: rulesVersion,
	}
	require.NoError(t, s.SaveDocument(context.Background(), doc))
	return doc
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))

	v, err := schemaVersion(context.Background(), s.db)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestLoadMigrations(t *testing.T) {
	ms, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	assert.Equal(t, 1, ms[0].Version)
	assert.Equal(t, "initial_schema", ms[0].Name)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- header\nCREATE TABLE a (x INT);\n\n-- only a comment\n;CREATE INDEX i ON a(x);")
	assert.Equal(t, []string{"-- header\nCREATE TABLE a (x INT)", "CREATE INDEX i ON a(x)"}, stmts)
}

func TestSaveAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := seedDocument(t, s, "Design", 3)
	require.NotEmpty(t, doc.ID)

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Design", got.Title)
	assert.Equal(t, "sections", got.Mode)
	assert.Equal(t, 3, got.RulesVersion)
	assert.Equal(t, []string{"flow", "junk"}, got.Candidates.Keys())
	assert.Equal(t, []string{"flow"}, got.Accepted.Keys())
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSaveDocument_ReplaceKeepsCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := seedDocument(t, s, "Design", 1)
	first, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)

	doc.Accepted = schema.DiagramSetOf("flow", "graph TD\n    A-->B", "seq", "sequenceDiagram\n    A->>B: hi")
	doc.RulesVersion = 2
	require.NoError(t, s.SaveDocument(ctx, doc))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RulesVersion)
	assert.Equal(t, []string{"flow", "seq"}, got.Accepted.Keys())
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))
}

func TestSaveDocument_Nil(t *testing.T) {
	err := newTestStore(t).SaveDocument(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeInvalidInput))
}

func TestSaveDocument_NilSets(t *testing.T) {
	s := newTestStore(t)
	doc := &Document{ID: "empty", RulesVersion: 1}
	require.NoError(t, s.SaveDocument(context.Background(), doc))

	got, err := s.GetDocument(context.Background(), "empty")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Candidates.Len())
	assert.Equal(t, 0, got.Accepted.Len())
}

func TestGetDocument_NotFound(t *testing.T) {
	_, err := newTestStore(t).GetDocument(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestListDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedDocument(t, s, "Design", 1)
	seedDocument(t, s, "Design", 1)
	seedDocument(t, s, "Runbook", 1)

	all, err := s.ListDocuments(ctx, DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	design, err := s.ListDocuments(ctx, DocumentFilter{Title: "Design"})
	require.NoError(t, err)
	assert.Len(t, design, 2)

	page, err := s.ListDocuments(ctx, DocumentFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestListStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old1 := seedDocument(t, s, "a", 1)
	old2 := seedDocument(t, s, "b", 2)
	seedDocument(t, s, "c", 3)

	stale, err := s.ListStale(ctx, 3, 0)
	require.NoError(t, err)
	var ids []string
	for _, d := range stale {
		ids = append(ids, d.ID)
	}
	assert.ElementsMatch(t, []string{old1.ID, old2.ID}, ids)

	limited, err := s.ListStale(ctx, 3, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := s.ListStale(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := seedDocument(t, s, "Design", 1)

	require.NoError(t, s.DeleteDocument(ctx, doc.ID))
	_, err := s.GetDocument(ctx, doc.ID)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))

	err = s.DeleteDocument(ctx, doc.ID)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}
