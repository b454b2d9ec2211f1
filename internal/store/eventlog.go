package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rendis/diagramguard/pkg/schema"
)

// AppendEvent appends event to its document's history with the next
// per-document sequence number.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM document_events WHERE document_id = ?`, event.DocumentID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	event.CreatedAt = timeOrNow(event.CreatedAt)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO document_events (document_id, sequence, type, rules_version, accepted, dropped, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.DocumentID, seq, event.Type, event.RulesVersion, event.Accepted, event.Dropped,
		nullRaw(event.Detail), event.CreatedAt,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "append event for document %q", event.DocumentID).WithCause(err)
	}
	if event.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("read event id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a document with sequence > since, ordered by
// sequence. A gap in the returned sequence is reported as a store error.
func (s *LibSQLStore) GetEvents(ctx context.Context, documentID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, sequence, type, rules_version, accepted, dropped, detail, created_at
		 FROM document_events WHERE document_id = ? AND sequence > ? ORDER BY sequence ASC`,
		documentID, since,
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "get events for document %q", documentID).WithCause(err)
	}
	defer rows.Close()

	var events []*Event
	expected := since + 1
	for rows.Next() {
		e := &Event{}
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Sequence, &e.Type, &e.RulesVersion,
			&e.Accepted, &e.Dropped, &detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in document %s: expected %d, got %d", documentID, expected, e.Sequence)
		}
		expected++
		if detail.Valid && detail.String != "" {
			e.Detail = json.RawMessage(detail.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}
