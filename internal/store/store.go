package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Documents
	SaveDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]*Document, error)
	DeleteDocument(ctx context.Context, id string) error
	// ListStale returns documents sanitized with a rules version older than
	// rulesVersion, oldest first. A limit <= 0 means no limit.
	ListStale(ctx context.Context, rulesVersion, limit int) ([]*Document, error)

	// History (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, documentID string, since int64) ([]*Event, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
