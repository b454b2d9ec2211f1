package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/diagramguard/pkg/schema"
)

// Document is a sanitized document. Candidates keeps the raw extracted
// definitions so the set can be re-sanitized when the rules change.
type Document struct {
	ID           string             `json:"id"`
	Title        string             `json:"title,omitempty"`
	Mode         string             `json:"mode"`
	Candidates   *schema.DiagramSet `json:"candidates"`
	Accepted     *schema.DiagramSet `json:"accepted"`
	RulesVersion int                `json:"rules_version"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// DocumentFilter specifies criteria for listing documents.
type DocumentFilter struct {
	Title  string     `json:"title,omitempty"`
	Since  *time.Time `json:"since,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
}

// Event types recorded in a document's history.
const (
	EventSanitized = "sanitized"
	EventRescanned = "rescanned"
)

// Event is one entry of a document's append-only history.
type Event struct {
	ID           int64           `json:"id"`
	DocumentID   string          `json:"document_id"`
	Sequence     int64           `json:"sequence"`
	Type         string          `json:"type"`
	RulesVersion int             `json:"rules_version"`
	Accepted     int             `json:"accepted"`
	Dropped      int             `json:"dropped"`
	Detail       json.RawMessage `json:"detail,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
