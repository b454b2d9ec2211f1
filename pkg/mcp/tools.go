package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/diagramguard/internal/diagram"
	"github.com/rendis/diagramguard/internal/ingest"
	"github.com/rendis/diagramguard/internal/logging"
	"github.com/rendis/diagramguard/internal/store"
	"github.com/rendis/diagramguard/pkg/schema"
)

// sanitizeResult is returned by diagrams.sanitize and diagrams.restore.
type sanitizeResult struct {
	DocumentID   string             `json:"document_id,omitempty"`
	Diagrams     *schema.DiagramSet `json:"diagrams"`
	Accepted     int                `json:"accepted"`
	Dropped      int                `json:"dropped"`
	RulesVersion int                `json:"rules_version"`
	// Stale is set when a stored document was re-sanitized under newer rules.
	Stale bool `json:"stale,omitempty"`
}

// handleSanitize extracts, repairs, and optionally saves a document's diagrams.
func (s *DiagramServer) handleSanitize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := req.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError("document is required"), nil
	}
	mode := req.GetString("mode", "")
	save := req.GetBool("save", false)
	title := req.GetString("title", "")

	if save && s.store == nil {
		return mcp.NewToolResultError("save requested but no store is configured"), nil
	}

	p := s.pipeline(mode)
	candidates := p.Extract(ctx, doc)
	accepted := p.ProcessSet(ctx, candidates)

	result := sanitizeResult{
		Diagrams:     accepted,
		Accepted:     accepted.Len(),
		Dropped:      candidates.Len() - accepted.Len(),
		RulesVersion: diagram.RulesVersion,
	}

	if save {
		stored := &store.Document{
			Title:        title,
			Mode:         string(diagram.ParseMode(mode)),
			Candidates:   candidates,
			Accepted:     accepted,
			RulesVersion: diagram.RulesVersion,
		}
		if mode == "" {
			stored.Mode = string(s.defaultMode)
		}
		if saveErr := s.store.SaveDocument(ctx, stored); saveErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to save document: %v", saveErr)), nil
		}
		s.recordEvent(ctx, stored.ID, store.EventSanitized, result)
		result.DocumentID = stored.ID
	}

	return marshalResult(result)
}

// handleRestore sanitizes a mapping from a JSON payload or a saved document.
func (s *DiagramServer) handleRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload := req.GetString("payload", "")
	query := req.GetString("query", "")
	docID := req.GetString("document_id", "")

	if (payload == "") == (docID == "") {
		return mcp.NewToolResultError("exactly one of payload or document_id is required"), nil
	}

	p := s.pipeline("")

	if docID != "" {
		if s.store == nil {
			return mcp.NewToolResultError("document_id given but no store is configured"), nil
		}
		doc, getErr := s.store.GetDocument(ctx, docID)
		if getErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("document lookup failed: %v", getErr)), nil
		}
		accepted := doc.Accepted
		stale := doc.RulesVersion < diagram.RulesVersion
		if stale {
			accepted = p.ProcessSet(logging.WithDocumentID(ctx, doc.ID), doc.Candidates)
		}
		return marshalResult(sanitizeResult{
			DocumentID:   doc.ID,
			Diagrams:     accepted,
			Accepted:     accepted.Len(),
			Dropped:      doc.Candidates.Len() - accepted.Len(),
			RulesVersion: diagram.RulesVersion,
			Stale:        stale,
		})
	}

	set, parseErr := s.query.Query(ctx, []byte(payload), query)
	if parseErr != nil {
		return mcp.NewToolResultError(parseErr.Error()), nil
	}
	accepted := p.ProcessSet(ctx, set)
	return marshalResult(sanitizeResult{
		Diagrams:     accepted,
		Accepted:     accepted.Len(),
		Dropped:      set.Len() - accepted.Len(),
		RulesVersion: diagram.RulesVersion,
	})
}

// validateResult is returned by diagrams.validate.
type validateResult struct {
	schema.ValidationResult
	Kind       diagram.Kind `json:"kind,omitempty"`
	Renderable bool         `json:"renderable"`
	Sanitized  string       `json:"sanitized,omitempty"`
}

// handleValidate reports whether a definition passes the renderability gate
// after repair, and the structural diagnostic of the repaired text. A dropped
// definition has no repaired text, so the input is diagnosed instead.
func (s *DiagramServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, err := req.RequireString("definition")
	if err != nil {
		return mcp.NewToolResultError("definition is required"), nil
	}

	p := s.pipeline("")
	sanitized, ok := p.Sanitize(ctx, "definition", def)
	checked := def
	if ok {
		checked = sanitized
	}
	return marshalResult(validateResult{
		ValidationResult: p.Diagnose(checked),
		Kind:             diagram.DetectKind(checked),
		Renderable:       ok,
		Sanitized:        sanitized,
	})
}

// handleGet returns a saved document and its history.
func (s *DiagramServer) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("document_id is required"), nil
	}
	if s.store == nil {
		return mcp.NewToolResultError("no store is configured"), nil
	}

	doc, getErr := s.store.GetDocument(ctx, docID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("document lookup failed: %v", getErr)), nil
	}
	events, evErr := s.store.GetEvents(ctx, docID, 0)
	if evErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history lookup failed: %v", evErr)), nil
	}

	return marshalResult(map[string]any{
		"document": doc,
		"history":  events,
		"stale":    doc.RulesVersion < diagram.RulesVersion,
	})
}

// handleRender sanitizes a mapping and renders the accepted diagrams into
// preview panels. Dropped entries never reach the engine.
func (s *DiagramServer) handleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := req.RequireString("payload")
	if err != nil {
		return mcp.NewToolResultError("payload is required"), nil
	}
	if s.renderer == nil {
		return mcp.NewToolResultError("no renderer is configured"), nil
	}

	set, parseErr := ingest.ParseDiagrams([]byte(payload))
	if parseErr != nil {
		return mcp.NewToolResultError(parseErr.Error()), nil
	}
	return marshalResult(s.renderer.Present(ctx, s.pipeline("").ProcessSet(ctx, set)))
}

// recordEvent appends a history entry. A failure is logged, not returned:
// the document itself is already saved.
func (s *DiagramServer) recordEvent(ctx context.Context, docID, eventType string, r sanitizeResult) {
	err := s.store.AppendEvent(ctx, &store.Event{
		DocumentID:   docID,
		Type:         eventType,
		RulesVersion: r.RulesVersion,
		Accepted:     r.Accepted,
		Dropped:      r.Dropped,
	})
	if err != nil {
		logging.LogWith(logging.WithDocumentID(ctx, docID), s.logger).
			Warn("failed to record document event", "error", err.Error())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
