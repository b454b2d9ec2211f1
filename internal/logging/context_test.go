package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	// Initially empty.
	assert.Equal(t, "", DocumentID(ctx))
	assert.Equal(t, "", DiagramKey(ctx))
	assert.Equal(t, "", RenderID(ctx))

	ctx = WithDocumentID(ctx, "doc-123")
	ctx = WithDiagramKey(ctx, "architecture")
	ctx = WithRenderID(ctx, "diagram-architecture-1")

	assert.Equal(t, "doc-123", DocumentID(ctx))
	assert.Equal(t, "architecture", DiagramKey(ctx))
	assert.Equal(t, "diagram-architecture-1", RenderID(ctx))
}

func TestWithIDs(t *testing.T) {
	ctx := WithIDs(context.Background(), "doc-1", "broken-sequence")
	assert.Equal(t, "doc-1", DocumentID(ctx))
	assert.Equal(t, "broken-sequence", DiagramKey(ctx))
	assert.Equal(t, "", RenderID(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithIDs(context.Background(), "doc-abc", "database")
	ctx = WithRenderID(ctx, "r-7")

	LogWith(ctx, logger).Info("test message")

	output := buf.String()
	assert.Contains(t, output, "document_id=doc-abc")
	assert.Contains(t, output, "diagram_key=database")
	assert.Contains(t, output, "render_id=r-7")
	assert.Contains(t, output, "test message")
}

func TestLogWithMissingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithDocumentID(context.Background(), "doc-only")
	LogWith(ctx, logger).Info("partial context")

	output := buf.String()
	assert.Contains(t, output, "document_id=doc-only")
	assert.NotContains(t, output, "diagram_key")
	assert.NotContains(t, output, "render_id")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	ctx := WithIDs(context.Background(), "doc-auto", "sequence")
	logger.InfoContext(ctx, "auto inject")

	output := buf.String()
	assert.Contains(t, output, `"document_id":"doc-auto"`)
	assert.Contains(t, output, `"diagram_key":"sequence"`)
	assert.NotContains(t, output, "render_id")
	assert.Contains(t, output, "auto inject")
}

func TestCorrelationHandlerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	logger.InfoContext(context.Background(), "bare log")

	output := buf.String()
	assert.NotContains(t, output, "document_id")
	assert.NotContains(t, output, "diagram_key")
	assert.Contains(t, output, "bare log")
}

func TestCorrelationHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	handler := NewCorrelationHandler(inner)
	logger := slog.New(handler.WithAttrs([]slog.Attr{slog.String("component", "repairer")}).WithGroup("rule"))

	ctx := WithDiagramKey(context.Background(), "flow")
	logger.InfoContext(ctx, "grouped", "name", "balance-quotes")

	output := buf.String()
	assert.Contains(t, output, `"component":"repairer"`)
	assert.Contains(t, output, "flow")
	assert.Contains(t, output, "balance-quotes")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseLevel(tc.in))
		})
	}
}

func TestDefault(t *testing.T) {
	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, custom, Default(custom))
	assert.NotNil(t, Default(nil))
}
