package diagram

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/diagramguard/pkg/schema"
)

func newTestPipeline(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	return NewPipeline(opts)
}

func TestPipeline_ProcessDocument(t *testing.T) {
	p := newTestPipeline(Options{})
	set := p.ProcessDocument(context.Background(), designDoc)

	require.Equal(t, []string{"architecture", "broken-sequence"}, set.Keys())

	arch, _ := set.Get("architecture")
	assert.Equal(t, "graph TD\n    A[Client] --> B[API]", arch)

	seq, _ := set.Get("broken-sequence")
	assert.Equal(t, "sequenceDiagram\n    participant User\n    User->>API: request\n    API->>User: response", seq)

	for _, e := range set.Entries() {
		assert.True(t, IsRenderable(e.Definition), e.Key)
	}
}

func TestPipeline_ProcessSetDropsGarbageKeepsOrder(t *testing.T) {
	in := schema.DiagramSetOf(
		"first", "graph TD\n    A -> B",
		"junk", "!!!! ????",
		"runon", "classDiagram class A class B A <|-- B",
		"last", "sequenceDiagram\n    A=>B: hi",
	)
	out := newTestPipeline(Options{}).ProcessSet(context.Background(), in)

	assert.Equal(t, []string{"first", "last"}, out.Keys())
	first, _ := out.Get("first")
	assert.Equal(t, "graph TD\n    A --> B", first)
	last, _ := out.Get("last")
	assert.Equal(t, "sequenceDiagram\n    A->>B: hi", last)

	// Input untouched.
	assert.Equal(t, 4, in.Len())
	orig, _ := in.Get("first")
	assert.Equal(t, "graph TD\n    A -> B", orig)
}

func TestPipeline_Idempotent(t *testing.T) {
	p := newTestPipeline(Options{})
	once := p.ProcessDocument(context.Background(), designDoc)
	twice := p.ProcessSet(context.Background(), once)
	assert.Equal(t, once.Entries(), twice.Entries())
}

func TestPipeline_ProcessSetNilPanics(t *testing.T) {
	p := newTestPipeline(Options{})
	assert.Panics(t, func() { p.ProcessSet(context.Background(), nil) })
}

func TestPipeline_Process(t *testing.T) {
	p := newTestPipeline(Options{})
	ctx := context.Background()

	set, err := p.Process(ctx, Input{Document: designDoc})
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())

	set, err = p.Process(ctx, Input{Diagrams: schema.DiagramSetOf("a", "graph TD\n    A --> B")})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, set.Keys())

	_, err = p.Process(ctx, Input{Document: designDoc, Diagrams: schema.NewDiagramSet()})
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeContractViolation))
}

func TestPipeline_WarnOnInvalid(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := NewPipeline(Options{Logger: logger, WarnOnInvalid: true})

	def, ok := p.Sanitize(context.Background(), "bad", "graph TD\n    A[Start --> B")
	require.True(t, ok)
	assert.Equal(t, "graph TD\n    A[Start --> B", def)

	out := buf.String()
	assert.Contains(t, out, "diagram accepted with structural issues")
	assert.Contains(t, out, "diagram_key=bad")
	assert.Contains(t, out, "unclosed")
}

func TestPipeline_DropIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := NewPipeline(Options{Logger: logger})

	_, ok := p.Sanitize(context.Background(), "junk", "???")
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "dropping unrenderable diagram")
	assert.Contains(t, buf.String(), "diagram_key=junk")
}

func TestPipeline_Diagnose(t *testing.T) {
	p := newTestPipeline(Options{})
	assert.True(t, p.Diagnose("graph TD\n    A --> B").Valid)
	assert.Equal(t, "no recognized diagram type keyword", p.Diagnose("A --> B").Error)
}
