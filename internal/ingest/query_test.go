package ingest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/diagramguard/pkg/schema"
)

const persistedDoc = `{
  "document": {
    "title": "Design",
    "sections": [
      {"heading": "Overview", "diagrams": {"flow": "graph TD\n  A-->B", "arch": "graph LR\n  C-->D"}},
      {"heading": "Empty", "diagrams": {}}
    ]
  }
}`

func TestQuery(t *testing.T) {
	q := NewQueryEngine()

	set, err := q.Query(context.Background(), []byte(persistedDoc), ".document.sections[0].diagrams")
	require.NoError(t, err)
	assert.Equal(t, []string{"arch", "flow"}, set.Keys())

	def, ok := set.Get("flow")
	require.True(t, ok)
	assert.Equal(t, "graph TD\n  A-->B", def)
}

func TestQuery_IdentityKeepsOrder(t *testing.T) {
	set, err := NewQueryEngine().Query(context.Background(), []byte(`{"z": "graph TD", "a": "pie"}`), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a"}, set.Keys())
}

func TestQuery_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		expr string
	}{
		{"parse error", persistedDoc, ".document[["},
		{"not json", "nope", ".document"},
		{"no output", persistedDoc, "empty"},
		{"many outputs", persistedDoc, ".document.sections[].diagrams"},
		{"wrong shape", persistedDoc, ".document.title"},
		{"runtime error", persistedDoc, ".document.title | keys"},
	}

	q := NewQueryEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Query(context.Background(), []byte(tt.data), tt.expr)
			require.Error(t, err)
			assert.True(t, schema.HasCode(err, schema.ErrCodeInvalidInput), "got %v", err)
		})
	}
}

func TestQuery_EnvBlocked(t *testing.T) {
	t.Setenv("DIAGRAMGUARD_SECRET", "leak")
	set, err := NewQueryEngine().Query(context.Background(), []byte(`{}`), `{"x": ($ENV.DIAGRAMGUARD_SECRET // "none")}`)
	require.NoError(t, err)
	v, _ := set.Get("x")
	assert.Equal(t, "none", v)
}

func TestQuery_CachesCompiledCode(t *testing.T) {
	q := NewQueryEngine()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Query(context.Background(), []byte(persistedDoc), ".document.sections[0].diagrams")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, q.cached())
}
