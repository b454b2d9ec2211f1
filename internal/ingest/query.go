package ingest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/rendis/diagramguard/pkg/schema"
)

// QueryEngine extracts diagram mappings out of arbitrary JSON documents with
// jq expressions. Compiled expressions are cached; safe for concurrent use.
type QueryEngine struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewQueryEngine creates an empty QueryEngine.
func NewQueryEngine() *QueryEngine {
	return &QueryEngine{cache: make(map[string]*gojq.Code)}
}

// Query runs expr against the JSON document in data and decodes its single
// output as a diagram set. An empty expr reads the document itself.
//
// jq emits object keys in sorted order, so a queried set is ordered by key
// rather than by position in the source document.
func (q *QueryEngine) Query(ctx context.Context, data []byte, expr string) (*schema.DiagramSet, error) {
	if expr == "" || expr == "." {
		return ParseDiagrams(data)
	}

	code, err := q.getOrCompile(expr)
	if err != nil {
		return nil, err
	}

	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "payload is not valid JSON").WithCause(err)
	}

	iter := code.RunWithContext(ctx, input)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidInput,
				"jq evaluation failed for %q: %s", expr, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"expression": expr})
		}
		results = append(results, v)
	}

	if len(results) != 1 {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidInput,
			"jq expression %q produced %d outputs, want exactly one", expr, len(results)).
			WithDetails(map[string]any{"expression": expr, "outputs": len(results)})
	}

	out, err := json.Marshal(results[0])
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "encode jq output").WithCause(err)
	}
	return ParseDiagrams(out)
}

func (q *QueryEngine) getOrCompile(expr string) (*gojq.Code, error) {
	q.mu.RLock()
	if code, ok := q.cache[expr]; ok {
		q.mu.RUnlock()
		return code, nil
	}
	q.mu.RUnlock()

	q.mu.Lock()
	defer q.mu.Unlock()

	if code, ok := q.cache[expr]; ok {
		return code, nil
	}

	parsed, err := gojq.Parse(expr)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidInput,
			"jq parse error in %q: %s", expr, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expr})
	}

	code, err := gojq.Compile(parsed,
		// No $ENV or env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidInput,
			"jq compile error in %q: %s", expr, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expr})
	}

	q.cache[expr] = code
	return code, nil
}

func (q *QueryEngine) cached() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.cache)
}
