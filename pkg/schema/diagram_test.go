package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagramSet_AddKeepsOrder(t *testing.T) {
	s := NewDiagramSet()
	assert.True(t, s.Add("zeta", "graph TD\nA-->B"))
	assert.True(t, s.Add("alpha", "sequenceDiagram\nA->>B: hi"))
	assert.True(t, s.Add("mid", "erDiagram\nA ||--o{ B : has"))

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, s.Keys())
	assert.Equal(t, 3, s.Len())

	def, ok := s.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "sequenceDiagram\nA->>B: hi", def)
}

func TestDiagramSet_AddRejects(t *testing.T) {
	s := NewDiagramSet()
	require.True(t, s.Add("a", "graph TD\nA-->B"))

	tests := []struct {
		name string
		key  string
		def  string
	}{
		{"duplicate key", "a", "graph LR\nX-->Y"},
		{"empty key", "", "graph LR\nX-->Y"},
		{"empty definition", "b", ""},
		{"whitespace definition", "c", "  \n\t "},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, s.Add(tc.key, tc.def))
		})
	}

	assert.Equal(t, 1, s.Len())
	def, _ := s.Get("a")
	assert.Equal(t, "graph TD\nA-->B", def, "duplicate must not overwrite")
}

func TestDiagramSet_SetReplacesInPlace(t *testing.T) {
	s := DiagramSetOf("one", "graph TD\nA-->B", "two", "graph TD\nC-->D")
	s.Set("one", "graph LR\nA-->B")
	s.Set("three", "graph LR\nE-->F")

	assert.Equal(t, []string{"one", "two", "three"}, s.Keys())
	def, _ := s.Get("one")
	assert.Equal(t, "graph LR\nA-->B", def)
}

func TestDiagramSet_CloneIsIndependent(t *testing.T) {
	s := DiagramSetOf("one", "graph TD\nA-->B")
	c := s.Clone()
	c.Set("one", "changed")
	c.Add("two", "graph TD\nX-->Y")

	def, _ := s.Get("one")
	assert.Equal(t, "graph TD\nA-->B", def)
	assert.False(t, s.Has("two"))
	assert.Equal(t, 2, c.Len())
}

func TestDiagramSet_JSONPreservesOrder(t *testing.T) {
	s := DiagramSetOf("zeta", "graph TD\nA-->B", "alpha", "pie\n\"a\" : 1")

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"zeta":"graph TD\nA-->B","alpha":"pie\n\"a\" : 1"}`, string(data))
	assert.Less(t, strings.Index(string(data), `"zeta"`), strings.Index(string(data), `"alpha"`))

	var back DiagramSet
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []string{"zeta", "alpha"}, back.Keys())
	assert.Equal(t, s.Map(), back.Map())
}

func TestDiagramSet_UnmarshalDropsBlankAndDuplicates(t *testing.T) {
	var s DiagramSet
	require.NoError(t, json.Unmarshal([]byte(`{"b":"graph TD\nA-->B","empty":"  ","b":"later","a":"x-->y"}`), &s))
	assert.Equal(t, []string{"b", "a"}, s.Keys())
	def, _ := s.Get("b")
	assert.Equal(t, "graph TD\nA-->B", def)
}

func TestDiagramSet_UnmarshalErrors(t *testing.T) {
	var s DiagramSet
	assert.Error(t, json.Unmarshal([]byte(`["graph TD"]`), &s))
	assert.Error(t, json.Unmarshal([]byte(`{"a": 1}`), &s))
}

func TestDiagramSet_NilLen(t *testing.T) {
	var s *DiagramSet
	assert.Equal(t, 0, s.Len())
}
