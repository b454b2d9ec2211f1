package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRenderable(t *testing.T) {
	tests := []struct {
		name string
		def  string
		want bool
	}{
		{"empty", "", false},
		{"too short", "graph", false},
		{"flowchart", "graph TD\n  A --> B", true},
		{"inline statements", "flowchart LR; A-->B", true},
		{"sequence", "sequenceDiagram\n  A->>B: hi", true},
		{"run-on header", "sequenceDiagram participant A A->>B: hi", false},
		{"pie title on header", "pie title Pets\n  \"Dogs\" : 3", true},
		{"prose", "just some prose here", false},
		{"headerless edges", "%% exported\nA --> B", true},
		{"headerless brackets", "node[label] stands alone", true},
		{"front matter", "---\ntitle: x\n---\nclassDiagram\n  class A", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRenderable(tt.def))
			assert.Equal(t, tt.want, IsRenderable(tt.def), "must be deterministic")
		})
	}
}
