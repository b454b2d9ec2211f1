package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		def   string
		valid bool
		err   string
	}{
		{name: "empty", def: "  \n ", err: "diagram is empty"},
		{name: "valid flowchart", def: "graph TD\n    A[Start] --> B{Go}", valid: true},
		{name: "valid sequence", def: "sequenceDiagram\n    A->>B: hi", valid: true},
		{name: "unclosed bracket", def: "graph TD\n  A[Start --> B", err: "unclosed '[' on line 2"},
		{name: "unexpected closer", def: "graph TD\n  A] --> B", err: "unexpected ']' on line 2"},
		{name: "mismatched pair", def: "graph TD\n  A[x) --> B", err: "mismatched '[' closed by ')' on line 2"},
		{name: "asymmetric node", def: "graph TD\n  A>Flag] --> B", valid: true},
		{name: "er cardinality", def: "erDiagram\n    CUSTOMER ||--o{ ORDER : places", valid: true},
		{name: "async message", def: "sequenceDiagram\n    A-)B: fire\n    A--)B: forget", valid: true},
		{name: "brackets in quotes", def: "graph TD\n  A[\"a ( b\"] --> B", valid: true},
		{
			name: "unbalanced total quotes",
			def:  "graph TD\n  A[\"open] --> B",
			err:  "unbalanced quotes: line 2 has an unterminated string",
		},
		{name: "no keyword", def: "A --> B\nB --> C", err: "no recognized diagram type keyword"},
		{
			name: "odd quotes on one line",
			def:  "graph TD\n  A[\"x] --> B\n  C[y\"] --> D",
			err:  "unterminated string on line 2",
		},
		{
			name: "open subgraph",
			def:  "graph TD\n  subgraph one\n    A --> B",
			err:  "mismatched blocks: 1 opened, 0 closed",
		},
		{
			name:  "multi-line entity block",
			def:   "erDiagram\n    CUSTOMER ||--o{ ORDER : places\n    CUSTOMER {\n        string name\n        string email\n    }",
			valid: true,
		},
		{
			name:  "class body",
			def:   "classDiagram\n    class Animal {\n        +String name\n    }",
			valid: true,
		},
		{
			name:  "composite state",
			def:   "stateDiagram-v2\n    [*] --> Active\n    state Active {\n        [*] --> Working\n    }",
			valid: true,
		},
		{
			name: "unclosed block reports opener line",
			def:  "classDiagram\n    class Animal {\n        +String name\n    class Dog",
			err:  "unclosed '{' on line 2",
		},
		{
			name: "stray closer after block",
			def:  "classDiagram\n    class Animal {\n    }\n    }",
			err:  "unexpected '}' on line 4",
		},
		{
			name: "first violation wins",
			def:  "graph TD\n  A[x\n  B\"",
			err:  "unclosed '[' on line 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.def)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.err, res.Error)
		})
	}
}

func TestValidate_CommentsIgnored(t *testing.T) {
	res := Validate("graph TD\n  %% (unbalanced in a comment\n  A --> B")
	assert.True(t, res.Valid)
}
