package diagram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollapsedERFixer(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "run-on header",
			in:   `erDiagram CUSTOMER ||--o{ ORDER : places CUSTOMER { string name string email PK } ORDER ||--|{ LINE-ITEM : contains`,
			want: "erDiagram\n" +
				"    CUSTOMER ||--o{ ORDER : places\n" +
				"    CUSTOMER {\n" +
				"        string name\n" +
				"        string email PK\n" +
				"    }\n" +
				"    ORDER ||--|{ LINE-ITEM : contains",
		},
		{
			name: "shared lines",
			in:   "erDiagram\n    A ||--o{ B : \"has many\" B }|..|| C : uses\n    C { int id PK, FK \"the id\" }",
			want: "erDiagram\n" +
				"    A ||--o{ B : \"has many\"\n" +
				"    B }|..|| C : uses\n" +
				"    C {\n" +
				"        int id PK, FK \"the id\"\n" +
				"    }",
		},
		{
			name: "missing label becomes empty",
			in:   "erDiagram A ||--|| B C ||--o{ D : owns",
			want: "erDiagram\n    A ||--|| B : \"\"\n    C ||--o{ D : owns",
		},
		{
			name: "duplicates dropped",
			in:   "erDiagram A ||--|| B : is A ||--|| B : is",
			want: "erDiagram\n    A ||--|| B : is",
		},
	}

	f := CollapsedERFixer{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, f.Applies(tt.in))
			got := f.Fix(tt.in)
			assert.Equal(t, tt.want, got)
			assert.False(t, f.Applies(got), "fixed output must not trigger again")
			assert.True(t, Validate(got).Valid, Validate(got).Error)
		})
	}
}

func TestCollapsedERFixer_DoesNotApply(t *testing.T) {
	f := CollapsedERFixer{}
	for _, def := range []string{
		"erDiagram\n    CUSTOMER ||--o{ ORDER : places",
		"erDiagram\n    CUSTOMER ||--o{ ORDER : places\n    CUSTOMER {\n        string name\n        string email\n    }",
		"erDiagram\n    CUSTOMER {\n        string note \"braces { in } comments\"\n    }",
		"graph TD\n    A --> B C --> D",
		"sequenceDiagram\n    A->>B: hi",
	} {
		assert.False(t, f.Applies(def), def)
	}
}

func TestCollapsedERFixer_NothingRecognized(t *testing.T) {
	def := "erDiagram lorem ipsum dolor"
	f := CollapsedERFixer{}
	require.True(t, f.Applies(def))
	assert.Equal(t, def, f.Fix(def))
}

func TestPipeline_RecoversCollapsedER(t *testing.T) {
	doc := "## Data Model\n\n```mermaid\n" +
		`erDiagram CUSTOMER ||--o{ ORDER : places CUSTOMER { string name }` +
		"\n```\n"
	p := NewPipeline(Options{Logger: discardLogger()})
	set := p.ProcessDocument(context.Background(), doc)

	def, ok := set.Get("data-model")
	require.True(t, ok, "collapsed entity-relationship diagrams are rebuilt, not dropped")
	assert.Equal(t, "erDiagram\n    CUSTOMER ||--o{ ORDER : places\n    CUSTOMER {\n        string name\n    }", def)
}
