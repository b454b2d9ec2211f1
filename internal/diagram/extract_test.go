package diagram

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const designDoc = "# Design\n\n" +
	"Some intro text.\n\n" +
	"## Architecture\n\n" +
	"```mermaid\ngraph TD\n    A[Client] --> B[API]\n```\n\n" +
	"## Broken Sequence\n\n" +
	"```mermaid\n" +
	`sequenceDiagram participant User User->>API: "request " API->>User: "response "` +
	"\n```\n"

func TestExtractSections_KeysFromHeadings(t *testing.T) {
	set := ExtractSections(designDoc)
	require.Equal(t, []string{"architecture", "broken-sequence"}, set.Keys())

	def, _ := set.Get("architecture")
	assert.Equal(t, "graph TD\n    A[Client] --> B[API]", def)
}

func TestExtractSimple_PositionalKeys(t *testing.T) {
	set := ExtractSimple(designDoc)
	assert.Equal(t, []string{"diagram1", "diagram2"}, set.Keys())
}

func TestExtract_Completeness(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&b, "## Section %d\n\n```mermaid\ngraph LR\n    N%d --> M%d\n```\n\n", i, i, i)
	}
	set := ExtractSections(b.String())
	assert.Equal(t, 5, set.Len())
	assert.Equal(t, []string{"section-1", "section-2", "section-3", "section-4", "section-5"}, set.Keys())
}

func TestExtract_CollisionsAreSuffixed(t *testing.T) {
	block := "## Flow\n\n```mermaid\ngraph TD\n    A --> B\n```\n\n"
	set := ExtractSections(block + block + block)
	assert.Equal(t, []string{"flow", "flow-graph", "flow-graph-2"}, set.Keys())
}

func TestExtract_LooseBlockEndsAtProse(t *testing.T) {
	doc := "Intro text.\n\ngraph TD\n    A --> B\n    B --> C\n\nThis is the closing paragraph.\n"
	set := ExtractSimple(doc)
	require.Equal(t, 1, set.Len())
	def, _ := set.Get("diagram1")
	assert.Equal(t, "graph TD\n    A --> B\n    B --> C", def)
}

func TestExtract_FenceLanguage(t *testing.T) {
	doc := "```go\nfunc main() {}\n```\n\n```text\nsequenceDiagram\n    A->>B: hi\n```\n"
	set := ExtractSimple(doc)
	require.Equal(t, 1, set.Len())
	def, _ := set.Get("diagram1")
	assert.Equal(t, "sequenceDiagram\n    A->>B: hi", def)
}

func TestExtract_UnlabelledFences(t *testing.T) {
	doc := "## Setup\n\n```\nmkdir -p build && echo $(date) > build/stamp\n```\n\n" +
		"## Flow\n\n```\ngraph TD\n    A --> B\n```\n"
	set := ExtractSections(doc)
	require.Equal(t, []string{"flow"}, set.Keys())

	def, _ := set.Get("flow")
	assert.Equal(t, "graph TD\n    A --> B", def)

	p := NewPipeline(Options{Logger: discardLogger()})
	assert.Equal(t, []string{"flow"}, p.ProcessDocument(context.Background(), doc).Keys())
}

func TestExtract_DropsEmptyBodies(t *testing.T) {
	assert.Equal(t, 0, ExtractSimple("```mermaid\ngraph TD\n```\n").Len())
	assert.Equal(t, 0, ExtractSimple("").Len())
	assert.Equal(t, 0, ExtractSimple("Graph theory is fun.\n").Len())
}

func TestExtract_MaxBytes(t *testing.T) {
	first := "```mermaid\ngraph TD\n    A --> B\n```\n"
	doc := first + strings.Repeat("filler line\n", 100) + "```mermaid\ngraph TD\n    C --> D\n```\n"

	e := NewExtractor(ExtractOptions{Mode: ModeSimple, MaxBytes: len(first) + 50, Logger: discardLogger()})
	set := e.Extract(context.Background(), doc)
	assert.Equal(t, []string{"diagram1"}, set.Keys())
}

func TestSlugifyHeading(t *testing.T) {
	tests := map[string]string{
		"Architecture":        "architecture",
		"Broken Sequence":     "broken-sequence",
		"2.1 Data Model (v2)": "data-model-v2",
		"1) User Flow":        "user-flow",
		"  API / Gateway  ":   "api-gateway",
		"Überblick":           "überblick",
		"!!!":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SlugifyHeading(in), in)
	}
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeSimple, ParseMode(" Simple "))
	assert.Equal(t, ModeSections, ParseMode("sections"))
	assert.Equal(t, ModeSections, ParseMode("bogus"))
}
