package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderText(t *testing.T) {
	m, err := ParseFlow("graph TD\n    A[Client] -->|https| B{Gateway}\n    B --> C[Service]")
	require.NoError(t, err)

	out := RenderText(m)
	assert.Contains(t, out, "│ Client │")
	assert.Contains(t, out, "< Gateway >")
	assert.Contains(t, out, "│ Service │")
	assert.Contains(t, out, "▼")
	assert.Contains(t, out, "Client ─https→ Gateway")

	// One box row per level.
	assert.Equal(t, 3, strings.Count(out, "┌"))
}

func TestRenderText_SubGraphs(t *testing.T) {
	m, err := ParseFlow("graph LR\n    subgraph Backend\n        A --> B\n    end")
	require.NoError(t, err)

	out := RenderText(m)
	assert.Contains(t, out, "[Backend]")
	assert.Contains(t, out, "    A\n")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "one", firstLine("one<br>two"))
	assert.Equal(t, "one", firstLine("one\ntwo"))
	assert.Equal(t, "solo", firstLine("solo"))
}
