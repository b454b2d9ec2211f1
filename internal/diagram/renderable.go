package diagram

import (
	"regexp"
	"strings"
)

// minRenderableLen is the shortest trimmed definition worth handing to a
// renderer.
const minRenderableLen = 10

var structuralWord = regexp.MustCompile(`\b(participant|class|state|entity)\b`)

// IsRenderable is the strict gate applied after repair. It accepts a
// definition that opens with a clean diagram header, or that has no header
// but carries a structural indicator. A header followed by run-on content is
// rejected. The check is pure and deterministic.
func IsRenderable(def string) bool {
	if len(strings.TrimSpace(def)) < minRenderableLen {
		return false
	}
	first := FirstContentLine(def)
	if h, ok := ParseHeader(first); ok {
		return cleanHeaderRest(h)
	}
	return hasStructure(def)
}

func hasStructure(def string) bool {
	if strings.Contains(def, "-->") || strings.Contains(def, "->") {
		return true
	}
	if strings.ContainsAny(def, "[]{}()") {
		return true
	}
	return structuralWord.MatchString(def)
}
