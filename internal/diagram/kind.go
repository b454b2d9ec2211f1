package diagram

import (
	"strings"
)

// Kind identifies a Mermaid diagram type by its opening keyword.
type Kind string

const (
	KindUnknown     Kind = ""
	KindFlowchart   Kind = "flowchart"
	KindGraph       Kind = "graph"
	KindSequence    Kind = "sequenceDiagram"
	KindClass       Kind = "classDiagram"
	KindER          Kind = "erDiagram"
	KindState       Kind = "stateDiagram"
	KindGantt       Kind = "gantt"
	KindPie         Kind = "pie"
	KindJourney     Kind = "journey"
	KindGitGraph    Kind = "gitGraph"
	KindMindmap     Kind = "mindmap"
	KindTimeline    Kind = "timeline"
	KindQuadrant    Kind = "quadrantChart"
	KindRequirement Kind = "requirementDiagram"
	KindSankey      Kind = "sankey-beta"
	KindC4Context   Kind = "C4Context"
	KindC4Container Kind = "C4Container"
	KindC4Component Kind = "C4Component"
	KindXYChart     Kind = "xychart-beta"
	KindBlock       Kind = "block-beta"
)

// keyword maps one accepted header spelling to its Kind.
type keyword struct {
	word string
	kind Kind
	// core keywords match case-insensitively; the rest are exact.
	core bool
}

// keywords is ordered so that longer spellings win over their prefixes.
var keywords = []keyword{
	{"stateDiagram-v2", KindState, true},
	{"stateDiagram", KindState, true},
	{"classDiagram-v2", KindClass, true},
	{"classDiagram", KindClass, true},
	{"sequenceDiagram", KindSequence, true},
	{"erDiagram", KindER, true},
	{"flowchart", KindFlowchart, true},
	{"graph", KindGraph, true},
	{"gantt", KindGantt, false},
	{"pie", KindPie, false},
	{"journey", KindJourney, false},
	{"gitGraph", KindGitGraph, false},
	{"mindmap", KindMindmap, false},
	{"timeline", KindTimeline, false},
	{"quadrantChart", KindQuadrant, false},
	{"requirementDiagram", KindRequirement, false},
	{"sankey-beta", KindSankey, false},
	{"C4Context", KindC4Context, false},
	{"C4Container", KindC4Container, false},
	{"C4Component", KindC4Component, false},
	{"xychart-beta", KindXYChart, false},
	{"block-beta", KindBlock, false},
}

var directions = map[string]bool{"TB": true, "TD": true, "BT": true, "RL": true, "LR": true}

// Kinds returns every recognized kind in registry order, without duplicates.
func Kinds() []Kind {
	seen := make(map[Kind]bool, len(keywords))
	var out []Kind
	for _, kw := range keywords {
		if !seen[kw.kind] {
			seen[kw.kind] = true
			out = append(out, kw.kind)
		}
	}
	return out
}

// Slug returns a short lowercase name used when a key needs disambiguating.
func (k Kind) Slug() string {
	switch k {
	case KindSequence:
		return "sequence"
	case KindClass:
		return "class"
	case KindER:
		return "er"
	case KindState:
		return "state"
	case KindRequirement:
		return "requirement"
	case KindQuadrant:
		return "quadrant"
	case KindGitGraph:
		return "git"
	case KindSankey:
		return "sankey"
	case KindXYChart:
		return "xychart"
	case KindBlock:
		return "block"
	case KindUnknown:
		return "diagram"
	default:
		return strings.ToLower(string(k))
	}
}

// IsFlow reports whether the kind uses flowchart syntax.
func (k Kind) IsFlow() bool {
	return k == KindFlowchart || k == KindGraph
}

// Header is the parsed opening line of a definition.
type Header struct {
	Kind      Kind
	Keyword   string // as written
	Direction string // only for flowchart/graph
	// Rest is whatever follows the keyword and direction, trimmed.
	Rest string
}

// ParseHeader parses line as a diagram header. The keyword must be followed
// by end of line, whitespace or ';'.
func ParseHeader(line string) (Header, bool) {
	line = strings.TrimSpace(line)
	for _, kw := range keywords {
		if len(line) < len(kw.word) {
			continue
		}
		head := line[:len(kw.word)]
		if kw.core {
			if !strings.EqualFold(head, kw.word) {
				continue
			}
		} else if head != kw.word {
			continue
		}
		rest := line[len(kw.word):]
		if rest != "" && rest[0] != ' ' && rest[0] != '\t' && rest[0] != ';' {
			continue
		}
		h := Header{Kind: kw.kind, Keyword: head}
		rest = strings.TrimSpace(rest)
		if kw.kind.IsFlow() {
			word, tail := splitWord(rest)
			if directions[strings.ToUpper(word)] {
				h.Direction = strings.ToUpper(word)
				rest = tail
			}
		}
		h.Rest = rest
		return h, true
	}
	return Header{}, false
}

// splitWord returns the first whitespace/semicolon delimited word of s and the trimmed remainder.
func splitWord(s string) (string, string) {
	i := strings.IndexAny(s, " \t;")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// contentLines returns the lines of def starting at the first line that is
// not blank, a %% comment/directive, or part of a leading front-matter block.
func contentLines(def string) []string {
	lines := strings.Split(def, "\n")
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i < len(lines) && strings.TrimSpace(lines[i]) == "---" {
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == "---" {
				i = j + 1
				break
			}
		}
	}
	for i < len(lines) {
		t := strings.TrimSpace(lines[i])
		if t != "" && !strings.HasPrefix(t, "%%") {
			break
		}
		i++
	}
	return lines[i:]
}

// FirstContentLine returns the first meaningful line of def, trimmed.
func FirstContentLine(def string) string {
	lines := contentLines(def)
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[0])
}

// DetectKind returns the kind declared by the first meaningful line of def,
// or KindUnknown.
func DetectKind(def string) Kind {
	h, ok := ParseHeader(FirstContentLine(def))
	if !ok {
		return KindUnknown
	}
	return h.Kind
}

// ContainsKeyword reports whether any line of def starts with a recognized
// diagram keyword.
func ContainsKeyword(def string) bool {
	for _, line := range strings.Split(def, "\n") {
		if _, ok := ParseHeader(line); ok {
			return true
		}
	}
	return false
}

// cleanHeaderRest reports whether the trailing text of a header line is
// something the renderer accepts on the header line itself.
func cleanHeaderRest(h Header) bool {
	rest := h.Rest
	if rest == "" || rest[0] == ';' {
		return true
	}
	switch h.Kind {
	case KindPie:
		return strings.HasPrefix(rest, "title ") || rest == "showData" || strings.HasPrefix(rest, "showData ")
	case KindXYChart:
		return rest == "horizontal" || rest == "vertical"
	case KindGitGraph:
		word := strings.TrimSuffix(rest, ":")
		return directions[word]
	}
	return false
}
