package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rendis/diagramguard/internal/diagram"
	"github.com/rendis/diagramguard/pkg/schema"
)

// NodeShape is the outline of a flowchart node.
type NodeShape string

const (
	ShapeBox           NodeShape = "box"
	ShapeRound         NodeShape = "round"
	ShapeStadium       NodeShape = "stadium"
	ShapeSubroutine    NodeShape = "subroutine"
	ShapeCylinder      NodeShape = "cylinder"
	ShapeCircle        NodeShape = "circle"
	ShapeAsymmetric    NodeShape = "asymmetric"
	ShapeDiamond       NodeShape = "diamond"
	ShapeHexagon       NodeShape = "hexagon"
	ShapeParallelogram NodeShape = "parallelogram"
)

// EdgeStyle is the line style of a flowchart link.
type EdgeStyle string

const (
	EdgeSolid  EdgeStyle = "solid"
	EdgeDotted EdgeStyle = "dotted"
	EdgeThick  EdgeStyle = "thick"
)

// FlowModel is the intermediate representation of a flowchart used by the
// built-in renderers.
type FlowModel struct {
	Direction string
	Nodes     []*Node
	Edges     []Edge
	SubGraphs []*SubGraph
	// Levels holds node IDs grouped by longest path from a root.
	Levels [][]string
	index  map[string]*Node
}

// Node is one flowchart vertex.
type Node struct {
	ID    string
	Label string
	Shape NodeShape
}

// SubGraph is a named group of nodes.
type SubGraph struct {
	ID      string
	Label   string
	NodeIDs []string
}

// Edge links two nodes.
type Edge struct {
	From  string
	To    string
	Label string
	Style EdgeStyle
}

// Node returns the node with id, or nil.
func (m *FlowModel) Node(id string) *Node {
	return m.index[id]
}

// ParseFlow builds a FlowModel from a flowchart or graph definition. Lines it
// cannot read are skipped; a definition yielding no nodes is an error.
func ParseFlow(def string) (*FlowModel, error) {
	lines := strings.Split(def, "\n")
	first := diagram.FirstContentLine(def)
	h, ok := diagram.ParseHeader(first)
	if !ok || !h.Kind.IsFlow() {
		return nil, schema.NewErrorf(schema.ErrCodeUnsupportedDiagram, "only flowchart and graph definitions can be laid out, got %q", first)
	}

	m := &FlowModel{Direction: h.Direction, index: make(map[string]*Node)}
	if m.Direction == "" || m.Direction == "TD" {
		m.Direction = "TB"
	}

	var stack []*SubGraph
	headerSeen := false
	for _, line := range lines {
		for _, stmt := range splitStatements(line) {
			if !headerSeen {
				// Front matter and comments precede the header.
				_, headerSeen = diagram.ParseHeader(stmt)
				continue
			}
			word, rest := firstWord(stmt)
			switch word {
			case "", "%%", "classDef", "class", "style", "linkStyle", "click", "direction":
				continue
			case "subgraph":
				sg := parseSubGraphHeader(rest, len(m.SubGraphs))
				m.SubGraphs = append(m.SubGraphs, sg)
				stack = append(stack, sg)
				continue
			case "end":
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
				continue
			}
			if strings.HasPrefix(stmt, "%%") {
				continue
			}
			var current *SubGraph
			if len(stack) > 0 {
				current = stack[len(stack)-1]
			}
			m.parseStatement(stmt, current)
		}
	}

	if len(m.Nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeUnsupportedDiagram, "no nodes found in flowchart")
	}
	m.Levels = computeLevels(m)
	return m, nil
}

// splitStatements splits a line on semicolons outside quotes and trims the
// pieces.
func splitStatements(line string) []string {
	var out []string
	inQuote := false
	start := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuote = !inQuote
		case ';':
			if !inQuote {
				out = append(out, strings.TrimSpace(line[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(line[start:]))
}

func firstWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "%%") {
		return "%%", ""
	}
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

var subgraphHeader = regexp.MustCompile(`^(\w+)\s*\[(.*)\]$`)

func parseSubGraphHeader(rest string, n int) *SubGraph {
	if m := subgraphHeader.FindStringSubmatch(rest); m != nil {
		return &SubGraph{ID: m[1], Label: unquote(m[2])}
	}
	if rest == "" {
		return &SubGraph{ID: fmt.Sprintf("subgraph%d", n+1)}
	}
	return &SubGraph{ID: strings.ReplaceAll(rest, " ", "_"), Label: unquote(rest)}
}

var (
	nodeID = regexp.MustCompile(`^[\p{L}\p{N}_]+`)
	// linkToken matches a link and its optional |label|.
	linkToken = regexp.MustCompile(`^\s*(<?(?:-{2,}|={2,}|-\.+-)[>ox]?)\s*(?:\|([^|]*)\|)?`)
	// textLink matches the "-- label -->" form.
	textLink = regexp.MustCompile(`^\s*(?:--|==|-\.)\s+(.+?)\s+(-{2,}[>ox]?|={2,}[>ox]?|\.-+[>ox]?)`)
)

type shapeDelims struct {
	open, close string
	shape       NodeShape
}

// longer openers first.
var shapes = []shapeDelims{
	{"[[", "]]", ShapeSubroutine},
	{"[(", ")]", ShapeCylinder},
	{"((", "))", ShapeCircle},
	{"([", "])", ShapeStadium},
	{"{{", "}}", ShapeHexagon},
	{"[/", "/]", ShapeParallelogram},
	{"[\\", "\\]", ShapeParallelogram},
	{"[", "]", ShapeBox},
	{"(", ")", ShapeRound},
	{"{", "}", ShapeDiamond},
	{">", "]", ShapeAsymmetric},
}

// parseStatement reads "A[x] -->|l| B & C --> D" style chains.
func (m *FlowModel) parseStatement(stmt string, sg *SubGraph) {
	rest := stmt
	from, rest, ok := m.parseGroup(rest, sg)
	if !ok {
		return
	}
	for strings.TrimSpace(rest) != "" {
		label, style, after, ok := parseLink(rest)
		if !ok {
			return
		}
		to, after, ok := m.parseGroup(after, sg)
		if !ok {
			return
		}
		for _, f := range from {
			for _, t := range to {
				m.Edges = append(m.Edges, Edge{From: f, To: t, Label: label, Style: style})
			}
		}
		from, rest = to, after
	}
}

// parseGroup reads one or more node references joined by '&'.
func (m *FlowModel) parseGroup(s string, sg *SubGraph) ([]string, string, bool) {
	var ids []string
	for {
		id, rest, ok := m.parseNode(strings.TrimLeft(s, " \t"), sg)
		if !ok {
			return nil, s, false
		}
		ids = append(ids, id)
		trimmed := strings.TrimLeft(rest, " \t")
		if !strings.HasPrefix(trimmed, "&") {
			return ids, rest, true
		}
		s = trimmed[1:]
	}
}

// parseNode reads a node ID with an optional shape and label.
func (m *FlowModel) parseNode(s string, sg *SubGraph) (string, string, bool) {
	id := nodeID.FindString(s)
	if id == "" {
		return "", s, false
	}
	rest := s[len(id):]
	label, shape := "", NodeShape("")
	for _, d := range shapes {
		if !strings.HasPrefix(rest, d.open) {
			continue
		}
		end := closingIndex(rest[len(d.open):], d.close)
		if end < 0 {
			continue
		}
		label = unquote(strings.TrimSpace(rest[len(d.open) : len(d.open)+end]))
		shape = d.shape
		rest = rest[len(d.open)+end+len(d.close):]
		break
	}
	// ":::class" annotations.
	if strings.HasPrefix(rest, ":::") {
		cls := nodeID.FindString(rest[3:])
		rest = rest[3+len(cls):]
	}
	m.addNode(id, label, shape, sg)
	return id, rest, true
}

// closingIndex finds close in s, skipping quoted text.
func closingIndex(s, close string) int {
	inQuote := false
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			inQuote = !inQuote
			continue
		}
		if !inQuote && strings.HasPrefix(s[i:], close) {
			return i
		}
	}
	return -1
}

func parseLink(s string) (label string, style EdgeStyle, rest string, ok bool) {
	if m := textLink.FindStringSubmatch(s); m != nil {
		return unquote(m[1]), linkStyle(m[2]), s[len(m[0]):], true
	}
	if m := linkToken.FindStringSubmatch(s); m != nil {
		return unquote(strings.TrimSpace(m[2])), linkStyle(m[1]), s[len(m[0]):], true
	}
	return "", "", s, false
}

func linkStyle(tok string) EdgeStyle {
	switch {
	case strings.Contains(tok, "."):
		return EdgeDotted
	case strings.Contains(tok, "="):
		return EdgeThick
	}
	return EdgeSolid
}

func (m *FlowModel) addNode(id, label string, shape NodeShape, sg *SubGraph) {
	if n, ok := m.index[id]; ok {
		if label != "" {
			n.Label = label
		}
		if shape != "" {
			n.Shape = shape
		}
		return
	}
	if label == "" {
		label = id
	}
	if shape == "" {
		shape = ShapeBox
	}
	n := &Node{ID: id, Label: label, Shape: shape}
	m.Nodes = append(m.Nodes, n)
	m.index[id] = n
	if sg != nil {
		sg.NodeIDs = append(sg.NodeIDs, id)
	}
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// computeLevels assigns each node the length of the longest edge path that
// reaches it, bounded so cycles terminate. Nodes keep declaration order
// within a level.
func computeLevels(m *FlowModel) [][]string {
	level := make(map[string]int, len(m.Nodes))
	for i := 0; i < len(m.Nodes); i++ {
		changed := false
		for _, e := range m.Edges {
			if e.From == e.To {
				continue
			}
			if next := level[e.From] + 1; next > level[e.To] && next < len(m.Nodes) {
				level[e.To] = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	var levels [][]string
	for _, n := range m.Nodes {
		l := level[n.ID]
		for len(levels) <= l {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], n.ID)
	}
	out := levels[:0]
	for _, l := range levels {
		if len(l) > 0 {
			out = append(out, l)
		}
	}
	return out
}
