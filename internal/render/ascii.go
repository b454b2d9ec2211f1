package render

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// RenderText renders a FlowModel as a text diagram with one row of boxes per
// level. It is the built-in fallback when no terminal renderer is installed.
func RenderText(model *FlowModel) string {
	var b strings.Builder

	for levelIdx, level := range model.Levels {
		var boxes []textBox
		for _, id := range level {
			if node := model.Node(id); node != nil {
				boxes = append(boxes, makeBox(node))
			}
		}
		renderBoxRow(&b, boxes)
		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	if labels := edgeLabels(model); len(labels) > 0 {
		b.WriteString("\n")
		for _, l := range labels {
			b.WriteString(l + "\n")
		}
	}

	for _, sg := range model.SubGraphs {
		renderSubGraph(&b, model, sg)
	}
	return b.String()
}

type textBox struct {
	lines []string
	width int
}

func makeBox(node *Node) textBox {
	label := firstLine(node.Label)
	n := utf8.RuneCountInString(label)
	width := n + 4 // 2 border + 2 padding

	open, close := "│", "│"
	if node.Shape == ShapeDiamond {
		open, close = "<", ">"
	}
	return textBox{
		lines: []string{
			"┌" + strings.Repeat("─", width-2) + "┐",
			open + " " + label + " " + close,
			"└" + strings.Repeat("─", width-2) + "┘",
		},
		width: width,
	}
}

// firstLine returns only the first line of a label, with <br> breaks honored.
func firstLine(s string) string {
	s = strings.ReplaceAll(s, "<br>", "\n")
	s = strings.ReplaceAll(s, "<br/>", "\n")
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []textBox) {
	if len(boxes) == 0 {
		return
	}
	for row := 0; row < 3; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(box.lines[row])
		}
		b.WriteByte('\n')
	}
}

func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}

// edgeLabels lists labelled edges, which the box layout cannot place.
func edgeLabels(model *FlowModel) []string {
	var out []string
	for _, e := range model.Edges {
		if e.Label != "" {
			out = append(out, fmt.Sprintf("%s ─%s→ %s", nodeTitle(model, e.From), e.Label, nodeTitle(model, e.To)))
		}
	}
	return out
}

func renderSubGraph(b *strings.Builder, model *FlowModel, sg *SubGraph) {
	title := sg.Label
	if title == "" {
		title = sg.ID
	}
	b.WriteString(fmt.Sprintf("\n  [%s]\n", title))
	for _, id := range sg.NodeIDs {
		b.WriteString(fmt.Sprintf("    %s\n", nodeTitle(model, id)))
	}
}

func nodeTitle(model *FlowModel, id string) string {
	if n := model.Node(id); n != nil {
		return firstLine(n.Label)
	}
	return id
}
