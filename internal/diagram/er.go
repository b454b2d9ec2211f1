package diagram

import (
	"regexp"
	"sort"
	"strings"
)

var (
	erRelationship = regexp.MustCompile(`([A-Za-z_][\w-]*)\s*([|}][|o](?:--|\.\.)[|o][|{])\s*([A-Za-z_][\w-]*)(?:\s*:\s*("[^"]*"|[^\s"{}]+))?`)
	erEntityOpen   = regexp.MustCompile(`[A-Za-z_][\w-]*\s*\{`)
	erEntityBlock  = regexp.MustCompile(`([A-Za-z_][\w-]*)\s*\{([^{}]*)\}`)
)

var erAttributeKeys = map[string]bool{"PK": true, "FK": true, "UK": true}

// CollapsedERFixer rebuilds an entity-relationship diagram whose statements
// were run together onto the header line or onto shared lines. Relationships
// and entity blocks are re-emitted one per line, in their original order.
type CollapsedERFixer struct{}

func (CollapsedERFixer) Name() string { return "collapsed-er" }

// Applies matches an erDiagram whose header carries trailing statements, or
// with a line holding more than one relationship or entity opener.
func (CollapsedERFixer) Applies(def string) bool {
	if DetectKind(def) != KindER {
		return false
	}
	for _, line := range strings.Split(def, "\n") {
		if h, ok := ParseHeader(line); ok && h.Kind == KindER {
			if !cleanHeaderRest(h) {
				return true
			}
			continue
		}
		masked := maskER(line)
		if len(erRelationship.FindAllStringIndex(line, -1))+len(erEntityOpen.FindAllStringIndex(masked, -1)) > 1 {
			return true
		}
	}
	return false
}

func (CollapsedERFixer) Fix(def string) string {
	lines := strings.Split(def, "\n")
	start := -1
	var rest string
	for i, line := range lines {
		if h, ok := ParseHeader(line); ok && h.Kind == KindER {
			start, rest = i, h.Rest
			break
		}
	}
	if start < 0 {
		return def
	}

	flat := strings.Join(append([]string{rest}, lines[start+1:]...), " ")
	stmts := erStatements(flat)
	if len(stmts) == 0 {
		return def
	}

	out := append([]string{}, lines[:start]...)
	out = append(out, "erDiagram")
	for _, s := range stmts {
		out = append(out, s.lines...)
	}
	return strings.Join(out, "\n")
}

type erStatement struct {
	pos   int
	lines []string
}

// erStatements pulls entity blocks and relationships out of flat, which is
// the diagram body with line breaks removed.
func erStatements(flat string) []erStatement {
	var stmts []erStatement
	masked := maskER(flat)

	// Relationships are searched with entity bodies blanked out so attribute
	// text is never read as an entity name. The entity name itself stays, as
	// it may also end a relationship.
	rels := []byte(flat)
	seenEntity := map[string]bool{}
	for _, m := range erEntityBlock.FindAllStringSubmatchIndex(masked, -1) {
		for i := m[4] - 1; i < m[1]; i++ {
			rels[i] = ' '
		}
		name := flat[m[2]:m[3]]
		if seenEntity[name] {
			continue
		}
		seenEntity[name] = true
		block := []string{"    " + name + " {"}
		for _, attr := range erAttributes(flat[m[4]:m[5]]) {
			block = append(block, "        "+attr)
		}
		block = append(block, "    }")
		stmts = append(stmts, erStatement{pos: m[0], lines: block})
	}

	seenRel := map[string]bool{}
	relText := string(rels)
	for _, m := range erRelationship.FindAllStringSubmatchIndex(relText, -1) {
		label := `""`
		if m[8] >= 0 {
			label = relText[m[8]:m[9]]
		}
		line := "    " + relText[m[2]:m[3]] + " " + relText[m[4]:m[5]] + " " + relText[m[6]:m[7]] + " : " + label
		if seenRel[line] {
			continue
		}
		seenRel[line] = true
		stmts = append(stmts, erStatement{pos: m[0], lines: []string{line}})
	}

	sort.SliceStable(stmts, func(i, j int) bool { return stmts[i].pos < stmts[j].pos })
	return stmts
}

// erAttributes splits a collapsed attribute list into "type name [keys]
// [comment]" entries.
func erAttributes(body string) []string {
	tokens := tokenizeQuoted(body)
	var attrs []string
	for i := 0; i < len(tokens); {
		if strings.HasPrefix(tokens[i], `"`) || i+1 >= len(tokens) {
			i++
			continue
		}
		attr := tokens[i] + " " + tokens[i+1]
		i += 2
		var keys []string
		for i < len(tokens) && erKeyToken(tokens[i]) {
			keys = append(keys, nonEmpty(strings.Split(tokens[i], ","))...)
			i++
		}
		if len(keys) > 0 {
			attr += " " + strings.Join(keys, ", ")
		}
		if i < len(tokens) && strings.HasPrefix(tokens[i], `"`) {
			attr += " " + tokens[i]
			i++
		}
		attrs = append(attrs, attr)
	}
	return attrs
}

// erKeyToken reports whether tok is a key list such as "PK", "PK," or "PK,FK".
func erKeyToken(tok string) bool {
	parts := nonEmpty(strings.Split(tok, ","))
	if len(parts) == 0 {
		return tok == ","
	}
	for _, p := range parts {
		if !erAttributeKeys[p] {
			return false
		}
	}
	return true
}

func nonEmpty(parts []string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// maskER replaces cardinality tokens and quoted text with same-length
// filler, so brace matching only sees entity block delimiters.
func maskER(s string) string {
	s = erCardinality.ReplaceAllStringFunc(s, func(m string) string { return strings.Repeat("~", len(m)) })
	b := []byte(s)
	in := false
	for i, c := range b {
		if c == '"' {
			in = !in
			continue
		}
		if in {
			b[i] = '~'
		}
	}
	return string(b)
}
