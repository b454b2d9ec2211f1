package diagram

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rendis/diagramguard/pkg/schema"
)

var (
	erCardinality  = regexp.MustCompile(`[|}][|o](--|\.\.)[|o][|{]`)
	asyncArrow     = regexp.MustCompile(`--?\)`)
	asymmetricNode = regexp.MustCompile(`(\w)>([^\]]*)\]`)
)

var bracketPairs = map[byte]byte{')': '(', ']': '[', '}': '{'}

// Validate runs the advisory structural checks and reports the first
// violation found. It never gates inclusion.
func Validate(def string) schema.ValidationResult {
	if strings.TrimSpace(def) == "" {
		return schema.Fail("diagram is empty")
	}
	kind := DetectKind(def)
	lines := strings.Split(def, "\n")

	if msg := checkBrackets(kind, lines); msg != "" {
		return schema.Fail(msg)
	}
	if strings.Count(def, `"`)%2 == 1 {
		return schema.Fail(fmt.Sprintf("unbalanced quotes: line %d has an unterminated string", firstOddQuoteLine(lines)))
	}
	if !ContainsKeyword(def) {
		return schema.Fail("no recognized diagram type keyword")
	}
	if n := firstOddQuoteLine(lines); n > 0 {
		return schema.Fail(fmt.Sprintf("unterminated string on line %d", n))
	}
	if opened, closed := blockBalance(kind, def); opened != closed {
		return schema.Fail(fmt.Sprintf("mismatched blocks: %d opened, %d closed", opened, closed))
	}
	return schema.Pass()
}

// checkBrackets verifies (), [] and {} nesting across the whole definition,
// ignoring quoted text and comment lines, so multi-line entity, class and
// state bodies pair up. Syntax that legitimately carries unpaired bracket
// characters for kind is neutralized first.
func checkBrackets(kind Kind, lines []string) string {
	type opener struct {
		c    byte
		line int
	}
	var stack []opener
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "%%") {
			continue
		}
		line = unquoted(line)
		switch {
		case kind == KindER:
			line = erCardinality.ReplaceAllString(line, "--")
		case kind == KindSequence:
			line = asyncArrow.ReplaceAllString(line, "->")
		case kind.IsFlow():
			line = asymmetricNode.ReplaceAllString(line, "$1[$2]")
		}

		for j := 0; j < len(line); j++ {
			c := line[j]
			switch c {
			case '(', '[', '{':
				stack = append(stack, opener{c: c, line: i + 1})
			case ')', ']', '}':
				if len(stack) == 0 {
					return fmt.Sprintf("unexpected '%c' on line %d", c, i+1)
				}
				if top := stack[len(stack)-1]; top.c != bracketPairs[c] {
					return fmt.Sprintf("mismatched '%c' closed by '%c' on line %d", top.c, c, i+1)
				}
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return fmt.Sprintf("unclosed '%c' on line %d", top.c, top.line)
	}
	return ""
}

// unquoted blanks out the text between paired double quotes. An unpaired
// trailing quote leaves the rest of the line as is.
func unquoted(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	for {
		i := strings.IndexByte(line, '"')
		if i < 0 {
			break
		}
		j := strings.IndexByte(line[i+1:], '"')
		if j < 0 {
			break
		}
		b.WriteString(line[:i])
		b.WriteString(`""`)
		line = line[i+j+2:]
	}
	b.WriteString(line)
	return b.String()
}

// firstOddQuoteLine returns the 1-based number of the first line holding an
// odd number of double quotes, or 0.
func firstOddQuoteLine(lines []string) int {
	for i, line := range lines {
		if strings.Count(line, `"`)%2 == 1 {
			return i + 1
		}
	}
	return 0
}
