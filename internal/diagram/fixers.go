package diagram

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/rendis/diagramguard/internal/logging"
)

// TargetedFixer is a narrowly scoped second-chance repair for one known
// failure pattern. Fix is only called when Applies returns true.
type TargetedFixer interface {
	Name() string
	Applies(def string) bool
	Fix(def string) string
}

// DefaultFixers returns the targeted fixers in application order.
func DefaultFixers() []TargetedFixer {
	return []TargetedFixer{CollapsedSequenceFixer{}, MinimalSequenceFixer{}, CollapsedERFixer{}}
}

// ApplyFixers runs every fixer whose precondition holds. A fixer that panics
// is skipped and its input passed on unchanged.
func ApplyFixers(ctx context.Context, logger *slog.Logger, fixers []TargetedFixer, def string) string {
	for _, f := range fixers {
		def = applyFixer(ctx, logger, f, def)
	}
	return def
}

func applyFixer(ctx context.Context, logger *slog.Logger, f TargetedFixer, def string) (out string) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.LogWith(ctx, logging.Default(logger)).Warn("targeted fixer faulted, keeping input",
				slog.String("fixer", f.Name()),
				slog.String("panic", fmt.Sprint(rec)),
			)
			out = def
		}
	}()
	if !f.Applies(def) {
		return def
	}
	return f.Fix(def)
}

// --- collapsed sequence diagrams ---

// maxCollapsedLines is the line count at or below which a sequence diagram
// carrying the quote-space artifact is treated as collapsed.
const maxCollapsedLines = 5

// CollapsedSequenceFixer re-expands a sequence diagram that an upstream
// storage step flattened onto one or a few lines.
type CollapsedSequenceFixer struct{}

func (CollapsedSequenceFixer) Name() string { return "collapsed-sequence" }

// Applies matches the flatten artifact: the sequenceDiagram keyword, a ->>
// message arrow, a quote followed by a space, at most five lines, and at
// least one line holding more than one statement.
func (CollapsedSequenceFixer) Applies(def string) bool {
	if !strings.Contains(def, "sequenceDiagram") || !strings.Contains(def, "->>") || !strings.Contains(def, `" `) {
		return false
	}
	lines := strings.Split(def, "\n")
	if len(lines) > maxCollapsedLines {
		return false
	}
	for _, line := range lines {
		if h, ok := ParseHeader(line); ok && h.Kind == KindSequence && !cleanHeaderRest(h) {
			return true
		}
		if strings.Count(line, "->>") > 1 {
			return true
		}
	}
	return false
}

func (CollapsedSequenceFixer) Fix(def string) string {
	joined := strings.ReplaceAll(def, "\n", " ")
	idx := strings.Index(joined, "sequenceDiagram")
	if idx < 0 {
		return def
	}
	var b strings.Builder
	if prefix := strings.TrimSpace(joined[:idx]); prefix != "" {
		b.WriteString(prefix + "\n")
	}
	b.WriteString("sequenceDiagram")

	e := &sequenceExpander{tokens: tokenizeQuoted(joined[idx+len("sequenceDiagram"):]), known: map[string]bool{}}
	for _, line := range e.expand() {
		b.WriteString("\n" + line)
	}
	return b.String()
}

var (
	messageToken = regexp.MustCompile(`^([\w.-]+?)(-->>|->>|--x|-x|--\)|-\)|-->|->)([+-]?)([\w.-]+?)(:.*)?$`)
	arrowToken   = regexp.MustCompile(`^(-->>|->>|--x|-x|--\)|-\)|-->|->)[+-]?$`)
	identToken   = regexp.MustCompile(`^[\w.-]+$`)
)

// tokenizeQuoted splits s on whitespace, keeping double-quoted runs intact.
func tokenizeQuoted(s string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case !inQuote && (r == ' ' || r == '\t'):
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

// sequenceExpander turns a flat token stream back into one statement per line.
type sequenceExpander struct {
	tokens []string
	known  map[string]bool // participants seen so far
	blocks []string        // open control blocks, innermost last
	out    []string
}

func (e *sequenceExpander) expand() []string {
	for i := 0; i < len(e.tokens); {
		i = e.statement(i)
	}
	for len(e.blocks) > 0 {
		e.blocks = e.blocks[:len(e.blocks)-1]
		e.emit(len(e.blocks), "end")
	}
	return e.out
}

func (e *sequenceExpander) emit(depth int, line string) {
	e.out = append(e.out, strings.Repeat("    ", depth+1)+line)
}

// statement consumes one statement starting at token i and returns the
// index of the next unconsumed token.
func (e *sequenceExpander) statement(i int) int {
	tok := e.tokens[i]
	switch {
	case e.isMessageAt(i):
		return e.message(i)
	case tok == "participant" || tok == "actor":
		j := e.until(i + 1)
		if j > i+1 {
			e.known[e.tokens[i+1]] = true
		}
		e.emit(len(e.blocks), strings.Join(e.tokens[i:j], " "))
		return j
	case tok == "Note":
		j := e.until(i + 1)
		e.emit(len(e.blocks), stripMessageQuotes(strings.Join(e.tokens[i:j], " ")))
		return j
	case tok == "autonumber" && len(e.out) == 0:
		e.emit(0, tok)
		return i + 1
	case (tok == "activate" || tok == "deactivate") && i+1 < len(e.tokens) && e.known[e.tokens[i+1]]:
		e.emit(len(e.blocks), tok+" "+e.tokens[i+1])
		return i + 2
	case sequenceBlockOpeners[tok]:
		j := e.until(i + 1)
		e.emit(len(e.blocks), strings.Join(e.tokens[i:j], " "))
		e.blocks = append(e.blocks, tok)
		return j
	case e.isMidBlock(tok):
		j := e.until(i + 1)
		e.emit(len(e.blocks)-1, strings.Join(e.tokens[i:j], " "))
		return j
	case tok == "end" && len(e.blocks) > 0:
		e.blocks = e.blocks[:len(e.blocks)-1]
		e.emit(len(e.blocks), "end")
		return i + 1
	}
	j := e.until(i + 1)
	e.emit(len(e.blocks), strings.Join(e.tokens[i:j], " "))
	return j
}

// message consumes a message statement: the arrow head plus its text.
func (e *sequenceExpander) message(i int) int {
	head := e.tokens[i]
	j := i + 1
	if !messageToken.MatchString(head) {
		head = e.tokens[i] + e.tokens[i+1]
		j = i + 2
		if j < len(e.tokens) {
			head += e.tokens[j]
			j++
		}
	}
	end := e.until(j)
	text := strings.Join(e.tokens[j:end], " ")

	arrow := head
	if k := strings.IndexByte(head, ':'); k >= 0 {
		arrow = head[:k]
		text = strings.TrimSpace(head[k+1:] + " " + text)
	}
	text = strings.TrimSpace(strings.TrimPrefix(text, ":"))
	if m := messageToken.FindStringSubmatch(arrow); m != nil {
		e.known[m[1]] = true
		e.known[m[4]] = true
	}

	line := arrow
	if text = strings.TrimSpace(strings.ReplaceAll(text, `"`, "")); text != "" {
		line += ": " + text
	}
	e.emit(len(e.blocks), line)
	return end
}

func (e *sequenceExpander) isMessageAt(i int) bool {
	tok := e.tokens[i]
	if strings.HasPrefix(tok, `"`) {
		return false
	}
	if messageToken.MatchString(tok) {
		return true
	}
	return i+1 < len(e.tokens) && identToken.MatchString(tok) && arrowToken.MatchString(e.tokens[i+1])
}

func (e *sequenceExpander) isMidBlock(tok string) bool {
	want := ""
	switch tok {
	case "else":
		want = "alt"
	case "and":
		want = "par"
	case "option":
		want = "critical"
	default:
		return false
	}
	for _, b := range e.blocks {
		if b == want {
			return true
		}
	}
	return false
}

// isStart reports whether token i opens a new statement.
func (e *sequenceExpander) isStart(i int) bool {
	tok := e.tokens[i]
	switch {
	case strings.HasPrefix(tok, `"`):
		return false
	case e.isMessageAt(i):
		return true
	case tok == "participant" || tok == "actor" || tok == "Note" || sequenceBlockOpeners[tok]:
		return true
	case tok == "end":
		return len(e.blocks) > 0
	case tok == "activate" || tok == "deactivate":
		return i+1 < len(e.tokens) && e.known[e.tokens[i+1]]
	}
	return e.isMidBlock(tok)
}

// until returns the index of the first statement start at or after i.
func (e *sequenceExpander) until(i int) int {
	for i < len(e.tokens) && !e.isStart(i) {
		i++
	}
	return i
}

// stripMessageQuotes removes double quotes from the text after the first colon.
func stripMessageQuotes(stmt string) string {
	k := strings.IndexByte(stmt, ':')
	if k < 0 {
		return stmt
	}
	text := strings.TrimSpace(strings.ReplaceAll(stmt[k+1:], `"`, ""))
	if text == "" {
		return stmt[:k+1]
	}
	return stmt[:k] + ": " + text
}

// --- minimal sequence fixes ---

var (
	quoteBeforeArrow = regexp.MustCompile(`"(\s*)(-->>|->>|--x|-x|--\)|-\)|-->|->)`)
	quoteAfterArrow  = regexp.MustCompile(`(-->>|->>|--x|-x|--\)|-\)|-->|->)([+-]?)(\s*)"`)
	gluedKeyword     = regexp.MustCompile(`^(\s*)(.*?:\s*"[^"]*?)\s\s+(and|else|par|end)(\s[^"]*)?"\s*$`)
)

// MinimalSequenceFixer removes stray quotes glued to message arrows, and
// moves a control keyword that ended up inside a quoted message back onto
// its own line. Nothing else on the line is touched.
type MinimalSequenceFixer struct{}

func (MinimalSequenceFixer) Name() string { return "minimal-sequence" }

func (MinimalSequenceFixer) Applies(def string) bool {
	if DetectKind(def) != KindSequence {
		return false
	}
	for _, line := range strings.Split(def, "\n") {
		if strayArrowQuote(line) || gluedKeyword.MatchString(line) {
			return true
		}
	}
	return false
}

func (MinimalSequenceFixer) Fix(def string) string {
	lines := strings.Split(def, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strayArrowQuote(line) {
			line = fixArrowQuotes(line)
		}
		if m := gluedKeyword.FindStringSubmatch(line); m != nil {
			out = append(out, m[1]+m[2]+`"`)
			out = append(out, m[1]+strings.TrimSpace(m[3]+m[4]))
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// messageHead returns the part of a message line left of its first colon.
func messageHead(line string) (head, tail string) {
	if k := strings.IndexByte(line, ':'); k >= 0 {
		return line[:k], line[k:]
	}
	return line, ""
}

func strayArrowQuote(line string) bool {
	head, tail := messageHead(line)
	if !strings.Contains(head, "-") || !strings.Contains(head, `"`) {
		return false
	}
	if quoteBeforeArrow.MatchString(head) || quoteAfterArrow.MatchString(head) {
		return true
	}
	return tail != "" && arrowIn(head) && strings.HasSuffix(strings.TrimRight(head, " "), `"`)
}

func arrowIn(s string) bool {
	return strings.Contains(s, "->") || strings.Contains(s, "-x") || strings.Contains(s, "-)")
}

func fixArrowQuotes(line string) string {
	head, tail := messageHead(line)
	head = quoteBeforeArrow.ReplaceAllString(head, "$1$2")
	head = quoteAfterArrow.ReplaceAllString(head, "$1$2$3")
	if tail != "" {
		trimmed := strings.TrimRight(head, " ")
		if strings.HasSuffix(trimmed, `"`) && strings.Count(trimmed, `"`)%2 == 1 {
			head = trimmed[:len(trimmed)-1] + head[len(trimmed):]
		}
	}
	return head + tail
}
