package diagram

import (
	"regexp"
	"strings"
	"unicode"
)

// NormalizeLayout unifies line endings, strips trailing whitespace and stray
// fence marker lines, and trims blank lines at both ends.
func NormalizeLayout(def string) string {
	def = strings.ReplaceAll(def, "\r\n", "\n")
	def = strings.ReplaceAll(def, "\r", "\n")

	src := strings.Split(def, "\n")
	lines := make([]string, 0, len(src))
	for _, l := range src {
		if isFenceMarker(l) {
			continue
		}
		lines = append(lines, strings.TrimRight(l, " \t"))
	}
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

var smartQuotes = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "″", `"`,
	"‘", "'", "’", "'", "‚", "'", "‛", "'",
)

// BalanceQuotes replaces typographic quotes with ASCII ones and strips stray
// double quotes from lines carrying an odd number of them.
func BalanceQuotes(def string) string {
	def = smartQuotes.Replace(def)
	lines := strings.Split(def, "\n")
	for i, line := range lines {
		n := strings.Count(line, `"`)
		if n == 0 {
			if b := strings.Count(line, "`"); b >= 2 && b%2 == 0 {
				line = strings.ReplaceAll(line, "`", `"`)
				n = b
			}
		}
		if n%2 == 1 {
			line = stripStrayQuotes(line)
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

// stripStrayQuotes pairs quotes left to right. A quote that cannot open or
// close a label is removed; an opener superseded by a later plausible opener
// is removed; a final unmatched opener is removed.
func stripStrayQuotes(line string) string {
	drop := make(map[int]bool)
	opener := -1
	for i := 0; i < len(line); i++ {
		if line[i] != '"' {
			continue
		}
		switch {
		case opener < 0 && canOpenQuote(line, i):
			opener = i
		case opener < 0:
			drop[i] = true
		case canCloseQuote(line, i):
			opener = -1
		case canOpenQuote(line, i):
			drop[opener] = true
			opener = i
		default:
			drop[i] = true
		}
	}
	if opener >= 0 {
		drop[opener] = true
	}
	var b strings.Builder
	b.Grow(len(line))
	for i := 0; i < len(line); i++ {
		if !drop[i] {
			b.WriteByte(line[i])
		}
	}
	return b.String()
}

func canOpenQuote(line string, i int) bool {
	return i == 0 || strings.IndexByte(" \t[({|>:,;=-", line[i-1]) >= 0
}

func canCloseQuote(line string, i int) bool {
	return i == len(line)-1 || strings.IndexByte(" \t])}|:;,<-\"", line[i+1]) >= 0
}

// NormalizeArrows rewrites near-miss arrow tokens to the canonical token of
// the definition's kind. Quoted text is never touched.
func NormalizeArrows(def string) string {
	kind := DetectKind(def)
	var fix func(string) string
	colonLimited := true
	pipes := false
	switch {
	case kind.IsFlow():
		fix, colonLimited, pipes = fixFlowArrows, false, true
	case kind == KindState || kind == KindClass:
		fix = fixFlowArrows
	case kind == KindSequence:
		fix = fixSequenceArrows
	case kind == KindER:
		fix = fixERArrows
	default:
		return def
	}

	lines := strings.Split(def, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "%%") {
			continue
		}
		lines[i] = rewriteOutside(line, colonLimited, pipes, fix)
	}
	return strings.Join(lines, "\n")
}

// rewriteOutside applies fix to the parts of line that are outside double
// quotes (and |pipe| labels when pipes is set). With colonLimited, everything
// after the first unquoted colon is left alone.
func rewriteOutside(line string, colonLimited, pipes bool, fix func(string) string) string {
	var out strings.Builder
	plainStart := 0
	flush := func(end int) {
		if end > plainStart {
			out.WriteString(fix(line[plainStart:end]))
		}
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		var closer byte
		switch {
		case c == '"':
			closer = '"'
		case pipes && c == '|':
			closer = '|'
		case colonLimited && c == ':':
			flush(i)
			out.WriteString(line[i:])
			return out.String()
		default:
			continue
		}
		j := strings.IndexByte(line[i+1:], closer)
		if j < 0 {
			continue
		}
		flush(i)
		end := i + 1 + j
		out.WriteString(line[i : end+1])
		i = end
		plainStart = end + 1
	}
	flush(len(line))
	return out.String()
}

var typographicFlowArrows = strings.NewReplacer("—>", "-->", "–>", "-->", "→", "-->", "⟶", "-->")

func fixFlowArrows(s string) string {
	s = typographicFlowArrows.Replace(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		var prev byte
		if i > 0 {
			prev = s[i-1]
		}
		rest := s[i:]
		switch {
		case strings.HasPrefix(rest, "-- >") && prev != '-' && prev != '<':
			b.WriteString("-->")
			i += 3
		case strings.HasPrefix(rest, "-.>"):
			b.WriteString("-.->")
			i += 2
		case strings.HasPrefix(rest, "->") && !strings.HasPrefix(rest, "->>") && strings.IndexByte("-.=<", prev) < 0:
			b.WriteString("-->")
			i++
		case strings.HasPrefix(rest, "=>") && prev != '=' && prev != '<':
			b.WriteString("==>")
			i++
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

var sequenceArrowFixes = strings.NewReplacer(
	"-->>>", "-->>",
	"->>>", "->>",
	"- >>", "->>",
	"=>>", "->>",
	"=>", "->>",
	"—>>", "->>",
	"–>>", "->>",
	"→", "->>",
)

func fixSequenceArrows(s string) string {
	return sequenceArrowFixes.Replace(s)
}

var erSingleLink = regexp.MustCompile(`([|}][|o])([-.])([|o][|{])`)

func fixERArrows(s string) string {
	return erSingleLink.ReplaceAllString(s, "$1$2$2$3")
}

var listMarker = regexp.MustCompile(`^(\s*)(?:[-*+\x{2022}]|\d+[.)])\s+`)

const safePunct = "[]{}()<>:;.,=-+*/\\|&%$#@!~\"'_?^`"

func safeRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) ||
		r == ' ' || r == '\t' || strings.ContainsRune(safePunct, r)
}

// SanitizeLabels cleans lines that fail a cheap parse heuristic: lines
// holding characters outside the safe set or starting with a markdown list
// marker. Other lines are left untouched.
func SanitizeLabels(def string) string {
	kind := DetectKind(def)
	lines := strings.Split(def, "\n")
	for i, line := range lines {
		unsafe := strings.IndexFunc(line, func(r rune) bool { return !safeRune(r) }) >= 0
		listed := kind != KindClass && listMarker.MatchString(line)
		if !unsafe && !listed {
			continue
		}
		if listed {
			line = listMarker.ReplaceAllString(line, "$1")
		}
		if unsafe {
			line = strings.Map(func(r rune) rune {
				if safeRune(r) {
					return r
				}
				return -1
			}, line)
		}
		lines[i] = collapseSpaces(line)
	}
	return strings.Join(lines, "\n")
}

// collapseSpaces squeezes interior runs of blanks, keeping the indentation.
func collapseSpaces(line string) string {
	body := strings.TrimLeft(line, " \t")
	indent := line[:len(line)-len(body)]
	return indent + strings.Join(strings.Fields(body), " ")
}

var structuralTokens = []string{"->", "=>", "..>", "[*]", "<|", "|>"}

// DropGarbageLines removes lines with no letters or digits, unless they are
// blank, comments, front-matter delimiters, state concurrency separators,
// bracket-only closers, or carry an arrow token.
func DropGarbageLines(def string) string {
	lines := strings.Split(def, "\n")
	kept := lines[:0:0]
	for _, line := range lines {
		if keepLine(line) {
			kept = append(kept, line)
		}
	}
	if len(kept) == len(lines) {
		return def
	}
	return strings.Join(kept, "\n")
}

func keepLine(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" || t == "---" || t == "--" || strings.HasPrefix(t, "%%") {
		return true
	}
	if strings.IndexFunc(t, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0 {
		return true
	}
	if strings.Trim(t, "[]{}() \t") == "" {
		return true
	}
	for _, tok := range structuralTokens {
		if strings.Contains(t, tok) {
			return true
		}
	}
	return false
}

var sequenceBlockOpeners = map[string]bool{
	"loop": true, "alt": true, "opt": true, "par": true, "rect": true,
	"critical": true, "break": true, "box": true,
}

// blockOpener reports whether line opens an end-terminated block for kind.
func blockOpener(kind Kind, line string) bool {
	word, _ := splitWord(strings.TrimSpace(line))
	switch {
	case kind.IsFlow():
		return word == "subgraph"
	case kind == KindSequence:
		return sequenceBlockOpeners[word]
	}
	return false
}

func blockCloser(line string) bool {
	word, rest := splitWord(strings.TrimSpace(line))
	return word == "end" && (rest == "" || rest == ";")
}

// CloseBlocks appends the missing "end" lines for unterminated subgraph and
// sequence control blocks, innermost first, at the opener's indentation.
func CloseBlocks(def string) string {
	kind := DetectKind(def)
	if !kind.IsFlow() && kind != KindSequence {
		return def
	}
	var open []string
	for _, line := range strings.Split(def, "\n") {
		switch {
		case blockOpener(kind, line):
			open = append(open, line[:len(line)-len(strings.TrimLeft(line, " \t"))])
		case blockCloser(line) && len(open) > 0:
			open = open[:len(open)-1]
		}
	}
	if len(open) == 0 {
		return def
	}
	var b strings.Builder
	b.WriteString(def)
	for i := len(open) - 1; i >= 0; i-- {
		b.WriteString("\n" + open[i] + "end")
	}
	return b.String()
}

// blockBalance counts openers and closers for kind.
func blockBalance(kind Kind, def string) (opened, closed int) {
	for _, line := range strings.Split(def, "\n") {
		switch {
		case blockOpener(kind, line):
			opened++
		case blockCloser(line):
			closed++
		}
	}
	return opened, closed
}
