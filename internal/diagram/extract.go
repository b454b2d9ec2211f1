package diagram

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/rendis/diagramguard/internal/logging"
	"github.com/rendis/diagramguard/pkg/schema"
)

// Mode selects how the extractor names the diagrams it finds.
type Mode string

const (
	// ModeSections keys each diagram by the nearest preceding heading.
	ModeSections Mode = "sections"
	// ModeSimple keys diagrams positionally: diagram1, diagram2, ...
	ModeSimple Mode = "simple"
)

// DefaultMaxBytes bounds how much of a document is scanned.
const DefaultMaxBytes = 512 << 10

// ParseMode maps a config string to a Mode, defaulting to ModeSections.
func ParseMode(s string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(s))) == ModeSimple {
		return ModeSimple
	}
	return ModeSections
}

// ExtractOptions configures an Extractor.
type ExtractOptions struct {
	Mode     Mode
	MaxBytes int
	Logger   *slog.Logger
}

// Extractor finds diagram definitions in markdown-ish text.
// It holds no per-call state and is safe for concurrent use.
type Extractor struct {
	mode     Mode
	maxBytes int
	logger   *slog.Logger
	md       goldmark.Markdown
}

// NewExtractor creates an Extractor.
func NewExtractor(opts ExtractOptions) *Extractor {
	if opts.Mode == "" {
		opts.Mode = ModeSections
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	return &Extractor{
		mode:     opts.Mode,
		maxBytes: opts.MaxBytes,
		logger:   logging.Default(opts.Logger),
		md:       goldmark.New(),
	}
}

// Extract is shorthand for NewExtractor(opts).Extract(context.Background(), doc).
func Extract(doc string, opts ExtractOptions) *schema.DiagramSet {
	return NewExtractor(opts).Extract(context.Background(), doc)
}

// ExtractSimple extracts with positional keys.
func ExtractSimple(doc string) *schema.DiagramSet {
	return Extract(doc, ExtractOptions{Mode: ModeSimple})
}

// ExtractSections extracts with heading-derived keys.
func ExtractSections(doc string) *schema.DiagramSet {
	return Extract(doc, ExtractOptions{Mode: ModeSections})
}

type fence struct {
	start, end int // line range, inclusive, fence markers included
	lang       string
	content    string
}

// outline is the block structure the extractor cares about.
type outline struct {
	lines    []string
	headings map[int]string // first line of a heading -> heading text
	boundary map[int]bool   // heading lines and setext underlines
	fences   map[int]fence  // keyed by start line
	inFence  map[int]bool
}

type candidate struct {
	line    int
	heading string
	def     string
}

// Extract returns every diagram candidate found in doc, keyed per the
// extractor mode. Definitions are verbatim apart from surrounding whitespace
// and fence markers. It never panics; a candidate that faults is skipped.
func (e *Extractor) Extract(ctx context.Context, doc string) *schema.DiagramSet {
	set := schema.NewDiagramSet()
	if strings.TrimSpace(doc) == "" {
		return set
	}
	logger := logging.LogWith(ctx, e.logger)

	if len(doc) > e.maxBytes {
		logger.Warn("document exceeds extraction budget, truncating",
			slog.Int("bytes", len(doc)),
			slog.Int("max_bytes", e.maxBytes),
		)
		doc = truncateAtLine(doc, e.maxBytes)
	}

	ol := e.outline(logger, doc)
	for _, c := range scanCandidates(ol) {
		e.accept(logger, set, c)
	}
	return set
}

// accept keys one candidate into set, recovering from any fault.
func (e *Extractor) accept(logger *slog.Logger, set *schema.DiagramSet, c candidate) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("skipping diagram candidate after internal fault",
				slog.Int("line", c.line+1),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	if !hasBody(c.def) {
		logger.Debug("dropping diagram candidate without body", slog.Int("line", c.line+1))
		return
	}

	positional := "diagram" + strconv.Itoa(set.Len()+1)
	base := positional
	if e.mode == ModeSections {
		if slug := SlugifyHeading(c.heading); slug != "" {
			base = slug
		}
	}
	set.Add(uniqueKey(set, base, DetectKind(c.def)), c.def)
}

// outline parses doc with goldmark to locate headings and fenced blocks.
// If the parser faults, headings fall back to ATX line matching and fenced
// blocks are picked up by the loose scanner.
func (e *Extractor) outline(logger *slog.Logger, doc string) (ol *outline) {
	lines := strings.Split(doc, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	ol = &outline{
		lines:    lines,
		headings: make(map[int]string),
		boundary: make(map[int]bool),
		fences:   make(map[int]fence),
		inFence:  make(map[int]bool),
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("markdown parse failed, falling back to line scan", slog.String("panic", fmt.Sprint(r)))
			ol = fallbackOutline(lines)
		}
	}()

	src := []byte(doc)
	starts := lineStarts(src)
	lineOf := func(offset int) int {
		return sort.Search(len(starts), func(i int) bool { return starts[i] > offset }) - 1
	}

	root := e.md.Parser().Parse(text.NewReader(src))
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			segs := node.Lines()
			if segs.Len() == 0 {
				return ast.WalkSkipChildren, nil
			}
			first := lineOf(segs.At(0).Start)
			title := strings.TrimSpace(inlineText(node, src))
			if bytes.IndexByte(src[starts[first]:segs.At(0).Start], '#') >= 0 {
				ol.headings[first] = title
				ol.boundary[first] = true
				return ast.WalkSkipChildren, nil
			}
			// Setext heading: a diagram line directly above "---" parses as one.
			if isDiagramStart(lines[first]) || strings.Contains(title, "->") {
				return ast.WalkSkipChildren, nil
			}
			last := lineOf(segs.At(segs.Len() - 1).Start)
			ol.headings[first] = title
			for l := first; l <= last+1 && l < len(lines); l++ {
				ol.boundary[l] = true
			}
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock:
			f := fence{lang: strings.ToLower(string(node.Language(src)))}
			segs := node.Lines()
			switch {
			case node.Info != nil:
				f.start = lineOf(node.Info.Segment.Start)
			case segs.Len() > 0:
				f.start = lineOf(segs.At(0).Start) - 1
			default:
				return ast.WalkSkipChildren, nil
			}
			f.end = f.start
			if segs.Len() > 0 {
				f.content = string(segs.Value(src))
				f.end = lineOf(segs.At(segs.Len() - 1).Start)
			}
			if f.end+1 < len(lines) && isFenceMarker(lines[f.end+1]) {
				f.end++
			}
			if f.start < 0 {
				f.start = 0
			}
			ol.fences[f.start] = f
			for l := f.start; l <= f.end; l++ {
				ol.inFence[l] = true
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return ol
}

var atxHeading = regexp.MustCompile(`^ {0,3}#{1,6}[ \t]+(.*?)[ \t#]*$`)

func fallbackOutline(lines []string) *outline {
	ol := &outline{
		lines:    lines,
		headings: make(map[int]string),
		boundary: make(map[int]bool),
		fences:   make(map[int]fence),
		inFence:  make(map[int]bool),
	}
	for i, l := range lines {
		if m := atxHeading.FindStringSubmatch(l); m != nil {
			ol.headings[i] = m[1]
			ol.boundary[i] = true
		}
	}
	return ol
}

// scanCandidates walks the document lines in order, emitting fenced and
// loose diagram candidates tagged with the nearest preceding heading.
func scanCandidates(ol *outline) []candidate {
	var out []candidate
	heading := ""
	lines := ol.lines
	for i := 0; i < len(lines); i++ {
		if f, ok := ol.fences[i]; ok {
			if f.lang == "mermaid" || isDiagramStart(FirstContentLine(f.content)) {
				out = append(out, candidate{line: i, heading: heading, def: strings.TrimSpace(f.content)})
			}
			i = f.end
			continue
		}
		if title, ok := ol.headings[i]; ok {
			heading = title
			continue
		}
		if ol.boundary[i] || ol.inFence[i] || !isDiagramStart(lines[i]) {
			continue
		}

		end := looseEnd(ol, i)
		var body []string
		for _, l := range lines[i:end] {
			if isRule(l) {
				continue
			}
			body = append(body, l)
		}
		out = append(out, candidate{line: i, heading: heading, def: strings.TrimSpace(strings.Join(body, "\n"))})
		i = end - 1
	}
	return out
}

// looseEnd returns the exclusive end line of a loose block starting at start.
func looseEnd(ol *outline, start int) int {
	lines := ol.lines
	for j := start + 1; j < len(lines); j++ {
		switch {
		case ol.boundary[j], ol.inFence[j], isFenceMarker(lines[j]), isDiagramStart(lines[j]):
			return j
		case strings.TrimSpace(lines[j-1]) == "" && isProse(lines[j]):
			return j
		}
	}
	return len(lines)
}

// isDiagramStart reports whether line opens a loose diagram block. Flowchart
// keywords must be followed by a direction or end of statement so prose
// starting with "Graph" is not mistaken for a diagram.
func isDiagramStart(line string) bool {
	h, ok := ParseHeader(line)
	if !ok {
		return false
	}
	if h.Kind.IsFlow() {
		return h.Direction != "" || h.Rest == "" || strings.HasPrefix(h.Rest, ";")
	}
	return true
}

// hasBody reports whether def holds anything beyond its header keyword.
func hasBody(def string) bool {
	lines := contentLines(def)
	if len(lines) == 0 {
		return false
	}
	h, ok := ParseHeader(lines[0])
	if !ok {
		return strings.TrimSpace(strings.Join(lines, "\n")) != ""
	}
	if strings.TrimSpace(strings.TrimPrefix(h.Rest, ";")) != "" {
		return true
	}
	for _, l := range lines[1:] {
		if t := strings.TrimSpace(l); t != "" && !strings.HasPrefix(t, "%%") {
			return true
		}
	}
	return false
}

func isFenceMarker(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "```") || strings.HasPrefix(t, "~~~")
}

// isRule matches markdown thematic breaks and setext underlines.
func isRule(line string) bool {
	t := strings.TrimSpace(line)
	if len(t) < 3 {
		return false
	}
	return strings.Trim(t, "=") == "" || strings.Trim(t, "-") == "" || strings.Trim(t, "*") == "" || strings.Trim(t, "_") == ""
}

// isProse is a cheap sentence detector used to end a loose block at the
// first narrative paragraph following it.
func isProse(line string) bool {
	t := strings.TrimSpace(line)
	if len(strings.Fields(t)) < 4 {
		return false
	}
	first, _ := utf8.DecodeRuneInString(t)
	last, _ := utf8.DecodeLastRuneInString(t)
	if !unicode.IsUpper(first) || !strings.ContainsRune(".!?", last) {
		return false
	}
	return !strings.ContainsAny(t, "[]{}|:;") && !strings.Contains(t, "->") && !strings.Contains(t, "--") && !strings.Contains(t, "==")
}

func lineStarts(src []byte) []int {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// inlineText concatenates the text of a heading's inline children.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch c := child.(type) {
		case *ast.Text:
			b.Write(c.Segment.Value(src))
			if c.SoftLineBreak() || c.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(c.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// truncateAtLine cuts doc to at most max bytes, preferring the last newline.
func truncateAtLine(doc string, max int) string {
	cut := doc[:max]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		return cut[:i]
	}
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

var headingNumber = regexp.MustCompile(`^\s*\d+(\.\d+)*[.)]?\s+`)

// SlugifyHeading turns heading text into a diagram key: leading numbering is
// removed, letters are lowercased, and runs of anything else become '-'.
func SlugifyHeading(heading string) string {
	s := headingNumber.ReplaceAllString(heading, "")
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// uniqueKey returns base if unused, else base suffixed with the kind slug,
// then with an incrementing index.
func uniqueKey(set *schema.DiagramSet, base string, kind Kind) string {
	if !set.Has(base) {
		return base
	}
	typed := base + "-" + kind.Slug()
	if !set.Has(typed) {
		return typed
	}
	for n := 2; ; n++ {
		k := typed + "-" + strconv.Itoa(n)
		if !set.Has(k) {
			return k
		}
	}
}
