package render

import (
	"strings"
	"unicode"
)

// Category groups diagram keys for presentation.
type Category int

const (
	CategoryOther Category = iota
	CategoryArchitecture
	CategoryDatabase
	CategoryUserFlow
	CategoryAPIFlow
	CategorySequence
	CategoryClass
	CategoryState
	CategoryEntity
	CategoryDeployment
	CategoryComponent
)

type categoryInfo struct {
	keyword string
	label   string
	icon    string
}

var categories = map[Category]categoryInfo{
	CategoryArchitecture: {"architecture", "Architecture", "🏗️"},
	CategoryDatabase:     {"database", "Database", "🗄️"},
	CategoryUserFlow:     {"userflow", "User Flow", "👤"},
	CategoryAPIFlow:      {"apiflow", "API Flow", "🔄"},
	CategorySequence:     {"sequence", "Sequence", "📋"},
	CategoryClass:        {"class", "Class", "📦"},
	CategoryState:        {"state", "State", "🔀"},
	CategoryEntity:       {"entity", "Entity", "🔷"},
	CategoryDeployment:   {"deployment", "Deployment", "🚀"},
	CategoryComponent:    {"component", "Component", "🧩"},
	CategoryOther:        {"", "Diagram", "📊"},
}

// matchOrder is the order in which keywords are tried against a key.
var matchOrder = []Category{
	CategoryArchitecture,
	CategoryDatabase,
	CategoryUserFlow,
	CategoryAPIFlow,
	CategorySequence,
	CategoryClass,
	CategoryState,
	CategoryEntity,
	CategoryDeployment,
	CategoryComponent,
}

// Label returns the category's display name.
func (c Category) Label() string { return categories[c].label }

// Icon returns the category's glyph.
func (c Category) Icon() string { return categories[c].icon }

func (c Category) String() string { return c.Label() }

// Classify picks the first category whose keyword occurs in key, ignoring
// case and separators. Keys matching nothing are CategoryOther.
func Classify(key string) Category {
	norm := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, key)
	for _, c := range matchOrder {
		if strings.Contains(norm, categories[c].keyword) {
			return c
		}
	}
	return CategoryOther
}

// DiagramLabel is the title and icon shown for a diagram key.
type DiagramLabel struct {
	Title string `json:"title"`
	Icon  string `json:"icon"`
}

// LabelFor derives the presentation label of key.
func LabelFor(key string) DiagramLabel {
	return DiagramLabel{Title: Humanize(key), Icon: Classify(key).Icon()}
}

// Humanize turns a key into a title: separators become spaces, camelCase is
// split, and each word is capitalized.
func Humanize(key string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	runes := []rune(key)
	for i, r := range runes {
		switch {
		case r == '-' || r == '_' || unicode.IsSpace(r):
			flush()
			continue
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
		}
		cur = append(cur, r)
	}
	flush()

	for i, w := range words {
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}
