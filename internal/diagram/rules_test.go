package diagram

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type ruleCase struct {
	name string
	in   string
	want string
}

func runRuleCases(t *testing.T, fix Fixer, cases []ruleCase) {
	t.Helper()
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := fix(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, fix(got), "rule must be idempotent")
		})
	}
}

func TestNormalizeLayout(t *testing.T) {
	runRuleCases(t, NormalizeLayout, []ruleCase{
		{"unchanged", "graph TD\n    A --> B", "graph TD\n    A --> B"},
		{"crlf and edges", "\r\n\ngraph TD\r\n  A-->B   \r\n\n", "graph TD\n  A-->B"},
		{"stray fences", "```mermaid\ngraph TD\n  A-->B\n```", "graph TD\n  A-->B"},
		{"lone cr", "graph TD\r  A-->B", "graph TD\n  A-->B"},
	})
}

func TestBalanceQuotes(t *testing.T) {
	runRuleCases(t, BalanceQuotes, []ruleCase{
		{"balanced", `    A["Hello"] --> B`, `    A["Hello"] --> B`},
		{"unterminated label", `    A["Hello] --> B`, `    A[Hello] --> B`},
		{"smart quotes", "    A[“Hi”] --> B", `    A["Hi"] --> B`},
		{"inner stray", `    A->>B: "say "hi"`, `    A->>B: say "hi"`},
		{"backticks", "    A[`code`] --> B", `    A["code"] --> B`},
		{"apostrophe kept", "    A[it's fine] --> B", "    A[it's fine] --> B"},
	})
}

func TestNormalizeArrows(t *testing.T) {
	runRuleCases(t, NormalizeArrows, []ruleCase{
		{"flow single dash", "graph TD\n  A -> B", "graph TD\n  A --> B"},
		{"flow spaced", "graph TD\n  A -- > B", "graph TD\n  A --> B"},
		{"flow dotted", "graph TD\n  A -.> B", "graph TD\n  A -.-> B"},
		{"flow thick", "graph TD\n  A => B", "graph TD\n  A ==> B"},
		{"flow typographic", "graph TD\n  A → B", "graph TD\n  A --> B"},
		{"flow canonical", "graph TD\n  A -->|a -> b| B", "graph TD\n  A -->|a -> b| B"},
		{"flow quoted", "graph TD\n  A[\"x -> y\"] --> B", "graph TD\n  A[\"x -> y\"] --> B"},
		{"sequence extra head", "sequenceDiagram\n  A->>>B: hi => there", "sequenceDiagram\n  A->>B: hi => there"},
		{"sequence fat arrow", "sequenceDiagram\n  A=>B: go", "sequenceDiagram\n  A->>B: go"},
		{"sequence canonical", "sequenceDiagram\n  A-->>B: ok", "sequenceDiagram\n  A-->>B: ok"},
		{"er single link", "erDiagram\n  A |o-o{ B : has", "erDiagram\n  A |o--o{ B : has"},
		{"er canonical", "erDiagram\n  A ||--o{ B : has", "erDiagram\n  A ||--o{ B : has"},
		{"state", "stateDiagram-v2\n  Idle -> Busy : go -> now", "stateDiagram-v2\n  Idle --> Busy : go -> now"},
		{"unknown kind", "A -> B", "A -> B"},
	})
}

func TestSanitizeLabels(t *testing.T) {
	runRuleCases(t, SanitizeLabels, []ruleCase{
		{"clean", "graph TD\n  A[Start] --> B", "graph TD\n  A[Start] --> B"},
		{"list marker", "graph TD\n  - A --> B", "graph TD\n  A --> B"},
		{"numbered marker", "graph TD\n  1. A --> B", "graph TD\n  A --> B"},
		{"emoji", "graph TD\n  A[Start 🚀] --> B", "graph TD\n  A[Start ] --> B"},
		{"class members", "classDiagram\n  class A {\n    - int x\n  }", "classDiagram\n  class A {\n    - int x\n  }"},
		{"unicode letters", "graph TD\n  A[Café] --> B", "graph TD\n  A[Café] --> B"},
	})
}

func TestDropGarbageLines(t *testing.T) {
	runRuleCases(t, DropGarbageLines, []ruleCase{
		{"clean", "graph TD\n  A --> B", "graph TD\n  A --> B"},
		{"garbage", "graph TD\n  A --> B\n  ;;;;\n  ....\n  }", "graph TD\n  A --> B\n  }"},
		{"separators", "stateDiagram-v2\n  [*] --> A\n  --\n  %% note", "stateDiagram-v2\n  [*] --> A\n  --\n  %% note"},
	})
}

func TestCloseBlocks(t *testing.T) {
	runRuleCases(t, CloseBlocks, []ruleCase{
		{
			"balanced",
			"graph TD\n  subgraph one\n    A --> B\n  end",
			"graph TD\n  subgraph one\n    A --> B\n  end",
		},
		{
			"subgraph",
			"graph TD\n  subgraph one\n    A --> B\n  subgraph two\n    C --> D\n  end",
			"graph TD\n  subgraph one\n    A --> B\n  subgraph two\n    C --> D\n  end\n  end",
		},
		{
			"sequence nested",
			"sequenceDiagram\n  loop every minute\n    A->>B: ping\n    alt ok\n      B->>A: pong",
			"sequenceDiagram\n  loop every minute\n    A->>B: ping\n    alt ok\n      B->>A: pong\n    end\n  end",
		},
		{
			"other kinds untouched",
			"classDiagram\n  class A",
			"classDiagram\n  class A",
		},
	})
}

// Clean definitions pass through repair and the fixers unchanged and satisfy
// both validators.
func TestRepairer_CleanCorpusIdentity(t *testing.T) {
	corpus := []string{
		"graph TD\n    A[Start] --> B{Decide}\n    B -->|yes| C[Done]\n    B -->|no| D[Retry]",
		"sequenceDiagram\n    participant User\n    User->>API: request\n    API-->>User: response",
		"erDiagram\n    CUSTOMER ||--o{ ORDER : places",
		"erDiagram\n    CUSTOMER ||--o{ ORDER : places\n    CUSTOMER {\n        string name\n        string email PK\n    }\n    ORDER {\n        int id PK\n    }",
		"classDiagram\n    class Animal {\n        +String name\n        +eat() void\n    }\n    Animal <|-- Dog",
		"stateDiagram-v2\n    [*] --> Idle\n    Idle --> Running : start\n    Running --> [*]",
		"stateDiagram-v2\n    [*] --> Active\n    state Active {\n        [*] --> Working\n        Working --> Paused\n    }\n    Active --> [*]",
		"pie title Pets\n    \"Dogs\" : 386\n    \"Cats\" : 85",
	}
	r := NewRepairer(nil, discardLogger())
	for _, def := range corpus {
		repaired := r.Repair(context.Background(), def)
		assert.Equal(t, def, repaired)

		fixed := ApplyFixers(context.Background(), discardLogger(), DefaultFixers(), repaired)
		assert.Equal(t, def, fixed)

		assert.True(t, IsRenderable(fixed), def)
		res := Validate(fixed)
		assert.True(t, res.Valid, "%s: %s", def, res.Error)
	}
}

func TestRepairer_Idempotent(t *testing.T) {
	inputs := []string{
		"```mermaid\ngraph TD\r\n  - A -> B[“Go”]\n  ;;;;\n  subgraph s\n    C -.> D\n```",
		"sequenceDiagram\n  loop poll\n    A=>B: \"ping\n",
		"erDiagram\n  A |o-o{ B : has 🚀",
	}
	for _, in := range inputs {
		once := Repair(in)
		assert.Equal(t, once, Repair(once))
	}
}

func TestRepairer_FaultingRuleIsSkipped(t *testing.T) {
	rules := []Rule{
		{Name: "boom", Fix: func(string) string { panic("bad rule") }},
		{Name: "upper", Fix: strings.ToUpper},
	}
	r := NewRepairer(rules, discardLogger())
	assert.Equal(t, "ABC", r.Repair(context.Background(), "abc"))
	assert.Len(t, r.Rules(), 2)
}

func TestDefaultRules_Order(t *testing.T) {
	var names []string
	for _, r := range DefaultRules() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{
		"normalize-layout", "balance-quotes", "normalize-arrows",
		"sanitize-labels", "drop-garbage-lines", "close-blocks",
	}, names)
}
