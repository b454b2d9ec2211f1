package diagram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rendis/diagramguard/internal/logging"
)

// Fixer is a pure definition-to-definition transformation.
type Fixer func(def string) string

// Rule is one named repair pass.
type Rule struct {
	Name string
	Fix  Fixer
}

// RulesVersion identifies the current rule set. Stored diagram sets repaired
// with an older version are picked up by the rescanner.
const RulesVersion = 4

// maxPasses bounds how often the ordered rule list is re-applied while
// looking for a fixpoint.
const maxPasses = 4

// DefaultRules returns the repair rules in application order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "normalize-layout", Fix: NormalizeLayout},
		{Name: "balance-quotes", Fix: BalanceQuotes},
		{Name: "normalize-arrows", Fix: NormalizeArrows},
		{Name: "sanitize-labels", Fix: SanitizeLabels},
		{Name: "drop-garbage-lines", Fix: DropGarbageLines},
		{Name: "close-blocks", Fix: CloseBlocks},
	}
}

// Repairer applies an ordered list of rules to a definition.
type Repairer struct {
	rules  []Rule
	logger *slog.Logger
}

// NewRepairer creates a Repairer. A nil rules slice means DefaultRules.
func NewRepairer(rules []Rule, logger *slog.Logger) *Repairer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Repairer{rules: rules, logger: logging.Default(logger)}
}

// Rules returns the configured rules in order.
func (r *Repairer) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Repair runs every rule in order, repeating the whole pass until the output
// stops changing. It never panics: a faulting rule is skipped and its input
// kept.
func (r *Repairer) Repair(ctx context.Context, def string) string {
	cur := def
	for pass := 0; pass < maxPasses; pass++ {
		next := cur
		for _, rule := range r.rules {
			next = r.apply(ctx, rule, next)
		}
		if next == cur {
			break
		}
		cur = next
	}
	return cur
}

func (r *Repairer) apply(ctx context.Context, rule Rule, def string) (out string) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.LogWith(ctx, r.logger).Warn("repair rule faulted, skipping",
				slog.String("rule", rule.Name),
				slog.String("panic", fmt.Sprint(rec)),
			)
			out = def
		}
	}()
	return rule.Fix(def)
}

// Repair applies DefaultRules with a default logger.
func Repair(def string) string {
	return NewRepairer(nil, nil).Repair(context.Background(), def)
}
