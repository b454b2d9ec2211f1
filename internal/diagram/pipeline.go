package diagram

import (
	"context"
	"log/slog"

	"github.com/rendis/diagramguard/internal/logging"
	"github.com/rendis/diagramguard/pkg/schema"
)

// Options configures a Pipeline. Zero values select the defaults.
type Options struct {
	Logger   *slog.Logger
	Mode     Mode
	MaxBytes int
	// Rules overrides DefaultRules when non-nil.
	Rules []Rule
	// Fixers overrides DefaultFixers when non-nil.
	Fixers []TargetedFixer
	// WarnOnInvalid logs a warning for accepted definitions that still fail
	// the structural validator.
	WarnOnInvalid bool
}

// Pipeline chains extraction, repair, targeted fixes and the renderability
// gate. A Pipeline is immutable after construction and safe for concurrent use.
type Pipeline struct {
	extractor     *Extractor
	repairer      *Repairer
	fixers        []TargetedFixer
	logger        *slog.Logger
	warnOnInvalid bool
}

// NewPipeline creates a Pipeline from opts.
func NewPipeline(opts Options) *Pipeline {
	logger := logging.Default(opts.Logger)
	fixers := opts.Fixers
	if fixers == nil {
		fixers = DefaultFixers()
	}
	return &Pipeline{
		extractor:     NewExtractor(ExtractOptions{Mode: opts.Mode, MaxBytes: opts.MaxBytes, Logger: logger}),
		repairer:      NewRepairer(opts.Rules, logger),
		fixers:        fixers,
		logger:        logger,
		warnOnInvalid: opts.WarnOnInvalid,
	}
}

// Input is one of the two accepted input shapes. Exactly one field is set.
type Input struct {
	Document string
	Diagrams *schema.DiagramSet
}

// Process dispatches on the shape of in.
func (p *Pipeline) Process(ctx context.Context, in Input) (*schema.DiagramSet, error) {
	if in.Document != "" && in.Diagrams != nil {
		return nil, schema.NewError(schema.ErrCodeContractViolation, "input carries both a document and a diagram mapping")
	}
	if in.Diagrams != nil {
		return p.ProcessSet(ctx, in.Diagrams), nil
	}
	return p.ProcessDocument(ctx, in.Document), nil
}

// Extract returns the raw candidates of doc without sanitizing them.
func (p *Pipeline) Extract(ctx context.Context, doc string) *schema.DiagramSet {
	return p.extractor.Extract(ctx, doc)
}

// ProcessDocument extracts diagrams from doc and sanitizes each one.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc string) *schema.DiagramSet {
	return p.ProcessSet(ctx, p.extractor.Extract(ctx, doc))
}

// ProcessSet sanitizes every entry of set, keeping only those that pass the
// renderability gate, in the original order. A nil set is a caller bug.
func (p *Pipeline) ProcessSet(ctx context.Context, set *schema.DiagramSet) *schema.DiagramSet {
	if set == nil {
		panic("diagram: ProcessSet called with nil set")
	}
	out := schema.NewDiagramSet()
	for _, e := range set.Entries() {
		if def, ok := p.Sanitize(ctx, e.Key, e.Definition); ok {
			out.Add(e.Key, def)
		}
	}
	return out
}

// Sanitize repairs one definition and reports whether the result is
// renderable.
func (p *Pipeline) Sanitize(ctx context.Context, key, def string) (string, bool) {
	ctx = logging.WithDiagramKey(ctx, key)
	logger := logging.LogWith(ctx, p.logger)

	repaired := p.repairer.Repair(ctx, def)
	repaired = ApplyFixers(ctx, p.logger, p.fixers, repaired)

	if !IsRenderable(repaired) {
		logger.Info("dropping unrenderable diagram", slog.Int("bytes", len(def)))
		return "", false
	}
	if p.warnOnInvalid {
		if res := Validate(repaired); !res.Valid {
			logger.Warn("diagram accepted with structural issues", slog.String("diagnostic", res.Error))
		}
	}
	return repaired, true
}

// Diagnose runs the structural validator on def.
func (p *Pipeline) Diagnose(def string) schema.ValidationResult {
	return Validate(def)
}
