package render

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rendis/diagramguard/internal/diagram"
	"github.com/rendis/diagramguard/internal/logging"
	"github.com/rendis/diagramguard/pkg/schema"
)

// PanelStatus is the outcome of presenting one diagram.
type PanelStatus string

const (
	PanelRendered PanelStatus = "rendered"
	PanelError    PanelStatus = "error"
)

// Panel is what a viewer shows for one diagram key: either a rendered
// artifact, or a diagnostic together with the raw source. Never blank.
type Panel struct {
	Key        string       `json:"key"`
	Label      DiagramLabel `json:"label"`
	RenderID   string       `json:"render_id"`
	Status     PanelStatus  `json:"status"`
	Artifact   *Artifact    `json:"artifact,omitempty"`
	Diagnostic string       `json:"diagnostic,omitempty"`
	Source     string       `json:"source,omitempty"`
}

// Service owns one rendering engine. The engine is initialized lazily, once,
// on first use.
type Service struct {
	engine  Engine
	logger  *slog.Logger
	once    sync.Once
	initErr error
	newID   func() string
}

// NewService creates a Service around engine.
func NewService(engine Engine, logger *slog.Logger) *Service {
	return &Service{
		engine: engine,
		logger: logging.Default(logger),
		newID:  func() string { return uuid.New().String() },
	}
}

// Init runs the engine's one-time setup. Later calls return the first result.
func (s *Service) Init(ctx context.Context) error {
	s.once.Do(func() {
		s.initErr = s.engine.Init(ctx)
	})
	return s.initErr
}

// RenderID returns a fresh render ID for key.
func (s *Service) RenderID(key string) string {
	return "diagram-" + key + "-" + s.newID()
}

// Present renders every entry of set, in order.
func (s *Service) Present(ctx context.Context, set *schema.DiagramSet) []Panel {
	if set == nil {
		return nil
	}
	panels := make([]Panel, 0, set.Len())
	for _, e := range set.Entries() {
		panels = append(panels, s.Render(ctx, e.Key, e.Definition))
	}
	return panels
}

// Render presents a single definition. Engine failures, including panics,
// become error panels carrying the structural diagnostic when there is one.
func (s *Service) Render(ctx context.Context, key, definition string) (p Panel) {
	p = Panel{Key: key, Label: LabelFor(key), RenderID: s.RenderID(key)}
	ctx = logging.WithRenderID(logging.WithDiagramKey(ctx, key), p.RenderID)
	logger := logging.LogWith(ctx, s.logger)

	defer func() {
		if r := recover(); r != nil {
			p = s.errorPanel(logger, p, definition, fmt.Errorf("renderer panic: %v", r))
		}
	}()

	if err := s.Init(ctx); err != nil {
		return s.errorPanel(logger, p, definition, err)
	}
	art, err := s.engine.Render(ctx, p.RenderID, definition)
	if err != nil {
		return s.errorPanel(logger, p, definition, err)
	}
	p.Status = PanelRendered
	p.Artifact = art
	return p
}

func (s *Service) errorPanel(logger *slog.Logger, p Panel, definition string, err error) Panel {
	p.Status = PanelError
	p.Artifact = nil
	p.Source = definition
	p.Diagnostic = err.Error()
	if res := diagram.Validate(definition); !res.Valid {
		p.Diagnostic = res.Error
	}
	logger.Warn("diagram render failed", slog.String("engine", s.engine.Name()), slog.String("error", err.Error()))
	return p
}
