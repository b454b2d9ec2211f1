package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rendis/diagramguard/internal/diagram"
	"github.com/rendis/diagramguard/internal/logging"
	"github.com/rendis/diagramguard/pkg/schema"
)

// Tool names an external Mermaid renderer.
type Tool string

const (
	// ToolASCII is AlexanderGrooff/mermaid-ascii: definition on stdin, text on stdout.
	ToolASCII Tool = "mermaid-ascii"
	// ToolMMDC is mermaid-cli: file in, SVG file out.
	ToolMMDC Tool = "mmdc"
)

// runFunc executes bin with args, feeding stdin, and returns stdout.
type runFunc func(ctx context.Context, bin string, args []string, stdin io.Reader) ([]byte, error)

// CLIEngine renders through an external binary. The mermaid-ascii engine
// falls back to the built-in text renderer for flowcharts when the binary
// is missing.
type CLIEngine struct {
	tool     Tool
	path     string
	binDir   string
	logger   *slog.Logger
	run      runFunc
	fallback bool
}

// CLIOptions configures a CLIEngine.
type CLIOptions struct {
	Tool Tool
	// Path is an explicit binary path. When empty, BinDir and then PATH are searched.
	Path   string
	BinDir string
	Logger *slog.Logger
}

// NewCLIEngine creates a CLIEngine. Call Init before Render.
func NewCLIEngine(opts CLIOptions) *CLIEngine {
	if opts.Tool == "" {
		opts.Tool = ToolASCII
	}
	return &CLIEngine{
		tool:   opts.Tool,
		path:   opts.Path,
		binDir: opts.BinDir,
		logger: logging.Default(opts.Logger),
		run:    runCommand,
	}
}

func (e *CLIEngine) Name() string { return string(e.tool) }

// Init locates the binary.
func (e *CLIEngine) Init(ctx context.Context) error {
	path, err := e.locate()
	if err == nil {
		e.path = path
		logging.LogWith(ctx, e.logger).Debug("renderer located", slog.String("tool", string(e.tool)), slog.String("path", path))
		return nil
	}
	if e.tool == ToolASCII {
		e.fallback = true
		logging.LogWith(ctx, e.logger).Warn("mermaid-ascii not found, using built-in text renderer for flowcharts",
			slog.String("error", err.Error()))
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeRender, "%s not available", e.tool).WithCause(err)
}

func (e *CLIEngine) locate() (string, error) {
	if e.path != "" {
		if _, err := os.Stat(e.path); err != nil {
			return "", err
		}
		return e.path, nil
	}
	if e.binDir != "" {
		candidate := filepath.Join(e.binDir, string(e.tool))
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return exec.LookPath(string(e.tool))
}

func (e *CLIEngine) Render(ctx context.Context, id, definition string) (*Artifact, error) {
	var (
		art *Artifact
		err error
	)
	switch e.tool {
	case ToolMMDC:
		art, err = e.renderSVG(ctx, definition)
	default:
		art, err = e.renderText(ctx, definition)
	}
	if err != nil {
		if schema.HasCode(err, schema.ErrCodeRender) {
			return nil, err
		}
		return nil, schema.NewError(schema.ErrCodeRender, err.Error()).
			WithDetails(map[string]any{"render_id": id, "engine": e.Name()}).WithCause(err)
	}
	return art, nil
}

func (e *CLIEngine) renderText(ctx context.Context, definition string) (*Artifact, error) {
	var model *FlowModel
	if diagram.DetectKind(definition).IsFlow() {
		if m, err := ParseFlow(definition); err == nil {
			model = m
		}
	}

	if e.fallback {
		if model == nil {
			return nil, schema.NewError(schema.ErrCodeRender, "built-in text renderer supports flowcharts only; install mermaid-ascii")
		}
		return &Artifact{Format: FormatText, Data: []byte(RenderText(model)), Engine: "builtin-text"}, nil
	}

	input := definition
	if model != nil {
		input = SimplifyForCLI(model)
	}
	out, err := e.run(ctx, e.path, nil, strings.NewReader(input))
	if err != nil {
		return nil, err
	}
	return &Artifact{Format: FormatText, Data: out, Engine: e.Name()}, nil
}

func (e *CLIEngine) renderSVG(ctx context.Context, definition string) (*Artifact, error) {
	dir, err := os.MkdirTemp("", "diagramguard-mmdc-*")
	if err != nil {
		return nil, fmt.Errorf("mmdc: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.mmd")
	out := filepath.Join(dir, "output.svg")
	if err := os.WriteFile(in, []byte(definition), 0o600); err != nil {
		return nil, fmt.Errorf("mmdc: write input: %w", err)
	}
	if _, err := e.run(ctx, e.path, []string{"-i", in, "-o", out, "-q"}, nil); err != nil {
		return nil, err
	}
	svg, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("mmdc: read output: %w", err)
	}
	return &Artifact{Format: FormatSVG, Data: svg, Engine: e.Name()}, nil
}

func runCommand(ctx context.Context, bin string, args []string, stdin io.Reader) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", filepath.Base(bin), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// SimplifyForCLI generates flowchart syntax the mermaid-ascii CLI can parse.
// It cannot read ["label"] node declarations or subgraph blocks, so labels
// become node IDs and subgraphs are flattened into top-level edges.
func SimplifyForCLI(model *FlowModel) string {
	var b strings.Builder
	dir := model.Direction
	if dir == "TB" || dir == "BT" || dir == "RL" {
		dir = "TD"
	}
	b.WriteString("graph " + dir + "\n")

	displayID := make(map[string]string, len(model.Nodes))
	connected := make(map[string]bool, len(model.Nodes))
	for _, n := range model.Nodes {
		displayID[n.ID] = cliNodeID(n)
	}
	for _, e := range model.Edges {
		label := ""
		if e.Label != "" {
			label = fmt.Sprintf("|%s|", e.Label)
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n", displayID[e.From], label, displayID[e.To]))
		connected[e.From], connected[e.To] = true, true
	}
	for _, n := range model.Nodes {
		if !connected[n.ID] {
			b.WriteString("    " + displayID[n.ID] + "\n")
		}
	}
	return b.String()
}

// cliNodeID builds a display ID from the node label.
func cliNodeID(node *Node) string {
	id := firstLine(node.Label)
	if id == "" {
		id = node.ID
	}
	r := strings.NewReplacer(" ", "-", "\"", "", "[", "", "]", "", "(", "", ")", "", "{", "", "}", "", "|", "")
	return r.Replace(id)
}
