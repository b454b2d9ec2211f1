package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rendis/diagramguard/internal/diagram"
	"github.com/rendis/diagramguard/internal/ingest"
	"github.com/rendis/diagramguard/internal/logging"
	"github.com/rendis/diagramguard/internal/render"
	"github.com/rendis/diagramguard/internal/scheduler"
	"github.com/rendis/diagramguard/internal/store"
	"github.com/rendis/diagramguard/pkg/mcp"
	"github.com/rendis/diagramguard/pkg/schema"
)

// inputFlags are shared by the commands that read a document.
type inputFlags struct {
	mode   *string
	asJSON *bool
	query  *string
}

func addInputFlags(fs *flag.FlagSet) inputFlags {
	return inputFlags{
		mode:   fs.String("mode", "", "extraction mode: sections, simple (default from config)"),
		asJSON: fs.Bool("json", false, "input is a JSON diagram mapping instead of markdown"),
		query:  fs.String("query", "", "jq expression selecting the mapping inside JSON input"),
	}
}

// readInput reads the single file argument, or stdin when absent or "-".
func readInput(args []string, stdin io.Reader) ([]byte, error) {
	switch {
	case len(args) > 1:
		return nil, fmt.Errorf("expected at most one input file, got %d", len(args))
	case len(args) == 0 || args[0] == "-":
		return io.ReadAll(stdin)
	default:
		return os.ReadFile(args[0])
	}
}

// candidates returns the raw diagram set of the input.
func (f inputFlags) candidates(ctx context.Context, p *diagram.Pipeline, data []byte) (*schema.DiagramSet, error) {
	if *f.asJSON || *f.query != "" {
		return ingest.NewQueryEngine().Query(ctx, data, *f.query)
	}
	return p.Extract(ctx, string(data)), nil
}

func (f inputFlags) pipeline(cfg Config, logger *slog.Logger) *diagram.Pipeline {
	opts := cfg.pipelineOptions()
	if *f.mode != "" {
		opts.Mode = diagram.ParseMode(*f.mode)
	}
	opts.Logger = logger
	return diagram.NewPipeline(opts)
}

func openStore(ctx context.Context, cfg Config) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	s, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// --- serve ---

func runServe(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	noRescan := fs.Bool("no-rescan", false, "disable the stored-document rescanner")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := loadConfig()
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := cfg.pipelineOptions()
	opts.Logger = logger

	if !*noRescan {
		rescanner, err := scheduler.NewRescanner(st, diagram.NewPipeline(opts), scheduler.Options{
			Schedule: cfg.RescanSchedule,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		if err := rescanner.Start(ctx); err != nil {
			return err
		}
		defer rescanner.Stop()
	}

	engine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	srv := mcp.NewDiagramServer(mcp.DiagramServerDeps{
		Pipeline: opts,
		Store:    st,
		Renderer: render.NewService(engine, logger),
		Version:  version,
		Logger:   logger,
	})

	logger.Info("diagramguard serving on stdio",
		slog.String("version", version),
		slog.String("db_path", cfg.DBPath),
		slog.String("engine", engine.Name()),
	)
	return srv.Serve(ctx)
}

// --- sanitize ---

func runSanitize(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sanitize", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := addInputFlags(fs)
	save := fs.Bool("save", false, "persist the result in the configured database")
	title := fs.String("title", "", "title stored with a saved document")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := loadConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	ctx := context.Background()

	data, err := readInput(fs.Args(), stdin)
	if err != nil {
		return err
	}

	p := in.pipeline(cfg, logger)
	candidates, err := in.candidates(ctx, p, data)
	if err != nil {
		return err
	}
	accepted := p.ProcessSet(ctx, candidates)

	if *save {
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		mode := cfg.ExtractMode
		if *in.mode != "" {
			mode = *in.mode
		}
		doc := &store.Document{
			Title:        *title,
			Mode:         string(diagram.ParseMode(mode)),
			Candidates:   candidates,
			Accepted:     accepted,
			RulesVersion: diagram.RulesVersion,
		}
		if err := st.SaveDocument(ctx, doc); err != nil {
			return err
		}
		if err := st.AppendEvent(ctx, &store.Event{
			DocumentID:   doc.ID,
			Type:         store.EventSanitized,
			RulesVersion: diagram.RulesVersion,
			Accepted:     accepted.Len(),
			Dropped:      candidates.Len() - accepted.Len(),
		}); err != nil {
			return err
		}
		logging.LogWith(logging.WithDocumentID(ctx, doc.ID), logger).Info("document saved")
	}

	return writeJSON(stdout, accepted)
}

// --- validate ---

// diagnostic is the validate report for one diagram key.
type diagnostic struct {
	Key        string       `json:"key"`
	Kind       diagram.Kind `json:"kind,omitempty"`
	Renderable bool         `json:"renderable"`
	Valid      bool         `json:"valid"`
	Error      string       `json:"error,omitempty"`
}

func runValidate(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := addInputFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := loadConfig()
	ctx := context.Background()

	data, err := readInput(fs.Args(), stdin)
	if err != nil {
		return err
	}

	// Drops are reported in the output, not logged.
	p := in.pipeline(cfg, slog.New(slog.DiscardHandler))
	candidates, err := in.candidates(ctx, p, data)
	if err != nil {
		return err
	}

	reports := make([]diagnostic, 0, candidates.Len())
	failed := false
	for _, e := range candidates.Entries() {
		sanitized, ok := p.Sanitize(ctx, e.Key, e.Definition)
		checked := e.Definition
		if ok {
			checked = sanitized
		}
		res := p.Diagnose(checked)
		reports = append(reports, diagnostic{
			Key:        e.Key,
			Kind:       diagram.DetectKind(checked),
			Renderable: ok,
			Valid:      res.Valid,
			Error:      res.Error,
		})
		failed = failed || !ok || !res.Valid
	}

	if err := writeJSON(stdout, reports); err != nil {
		return err
	}
	if failed {
		return errFindings
	}
	return nil
}

// --- render ---

func runRender(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := addInputFlags(fs)
	engineName := fs.String("engine", "", "render engine: ascii, mmdc, graphviz (default from config)")
	outDir := fs.String("out", "", "directory for artifacts; text artifacts go to stdout when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := loadConfig()
	if *engineName != "" {
		cfg.Engine = *engineName
	}
	logger := logging.NewLogger(cfg.LogLevel)
	ctx := context.Background()

	engine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	data, err := readInput(fs.Args(), stdin)
	if err != nil {
		return err
	}

	p := in.pipeline(cfg, logger)
	candidates, err := in.candidates(ctx, p, data)
	if err != nil {
		return err
	}

	panels := render.NewService(engine, logger).Present(ctx, p.ProcessSet(ctx, candidates))
	if *outDir != "" {
		return writeArtifacts(*outDir, panels, stdout)
	}
	return printPanels(stdout, panels)
}

func printPanels(w io.Writer, panels []render.Panel) error {
	for i, p := range panels {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s %s\n", p.Label.Icon, p.Label.Title)
		switch {
		case p.Status == render.PanelError:
			fmt.Fprintf(w, "render failed: %s\n%s\n", p.Diagnostic, p.Source)
		case p.Artifact.Format == render.FormatText:
			fmt.Fprintln(w, strings.TrimRight(string(p.Artifact.Data), "\n"))
		default:
			fmt.Fprintf(w, "(%s artifact, %d bytes; use -out to write it)\n", p.Artifact.Format, len(p.Artifact.Data))
		}
	}
	return nil
}

func writeArtifacts(dir string, panels []render.Panel, stdout io.Writer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	used := make(map[string]bool, len(panels))
	for _, p := range panels {
		base := artifactBase(p.Key, used)
		var name string
		var data []byte
		if p.Status == render.PanelError {
			name = base + ".error.txt"
			data = []byte(p.Diagnostic + "\n\n" + p.Source + "\n")
		} else {
			name = base + "." + artifactExt(p.Artifact.Format)
			data = p.Artifact.Data
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintln(stdout, path)
	}
	return nil
}

// artifactBase turns a diagram key into a file name that stays inside the
// output directory: path separators and other unsafe runes become '-',
// leading dots are dropped, and repeats get a numeric suffix.
func artifactBase(key string, used map[string]bool) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '-'
	}, key)
	base = strings.TrimLeft(base, ".")
	if base == "" {
		base = "diagram"
	}
	name := base
	for i := 2; used[name]; i++ {
		name = fmt.Sprintf("%s-%d", base, i)
	}
	used[name] = true
	return name
}

func artifactExt(f render.Format) string {
	if f == render.FormatText {
		return "txt"
	}
	return string(f)
}
