package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/rendis/diagramguard/internal/render"
)

const (
	engineASCII    = "ascii"
	engineMMDC     = "mmdc"
	engineGraphviz = "graphviz"
)

// newEngine builds the render engine named by cfg.Engine.
func newEngine(cfg Config, logger *slog.Logger) (render.Engine, error) {
	switch cfg.Engine {
	case engineASCII, "":
		return render.NewCLIEngine(render.CLIOptions{
			Tool:   render.ToolASCII,
			Path:   cfg.EnginePath,
			BinDir: filepath.Join(guardDir(), "bin"),
			Logger: logger,
		}), nil
	case engineMMDC:
		return render.NewCLIEngine(render.CLIOptions{
			Tool:   render.ToolMMDC,
			Path:   cfg.EnginePath,
			Logger: logger,
		}), nil
	case engineGraphviz:
		return render.NewGraphvizEngine(), nil
	default:
		return nil, fmt.Errorf("unknown engine %q (want ascii, mmdc, or graphviz)", cfg.Engine)
	}
}
