package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/diagramguard/internal/diagram"
	"github.com/rendis/diagramguard/internal/ingest"
	"github.com/rendis/diagramguard/internal/logging"
	"github.com/rendis/diagramguard/internal/render"
	"github.com/rendis/diagramguard/internal/store"
)

// DiagramServerDeps holds the dependencies for creating a DiagramServer.
// Store and Renderer are optional; the tools that need them report an
// error when they are absent.
type DiagramServerDeps struct {
	// Pipeline configures sanitization. Its Mode is the default for
	// diagrams.sanitize and can be overridden per call.
	Pipeline diagram.Options
	Store    store.Store
	Renderer *render.Service
	Version  string
	Logger   *slog.Logger
}

// DiagramServer wraps an MCP server with diagram sanitization tools.
type DiagramServer struct {
	pipelines   map[diagram.Mode]*diagram.Pipeline
	defaultMode diagram.Mode
	store       store.Store
	renderer    *render.Service
	query       *ingest.QueryEngine
	logger      *slog.Logger
	mcpServer   *server.MCPServer
}

// NewDiagramServer creates a new DiagramServer with all tools registered.
func NewDiagramServer(deps DiagramServerDeps) *DiagramServer {
	logger := logging.Default(deps.Logger)

	opts := deps.Pipeline
	opts.Logger = logger
	defaultMode := diagram.ParseMode(string(opts.Mode))

	pipelines := make(map[diagram.Mode]*diagram.Pipeline, 2)
	for _, mode := range []diagram.Mode{diagram.ModeSections, diagram.ModeSimple} {
		o := opts
		o.Mode = mode
		pipelines[mode] = diagram.NewPipeline(o)
	}

	s := &DiagramServer{
		pipelines:   pipelines,
		defaultMode: defaultMode,
		store:       deps.Store,
		renderer:    deps.Renderer,
		query:       ingest.NewQueryEngine(),
		logger:      logger,
	}

	version := deps.Version
	if version == "" {
		version = "dev"
	}

	mcpSrv := server.NewMCPServer(
		"diagramguard",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("diagramguard repairs Mermaid diagrams produced by language models. Use diagrams.sanitize on a markdown document to extract and repair its diagrams, diagrams.restore to sanitize a stored JSON mapping, diagrams.validate to check one definition, diagrams.get to load a saved document, and diagrams.render to preview a set."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *DiagramServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *DiagramServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *DiagramServer) pipeline(mode string) *diagram.Pipeline {
	if mode == "" {
		return s.pipelines[s.defaultMode]
	}
	return s.pipelines[diagram.ParseMode(mode)]
}

func (s *DiagramServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: sanitizeTool(), Handler: s.handleSanitize},
		{Tool: restoreTool(), Handler: s.handleRestore},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: getTool(), Handler: s.handleGet},
		{Tool: renderTool(), Handler: s.handleRender},
	}
}

// --- Tool definitions ---

func sanitizeTool() mcp.Tool {
	return mcp.NewTool("diagrams.sanitize",
		mcp.WithDescription("Extract and repair the Mermaid diagrams of a markdown document"),
		mcp.WithString("document", mcp.Required(), mcp.Description("Markdown document text")),
		mcp.WithString("mode",
			mcp.Enum(string(diagram.ModeSections), string(diagram.ModeSimple)),
			mcp.Description("Key diagrams by section heading (sections) or by position (simple)"),
		),
		mcp.WithBoolean("save", mcp.Description("Persist the result and return its document_id")),
		mcp.WithString("title", mcp.Description("Title stored with a saved document")),
	)
}

func restoreTool() mcp.Tool {
	return mcp.NewTool("diagrams.restore",
		mcp.WithDescription("Sanitize a persisted diagram mapping from a JSON payload or a stored document"),
		mcp.WithString("payload", mcp.Description("JSON object of key -> definition, or {\"diagrams\": {...}}")),
		mcp.WithString("query", mcp.Description("jq expression selecting the mapping inside payload")),
		mcp.WithString("document_id", mcp.Description("ID of a saved document")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("diagrams.validate",
		mcp.WithDescription("Check one Mermaid definition and report whether it survives sanitization"),
		mcp.WithString("definition", mcp.Required(), mcp.Description("Mermaid definition text")),
	)
}

func getTool() mcp.Tool {
	return mcp.NewTool("diagrams.get",
		mcp.WithDescription("Load a saved document with its sanitize history"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("ID of the saved document")),
	)
}

func renderTool() mcp.Tool {
	return mcp.NewTool("diagrams.render",
		mcp.WithDescription("Render a diagram mapping into preview panels"),
		mcp.WithString("payload", mcp.Required(), mcp.Description("JSON object of key -> definition")),
	)
}
