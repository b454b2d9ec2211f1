package render

import (
	"context"
)

// Format identifies the payload of an Artifact.
type Format string

const (
	FormatText Format = "text"
	FormatSVG  Format = "svg"
	FormatPNG  Format = "png"
)

// Artifact is a successful render.
type Artifact struct {
	Format Format `json:"format"`
	Data   []byte `json:"data"`
	// Engine names the engine that produced the artifact.
	Engine string `json:"engine"`
}

// Engine renders one definition under a unique ID. Implementations must be
// safe for concurrent use once Init has returned.
type Engine interface {
	Name() string
	// Init performs one-time setup such as locating an external binary.
	Init(ctx context.Context) error
	Render(ctx context.Context, id, definition string) (*Artifact, error)
}
