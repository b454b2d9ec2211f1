package diagram

import (
	"context"
	"testing"
)

func FuzzProcessDocument(f *testing.F) {
	f.Add(designDoc)
	f.Add("")
	f.Add("```mermaid\n")
	f.Add("graph TD\n  A[\"open --> B\n  subgraph x")
	f.Add("Title\n=====\ngraph TD\n---\n```\n~~~")
	f.Add(`sequenceDiagram alt "a " else end end end A->>B: "`)

	p := NewPipeline(Options{Logger: discardLogger()})
	f.Fuzz(func(t *testing.T, doc string) {
		// Must never panic; every accepted definition passes the gate.
		set := p.ProcessDocument(context.Background(), doc)
		for _, e := range set.Entries() {
			if e.Key == "" || e.Definition == "" {
				t.Fatalf("empty key or definition: %q", e.Key)
			}
			if !IsRenderable(e.Definition) {
				t.Fatalf("accepted unrenderable definition for %q", e.Key)
			}
			_ = Validate(e.Definition)
		}
	})
}
