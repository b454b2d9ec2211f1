package render

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/diagramguard/pkg/schema"
)

// GraphvizEngine lays out flowcharts with graphviz and renders PNG previews.
// Other diagram kinds are rejected with RENDER_ERROR.
type GraphvizEngine struct{}

// NewGraphvizEngine creates a GraphvizEngine.
func NewGraphvizEngine() *GraphvizEngine { return &GraphvizEngine{} }

func (*GraphvizEngine) Name() string { return "graphviz" }

// Init is a no-op; graphviz runs in-process.
func (*GraphvizEngine) Init(context.Context) error { return nil }

func (*GraphvizEngine) Render(ctx context.Context, id, definition string) (*Artifact, error) {
	model, err := ParseFlow(definition)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeRender, "graphviz preview supports flowcharts only").
			WithDetails(map[string]any{"render_id": id}).WithCause(err)
	}
	png, err := RenderImage(ctx, model)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeRender, err.Error()).
			WithDetails(map[string]any{"render_id": id}).WithCause(err)
	}
	return &Artifact{Format: FormatPNG, Data: png, Engine: "graphviz"}, nil
}

// RenderImage renders a FlowModel as a PNG image using graphviz.
func RenderImage(ctx context.Context, model *FlowModel) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("render: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("render: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(rankDir(model.Direction))

	// Clustered nodes are created inside their subgraph first.
	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, sg := range model.SubGraphs {
		sub, subErr := graph.CreateSubGraphByName("cluster_" + sg.ID)
		if subErr != nil {
			continue
		}
		sub.SetLabel(sg.Label)
		sub.SetStyle(cgraph.DashedGraphStyle)
		for _, id := range sg.NodeIDs {
			if _, ok := gvNodes[id]; ok {
				continue
			}
			gvNode, nErr := sub.CreateNodeByName(id)
			if nErr != nil {
				continue
			}
			applyNodeStyle(gvNode, model.Node(id))
			gvNodes[id] = gvNode
		}
	}

	for _, node := range model.Nodes {
		if _, ok := gvNodes[node.ID]; ok {
			continue
		}
		gvNode, nErr := graph.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("render: create node %s: %w", node.ID, nErr)
		}
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, eErr := graph.CreateEdgeByName("", fromGV, toGV)
		if eErr != nil {
			continue
		}
		if edge.Label != "" {
			e.SetLabel(edge.Label)
		}
		switch edge.Style {
		case EdgeDotted:
			e.SetStyle(cgraph.DottedEdgeStyle)
		case EdgeThick:
			e.SetStyle(cgraph.BoldEdgeStyle)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render: render PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func rankDir(direction string) cgraph.RankDir {
	switch direction {
	case "LR":
		return cgraph.LRRank
	case "RL":
		return cgraph.RLRank
	case "BT":
		return cgraph.BTRank
	default:
		return cgraph.TBRank
	}
}

// applyNodeStyle sets graphviz attributes based on the node shape.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	gvNode.SetLabel(node.Label)
	switch node.Shape {
	case ShapeDiamond:
		gvNode.SetShape(cgraph.DiamondShape)
	case ShapeHexagon:
		gvNode.SetShape(cgraph.HexagonShape)
	case ShapeRound, ShapeStadium:
		gvNode.SetShape(cgraph.EllipseShape)
	case ShapeCircle:
		gvNode.SetShape(cgraph.CircleShape)
	case ShapeCylinder:
		gvNode.SetShape(cgraph.CylinderShape)
	case ShapeParallelogram:
		gvNode.SetShape(cgraph.ParallelogramShape)
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}
}
