package visualize

import (
	"fmt"

	"github.com/emicklei/dot"
)

// Generator renders a visualization graph.
type Generator interface {
	Generate(g *Graph) string
}

// NewGenerator returns the generator for a format: "dot", "mermaid" or "mermaid-raw". The mermaid
// format is wrapped in a markdown code block, mermaid-raw is not.
func NewGenerator(format string) (Generator, error) {
	switch format {
	case "", "dot":
		return &DotGenerator{}, nil
	case "mermaid":
		return &MermaidGenerator{Fenced: true}, nil
	case "mermaid-raw":
		return &MermaidGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown diagram format %q", format)
	}
}

// DotGenerator generates Graphviz DOT diagrams.
type DotGenerator struct{}

func (d *DotGenerator) Generate(g *Graph) string {
	return BuildDotGraph(g).String()
}

// MermaidGenerator generates left-to-right Mermaid flowcharts.
type MermaidGenerator struct {
	// Fenced wraps the flowchart in a markdown code block.
	Fenced bool
}

func (m *MermaidGenerator) Generate(g *Graph) string {
	mermaid := dot.MermaidFlowchart(BuildDotGraph(g), dot.MermaidLeftToRight)
	if !m.Fenced {
		return mermaid
	}
	return fmt.Sprintf("```mermaid\n%s\n```\n", mermaid)
}
