// Package export converts a committed graph into the D3
// force-directed JSON consumed by the graph visualizer.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
	"github.com/dgtm-project/dgtm/pkg/semgraph/container"
)

// D3Node is one node in the D3 force-directed graph.
type D3Node struct {
	ID        string `json:"id"`              // symbol display form ("#0042")
	Name      string `json:"name"`            // the term
	Group     string `json:"group,omitempty"` // category, used for coloring
	Kind      string `json:"kind,omitempty"`  // grammatical class
	Tone      string `json:"tone,omitempty"`
	Intensity int    `json:"intensity,omitempty"`
	Status    string `json:"status,omitempty"`
}

// D3Link is one edge in the D3 force-directed graph.
type D3Link struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
	Weight   int    `json:"weight,omitempty"`
}

// D3Graph is the full payload for D3.js.
type D3Graph struct {
	Nodes []D3Node `json:"nodes"`
	Links []D3Link `json:"links"`
}

// FromReader walks every indexed symbol and assembles the D3 graph.
// Output is ordered by symbol so repeated exports of the same build
// are byte-identical.
func FromReader(r *container.Reader) (*D3Graph, error) {
	syms := r.Symbols()
	sort.Slice(syms, func(i, j int) bool { return syms[i] < syms[j] })

	g := &D3Graph{Nodes: make([]D3Node, 0, len(syms))}
	for _, sym := range syms {
		node, rels, err := r.Lookup(sym)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", sym, err)
		}
		g.Nodes = append(g.Nodes, D3Node{
			ID:        sym.String(),
			Name:      node.Term,
			Group:     node.Category,
			Kind:      node.Class,
			Tone:      node.Tone,
			Intensity: node.Intensity,
			Status:    node.Status.String(),
		})
		for _, rel := range rels {
			g.Links = append(g.Links, D3Link{
				Source:   rel.Source.String(),
				Target:   rel.Target.String(),
				Relation: rel.Type.String(),
				Weight:   rel.Weight,
			})
		}
	}
	return g, nil
}

// WriteFile marshals the graph to an indented JSON file.
func WriteFile(g *D3Graph, path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode d3 graph: %v", semgraph.ErrInvalidInput, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: write d3 graph %s: %v", semgraph.ErrIO, path, err)
	}
	return nil
}
