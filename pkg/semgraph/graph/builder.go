// Package graph links validated nodes into a directed relation graph.
// Each build is an atomic unit: a single dangling reference aborts the
// whole run, because downstream retrieval depends on total relation
// integrity.
package graph

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
	"github.com/dgtm-project/dgtm/pkg/semgraph/dict"
)

// Builder assembles graphs from validated node sets, allocating
// symbols through the dictionary as it goes.
type Builder struct {
	dict *dict.Dictionary
}

// NewBuilder returns a builder over the given dictionary.
func NewBuilder(d *dict.Dictionary) *Builder {
	return &Builder{dict: d}
}

// Build assigns a symbol to every node and derives relations from the
// declared fields: explicit related terms (semantic), context tags
// (contextual), consequence (causal) and emotion (emotional).
//
// Related and consequence terms must resolve to a node in this build's
// set; a reference to a term with no corresponding node aborts with
// ErrConsistency. Contexts and emotions are attributes first, so they
// only produce a relation when a node for the term happens to exist.
func (b *Builder) Build(nodes []semgraph.EntityNode) (*semgraph.Graph, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no valid nodes to build from", semgraph.ErrConsistency)
	}

	now := time.Now().Unix()
	g := &semgraph.Graph{
		Nodes:         make([]semgraph.EntityNode, len(nodes)),
		FormatVersion: semgraph.FormatVersion,
		BuiltAt:       now,
		BuildID:       uuid.NewString(),
	}
	copy(g.Nodes, nodes)

	// Pass 1: symbols. Allocation is idempotent, so nodes that were
	// committed in a previous build keep their symbols.
	bySymbol := make(map[semgraph.Symbol]int, len(g.Nodes))
	byTerm := make(map[string]semgraph.Symbol, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		sym, err := b.dict.Allocate(n.Term)
		if err != nil {
			return nil, err
		}
		if prev, dup := bySymbol[sym]; dup {
			return nil, fmt.Errorf("%w: symbol %s assigned to both %q and %q",
				semgraph.ErrConsistency, sym, g.Nodes[prev].Term, n.Term)
		}
		n.Symbol = sym
		if n.Status == 0 {
			n.Status = semgraph.StatusActive
		}
		n.Version++
		n.UpdatedAt = now
		bySymbol[sym] = i
		byTerm[n.Term] = sym
	}

	// Pass 2: relations.
	seen := make(map[[3]uint64]bool)
	addRel := func(rel semgraph.Relation) {
		key := [3]uint64{uint64(rel.Source), uint64(rel.Type), uint64(rel.Target)}
		if rel.Source == rel.Target || seen[key] {
			return
		}
		seen[key] = true
		g.Relations = append(g.Relations, rel)
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]

		for _, term := range n.Related {
			target, ok := byTerm[term]
			if !ok {
				return nil, fmt.Errorf("%w: node %q relates to %q which has no valid node",
					semgraph.ErrConsistency, n.Term, term)
			}
			addRel(semgraph.Relation{Source: n.Symbol, Target: target, Type: semgraph.RelSemantic})
		}

		if n.Consequence != "" {
			target, ok := byTerm[n.Consequence]
			if !ok {
				return nil, fmt.Errorf("%w: node %q declares consequence %q which has no valid node",
					semgraph.ErrConsistency, n.Term, n.Consequence)
			}
			addRel(semgraph.Relation{
				Source: n.Symbol, Target: target,
				Type: semgraph.RelCausal, Weight: n.Plausibility,
			})
		}

		for _, tag := range n.Contexts {
			if target, ok := byTerm[tag]; ok {
				addRel(semgraph.Relation{Source: n.Symbol, Target: target, Type: semgraph.RelContextual})
			}
		}

		if n.Emotion != "" {
			if target, ok := byTerm[n.Emotion]; ok {
				addRel(semgraph.Relation{
					Source: n.Symbol, Target: target,
					Type: semgraph.RelEmotional, Weight: n.Intensity,
				})
			}
		}
	}

	// Deterministic output regardless of input order.
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].Symbol < g.Nodes[j].Symbol })
	sort.Slice(g.Relations, func(i, j int) bool {
		a, b := g.Relations[i], g.Relations[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Target < b.Target
	})

	slog.Info("graph built",
		"build_id", g.BuildID,
		"nodes", len(g.Nodes),
		"relations", len(g.Relations),
	)
	return g, nil
}

// Verify re-checks the orphan invariant on a finished graph: every
// relation endpoint must resolve through the dictionary.
func (b *Builder) Verify(g *semgraph.Graph) error {
	known := make(map[semgraph.Symbol]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		known[n.Symbol] = true
	}
	for _, rel := range g.Relations {
		for _, sym := range []semgraph.Symbol{rel.Source, rel.Target} {
			if !known[sym] {
				return fmt.Errorf("%w: relation endpoint %s has no node", semgraph.ErrConsistency, sym)
			}
			if _, err := b.dict.Term(sym); err != nil {
				return fmt.Errorf("%w: relation endpoint %s not in dictionary", semgraph.ErrConsistency, sym)
			}
		}
	}
	return nil
}
