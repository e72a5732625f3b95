// dgtm-verify checks a committed dataset end to end: every indexed
// symbol must decode from its chunk, resolve through the dictionary to
// a term that maps back to the same symbol, and every relation
// endpoint must itself be indexed. Run it after a build, or against a
// dataset restored from backup.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
	"github.com/dgtm-project/dgtm/pkg/semgraph/container"
	"github.com/dgtm-project/dgtm/pkg/semgraph/dict"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg := semgraph.ConfigFromEnv()
	if err := run(cfg); err != nil {
		slog.Error("verification failed", "error", err)
		os.Exit(semgraph.ExitCode(err))
	}
}

func run(cfg *semgraph.Config) error {
	start := time.Now()

	r, err := container.Open(cfg.BlobPath, cfg.IndexPath, container.DefaultChunkCache)
	if err != nil {
		return err
	}
	defer r.Close()

	db, err := dict.OpenDB(cfg.DictDir, true, false)
	if err != nil {
		return err
	}
	defer db.Close()
	d, err := dict.Open(db, cfg.SymbolCapacity, cfg.CacheSize)
	if err != nil {
		return err
	}

	indexed := make(map[semgraph.Symbol]bool)
	for _, sym := range r.Symbols() {
		indexed[sym] = true
	}

	nodes, relations := 0, 0
	for sym := range indexed {
		node, rels, err := r.Lookup(sym)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", sym, err)
		}
		if node.Symbol != sym {
			return fmt.Errorf("%w: record at %s carries symbol %s",
				semgraph.ErrConsistency, sym, node.Symbol)
		}

		term, err := d.Term(sym)
		if err != nil {
			return fmt.Errorf("%w: %s has no dictionary term", semgraph.ErrConsistency, sym)
		}
		if term != node.Term {
			return fmt.Errorf("%w: %s resolves to %q but record says %q",
				semgraph.ErrConsistency, sym, term, node.Term)
		}
		back, err := d.Symbol(node.Term)
		if err != nil || back != sym {
			return fmt.Errorf("%w: term %q does not map back to %s",
				semgraph.ErrConsistency, node.Term, sym)
		}

		for _, rel := range rels {
			if !indexed[rel.Target] {
				return fmt.Errorf("%w: %s -[%s]-> %s: target not indexed",
					semgraph.ErrConsistency, rel.Source, rel.Type, rel.Target)
			}
			if rel.Weight < 0 || rel.Weight > 100 {
				return fmt.Errorf("%w: relation %s -> %s has weight %d",
					semgraph.ErrConsistency, rel.Source, rel.Target, rel.Weight)
			}
			relations++
		}
		nodes++
	}

	hdr := r.Header()
	if uint32(nodes) != hdr.NodeCount {
		return fmt.Errorf("%w: header declares %d nodes, found %d",
			semgraph.ErrConsistency, hdr.NodeCount, nodes)
	}

	fmt.Printf("ok: %d nodes, %d relations, %d chunks, verified in %s\n",
		nodes, relations, hdr.ChunkCount, time.Since(start).Round(time.Millisecond))
	return nil
}
