package pipeline

import (
	"context"
	"log/slog"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
	"github.com/dgtm-project/dgtm/pkg/semgraph/container"
	"github.com/dgtm-project/dgtm/pkg/semgraph/graph"
	"github.com/dgtm-project/dgtm/pkg/semgraph/staging"
)

// BuildStage takes the full validated node set through the graph
// builder into a committed blob/index pair. The graph, blob and index
// are rebuilt as one atomic unit; a consistency failure aborts before
// anything touches the committed artifacts, so readers keep the prior
// complete version.
type BuildStage struct {
	Cfg     *semgraph.Config
	Store   *staging.Store
	Builder *graph.Builder
}

func (s *BuildStage) Name() string { return "build" }

func (s *BuildStage) Run(ctx context.Context) error {
	recs, err := s.Store.ByStage(staging.StageValidated, 0)
	if err != nil {
		return err
	}
	nodes := make([]semgraph.EntityNode, 0, len(recs))
	for _, rec := range recs {
		nodes = append(nodes, rec.Node)
	}

	g, err := s.Builder.Build(nodes)
	if err != nil {
		return err
	}
	if err := s.Builder.Verify(g); err != nil {
		return err
	}

	var res *container.WriteResult
	err = Retry(ctx, DefaultMaxTries, DefaultBackoff, func(context.Context) error {
		var werr error
		res, werr = container.Write(g, s.Cfg.BlobPath, s.Cfg.IndexPath, s.Cfg.ChunkRecords)
		return werr
	})
	if err != nil {
		return err
	}

	// Persist assigned symbols and versions back to staging so the
	// next build and the status report see them.
	updated := make([]staging.Record, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		updated = append(updated, staging.Record{Node: n, Stage: staging.StageValidated})
	}
	err = Retry(ctx, DefaultMaxTries, DefaultBackoff, func(context.Context) error {
		return s.Store.PutBatch(updated)
	})
	if err != nil {
		return err
	}

	marker, err := s.Store.Marker(s.Name())
	if err != nil {
		return err
	}
	err = Retry(ctx, DefaultMaxTries, DefaultBackoff, func(context.Context) error {
		return s.Store.CommitMarker(s.Name(), staging.Marker{
			Round: marker.Round + 1, RunID: g.BuildID, Processed: len(g.Nodes),
		})
	})
	if err != nil {
		return err
	}

	slog.Info("build report",
		"build_id", res.BuildID,
		"nodes", res.Nodes,
		"relations", res.Relations,
		"chunks", res.Chunks,
	)
	return nil
}
