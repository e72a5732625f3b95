package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
	"github.com/dgtm-project/dgtm/pkg/semgraph/staging"
)

// IngestStage loads the enriched node input file into the staging
// store. Terms already staged are counted as duplicates and skipped,
// so re-running ingest over the same input is a no-op.
type IngestStage struct {
	Cfg   *semgraph.Config
	Store *staging.Store
}

func (s *IngestStage) Name() string { return "ingest" }

// Run stages the input in bounded rounds, committing a marker after
// each round.
func (s *IngestStage) Run(ctx context.Context) error {
	nodes, err := LoadInput(s.Cfg.InputPath)
	if err != nil {
		return err
	}
	runID := uuid.NewString()

	marker, err := s.Store.Marker(s.Name())
	if err != nil {
		return err
	}
	round := marker.Round

	inserted, duplicates := 0, 0
	for start := 0; start < len(nodes); start += s.Cfg.BatchSize {
		end := min(start+s.Cfg.BatchSize, len(nodes))

		batch := make([]staging.Record, 0, end-start)
		for _, n := range nodes[start:end] {
			ok, err := s.Store.Has(n.Term)
			if err != nil {
				return err
			}
			if ok {
				duplicates++
				continue
			}
			batch = append(batch, staging.Record{Node: n, Stage: staging.StageEnriched})
		}
		if len(batch) > 0 {
			err := Retry(ctx, DefaultMaxTries, DefaultBackoff, func(context.Context) error {
				return s.Store.PutBatch(batch)
			})
			if err != nil {
				return err
			}
			inserted += len(batch)
		}

		round++
		err = Retry(ctx, DefaultMaxTries, DefaultBackoff, func(context.Context) error {
			return s.Store.CommitMarker(s.Name(), staging.Marker{
				Round: round, RunID: runID, Processed: end - start,
			})
		})
		if err != nil {
			return err
		}
	}

	slog.Info("ingest report",
		"run_id", runID,
		"read", len(nodes),
		"inserted", inserted,
		"duplicates", duplicates,
	)
	return nil
}
