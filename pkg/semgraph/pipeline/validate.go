package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
	"github.com/dgtm-project/dgtm/pkg/semgraph/rules"
	"github.com/dgtm-project/dgtm/pkg/semgraph/staging"
	"github.com/dgtm-project/dgtm/pkg/semgraph/validate"
)

// ValidateStage moves records from enriched to validated or
// needs_review. Nodes fail independently; a failing node is parked
// with its issues and the batch continues. It re-enters the pipeline
// only if re-submitted after correction.
type ValidateStage struct {
	Cfg       *semgraph.Config
	Store     *staging.Store
	Validator *validate.Validator
	Trace     *rules.Trace
}

func (s *ValidateStage) Name() string { return "validate" }

// Run drains the enriched backlog in bounded rounds. Because each
// processed record leaves the enriched stage, a crashed round is
// simply re-scanned on restart; the marker records progress for
// observability and resumption accounting.
func (s *ValidateStage) Run(ctx context.Context) error {
	runID := uuid.NewString()

	marker, err := s.Store.Marker(s.Name())
	if err != nil {
		return err
	}
	round := marker.Round

	valid, review := 0, 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		recs, err := s.Store.ByStage(staging.StageEnriched, s.Cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			break
		}

		out := make([]staging.Record, 0, len(recs))
		for _, rec := range recs {
			res := s.Validator.Validate(rec.Node, s.Trace)
			next := staging.Record{Node: res.Node, Stage: staging.StageValidated}
			if !res.OK() {
				next.Stage = staging.StageNeedsReview
				for _, issue := range res.Issues {
					next.Issues = append(next.Issues, issue.String())
					if s.Trace != nil {
						s.Trace.Append(rules.TraceEntry{
							RuleID:  "validator",
							Term:    rec.Node.Term,
							Message: issue.String(),
						})
					}
				}
				review++
			} else {
				valid++
			}
			out = append(out, next)
		}

		err = Retry(ctx, DefaultMaxTries, DefaultBackoff, func(context.Context) error {
			return s.Store.PutBatch(out)
		})
		if err != nil {
			return err
		}

		round++
		err = Retry(ctx, DefaultMaxTries, DefaultBackoff, func(context.Context) error {
			return s.Store.CommitMarker(s.Name(), staging.Marker{
				Round: round, RunID: runID, Processed: len(out),
			})
		})
		if err != nil {
			return err
		}
	}

	slog.Info("validation report",
		"run_id", runID,
		"validated", valid,
		"needs_review", review,
	)
	return nil
}
