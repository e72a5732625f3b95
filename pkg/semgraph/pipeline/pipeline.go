// Package pipeline composes the batch stages that take enriched node
// records through validation and graph construction to the committed
// container. Stages are independent, restartable jobs that communicate
// only through the staging store and its batch markers; each processes
// bounded rounds and commits a marker per round, so a crash resumes
// from the last committed round. There is no cancellation mid-round: a
// round either commits or is discarded and retried.
package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Default retry posture for transient storage failures.
const (
	DefaultMaxTries = 4
	DefaultBackoff  = 200 * time.Millisecond
)

// Stage is one restartable batch job. Run processes the stage's whole
// backlog in bounded rounds and returns only when the backlog is empty
// or a build-scope error occurred.
type Stage interface {
	Name() string
	Run(ctx context.Context) error
}

// Runner executes stages in order, stopping at the first failure.
type Runner struct {
	stages []Stage
}

// NewRunner composes stages into a pipeline.
func NewRunner(stages ...Stage) *Runner {
	return &Runner{stages: stages}
}

// Run executes each stage to completion.
func (r *Runner) Run(ctx context.Context) error {
	for _, stage := range r.stages {
		start := time.Now()
		slog.Info("stage starting", "stage", stage.Name())
		if err := stage.Run(ctx); err != nil {
			slog.Error("stage failed", "stage", stage.Name(), "error", err)
			return err
		}
		slog.Info("stage finished", "stage", stage.Name(), "took", time.Since(start).String())
	}
	return nil
}
