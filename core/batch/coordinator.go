// Package batch runs pseudonymization over many documents with a
// bounded worker pool. Detection and resolution are read-only and run
// in parallel; every mapper and store mutation goes through a single
// writer goroutine, which keeps the non-collision invariant intact
// under concurrency.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/siherrmann/pseudonymizer/core/engine"
	"github.com/siherrmann/pseudonymizer/core/pipeline"
	"github.com/siherrmann/pseudonymizer/core/resolver"
	"github.com/siherrmann/pseudonymizer/helper"
	"github.com/siherrmann/pseudonymizer/model"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkerCount is used when the caller does not size the pool.
const DefaultWorkerCount = 4

// Coordinator fans document resolution out to workers and funnels all
// assignment writes through one goroutine.
type Coordinator struct {
	detect   pipeline.DetectFunc
	resolver *resolver.Resolver
	engine   *engine.AssignmentEngine
	log      *slog.Logger
}

// resolved carries one document's read-phase outcome to the writer.
// Exactly one of clusters and err is meaningful.
type resolved struct {
	index    int
	clusters []*model.MentionCluster
	err      error
}

// NewCoordinator creates a new batch coordinator.
func NewCoordinator(detect pipeline.DetectFunc, r *resolver.Resolver, e *engine.AssignmentEngine, logger *slog.Logger) (*Coordinator, error) {
	if detect == nil {
		return nil, helper.NewError("detector validation", fmt.Errorf("detect function is nil"))
	}
	if r == nil {
		return nil, helper.NewError("resolver validation", fmt.Errorf("resolver is nil"))
	}
	if e == nil {
		return nil, helper.NewError("engine validation", fmt.Errorf("engine is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		detect:   detect,
		resolver: r,
		engine:   e,
		log:      logger,
	}, nil
}

// Run processes the documents and returns one replacement plan per
// document, index-aligned with the input (nil for failed documents),
// plus an explicit summary. Per-document input errors are logged and
// skipped; a store error is fatal and surfaces together with the
// partial results. Cancellation is honored at document boundaries:
// documents already handed to the writer are committed before the
// run ends.
func (c *Coordinator) Run(ctx context.Context, documents []string, workerCount int) ([]*model.ReplacementPlan, *model.BatchSummary, error) {
	if workerCount < 1 {
		workerCount = DefaultWorkerCount
	}

	plans := make([]*model.ReplacementPlan, len(documents))
	statuses := make([]model.DocumentStatus, len(documents))
	for i := range statuses {
		statuses[i] = model.DocumentStatus{Index: i, State: model.StatePending}
	}

	results := make(chan *resolved, len(documents))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workerCount)
	for i := range documents {
		index := i
		group.Go(func() error {
			results <- c.resolveDocument(groupCtx, documents[index], index, &statuses[index])
			return nil
		})
	}
	go func() {
		group.Wait()
		close(results)
	}()

	// Single writer. Documents are committed in submission order so
	// a batch run is reproducible regardless of worker scheduling.
	var fatal error
	pending := map[int]*resolved{}
	next := 0
	for result := range results {
		pending[result.index] = result
		for {
			current, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			c.commit(current, plans, statuses, &fatal)
			next++
		}
	}

	summary := &model.BatchSummary{Documents: statuses}
	for _, status := range statuses {
		switch status.State {
		case model.StateCommitted:
			summary.Committed++
		default:
			summary.Failed++
		}
	}

	c.log.Info(
		"Batch run finished",
		slog.Int("documents", len(documents)),
		slog.Int("committed", summary.Committed),
		slog.Int("failed", summary.Failed),
	)

	return plans, summary, fatal
}

// resolveDocument is the read-only worker phase: detect mentions and
// cluster them. It never writes shared state.
func (c *Coordinator) resolveDocument(ctx context.Context, document string, index int, status *model.DocumentStatus) *resolved {
	if err := ctx.Err(); err != nil {
		return &resolved{index: index, err: helper.NewError("batch cancelled", err)}
	}

	status.State = model.StateResolving

	mentions, err := c.detect(document)
	if err != nil {
		c.log.Warn(
			"Skipping document, detection failed",
			slog.Int("document", index),
			slog.String("error", err.Error()),
		)
		return &resolved{index: index, err: helper.NewError("detect mentions", err)}
	}

	clusters, err := c.resolver.Resolve(document, mentions)
	if err != nil {
		c.log.Warn(
			"Skipping document, resolution failed",
			slog.Int("document", index),
			slog.String("error", err.Error()),
		)
		return &resolved{index: index, err: helper.NewError("resolve mentions", err)}
	}

	status.State = model.StateAwaitingAssignment
	return &resolved{index: index, clusters: clusters}
}

// commit is the write phase for one document. It runs only on the
// writer goroutine. After a fatal store error remaining documents are
// failed without further writes.
func (c *Coordinator) commit(result *resolved, plans []*model.ReplacementPlan, statuses []model.DocumentStatus, fatal *error) {
	status := &statuses[result.index]

	if result.err != nil {
		status.State = model.StateFailed
		status.Error = result.err.Error()
		return
	}
	if *fatal != nil {
		status.State = model.StateFailed
		status.Error = "batch aborted: " + (*fatal).Error()
		return
	}

	plan, _, err := c.engine.Assign(result.clusters)
	if err != nil {
		c.log.Error(
			"Assignment failed, aborting batch",
			slog.Int("document", result.index),
			slog.String("error", err.Error()),
		)
		*fatal = err
		status.State = model.StateFailed
		status.Error = err.Error()
		return
	}

	plans[result.index] = plan
	status.State = model.StateCommitted
}
