// Package retention is the background sweeper spec.md §6 names: "executions
// older than a configured horizon (default 90 days after terminal status)
// are purged along with their step executions and context commits.
// Definitions are never purged automatically." It is driven the same way
// the boundary layer's SSE poller and the scheduler's Drive loop are — a
// ticker plus a context.Done() exit, no busy-looping.
package retention

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ledgerflow/workflowengine/pkg/contextstore"
)

// DefaultHorizon and DefaultInterval are spec.md §6's default: purge
// executions 90 days after they reach a terminal status, checked hourly.
const (
	DefaultHorizon  = 90 * 24 * time.Hour
	DefaultInterval = time.Hour
)

// ExecutionLister is the subset of engine.ExecutionStore the sweeper needs.
// Declared locally so pkg/retention doesn't need to import pkg/engine's full
// surface for two methods.
type ExecutionLister interface {
	ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	PurgeExecution(ctx context.Context, executionID string) error
}

// Sweeper periodically purges every execution (and its context commits)
// that reached a terminal status more than Horizon ago, leaving
// WorkflowDefinitions untouched (spec.md §6: "Definitions are never purged
// automatically").
type Sweeper struct {
	execStore ExecutionLister
	ctxStore  contextstore.Store
	horizon   time.Duration
	interval  time.Duration
	log       *logrus.Entry
	clock     func() time.Time
}

// New builds a Sweeper. A zero horizon or interval falls back to the spec
// defaults.
func New(execStore ExecutionLister, ctxStore contextstore.Store, horizon, interval time.Duration, log *logrus.Entry) *Sweeper {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Sweeper{
		execStore: execStore,
		ctxStore:  ctxStore,
		horizon:   horizon,
		interval:  interval,
		log:       log,
		clock:     time.Now,
	}
}

// Run ticks Sweep on interval until ctx is cancelled. cmd/workflow-service
// launches it in its own goroutine alongside the boundary server and the
// metrics listener.
func (sw *Sweeper) Run(ctx context.Context) {
	sw.log.WithFields(logrus.Fields{"horizon": sw.horizon, "interval": sw.interval}).Info("retention sweeper starting")
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()
	for {
		if err := sw.Sweep(ctx); err != nil {
			sw.log.WithError(err).Warn("retention sweep failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs one purge pass: every execution whose terminal status predates
// the retention horizon is removed from both the context store and the
// execution store (spec.md §6). The context commits are purged first, since
// they reference the execution row; if a sweep stops between the two
// deletes, the execution row is still terminal and past the horizon, so the
// next sweep lists it again and completes the purge.
func (sw *Sweeper) Sweep(ctx context.Context) error {
	cutoff := sw.clock().UTC().Add(-sw.horizon)
	ids, err := sw.execStore.ListTerminalBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := sw.ctxStore.Purge(ctx, id); err != nil {
			sw.log.WithError(err).WithField("execution_id", id).Warn("retention sweep: context purge failed")
			continue
		}
		if err := sw.execStore.PurgeExecution(ctx, id); err != nil {
			sw.log.WithError(err).WithField("execution_id", id).Warn("retention sweep: execution purge failed")
			continue
		}
		sw.log.WithField("execution_id", id).Info("retention sweep: purged execution past horizon")
	}
	return nil
}
