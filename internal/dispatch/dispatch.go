// Package dispatch runs a worker over many targets with bounded
// concurrency, isolating each target's failure.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/mediacrawl/internal/logger"
)

// Target is one unit of secondary work.
type Target struct {
	ID  string
	URL string
}

// Worker processes a single target.
type Worker func(ctx context.Context, t Target) error

// Dispatcher fans work out over targets.
type Dispatcher struct {
	// Enabled turns the dispatcher on. A disabled dispatcher does nothing.
	Enabled bool
	// Limit is the maximum number of concurrent workers. Values below 1
	// are treated as 1.
	Limit int
}

// FanOut runs worker once per target with at most Limit running at a time
// and returns when all have finished. Worker errors and panics are logged
// and never affect other targets. FanOut returns the number of targets
// whose worker failed.
func (d Dispatcher) FanOut(ctx context.Context, targets []Target, worker Worker) int {
	if !d.Enabled || len(targets) == 0 {
		return 0
	}
	limit := d.Limit
	if limit < 1 {
		limit = 1
	}

	log := logger.Component("dispatch")
	failures := make(chan struct{}, len(targets))

	// Workers never return errors to the group, so one failure cannot
	// cancel the shared context.
	var g errgroup.Group
	g.SetLimit(limit)
	for _, t := range targets {
		g.Go(func() error {
			if err := run(ctx, t, worker); err != nil {
				failures <- struct{}{}
				log.WarnContext(ctx, "target failed", "id", t.ID, "url", t.URL, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	close(failures)

	failed := len(failures)
	log.DebugContext(ctx, "fan-out finished", "targets", len(targets), "failed", failed, "limit", limit)
	return failed
}

func run(ctx context.Context, t Target, worker Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Debug("worker panic", "id", t.ID, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return worker(ctx, t)
}
