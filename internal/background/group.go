// Package background runs detached fire-and-forget tasks with bounded
// lifetimes and a shutdown drain.
package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// defaultTaskTimeout bounds each detached task.
const defaultTaskTimeout = 30 * time.Second

// Group runs tasks on their own goroutines, detached from the request
// lifecycle. Each task gets a fresh context with a timeout, so threat
// reports and audits survive the originating request being cancelled.
type Group struct {
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewGroup creates a task group with the default per-task timeout.
func NewGroup(logger *slog.Logger) *Group {
	return &Group{logger: logger, timeout: defaultTaskTimeout}
}

// Go runs fn on a new goroutine with a detached, timeout-bound context.
// Panics are recovered and logged so a misbehaving task cannot take
// down the process.
func (g *Group) Go(name string, fn func(ctx context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.logger.Error("background task panicked", "task", name, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until all in-flight tasks finish. Called during shutdown
// to drain pending reports before the process exits.
func (g *Group) Wait() {
	g.wg.Wait()
}
