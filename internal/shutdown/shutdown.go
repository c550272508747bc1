// Package shutdown coordinates graceful termination across every
// service: on SIGINT/SIGTERM, stop taking new work and give in-flight
// work a bounded window to finish before the process exits.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sentinel-voice/core/internal/logging"
)

// DefaultTimeout bounds how long drain steps are given before the
// process exits regardless of whether they finished.
const DefaultTimeout = 30 * time.Second

// Coordinator blocks the caller until a termination signal arrives, then
// runs every registered drain step concurrently within Timeout.
type Coordinator struct {
	Timeout time.Duration
	log     logging.Logger
}

// New builds a Coordinator. A non-positive timeout falls back to
// DefaultTimeout.
func New(log logging.Logger, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{Timeout: timeout, log: log}
}

// Wait blocks until SIGINT or SIGTERM, then runs steps concurrently with
// a shared timeout budget. Each step should itself respect ctx.Done()
// and return promptly once the deadline passes. Errors are logged, not
// returned: shutdown is best-effort by design, never a reason to hang.
func (c *Coordinator) Wait(steps ...func(ctx context.Context) error) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	c.log.Info("shutdown: signal received, draining", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, step := range steps {
		step := step
		g.Go(func() error { return step(gctx) })
	}
	if err := g.Wait(); err != nil {
		c.log.Error("shutdown: error during drain", "error", err)
	}
	c.log.Info("shutdown: complete")
}
