// Package supervisor wires startup, graceful shutdown, and signal handling
// for every long-running component of the engine.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/purefinance/mmb/internal/logging"
)

// Runner is one long-running component: the strategy host, the archive
// drain loop, the reconciler, the control-plane HTTP server, a market's
// WebSocket stream. Run must block until ctx is canceled or a fatal error
// occurs, and must return promptly once ctx is canceled.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Supervisor starts every registered Runner under a shared context that is
// canceled on SIGINT/SIGTERM or when any Runner returns a non-nil error,
// and waits for all of them to exit before returning — the same
// errgroup-plus-signal-context shutdown shape used throughout this engine's
// component set.
type Supervisor struct {
	logger  logging.Logger
	runners []Runner
}

// New builds an empty Supervisor.
func New(logger logging.Logger) *Supervisor {
	return &Supervisor{logger: logger}
}

// Add registers a Runner to start when Run is called.
func (s *Supervisor) Add(r Runner) {
	s.runners = append(s.runners, r)
}

// Run starts every registered Runner and blocks until all have exited,
// returning the first non-nil error any of them returned (context.Canceled
// from a clean shutdown is not treated as an error).
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	for _, r := range s.runners {
		r := r
		group.Go(func() error {
			return r.Run(gctx)
		})
	}

	s.logger.Info("supervisor started", "runner_count", len(s.runners))
	err := group.Wait()
	s.logger.Info("supervisor shut down", "error", err)
	if err == context.Canceled {
		return nil
	}
	return err
}
