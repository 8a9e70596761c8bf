// Package interrupt turns SIGINT/SIGTERM into context cancellation.
//
// The first signal cancels the returned context so the current job can stop at
// its next suspension point and in-flight tools are interrupted. A second
// signal runs the force hook, which should kill what is still running, and
// exits the process.
package interrupt

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
)

// ExitCode is used when a second signal forces the process to exit.
const ExitCode = 130

// Context returns a context cancelled by the first signal. force runs before
// the process exits on the second signal; it may be nil. The returned func
// stops signal delivery and releases the watcher.
func Context(parent context.Context, log zerolog.Logger, force func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 2)
	stopped := make(chan struct{})
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go watch(ctx, stopped, sigCh, cancel, log, force, os.Exit)

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(stopped)
			cancel()
		})
	}
}

func watch(ctx context.Context, stopped <-chan struct{}, sigCh <-chan os.Signal, cancel context.CancelFunc, log zerolog.Logger, force func(), exit func(int)) {
	select {
	case sig := <-sigCh:
		log.Warn().Str("signal", sig.String()).Msg("received interrupt, finishing current step")
		cancel()
	case <-ctx.Done():
		return
	case <-stopped:
		return
	}

	select {
	case sig := <-sigCh:
		log.Error().Str("signal", sig.String()).Msg("received second interrupt, exiting")
		if force != nil {
			force()
		}
		exit(ExitCode)
	case <-stopped:
	}
}
