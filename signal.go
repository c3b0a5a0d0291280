package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second. This gives the sync engine time to finish
// its in-flight reconcile pass and close the journal cleanly on first signal,
// while allowing the operator to force-quit if a reconcile hangs (e.g. on a
// stuck network share backing the sync root).
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, draining in-flight reconcile before shutdown",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		// Wait for second signal — force exit without draining.
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit without draining",
				slog.String("signal", sig.String()),
			)
			os.Exit(1)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}

// watchSignals bundles the two signal sources 'pearsync watch' selects on:
// ctx, which is Done once shutdownContext has seen SIGINT/SIGTERM, and
// reload, which fires on SIGHUP so the run loop can call reloadWatchConfig
// without tearing down the engine.
type watchSignals struct {
	ctx    context.Context
	reload chan os.Signal
}

// newWatchSignals wires up both signal sources for a single watch run.
func newWatchSignals(parent context.Context, logger *slog.Logger) *watchSignals {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)

	return &watchSignals{
		ctx:    shutdownContext(parent, logger),
		reload: ch,
	}
}

// stop unregisters the SIGHUP handler. shutdownContext unregisters its own
// handler when its goroutine returns (parent Done, or ctx canceled before any
// signal), so only reload needs an explicit stop.
func (s *watchSignals) stop() {
	signal.Stop(s.reload)
}
