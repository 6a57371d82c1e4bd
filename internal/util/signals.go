package util

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// ExitInterrupted is the exit code used when a second signal forces exit
const ExitInterrupted = 130

// SetupSignalHandler returns a context that is cancelled on the first SIGINT
// or SIGTERM. Statements running under it see a done context and the driver
// abandons them. A second signal exits the process with ExitInterrupted.
// stop releases the signal handler.
func SetupSignalHandler() (ctx context.Context, stop func()) {
	return notifyContext(context.Background(), func() { os.Exit(ExitInterrupted) }, syscall.SIGINT, syscall.SIGTERM)
}

func notifyContext(parent context.Context, forceExit func(), signals ...os.Signal) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, signals...)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			slog.Warn("interrupted, abandoning in-flight statements", "signal", sig.String())
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			slog.Error("received second signal, exiting", "signal", sig.String())
			forceExit()
		case <-done:
		}
	}()

	return ctx, func() {
		close(done)
		cancel()
	}
}
