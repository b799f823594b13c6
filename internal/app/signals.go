package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"comfypilot/internal/agent"
	"comfypilot/internal/logging"
)

// GracefulShutdownTimeout bounds the final thread save on exit.
const GracefulShutdownTimeout = 10 * time.Second

// setupSignalHandler makes an interrupt cancel the running turn. An
// interrupt while idle, or SIGTERM, shuts the app down.
// Returns a cleanup function that should be called when the app exits.
func (a *App) setupSignalHandler(ctx context.Context) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-sigChan:
				logging.Debug("received signal", "signal", sig)
				if a.interrupt(sig) {
					continue
				}
				a.gracefulShutdown()
				a.exit(0)
				return
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}

// interrupt cancels a running turn. It reports false when there was
// nothing to cancel and the app should exit instead.
func (a *App) interrupt(sig os.Signal) bool {
	if sig != os.Interrupt {
		return false
	}
	c := a.Controller()
	if c.State() == agent.StateIdle {
		return false
	}
	c.Cancel()
	return true
}

// gracefulShutdown cancels the turn, lets its save finish and closes the store.
func (a *App) gracefulShutdown() {
	logging.Debug("starting graceful shutdown")

	c := a.Controller()
	c.Cancel()

	deadline := time.Now().Add(GracefulShutdownTimeout)
	for c.State() != agent.StateIdle && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	if err := a.Close(); err != nil {
		logging.Warn("shutdown error", "error", err)
	}
	logging.Debug("shutdown complete")
	logging.Close()
}
