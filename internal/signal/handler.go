// Package signal translates SIGINT and SIGTERM into context
// cancellation so a run stops at the next step boundary instead of
// mid-write. The executor persists task state after every step;
// commands watch Interrupted() to print resume instructions before
// exiting.
//
// The package imports only the standard library so any command can use
// it without dependency cycles.
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Handler cancels a derived context when the process receives SIGINT
// or SIGTERM.
type Handler struct {
	ctx           context.Context //nolint:containedctx // the handler owns this context's lifecycle
	cancel        context.CancelFunc
	interrupted   chan struct{}
	quit          chan struct{}
	interruptOnce sync.Once
	stopOnce      sync.Once
	signals       chan os.Signal
}

// NewHandler starts listening for SIGINT and SIGTERM. The first signal
// cancels Context() and closes Interrupted().
//
// Usage:
//
//	h := signal.NewHandler(ctx)
//	defer h.Stop()
//	ctx = h.Context()
func NewHandler(parent context.Context) *Handler {
	ctx, cancel := context.WithCancel(parent)
	h := &Handler{
		ctx:         ctx,
		cancel:      cancel,
		interrupted: make(chan struct{}),
		quit:        make(chan struct{}),
		// Buffered so signal.Notify never drops a signal while watch is busy.
		signals: make(chan os.Signal, 1),
	}

	signal.Notify(h.signals, syscall.SIGINT, syscall.SIGTERM)
	go h.watch()

	return h
}

// Context returns the context canceled on the first signal. Pass it to
// everything that should stop on Ctrl+C.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Interrupted returns a channel that closes once a signal arrives.
// Commands check it after a run returns to tell interruption apart
// from failure.
func (h *Handler) Interrupted() <-chan struct{} {
	return h.interrupted
}

// Stop unregisters the signal listener and cancels the context. Safe
// to call more than once.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		signal.Stop(h.signals)
		close(h.quit)
		h.cancel()
	})
}

// markInterrupted cancels the context and closes the interrupted
// channel exactly once, however many signals arrive.
func (h *Handler) markInterrupted() {
	h.interruptOnce.Do(func() {
		h.cancel()
		close(h.interrupted)
	})
}

// watch drains signals until Stop or external cancellation. Signals
// after the first are received and dropped so delivery never blocks.
func (h *Handler) watch() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-h.quit:
			return
		case <-h.signals:
			h.markInterrupted()
		}
	}
}
