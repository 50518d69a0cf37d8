package client

import (
	"context"
	"sync"
)

// ReadySignal is a one-shot barrier signalling that the identity provider's
// initial session-restoration emission has occurred. It resolves at most once
// per process lifetime; waiters arriving after resolution return immediately.
type ReadySignal struct {
	once sync.Once
	done chan struct{}
}

func NewReadySignal() *ReadySignal {
	return &ReadySignal{done: make(chan struct{})}
}

// Resolve marks the signal ready. Subsequent calls are no-ops.
func (r *ReadySignal) Resolve() {
	r.once.Do(func() {
		close(r.done)
	})
}

// Resolved reports whether the signal has fired.
func (r *ReadySignal) Resolved() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Done exposes the underlying channel for select-based waiters.
func (r *ReadySignal) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the signal resolves or ctx is cancelled.
func (r *ReadySignal) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
