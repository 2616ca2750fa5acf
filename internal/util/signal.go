package util

import (
	"context"
	"sync"
)

// Signal is a write-once completion cell. It starts pending and is settled
// exactly once, either resolved (nil error) or rejected (non-nil error).
// Later Resolve/Reject calls are ignored, so callers may forward events from
// collaborators that fire more than once.
//
// Any number of goroutines may wait on a Signal.
type Signal struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewSignal returns a pending Signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Resolve settles the signal successfully. It reports whether this call
// settled it.
func (s *Signal) Resolve() bool {
	return s.settle(nil)
}

// Reject settles the signal with err. A nil err is treated as Resolve.
func (s *Signal) Reject(err error) bool {
	return s.settle(err)
}

func (s *Signal) settle(err error) bool {
	settled := false
	s.once.Do(func() {
		s.err = err
		close(s.done)
		settled = true
	})
	return settled
}

// Done returns a channel that is closed once the signal is settled.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Settled reports whether the signal has been resolved or rejected.
func (s *Signal) Settled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Err returns the rejection error. It is nil while pending or when resolved.
func (s *Signal) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait blocks until the signal settles or ctx is done. It returns the
// rejection error, or ctx.Err() if the context finished first.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
