// Package worker runs named goroutines that can be joined, and captures
// their panics so a supervisor can see how they ended.
package worker

import (
	"errors"

	liberrors "liebert/internal/errors"
)

// Handle is the join handle of a spawned worker.
type Handle struct {
	name string
	done chan struct{}
	err  error
}

// Spawn runs fn on a new goroutine. A panic in fn is recovered and reported
// by Join instead of crashing the process.
func Spawn(name string, fn func()) *Handle {
	h := &Handle{name: name, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				h.err = liberrors.PanicError(name, r)
			}
		}()
		fn()
	}()
	return h
}

func (h *Handle) Name() string { return h.name }

// Done is closed when the worker returns.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Finished reports whether the worker has returned.
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Join waits for the worker and returns its panic, if it had one. It may be
// called any number of times from any goroutine.
func (h *Handle) Join() error {
	<-h.done
	return h.err
}

// JoinAll waits for every handle and joins their panics.
func JoinAll(handles ...*Handle) error {
	var errs []error
	for _, h := range handles {
		if err := h.Join(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
