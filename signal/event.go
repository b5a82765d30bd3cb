// Package signal provides a sticky, broadcast wake-up flag that can be waited
// on with a timeout from any goroutine.
//
// A Set that happens while nobody is waiting is not lost: the next Wait
// observes it, clears it and returns at once. Waiters re-check the flag in
// bounded slices so a wake-up racing the start of a wait is picked up within
// one slice.
package signal

import (
	"context"
	"sync"
	"time"
)

// Slice is the longest a waiter blocks before re-checking the flag.
const Slice = 30 * time.Millisecond

// Event is a sticky signal: a mutex-guarded flag plus a broadcast. Closing
// wake plays the part of a condition variable's broadcast. The zero value is
// ready to use.
type Event struct {
	mu       sync.Mutex
	signaled bool
	wake     chan struct{}
}

// New returns a ready Event.
func New() *Event {
	return &Event{}
}

// Set marks the event signaled and wakes every current waiter.
func (e *Event) Set() {
	e.mu.Lock()
	e.signaled = true
	if e.wake != nil {
		close(e.wake)
		e.wake = nil
	}
	e.mu.Unlock()
}

// Wait blocks until the event is signaled or timeout elapses. The flag is
// always clear when Wait returns. It reports whether a signal was observed.
func (e *Event) Wait(timeout time.Duration) bool {
	return e.WaitContext(context.Background(), timeout)
}

// WaitContext is Wait that also returns early once ctx is done.
func (e *Event) WaitContext(ctx context.Context, timeout time.Duration) bool {
	if e.consume() {
		return true
	}

	deadline := time.Now().Add(timeout)
	for time.Until(deadline) > Slice {
		e.block(ctx, Slice)
		if e.consume() {
			return true
		}
		if ctx.Err() != nil {
			return e.clear()
		}
	}

	if remaining := time.Until(deadline); remaining > 0 {
		e.block(ctx, remaining)
	}
	return e.clear()
}

// consume clears the flag if it is set and reports whether it was.
func (e *Event) consume() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.signaled {
		return false
	}
	e.signaled = false
	return true
}

// clear unconditionally resets the flag and reports its previous value.
func (e *Event) clear() bool {
	e.mu.Lock()
	was := e.signaled
	e.signaled = false
	e.mu.Unlock()
	return was
}

func (e *Event) block(ctx context.Context, d time.Duration) {
	e.mu.Lock()
	if e.signaled {
		e.mu.Unlock()
		return
	}
	if e.wake == nil {
		e.wake = make(chan struct{})
	}
	ch := e.wake
	e.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ch:
	case <-timer.C:
	case <-ctx.Done():
	}
}
