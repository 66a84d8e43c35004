package etl

import (
	"context"
	"sync"
)

// ── Flag ───────────────────────────────────────────────────
// A Flag is the observable on/off cell that drives a pipeline. The
// controller writes it; the pipeline reads it and parks on Wait while it
// is off.

// Flag is a boolean that can be waited on. The zero value is not usable;
// call NewFlag.
type Flag struct {
	mu      sync.Mutex
	active  bool
	changed chan struct{}
}

// NewFlag returns a flag in the given state.
func NewFlag(active bool) *Flag {
	return &Flag{active: active, changed: make(chan struct{})}
}

// Active reports the current state.
func (f *Flag) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Set stores v and wakes every waiter if the state changed.
func (f *Flag) Set(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == v {
		return
	}
	f.active = v
	close(f.changed)
	f.changed = make(chan struct{})
}

// Toggle flips the flag and returns the new state.
func (f *Flag) Toggle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = !f.active
	close(f.changed)
	f.changed = make(chan struct{})
	return f.active
}

// Wait blocks until the flag equals want or ctx is done.
func (f *Flag) Wait(ctx context.Context, want bool) error {
	for {
		f.mu.Lock()
		if f.active == want {
			f.mu.Unlock()
			return nil
		}
		ch := f.changed
		f.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// whileActive derives a context that is cancelled as soon as the flag
// turns off. The returned stop func must be called to release it.
func (f *Flag) whileActive(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		if f.Wait(ctx, false) == nil {
			cancel()
		}
	}()
	return ctx, cancel
}
