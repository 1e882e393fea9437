// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

// Package timer implements one-shot and periodic callback scheduling on a
// 1Hz tick, matching the granularity and firing-order guarantees the
// framework's dispatch engine promises to handlers.
package timer

import (
	"errors"
	"reflect"
	"sync"
	"time"
)

// Callback receives the context the Timers table was created for and the
// timer's message/name, matching the payload an observer is spawned with.
type Callback[C any] func(ctx C, name string)

func callbackID(fn any) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

type entry[C any] struct {
	message  string
	callable Callback[C]
	at       time.Time
	every    time.Duration
	hasCount bool
	count    int
	expired  bool
}

// Option configures a timer at Set time. Exactly one of At or Every must
// be supplied.
type Option func(*options)

type options struct {
	at       time.Time
	hasAt    bool
	every    time.Duration
	hasCount bool
	count    int
}

// At arms a one-shot timer for the given absolute deadline.
func At(t time.Time) Option {
	return func(o *options) { o.at, o.hasAt = t, true }
}

// Every arms a repeating timer with the given interval, first firing
// one interval from now.
func Every(d time.Duration) Option {
	return func(o *options) { o.every = d }
}

// Count limits a repeating timer to firing n times before it expires.
// It has no effect on a one-shot (At-only) timer.
func Count(n int) Option {
	return func(o *options) { o.count, o.hasCount = n, true }
}

// Timers holds every live timer for one runtime. The zero value is not
// usable; construct with New.
type Timers[C any] struct {
	mu     sync.Mutex
	timers []*entry[C]
}

// New creates an empty timer table.
func New[C any]() *Timers[C] {
	return &Timers[C]{}
}

// Set registers a new timer. Exactly one of At(...) or Every(...) must be
// passed in opts.
func (t *Timers[C]) Set(name string, fn Callback[C], opts ...Option) error {
	var o options
	for _, apply := range opts {
		apply(&o)
	}
	if o.hasAt == (o.every > 0) {
		return errors.New("timer: exactly one of At or Every is required")
	}

	e := &entry[C]{message: name, callable: fn, every: o.every}
	switch {
	case o.hasAt:
		e.at = o.at
	default:
		e.at = time.Now().Add(o.every)
	}
	if o.hasCount && o.every > 0 {
		e.hasCount = true
		e.count = o.count
	}

	t.mu.Lock()
	t.timers = append(t.timers, e)
	t.mu.Unlock()
	return nil
}

// Reset re-arms a matching repeating timer to fire again after its
// interval from now. A matching one-shot timer is removed instead, since
// it has nothing to repeat.
func (t *Timers[C]) Reset(name string, fn Callback[C]) {
	id := callbackID(fn)
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.timers[:0]
	for _, e := range t.timers {
		if e.message == name && callbackID(e.callable) == id {
			if e.every > 0 {
				e.at = time.Now().Add(e.every)
				kept = append(kept, e)
			}
			continue
		}
		kept = append(kept, e)
	}
	t.timers = kept
}

// Clear removes every timer matching name and fn.
func (t *Timers[C]) Clear(name string, fn Callback[C]) {
	id := callbackID(fn)
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.timers[:0]
	for _, e := range t.timers {
		if e.message == name && callbackID(e.callable) == id {
			continue
		}
		kept = append(kept, e)
	}
	t.timers = kept
}

// Len returns the number of live (non-expired, non-pruned) timers.
func (t *Timers[C]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Tick fires every timer whose deadline has passed, in registration
// order, then prunes expired timers. The due callbacks run one after
// another, in that order, on a single goroutine per tick; Tick does not
// wait for them to complete.
func (t *Timers[C]) Tick(ctx C, now time.Time) {
	t.mu.Lock()
	due := make([]*entry[C], 0, len(t.timers))
	for _, e := range t.timers {
		if !now.Before(e.at) {
			due = append(due, e)
		}
	}
	if len(due) > 0 {
		go func() {
			for _, e := range due {
				e.callable(ctx, e.message)
			}
		}()
	}
	for _, e := range due {
		if e.every > 0 {
			e.at = now.Add(e.every)
			if e.hasCount {
				e.count--
				if e.count <= 0 {
					e.expired = true
				}
			}
		} else {
			e.expired = true
		}
	}

	kept := t.timers[:0]
	for _, e := range t.timers {
		if !e.expired {
			kept = append(kept, e)
		}
	}
	t.timers = kept
	t.mu.Unlock()
}

// Run drives Tick once a second until stop is closed. It is meant to be
// run in its own goroutine by the client runtime's supervisor.
func (t *Timers[C]) Run(ctx C, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			t.Tick(ctx, now)
		}
	}
}
