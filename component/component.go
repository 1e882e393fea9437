// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

// Package component implements the framework's plugin loader: components
// and (user) plugins register themselves against the runtime's dispatch
// tables through an explicit Registrar, with dependency ordering resolved
// by a set-once rendezvous rather than a static topological sort — a
// component that Requires another simply blocks until that name has
// finished loading, however many goroutines are loading concurrently.
package component

import (
	"fmt"
	"sync"

	"github.com/tinyreef/aib/event"
	"github.com/tinyreef/aib/ircmsg"
	"github.com/tinyreef/aib/signal"
	"github.com/tinyreef/aib/storage"
	"github.com/tinyreef/aib/timer"
	"github.com/tinyreef/aib/trigger"
)

// Config exposes a component's own configuration sub-tree. Implemented
// by *config.Section (package config), kept as a narrow interface here
// so this package doesn't need to import config.
type Config interface {
	UnmarshalKey(key string, out any) error
	GetString(key string) string
	GetBool(key string) bool
	GetStringSlice(key string) []string
}

// noConfig satisfies Config with nothing configured, used when the
// caller has no config package wired up yet (e.g. in tests).
type noConfig struct{}

func (noConfig) UnmarshalKey(string, any) error { return nil }
func (noConfig) GetString(string) string        { return "" }
func (noConfig) GetBool(string) bool            { return false }
func (noConfig) GetStringSlice(string) []string { return nil }

// Registrar bundles the dispatch tables a component registers against.
// Components call into it directly from Register, rather than having
// their methods scanned and installed by reflection.
type Registrar[C any] struct {
	Events   *event.Events[C]
	Triggers *trigger.Triggers[C]
	Timers   *timer.Timers[C]
	Signals  *signal.Signals[C]
	Parser   *ircmsg.Parser
	// Storage is nil when no db.backend is configured; components must
	// check for nil before using it.
	Storage *storage.Store
}

// Component is one unit of application behavior: a plugin or framework
// component that attaches observers to the runtime's dispatch tables.
type Component[C any] interface {
	// Name identifies the component for config scoping, dependency
	// resolution, and IsLoaded checks.
	Name() string
	// Register is called exactly once, with this component's config
	// sub-tree and the shared Registrar. It should call into r to
	// attach events/triggers/timers/parsers.
	Register(ctx C, cfg Config, r *Registrar[C]) error
}

// DependsOn is implemented by a Component that must not Register until
// other named components have finished loading.
type DependsOn interface {
	Requires() []string
}

// Installer is implemented by a Component that wants its instance
// exposed under a name in the runtime's context (mirroring the
// original's @component_class("name") context-slot installation).
// Manager does not interpret the name itself; it's surfaced through the
// install callback passed to New.
type Installer interface {
	InstallAs() string
}

// Manager loads a fixed set of components, resolving dependency order
// through set-once rendezvous: Require(name) blocks until that name's
// Load call has returned.
type Manager[C any] struct {
	registrar *Registrar[C]
	configFor func(name string) Config
	install   func(name string, c any)

	mu     sync.Mutex
	loaded map[string]chan struct{}
	done   map[string]bool
}

// New creates a Manager. configFor, if non-nil, supplies a component's
// config sub-tree by name; install, if non-nil, is called once per
// Component implementing Installer, after it Registers successfully.
func New[C any](r *Registrar[C], configFor func(name string) Config, install func(name string, c any)) *Manager[C] {
	return &Manager[C]{
		registrar: r,
		configFor: configFor,
		install:   install,
		loaded:    make(map[string]chan struct{}),
		done:      make(map[string]bool),
	}
}

func (m *Manager[C]) signal(name string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.loaded[name]
	if !ok {
		ch = make(chan struct{})
		m.loaded[name] = ch
	}
	return ch
}

// Require blocks until name has finished loading. Calling it for a name
// that is never Load-ed blocks forever — callers are expected to load
// every component they name as a dependency.
func (m *Manager[C]) Require(name string) {
	<-m.signal(name)
}

// IsLoaded reports whether name has finished loading.
func (m *Manager[C]) IsLoaded(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done[name]
}

// Load registers c exactly once. Safe to call concurrently for the same
// name: later callers block until the first caller's Register returns,
// the same way a late component Require-ing an in-flight one would.
func (m *Manager[C]) Load(ctx C, c Component[C]) error {
	name := c.Name()

	m.mu.Lock()
	if loaded, started := m.done[name]; started {
		ch := m.loaded[name]
		m.mu.Unlock()
		if !loaded {
			<-ch
		}
		return nil
	}
	// A Require that ran first may already have created the channel.
	m.done[name] = false
	ch, ok := m.loaded[name]
	if !ok {
		ch = make(chan struct{})
		m.loaded[name] = ch
	}
	m.mu.Unlock()

	if dep, ok := c.(DependsOn); ok {
		for _, req := range dep.Requires() {
			m.Require(req)
		}
	}

	cfg := Config(noConfig{})
	if m.configFor != nil {
		if found := m.configFor(name); found != nil {
			cfg = found
		}
	}

	if err := c.Register(ctx, cfg, m.registrar); err != nil {
		close(ch)
		return fmt.Errorf("component: load %s: %w", name, err)
	}

	if m.install != nil {
		if inst, ok := c.(Installer); ok {
			m.install(inst.InstallAs(), c)
		}
	}

	m.mu.Lock()
	m.done[name] = true
	m.mu.Unlock()
	close(ch)
	return nil
}

// LoadAll loads every component concurrently, each in its own goroutine,
// so that Requires() dependency edges resolve themselves via Require
// regardless of slice order. It returns the first error encountered, if
// any, after every component has finished attempting to load.
func (m *Manager[C]) LoadAll(ctx C, components []Component[C]) error {
	var wg sync.WaitGroup
	errs := make([]error, len(components))
	for i, c := range components {
		wg.Add(1)
		go func(i int, c Component[C]) {
			defer wg.Done()
			errs[i] = m.Load(ctx, c)
		}(i, c)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
