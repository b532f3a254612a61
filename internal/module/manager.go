// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package module

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/everly/internal/cache"
	"github.com/tomtom215/everly/internal/container"
	"github.com/tomtom215/everly/internal/eventbus"
	"github.com/tomtom215/everly/internal/logging"
	"github.com/tomtom215/everly/internal/metrics"
	"github.com/tomtom215/everly/internal/store"
)

// SourceManager is the source_module of lifecycle events.
const SourceManager = "system"

// State is a module's position in the lifecycle.
type State int

const (
	StateRegistered State = iota
	StateInitializing
	StateInitialized
	StateCleaningUp
	StateCleanedUp
)

func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateCleaningUp:
		return "cleaning_up"
	case StateCleanedUp:
		return "cleaned_up"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// routePrefixes overrides the default "/<name>" mount point.
var routePrefixes = map[string]string{
	"auth":    "/auth",
	"users":   "/users",
	"diaries": "/diaries",
	"media":   "/media",
}

// RoutePrefix returns the path a module's routes are mounted under.
func RoutePrefix(name string) string {
	if p, ok := routePrefixes[name]; ok {
		return p
	}
	return "/" + name
}

// Manager owns the registered modules and drives their lifecycle.
type Manager struct {
	bus       *eventbus.Bus
	container *container.Container
	services  *container.ServiceRegistry
	logger    zerolog.Logger

	// lifecycle serializes InitializeAll and CleanupAll.
	lifecycle sync.Mutex

	mu        sync.RWMutex
	modules   map[string]Module
	names     []string // registration order
	states    map[string]State
	initOrder []string
}

// NewManager creates a manager publishing lifecycle events on bus and sharing
// handles through c.
func NewManager(bus *eventbus.Bus, c *container.Container) *Manager {
	return &Manager{
		bus:       bus,
		container: c,
		services:  container.NewServiceRegistry(c),
		logger:    logging.WithComponent("module_manager"),
		modules:   make(map[string]Module),
		states:    make(map[string]State),
	}
}

func (m *Manager) Bus() *eventbus.Bus              { return m.bus }
func (m *Manager) Container() *container.Container { return m.container }

// Register adds mod. A second module with the same name is rejected and the
// existing registration is left untouched. The module is also exposed as the
// singleton "module.<name>".
func (m *Manager) Register(mod Module) error {
	name := mod.Name()

	m.mu.Lock()
	if _, exists := m.modules[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%q: %w", name, ErrDuplicateModule)
	}
	m.modules[name] = mod
	m.names = append(m.names, name)
	m.states[name] = StateRegistered
	m.mu.Unlock()

	m.container.RegisterSingleton("module."+name, mod)

	m.logger.Debug().
		Str("module", name).
		Str("version", mod.Version()).
		Strs("dependencies", mod.Dependencies()).
		Msg("Module registered")
	return nil
}

// Get returns a registered module.
func (m *Manager) Get(name string) (Module, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, ok := m.modules[name]
	return mod, ok
}

// Modules returns the registered modules in registration order.
func (m *Manager) Modules() []Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Module, 0, len(m.names))
	for _, n := range m.names {
		out = append(out, m.modules[n])
	}
	return out
}

// State returns a module's lifecycle state.
func (m *Manager) State(name string) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[name]
	return s, ok
}

// InitOrder returns the order computed by the last InitializeAll.
func (m *Manager) InitOrder() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.initOrder))
	copy(out, m.initOrder)
	return out
}

func (m *Manager) setState(name string, s State) {
	m.mu.Lock()
	m.states[name] = s
	m.mu.Unlock()
}

// ResolveOrder validates the dependency graph of the registered modules and
// returns the order InitializeAll would use, without initializing anything.
func (m *Manager) ResolveOrder() ([]string, error) {
	m.mu.RLock()
	names := make([]string, len(m.names))
	copy(names, m.names)
	graph := make(map[string][]string, len(names))
	for _, n := range names {
		graph[n] = m.modules[n].Dependencies()
	}
	m.mu.RUnlock()

	if err := validateDependencies(names, graph); err != nil {
		return nil, err
	}
	return initOrder(names, graph)
}

// InitializeAll validates the dependency graph and initializes every module
// in topological order. Nothing is initialized when the graph is invalid.
// The first Initialize failure is returned as *InitError; modules
// initialized before it are left running. Modules already initialized by an
// earlier call are skipped.
func (m *Manager) InitializeAll(ctx context.Context, db *store.Store, c cache.Cacher) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.container.RegisterSingleton(container.SharedDatabase, db)
	if c != nil {
		m.container.RegisterSingleton(container.SharedCache, c)
	}

	order, err := m.ResolveOrder()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.initOrder = order
	m.mu.Unlock()

	m.logger.Info().Strs("order", order).Msg("Initializing modules")

	deps := Deps{Store: db, Cache: c, Bus: m.bus, Container: m.container}

	for _, name := range order {
		mod, _ := m.Get(name)
		if mod.IsInitialized() {
			continue
		}

		m.services.RegisterModuleServices(name, db, c)
		m.setState(name, StateInitializing)

		start := time.Now()
		if err := mod.Initialize(ctx, deps); err != nil {
			m.setState(name, StateRegistered)
			return &InitError{Module: name, Err: err}
		}
		metrics.RecordModuleInit(name, time.Since(start))
		metrics.ModulesInitialized.Inc()
		m.setState(name, StateInitialized)

		m.bus.Publish(ctx, eventbus.NewEvent(eventbus.ModuleInitialized, SourceManager, map[string]any{
			"module_name": name,
			"version":     mod.Version(),
		}))
	}

	m.logger.Info().Int("modules", len(order)).Msg("All modules initialized")
	return nil
}

// CleanupAll cleans up every initialized module. Cleanups are started in
// reverse initialization order and run concurrently; a failing cleanup does
// not prevent the others. A module.shutdown event is published for each
// module that cleaned up successfully. Afterwards the container and all bus
// subscriptions are cleared. The returned error joins the individual
// failures.
func (m *Manager) CleanupAll(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	order := m.InitOrder()
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		mod, ok := m.Get(name)
		if !ok || !mod.IsInitialized() {
			continue
		}

		m.setState(name, StateCleaningUp)
		g.Go(func() error {
			err := m.cleanupOne(ctx, mod)
			m.setState(name, StateCleanedUp)
			if err != nil {
				m.logger.Error().Err(err).Str("module", name).Msg("Module cleanup failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("cleanup module %q: %w", name, err))
				mu.Unlock()
				return nil
			}
			metrics.ModulesInitialized.Dec()
			m.bus.PublishAndWait(ctx, eventbus.NewEvent(eventbus.ModuleShutdown, SourceManager, map[string]any{
				"module_name": name,
				"version":     mod.Version(),
			}))
			return nil
		})
	}
	_ = g.Wait()

	m.container.Clear()
	m.bus.ClearSubscribers()

	m.logger.Info().Int("failures", len(errs)).Msg("Module cleanup complete")
	return errors.Join(errs...)
}

func (m *Manager) cleanupOne(ctx context.Context, mod Module) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup panic: %v", r)
		}
	}()
	return mod.Cleanup(ctx)
}

// CreateMainRouter mounts each initialized module's routes under its prefix,
// in initialization order.
func (m *Manager) CreateMainRouter() chi.Router {
	r := chi.NewRouter()
	for _, name := range m.InitOrder() {
		mod, ok := m.Get(name)
		if !ok || !mod.IsInitialized() {
			continue
		}
		h := mod.Routes()
		if h == nil {
			continue
		}
		r.Mount(RoutePrefix(name), h)
		m.logger.Debug().Str("module", name).Str("prefix", RoutePrefix(name)).Msg("Module routes mounted")
	}
	return r
}

// ConfigSchemas collects the schemas of modules implementing
// ConfigSchemaProvider, keyed by module name.
func (m *Manager) ConfigSchemas() map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, mod := range m.Modules() {
		if p, ok := mod.(ConfigSchemaProvider); ok {
			out[mod.Name()] = p.ConfigSchema()
		}
	}
	return out
}
