// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package module

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/everly/internal/logging"
)

// BaseModule carries the identity and initialized flag every module needs.
// Feature modules embed *BaseModule and implement Routes, Initialize,
// Cleanup and HealthCheck on top of it.
type BaseModule struct {
	name         string
	version      string
	description  string
	dependencies []string

	lifecycle   sync.Mutex
	initialized atomic.Bool
	logger      zerolog.Logger
}

// NewBase creates a BaseModule.
func NewBase(name, version, description string, dependencies ...string) *BaseModule {
	deps := make([]string, len(dependencies))
	copy(deps, dependencies)
	return &BaseModule{
		name:         name,
		version:      version,
		description:  description,
		dependencies: deps,
		logger:       logging.WithComponent("module").With().Str("module", name).Logger(),
	}
}

func (b *BaseModule) Name() string        { return b.name }
func (b *BaseModule) Version() string     { return b.version }
func (b *BaseModule) Description() string { return b.description }
func (b *BaseModule) IsInitialized() bool { return b.initialized.Load() }

// Dependencies returns a copy of the declared dependencies.
func (b *BaseModule) Dependencies() []string {
	out := make([]string, len(b.dependencies))
	copy(out, b.dependencies)
	return out
}

// Logger returns the module-scoped logger.
func (b *BaseModule) Logger() *zerolog.Logger { return &b.logger }

// Start runs fn as the module's initialization and marks the module
// initialized when fn succeeds.
func (b *BaseModule) Start(ctx context.Context, fn func(ctx context.Context) error) error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	if b.initialized.Load() {
		return fmt.Errorf("%s: %w", b.name, ErrAlreadyInitialized)
	}

	start := time.Now()
	if fn != nil {
		if err := fn(ctx); err != nil {
			b.logger.Error().Err(err).Msg("Module initialization failed")
			return err
		}
	}
	b.initialized.Store(true)

	b.logger.Info().
		Str("version", b.version).
		Dur("duration", time.Since(start)).
		Msg("Module initialized")
	return nil
}

// Stop runs fn as the module's cleanup. The module is marked not initialized
// even when fn fails.
func (b *BaseModule) Stop(ctx context.Context, fn func(ctx context.Context) error) error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	if !b.initialized.Load() {
		return fmt.Errorf("%s: %w", b.name, ErrNotInitialized)
	}

	var err error
	if fn != nil {
		err = fn(ctx)
	}
	b.initialized.Store(false)

	if err != nil {
		b.logger.Error().Err(err).Msg("Module cleanup failed")
		return err
	}
	b.logger.Info().Msg("Module cleaned up")
	return nil
}

// BaseHealth returns the status every module starts from: healthy when
// initialized, not_initialized otherwise.
func (b *BaseModule) BaseHealth() HealthStatus {
	status := StatusNotInitialized
	if b.initialized.Load() {
		status = StatusHealthy
	}
	return HealthStatus{Module: b.name, Status: status, Version: b.version}
}
