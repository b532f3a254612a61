// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

// Package module defines the feature-module contract and the Manager that
// registers modules, initializes them in dependency order, composes their
// routers, aggregates their health, and tears them down.
//
// Lifecycle of one module:
//
//	registered -> initializing -> initialized -> cleaning_up -> cleaned_up
//
// Configuration errors (duplicate name, unknown dependency, cycle) are
// reported before any module is initialized. An initialization failure stops
// the sequence; modules that were already initialized stay initialized so
// that CleanupAll can release them.
package module

import (
	"context"
	"net/http"

	"github.com/tomtom215/everly/internal/cache"
	"github.com/tomtom215/everly/internal/container"
	"github.com/tomtom215/everly/internal/eventbus"
	"github.com/tomtom215/everly/internal/store"
)

// Health status values.
const (
	StatusHealthy        = "healthy"
	StatusDegraded       = "degraded"
	StatusNotInitialized = "not_initialized"
	StatusError          = "error"
)

// Module is a self-contained feature with its own routes and lifecycle.
type Module interface {
	Name() string
	Version() string
	Description() string

	// Dependencies names the modules that must be initialized first.
	Dependencies() []string

	// Routes returns the module's HTTP handler. It must not depend on
	// initialization having happened; handlers resolve their state at
	// request time.
	Routes() http.Handler

	Initialize(ctx context.Context, deps Deps) error
	Cleanup(ctx context.Context) error
	IsInitialized() bool
	HealthCheck(ctx context.Context) (HealthStatus, error)
}

// Deps are the shared handles passed to Initialize.
type Deps struct {
	Store     *store.Store
	Cache     cache.Cacher // nil when caching is disabled
	Bus       *eventbus.Bus
	Container *container.Container
}

// HealthStatus is one module's health record.
type HealthStatus struct {
	Module  string         `json:"module"`
	Status  string         `json:"status"`
	Version string         `json:"version,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Healthy reports whether the status is StatusHealthy.
func (h HealthStatus) Healthy() bool {
	return h.Status == StatusHealthy
}

// WithDetail returns a copy of h with key set in Details.
func (h HealthStatus) WithDetail(key string, value any) HealthStatus {
	d := make(map[string]any, len(h.Details)+1)
	for k, v := range h.Details {
		d[k] = v
	}
	d[key] = value
	h.Details = d
	return h
}

// ConfigSchemaProvider is implemented by modules that describe their
// configuration keys. The schema maps key names to a short description of
// the expected value.
type ConfigSchemaProvider interface {
	ConfigSchema() map[string]string
}
