// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

// Package diaries is the journal module: diaries, their entries, and
// entry search by text, tags, date, sentiment and distance.
package diaries

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/everly/internal/cache"
	"github.com/tomtom215/everly/internal/config"
	"github.com/tomtom215/everly/internal/container"
	"github.com/tomtom215/everly/internal/eventbus"
	"github.com/tomtom215/everly/internal/models"
	"github.com/tomtom215/everly/internal/module"
	authmod "github.com/tomtom215/everly/internal/modules/auth"
	"github.com/tomtom215/everly/internal/modules/guard"
	"github.com/tomtom215/everly/internal/modules/users"
)

// ModuleName is the registered name of the module.
const ModuleName = "diaries"

// ServiceKey is the container key of the diaries Service.
var ServiceKey = container.ModuleService(ModuleName, "service")

// Module is the diaries feature module.
type Module struct {
	*module.BaseModule
	cfg *config.Config

	state atomic.Pointer[state]
}

type state struct {
	svc      *Service
	guard    *guard.Guard
	bus      *eventbus.Bus
	mediaSub eventbus.SubscriptionID
}

// New creates the diaries module.
func New(cfg *config.Config) *Module {
	return &Module{
		BaseModule: module.NewBase(ModuleName, "1.0.0", "Diaries and entries",
			authmod.ModuleName, users.ModuleName),
		cfg: cfg,
	}
}

// Initialize builds the service and subscribes to media deletions.
func (m *Module) Initialize(ctx context.Context, deps module.Deps) error {
	return m.Start(ctx, func(ctx context.Context) error {
		g, err := guard.FromContainer(deps.Container)
		if err != nil {
			return err
		}

		svc := &Service{
			db:  deps.Store,
			bus: deps.Bus,
			cfg: m.cfg.Diaries,
		}
		if deps.Cache != nil {
			svc.cache = cache.WithNamespace(deps.Cache, ModuleName)
		} else {
			m.Logger().Info().Msg("Cache disabled, diary lists are read from the store")
		}
		deps.Container.RegisterService(ServiceKey, svc)

		m.state.Store(&state{
			svc:      svc,
			guard:    g,
			bus:      deps.Bus,
			mediaSub: deps.Bus.Subscribe(eventbus.MediaDeleted, svc.onMediaDeleted),
		})
		return nil
	})
}

// Cleanup drops the media subscription.
func (m *Module) Cleanup(ctx context.Context) error {
	return m.Stop(ctx, func(context.Context) error {
		st := m.state.Swap(nil)
		if st == nil {
			return nil
		}
		st.bus.Unsubscribe(eventbus.MediaDeleted, st.mediaSub)
		return nil
	})
}

func (m *Module) currentGuard() *guard.Guard {
	if st := m.state.Load(); st != nil {
		return st.guard
	}
	return nil
}

func (m *Module) handle(fn func(*handlers, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := m.state.Load()
		if st == nil {
			guard.NotReady(w, r)
			return
		}
		fn(&handlers{svc: st.svc}, w, r)
	}
}

// Routes returns the /diaries router.
func (m *Module) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(guard.Deferred(m.currentGuard, ModuleName))

	r.Get("/", m.handle((*handlers).list))
	r.Post("/", m.handle((*handlers).create))
	r.Post("/search", m.handle((*handlers).search))

	r.Route("/{diaryID}", func(r chi.Router) {
		r.Get("/", m.handle((*handlers).get))
		r.Put("/", m.handle((*handlers).update))
		r.Delete("/", m.handle((*handlers).remove))

		r.Get("/entries", m.handle((*handlers).entries))
		r.Post("/entries", m.handle((*handlers).createEntry))
		r.Get("/entries/{entryID}", m.handle((*handlers).entry))
		r.Put("/entries/{entryID}", m.handle((*handlers).updateEntry))
		r.Delete("/entries/{entryID}", m.handle((*handlers).removeEntry))
	})
	return r
}

// HealthCheck reports diary and entry counts.
func (m *Module) HealthCheck(ctx context.Context) (module.HealthStatus, error) {
	hs := m.BaseHealth()
	st := m.state.Load()
	if st == nil {
		return hs, nil
	}
	diaries, err := st.svc.db.Count(ctx, models.CollectionDiaries)
	if err != nil {
		return hs, fmt.Errorf("count diaries: %w", err)
	}
	entries, err := st.svc.db.Count(ctx, models.CollectionDiaryEntries)
	if err != nil {
		return hs, fmt.Errorf("count entries: %w", err)
	}
	return hs.WithDetail("diaries", diaries).
		WithDetail("entries", entries).
		WithDetail("list_cache", st.svc.cache != nil), nil
}

// ConfigSchema describes the module's configuration keys.
func (m *Module) ConfigSchema() map[string]string {
	return map[string]string{
		"diaries.default_page_size":   "entries per page when limit is absent (default 10)",
		"diaries.max_page_size":       "largest accepted entries limit (default 100)",
		"diaries.search_result_limit": "largest accepted search limit (default 50)",
		"diaries.default_radius_km":   "search radius when a location has none (default 10)",
		"diaries.list_cache_ttl":      "lifetime of cached diary lists (default 5m)",
	}
}
