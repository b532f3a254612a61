// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

// Package users is the profile module. It owns profile edits, profile
// pictures, preferences and the admin user list, and keeps a per-user
// diary count from diary events.
package users

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/everly/internal/config"
	"github.com/tomtom215/everly/internal/container"
	"github.com/tomtom215/everly/internal/eventbus"
	"github.com/tomtom215/everly/internal/models"
	"github.com/tomtom215/everly/internal/module"
	authmod "github.com/tomtom215/everly/internal/modules/auth"
	"github.com/tomtom215/everly/internal/modules/guard"
)

// ModuleName is the registered name of the module.
const ModuleName = "users"

// adminObject is the authorization object of the admin routes.
const adminObject = "users:admin"

// ServiceKey is the container key of the users Service.
var ServiceKey = container.ModuleService(ModuleName, "service")

// Module is the users feature module.
type Module struct {
	*module.BaseModule
	cfg *config.Config

	state atomic.Pointer[state]
}

type state struct {
	svc   *Service
	guard *guard.Guard
	bus   *eventbus.Bus
	subs  map[eventbus.EventType]eventbus.SubscriptionID
}

// New creates the users module.
func New(cfg *config.Config) *Module {
	return &Module{
		BaseModule: module.NewBase(ModuleName, "1.0.0", "User profiles and preferences", authmod.ModuleName),
		cfg:        cfg,
	}
}

// Initialize resolves the auth services and subscribes to diary events.
func (m *Module) Initialize(ctx context.Context, deps module.Deps) error {
	return m.Start(ctx, func(ctx context.Context) error {
		g, err := guard.FromContainer(deps.Container)
		if err != nil {
			return err
		}
		users, ok := container.Lookup[*authmod.UserStore](deps.Container, authmod.UserStoreService)
		if !ok {
			return fmt.Errorf("service %s not registered", authmod.UserStoreService)
		}

		svc := &Service{
			users:   users,
			db:      deps.Store,
			bus:     deps.Bus,
			cfg:     m.cfg.Users,
			baseURL: m.cfg.Server.BaseURL,
		}
		deps.Container.RegisterService(ServiceKey, svc)

		st := &state{
			svc:   svc,
			guard: g,
			bus:   deps.Bus,
			subs: map[eventbus.EventType]eventbus.SubscriptionID{
				eventbus.DiaryCreated: deps.Bus.Subscribe(eventbus.DiaryCreated, svc.onDiaryCreated),
				eventbus.DiaryDeleted: deps.Bus.Subscribe(eventbus.DiaryDeleted, svc.onDiaryDeleted),
			},
		}
		m.state.Store(st)
		return nil
	})
}

// Cleanup drops the event subscriptions.
func (m *Module) Cleanup(ctx context.Context) error {
	return m.Stop(ctx, func(context.Context) error {
		st := m.state.Swap(nil)
		if st == nil {
			return nil
		}
		for t, id := range st.subs {
			st.bus.Unsubscribe(t, id)
		}
		return nil
	})
}

func (m *Module) currentGuard() *guard.Guard {
	if st := m.state.Load(); st != nil {
		return st.guard
	}
	return nil
}

// handle adapts a handlers method to the current state.
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

// Routes returns the /users router.
func (m *Module) Routes() http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(guard.Deferred(m.currentGuard, ModuleName))
		r.Get("/me", m.handle((*handlers).me))
		r.Put("/me", m.handle((*handlers).updateMe))
		r.Put("/me/profile-picture", m.handle((*handlers).uploadProfilePicture))
		r.Get("/me/preferences", m.handle((*handlers).preferences))
		r.Put("/me/preferences", m.handle((*handlers).updatePreferences))
	})

	r.Group(func(r chi.Router) {
		r.Use(guard.Deferred(m.currentGuard, adminObject))
		r.Get("/", m.handle((*handlers).list))
		r.Put("/{userID}/status", m.handle((*handlers).setStatus))
	})

	return r
}

// HealthCheck reports the number of stored users.
func (m *Module) HealthCheck(ctx context.Context) (module.HealthStatus, error) {
	hs := m.BaseHealth()
	st := m.state.Load()
	if st == nil {
		return hs, nil
	}
	n, err := st.svc.db.Count(ctx, models.CollectionUsers)
	if err != nil {
		return hs, fmt.Errorf("count users: %w", err)
	}
	return hs.WithDetail("users", n).
		WithDetail("profile_upload_path", m.cfg.Users.ProfileUploadPath), nil
}

// ConfigSchema describes the module's configuration keys.
func (m *Module) ConfigSchema() map[string]string {
	return map[string]string{
		"users.profile_upload_path":    "directory for profile pictures",
		"users.max_profile_image_size": "largest accepted profile picture in bytes (default 5 MiB)",
		"users.allowed_image_types":    "accepted profile picture MIME types",
	}
}
