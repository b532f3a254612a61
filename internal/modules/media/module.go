// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

// Package media is the upload module: images, video and audio attached to
// diary entries, stored on local disk and served under /static/uploads.
package media

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/everly/internal/config"
	"github.com/tomtom215/everly/internal/container"
	"github.com/tomtom215/everly/internal/models"
	"github.com/tomtom215/everly/internal/module"
	authmod "github.com/tomtom215/everly/internal/modules/auth"
	"github.com/tomtom215/everly/internal/modules/guard"
)

// ModuleName is the registered name of the module.
const ModuleName = "media"

// ServiceKey is the container key of the media Service.
var ServiceKey = container.ModuleService(ModuleName, "service")

// Module is the media feature module.
type Module struct {
	*module.BaseModule
	cfg *config.Config

	state atomic.Pointer[state]
}

type state struct {
	svc   *Service
	guard *guard.Guard
}

// New creates the media module.
func New(cfg *config.Config) *Module {
	return &Module{
		BaseModule: module.NewBase(ModuleName, "1.0.0", "Media uploads", authmod.ModuleName),
		cfg:        cfg,
	}
}

// Initialize creates the upload directory and resolves the auth guard.
func (m *Module) Initialize(ctx context.Context, deps module.Deps) error {
	return m.Start(ctx, func(ctx context.Context) error {
		g, err := guard.FromContainer(deps.Container)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(m.cfg.Media.UploadPath, 0o755); err != nil {
			return fmt.Errorf("create upload directory: %w", err)
		}

		svc := &Service{
			db:      deps.Store,
			bus:     deps.Bus,
			cfg:     m.cfg.Media,
			baseURL: m.cfg.Server.BaseURL,
		}
		deps.Container.RegisterService(ServiceKey, svc)
		m.state.Store(&state{svc: svc, guard: g})
		return nil
	})
}

// Cleanup releases the module state.
func (m *Module) Cleanup(ctx context.Context) error {
	return m.Stop(ctx, func(context.Context) error {
		m.state.Store(nil)
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

// Routes returns the /media router.
func (m *Module) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(guard.Deferred(m.currentGuard, ModuleName))

	r.Post("/upload", m.handle((*handlers).upload))
	r.Get("/", m.handle((*handlers).list))
	r.Get("/{filename}", m.handle((*handlers).get))
	r.Delete("/{filename}", m.handle((*handlers).remove))
	return r
}

// HealthCheck verifies the upload directory and reports the stored file
// count.
func (m *Module) HealthCheck(ctx context.Context) (module.HealthStatus, error) {
	hs := m.BaseHealth()
	st := m.state.Load()
	if st == nil {
		return hs, nil
	}
	info, err := os.Stat(m.cfg.Media.UploadPath)
	if err != nil {
		return hs, fmt.Errorf("upload directory: %w", err)
	}
	if !info.IsDir() {
		return hs, fmt.Errorf("upload path %s is not a directory", m.cfg.Media.UploadPath)
	}
	n, err := st.svc.db.Count(ctx, models.CollectionMedia)
	if err != nil {
		return hs, fmt.Errorf("count media: %w", err)
	}
	return hs.WithDetail("files", n).
		WithDetail("max_file_size", m.cfg.Media.MaxFileSize), nil
}

// ConfigSchema describes the module's configuration keys.
func (m *Module) ConfigSchema() map[string]string {
	return map[string]string{
		"media.upload_path":         "directory for uploaded media",
		"media.max_file_size":       "largest accepted upload in bytes (default 50 MiB)",
		"media.allowed_image_types": "accepted image MIME types",
		"media.allowed_video_types": "accepted video MIME types",
		"media.allowed_audio_types": "accepted audio MIME types",
	}
}
