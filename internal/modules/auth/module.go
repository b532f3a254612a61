// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

// Package auth is the authentication module: Google sign-in, access tokens
// and the Authenticator every other module protects its routes with.
//
// Routes (mounted under /auth):
//
//	POST /google   exchange a Google ID token for an access token
//	GET  /me       the signed-in user
//	POST /logout   revoke the current access token
package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/everly/internal/api"
	authn "github.com/tomtom215/everly/internal/auth"
	"github.com/tomtom215/everly/internal/authz"
	"github.com/tomtom215/everly/internal/config"
	"github.com/tomtom215/everly/internal/container"
	"github.com/tomtom215/everly/internal/module"
	"github.com/tomtom215/everly/internal/modules/guard"
)

// ModuleName is the registered name of the module.
const ModuleName = "auth"

// Container keys of the services this module registers.
var (
	UserStoreService = container.ModuleService(ModuleName, "user_store")
	JWTService       = container.ModuleService(ModuleName, "jwt")
)

// loginRateLimit bounds sign-in attempts per client IP per minute.
const loginRateLimit = 10

// Option configures the module.
type Option func(*Module)

// WithGoogleVerifier replaces the OIDC verifier built from configuration.
func WithGoogleVerifier(v authn.GoogleVerifier) Option {
	return func(m *Module) { m.verifierOverride = v }
}

// Module is the auth feature module.
type Module struct {
	*module.BaseModule

	cfg              *config.Config
	verifierOverride authn.GoogleVerifier

	state atomic.Pointer[state]
}

type state struct {
	svc     *Service
	guarded *authn.GuardedVerifier
	guard   *guard.Guard
}

// New creates the auth module.
func New(cfg *config.Config, opts ...Option) *Module {
	m := &Module{
		BaseModule: module.NewBase(ModuleName, "1.0.0", "Google sign-in and access tokens"),
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize builds the token manager, user store, verifier and policy
// enforcer, and registers the services other modules depend on.
func (m *Module) Initialize(ctx context.Context, deps module.Deps) error {
	return m.Start(ctx, func(ctx context.Context) error {
		if deps.Store == nil {
			return fmt.Errorf("auth module requires a store")
		}
		jwtManager, err := authn.NewJWTManager(m.cfg.Auth.JWTSecret, m.cfg.Auth.AccessTokenTTL)
		if err != nil {
			return err
		}

		var guarded *authn.GuardedVerifier
		next := m.verifierOverride
		if next == nil && m.cfg.Auth.GoogleClientID != "" {
			next, err = authn.NewOIDCVerifier(authn.OIDCVerifierConfig{
				Issuer:       m.cfg.Auth.GoogleIssuer,
				ClientID:     m.cfg.Auth.GoogleClientID,
				ClientSecret: m.cfg.Auth.GoogleClientSecret,
				RedirectURL:  m.cfg.Auth.GoogleRedirectURL,
			})
			if err != nil {
				return err
			}
		}
		if next != nil {
			guarded = authn.NewGuardedVerifier(next, authn.GuardConfig{
				RatePerSec: m.cfg.Auth.VerifyRatePerSec,
				Burst:      m.cfg.Auth.VerifyBurst,
				Failures:   m.cfg.Auth.BreakerFailures,
				Timeout:    m.cfg.Auth.BreakerTimeout,
			})
		} else {
			m.Logger().Warn().Msg("Google client id not configured; sign-in disabled")
		}

		enforcer, err := authz.NewEnforcer(authz.Config{
			PolicyPath: m.cfg.Security.PolicyPath,
			Cache:      deps.Cache,
		})
		if err != nil {
			return err
		}

		users := NewUserStore(deps.Store)
		svc := &Service{
			jwt:         jwtManager,
			users:       users,
			cache:       deps.Cache,
			bus:         deps.Bus,
			adminEmails: m.cfg.Auth.AdminEmails,
		}
		if guarded != nil {
			svc.verifier = guarded
		}

		deps.Container.RegisterService(guard.AuthenticatorService, authn.Authenticator(svc))
		deps.Container.RegisterService(guard.AuthorizerService, enforcer)
		deps.Container.RegisterService(UserStoreService, users)
		deps.Container.RegisterService(JWTService, jwtManager)

		m.state.Store(&state{
			svc:     svc,
			guarded: guarded,
			guard:   guard.New(svc, enforcer),
		})
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

// Routes returns the /auth router.
func (m *Module) Routes() http.Handler {
	r := chi.NewRouter()

	loginLimit := api.RateLimit(config.SecurityConfig{
		RateLimitReqs:     loginRateLimit,
		RateLimitWindow:   time.Minute,
		RateLimitDisabled: m.cfg.Security.RateLimitDisabled,
	})
	r.With(loginLimit).Post("/google", m.serve(func(h *handlers) http.HandlerFunc { return h.googleLogin }, false))
	r.Get("/me", m.serve(func(h *handlers) http.HandlerFunc { return h.me }, true))
	r.Post("/logout", m.serve(func(h *handlers) http.HandlerFunc { return h.logout }, true))

	return r
}

// serve resolves the module state per request so the router can be built
// before initialization.
func (m *Module) serve(pick func(*handlers) http.HandlerFunc, protected bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := m.state.Load()
		if s == nil {
			guard.NotReady(w, r)
			return
		}
		var h http.Handler = pick(&handlers{svc: s.svc})
		if protected {
			h = s.guard.Protect(ModuleName)(h)
		}
		h.ServeHTTP(w, r)
	}
}

// HealthCheck reports token and Google configuration and the state of the
// verifier circuit breaker. An open breaker degrades the module.
func (m *Module) HealthCheck(ctx context.Context) (module.HealthStatus, error) {
	hs := m.BaseHealth()
	s := m.state.Load()
	if s == nil {
		return hs, nil
	}

	hs = hs.WithDetail("jwt_configured", s.svc.jwt != nil).
		WithDetail("google_oauth_configured", s.guarded != nil)
	if s.guarded != nil {
		st := s.guarded.State()
		hs = hs.WithDetail("verifier_state", st)
		if st == "open" {
			hs.Status = module.StatusDegraded
		}
	}
	if err := s.svc.users.db.Ping(ctx); err != nil {
		return hs, fmt.Errorf("store: %w", err)
	}
	return hs, nil
}

// ConfigSchema describes the module's configuration keys.
func (m *Module) ConfigSchema() map[string]string {
	return map[string]string{
		"auth.jwt_secret":           "HMAC secret for access tokens (required, 32+ chars in production)",
		"auth.access_token_ttl":     "access token lifetime (default 30m)",
		"auth.google_client_id":     "Google OAuth client id; the expected token audience",
		"auth.google_client_secret": "Google OAuth client secret",
		"auth.admin_emails":         "emails that receive the admin role on first sign-in",
		"security.policy_path":      "optional Casbin policy CSV replacing the built-in policy",
	}
}
