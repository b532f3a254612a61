// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

// Package guard composes authentication and authorization for module
// routes. The auth module publishes its Authenticator and Enforcer in the
// container; every other module resolves them here during Initialize.
package guard

import (
	"errors"
	"net/http"

	"github.com/tomtom215/everly/internal/api"
	"github.com/tomtom215/everly/internal/auth"
	"github.com/tomtom215/everly/internal/authz"
	"github.com/tomtom215/everly/internal/container"
)

// Container keys of the services the auth module registers.
var (
	AuthenticatorService = container.ModuleService("auth", "authenticator")
	AuthorizerService    = container.ModuleService("auth", "authorizer")
)

// ErrNoAuthenticator is returned when the auth module has not registered
// its authenticator.
var ErrNoAuthenticator = errors.New("authenticator service not registered; is the auth module initialized?")

// Guard protects routes with a bearer token check and, when an enforcer is
// present, a role check.
type Guard struct {
	authenticator auth.Authenticator
	enforcer      *authz.Enforcer
}

// New creates a guard. enforcer may be nil to skip role checks.
func New(a auth.Authenticator, enforcer *authz.Enforcer) *Guard {
	return &Guard{authenticator: a, enforcer: enforcer}
}

// FromContainer resolves the guard from the services the auth module
// registered.
func FromContainer(c *container.Container) (*Guard, error) {
	a, ok := container.Lookup[auth.Authenticator](c, AuthenticatorService)
	if !ok {
		return nil, ErrNoAuthenticator
	}
	e, _ := container.Lookup[*authz.Enforcer](c, AuthorizerService)
	return New(a, e), nil
}

// Protect returns middleware requiring a valid token and permission on
// object.
func (g *Guard) Protect(object string) func(http.Handler) http.Handler {
	requireAuth := auth.RequireAuth(g.authenticator)
	if g.enforcer == nil {
		return requireAuth
	}
	authorize := g.enforcer.Authorize(object)
	return func(next http.Handler) http.Handler {
		return requireAuth(authorize(next))
	}
}

// Deferred is Protect for routers built before initialization: the guard
// is resolved per request through get, and a nil guard answers 503.
func Deferred(get func() *Guard, object string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g := get()
			if g == nil {
				NotReady(w, r)
				return
			}
			g.Protect(object)(next).ServeHTTP(w, r)
		})
	}
}

// NotReady writes 503 for requests reaching a module that is not
// initialized.
func NotReady(w http.ResponseWriter, r *http.Request) {
	api.NewResponseWriter(w, r).ServiceUnavailable("Module is not initialized")
}
