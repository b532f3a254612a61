// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package authz

import (
	"net/http"

	"github.com/tomtom215/everly/internal/api"
	"github.com/tomtom215/everly/internal/auth"
	"github.com/tomtom215/everly/internal/logging"
)

// Authorize enforces the principal's role against object, with the action
// derived from the request method. It must run after auth.RequireAuth.
func (e *Enforcer) Authorize(object string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				api.NewResponseWriter(w, r).Forbidden("No authentication context")
				return
			}

			action := MethodAction(r.Method)
			allowed, err := e.Enforce(principal.Role, object, action)
			if err != nil {
				logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization error")
				api.NewResponseWriter(w, r).InternalError("Authorization failed")
				return
			}
			if !allowed {
				logging.Ctx(r.Context()).Info().
					Str("role", principal.Role).
					Str("object", object).
					Str("action", action).
					Msg("Authorization denied")
				api.NewResponseWriter(w, r).Forbidden("Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
