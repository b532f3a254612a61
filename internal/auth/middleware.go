// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tomtom215/everly/internal/api"
	"github.com/tomtom215/everly/internal/logging"
)

// Authenticator resolves a bearer token to the active user behind it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, token string) (*Principal, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) (*Principal, error) {
	return f(ctx, token)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
// Browsers cannot set headers on websocket upgrades, so the access_token
// query parameter is accepted for those requests only.
func BearerToken(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", ErrInvalidCredentials
		}
		return strings.TrimSpace(token), nil
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, nil
		}
	}
	return "", ErrNoCredentials
}

// RequireAuth rejects requests without a valid bearer token with 401 and
// stores the principal in the request context otherwise.
func RequireAuth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="everly"`)
				api.NewResponseWriter(w, r).Unauthorized("Could not validate credentials")
				return
			}

			principal, err := a.Authenticate(r.Context(), token)
			if err != nil {
				writeAuthError(w, r, err)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			ctx = logging.ContextWithUserID(ctx, principal.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	rw := api.NewResponseWriter(w, r)
	switch {
	case errors.Is(err, ErrAuthenticatorUnavailable):
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Authenticator unavailable")
		rw.ServiceUnavailable("Authentication temporarily unavailable")
	case errors.Is(err, ErrInactiveUser):
		rw.Forbidden("Inactive user")
	case errors.Is(err, ErrExpiredCredentials):
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="token expired"`)
		rw.Unauthorized("Token has expired")
	default:
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Authentication failed")
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		rw.Unauthorized("Could not validate credentials")
	}
}
