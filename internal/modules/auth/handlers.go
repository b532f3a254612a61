// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package auth

import (
	"errors"
	"net/http"

	"github.com/tomtom215/everly/internal/api"
	authn "github.com/tomtom215/everly/internal/auth"
	"github.com/tomtom215/everly/internal/logging"
)

type googleLoginRequest struct {
	Token string `json:"token" validate:"required,notblank"`
}

type handlers struct {
	svc *Service
}

// googleLogin handles POST /google.
func (h *handlers) googleLogin(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if !api.Bind(w, r, &req) {
		return
	}

	rw := api.NewResponseWriter(w, r)
	result, err := h.svc.LoginWithGoogle(r.Context(), req.Token)
	switch {
	case err == nil:
	case errors.Is(err, authn.ErrAuthenticatorUnavailable):
		rw.ExternalServiceError("google", err)
		return
	case errors.Is(err, authn.ErrInactiveUser):
		rw.Forbidden("Inactive user")
		return
	case errors.Is(err, authn.ErrInvalidCredentials), errors.Is(err, authn.ErrExpiredCredentials):
		logging.Ctx(r.Context()).Info().Err(err).Msg("Google sign-in rejected")
		rw.Unauthorized("Invalid Google token")
		return
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Google sign-in failed")
		rw.InternalError("Sign-in failed")
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("user_id", result.User.ID).
		Bool("created", result.Created).
		Msg("User signed in with Google")
	rw.Success(result)
}

// me handles GET /me.
func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	p, _ := authn.PrincipalFromContext(r.Context())

	user, err := h.svc.users.Get(r.Context(), p.UserID)
	if err != nil {
		rw.StoreError(err, "User")
		return
	}
	rw.Success(user.Output())
}

// logout handles POST /logout.
func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	p, _ := authn.PrincipalFromContext(r.Context())
	h.svc.Logout(r.Context(), p)
	api.WriteSuccess(w, r, map[string]string{"message": "Successfully logged out"})
}
