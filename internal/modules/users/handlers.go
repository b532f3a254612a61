// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package users

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/everly/internal/api"
	authn "github.com/tomtom215/everly/internal/auth"
	"github.com/tomtom215/everly/internal/logging"
	"github.com/tomtom215/everly/internal/upload"
)

type setStatusRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

type handlers struct {
	svc *Service
}

func principal(r *http.Request) *authn.Principal {
	p, _ := authn.PrincipalFromContext(r.Context())
	return p
}

// me handles GET /me.
func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	out, err := h.svc.Profile(r.Context(), principal(r).UserID)
	if err != nil {
		rw.StoreError(err, "User")
		return
	}
	rw.Success(out)
}

// updateMe handles PUT /me.
func (h *handlers) updateMe(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !api.Bind(w, r, &req) {
		return
	}
	rw := api.NewResponseWriter(w, r)
	u, err := h.svc.UpdateProfile(r.Context(), principal(r).UserID, req)
	if err != nil {
		rw.StoreError(err, "User")
		return
	}
	rw.Success(u.Output())
}

// uploadProfilePicture handles PUT /me/profile-picture.
func (h *handlers) uploadProfilePicture(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	f, err := upload.Read(w, r, "file", h.svc.cfg.MaxProfileImageSize)
	if err != nil {
		rw.UploadError(err)
		return
	}
	u, err := h.svc.SetProfilePicture(r.Context(), principal(r).UserID, f)
	if err != nil {
		if errors.Is(err, upload.ErrTypeNotAllowed) || errors.Is(err, upload.ErrContentMismatch) {
			rw.UploadError(err)
			return
		}
		rw.StoreError(err, "User")
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("file", f.OriginalName).
		Int64("size", f.Size()).
		Msg("Profile picture updated")
	rw.Success(u.Output())
}

// preferences handles GET /me/preferences.
func (h *handlers) preferences(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	prefs, err := h.svc.Preferences(r.Context(), principal(r).UserID)
	if err != nil {
		rw.StoreError(err, "User")
		return
	}
	rw.Success(prefs)
}

// updatePreferences handles PUT /me/preferences.
func (h *handlers) updatePreferences(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	var prefs map[string]any
	if err := api.DecodeJSON(w, r, &prefs); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	merged, err := h.svc.MergePreferences(r.Context(), principal(r).UserID, prefs)
	if err != nil {
		rw.StoreError(err, "User")
		return
	}
	rw.Success(merged)
}

// list handles GET / for admins.
func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	users, err := h.svc.List(r.Context())
	if err != nil {
		rw.StoreError(err, "Users")
		return
	}
	rw.Success(users)
}

// setStatus handles PUT /{userID}/status for admins.
func (h *handlers) setStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if !api.Bind(w, r, &req) {
		return
	}
	rw := api.NewResponseWriter(w, r)
	u, err := h.svc.SetActive(r.Context(), principal(r), chi.URLParam(r, "userID"), *req.IsActive)
	switch {
	case errors.Is(err, ErrSelfDeactivation):
		rw.BadRequest(err.Error())
	case err != nil:
		rw.StoreError(err, "User")
	default:
		logging.Ctx(r.Context()).Info().
			Str("target_user", u.ID).
			Bool("active", u.IsActive).
			Msg("User status changed")
		rw.Success(u.Output())
	}
}
