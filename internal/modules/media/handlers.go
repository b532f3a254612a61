// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package media

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/everly/internal/api"
	authn "github.com/tomtom215/everly/internal/auth"
	"github.com/tomtom215/everly/internal/logging"
	"github.com/tomtom215/everly/internal/upload"
)

type handlers struct {
	svc *Service
}

func userID(r *http.Request) string {
	p, _ := authn.PrincipalFromContext(r.Context())
	return p.UserID
}

func writeError(rw *api.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotOwner):
		rw.Forbidden("Not authorized to access this file")
	case errors.Is(err, upload.ErrTooLarge), errors.Is(err, upload.ErrTypeNotAllowed),
		errors.Is(err, upload.ErrContentMismatch), errors.Is(err, upload.ErrMissingFile),
		errors.Is(err, upload.ErrInvalidFilename):
		rw.UploadError(err)
	default:
		rw.StoreError(err, "File")
	}
}

// upload handles POST /upload.
func (h *handlers) upload(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	f, err := upload.Read(w, r, "file", h.svc.cfg.MaxFileSize)
	if err != nil {
		rw.UploadError(err)
		return
	}
	doc, err := h.svc.Upload(r.Context(), userID(r), f)
	if err != nil {
		writeError(rw, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("file", doc.Filename).
		Str("file_type", doc.FileType).
		Int64("size", doc.Size).
		Msg("Media uploaded")
	rw.Created(doc)
}

// list handles GET /.
func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	files, err := h.svc.List(r.Context(), userID(r))
	if err != nil {
		writeError(rw, err)
		return
	}
	rw.Success(files)
}

// get handles GET /{filename}.
func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	doc, err := h.svc.Get(r.Context(), userID(r), chi.URLParam(r, "filename"))
	if err != nil {
		writeError(rw, err)
		return
	}
	rw.Success(doc)
}

// remove handles DELETE /{filename}.
func (h *handlers) remove(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	name := chi.URLParam(r, "filename")
	if err := h.svc.Delete(r.Context(), userID(r), name); err != nil {
		writeError(rw, err)
		return
	}
	rw.Success(map[string]string{"message": "File deleted successfully", "filename": name})
}
