// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package diaries

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/everly/internal/api"
	authn "github.com/tomtom215/everly/internal/auth"
	"github.com/tomtom215/everly/internal/logging"
)

type handlers struct {
	svc *Service
}

func userID(r *http.Request) string {
	p, _ := authn.PrincipalFromContext(r.Context())
	return p.UserID
}

func diaryID(r *http.Request) string { return chi.URLParam(r, "diaryID") }
func entryID(r *http.Request) string { return chi.URLParam(r, "entryID") }

func writeError(rw *api.ResponseWriter, err error, what string) {
	if errors.Is(err, ErrInvalidSort) {
		rw.BadRequest(err.Error())
		return
	}
	rw.StoreError(err, what)
}

// list handles GET /.
func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	out, err := h.svc.List(r.Context(), userID(r))
	if err != nil {
		writeError(rw, err, "Diary")
		return
	}
	rw.Success(out)
}

// create handles POST /.
func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	var req CreateDiaryRequest
	if !api.Bind(w, r, &req) {
		return
	}
	rw := api.NewResponseWriter(w, r)
	d, err := h.svc.Create(r.Context(), userID(r), req)
	if err != nil {
		writeError(rw, err, "Diary")
		return
	}
	logging.Ctx(r.Context()).Info().Str("diary_id", d.ID).Msg("Diary created")
	rw.Created(d)
}

// get handles GET /{diaryID}.
func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	d, err := h.svc.Get(r.Context(), userID(r), diaryID(r))
	if err != nil {
		writeError(rw, err, "Diary")
		return
	}
	rw.Success(d)
}

// update handles PUT /{diaryID}.
func (h *handlers) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateDiaryRequest
	if !api.Bind(w, r, &req) {
		return
	}
	rw := api.NewResponseWriter(w, r)
	d, err := h.svc.Update(r.Context(), userID(r), diaryID(r), req)
	if err != nil {
		writeError(rw, err, "Diary")
		return
	}
	rw.Success(d)
}

// remove handles DELETE /{diaryID}.
func (h *handlers) remove(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	id := diaryID(r)
	if err := h.svc.Delete(r.Context(), userID(r), id); err != nil {
		writeError(rw, err, "Diary")
		return
	}
	logging.Ctx(r.Context()).Info().Str("diary_id", id).Msg("Diary deleted")
	rw.Success(map[string]string{"message": "Diary deleted successfully", "id": id})
}

// entries handles GET /{diaryID}/entries.
func (h *handlers) entries(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	p, err := h.svc.Entries(r.Context(), userID(r), diaryID(r),
		api.QueryInt(r, "page", 1),
		api.QueryInt(r, "limit", h.svc.cfg.DefaultPageSize),
		r.URL.Query().Get("sort"))
	if err != nil {
		writeError(rw, err, "Diary")
		return
	}
	rw.SuccessWithPagination(p.Entries, api.NewPagination(p.Page, p.Limit, p.Total))
}

// createEntry handles POST /{diaryID}/entries.
func (h *handlers) createEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if !api.Bind(w, r, &req) {
		return
	}
	rw := api.NewResponseWriter(w, r)
	e, err := h.svc.CreateEntry(r.Context(), userID(r), diaryID(r), req)
	if err != nil {
		writeError(rw, err, "Diary")
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("diary_id", e.DiaryID).
		Str("entry_id", e.ID).
		Msg("Diary entry created")
	rw.Created(e)
}

// entry handles GET /{diaryID}/entries/{entryID}.
func (h *handlers) entry(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	e, err := h.svc.Entry(r.Context(), userID(r), diaryID(r), entryID(r))
	if err != nil {
		writeError(rw, err, "Entry")
		return
	}
	rw.Success(e)
}

// updateEntry handles PUT /{diaryID}/entries/{entryID}.
func (h *handlers) updateEntry(w http.ResponseWriter, r *http.Request) {
	var req UpdateEntryRequest
	if !api.Bind(w, r, &req) {
		return
	}
	rw := api.NewResponseWriter(w, r)
	e, err := h.svc.UpdateEntry(r.Context(), userID(r), diaryID(r), entryID(r), req)
	if err != nil {
		writeError(rw, err, "Entry")
		return
	}
	rw.Success(e)
}

// removeEntry handles DELETE /{diaryID}/entries/{entryID}.
func (h *handlers) removeEntry(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	id := entryID(r)
	if err := h.svc.DeleteEntry(r.Context(), userID(r), diaryID(r), id); err != nil {
		writeError(rw, err, "Entry")
		return
	}
	rw.Success(map[string]string{"message": "Entry deleted successfully", "id": id})
}

// search handles POST /search.
func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !api.Bind(w, r, &req) {
		return
	}
	rw := api.NewResponseWriter(w, r)
	if err := req.Check(); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	p, err := h.svc.Search(r.Context(), userID(r), req)
	if err != nil {
		writeError(rw, err, "Entry")
		return
	}
	rw.SuccessWithPagination(p.Entries, api.NewPagination(p.Page, p.Limit, p.Total))
}
