// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/everly/internal/logging"
	"github.com/tomtom215/everly/internal/store"
	"github.com/tomtom215/everly/internal/validation"
)

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestResponseWriter_Success(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	r = r.WithContext(logging.ContextWithRequestID(r.Context(), "req-1"))

	NewResponseWriter(w, r).Success(map[string]string{"message": "hello"})

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}

	resp := decodeResponse(t, w)
	if !resp.Success || resp.Error != nil {
		t.Errorf("response = %+v, want success without error", resp)
	}
	if resp.Meta == nil || resp.Meta.Timestamp.IsZero() {
		t.Fatal("Meta.Timestamp not set")
	}
	if resp.Meta.RequestID != "req-1" {
		t.Errorf("Meta.RequestID = %q, want req-1", resp.Meta.RequestID)
	}
}

func TestResponseWriter_SuccessWithPagination(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/test", nil)

	NewResponseWriter(w, r).SuccessWithPagination([]string{"a", "b"}, NewPagination(2, 10, 25))

	resp := decodeResponse(t, w)
	if resp.Meta == nil || resp.Meta.Pagination == nil {
		t.Fatal("pagination metadata missing")
	}
	want := PaginationMeta{CurrentPage: 2, TotalPages: 3, TotalEntries: 25, EntriesPerPage: 10}
	if *resp.Meta.Pagination != want {
		t.Errorf("pagination = %+v, want %+v", *resp.Meta.Pagination, want)
	}
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		page, perPage, total int
		wantPages           int
	}{
		{1, 10, 0, 0},
		{1, 10, 1, 1},
		{1, 10, 10, 1},
		{1, 10, 11, 2},
		{3, 100, 250, 3},
		{1, 0, 5, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.total, tt.perPage), func(t *testing.T) {
			p := NewPagination(tt.page, tt.perPage, tt.total)
			if p.TotalPages != tt.wantPages {
				t.Errorf("TotalPages = %d, want %d", p.TotalPages, tt.wantPages)
			}
			if p.CurrentPage != tt.page || p.TotalEntries != tt.total {
				t.Errorf("pagination = %+v", p)
			}
		})
	}
}

func TestResponseWriter_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		write      func(rw *ResponseWriter)
		wantStatus int
		wantCode   string
	}{
		{"bad request", func(rw *ResponseWriter) { rw.BadRequest("x") }, http.StatusBadRequest, ErrCodeBadRequest},
		{"unauthorized", func(rw *ResponseWriter) { rw.Unauthorized("x") }, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"forbidden", func(rw *ResponseWriter) { rw.Forbidden("x") }, http.StatusForbidden, ErrCodeForbidden},
		{"not found", func(rw *ResponseWriter) { rw.NotFound("x") }, http.StatusNotFound, ErrCodeNotFound},
		{"conflict", func(rw *ResponseWriter) { rw.Conflict("x") }, http.StatusConflict, ErrCodeConflict},
		{"too large", func(rw *ResponseWriter) { rw.PayloadTooLarge("x") }, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge},
		{"media type", func(rw *ResponseWriter) { rw.UnsupportedMediaType("x") }, http.StatusUnsupportedMediaType, ErrCodeUnsupportedMediaType},
		{"rate limited", func(rw *ResponseWriter) { rw.TooManyRequests("x") }, http.StatusTooManyRequests, ErrCodeTooManyRequests},
		{"internal", func(rw *ResponseWriter) { rw.InternalError("x") }, http.StatusInternalServerError, ErrCodeInternalError},
		{"unavailable", func(rw *ResponseWriter) { rw.ServiceUnavailable("x") }, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"upstream", func(rw *ResponseWriter) { rw.ExternalServiceError("google", errors.New("down")) }, http.StatusBadGateway, ErrCodeExternalServiceFail},
		{"store not found", func(rw *ResponseWriter) { rw.StoreError(fmt.Errorf("get: %w", store.ErrNotFound), "Diary") }, http.StatusNotFound, ErrCodeNotFound},
		{"store conflict", func(rw *ResponseWriter) { rw.StoreError(store.ErrConflict, "User") }, http.StatusConflict, ErrCodeConflict},
		{"store other", func(rw *ResponseWriter) { rw.StoreError(errors.New("disk"), "Diary") }, http.StatusInternalServerError, ErrCodeDatabaseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/test", nil)
			tt.write(NewResponseWriter(w, r))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			resp := decodeResponse(t, w)
			if resp.Success {
				t.Error("Success = true, want false")
			}
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("Error = %+v, want code %s", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestResponseWriter_StoreErrorMessages(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	NewResponseWriter(w, r).StoreError(store.ErrNotFound, "Diary")

	resp := decodeResponse(t, w)
	if resp.Error.Message != "Diary not found" {
		t.Errorf("Message = %q, want %q", resp.Error.Message, "Diary not found")
	}
}

func TestResponseWriter_Validation(t *testing.T) {
	t.Parallel()

	type req struct {
		Title string `json:"title" validate:"required"`
	}
	verr := validation.ValidateStruct(&req{})
	if verr == nil {
		t.Fatal("expected a validation error")
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/test", nil)
	NewResponseWriter(w, r).Validation(verr)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	resp := decodeResponse(t, w)
	if resp.Error == nil || resp.Error.Code != ErrCodeValidationFailed {
		t.Fatalf("Error = %+v", resp.Error)
	}
	details, ok := resp.Error.Details.(map[string]interface{})
	if !ok || details["field"] != "title" {
		t.Errorf("Details = %#v", resp.Error.Details)
	}
}

func TestResponseWriter_NoContent(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodDelete, "/test", nil)
	NewResponseWriter(w, r).NoContent()

	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("status = %d, body = %q", w.Code, w.Body.String())
	}
}
