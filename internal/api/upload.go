// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/everly/internal/logging"
	"github.com/tomtom215/everly/internal/upload"
)

// UploadError maps an upload error to a response. Storage failures are
// logged and answered with 500.
func (rw *ResponseWriter) UploadError(err error) {
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		rw.PayloadTooLarge("File too large")
	case errors.Is(err, upload.ErrTypeNotAllowed), errors.Is(err, upload.ErrContentMismatch):
		rw.UnsupportedMediaType(err.Error())
	case errors.Is(err, upload.ErrMissingFile):
		rw.BadRequest("No file provided")
	case errors.Is(err, upload.ErrInvalidFilename):
		rw.BadRequest("Invalid file name")
	case errors.Is(err, upload.ErrFileDoesNotExist):
		rw.NotFound("File not found")
	default:
		logging.Ctx(rw.r.Context()).Error().Err(err).Msg("Upload failed")
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "Failed to store file")
	}
}
