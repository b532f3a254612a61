// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package models

import (
	"strings"
	"time"
)

// CollectionMedia holds media file metadata keyed by stored file name.
const CollectionMedia = "media"

// Media file types.
const (
	FileTypeImage = "image"
	FileTypeVideo = "video"
	FileTypeAudio = "audio"
	FileTypeOther = "other"
)

// MediaFile describes an uploaded file.
type MediaFile struct {
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	FileType         string    `json:"file_type"`
	Size             int64     `json:"size"`
	Checksum         string    `json:"checksum"`
	URL              string    `json:"url"`
	UploadedBy       string    `json:"uploaded_by"`
	CreatedAt        time.Time `json:"created_at"`
}

// FileTypeOf classifies a MIME type by its top-level family.
func FileTypeOf(contentType string) string {
	family, _, _ := strings.Cut(strings.ToLower(contentType), "/")
	switch family {
	case FileTypeImage, FileTypeVideo, FileTypeAudio:
		return family
	}
	return FileTypeOther
}
