// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package models

import (
	"strings"
	"time"
)

// Collections of diary documents.
const (
	CollectionDiaries      = "diaries"
	CollectionDiaryEntries = "diary_entries"
)

// Entry content types.
const (
	ContentText     = "text"
	ContentImage    = "image"
	ContentAudio    = "audio"
	ContentDrawing  = "drawing"
	ContentVideo    = "video"
	ContentLocation = "location"
	ContentMixed    = "mixed"
)

// ContentTypes lists every valid entry content type.
var ContentTypes = []string{
	ContentText, ContentImage, ContentAudio, ContentDrawing,
	ContentVideo, ContentLocation, ContentMixed,
}

// Diary is a named collection of entries owned by one user.
type Diary struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CoverImage  string    `json:"cover_image,omitempty"`
	EntryCount  int       `json:"entry_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

// MediaContent is a media attachment of an entry.
type MediaContent struct {
	URL          string     `json:"url" validate:"required,url"`
	ContentType  string     `json:"content_type" validate:"required"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty" validate:"omitempty,url"`
	Description  string     `json:"description,omitempty" validate:"max=500"`
	Location     *GeoPoint  `json:"location,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

// DiaryEntry is one entry of a diary.
type DiaryEntry struct {
	ID             string         `json:"id"`
	DiaryID        string         `json:"diary_id"`
	UserID         string         `json:"user_id"`
	Title          string         `json:"title"`
	Content        string         `json:"content,omitempty"`
	ContentType    string         `json:"content_type"`
	MediaContent   []MediaContent `json:"media_content"`
	Location       *GeoPoint      `json:"location,omitempty"`
	LocationName   string         `json:"location_name,omitempty"`
	Tags           []string       `json:"tags"`
	SentimentScore *float64       `json:"sentiment_score,omitempty"`
	Topics         []string       `json:"topics,omitempty"`
	Entities       []string       `json:"entities,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// HasTags reports whether the entry carries every tag in want,
// case-insensitively.
func (e *DiaryEntry) HasTags(want []string) bool {
	have := make(map[string]struct{}, len(e.Tags))
	for _, t := range e.Tags {
		have[normalizeTag(t)] = struct{}{}
	}
	for _, t := range want {
		if _, ok := have[normalizeTag(t)]; !ok {
			return false
		}
	}
	return true
}

func normalizeTag(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
