// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package diaries

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/everly/internal/models"
)

// CreateDiaryRequest is the body of POST /.
type CreateDiaryRequest struct {
	Title       string `json:"title" validate:"required,notblank,max=200"`
	Description string `json:"description" validate:"max=2000"`
	CoverImage  string `json:"cover_image" validate:"omitempty,url"`
}

// UpdateDiaryRequest is the body of PUT /{diaryID}. Absent fields are kept.
type UpdateDiaryRequest struct {
	Title       *string `json:"title" validate:"omitnil,notblank,max=200"`
	Description *string `json:"description" validate:"omitnil,max=2000"`
	CoverImage  *string `json:"cover_image" validate:"omitnil,omitempty,url"`
}

// EntryRequest is the body of POST /{diaryID}/entries.
type EntryRequest struct {
	Title          string                `json:"title" validate:"required,notblank,max=200"`
	Content        string                `json:"content" validate:"max=50000"`
	ContentType    string                `json:"content_type" validate:"omitempty,oneof=text image audio drawing video location mixed"`
	MediaContent   []models.MediaContent `json:"media_content" validate:"max=50,dive"`
	Location       *models.GeoPoint      `json:"location"`
	LocationName   string                `json:"location_name" validate:"max=200"`
	Tags           []string              `json:"tags" validate:"max=50,dive,notblank,max=50"`
	SentimentScore *float64              `json:"sentiment_score" validate:"omitnil,min=-1,max=1"`
	Topics         []string              `json:"topics" validate:"max=50,dive,max=100"`
	Entities       []string              `json:"entities" validate:"max=100,dive,max=100"`
}

// UpdateEntryRequest is the body of PUT /{diaryID}/entries/{entryID}.
// Absent fields are kept; an empty list clears a list field.
type UpdateEntryRequest struct {
	Title          *string               `json:"title" validate:"omitnil,notblank,max=200"`
	Content        *string               `json:"content" validate:"omitnil,max=50000"`
	ContentType    *string               `json:"content_type" validate:"omitnil,oneof=text image audio drawing video location mixed"`
	MediaContent   []models.MediaContent `json:"media_content" validate:"max=50,dive"`
	Location       *models.GeoPoint      `json:"location"`
	LocationName   *string               `json:"location_name" validate:"omitnil,max=200"`
	Tags           []string              `json:"tags" validate:"max=50,dive,notblank,max=50"`
	SentimentScore *float64              `json:"sentiment_score" validate:"omitnil,min=-1,max=1"`
	Topics         []string              `json:"topics" validate:"max=50,dive,max=100"`
	Entities       []string              `json:"entities" validate:"max=100,dive,max=100"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query        string           `json:"query" validate:"max=200"`
	Tags         []string         `json:"tags" validate:"max=20,dive,notblank"`
	StartDate    *Date            `json:"start_date"`
	EndDate      *Date            `json:"end_date"`
	Location     *models.GeoPoint `json:"location"`
	RadiusKm     *float64         `json:"radius_km" validate:"omitnil,gt=0,max=20038"`
	SentimentMin *float64         `json:"sentiment_min" validate:"omitnil,min=-1,max=1"`
	SentimentMax *float64         `json:"sentiment_max" validate:"omitnil,min=-1,max=1"`
	DiaryID      string           `json:"diary_id" validate:"max=64"`
	Page         int              `json:"page" validate:"min=0"`
	Limit        int              `json:"limit" validate:"min=0"`
}

// Check validates relations between fields.
func (r *SearchRequest) Check() error {
	if r.StartDate != nil && r.EndDate != nil && r.StartDate.From().After(r.EndDate.Until()) {
		return fmt.Errorf("start_date must not be after end_date")
	}
	if r.SentimentMin != nil && r.SentimentMax != nil && *r.SentimentMin > *r.SentimentMax {
		return fmt.Errorf("sentiment_min must not be greater than sentiment_max")
	}
	return nil
}

// Date accepts an RFC 3339 timestamp or a calendar date. A calendar date
// covers the whole UTC day.
type Date struct {
	time.Time
	DateOnly bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		d.Time, d.DateOnly = t.UTC(), false
		return nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	d.Time, d.DateOnly = t, true
	return nil
}

// From is the earliest instant covered by d.
func (d *Date) From() time.Time { return d.Time }

// Until is the latest instant covered by d.
func (d *Date) Until() time.Time {
	if d.DateOnly {
		return d.Time.Add(24*time.Hour - time.Nanosecond)
	}
	return d.Time
}

// normalizeTags trims tags and drops case-insensitive duplicates, keeping
// the first spelling.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
