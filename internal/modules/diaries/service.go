// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package diaries

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/everly/internal/api"
	"github.com/tomtom215/everly/internal/cache"
	"github.com/tomtom215/everly/internal/config"
	"github.com/tomtom215/everly/internal/eventbus"
	"github.com/tomtom215/everly/internal/logging"
	"github.com/tomtom215/everly/internal/models"
	"github.com/tomtom215/everly/internal/store"
)

// Sort orders of entry lists.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ErrInvalidSort is returned for a sort order other than asc or desc.
var ErrInvalidSort = errors.New("sort must be asc or desc")

// Page is one page of entries.
type Page struct {
	Entries []models.DiaryEntry
	Page    int
	Limit   int
	Total   int
}

// Service implements diaries, entries and search. Diaries and entries of
// other users are reported as not found.
type Service struct {
	db    *store.Store
	bus   *eventbus.Bus
	cache cache.Cacher
	cfg   config.DiariesConfig

	// listGens counts invalidations per user. A list read under an older
	// generation is not cached.
	genMu    sync.Mutex
	listGens map[string]uint64
}

func listCacheKey(userID string) string { return "user:" + userID }

func (s *Service) listGeneration(userID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.listGens[userID]
}

func (s *Service) invalidate(userID string) {
	if s.cache == nil {
		return
	}
	s.genMu.Lock()
	if s.listGens == nil {
		s.listGens = make(map[string]uint64)
	}
	s.listGens[userID]++
	s.genMu.Unlock()
	s.cache.Delete(listCacheKey(userID))
}

// cacheList stores list unless the user's lists were invalidated since gen
// was taken.
func (s *Service) cacheList(userID string, gen uint64, list []models.Diary) bool {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.listGens[userID] != gen {
		return false
	}
	s.cache.SetWithTTL(listCacheKey(userID), list, s.cfg.ListCacheTTL)
	return true
}

func (s *Service) publish(ctx context.Context, t eventbus.EventType, payload map[string]any) {
	s.bus.Publish(ctx, eventbus.NewEvent(t, ModuleName, payload))
}

// List returns the user's diaries, newest first. Results are cached per
// user until a write invalidates them.
func (s *Service) List(ctx context.Context, userID string) ([]models.Diary, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(listCacheKey(userID)); ok {
			if list, ok := v.([]models.Diary); ok {
				return list, nil
			}
		}
	}

	gen := s.listGeneration(userID)
	list, err := store.List(ctx, s.db, models.CollectionDiaries, func(d *models.Diary) bool {
		return d.UserID == userID
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	list = emptyIfNil(list)

	if s.cache != nil {
		s.cacheList(userID, gen, list)
	}
	return list, nil
}

// Get returns one of the user's diaries.
func (s *Service) Get(ctx context.Context, userID, id string) (*models.Diary, error) {
	var d models.Diary
	if err := s.db.Get(ctx, models.CollectionDiaries, id, &d); err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

// Create stores a new diary for the user.
func (s *Service) Create(ctx context.Context, userID string, req CreateDiaryRequest) (*models.Diary, error) {
	now := time.Now().UTC()
	d := &models.Diary{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		CoverImage:  req.CoverImage,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.Put(ctx, models.CollectionDiaries, d.ID, d); err != nil {
		return nil, err
	}
	s.invalidate(userID)
	s.publish(ctx, eventbus.DiaryCreated, map[string]any{
		"diary_id": d.ID,
		"user_id":  userID,
		"title":    d.Title,
	})
	return d, nil
}

// Update applies the fields present in req.
func (s *Service) Update(ctx context.Context, userID, id string, req UpdateDiaryRequest) (*models.Diary, error) {
	var (
		out     models.Diary
		changed []string
	)
	err := s.db.Update(ctx, func(tx *store.Tx) error {
		changed = changed[:0]
		if err := tx.Get(models.CollectionDiaries, id, &out); err != nil {
			return err
		}
		if out.UserID != userID {
			return store.ErrNotFound
		}
		if req.Title != nil {
			out.Title = strings.TrimSpace(*req.Title)
			changed = append(changed, "title")
		}
		if req.Description != nil {
			out.Description = *req.Description
			changed = append(changed, "description")
		}
		if req.CoverImage != nil {
			out.CoverImage = *req.CoverImage
			changed = append(changed, "cover_image")
		}
		out.UpdatedAt = time.Now().UTC()
		return tx.Put(models.CollectionDiaries, id, &out)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(userID)
	s.publish(ctx, eventbus.DiaryUpdated, map[string]any{
		"diary_id": id,
		"user_id":  userID,
		"fields":   changed,
	})
	return &out, nil
}

// Delete removes a diary and all of its entries. The entries are listed in
// the same transaction, so an entry added concurrently is either deleted
// too or rejected because the diary is gone.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	var removed int
	err := s.db.Update(ctx, func(tx *store.Tx) error {
		var d models.Diary
		if err := tx.Get(models.CollectionDiaries, id, &d); err != nil {
			return err
		}
		if d.UserID != userID {
			return store.ErrNotFound
		}
		entries, err := store.ListTx(tx, models.CollectionDiaryEntries, func(e *models.DiaryEntry) bool {
			return e.DiaryID == id
		})
		if err != nil {
			return err
		}
		for i := range entries {
			if err := tx.Delete(models.CollectionDiaryEntries, entries[i].ID); err != nil {
				return err
			}
		}
		removed = len(entries)
		return tx.Delete(models.CollectionDiaries, id)
	})
	if err != nil {
		return err
	}

	s.invalidate(userID)
	s.publish(ctx, eventbus.DiaryDeleted, map[string]any{
		"diary_id":        id,
		"user_id":         userID,
		"entries_deleted": removed,
	})
	return nil
}

func (s *Service) entriesOf(ctx context.Context, diaryID string) ([]models.DiaryEntry, error) {
	return store.List(ctx, s.db, models.CollectionDiaryEntries, func(e *models.DiaryEntry) bool {
		return e.DiaryID == diaryID
	})
}

func sortEntries(entries []models.DiaryEntry, order string) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if order == SortAsc {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func paginate(entries []models.DiaryEntry, page, limit int) []models.DiaryEntry {
	start := (page - 1) * limit
	if start >= len(entries) {
		return []models.DiaryEntry{}
	}
	end := start + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end]
}

// Entries returns one page of a diary's entries ordered by creation time.
func (s *Service) Entries(ctx context.Context, userID, diaryID string, page, limit int, order string) (*Page, error) {
	if order == "" {
		order = SortDesc
	}
	if order != SortAsc && order != SortDesc {
		return nil, ErrInvalidSort
	}
	if _, err := s.Get(ctx, userID, diaryID); err != nil {
		return nil, err
	}
	page, limit = api.ClampPage(page, limit, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)

	entries, err := s.entriesOf(ctx, diaryID)
	if err != nil {
		return nil, err
	}
	sortEntries(entries, order)
	return &Page{
		Entries: paginate(entries, page, limit),
		Page:    page,
		Limit:   limit,
		Total:   len(entries),
	}, nil
}

// Entry returns one entry of one of the user's diaries.
func (s *Service) Entry(ctx context.Context, userID, diaryID, entryID string) (*models.DiaryEntry, error) {
	var e models.DiaryEntry
	if err := s.db.Get(ctx, models.CollectionDiaryEntries, entryID, &e); err != nil {
		return nil, err
	}
	if e.UserID != userID || e.DiaryID != diaryID {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

// CreateEntry adds an entry to one of the user's diaries.
func (s *Service) CreateEntry(ctx context.Context, userID, diaryID string, req EntryRequest) (*models.DiaryEntry, error) {
	now := time.Now().UTC()
	e := &models.DiaryEntry{
		ID:             uuid.NewString(),
		DiaryID:        diaryID,
		UserID:         userID,
		Title:          strings.TrimSpace(req.Title),
		Content:        req.Content,
		ContentType:    req.ContentType,
		MediaContent:   emptyIfNil(req.MediaContent),
		Location:       req.Location,
		LocationName:   strings.TrimSpace(req.LocationName),
		Tags:           normalizeTags(req.Tags),
		SentimentScore: req.SentimentScore,
		Topics:         req.Topics,
		Entities:       req.Entities,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if e.ContentType == "" {
		e.ContentType = models.ContentText
	}

	err := s.db.Update(ctx, func(tx *store.Tx) error {
		var d models.Diary
		if err := tx.Get(models.CollectionDiaries, diaryID, &d); err != nil {
			return err
		}
		if d.UserID != userID {
			return store.ErrNotFound
		}
		d.EntryCount++
		d.UpdatedAt = now
		if err := tx.Put(models.CollectionDiaries, d.ID, &d); err != nil {
			return err
		}
		return tx.Put(models.CollectionDiaryEntries, e.ID, e)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(userID)
	s.publish(ctx, eventbus.DiaryEntryCreated, map[string]any{
		"entry_id":     e.ID,
		"diary_id":     diaryID,
		"user_id":      userID,
		"content_type": e.ContentType,
		"tags":         e.Tags,
	})
	return e, nil
}

// UpdateEntry applies the fields present in req.
func (s *Service) UpdateEntry(ctx context.Context, userID, diaryID, entryID string, req UpdateEntryRequest) (*models.DiaryEntry, error) {
	var (
		out     models.DiaryEntry
		changed []string
	)
	err := s.db.Update(ctx, func(tx *store.Tx) error {
		changed = changed[:0]
		if err := tx.Get(models.CollectionDiaryEntries, entryID, &out); err != nil {
			return err
		}
		if out.UserID != userID || out.DiaryID != diaryID {
			return store.ErrNotFound
		}
		changed = applyEntryUpdate(&out, req, changed)
		out.UpdatedAt = time.Now().UTC()
		return tx.Put(models.CollectionDiaryEntries, entryID, &out)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, eventbus.DiaryEntryUpdated, map[string]any{
		"entry_id": entryID,
		"diary_id": diaryID,
		"user_id":  userID,
		"fields":   changed,
	})
	return &out, nil
}

func applyEntryUpdate(e *models.DiaryEntry, req UpdateEntryRequest, changed []string) []string {
	if req.Title != nil {
		e.Title = strings.TrimSpace(*req.Title)
		changed = append(changed, "title")
	}
	if req.Content != nil {
		e.Content = *req.Content
		changed = append(changed, "content")
	}
	if req.ContentType != nil {
		e.ContentType = *req.ContentType
		changed = append(changed, "content_type")
	}
	if req.MediaContent != nil {
		e.MediaContent = req.MediaContent
		changed = append(changed, "media_content")
	}
	if req.Location != nil {
		e.Location = req.Location
		changed = append(changed, "location")
	}
	if req.LocationName != nil {
		e.LocationName = strings.TrimSpace(*req.LocationName)
		changed = append(changed, "location_name")
	}
	if req.Tags != nil {
		e.Tags = normalizeTags(req.Tags)
		changed = append(changed, "tags")
	}
	if req.SentimentScore != nil {
		e.SentimentScore = req.SentimentScore
		changed = append(changed, "sentiment_score")
	}
	if req.Topics != nil {
		e.Topics = req.Topics
		changed = append(changed, "topics")
	}
	if req.Entities != nil {
		e.Entities = req.Entities
		changed = append(changed, "entities")
	}
	return changed
}

// DeleteEntry removes an entry.
func (s *Service) DeleteEntry(ctx context.Context, userID, diaryID, entryID string) error {
	err := s.db.Update(ctx, func(tx *store.Tx) error {
		var e models.DiaryEntry
		if err := tx.Get(models.CollectionDiaryEntries, entryID, &e); err != nil {
			return err
		}
		if e.UserID != userID || e.DiaryID != diaryID {
			return store.ErrNotFound
		}
		if err := tx.Delete(models.CollectionDiaryEntries, entryID); err != nil {
			return err
		}

		var d models.Diary
		if err := tx.Get(models.CollectionDiaries, diaryID, &d); err != nil {
			return err
		}
		if d.EntryCount > 0 {
			d.EntryCount--
		}
		d.UpdatedAt = time.Now().UTC()
		return tx.Put(models.CollectionDiaries, diaryID, &d)
	})
	if err != nil {
		return err
	}

	s.invalidate(userID)
	s.publish(ctx, eventbus.DiaryEntryDeleted, map[string]any{
		"entry_id": entryID,
		"diary_id": diaryID,
		"user_id":  userID,
	})
	return nil
}

// Search returns one page of the user's entries matching every filter in
// req, newest first.
func (s *Service) Search(ctx context.Context, userID string, req SearchRequest) (*Page, error) {
	if err := req.Check(); err != nil {
		return nil, err
	}
	page, limit := api.ClampPage(req.Page, req.Limit, s.cfg.DefaultPageSize, s.cfg.SearchResultLimit)
	match := s.matcher(req)

	entries, err := store.List(ctx, s.db, models.CollectionDiaryEntries, func(e *models.DiaryEntry) bool {
		return e.UserID == userID && match(e)
	})
	if err != nil {
		return nil, err
	}
	sortEntries(entries, SortDesc)
	return &Page{
		Entries: paginate(entries, page, limit),
		Page:    page,
		Limit:   limit,
		Total:   len(entries),
	}, nil
}

// matcher compiles req into a predicate over entries.
func (s *Service) matcher(req SearchRequest) func(*models.DiaryEntry) bool {
	query := strings.ToLower(strings.TrimSpace(req.Query))
	radius := s.cfg.DefaultRadiusKm
	if req.RadiusKm != nil {
		radius = *req.RadiusKm
	}

	return func(e *models.DiaryEntry) bool {
		if req.DiaryID != "" && e.DiaryID != req.DiaryID {
			return false
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(e.Title), query) &&
			!strings.Contains(strings.ToLower(e.Content), query) &&
			!strings.Contains(strings.ToLower(e.LocationName), query) {
			return false
		}
		if len(req.Tags) > 0 && !e.HasTags(req.Tags) {
			return false
		}
		if req.StartDate != nil && e.CreatedAt.Before(req.StartDate.From()) {
			return false
		}
		if req.EndDate != nil && e.CreatedAt.After(req.EndDate.Until()) {
			return false
		}
		if req.Location != nil {
			if e.Location == nil || distanceKm(*req.Location, *e.Location) > radius {
				return false
			}
		}
		if req.SentimentMin != nil || req.SentimentMax != nil {
			if e.SentimentScore == nil {
				return false
			}
			if req.SentimentMin != nil && *e.SentimentScore < *req.SentimentMin {
				return false
			}
			if req.SentimentMax != nil && *e.SentimentScore > *req.SentimentMax {
				return false
			}
		}
		return true
	}
}

// stripMedia removes references to a deleted media URL from the owner's
// entries and diary covers. It returns the number of documents changed.
func (s *Service) stripMedia(ctx context.Context, userID, url string) (int, error) {
	if url == "" {
		return 0, errors.New("media event without url")
	}

	var owners []string
	changed := 0
	err := s.db.Update(ctx, func(tx *store.Tx) error {
		owners, changed = owners[:0], 0
		now := time.Now().UTC()

		entries, err := store.ListTx(tx, models.CollectionDiaryEntries, func(e *models.DiaryEntry) bool {
			return (userID == "" || e.UserID == userID) && referencesMedia(e, url)
		})
		if err != nil {
			return err
		}
		for i := range entries {
			e := &entries[i]
			e.MediaContent = withoutMedia(e.MediaContent, url)
			e.UpdatedAt = now
			if err := tx.Put(models.CollectionDiaryEntries, e.ID, e); err != nil {
				return err
			}
		}

		diaries, err := store.ListTx(tx, models.CollectionDiaries, func(d *models.Diary) bool {
			return d.CoverImage == url && (userID == "" || d.UserID == userID)
		})
		if err != nil {
			return err
		}
		for i := range diaries {
			d := &diaries[i]
			d.CoverImage = ""
			d.UpdatedAt = now
			if err := tx.Put(models.CollectionDiaries, d.ID, d); err != nil {
				return err
			}
			owners = append(owners, d.UserID)
		}
		changed = len(entries) + len(diaries)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("strip media references: %w", err)
	}

	for _, owner := range owners {
		s.invalidate(owner)
	}
	return changed, nil
}

func referencesMedia(e *models.DiaryEntry, url string) bool {
	for _, m := range e.MediaContent {
		if m.URL == url || m.ThumbnailURL == url {
			return true
		}
	}
	return false
}

// withoutMedia drops items whose URL is url and clears matching thumbnails.
func withoutMedia(items []models.MediaContent, url string) []models.MediaContent {
	kept := items[:0:0]
	for _, m := range items {
		if m.URL == url {
			continue
		}
		if m.ThumbnailURL == url {
			m.ThumbnailURL = ""
		}
		kept = append(kept, m)
	}
	return kept
}

func (s *Service) onMediaDeleted(ctx context.Context, e eventbus.Event) (any, error) {
	url, _ := e.PayloadString("url")
	userID, _ := e.PayloadString("user_id")
	n, err := s.stripMedia(ctx, userID, url)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		logging.Ctx(ctx).Info().
			Str("url", url).
			Int("documents", n).
			Msg("Removed references to deleted media")
	}
	return n, nil
}
