// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package diaries

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/everly/internal/config"
	"github.com/tomtom215/everly/internal/eventbus"
	"github.com/tomtom215/everly/internal/models"
	"github.com/tomtom215/everly/internal/module"
	"github.com/tomtom215/everly/internal/modules/moduletest"
	"github.com/tomtom215/everly/internal/modules/users"
	"github.com/tomtom215/everly/internal/store"
)

func setup(t *testing.T, tweak ...func(*config.Config)) *moduletest.Harness {
	t.Helper()
	cfg := moduletest.Config(t)
	for _, fn := range tweak {
		fn(cfg)
	}
	return moduletest.Start(t, cfg, users.New(cfg), New(cfg))
}

func createDiary(t *testing.T, h *moduletest.Harness, token, title string) models.Diary {
	t.Helper()
	resp := h.JSON(t, http.MethodPost, "/diaries/", token, map[string]any{"title": title})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create diary: status %d, body %s", resp.Code, resp.Body)
	}
	var d models.Diary
	resp.Decode(t, &d)
	return d
}

func createEntry(t *testing.T, h *moduletest.Harness, token, diaryID string, body map[string]any) models.DiaryEntry {
	t.Helper()
	resp := h.JSON(t, http.MethodPost, "/diaries/"+diaryID+"/entries", token, body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("create entry: status %d, body %s", resp.Code, resp.Body)
	}
	var e models.DiaryEntry
	resp.Decode(t, &e)
	return e
}

type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recorder) handle(_ context.Context, e eventbus.Event) (any, error) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil, nil
}

func (r *recorder) count(t eventbus.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func TestDiaries_CRUD(t *testing.T) {
	h := setup(t)
	s := h.Login(t, "ana")
	rec := &recorder{}
	for _, et := range []eventbus.EventType{eventbus.DiaryCreated, eventbus.DiaryUpdated, eventbus.DiaryDeleted} {
		h.Bus.Subscribe(et, rec.handle)
	}

	first := createDiary(t, h, s.Token, "  Lisbon  ")
	if first.Title != "Lisbon" || first.UserID != s.UserID || first.EntryCount != 0 {
		t.Errorf("created = %+v", first)
	}
	second := createDiary(t, h, s.Token, "Porto")

	var list []models.Diary
	h.JSON(t, http.MethodGet, "/diaries/", s.Token, nil).Decode(t, &list)
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("list = %+v, want newest first", list)
	}

	resp := h.JSON(t, http.MethodPut, "/diaries/"+first.ID, s.Token, map[string]any{"description": "Spring trip"})
	if resp.Code != http.StatusOK {
		t.Fatalf("update: status %d, body %s", resp.Code, resp.Body)
	}
	var updated models.Diary
	resp.Decode(t, &updated)
	if updated.Title != "Lisbon" || updated.Description != "Spring trip" {
		t.Errorf("updated = %+v", updated)
	}

	createEntry(t, h, s.Token, first.ID, map[string]any{"title": "Day 1"})
	createEntry(t, h, s.Token, first.ID, map[string]any{"title": "Day 2"})

	var got models.Diary
	h.JSON(t, http.MethodGet, "/diaries/"+first.ID, s.Token, nil).Decode(t, &got)
	if got.EntryCount != 2 {
		t.Errorf("entry_count = %d, want 2", got.EntryCount)
	}

	if resp := h.JSON(t, http.MethodDelete, "/diaries/"+first.ID, s.Token, nil); resp.Code != http.StatusOK {
		t.Fatalf("delete: status %d, body %s", resp.Code, resp.Body)
	}
	if resp := h.JSON(t, http.MethodGet, "/diaries/"+first.ID, s.Token, nil); resp.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d, want 404", resp.Code)
	}
	n, err := h.Store.Count(context.Background(), models.CollectionDiaryEntries)
	if err != nil || n != 0 {
		t.Errorf("entries left after diary delete = %d, %v", n, err)
	}

	h.Bus.Wait()
	if rec.count(eventbus.DiaryCreated) != 2 || rec.count(eventbus.DiaryUpdated) != 1 || rec.count(eventbus.DiaryDeleted) != 1 {
		t.Errorf("events created/updated/deleted = %d/%d/%d",
			rec.count(eventbus.DiaryCreated), rec.count(eventbus.DiaryUpdated), rec.count(eventbus.DiaryDeleted))
	}
	rec.mu.Lock()
	for _, e := range rec.events {
		if e.Type == eventbus.DiaryDeleted && e.Payload["entries_deleted"] != 2 {
			t.Errorf("entries_deleted = %v, want 2", e.Payload["entries_deleted"])
		}
	}
	rec.mu.Unlock()
}

func TestDiaries_Validation(t *testing.T) {
	h := setup(t)
	s := h.Login(t, "ben")
	d := createDiary(t, h, s.Token, "Trip")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"diary without title", http.MethodPost, "/diaries/", map[string]any{"description": "x"}, http.StatusBadRequest},
		{"blank title", http.MethodPost, "/diaries/", map[string]any{"title": "   "}, http.StatusBadRequest},
		{"bad cover image", http.MethodPost, "/diaries/", map[string]any{"title": "a", "cover_image": "not a url"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/diaries/", map[string]any{"title": "a", "owner": "me"}, http.StatusBadRequest},
		{"bad content type", http.MethodPost, "/diaries/" + d.ID + "/entries", map[string]any{"title": "a", "content_type": "poem"}, http.StatusBadRequest},
		{"sentiment out of range", http.MethodPost, "/diaries/" + d.ID + "/entries", map[string]any{"title": "a", "sentiment_score": 2}, http.StatusBadRequest},
		{"bad latitude", http.MethodPost, "/diaries/" + d.ID + "/entries", map[string]any{"title": "a", "location": map[string]any{"lat": 91, "lng": 0}}, http.StatusBadRequest},
		{"entry in missing diary", http.MethodPost, "/diaries/nope/entries", map[string]any{"title": "a"}, http.StatusNotFound},
		{"bad sort", http.MethodGet, "/diaries/" + d.ID + "/entries?sort=sideways", nil, http.StatusBadRequest},
		{"search dates inverted", http.MethodPost, "/diaries/search", map[string]any{"start_date": "2026-02-01", "end_date": "2026-01-01"}, http.StatusBadRequest},
		{"search bad date", http.MethodPost, "/diaries/search", map[string]any{"start_date": "yesterday"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.JSON(t, tt.method, tt.path, s.Token, tt.body)
			if resp.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", resp.Code, tt.want, resp.Body)
			}
		})
	}
}

func TestDiaries_OwnershipIsolation(t *testing.T) {
	h := setup(t)
	owner := h.Login(t, "cyd")
	other := h.Login(t, "dee")

	d := createDiary(t, h, owner.Token, "Private")
	e := createEntry(t, h, owner.Token, d.ID, map[string]any{"title": "Secret", "content": "hidden"})

	requests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/diaries/" + d.ID, nil},
		{http.MethodPut, "/diaries/" + d.ID, map[string]any{"title": "Mine now"}},
		{http.MethodDelete, "/diaries/" + d.ID, nil},
		{http.MethodGet, "/diaries/" + d.ID + "/entries", nil},
		{http.MethodPost, "/diaries/" + d.ID + "/entries", map[string]any{"title": "Intruder"}},
		{http.MethodGet, "/diaries/" + d.ID + "/entries/" + e.ID, nil},
		{http.MethodPut, "/diaries/" + d.ID + "/entries/" + e.ID, map[string]any{"content": "changed"}},
		{http.MethodDelete, "/diaries/" + d.ID + "/entries/" + e.ID, nil},
	}
	for _, rq := range requests {
		t.Run(rq.method+" "+rq.path, func(t *testing.T) {
			if resp := h.JSON(t, rq.method, rq.path, other.Token, rq.body); resp.Code != http.StatusNotFound {
				t.Errorf("status = %d, want 404", resp.Code)
			}
		})
	}

	var list []models.Diary
	h.JSON(t, http.MethodGet, "/diaries/", other.Token, nil).Decode(t, &list)
	if len(list) != 0 {
		t.Errorf("other user's list = %+v, want empty", list)
	}
	var page []models.DiaryEntry
	h.JSON(t, http.MethodPost, "/diaries/search", other.Token, map[string]any{"query": "secret"}).Decode(t, &page)
	if len(page) != 0 {
		t.Errorf("other user's search = %+v, want empty", page)
	}

	var got models.DiaryEntry
	h.JSON(t, http.MethodGet, "/diaries/"+d.ID+"/entries/"+e.ID, owner.Token, nil).Decode(t, &got)
	if got.Content != "hidden" {
		t.Errorf("entry changed by other user: %+v", got)
	}
	if resp := h.JSON(t, http.MethodGet, "/diaries/", "", nil); resp.Code != http.StatusUnauthorized {
		t.Errorf("anonymous list = %d, want 401", resp.Code)
	}
}

func TestDiaries_EntryLifecycle(t *testing.T) {
	h := setup(t)
	s := h.Login(t, "eve")
	d := createDiary(t, h, s.Token, "Kyoto")

	e := createEntry(t, h, s.Token, d.ID, map[string]any{
		"title": "Temples",
		"tags":  []string{" Temple ", "temple", "Autumn"},
	})
	if e.ContentType != models.ContentText {
		t.Errorf("content_type = %q, want text", e.ContentType)
	}
	if len(e.Tags) != 2 || e.Tags[0] != "Temple" || e.Tags[1] != "Autumn" {
		t.Errorf("tags = %q", e.Tags)
	}
	if e.MediaContent == nil {
		t.Error("media_content is nil, want empty list")
	}

	resp := h.JSON(t, http.MethodPut, "/diaries/"+d.ID+"/entries/"+e.ID, s.Token, map[string]any{
		"content":  "Fushimi Inari",
		"tags":     []string{},
		"location": map[string]any{"lat": 34.9671, "lng": 135.7727},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("update entry: status %d, body %s", resp.Code, resp.Body)
	}
	var updated models.DiaryEntry
	resp.Decode(t, &updated)
	if updated.Title != "Temples" || updated.Content != "Fushimi Inari" || len(updated.Tags) != 0 || updated.Location == nil {
		t.Errorf("updated = %+v", updated)
	}

	if resp := h.JSON(t, http.MethodDelete, "/diaries/"+d.ID+"/entries/"+e.ID, s.Token, nil); resp.Code != http.StatusOK {
		t.Fatalf("delete entry: status %d", resp.Code)
	}
	if resp := h.JSON(t, http.MethodGet, "/diaries/"+d.ID+"/entries/"+e.ID, s.Token, nil); resp.Code != http.StatusNotFound {
		t.Errorf("get deleted entry = %d, want 404", resp.Code)
	}
	var got models.Diary
	h.JSON(t, http.MethodGet, "/diaries/"+d.ID, s.Token, nil).Decode(t, &got)
	if got.EntryCount != 0 {
		t.Errorf("entry_count = %d, want 0", got.EntryCount)
	}
}

func TestDiaries_EntryPagination(t *testing.T) {
	h := setup(t, func(c *config.Config) { c.Diaries.MaxPageSize = 10 })
	s := h.Login(t, "fay")
	d := createDiary(t, h, s.Token, "Daily")

	var ids []string
	for i := 0; i < 12; i++ {
		ids = append(ids, createEntry(t, h, s.Token, d.ID, map[string]any{"title": fmt.Sprintf("Day %d", i+1)}).ID)
	}

	tests := []struct {
		query     string
		wantLen   int
		wantFirst string
		wantPage  int
		wantPer   int
		wantPages int
	}{
		{"", 10, ids[11], 1, 10, 2},
		{"?page=2", 2, ids[1], 2, 10, 2},
		{"?page=1&limit=5&sort=asc", 5, ids[0], 1, 5, 3},
		{"?page=3&limit=5&sort=asc", 2, ids[10], 3, 5, 3},
		{"?page=9&limit=5", 0, "", 9, 5, 3},
		{"?limit=500", 10, ids[11], 1, 10, 2},
		{"?page=0&limit=-1", 10, ids[11], 1, 10, 2},
	}
	for _, tt := range tests {
		t.Run("entries"+tt.query, func(t *testing.T) {
			resp := h.JSON(t, http.MethodGet, "/diaries/"+d.ID+"/entries"+tt.query, s.Token, nil)
			if resp.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", resp.Code, resp.Body)
			}
			var page []models.DiaryEntry
			resp.Decode(t, &page)
			if len(page) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(page), tt.wantLen)
			}
			if tt.wantLen > 0 && page[0].ID != tt.wantFirst {
				t.Errorf("first = %s (%s), want %s", page[0].ID, page[0].Title, tt.wantFirst)
			}
			p := resp.Meta.Pagination
			if p == nil {
				t.Fatal("missing pagination")
			}
			if p.CurrentPage != tt.wantPage || p.EntriesPerPage != tt.wantPer ||
				p.TotalPages != tt.wantPages || p.TotalEntries != 12 {
				t.Errorf("pagination = %+v", *p)
			}
		})
	}
}

func TestDiaries_Search(t *testing.T) {
	h := setup(t)
	s := h.Login(t, "gus")
	france := createDiary(t, h, s.Token, "France")
	uk := createDiary(t, h, s.Token, "England")

	eiffel := createEntry(t, h, s.Token, france.ID, map[string]any{
		"title": "Eiffel Tower", "content": "Sunset over the Seine",
		"tags": []string{"landmark", "sunset"}, "location": paris, "location_name": "Paris",
		"sentiment_score": 0.9,
	})
	palace := createEntry(t, h, s.Token, france.ID, map[string]any{
		"title": "Hall of Mirrors", "content": "Crowded",
		"tags": []string{"landmark"}, "location": versailles, "location_name": "Versailles",
		"sentiment_score": -0.2,
	})
	rain := createEntry(t, h, s.Token, uk.ID, map[string]any{
		"title": "Rainy day", "content": "Museum visit, sunset hidden",
		"tags": []string{"Museum", "Sunset"}, "location": london, "location_name": "London",
	})

	today := time.Now().UTC()
	tests := []struct {
		name string
		body map[string]any
		want []string
	}{
		{"everything", map[string]any{}, []string{rain.ID, palace.ID, eiffel.ID}},
		{"text in content", map[string]any{"query": "SUNSET"}, []string{rain.ID, eiffel.ID}},
		{"text in location name", map[string]any{"query": "versa"}, []string{palace.ID}},
		{"all tags required", map[string]any{"tags": []string{"landmark", "SUNSET"}}, []string{eiffel.ID}},
		{"single tag", map[string]any{"tags": []string{"sunset"}}, []string{rain.ID, eiffel.ID}},
		{"default radius", map[string]any{"location": paris}, []string{eiffel.ID}},
		{"wide radius", map[string]any{"location": paris, "radius_km": 25}, []string{palace.ID, eiffel.ID}},
		{"channel radius", map[string]any{"location": paris, "radius_km": 400}, []string{rain.ID, palace.ID, eiffel.ID}},
		{"sentiment min", map[string]any{"sentiment_min": 0}, []string{eiffel.ID}},
		{"sentiment max", map[string]any{"sentiment_max": 0}, []string{palace.ID}},
		{"diary filter", map[string]any{"diary_id": uk.ID}, []string{rain.ID}},
		{"date range covering today", map[string]any{
			"start_date": today.AddDate(0, 0, -1).Format(time.DateOnly),
			"end_date":   today.AddDate(0, 0, 1).Format(time.DateOnly),
		}, []string{rain.ID, palace.ID, eiffel.ID}},
		{"starts tomorrow", map[string]any{"start_date": today.AddDate(0, 0, 1).Format(time.DateOnly)}, nil},
		{"ended yesterday", map[string]any{"end_date": today.AddDate(0, 0, -1).Format(time.DateOnly)}, nil},
		{"combined", map[string]any{"query": "sunset", "tags": []string{"landmark"}, "location": paris}, []string{eiffel.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.JSON(t, http.MethodPost, "/diaries/search", s.Token, tt.body)
			if resp.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", resp.Code, resp.Body)
			}
			var got []models.DiaryEntry
			resp.Decode(t, &got)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d results, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("result[%d] = %s (%s), want %s", i, got[i].ID, got[i].Title, id)
				}
			}
			if resp.Meta.Pagination.TotalEntries != len(tt.want) {
				t.Errorf("total_entries = %d", resp.Meta.Pagination.TotalEntries)
			}
		})
	}
}

func TestDiaries_SearchLimitCapped(t *testing.T) {
	h := setup(t, func(c *config.Config) { c.Diaries.SearchResultLimit = 3 })
	s := h.Login(t, "hal")
	d := createDiary(t, h, s.Token, "Many")
	for i := 0; i < 5; i++ {
		createEntry(t, h, s.Token, d.ID, map[string]any{"title": fmt.Sprintf("Entry %d", i)})
	}

	resp := h.JSON(t, http.MethodPost, "/diaries/search", s.Token, map[string]any{"limit": 50})
	var got []models.DiaryEntry
	resp.Decode(t, &got)
	if len(got) != 3 || resp.Meta.Pagination.EntriesPerPage != 3 || resp.Meta.Pagination.TotalEntries != 5 {
		t.Errorf("len = %d, pagination = %+v", len(got), *resp.Meta.Pagination)
	}
}

func TestDiaries_ListCache(t *testing.T) {
	h := setup(t)
	s := h.Login(t, "ivy")
	key := "diaries:user:" + s.UserID

	createDiary(t, h, s.Token, "One")
	h.JSON(t, http.MethodGet, "/diaries/", s.Token, nil)
	if _, ok := h.Cache.Get(key); !ok {
		t.Fatalf("list not cached under %q", key)
	}

	d := createDiary(t, h, s.Token, "Two")
	if _, ok := h.Cache.Get(key); ok {
		t.Error("create did not invalidate the cached list")
	}
	var list []models.Diary
	h.JSON(t, http.MethodGet, "/diaries/", s.Token, nil).Decode(t, &list)
	if len(list) != 2 {
		t.Errorf("list after create = %d diaries, want 2", len(list))
	}

	h.JSON(t, http.MethodPut, "/diaries/"+d.ID, s.Token, map[string]any{"title": "Renamed"})
	h.JSON(t, http.MethodGet, "/diaries/", s.Token, nil).Decode(t, &list)
	if list[0].Title != "Renamed" {
		t.Errorf("list after update = %+v", list)
	}

	h.JSON(t, http.MethodDelete, "/diaries/"+d.ID, s.Token, nil)
	h.JSON(t, http.MethodGet, "/diaries/", s.Token, nil).Decode(t, &list)
	if len(list) != 1 {
		t.Errorf("list after delete = %d diaries, want 1", len(list))
	}
}

func TestDiaries_WithoutCache(t *testing.T) {
	cfg := moduletest.Config(t)
	mod := New(cfg)
	h := moduletest.Start(t, cfg, users.New(cfg), mod)
	mod.state.Load().svc.cache = nil

	s := h.Login(t, "jon")
	createDiary(t, h, s.Token, "Uncached")
	var list []models.Diary
	h.JSON(t, http.MethodGet, "/diaries/", s.Token, nil).Decode(t, &list)
	if len(list) != 1 {
		t.Errorf("list = %+v", list)
	}
	if _, ok := h.Cache.Get("diaries:user:" + s.UserID); ok {
		t.Error("list cached with caching disabled")
	}
}

func TestDiaries_MediaDeletedStripsReferences(t *testing.T) {
	h := setup(t)
	s := h.Login(t, "kim")
	other := h.Login(t, "lou")

	const (
		photo = "http://everly.test/static/uploads/media/photo.png"
		thumb = "http://everly.test/static/uploads/media/thumb.png"
		keep  = "http://everly.test/static/uploads/media/keep.png"
	)

	resp := h.JSON(t, http.MethodPost, "/diaries/", s.Token, map[string]any{"title": "Album", "cover_image": photo})
	var d models.Diary
	resp.Decode(t, &d)
	e := createEntry(t, h, s.Token, d.ID, map[string]any{
		"title": "Pictures",
		"media_content": []map[string]any{
			{"url": photo, "content_type": "image/png"},
			{"url": keep, "content_type": "image/png", "thumbnail_url": thumb},
		},
	})
	otherDiary := createDiary(t, h, other.Token, "Theirs")
	otherEntry := createEntry(t, h, other.Token, otherDiary.ID, map[string]any{
		"title":         "Same url",
		"media_content": []map[string]any{{"url": photo, "content_type": "image/png"}},
	})

	results := h.Bus.PublishAndWait(context.Background(), eventbus.NewEvent(eventbus.MediaDeleted, "media", map[string]any{
		"filename": "photo.png", "url": photo, "user_id": s.UserID,
	}))
	if len(results) != 1 || results[0] != 2 {
		t.Errorf("handler results = %v, want [2]", results)
	}
	h.Bus.PublishAndWait(context.Background(), eventbus.NewEvent(eventbus.MediaDeleted, "media", map[string]any{
		"filename": "thumb.png", "url": thumb, "user_id": s.UserID,
	}))

	var got models.DiaryEntry
	h.JSON(t, http.MethodGet, "/diaries/"+d.ID+"/entries/"+e.ID, s.Token, nil).Decode(t, &got)
	if len(got.MediaContent) != 1 || got.MediaContent[0].URL != keep || got.MediaContent[0].ThumbnailURL != "" {
		t.Errorf("media_content = %+v", got.MediaContent)
	}
	var diary models.Diary
	h.JSON(t, http.MethodGet, "/diaries/"+d.ID, s.Token, nil).Decode(t, &diary)
	if diary.CoverImage != "" {
		t.Errorf("cover_image = %q, want cleared", diary.CoverImage)
	}

	var theirs models.DiaryEntry
	h.JSON(t, http.MethodGet, "/diaries/"+otherDiary.ID+"/entries/"+otherEntry.ID, other.Token, nil).Decode(t, &theirs)
	if len(theirs.MediaContent) != 1 {
		t.Errorf("other user's entry changed: %+v", theirs.MediaContent)
	}
}

func TestDiaries_LifecycleAndHealth(t *testing.T) {
	h := setup(t)
	s := h.Login(t, "max")
	d := createDiary(t, h, s.Token, "Health")
	createEntry(t, h, s.Token, d.ID, map[string]any{"title": "One"})

	mod, ok := h.Manager.Get(ModuleName)
	if !ok {
		t.Fatal("diaries module not registered")
	}
	hs, err := mod.HealthCheck(context.Background())
	if err != nil || hs.Status != module.StatusHealthy {
		t.Fatalf("HealthCheck() = %+v, %v", hs, err)
	}
	if hs.Details["diaries"] != 1 || hs.Details["entries"] != 1 || hs.Details["list_cache"] != true {
		t.Errorf("details = %+v", hs.Details)
	}

	order := h.Manager.InitOrder()
	if len(order) != 3 || order[2] != ModuleName {
		t.Errorf("InitOrder() = %v, want diaries last", order)
	}

	before := h.Bus.SubscriberCount()
	if err := mod.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if after := h.Bus.SubscriberCount(); after != before-1 {
		t.Errorf("subscribers = %d, want %d", after, before-1)
	}
	if resp := h.JSON(t, http.MethodGet, "/diaries/", s.Token, nil); resp.Code != http.StatusServiceUnavailable {
		t.Errorf("after cleanup = %d, want 503", resp.Code)
	}
}

func TestDiaries_ConcurrentEntryCreates(t *testing.T) {
	h := setup(t)
	s := h.Login(t, "nia")
	d := createDiary(t, h, s.Token, "Busy")

	const writers = 20
	codes := make([]int, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := h.JSON(t, http.MethodPost, "/diaries/"+d.ID+"/entries", s.Token,
				map[string]any{"title": fmt.Sprintf("Entry %d", i)})
			codes[i] = resp.Code
		}()
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusCreated {
			t.Errorf("writer %d: status %d, want 201", i, code)
		}
	}
	var got models.Diary
	h.JSON(t, http.MethodGet, "/diaries/"+d.ID, s.Token, nil).Decode(t, &got)
	if got.EntryCount != writers {
		t.Errorf("entry_count = %d, want %d", got.EntryCount, writers)
	}
}

func TestDiaries_DeleteRacingEntryCreates(t *testing.T) {
	h := setup(t)
	s := h.Login(t, "oli")
	d := createDiary(t, h, s.Token, "Short lived")
	createEntry(t, h, s.Token, d.ID, map[string]any{"title": "First"})

	const writers = 10
	codes := make([]int, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = h.JSON(t, http.MethodPost, "/diaries/"+d.ID+"/entries", s.Token,
				map[string]any{"title": "Late"}).Code
		}()
	}
	del := h.JSON(t, http.MethodDelete, "/diaries/"+d.ID, s.Token, nil)
	wg.Wait()

	if del.Code != http.StatusOK {
		t.Fatalf("delete: status %d, body %s", del.Code, del.Body)
	}
	for i, code := range codes {
		if code != http.StatusCreated && code != http.StatusNotFound {
			t.Errorf("writer %d: status %d, want 201 or 404", i, code)
		}
	}
	orphans, err := store.List(context.Background(), h.Store, models.CollectionDiaryEntries, func(e *models.DiaryEntry) bool {
		return e.DiaryID == d.ID
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != 0 {
		t.Errorf("%d entries left behind for the deleted diary", len(orphans))
	}
}

func TestDiaries_StaleListNotCached(t *testing.T) {
	h := setup(t)
	mod, _ := h.Manager.Get(ModuleName)
	svc := mod.(*Module).state.Load().svc
	const user = "pia"

	stale := []models.Diary{{ID: "old"}}
	gen := svc.listGeneration(user)
	svc.invalidate(user)
	if svc.cacheList(user, gen, stale) {
		t.Error("list read before an invalidation was cached")
	}
	if _, ok := svc.cache.Get(listCacheKey(user)); ok {
		t.Error("stale list present in cache")
	}

	if !svc.cacheList(user, svc.listGeneration(user), stale) {
		t.Error("list read at the current generation was not cached")
	}
}
