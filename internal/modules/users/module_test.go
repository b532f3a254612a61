// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package users

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/tomtom215/everly/internal/config"
	"github.com/tomtom215/everly/internal/eventbus"
	"github.com/tomtom215/everly/internal/models"
	"github.com/tomtom215/everly/internal/module"
	"github.com/tomtom215/everly/internal/modules/moduletest"
)

func setup(t *testing.T, tweak ...func(*config.Config)) *moduletest.Harness {
	t.Helper()
	cfg := moduletest.Config(t)
	for _, fn := range tweak {
		fn(cfg)
	}
	return moduletest.Start(t, cfg, New(cfg))
}

func TestUsers_Me(t *testing.T) {
	h := setup(t)
	s := h.Login(t, "ana")

	resp := h.JSON(t, http.MethodGet, "/users/me", s.Token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body)
	}
	var out models.UserOutput
	resp.Decode(t, &out)
	if out.ID != s.UserID || out.Email != "ana@example.com" {
		t.Errorf("me = %+v", out)
	}
	if out.DiaryCount == nil || *out.DiaryCount != 0 {
		t.Errorf("diary_count = %v, want 0", out.DiaryCount)
	}

	if resp := h.JSON(t, http.MethodGet, "/users/me", "", nil); resp.Code != http.StatusUnauthorized {
		t.Errorf("without token = %d, want 401", resp.Code)
	}
}

func TestUsers_UpdateMe(t *testing.T) {
	h := setup(t)
	s := h.Login(t, "ben")

	var mu sync.Mutex
	var updates []eventbus.Event
	h.Bus.Subscribe(eventbus.UserUpdated, func(_ context.Context, e eventbus.Event) (any, error) {
		mu.Lock()
		updates = append(updates, e)
		mu.Unlock()
		return nil, nil
	})

	resp := h.JSON(t, http.MethodPut, "/users/me", s.Token, map[string]string{"full_name": "  Ben Ito  "})
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body)
	}
	var out models.UserOutput
	resp.Decode(t, &out)
	if out.FullName != "Ben Ito" {
		t.Errorf("full_name = %q", out.FullName)
	}

	h.Bus.Wait()
	mu.Lock()
	defer mu.Unlock()
	if len(updates) != 1 {
		t.Fatalf("user.updated events = %d, want 1", len(updates))
	}
	if id, _ := updates[0].PayloadString("user_id"); id != s.UserID {
		t.Errorf("event user_id = %q", id)
	}
	if updates[0].Source != ModuleName {
		t.Errorf("event source = %q", updates[0].Source)
	}
}

func TestUsers_UpdateMeValidation(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"name too long", map[string]string{"full_name": strings.Repeat("x", 101)}},
		{"bad picture url", map[string]string{"profile_picture": "not a url"}},
		{"unknown field", map[string]string{"email": "x@example.com"}},
	}
	h := setup(t)
	s := h.Login(t, "cyd")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.JSON(t, http.MethodPut, "/users/me", s.Token, tt.body)
			if resp.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", resp.Code, resp.Body)
			}
		})
	}
}

func TestUsers_Preferences(t *testing.T) {
	h := setup(t)
	s := h.Login(t, "dee")

	resp := h.JSON(t, http.MethodPut, "/users/me/preferences", s.Token, map[string]any{
		"theme":                       "dark",
		"units":                       "metric",
		models.ProfileImagePreference: "data:image/png;base64,AAAA",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body)
	}

	resp = h.JSON(t, http.MethodPut, "/users/me/preferences", s.Token, map[string]any{"units": nil, "lang": "de"})
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}

	var prefs map[string]any
	h.JSON(t, http.MethodGet, "/users/me/preferences", s.Token, nil).Decode(t, &prefs)
	if prefs["theme"] != "dark" || prefs["lang"] != "de" {
		t.Errorf("preferences = %v", prefs)
	}
	if _, ok := prefs["units"]; ok {
		t.Error("null value did not remove units")
	}
	if _, ok := prefs[models.ProfileImagePreference]; !ok {
		t.Error("preferences endpoint hides profileImage")
	}

	var me models.UserOutput
	h.JSON(t, http.MethodGet, "/users/me", s.Token, nil).Decode(t, &me)
	if _, ok := me.Preferences[models.ProfileImagePreference]; ok {
		t.Error("profile output includes profileImage")
	}

	if resp := h.JSON(t, http.MethodPut, "/users/me/preferences", s.Token, nil); resp.Code != http.StatusBadRequest {
		t.Errorf("empty body = %d, want 400", resp.Code)
	}
}

func TestUsers_ProfilePicture(t *testing.T) {
	h := setup(t)
	s := h.Login(t, "eve")
	dir := h.Config.Users.ProfileUploadPath

	resp := h.Upload(t, http.MethodPut, "/users/me/profile-picture", s.Token, "me.png", "image/png", moduletest.PNG)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body)
	}
	var out models.UserOutput
	resp.Decode(t, &out)
	prefix := "http://everly.test/static/uploads/profiles/"
	if !strings.HasPrefix(out.ProfilePicture, prefix) || !strings.HasSuffix(out.ProfilePicture, ".png") {
		t.Fatalf("profile_picture = %q", out.ProfilePicture)
	}
	first := strings.TrimPrefix(out.ProfilePicture, prefix)
	if _, err := os.Stat(dir + "/" + first); err != nil {
		t.Fatalf("stored file: %v", err)
	}

	resp = h.Upload(t, http.MethodPut, "/users/me/profile-picture", s.Token, "again.png", "image/png", moduletest.PNG)
	if resp.Code != http.StatusOK {
		t.Fatalf("second upload status = %d", resp.Code)
	}
	if _, err := os.Stat(dir + "/" + first); !os.IsNotExist(err) {
		t.Errorf("previous picture still on disk: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("profile dir holds %d files, want 1", len(entries))
	}
}

func TestUsers_ProfilePictureRejected(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		data        []byte
		want        int
	}{
		{"not an image type", "application/pdf", []byte("%PDF-1.7 ..."), http.StatusUnsupportedMediaType},
		{"text posing as png", "image/png", []byte("plain text, honest"), http.StatusUnsupportedMediaType},
		{"too large", "image/png", append(append([]byte{}, moduletest.PNG...), make([]byte, 256)...), http.StatusRequestEntityTooLarge},
	}

	h := setup(t, func(c *config.Config) { c.Users.MaxProfileImageSize = 128 })
	s := h.Login(t, "fay")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.Upload(t, http.MethodPut, "/users/me/profile-picture", s.Token, "f", tt.contentType, tt.data)
			if resp.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", resp.Code, tt.want, resp.Body)
			}
		})
	}
}

func TestUsers_DiaryCountFromEvents(t *testing.T) {
	h := setup(t)
	s := h.Login(t, "gus")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		h.Bus.Publish(ctx, eventbus.NewEvent(eventbus.DiaryCreated, "diaries", map[string]any{"user_id": s.UserID}))
	}
	h.Bus.Wait()
	h.Bus.Publish(ctx, eventbus.NewEvent(eventbus.DiaryDeleted, "diaries", map[string]any{"user_id": s.UserID}))
	h.Bus.Wait()

	var out models.UserOutput
	h.JSON(t, http.MethodGet, "/users/me", s.Token, nil).Decode(t, &out)
	if out.DiaryCount == nil || *out.DiaryCount != 2 {
		t.Errorf("diary_count = %v, want 2", out.DiaryCount)
	}
}

func TestUsers_AdminRoutes(t *testing.T) {
	h := setup(t)
	user := h.Login(t, "hal")
	admin := h.Login(t, "admin")

	if resp := h.JSON(t, http.MethodGet, "/users/", user.Token, nil); resp.Code != http.StatusForbidden {
		t.Errorf("list as user = %d, want 403", resp.Code)
	}

	resp := h.JSON(t, http.MethodGet, "/users/", admin.Token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list as admin = %d, body %s", resp.Code, resp.Body)
	}
	var list []models.UserOutput
	resp.Decode(t, &list)
	if len(list) != 2 || list[0].ID != user.UserID {
		t.Errorf("list = %+v", list)
	}

	tests := []struct {
		name   string
		target string
		body   any
		want   int
	}{
		{"missing flag", user.UserID, map[string]any{}, http.StatusBadRequest},
		{"unknown user", "nope", map[string]any{"is_active": false}, http.StatusNotFound},
		{"self deactivation", admin.UserID, map[string]any{"is_active": false}, http.StatusBadRequest},
		{"deactivate user", user.UserID, map[string]any{"is_active": false}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.JSON(t, http.MethodPut, "/users/"+tt.target+"/status", admin.Token, tt.body)
			if resp.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", resp.Code, tt.want, resp.Body)
			}
		})
	}

	if resp := h.JSON(t, http.MethodGet, "/users/me", user.Token, nil); resp.Code != http.StatusForbidden {
		t.Errorf("deactivated user GET /me = %d, want 403", resp.Code)
	}

	resp = h.JSON(t, http.MethodPut, "/users/"+user.UserID+"/status", admin.Token, map[string]any{"is_active": true})
	if resp.Code != http.StatusOK {
		t.Fatalf("reactivate = %d", resp.Code)
	}
	if resp := h.JSON(t, http.MethodGet, "/users/me", user.Token, nil); resp.Code != http.StatusOK {
		t.Errorf("reactivated user GET /me = %d, want 200", resp.Code)
	}
}

func TestUsers_LifecycleAndHealth(t *testing.T) {
	h := setup(t)
	h.Login(t, "ivy")

	mod, ok := h.Manager.Get(ModuleName)
	if !ok {
		t.Fatal("users module not registered")
	}
	if got := mod.Dependencies(); len(got) != 1 || got[0] != "auth" {
		t.Errorf("Dependencies() = %v", got)
	}
	if order := h.Manager.InitOrder(); len(order) != 2 || order[0] != "auth" || order[1] != ModuleName {
		t.Errorf("InitOrder() = %v", order)
	}

	hs, err := mod.HealthCheck(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if hs.Status != module.StatusHealthy || hs.Details["users"] != 1 {
		t.Errorf("health = %+v", hs)
	}

	before := h.Bus.SubscriberCount()
	if err := mod.Cleanup(context.Background()); err != nil {
		t.Fatal(err)
	}
	if after := h.Bus.SubscriberCount(); after != before-2 {
		t.Errorf("subscribers after cleanup = %d, want %d", after, before-2)
	}
	if resp := h.JSON(t, http.MethodGet, "/users/me", "x", nil); resp.Code != http.StatusServiceUnavailable {
		t.Errorf("after cleanup = %d, want 503", resp.Code)
	}
}
