// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

// Package moduletest runs feature modules against an in-memory store behind
// a real module manager, with the auth module signed in through a fake
// Google verifier.
package moduletest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"

	authn "github.com/tomtom215/everly/internal/auth"
	"github.com/tomtom215/everly/internal/cache"
	"github.com/tomtom215/everly/internal/config"
	"github.com/tomtom215/everly/internal/container"
	"github.com/tomtom215/everly/internal/eventbus"
	"github.com/tomtom215/everly/internal/module"
	authmod "github.com/tomtom215/everly/internal/modules/auth"
	"github.com/tomtom215/everly/internal/store"
)

// Verifier accepts Google tokens of the form "google:<name>" as the
// identity <name>@example.com.
type Verifier struct{}

// Verify implements auth.GoogleVerifier.
func (Verifier) Verify(_ context.Context, token string) (*authn.GoogleIdentity, error) {
	var name string
	if _, err := fmt.Sscanf(token, "google:%s", &name); err != nil || name == "" {
		return nil, fmt.Errorf("%w: malformed token", authn.ErrInvalidCredentials)
	}
	return &authn.GoogleIdentity{
		Subject:       "g-" + name,
		Email:         name + "@example.com",
		EmailVerified: true,
		Name:          name,
	}, nil
}

// Config returns a configuration with uploads and static files in
// temporary directories, rate limits off and admin@example.com as admin.
func Config(t testing.TB) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.BaseURL = "http://everly.test"
	cfg.Server.StaticDir = dir
	cfg.Users.ProfileUploadPath = filepath.Join(dir, "uploads", "profiles")
	cfg.Media.UploadPath = filepath.Join(dir, "uploads", "media")
	cfg.Security.RateLimitDisabled = true
	cfg.Auth.AdminEmails = []string{"admin@example.com"}
	return cfg
}

// Harness is an initialized module manager.
type Harness struct {
	Config  *config.Config
	Store   *store.Store
	Cache   *cache.Cache
	Bus     *eventbus.Bus
	Manager *module.Manager
	Router  http.Handler
}

// Start registers the auth module followed by mods, initializes them all
// and builds the main router. Everything is torn down with the test.
func Start(t testing.TB, cfg *config.Config, mods ...module.Module) *Harness {
	t.Helper()

	db, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	ch := cache.New(time.Minute)
	bus := eventbus.New()
	mgr := module.NewManager(bus, container.New())

	if err := mgr.Register(authmod.New(cfg, authmod.WithGoogleVerifier(Verifier{}))); err != nil {
		t.Fatalf("Register(auth) error = %v", err)
	}
	for _, m := range mods {
		if err := mgr.Register(m); err != nil {
			t.Fatalf("Register(%s) error = %v", m.Name(), err)
		}
	}
	if err := mgr.InitializeAll(context.Background(), db, ch); err != nil {
		t.Fatalf("InitializeAll() error = %v", err)
	}

	t.Cleanup(func() {
		bus.Wait()
		_ = mgr.CleanupAll(context.Background())
		_ = ch.Close()
		_ = db.Close()
	})

	return &Harness{
		Config:  cfg,
		Store:   db,
		Cache:   ch,
		Bus:     bus,
		Manager: mgr,
		Router:  mgr.CreateMainRouter(),
	}
}

// Session is a signed-in user.
type Session struct {
	UserID string
	Email  string
	Role   string
	Token  string
}

// Login signs name in through POST /auth/google.
func (h *Harness) Login(t testing.TB, name string) Session {
	t.Helper()
	resp := h.JSON(t, http.MethodPost, "/auth/google", "", map[string]string{"token": "google:" + name})
	if resp.Code != http.StatusOK {
		t.Fatalf("login %s: status %d, body %s", name, resp.Code, resp.Body)
	}
	var out struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}
	resp.Decode(t, &out)
	return Session{UserID: out.User.ID, Email: out.User.Email, Role: out.User.Role, Token: out.AccessToken}
}

// Response is a decoded envelope response.
type Response struct {
	Code   int         `json:"-"`
	Header http.Header `json:"-"`
	Body   string      `json:"-"`

	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
	Meta *struct {
		Pagination *struct {
			CurrentPage    int `json:"current_page"`
			TotalPages     int `json:"total_pages"`
			TotalEntries   int `json:"total_entries"`
			EntriesPerPage int `json:"entries_per_page"`
		} `json:"pagination"`
	} `json:"meta"`
}

// Decode unmarshals the data field into v.
func (r *Response) Decode(t testing.TB, v any) {
	t.Helper()
	if err := json.Unmarshal(r.Data, v); err != nil {
		t.Fatalf("decode data: %v (body %s)", err, r.Body)
	}
}

// ErrorCode returns the error code, or "" for a success.
func (r *Response) ErrorCode() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Code
}

// JSON sends body encoded as JSON. A nil body sends no body.
func (h *Harness) JSON(t testing.TB, method, path, token string, body any) *Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
		rd = &buf
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return h.Do(t, req, token)
}

// Upload sends data as the multipart file field "file".
func (h *Harness) Upload(t testing.TB, method, path, token, filename, contentType string, data []byte) *Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return h.Do(t, req, token)
}

// Do serves req through the main router with token as bearer credential.
func (h *Harness) Do(t testing.TB, req *http.Request, token string) *Response {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.Router.ServeHTTP(rec, req)

	resp := &Response{Code: rec.Code, Header: rec.Header(), Body: rec.Body.String()}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), resp); err != nil {
			t.Fatalf("%s %s: decode body: %v (body %q)", req.Method, req.URL.Path, err, rec.Body.String())
		}
	}
	return resp
}

// PNG is a minimal payload detected as image/png.
var PNG = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)
