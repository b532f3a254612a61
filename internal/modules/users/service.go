// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	authn "github.com/tomtom215/everly/internal/auth"
	"github.com/tomtom215/everly/internal/config"
	"github.com/tomtom215/everly/internal/eventbus"
	"github.com/tomtom215/everly/internal/logging"
	"github.com/tomtom215/everly/internal/models"
	authmod "github.com/tomtom215/everly/internal/modules/auth"
	"github.com/tomtom215/everly/internal/store"
	"github.com/tomtom215/everly/internal/upload"
)

// CollectionUserStats holds per-user counters maintained from events.
const CollectionUserStats = "user_stats"

// ProfilesURLPath is where profile pictures are served below the base URL.
const ProfilesURLPath = "/static/uploads/profiles"

// ErrSelfDeactivation is returned when an admin tries to deactivate their
// own account.
var ErrSelfDeactivation = errors.New("cannot deactivate your own account")

type userStats struct {
	DiaryCount int `json:"diary_count"`
}

// UpdateProfileRequest is the body of PUT /me. Absent fields are kept.
type UpdateProfileRequest struct {
	FullName       *string `json:"full_name" validate:"omitempty,max=100"`
	ProfilePicture *string `json:"profile_picture" validate:"omitempty,url"`
}

// Service implements profile and account management.
type Service struct {
	users   *authmod.UserStore
	db      *store.Store
	bus     *eventbus.Bus
	cfg     config.UsersConfig
	baseURL string

	// statsMu serializes counter updates from concurrent event handlers.
	statsMu sync.Mutex
}

// Profile returns the public view of a user with their diary count.
func (s *Service) Profile(ctx context.Context, id string) (models.UserOutput, error) {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return models.UserOutput{}, err
	}
	out := u.Output()
	count, err := s.diaryCount(ctx, id)
	if err != nil {
		return models.UserOutput{}, err
	}
	out.DiaryCount = &count
	return out, nil
}

// UpdateProfile applies the fields present in req.
func (s *Service) UpdateProfile(ctx context.Context, id string, req UpdateProfileRequest) (*models.User, error) {
	var changed []string
	u, err := s.users.Update(ctx, id, func(u *models.User) error {
		changed = changed[:0]
		if req.FullName != nil {
			u.FullName = strings.TrimSpace(*req.FullName)
			changed = append(changed, "full_name")
		}
		if req.ProfilePicture != nil {
			u.ProfilePicture = *req.ProfilePicture
			changed = append(changed, "profile_picture")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishUpdated(ctx, u.ID, changed)
	return u, nil
}

// SetProfilePicture stores f as the user's profile picture and removes the
// previously uploaded one.
func (s *Service) SetProfilePicture(ctx context.Context, id string, f *upload.File) (*models.User, error) {
	if err := f.Check(s.cfg.AllowedImageTypes); err != nil {
		return nil, err
	}

	name := upload.StoredName(f.Extension("jpg"))
	if _, err := upload.Save(s.cfg.ProfileUploadPath, name, f.Data); err != nil {
		return nil, err
	}
	url := upload.URL(s.baseURL, ProfilesURLPath, name)

	var previous string
	u, err := s.users.Update(ctx, id, func(u *models.User) error {
		previous = u.ProfilePicture
		u.ProfilePicture = url
		return nil
	})
	if err != nil {
		_ = upload.Remove(s.cfg.ProfileUploadPath, name)
		return nil, err
	}

	if old := s.storedName(previous); old != "" {
		if err := upload.Remove(s.cfg.ProfileUploadPath, old); err != nil && !errors.Is(err, upload.ErrFileDoesNotExist) {
			logging.Ctx(ctx).Warn().Err(err).Str("file", old).Msg("Failed to remove previous profile picture")
		}
	}

	s.publishUpdated(ctx, u.ID, []string{"profile_picture"})
	return u, nil
}

// storedName returns the file name of a profile picture URL served by this
// instance, or "" for external URLs.
func (s *Service) storedName(url string) string {
	prefix := upload.URL(s.baseURL, ProfilesURLPath, "")
	if url == "" || !strings.HasPrefix(url, prefix) {
		return ""
	}
	name := strings.TrimPrefix(url, prefix)
	if upload.ValidateName(name) != nil {
		return ""
	}
	return name
}

// Preferences returns every stored preference.
func (s *Service) Preferences(ctx context.Context, id string) (map[string]any, error) {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Preferences == nil {
		return map[string]any{}, nil
	}
	return u.Preferences, nil
}

// MergePreferences merges prefs into the stored preferences. A null value
// removes the key.
func (s *Service) MergePreferences(ctx context.Context, id string, prefs map[string]any) (map[string]any, error) {
	u, err := s.users.Update(ctx, id, func(u *models.User) error {
		if u.Preferences == nil {
			u.Preferences = make(map[string]any, len(prefs))
		}
		for k, v := range prefs {
			if v == nil {
				delete(u.Preferences, k)
				continue
			}
			u.Preferences[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishUpdated(ctx, u.ID, []string{"preferences"})
	return u.Preferences, nil
}

// List returns every user, oldest first.
func (s *Service) List(ctx context.Context) ([]models.UserOutput, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserOutput, 0, len(users))
	for i := range users {
		out = append(out, users[i].Output())
	}
	return out, nil
}

// SetActive activates or deactivates a user on behalf of an admin.
func (s *Service) SetActive(ctx context.Context, actor *authn.Principal, id string, active bool) (*models.User, error) {
	if actor != nil && actor.UserID == id && !active {
		return nil, ErrSelfDeactivation
	}
	u, err := s.users.Update(ctx, id, func(u *models.User) error {
		u.IsActive = active
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishUpdated(ctx, u.ID, []string{"is_active"})
	return u, nil
}

func (s *Service) diaryCount(ctx context.Context, id string) (int, error) {
	var st userStats
	err := s.db.Get(ctx, CollectionUserStats, id, &st)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	return st.DiaryCount, err
}

// adjustDiaryCount adds delta to the user's diary count, never going below
// zero.
func (s *Service) adjustDiaryCount(ctx context.Context, userID string, delta int) error {
	if userID == "" {
		return errors.New("event without user_id")
	}
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.db.Update(ctx, func(tx *store.Tx) error {
		var st userStats
		if err := tx.Get(CollectionUserStats, userID, &st); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load stats: %w", err)
		}
		st.DiaryCount += delta
		if st.DiaryCount < 0 {
			st.DiaryCount = 0
		}
		return tx.Put(CollectionUserStats, userID, &st)
	})
}

func (s *Service) onDiaryCreated(ctx context.Context, e eventbus.Event) (any, error) {
	userID, _ := e.PayloadString("user_id")
	return nil, s.adjustDiaryCount(ctx, userID, 1)
}

func (s *Service) onDiaryDeleted(ctx context.Context, e eventbus.Event) (any, error) {
	userID, _ := e.PayloadString("user_id")
	return nil, s.adjustDiaryCount(ctx, userID, -1)
}

func (s *Service) publishUpdated(ctx context.Context, userID string, fields []string) {
	s.bus.Publish(ctx, eventbus.NewEvent(eventbus.UserUpdated, ModuleName, map[string]any{
		"user_id": userID,
		"fields":  fields,
	}))
}
