// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	authn "github.com/tomtom215/everly/internal/auth"
	"github.com/tomtom215/everly/internal/models"
	"github.com/tomtom215/everly/internal/store"
)

// UserStore persists users. It is shared with the users module through the
// container.
type UserStore struct {
	db *store.Store
}

// NewUserStore creates a user store over db.
func NewUserStore(db *store.Store) *UserStore {
	return &UserStore{db: db}
}

// Get loads a user by id.
func (s *UserStore) Get(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.Get(ctx, models.CollectionUsers, id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail loads a user by email, case-insensitively.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	id, err := s.db.Lookup(ctx, models.CollectionUsers, models.IndexEmail, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// List returns every user, oldest first.
func (s *UserStore) List(ctx context.Context) ([]models.User, error) {
	users, err := store.List[models.User](ctx, s.db, models.CollectionUsers, nil)
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// Update applies fn to the stored user and saves the result. The email,
// Google id and creation time cannot be changed through fn.
func (s *UserStore) Update(ctx context.Context, id string, fn func(u *models.User) error) (*models.User, error) {
	var out models.User
	err := s.db.Update(ctx, func(tx *store.Tx) error {
		var u models.User
		if err := tx.Get(models.CollectionUsers, id, &u); err != nil {
			return err
		}
		email, googleID, created := u.Email, u.GoogleID, u.CreatedAt
		if err := fn(&u); err != nil {
			return err
		}
		u.Email, u.GoogleID, u.CreatedAt = email, googleID, created
		u.UpdatedAt = time.Now().UTC()
		if err := tx.Put(models.CollectionUsers, id, &u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FindOrCreateGoogleUser resolves a verified Google identity to a user. The
// user is looked up by email, then by Google id; a missing user is created
// with role admin when its email is in adminEmails and role user otherwise.
// An existing user gets its last login updated and its Google id and
// picture backfilled when they were empty.
func (s *UserStore) FindOrCreateGoogleUser(ctx context.Context, id *authn.GoogleIdentity, adminEmails []string) (*models.User, bool, error) {
	if id == nil || id.Email == "" {
		return nil, false, errors.New("google identity without email")
	}
	email := normalizeEmail(id.Email)
	now := time.Now().UTC()

	var (
		user    models.User
		created bool
	)
	err := s.db.Update(ctx, func(tx *store.Tx) error {
		created = false
		user = models.User{}

		uid, err := tx.Lookup(models.CollectionUsers, models.IndexEmail, email)
		if errors.Is(err, store.ErrNotFound) && id.Subject != "" {
			uid, err = tx.Lookup(models.CollectionUsers, models.IndexGoogleID, id.Subject)
		}

		switch {
		case err == nil:
			if err := tx.Get(models.CollectionUsers, uid, &user); err != nil {
				return fmt.Errorf("load user %s: %w", uid, err)
			}
			if user.GoogleID == "" && id.Subject != "" {
				if err := tx.SetUnique(models.CollectionUsers, models.IndexGoogleID, id.Subject, user.ID); err != nil {
					return err
				}
				user.GoogleID = id.Subject
			}
			if user.ProfilePicture == "" && id.Picture != "" {
				user.ProfilePicture = id.Picture
			}

		case errors.Is(err, store.ErrNotFound):
			created = true
			role := authn.RoleUser
			if containsFold(adminEmails, email) {
				role = authn.RoleAdmin
			}
			user = models.User{
				ID:             uuid.NewString(),
				Email:          email,
				FullName:       id.Name,
				ProfilePicture: id.Picture,
				GoogleID:       id.Subject,
				Role:           role,
				IsActive:       true,
				Preferences:    map[string]interface{}{},
				CreatedAt:      now,
			}
			if err := tx.SetUnique(models.CollectionUsers, models.IndexEmail, email, user.ID); err != nil {
				return err
			}
			if id.Subject != "" {
				if err := tx.SetUnique(models.CollectionUsers, models.IndexGoogleID, id.Subject, user.ID); err != nil {
					return err
				}
			}

		default:
			return err
		}

		user.LastLogin = &now
		user.UpdatedAt = now
		return tx.Put(models.CollectionUsers, user.ID, &user)
	})
	if err != nil {
		return nil, false, err
	}
	return &user, created, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}
