// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package models

import "time"

// Collections and indexes of user documents.
const (
	CollectionUsers = "users"
	IndexEmail      = "email"
	IndexGoogleID   = "google_id"
)

// ProfileImagePreference is a preference key kept out of default output.
const ProfileImagePreference = "profileImage"

// User is a registered account.
type User struct {
	ID             string                 `json:"id"`
	Email          string                 `json:"email"`
	FullName       string                 `json:"full_name"`
	ProfilePicture string                 `json:"profile_picture,omitempty"`
	GoogleID       string                 `json:"google_id,omitempty"`
	Role           string                 `json:"role"`
	IsActive       bool                   `json:"is_active"`
	Preferences    map[string]interface{} `json:"preferences,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	LastLogin      *time.Time             `json:"last_login,omitempty"`
}

// UserOutput is the public view of a user.
type UserOutput struct {
	ID             string                 `json:"id"`
	Email          string                 `json:"email"`
	FullName       string                 `json:"full_name"`
	ProfilePicture string                 `json:"profile_picture,omitempty"`
	Role           string                 `json:"role"`
	IsActive       bool                   `json:"is_active"`
	CreatedAt      time.Time              `json:"created_at"`
	LastLogin      *time.Time             `json:"last_login,omitempty"`
	Preferences    map[string]interface{} `json:"preferences"`
	DiaryCount     *int                   `json:"diary_count,omitempty"`
}

// Output returns the public view. The profile image preference is omitted.
func (u *User) Output() UserOutput {
	prefs := make(map[string]interface{}, len(u.Preferences))
	for k, v := range u.Preferences {
		if k == ProfileImagePreference {
			continue
		}
		prefs[k] = v
	}
	return UserOutput{
		ID:             u.ID,
		Email:          u.Email,
		FullName:       u.FullName,
		ProfilePicture: u.ProfilePicture,
		Role:           u.Role,
		IsActive:       u.IsActive,
		CreatedAt:      u.CreatedAt,
		LastLogin:      u.LastLogin,
		Preferences:    prefs,
	}
}
