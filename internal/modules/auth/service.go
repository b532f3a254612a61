// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	authn "github.com/tomtom215/everly/internal/auth"
	"github.com/tomtom215/everly/internal/cache"
	"github.com/tomtom215/everly/internal/eventbus"
	"github.com/tomtom215/everly/internal/models"
	"github.com/tomtom215/everly/internal/store"
)

// Cache keys.
const (
	tokenKeyPrefix   = "auth_token:"
	revokedKeyPrefix = "auth_revoked:"
)

// TokenType is the token_type of login responses.
const TokenType = "bearer"

// LoginResult is the response of a successful Google sign-in.
type LoginResult struct {
	AccessToken string            `json:"access_token"`
	TokenType   string            `json:"token_type"`
	ExpiresIn   int64             `json:"expires_in"`
	User        models.UserOutput `json:"user"`
	Created     bool              `json:"-"`
}

// Service implements sign-in, logout and bearer authentication.
type Service struct {
	jwt         *authn.JWTManager
	users       *UserStore
	verifier    authn.GoogleVerifier
	cache       cache.Cacher
	bus         *eventbus.Bus
	adminEmails []string
}

var _ authn.Authenticator = (*Service)(nil)

// LoginWithGoogle verifies a Google ID token, finds or creates the user and
// issues an access token.
func (s *Service) LoginWithGoogle(ctx context.Context, idToken string) (*LoginResult, error) {
	if s.verifier == nil {
		return nil, fmt.Errorf("%w: google sign-in is not configured", authn.ErrAuthenticatorUnavailable)
	}

	identity, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}

	user, created, err := s.users.FindOrCreateGoogleUser(ctx, identity, s.adminEmails)
	if err != nil {
		return nil, fmt.Errorf("find or create user: %w", err)
	}
	if !user.IsActive {
		return nil, authn.ErrInactiveUser
	}

	token, claims, err := s.jwt.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetWithTTL(tokenKeyPrefix+user.ID, claims.ID, s.jwt.TTL())
	}

	if created {
		s.bus.Publish(ctx, eventbus.NewEvent(eventbus.UserCreated, ModuleName, map[string]any{
			"user_id": user.ID,
			"email":   user.Email,
		}))
	}
	s.bus.Publish(ctx, eventbus.NewEvent(eventbus.UserLogin, ModuleName, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
		"new":     created,
	}))

	return &LoginResult{
		AccessToken: token,
		TokenType:   TokenType,
		ExpiresIn:   int64(s.jwt.TTL() / time.Second),
		User:        user.Output(),
		Created:     created,
	}, nil
}

// Logout drops the cached token of the principal and revokes its token id
// for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, p *authn.Principal) {
	if s.cache == nil || p == nil {
		return
	}
	s.cache.Delete(tokenKeyPrefix + p.UserID)
	if p.TokenID != "" {
		s.cache.SetWithTTL(revokedKeyPrefix+p.TokenID, true, s.jwt.TTL())
	}
}

// Authenticate validates a bearer token and resolves the active user.
func (s *Service) Authenticate(ctx context.Context, token string) (*authn.Principal, error) {
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if _, revoked := s.cache.Get(revokedKeyPrefix + claims.ID); revoked {
			return nil, authn.ErrRevokedCredentials
		}
	}

	user, err := s.users.Get(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", authn.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%w: %v", authn.ErrAuthenticatorUnavailable, err)
	}
	if !user.IsActive {
		return nil, authn.ErrInactiveUser
	}

	return &authn.Principal{
		UserID:  user.ID,
		Email:   user.Email,
		Role:    user.Role,
		TokenID: claims.ID,
	}, nil
}
