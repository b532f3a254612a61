// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "this_is_a_very_long_secret_key_for_testing_purposes_12345"

func TestNewJWTManager(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		ttl     time.Duration
		wantTTL time.Duration
		wantErr bool
	}{
		{name: "valid", secret: testSecret, ttl: time.Hour, wantTTL: time.Hour},
		{name: "default ttl", secret: testSecret, ttl: 0, wantTTL: DefaultTokenTTL},
		{name: "empty secret", secret: "", ttl: time.Hour, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewJWTManager(tt.secret, tt.ttl)
			if tt.wantErr {
				if err == nil {
					t.Error("NewJWTManager() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewJWTManager() unexpected error = %v", err)
			}
			if m.TTL() != tt.wantTTL {
				t.Errorf("TTL() = %v, want %v", m.TTL(), tt.wantTTL)
			}
		})
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	m, err := NewJWTManager(testSecret, 30*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	token, issued, err := m.GenerateToken("user-1", "ana@example.com", RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("token %q is not a compact JWT", token)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.UserID() != "user-1" || claims.Email != "ana@example.com" || claims.Role != RoleAdmin {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ID == "" || claims.ID != issued.ID {
		t.Errorf("jti = %q, issued %q", claims.ID, issued.ID)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 30*time.Minute {
		t.Errorf("lifetime = %v, want 30m", got)
	}

	if _, _, err := m.GenerateToken("", "x@example.com", RoleUser); err == nil {
		t.Error("GenerateToken() with empty user id should fail")
	}
}

func TestValidateToken_Rejections(t *testing.T) {
	m, _ := NewJWTManager(testSecret, time.Minute)
	other, _ := NewJWTManager("another_secret_that_is_long_enough_to_sign_tokens", time.Minute)

	expired, _ := NewJWTManager(testSecret, time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expiredToken, _, _ := expired.GenerateToken("user-1", "a@example.com", RoleUser)

	foreignToken, _, _ := other.GenerateToken("user-1", "a@example.com", RoleUser)

	noneToken, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	wrongIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer, Subject: "user-1"},
	}).SignedString([]byte(testSecret))

	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", expiredToken, ErrExpiredCredentials},
		{"wrong secret", foreignToken, ErrInvalidCredentials},
		{"alg none", noneToken, ErrInvalidCredentials},
		{"wrong issuer", wrongIssuer, ErrInvalidCredentials},
		{"missing exp", noExpiry, ErrInvalidCredentials},
		{"missing sub", noSubject, ErrInvalidCredentials},
		{"garbage", "not.a.token", ErrInvalidCredentials},
		{"empty", "", ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ValidateToken(tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("ValidateToken() error = %v, want %v", err, tt.want)
			}
		})
	}
}
