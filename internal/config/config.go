// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

// Package config loads Everly's configuration.
//
// Values are layered with koanf: struct defaults, then an optional YAML file
// (CONFIG_PATH, ./config.yaml, /etc/everly/config.yaml), then a fixed set of
// environment variables. The merged result is validated before it is returned.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Database   DatabaseConfig   `koanf:"database"`
	Cache      CacheConfig      `koanf:"cache"`
	Auth       AuthConfig       `koanf:"auth"`
	Users      UsersConfig      `koanf:"users"`
	Diaries    DiariesConfig    `koanf:"diaries"`
	Media      MediaConfig      `koanf:"media"`
	Events     EventsConfig     `koanf:"events"`
	Security   SecurityConfig   `koanf:"security"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Environment     string        `koanf:"environment"`
	BaseURL         string        `koanf:"base_url"`
	APIPrefix       string        `koanf:"api_prefix"`
	StaticDir       string        `koanf:"static_dir"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsProduction reports whether production checks apply.
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig configures the Badger document store.
type DatabaseConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// CacheConfig configures the shared in-process cache.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
}

// AuthConfig configures Google sign-in and access tokens.
type AuthConfig struct {
	JWTSecret          string        `koanf:"jwt_secret"`
	AccessTokenTTL     time.Duration `koanf:"access_token_ttl"`
	GoogleClientID     string        `koanf:"google_client_id"`
	GoogleClientSecret string        `koanf:"google_client_secret"`
	GoogleIssuer       string        `koanf:"google_issuer"`
	GoogleRedirectURL  string        `koanf:"google_redirect_url"`
	AdminEmails        []string      `koanf:"admin_emails"`
	VerifyRatePerSec   float64       `koanf:"verify_rate_per_sec"`
	VerifyBurst        int           `koanf:"verify_burst"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
	BreakerFailures    uint32        `koanf:"breaker_failures"`
}

// UsersConfig configures profile picture uploads.
type UsersConfig struct {
	ProfileUploadPath   string   `koanf:"profile_upload_path"`
	MaxProfileImageSize int64    `koanf:"max_profile_image_size"`
	AllowedImageTypes   []string `koanf:"allowed_image_types"`
}

// DiariesConfig configures paging, search and caching of diaries.
type DiariesConfig struct {
	DefaultPageSize   int           `koanf:"default_page_size"`
	MaxPageSize       int           `koanf:"max_page_size"`
	SearchResultLimit int           `koanf:"search_result_limit"`
	DefaultRadiusKm   float64       `koanf:"default_radius_km"`
	ListCacheTTL      time.Duration `koanf:"list_cache_ttl"`
}

// MediaConfig configures media uploads.
type MediaConfig struct {
	UploadPath        string   `koanf:"upload_path"`
	MaxFileSize       int64    `koanf:"max_file_size"`
	AllowedImageTypes []string `koanf:"allowed_image_types"`
	AllowedVideoTypes []string `koanf:"allowed_video_types"`
	AllowedAudioTypes []string `koanf:"allowed_audio_types"`
}

// EventsConfig configures forwarding of domain events.
type EventsConfig struct {
	Forward bool   `koanf:"forward"`
	NATSURL string `koanf:"nats_url"`
}

// SecurityConfig configures CORS, rate limits and authorization.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	PolicyPath        string        `koanf:"policy_path"`
}

// SupervisorConfig mirrors supervisor.TreeConfig.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// devJWTSecret is accepted only outside production.
const devJWTSecret = "everly-development-secret-change-me"

var (
	ErrMissingJWTSecret = errors.New("auth.jwt_secret is required in production")
	ErrWeakJWTSecret    = errors.New("auth.jwt_secret must be at least 32 characters")
)

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if len(c.Server.APIPrefix) < 2 || !strings.HasPrefix(c.Server.APIPrefix, "/") {
		errs = append(errs, fmt.Errorf("server.api_prefix %q must be a path below /", c.Server.APIPrefix))
	}

	switch {
	case c.Auth.JWTSecret == "":
		errs = append(errs, ErrMissingJWTSecret)
	case c.Server.IsProduction() && c.Auth.JWTSecret == devJWTSecret:
		errs = append(errs, ErrMissingJWTSecret)
	case c.Server.IsProduction() && len(c.Auth.JWTSecret) < 32:
		errs = append(errs, ErrWeakJWTSecret)
	}
	if c.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("auth.access_token_ttl must be positive"))
	}

	if !c.Database.InMemory && c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required unless database.in_memory is set"))
	}

	if c.Diaries.DefaultPageSize < 1 || c.Diaries.MaxPageSize < c.Diaries.DefaultPageSize {
		errs = append(errs, fmt.Errorf("diaries page sizes invalid: default %d, max %d",
			c.Diaries.DefaultPageSize, c.Diaries.MaxPageSize))
	}
	if c.Diaries.SearchResultLimit < 1 {
		errs = append(errs, errors.New("diaries.search_result_limit must be positive"))
	}
	if c.Media.MaxFileSize <= 0 || c.Users.MaxProfileImageSize <= 0 {
		errs = append(errs, errors.New("upload size limits must be positive"))
	}

	return errors.Join(errs...)
}
