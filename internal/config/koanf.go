// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/everly/config.yaml",
	"/etc/everly/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			Environment:     "development",
			BaseURL:         "http://localhost:8000",
			APIPrefix:       "/api/v1",
			StaticDir:       "static",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Path: "data/everly",
		},
		Cache: CacheConfig{
			Enabled:    true,
			DefaultTTL: 30 * time.Minute,
		},
		Auth: AuthConfig{
			JWTSecret:        devJWTSecret,
			AccessTokenTTL:   30 * time.Minute,
			GoogleIssuer:     "https://accounts.google.com",
			VerifyRatePerSec: 20,
			VerifyBurst:      40,
			BreakerTimeout:   30 * time.Second,
			BreakerFailures:  5,
		},
		Users: UsersConfig{
			ProfileUploadPath:   "static/uploads/profiles",
			MaxProfileImageSize: 5 << 20,
			AllowedImageTypes:   []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
		},
		Diaries: DiariesConfig{
			DefaultPageSize:   10,
			MaxPageSize:       100,
			SearchResultLimit: 50,
			DefaultRadiusKm:   10,
			ListCacheTTL:      5 * time.Minute,
		},
		Media: MediaConfig{
			UploadPath:        "static/uploads/media",
			MaxFileSize:       50 << 20,
			AllowedImageTypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
			AllowedVideoTypes: []string{"video/mp4", "video/avi", "video/quicktime", "video/x-ms-wmv"},
			AllowedAudioTypes: []string{"audio/mpeg", "audio/wav", "audio/ogg", "audio/mp3"},
		},
		Events: EventsConfig{
			Forward: true,
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, file and environment.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths may arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"auth.admin_emails",
	"users.allowed_image_types",
	"media.allowed_image_types",
	"media.allowed_video_types",
	"media.allowed_audio_types",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings lists every environment variable Everly reads. Anything else
// in the environment is ignored.
var envMappings = map[string]string{
	"http_host":        "server.host",
	"http_port":        "server.port",
	"environment":      "server.environment",
	"base_url":         "server.base_url",
	"api_prefix":       "server.api_prefix",
	"static_dir":       "server.static_dir",
	"shutdown_timeout": "server.shutdown_timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"badger_path":      "database.path",
	"badger_in_memory": "database.in_memory",

	"cache_enabled":   "cache.enabled",
	"token_cache_ttl": "cache.default_ttl",

	"jwt_secret_key":       "auth.jwt_secret",
	"access_token_ttl":     "auth.access_token_ttl",
	"google_client_id":     "auth.google_client_id",
	"google_client_secret": "auth.google_client_secret",
	"google_redirect_url":  "auth.google_redirect_url",
	"admin_emails":         "auth.admin_emails",

	"profile_upload_path":    "users.profile_upload_path",
	"max_profile_image_size": "users.max_profile_image_size",

	"diary_default_page_size": "diaries.default_page_size",
	"diary_max_page_size":     "diaries.max_page_size",
	"diary_search_limit":      "diaries.search_result_limit",

	"media_upload_path":   "media.upload_path",
	"media_max_file_size": "media.max_file_size",

	"events_forward": "events.forward",
	"nats_url":       "events.nats_url",

	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"authz_policy_path":   "security.policy_path",
}

// envTransformFunc maps an environment variable name to its koanf path, or
// returns "" to skip it.
//
//	JWT_SECRET_KEY   -> auth.jwt_secret
//	GOOGLE_CLIENT_ID -> auth.google_client_id
//	HTTP_PORT        -> server.port
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
