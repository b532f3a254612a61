// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

// Package authz provides role-based authorization using Casbin.
//
// Subjects are roles (user, admin; admin inherits user), objects are
// resource names such as "diaries" or "users:admin", and actions are read,
// write and delete, derived from the HTTP method. The model and default
// policy are embedded; a policy file can replace the default policy.
package authz

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/everly/internal/cache"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Actions.
const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
)

// Config configures the enforcer.
type Config struct {
	// PolicyPath is a CSV policy file. If empty, the embedded policy is used.
	PolicyPath string

	// Cache, when set, memoizes decisions. It is cleared on policy changes.
	Cache cache.Cacher
}

// Enforcer wraps a Casbin synced enforcer.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
	cache    cache.Cacher
}

// NewEnforcer creates an enforcer from the embedded model.
func NewEnforcer(cfg Config) (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" {
		if _, statErr := os.Stat(cfg.PolicyPath); statErr != nil {
			return nil, fmt.Errorf("policy file: %w", statErr)
		}
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	return &Enforcer{
		enforcer: enforcer,
		cache:    cache.WithNamespace(cfg.Cache, "authz"),
	}, nil
}

// loadPolicy parses policy CSV lines of the form "p, sub, obj, act" and
// "g, member, role".
func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for n, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		var err error
		switch {
		case parts[0] == "p" && len(parts) == 4:
			_, err = enforcer.AddPolicy(parts[1], parts[2], parts[3])
		case parts[0] == "g" && len(parts) == 3:
			_, err = enforcer.AddGroupingPolicy(parts[1], parts[2])
		default:
			err = errors.New("malformed rule")
		}
		if err != nil {
			return fmt.Errorf("policy line %d %q: %w", n+1, line, err)
		}
	}
	return nil
}

// Enforce reports whether role may perform action on object.
func (e *Enforcer) Enforce(role, object, action string) (bool, error) {
	key := role + "|" + object + "|" + action
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			if allowed, ok := v.(bool); ok {
				return allowed, nil
			}
		}
	}

	allowed, err := e.enforcer.Enforce(role, object, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}

	if e.cache != nil {
		e.cache.Set(key, allowed)
	}
	return allowed, nil
}

// AddPolicy grants role the action on object.
func (e *Enforcer) AddPolicy(role, object, action string) (bool, error) {
	added, err := e.enforcer.AddPolicy(role, object, action)
	if err != nil {
		return false, fmt.Errorf("failed to add policy: %w", err)
	}
	e.invalidate()
	return added, nil
}

// RemovePolicy revokes a grant.
func (e *Enforcer) RemovePolicy(role, object, action string) (bool, error) {
	removed, err := e.enforcer.RemovePolicy(role, object, action)
	if err != nil {
		return false, fmt.Errorf("failed to remove policy: %w", err)
	}
	e.invalidate()
	return removed, nil
}

// RolesFor returns the roles role inherits from, directly.
func (e *Enforcer) RolesFor(role string) ([]string, error) {
	return e.enforcer.GetRolesForUser(role)
}

func (e *Enforcer) invalidate() {
	if e.cache != nil {
		e.cache.Clear()
	}
}

// MethodAction maps an HTTP method to an action.
func MethodAction(method string) string {
	switch method {
	case "GET", "HEAD", "OPTIONS":
		return ActionRead
	case "DELETE":
		return ActionDelete
	default:
		return ActionWrite
	}
}
