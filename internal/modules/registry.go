// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

// Package modules registers the built-in feature modules with a module
// manager.
package modules

import (
	"fmt"

	"github.com/tomtom215/everly/internal/config"
	"github.com/tomtom215/everly/internal/module"
	"github.com/tomtom215/everly/internal/modules/auth"
	"github.com/tomtom215/everly/internal/modules/diaries"
	"github.com/tomtom215/everly/internal/modules/media"
	"github.com/tomtom215/everly/internal/modules/users"
)

// Builtin returns the built-in modules in registration order.
func Builtin(cfg *config.Config, authOpts ...auth.Option) []module.Module {
	return []module.Module{
		auth.New(cfg, authOpts...),
		users.New(cfg),
		media.New(cfg),
		diaries.New(cfg),
	}
}

// RegisterAll registers every built-in module with mgr. It stops at the
// first registration error.
func RegisterAll(mgr *module.Manager, cfg *config.Config, authOpts ...auth.Option) error {
	for _, m := range Builtin(cfg, authOpts...) {
		if err := mgr.Register(m); err != nil {
			return fmt.Errorf("register %s: %w", m.Name(), err)
		}
	}
	return nil
}
