// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package main

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/tomtom215/everly/internal/api"
	"github.com/tomtom215/everly/internal/config"
	"github.com/tomtom215/everly/internal/container"
	"github.com/tomtom215/everly/internal/eventbus"
	"github.com/tomtom215/everly/internal/module"
	"github.com/tomtom215/everly/internal/modules"
)

func newRoutesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print every HTTP route",
		Long: `Print the HTTP routes served by "everly serve" without opening the
database or starting any module.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			mgr, err := newOfflineManager(cfg)
			if err != nil {
				return err
			}
			return printRoutes(cmd.OutOrStdout(), cfg, mgr)
		},
	}
}

// newOfflineManager registers the built-in modules without initializing
// them. Configuration errors such as a dependency cycle still surface.
func newOfflineManager(cfg *config.Config) (*module.Manager, error) {
	mgr := module.NewManager(eventbus.New(), container.New())
	if err := modules.RegisterAll(mgr, cfg); err != nil {
		return nil, err
	}
	if _, err := mgr.ResolveOrder(); err != nil {
		return nil, err
	}
	return mgr, nil
}

type route struct {
	method string
	path   string
}

func collectRoutes(cfg *config.Config, mgr *module.Manager) ([]route, error) {
	routes := []route{
		{http.MethodGet, "/"},
		{http.MethodGet, "/health"},
		{http.MethodGet, "/metrics"},
		{http.MethodGet, api.DocsPath},
		{http.MethodGet, api.DocsPath + "/*"},
		{http.MethodGet, api.OpenAPIPath},
	}
	if cfg.Events.Forward {
		routes = append(routes, route{http.MethodGet, cfg.Server.APIPrefix + "/ws"})
	}

	for _, mod := range mgr.Modules() {
		r, ok := mod.Routes().(chi.Routes)
		if !ok {
			continue
		}
		prefix := cfg.Server.APIPrefix + module.RoutePrefix(mod.Name())
		err := chi.Walk(r, func(method, path string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			routes = append(routes, route{method, prefix + strings.TrimSuffix(path, "/")})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s routes: %w", mod.Name(), err)
		}
	}

	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].path != routes[j].path {
			return routes[i].path < routes[j].path
		}
		return routes[i].method < routes[j].method
	})
	return routes, nil
}

func printRoutes(w io.Writer, cfg *config.Config, mgr *module.Manager) error {
	routes, err := collectRoutes(cfg, mgr)
	if err != nil {
		return err
	}
	for _, r := range routes {
		if _, err := fmt.Fprintf(w, "%-7s %s\n", r.method, r.path); err != nil {
			return err
		}
	}
	return nil
}
