// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/everly/internal/api"
	"github.com/tomtom215/everly/internal/cache"
	"github.com/tomtom215/everly/internal/config"
	"github.com/tomtom215/everly/internal/container"
	"github.com/tomtom215/everly/internal/eventbus"
	"github.com/tomtom215/everly/internal/logging"
	"github.com/tomtom215/everly/internal/module"
	"github.com/tomtom215/everly/internal/modules"
	"github.com/tomtom215/everly/internal/modules/guard"
	"github.com/tomtom215/everly/internal/store"
	"github.com/tomtom215/everly/internal/supervisor"
	"github.com/tomtom215/everly/internal/supervisor/services"
	"github.com/tomtom215/everly/internal/websocket"
)

const healthPollInterval = 30 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Everly HTTP API",
		Long: `Start the Everly HTTP API.

Startup opens the document store, registers and initializes every module in
dependency order and then starts the supervision tree. Configuration errors
(duplicate module, missing dependency, dependency cycle) and module
initialization failures abort before any listener opens. SIGINT and SIGTERM
stop the tree, clean up the modules and close the store.

Examples:
  everly serve
  everly serve --port 9000 --log-level debug
  everly serve --config /etc/everly/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen address (default 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default 8000)")
	return cmd
}

//nolint:gocyclo // sequential startup steps
func runServer(ctx context.Context, cfg *config.Config) (err error) {
	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("addr", cfg.Server.Addr()).
		Bool("in_memory", cfg.Database.InMemory).
		Msg("Starting Everly")

	db, err := store.Open(store.Options{Path: cfg.Database.Path, InMemory: cfg.Database.InMemory})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logging.Error().Err(cerr).Msg("Error closing store")
		}
	}()

	var shared cache.Cacher
	if cfg.Cache.Enabled {
		c := cache.New(cfg.Cache.DefaultTTL)
		defer func() { _ = c.Close() }()
		shared = c
	}

	bus := eventbus.New()
	mgr := module.NewManager(bus, container.New())
	if err := modules.RegisterAll(mgr, cfg); err != nil {
		return err
	}
	if err := mgr.InitializeAll(ctx, db, shared); err != nil {
		return fmt.Errorf("initialize modules: %w", err)
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if cerr := mgr.CleanupAll(cleanupCtx); cerr != nil {
			logging.Error().Err(cerr).Msg("Module cleanup finished with errors")
		}
		bus.Wait()
	}()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	var routerOpts api.RouterOptions
	if cfg.Events.Forward {
		transport, err := eventbus.NewTransport(eventbus.TransportConfig{
			NATSURL:    cfg.Events.NATSURL,
			ClientName: "everly",
		}, logging.NewWatermillAdapter())
		if err != nil {
			return err
		}
		defer func() {
			if cerr := transport.Close(); cerr != nil {
				logging.Error().Err(cerr).Msg("Error closing event transport")
			}
		}()
		logging.Info().Str("transport", transport.Kind).Msg("Event forwarding enabled")

		g, err := guard.FromContainer(mgr.Container())
		if err != nil {
			return err
		}
		hub := websocket.NewHub()
		tree.AddMessagingService(hub)
		tree.AddMessagingService(websocket.NewRelay(transport.Subscriber, hub))
		tree.AddMessagingService(services.NewForwarderService(eventbus.NewForwarder(transport.Publisher), bus))
		routerOpts.WebSocket = websocket.NewHandler(hub, cfg.Security.CORSOrigins).Routes(g)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(cfg, mgr, routerOpts),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    1 << 20,
	}
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))
	tree.AddAPIService(services.NewHealthMonitorService(mgr, healthPollInterval))

	logging.Info().Str("addr", srv.Addr).Str("api", cfg.Server.APIPrefix).Msg("Everly listening")

	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, u := range report {
			logging.Warn().Str("service", u.Name).Msg("Service did not stop in time")
		}
	}
	logging.Info().Msg("Supervisor tree stopped")

	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
