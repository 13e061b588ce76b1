// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

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

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/efchatnet/mlsds/backend/config"
	"github.com/efchatnet/mlsds/backend/integration"
	"github.com/efchatnet/mlsds/backend/logging"
	"github.com/efchatnet/mlsds/backend/middleware"
	"github.com/efchatnet/mlsds/backend/storage"
	"github.com/efchatnet/mlsds/backend/storage/boltdb"
	"github.com/efchatnet/mlsds/backend/storage/memory"
	"github.com/efchatnet/mlsds/backend/storage/postgres"
	rnotify "github.com/efchatnet/mlsds/backend/storage/redis"
)

const shutdownTimeout = 15 * time.Second

func newRootCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:           "mlsds",
		Short:         "MLS delivery service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"path to a TOML configuration file")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.DriverPostgres {
				return fmt.Errorf("migrate: store driver is %q, not postgres", cfg.StoreDriver)
			}
			store, err := postgres.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.MigrateContext(cmd.Context())
		},
	})
	return cmd
}

// openStore opens the configured backend. Postgres is migrated on open.
func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := store.MigrateContext(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return store, nil
	case config.DriverBolt:
		return boltdb.Open(cfg.BoltPath)
	case config.DriverMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func serve(ctx context.Context, cfg config.Config) error {
	log, err := logging.New("mlsds", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = rnotify.Connect(ctx, cfg.RedisURL)
		if err != nil {
			store.Close()
			return err
		}
		defer rdb.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mls, err := integration.NewMLSIntegration(&integration.Config{
		Store:      store,
		Redis:      rdb,
		Validation: cfg.Validation,
		JWTSecret:  cfg.JWTSecret,
		JWTIssuer:  cfg.JWTIssuer,
		Logger:     &log,
		Registerer: reg,
	})
	if err != nil {
		store.Close()
		return err
	}
	defer mls.Close()

	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET not set, API is unauthenticated")
	}

	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(log, middleware.NewHTTPMetrics(reg)))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.HandleFunc("/health", mls.HealthHandler()).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	mls.RegisterRoutes(r, nil)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           middleware.CORS(cfg.AllowedOrigins)(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Str("store", cfg.StoreDriver).
			Bool("notify", rdb != nil).
			Msg("server starting")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		logger.Fatal().Err(err).Msg("mlsds failed")
	}
}
