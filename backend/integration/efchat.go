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

// Package integration embeds the MLS delivery service into an existing
// efchat server.
package integration

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/efchatnet/mlsds/backend/delivery"
	"github.com/efchatnet/mlsds/backend/handlers"
	"github.com/efchatnet/mlsds/backend/middleware"
	"github.com/efchatnet/mlsds/backend/storage"
	rnotify "github.com/efchatnet/mlsds/backend/storage/redis"
	"github.com/efchatnet/mlsds/backend/validator"
)

// MLSIntegration provides the delivery service as a plugin for efchat.
type MLSIntegration struct {
	service   *delivery.Service
	store     storage.Store
	jwtSecret string
	jwtIssuer string
}

// Config holds configuration for the MLS integration. Store is required;
// everything else is optional.
type Config struct {
	Store storage.Store
	// Redis, when set, receives a notification for every stored message.
	Redis *redis.Client
	// Validation is "strict" or "passthrough".
	Validation string
	JWTSecret  string
	JWTIssuer  string
	Logger     *zerolog.Logger
	// Registerer, when set, receives the service metrics.
	Registerer prometheus.Registerer
}

// NewMLSIntegration wires a delivery service over config.Store.
func NewMLSIntegration(config *Config) (*MLSIntegration, error) {
	if config.Store == nil {
		return nil, &ValidationError{Message: "store is not configured"}
	}
	v, err := validator.New(config.Validation)
	if err != nil {
		return nil, err
	}

	var opts []delivery.Option
	if config.Logger != nil {
		opts = append(opts, delivery.WithLogger(*config.Logger))
	}
	if config.Registerer != nil {
		opts = append(opts, delivery.WithMetrics(delivery.NewMetrics(config.Registerer)))
	}
	if config.Redis != nil {
		opts = append(opts, delivery.WithNotifier(rnotify.NewNotifier(config.Redis)))
	}

	return &MLSIntegration{
		service:   delivery.New(config.Store, v, opts...),
		store:     config.Store,
		jwtSecret: config.JWTSecret,
		jwtIssuer: config.JWTIssuer,
	}, nil
}

// RegisterRoutes adds the delivery routes under /api/mls. If
// authMiddleware is nil the built-in JWT validation is used, or none at
// all when no secret is configured.
func (e *MLSIntegration) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	api := router.PathPrefix("/api/mls").Subrouter()

	switch {
	case authMiddleware != nil:
		api.Use(authMiddleware)
	case e.jwtSecret != "":
		api.Use(middleware.NewAuthMiddleware(e.jwtSecret, e.jwtIssuer))
	}

	handlers.Register(api, e.service)
}

// Service returns the underlying delivery service.
func (e *MLSIntegration) Service() *delivery.Service {
	return e.service
}

// HealthHandler reports store reachability.
func (e *MLSIntegration) HealthHandler() http.HandlerFunc {
	return handlers.Health(e.service)
}

// ValidateSetup checks that the store answers and auth is configured.
func (e *MLSIntegration) ValidateSetup(ctx context.Context) error {
	if err := e.service.Ping(ctx); err != nil {
		return err
	}
	if e.jwtSecret == "" {
		return &ValidationError{Message: "JWT secret is not configured"}
	}
	return nil
}

// Close releases the store.
func (e *MLSIntegration) Close() error {
	return e.store.Close()
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidationError reports whether err is a configuration error.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
