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

// Package delivery implements the MLS delivery service: it stores and
// relays key packages, proposals, commits and welcomes without reading
// their contents, and enforces the bookkeeping rules around them.
//
// The Service holds no mutable state of its own. Every operation may run
// concurrently; ordering and atomicity come from the storage.Store.
package delivery

import (
	"context"
	"crypto/rand"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/efchatnet/mlsds/backend/models"
	"github.com/efchatnet/mlsds/backend/storage"
	"github.com/efchatnet/mlsds/backend/validator"
)

// Notifier is told about every stored message. Failures are logged and
// never fail the operation.
type Notifier interface {
	Notify(ctx context.Context, m *models.Message) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, *models.Message) error { return nil }

type Service struct {
	store     storage.Store
	validator validator.Validator
	log       zerolog.Logger
	notifier  Notifier
	metrics   *Metrics
	now       func() time.Time
	newID     func() uuid.UUID
	rand      io.Reader
}

type Option func(*Service)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDs replaces uuid.New as the id source.
func WithIDs(newID func() uuid.UUID) Option {
	return func(s *Service) { s.newID = newID }
}

// WithRandom sets the entropy source for generated init keys.
func WithRandom(r io.Reader) Option {
	return func(s *Service) { s.rand = r }
}

func New(store storage.Store, v validator.Validator, opts ...Option) *Service {
	s := &Service{
		store:     store,
		validator: v,
		log:       zerolog.Nop(),
		notifier:  nopNotifier{},
		now:       time.Now,
		newID:     uuid.New,
		rand:      rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return &Error{Kind: KindUnavailable, Op: "Ping", Detail: "store unavailable", Err: err}
	}
	return nil
}

func (s *Service) track(op string, start time.Time, err *error) {
	s.metrics.observe(op, start, *err)
	if *err != nil && KindOf(*err) == KindInternal {
		s.log.Error().Err(*err).Str("op", op).Msg("operation failed")
	}
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}

func (s *Service) notify(ctx context.Context, m *models.Message) {
	if err := s.notifier.Notify(ctx, m); err != nil {
		s.log.Warn().Err(err).
			Str("message_id", m.ID.String()).
			Str("group_id", m.GroupID.String()).
			Msg("failed to publish notification")
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
