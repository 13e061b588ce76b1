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

// Package memory is an in-process Store for tests and single-node trials.
// One lock guards every map, so each call is a transaction.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efchatnet/mlsds/backend/models"
	"github.com/efchatnet/mlsds/backend/storage"
)

type Store struct {
	mu sync.RWMutex

	clients     map[uuid.UUID]models.Client
	keyPackages map[uuid.UUID]models.KeyPackage
	groups      map[uuid.UUID]models.Group
	memberships map[uuid.UUID]models.Membership
	messages    map[uuid.UUID]models.Message

	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for last_seen, updated_at and
// removed_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		clients:     make(map[uuid.UUID]models.Client),
		keyPackages: make(map[uuid.UUID]models.KeyPackage),
		groups:      make(map[uuid.UUID]models.Group),
		memberships: make(map[uuid.UUID]models.Membership),
		messages:    make(map[uuid.UUID]models.Message),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (s *Store) InsertClient(ctx context.Context, c *models.Client) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[c.ID]; ok {
		return storage.ErrDuplicateID
	}
	cp := *c
	cp.Credential = cloneBytes(c.Credential)
	cp.InitKey = cloneBytes(c.InitKey)
	s.clients[c.ID] = cp
	return nil
}

func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c.Credential = cloneBytes(c.Credential)
	c.InitKey = cloneBytes(c.InitKey)
	return &c, nil
}

func (s *Store) ListClientsByUser(ctx context.Context, userID uuid.UUID) ([]models.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Client
	for _, c := range s.clients {
		if c.UserID == userID {
			c.Credential = cloneBytes(c.Credential)
			c.InitKey = cloneBytes(c.InitKey)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return storage.NewestFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *Store) TouchClient(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok {
		return storage.ErrNotFound
	}
	c.LastSeen = s.now().UTC()
	s.clients[id] = c
	return nil
}
