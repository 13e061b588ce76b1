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

package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/efchatnet/mlsds/backend/models"
	"github.com/efchatnet/mlsds/backend/storage"
)

func cloneGroup(g models.Group) models.Group {
	g.State = cloneBytes(g.State)
	return g
}

func cloneMembership(m models.Membership) models.Membership {
	if m.RemovedAt != nil {
		t := *m.RemovedAt
		m.RemovedAt = &t
	}
	return m
}

func (s *Store) CreateGroup(ctx context.Context, g *models.Group, creator *models.Membership) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[g.ID]; ok {
		return storage.ErrDuplicateID
	}
	if _, ok := s.memberships[creator.ID]; ok {
		return storage.ErrDuplicateID
	}
	s.groups[g.ID] = cloneGroup(*g)
	s.memberships[creator.ID] = cloneMembership(*creator)
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	g = cloneGroup(g)
	return &g, nil
}

func (s *Store) ListActiveGroupsByClient(ctx context.Context, clientID uuid.UUID) ([]models.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[uuid.UUID]bool)
	var out []models.Group
	for _, m := range s.memberships {
		if m.ClientID != clientID || !m.Active() || seen[m.GroupID] {
			continue
		}
		g, ok := s.groups[m.GroupID]
		if !ok || !g.IsActive {
			continue
		}
		seen[m.GroupID] = true
		out = append(out, cloneGroup(g))
	}
	sort.Slice(out, func(i, j int) bool {
		return storage.NewestFirst(out[i].UpdatedAt, out[j].UpdatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *Store) UpdateGroupState(ctx context.Context, id uuid.UUID, state []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return storage.ErrNotFound
	}
	if !g.IsActive {
		return storage.ErrGroupInactive
	}
	g.State = cloneBytes(state)
	g.UpdatedAt = s.now().UTC()
	s.groups[id] = g
	return nil
}

func (s *Store) DeactivateGroup(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return storage.ErrNotFound
	}
	if g.IsActive {
		g.IsActive = false
		g.UpdatedAt = s.now().UTC()
		s.groups[id] = g
	}
	return nil
}

func (s *Store) AddMembership(ctx context.Context, m *models.Membership) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.memberships[m.ID]; ok {
		return storage.ErrDuplicateID
	}
	for _, existing := range s.memberships {
		if existing.GroupID == m.GroupID && existing.ClientID == m.ClientID && existing.Active() {
			return storage.ErrDuplicateMembership
		}
	}
	s.memberships[m.ID] = cloneMembership(*m)
	return nil
}

func (s *Store) GetMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memberships[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	m = cloneMembership(m)
	return &m, nil
}

func (s *Store) RemoveMembership(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memberships[id]
	if !ok {
		return storage.ErrNotFound
	}
	if m.RemovedAt == nil {
		now := s.now().UTC()
		m.RemovedAt = &now
		s.memberships[id] = m
	}
	return nil
}

func (s *Store) ListMembershipsByGroup(ctx context.Context, groupID uuid.UUID) ([]models.Membership, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Membership
	for _, m := range s.memberships {
		if m.GroupID == groupID {
			out = append(out, cloneMembership(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return storage.OldestFirst(out[i].AddedAt, out[j].AddedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *Store) ListActiveMembershipsByClient(ctx context.Context, clientID uuid.UUID) ([]models.Membership, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Membership
	for _, m := range s.memberships {
		if m.ClientID == clientID && m.Active() {
			out = append(out, cloneMembership(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return storage.OldestFirst(out[i].AddedAt, out[j].AddedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}
