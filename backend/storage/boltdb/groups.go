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

package boltdb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/efchatnet/mlsds/backend/models"
	"github.com/efchatnet/mlsds/backend/storage"
)

func (s *Store) CreateGroup(ctx context.Context, g *models.Group, creator *models.Membership) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		if err := s.insert(tx, groupsBucket, g.ID, g); err != nil {
			return err
		}
		return s.insert(tx, membershipsBucket, creator.ID, creator)
	})
}

func (s *Store) GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	var g models.Group
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return get(tx, groupsBucket, id, &g)
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) ListActiveGroupsByClient(ctx context.Context, clientID uuid.UUID) ([]models.Group, error) {
	var out []models.Group
	err := s.view(ctx, func(tx *bolt.Tx) error {
		seen := make(map[uuid.UUID]bool)
		return scan(tx, membershipsBucket, func(m *models.Membership) error {
			if m.ClientID != clientID || !m.Active() || seen[m.GroupID] {
				return nil
			}
			var g models.Group
			switch err := get(tx, groupsBucket, m.GroupID, &g); err {
			case nil:
			case storage.ErrNotFound:
				return nil
			default:
				return err
			}
			if g.IsActive {
				seen[g.ID] = true
				out = append(out, g)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return storage.NewestFirst(out[i].UpdatedAt, out[j].UpdatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *Store) UpdateGroupState(ctx context.Context, id uuid.UUID, state []byte) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		var g models.Group
		if err := get(tx, groupsBucket, id, &g); err != nil {
			return err
		}
		if !g.IsActive {
			return storage.ErrGroupInactive
		}
		g.State = state
		g.UpdatedAt = s.now().UTC()
		return s.put(tx, groupsBucket, id, &g)
	})
}

func (s *Store) DeactivateGroup(ctx context.Context, id uuid.UUID) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		var g models.Group
		if err := get(tx, groupsBucket, id, &g); err != nil {
			return err
		}
		if !g.IsActive {
			return nil
		}
		g.IsActive = false
		g.UpdatedAt = s.now().UTC()
		return s.put(tx, groupsBucket, id, &g)
	})
}

func (s *Store) AddMembership(ctx context.Context, m *models.Membership) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		err := scan(tx, membershipsBucket, func(existing *models.Membership) error {
			if existing.GroupID == m.GroupID && existing.ClientID == m.ClientID && existing.Active() {
				return storage.ErrDuplicateMembership
			}
			return nil
		})
		if err != nil {
			return err
		}
		return s.insert(tx, membershipsBucket, m.ID, m)
	})
}

func (s *Store) GetMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return get(tx, membershipsBucket, id, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) RemoveMembership(ctx context.Context, id uuid.UUID) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		var m models.Membership
		if err := get(tx, membershipsBucket, id, &m); err != nil {
			return err
		}
		if m.RemovedAt != nil {
			return nil
		}
		now := s.now().UTC()
		m.RemovedAt = &now
		return s.put(tx, membershipsBucket, id, &m)
	})
}

func (s *Store) listMemberships(ctx context.Context, keep func(*models.Membership) bool) ([]models.Membership, error) {
	var out []models.Membership
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return scan(tx, membershipsBucket, func(m *models.Membership) error {
			if keep(m) {
				out = append(out, *m)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return storage.OldestFirst(out[i].AddedAt, out[j].AddedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *Store) ListMembershipsByGroup(ctx context.Context, groupID uuid.UUID) ([]models.Membership, error) {
	return s.listMemberships(ctx, func(m *models.Membership) bool {
		return m.GroupID == groupID
	})
}

func (s *Store) ListActiveMembershipsByClient(ctx context.Context, clientID uuid.UUID) ([]models.Membership, error) {
	return s.listMemberships(ctx, func(m *models.Membership) bool {
		return m.ClientID == clientID && m.Active()
	})
}
