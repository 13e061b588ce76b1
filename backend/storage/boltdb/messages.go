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
	"fmt"
	"sort"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/efchatnet/mlsds/backend/models"
	"github.com/efchatnet/mlsds/backend/storage"
)

func (s *Store) InsertMessage(ctx context.Context, m *models.Message) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		return s.insert(tx, messagesBucket, m.ID, m)
	})
}

func (s *Store) ApplyCommit(ctx context.Context, m *models.Message, expectedEpoch uint64) error {
	if m.Epoch == nil {
		return storage.ErrEpochConflict
	}
	return s.update(ctx, func(tx *bolt.Tx) error {
		var g models.Group
		if err := get(tx, groupsBucket, m.GroupID, &g); err != nil {
			return err
		}
		if !g.IsActive {
			return storage.ErrGroupInactive
		}
		if g.Epoch != expectedEpoch {
			return storage.ErrEpochConflict
		}
		g.Epoch = *m.Epoch
		g.UpdatedAt = s.now().UTC()
		if err := s.put(tx, groupsBucket, g.ID, &g); err != nil {
			return err
		}
		return s.insert(tx, messagesBucket, m.ID, m)
	})
}

func (s *Store) listMessages(ctx context.Context, keep func(*models.Message) bool) ([]models.Message, error) {
	var out []models.Message
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return scan(tx, messagesBucket, func(m *models.Message) error {
			if !m.Kind.Valid() {
				return fmt.Errorf("boltdb: message %s has unknown type %q", m.ID, m.Kind)
			}
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
		return storage.OldestFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *Store) ListMessagesByGroup(ctx context.Context, groupID uuid.UUID, includeRead bool) ([]models.Message, error) {
	return s.listMessages(ctx, func(m *models.Message) bool {
		return m.GroupID == groupID && (includeRead || !m.Read)
	})
}

func (s *Store) ListWelcomesForClient(ctx context.Context, clientID uuid.UUID, includeRead bool) ([]models.Message, error) {
	return s.listMessages(ctx, func(m *models.Message) bool {
		return m.Kind == models.KindWelcome && m.AddressedTo(clientID) && (includeRead || !m.Read)
	})
}

func (s *Store) MarkMessagesRead(ctx context.Context, ids []uuid.UUID) (int, error) {
	n := 0
	err := s.update(ctx, func(tx *bolt.Tx) error {
		for _, id := range ids {
			var m models.Message
			switch err := get(tx, messagesBucket, id, &m); err {
			case nil:
			case storage.ErrNotFound:
				continue
			default:
				return err
			}
			n++
			if m.Read {
				continue
			}
			m.Read = true
			if err := s.put(tx, messagesBucket, id, &m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
