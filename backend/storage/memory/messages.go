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

func cloneMessage(m models.Message) models.Message {
	m.Proposal = cloneBytes(m.Proposal)
	m.Commit = cloneBytes(m.Commit)
	m.Welcome = cloneBytes(m.Welcome)
	if m.Epoch != nil {
		e := *m.Epoch
		m.Epoch = &e
	}
	if m.Recipients != nil {
		m.Recipients = append([]uuid.UUID(nil), m.Recipients...)
	}
	return m
}

func sortOldestFirst(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		return storage.OldestFirst(msgs[i].CreatedAt, msgs[j].CreatedAt, msgs[i].ID, msgs[j].ID)
	})
}

func (s *Store) InsertMessage(ctx context.Context, m *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[m.ID]; ok {
		return storage.ErrDuplicateID
	}
	s.messages[m.ID] = cloneMessage(*m)
	return nil
}

func (s *Store) ApplyCommit(ctx context.Context, m *models.Message, expectedEpoch uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Epoch == nil {
		return storage.ErrEpochConflict
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[m.GroupID]
	if !ok {
		return storage.ErrNotFound
	}
	if !g.IsActive {
		return storage.ErrGroupInactive
	}
	if g.Epoch != expectedEpoch {
		return storage.ErrEpochConflict
	}
	if _, ok := s.messages[m.ID]; ok {
		return storage.ErrDuplicateID
	}
	g.Epoch = *m.Epoch
	g.UpdatedAt = s.now().UTC()
	s.groups[g.ID] = g
	s.messages[m.ID] = cloneMessage(*m)
	return nil
}

func (s *Store) ListMessagesByGroup(ctx context.Context, groupID uuid.UUID, includeRead bool) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Message
	for _, m := range s.messages {
		if m.GroupID == groupID && (includeRead || !m.Read) {
			out = append(out, cloneMessage(m))
		}
	}
	sortOldestFirst(out)
	return out, nil
}

func (s *Store) ListWelcomesForClient(ctx context.Context, clientID uuid.UUID, includeRead bool) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Message
	for _, m := range s.messages {
		if m.Kind == models.KindWelcome && m.AddressedTo(clientID) && (includeRead || !m.Read) {
			out = append(out, cloneMessage(m))
		}
	}
	sortOldestFirst(out)
	return out, nil
}

func (s *Store) MarkMessagesRead(ctx context.Context, ids []uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range ids {
		m, ok := s.messages[id]
		if !ok {
			continue
		}
		if !m.Read {
			m.Read = true
			s.messages[id] = m
		}
		n++
	}
	return n, nil
}
