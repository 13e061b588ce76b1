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

func (s *Store) InsertKeyPackage(ctx context.Context, kp *models.KeyPackage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keyPackages[kp.ID]; ok {
		return storage.ErrDuplicateID
	}
	cp := *kp
	cp.Data = cloneBytes(kp.Data)
	s.keyPackages[kp.ID] = cp
	return nil
}

func (s *Store) GetKeyPackage(ctx context.Context, id uuid.UUID) (*models.KeyPackage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	kp, ok := s.keyPackages[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	kp.Data = cloneBytes(kp.Data)
	return &kp, nil
}

func (s *Store) unusedLocked(clientID uuid.UUID) []models.KeyPackage {
	var out []models.KeyPackage
	for _, kp := range s.keyPackages {
		if kp.ClientID == clientID && !kp.Used {
			kp.Data = cloneBytes(kp.Data)
			out = append(out, kp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return storage.NewestFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out
}

func (s *Store) ListUnusedKeyPackages(ctx context.Context, clientID uuid.UUID) ([]models.KeyPackage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.unusedLocked(clientID), nil
}

func (s *Store) MarkKeyPackageUsed(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kp, ok := s.keyPackages[id]
	if !ok {
		return storage.ErrNotFound
	}
	if kp.Used {
		return storage.ErrKeyPackageUsed
	}
	kp.Used = true
	s.keyPackages[id] = kp
	return nil
}

func (s *Store) ConsumeKeyPackage(ctx context.Context, clientID uuid.UUID) (*models.KeyPackage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	unused := s.unusedLocked(clientID)
	if len(unused) == 0 {
		return nil, storage.ErrNotFound
	}
	kp := unused[0]
	kp.Used = true
	stored := s.keyPackages[kp.ID]
	stored.Used = true
	s.keyPackages[kp.ID] = stored
	return &kp, nil
}
