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

func (s *Store) InsertClient(ctx context.Context, c *models.Client) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		return s.insert(tx, clientsBucket, c.ID, c)
	})
}

func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	var c models.Client
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return get(tx, clientsBucket, id, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListClientsByUser(ctx context.Context, userID uuid.UUID) ([]models.Client, error) {
	var out []models.Client
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return scan(tx, clientsBucket, func(c *models.Client) error {
			if c.UserID == userID {
				out = append(out, *c)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return storage.NewestFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *Store) TouchClient(ctx context.Context, id uuid.UUID) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		var c models.Client
		if err := get(tx, clientsBucket, id, &c); err != nil {
			return err
		}
		c.LastSeen = s.now().UTC()
		return s.put(tx, clientsBucket, id, &c)
	})
}

func (s *Store) InsertKeyPackage(ctx context.Context, kp *models.KeyPackage) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		return s.insert(tx, keyPackagesBucket, kp.ID, kp)
	})
}

func (s *Store) GetKeyPackage(ctx context.Context, id uuid.UUID) (*models.KeyPackage, error) {
	var kp models.KeyPackage
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return get(tx, keyPackagesBucket, id, &kp)
	})
	if err != nil {
		return nil, err
	}
	return &kp, nil
}

func unusedKeyPackages(tx *bolt.Tx, clientID uuid.UUID) ([]models.KeyPackage, error) {
	var out []models.KeyPackage
	err := scan(tx, keyPackagesBucket, func(kp *models.KeyPackage) error {
		if kp.ClientID == clientID && !kp.Used {
			out = append(out, *kp)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return storage.NewestFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, err
}

func (s *Store) ListUnusedKeyPackages(ctx context.Context, clientID uuid.UUID) ([]models.KeyPackage, error) {
	var out []models.KeyPackage
	err := s.view(ctx, func(tx *bolt.Tx) error {
		var err error
		out, err = unusedKeyPackages(tx, clientID)
		return err
	})
	return out, err
}

func (s *Store) MarkKeyPackageUsed(ctx context.Context, id uuid.UUID) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		var kp models.KeyPackage
		if err := get(tx, keyPackagesBucket, id, &kp); err != nil {
			return err
		}
		if kp.Used {
			return storage.ErrKeyPackageUsed
		}
		kp.Used = true
		return s.put(tx, keyPackagesBucket, id, &kp)
	})
}

func (s *Store) ConsumeKeyPackage(ctx context.Context, clientID uuid.UUID) (*models.KeyPackage, error) {
	var claimed models.KeyPackage
	err := s.update(ctx, func(tx *bolt.Tx) error {
		unused, err := unusedKeyPackages(tx, clientID)
		if err != nil {
			return err
		}
		if len(unused) == 0 {
			return storage.ErrNotFound
		}
		claimed = unused[0]
		claimed.Used = true
		return s.put(tx, keyPackagesBucket, claimed.ID, &claimed)
	})
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}
