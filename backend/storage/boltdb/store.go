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

// Package boltdb implements storage.Store on a single bbolt file, for
// deployments without PostgreSQL. Records are CBOR encoded; secondary
// lookups scan their bucket.
package boltdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/efchatnet/mlsds/backend/storage"
)

const (
	clientsBucket     = "clients"
	keyPackagesBucket = "key_packages"
	groupsBucket      = "groups"
	membershipsBucket = "memberships"
	messagesBucket    = "messages"
)

var buckets = []string{
	clientsBucket,
	keyPackagesBucket,
	groupsBucket,
	membershipsBucket,
	messagesBucket,
}

type Store struct {
	db  *bolt.DB
	enc cbor.EncMode
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Open opens or creates the database at path and makes sure every bucket
// exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltdb: open %s: %w", path, err)
	}
	enc, err := cbor.EncOptions{
		Time:    cbor.TimeRFC3339Nano,
		TimeTag: cbor.EncTagRequired,
	}.EncMode()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("boltdb: create buckets: %w", err)
	}
	return &Store{db: db, enc: enc, now: time.Now}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(clientsBucket)) == nil {
			return errors.New("boltdb: missing buckets")
		}
		return nil
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) put(tx *bolt.Tx, bucket string, id uuid.UUID, v interface{}) error {
	data, err := s.enc.Marshal(v)
	if err != nil {
		return fmt.Errorf("boltdb: encode %s record: %w", bucket, err)
	}
	return tx.Bucket([]byte(bucket)).Put(id[:], data)
}

// insert is put for new records; it refuses an id already in the bucket.
func (s *Store) insert(tx *bolt.Tx, bucket string, id uuid.UUID, v interface{}) error {
	if tx.Bucket([]byte(bucket)).Get(id[:]) != nil {
		return storage.ErrDuplicateID
	}
	return s.put(tx, bucket, id, v)
}

func get(tx *bolt.Tx, bucket string, id uuid.UUID, v interface{}) error {
	data := tx.Bucket([]byte(bucket)).Get(id[:])
	if data == nil {
		return storage.ErrNotFound
	}
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("boltdb: decode %s record: %w", bucket, err)
	}
	return nil
}

// scan decodes every record of a bucket into a fresh T and hands it to fn.
func scan[T any](tx *bolt.Tx, bucket string, fn func(*T) error) error {
	return tx.Bucket([]byte(bucket)).ForEach(func(_, data []byte) error {
		v := new(T)
		if err := cbor.Unmarshal(data, v); err != nil {
			return fmt.Errorf("boltdb: decode %s record: %w", bucket, err)
		}
		return fn(v)
	})
}

// view and update refuse to start once ctx is done; bbolt itself has no
// notion of cancellation.
func (s *Store) view(ctx context.Context, fn func(*bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func (s *Store) update(ctx context.Context, fn func(*bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(fn)
}
