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
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/mlsds/backend/models"
	"github.com/efchatnet/mlsds/backend/storage"
	"github.com/efchatnet/mlsds/backend/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := Open(filepath.Join(t.TempDir(), "mlsds.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mlsds.db")
	s, err := Open(path)
	require.NoError(t, err)

	ctx := context.Background()
	g := &models.Group{
		ID:        uuid.New(),
		CreatorID: uuid.New(),
		State:     []byte{4, 2},
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		IsActive:  true,
	}
	creator := &models.Membership{
		ID:       uuid.New(),
		ClientID: g.CreatorID,
		GroupID:  g.ID,
		Role:     models.RoleAdmin,
		AddedAt:  g.CreatedAt,
	}
	require.NoError(t, s.CreateGroup(ctx, g, creator))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	require.Equal(t, g.State, got.State)
	require.Equal(t, g.CreatorID, got.CreatorID)
	require.True(t, g.CreatedAt.Equal(got.CreatedAt))
	require.True(t, got.IsActive)

	members, err := s.ListMembershipsByGroup(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Nil(t, members[0].RemovedAt)
}

func TestUnknownMessageTypeIsRejected(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "mlsds.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	group := uuid.New()
	bad := &models.Message{
		ID:        uuid.New(),
		GroupID:   group,
		SenderID:  uuid.New(),
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Kind:      models.MessageKind("application"),
	}
	require.NoError(t, s.InsertMessage(ctx, bad))

	_, err = s.ListMessagesByGroup(ctx, group, true)
	require.ErrorContains(t, err, "unknown type")
}
