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

package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/efchatnet/mlsds/backend/models"
)

var (
	// ErrNotFound means the referenced row does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrUnavailable means the backing store could not be reached in time.
	ErrUnavailable = errors.New("storage: unavailable")
	// ErrKeyPackageUsed is returned when a key package was already consumed.
	ErrKeyPackageUsed = errors.New("storage: key package already used")
	// ErrEpochConflict is returned when a group is not at the expected epoch.
	ErrEpochConflict = errors.New("storage: group epoch changed")
	// ErrGroupInactive is returned when writing to a deactivated group.
	ErrGroupInactive = errors.New("storage: group is not active")
	// ErrDuplicateMembership is returned when a client already has an
	// active membership in the group.
	ErrDuplicateMembership = errors.New("storage: active membership exists")
	// ErrDuplicateID is returned when an insert reuses an existing id.
	ErrDuplicateID = errors.New("storage: id already exists")
)

type ClientStore interface {
	InsertClient(ctx context.Context, c *models.Client) error
	GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error)
	// ListClientsByUser returns the user's clients, newest first.
	ListClientsByUser(ctx context.Context, userID uuid.UUID) ([]models.Client, error)
	TouchClient(ctx context.Context, id uuid.UUID) error
}

type KeyPackageStore interface {
	InsertKeyPackage(ctx context.Context, kp *models.KeyPackage) error
	GetKeyPackage(ctx context.Context, id uuid.UUID) (*models.KeyPackage, error)
	// ListUnusedKeyPackages returns the client's unused packages, newest first.
	ListUnusedKeyPackages(ctx context.Context, clientID uuid.UUID) ([]models.KeyPackage, error)
	// MarkKeyPackageUsed flips used from false to true. At most one caller
	// succeeds per package; the others get ErrKeyPackageUsed.
	MarkKeyPackageUsed(ctx context.Context, id uuid.UUID) error
	// ConsumeKeyPackage atomically claims the client's newest unused package.
	ConsumeKeyPackage(ctx context.Context, clientID uuid.UUID) (*models.KeyPackage, error)
}

type GroupStore interface {
	// CreateGroup inserts the group and the creator's membership together.
	CreateGroup(ctx context.Context, g *models.Group, creator *models.Membership) error
	GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error)
	// ListActiveGroupsByClient returns active groups the client is an
	// active member of, most recently updated first.
	ListActiveGroupsByClient(ctx context.Context, clientID uuid.UUID) ([]models.Group, error)
	UpdateGroupState(ctx context.Context, id uuid.UUID, state []byte) error
	DeactivateGroup(ctx context.Context, id uuid.UUID) error
}

type MembershipStore interface {
	// AddMembership fails with ErrDuplicateMembership if the client is
	// already an active member of the group.
	AddMembership(ctx context.Context, m *models.Membership) error
	GetMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error)
	RemoveMembership(ctx context.Context, id uuid.UUID) error
	// ListMembershipsByGroup includes removed memberships.
	ListMembershipsByGroup(ctx context.Context, groupID uuid.UUID) ([]models.Membership, error)
	ListActiveMembershipsByClient(ctx context.Context, clientID uuid.UUID) ([]models.Membership, error)
}

type MessageStore interface {
	InsertMessage(ctx context.Context, m *models.Message) error
	// ApplyCommit stores a commit and moves its group from expectedEpoch to
	// *m.Epoch as one unit. ErrEpochConflict if the group moved meanwhile.
	ApplyCommit(ctx context.Context, m *models.Message, expectedEpoch uint64) error
	// ListMessagesByGroup returns the group's messages, oldest first.
	ListMessagesByGroup(ctx context.Context, groupID uuid.UUID, includeRead bool) ([]models.Message, error)
	// ListWelcomesForClient returns welcomes naming the client, oldest first.
	ListWelcomesForClient(ctx context.Context, clientID uuid.UUID, includeRead bool) ([]models.Message, error)
	// MarkMessagesRead skips unknown ids and returns how many were marked.
	MarkMessagesRead(ctx context.Context, ids []uuid.UUID) (int, error)
}

type Store interface {
	ClientStore
	KeyPackageStore
	GroupStore
	MembershipStore
	MessageStore

	Ping(ctx context.Context) error
	Close() error
}
