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

package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/efchatnet/mlsds/backend/models"
)

// RoleMember is the role AddMember uses when none is given.
const RoleMember = "member"

// CreateGroup stores a group at epoch 0 together with an admin membership
// for its creator.
func (s *Service) CreateGroup(ctx context.Context, creatorID string, state []byte) (id uuid.UUID, err error) {
	const op = "CreateGroup"
	defer s.track(op, time.Now(), &err)

	creator, err := parseID(op, "creator id", creatorID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.validator.ValidateGroupState(state); err != nil {
		return uuid.Nil, validationError(op, err)
	}
	if _, err := s.store.GetClient(ctx, creator); err != nil {
		return uuid.Nil, storeError(op, "creator client", err)
	}

	now := s.timestamp()
	g := &models.Group{
		ID:        s.newID(),
		CreatorID: creator,
		Epoch:     0,
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
		IsActive:  true,
	}
	m := &models.Membership{
		ID:       s.newID(),
		ClientID: creator,
		GroupID:  g.ID,
		Role:     models.RoleAdmin,
		AddedAt:  now,
	}
	if err := s.store.CreateGroup(ctx, g, m); err != nil {
		return uuid.Nil, storeError(op, "group", err)
	}
	s.log.Debug().Str("group_id", g.ID.String()).Str("creator_id", creatorID).Msg("group created")
	return g.ID, nil
}

func (s *Service) GetGroup(ctx context.Context, groupID string) (g *models.Group, err error) {
	const op = "GetGroup"
	defer s.track(op, time.Now(), &err)

	id, err := parseID(op, "group id", groupID)
	if err != nil {
		return nil, err
	}
	g, err = s.store.GetGroup(ctx, id)
	if err != nil {
		return nil, storeError(op, "group", err)
	}
	return g, nil
}

// ListGroups returns the active groups the client is an active member of,
// most recently updated first.
func (s *Service) ListGroups(ctx context.Context, clientID string) (groups []models.Group, err error) {
	const op = "ListGroups"
	defer s.track(op, time.Now(), &err)

	id, err := parseID(op, "client id", clientID)
	if err != nil {
		return nil, err
	}
	groups, err = s.store.ListActiveGroupsByClient(ctx, id)
	if err != nil {
		return nil, storeError(op, "group", err)
	}
	return nonNil(groups), nil
}

// UpdateGroupState replaces the opaque state blob of an active group.
func (s *Service) UpdateGroupState(ctx context.Context, groupID string, state []byte) (err error) {
	const op = "UpdateGroupState"
	defer s.track(op, time.Now(), &err)

	id, err := parseID(op, "group id", groupID)
	if err != nil {
		return err
	}
	if err := s.validator.ValidateGroupState(state); err != nil {
		return validationError(op, err)
	}
	if err := s.store.UpdateGroupState(ctx, id, state); err != nil {
		return storeError(op, "group", err)
	}
	return nil
}

// DeactivateGroup closes a group for good. It drops out of ListGroups and
// accepts no further messages. Deactivating twice is not an error.
func (s *Service) DeactivateGroup(ctx context.Context, groupID string) (err error) {
	const op = "DeactivateGroup"
	defer s.track(op, time.Now(), &err)

	id, err := parseID(op, "group id", groupID)
	if err != nil {
		return err
	}
	if err := s.store.DeactivateGroup(ctx, id); err != nil {
		return storeError(op, "group", err)
	}
	s.log.Debug().Str("group_id", groupID).Msg("group deactivated")
	return nil
}

// AddMember adds an existing client to an active group. A client holds at
// most one active membership per group.
func (s *Service) AddMember(ctx context.Context, groupID, clientID, role string) (id uuid.UUID, err error) {
	const op = "AddMember"
	defer s.track(op, time.Now(), &err)

	group, err := parseID(op, "group id", groupID)
	if err != nil {
		return uuid.Nil, err
	}
	client, err := parseID(op, "client id", clientID)
	if err != nil {
		return uuid.Nil, err
	}
	if role == "" {
		role = RoleMember
	}

	g, err := s.store.GetGroup(ctx, group)
	if err != nil {
		return uuid.Nil, storeError(op, "group", err)
	}
	if !g.IsActive {
		return uuid.Nil, newError(KindConflict, op, "group is not active")
	}
	if _, err := s.store.GetClient(ctx, client); err != nil {
		return uuid.Nil, storeError(op, "client", err)
	}

	m := &models.Membership{
		ID:       s.newID(),
		ClientID: client,
		GroupID:  group,
		Role:     role,
		AddedAt:  s.timestamp(),
	}
	if err := s.store.AddMembership(ctx, m); err != nil {
		return uuid.Nil, storeError(op, "membership", err)
	}
	s.log.Debug().Str("membership_id", m.ID.String()).Str("group_id", groupID).Str("client_id", clientID).Msg("member added")
	return m.ID, nil
}

// RemoveMember soft deletes a membership. Removing an already removed
// membership succeeds and keeps the original removal time.
func (s *Service) RemoveMember(ctx context.Context, membershipID string) (err error) {
	const op = "RemoveMember"
	defer s.track(op, time.Now(), &err)

	id, err := parseID(op, "membership id", membershipID)
	if err != nil {
		return err
	}
	if err := s.store.RemoveMembership(ctx, id); err != nil {
		return storeError(op, "membership", err)
	}
	s.log.Debug().Str("membership_id", membershipID).Msg("member removed")
	return nil
}

// ListMemberships returns every membership of the group, removed ones
// included.
func (s *Service) ListMemberships(ctx context.Context, groupID string) (ms []models.Membership, err error) {
	const op = "ListMemberships"
	defer s.track(op, time.Now(), &err)

	id, err := parseID(op, "group id", groupID)
	if err != nil {
		return nil, err
	}
	ms, err = s.store.ListMembershipsByGroup(ctx, id)
	if err != nil {
		return nil, storeError(op, "membership", err)
	}
	return nonNil(ms), nil
}
