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
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/efchatnet/mlsds/backend/models"
	"github.com/efchatnet/mlsds/backend/storage"
)

// activeGroup loads the group a message is addressed to and refuses
// inactive ones.
func (s *Service) activeGroup(ctx context.Context, op string, id uuid.UUID) (*models.Group, error) {
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return nil, storeError(op, "group", err)
	}
	if !g.IsActive {
		return nil, newError(KindConflict, op, "group is not active")
	}
	return g, nil
}

func (s *Service) StoreProposal(ctx context.Context, groupID, senderID string, proposal []byte, proposalType string) (id uuid.UUID, err error) {
	const op = "StoreProposal"
	defer s.track(op, time.Now(), &err)

	group, err := parseID(op, "group id", groupID)
	if err != nil {
		return uuid.Nil, err
	}
	sender, err := parseID(op, "sender id", senderID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.validator.ValidateProposal(proposal); err != nil {
		return uuid.Nil, validationError(op, err)
	}
	if _, err := s.activeGroup(ctx, op, group); err != nil {
		return uuid.Nil, err
	}

	m := &models.Message{
		ID:           s.newID(),
		GroupID:      group,
		SenderID:     sender,
		CreatedAt:    s.timestamp(),
		Kind:         models.KindProposal,
		Proposal:     proposal,
		ProposalType: proposalType,
	}
	if err := s.store.InsertMessage(ctx, m); err != nil {
		return uuid.Nil, storeError(op, "group", err)
	}
	s.notify(ctx, m)
	return m.ID, nil
}

// StoreCommit stores a commit and advances the group to epoch. The target
// must be exactly one past the group's current epoch; anything else,
// including losing a race against another commit, is a KindConflict.
func (s *Service) StoreCommit(ctx context.Context, groupID, senderID string, commit []byte, epoch uint64) (id uuid.UUID, err error) {
	const op = "StoreCommit"
	defer s.track(op, time.Now(), &err)

	group, err := parseID(op, "group id", groupID)
	if err != nil {
		return uuid.Nil, err
	}
	sender, err := parseID(op, "sender id", senderID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.validator.ValidateCommit(commit); err != nil {
		return uuid.Nil, validationError(op, err)
	}
	g, err := s.activeGroup(ctx, op, group)
	if err != nil {
		return uuid.Nil, err
	}
	if epoch != g.Epoch+1 {
		return uuid.Nil, newError(KindConflict, op, "commit targets epoch %d but group is at epoch %d", epoch, g.Epoch)
	}

	m := &models.Message{
		ID:        s.newID(),
		GroupID:   group,
		SenderID:  sender,
		CreatedAt: s.timestamp(),
		Kind:      models.KindCommit,
		Commit:    commit,
		Epoch:     &epoch,
	}
	if err := s.store.ApplyCommit(ctx, m, g.Epoch); err != nil {
		return uuid.Nil, storeError(op, "group", err)
	}
	s.log.Debug().Str("group_id", groupID).Uint64("epoch", epoch).Msg("commit applied")
	s.notify(ctx, m)
	return m.ID, nil
}

// StoreWelcome stores a welcome for the listed recipients. Every recipient
// id must parse before anything is written.
func (s *Service) StoreWelcome(ctx context.Context, groupID, senderID string, welcome []byte, recipientIDs []string) (id uuid.UUID, err error) {
	const op = "StoreWelcome"
	defer s.track(op, time.Now(), &err)

	group, err := parseID(op, "group id", groupID)
	if err != nil {
		return uuid.Nil, err
	}
	sender, err := parseID(op, "sender id", senderID)
	if err != nil {
		return uuid.Nil, err
	}
	if len(recipientIDs) == 0 {
		return uuid.Nil, newError(KindInvalidArgument, op, "welcome has no recipients")
	}
	recipients := make([]uuid.UUID, 0, len(recipientIDs))
	seen := make(map[uuid.UUID]bool, len(recipientIDs))
	for _, r := range recipientIDs {
		rid, err := parseID(op, "recipient id", r)
		if err != nil {
			return uuid.Nil, err
		}
		if !seen[rid] {
			seen[rid] = true
			recipients = append(recipients, rid)
		}
	}
	if err := s.validator.ValidateWelcome(welcome); err != nil {
		return uuid.Nil, validationError(op, err)
	}
	if _, err := s.activeGroup(ctx, op, group); err != nil {
		return uuid.Nil, err
	}

	m := &models.Message{
		ID:         s.newID(),
		GroupID:    group,
		SenderID:   sender,
		CreatedAt:  s.timestamp(),
		Kind:       models.KindWelcome,
		Welcome:    welcome,
		Recipients: recipients,
	}
	if err := s.store.InsertMessage(ctx, m); err != nil {
		return uuid.Nil, storeError(op, "group", err)
	}
	s.log.Debug().Str("group_id", groupID).Int("recipients", len(recipients)).Msg("welcome stored")
	s.notify(ctx, m)
	return m.ID, nil
}

// FetchMessages returns what the client may read, oldest first: messages
// of groups it is an active member of, minus welcomes addressed to others,
// plus welcomes naming it. With groupID set the same rules apply to that
// one group only, so a non-member gets nothing.
func (s *Service) FetchMessages(ctx context.Context, clientID, groupID string, includeRead bool) (msgs []models.Message, err error) {
	const op = "FetchMessages"
	defer s.track(op, time.Now(), &err)

	client, err := parseID(op, "client id", clientID)
	if err != nil {
		return nil, err
	}
	var (
		filter   uuid.UUID
		filtered = groupID != ""
	)
	if filtered {
		if filter, err = parseID(op, "group id", groupID); err != nil {
			return nil, err
		}
	}
	wanted := func(g uuid.UUID) bool {
		return !filtered || g == filter
	}

	memberships, err := s.store.ListActiveMembershipsByClient(ctx, client)
	if err != nil {
		return nil, storeError(op, "membership", err)
	}

	seen := make(map[uuid.UUID]bool)
	add := func(m models.Message) {
		if !seen[m.ID] {
			seen[m.ID] = true
			msgs = append(msgs, m)
		}
	}

	groups := make(map[uuid.UUID]bool)
	for _, ms := range memberships {
		if !wanted(ms.GroupID) || groups[ms.GroupID] {
			continue
		}
		groups[ms.GroupID] = true
		list, err := s.store.ListMessagesByGroup(ctx, ms.GroupID, includeRead)
		if err != nil {
			return nil, storeError(op, "group", err)
		}
		for _, m := range list {
			if m.VisibleTo(client, true) {
				add(m)
			}
		}
	}

	welcomes, err := s.store.ListWelcomesForClient(ctx, client, includeRead)
	if err != nil {
		return nil, storeError(op, "message", err)
	}
	for _, m := range welcomes {
		if wanted(m.GroupID) {
			add(m)
		}
	}

	sort.Slice(msgs, func(i, j int) bool {
		return storage.OldestFirst(msgs[i].CreatedAt, msgs[j].CreatedAt, msgs[i].ID, msgs[j].ID)
	})
	return nonNil(msgs), nil
}

// MarkMessagesRead flips the read flag on every known id and returns how
// many were found. Unknown ids are skipped.
func (s *Service) MarkMessagesRead(ctx context.Context, messageIDs []string) (n int, err error) {
	const op = "MarkMessagesRead"
	defer s.track(op, time.Now(), &err)

	ids := make([]uuid.UUID, 0, len(messageIDs))
	seen := make(map[uuid.UUID]bool, len(messageIDs))
	for _, raw := range messageIDs {
		id, err := parseID(op, "message id", raw)
		if err != nil {
			return 0, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err = s.store.MarkMessagesRead(ctx, ids)
	if err != nil {
		return 0, storeError(op, "message", err)
	}
	return n, nil
}
