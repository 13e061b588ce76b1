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

// Package storagetest holds the behaviour every storage.Store must share.
// Backends call Run from their own tests.
package storagetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/mlsds/backend/models"
	"github.com/efchatnet/mlsds/backend/storage"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) storage.Store

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return base.Add(time.Duration(sec) * time.Second)
}

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, storage.Store)
	}{
		{"Clients", testClients},
		{"KeyPackageLifecycle", testKeyPackageLifecycle},
		{"ConcurrentConsume", testConcurrentConsume},
		{"CreateGroupWithCreator", testCreateGroup},
		{"CreateGroupRollsBack", testCreateGroupRollsBack},
		{"DuplicateIDs", testDuplicateIDs},
		{"GroupVisibility", testGroupVisibility},
		{"GroupStateAndDeactivate", testGroupStateAndDeactivate},
		{"Memberships", testMemberships},
		{"Messages", testMessages},
		{"ApplyCommit", testApplyCommit},
		{"ApplyCommitRollsBack", testApplyCommitRollsBack},
		{"ConcurrentCommits", testConcurrentCommits},
		{"Welcomes", testWelcomes},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			tc.fn(t, s)
		})
	}
}

func newClient(userID uuid.UUID, sec int) *models.Client {
	return &models.Client{
		ID:         uuid.New(),
		UserID:     userID,
		Credential: []byte{0, 1, 3, 'b', 'o', 'b'},
		Scheme:     models.SchemeBasic,
		DeviceName: "laptop",
		InitKey:    []byte{7, 7, 7},
		LastSeen:   at(sec),
		CreatedAt:  at(sec),
	}
}

func newGroup(t *testing.T, s storage.Store, creator uuid.UUID, sec int) (*models.Group, *models.Membership) {
	t.Helper()
	g := &models.Group{
		ID:        uuid.New(),
		CreatorID: creator,
		State:     []byte{9, 9, 9},
		CreatedAt: at(sec),
		UpdatedAt: at(sec),
		IsActive:  true,
	}
	m := &models.Membership{
		ID:       uuid.New(),
		ClientID: creator,
		GroupID:  g.ID,
		Role:     models.RoleAdmin,
		AddedAt:  at(sec),
	}
	require.NoError(t, s.CreateGroup(context.Background(), g, m))
	return g, m
}

func testClients(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := uuid.New()

	first := newClient(user, 1)
	second := newClient(user, 2)
	other := newClient(uuid.New(), 3)
	for _, c := range []*models.Client{first, second, other} {
		require.NoError(t, s.InsertClient(ctx, c))
	}

	got, err := s.GetClient(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.UserID, got.UserID)
	assert.Equal(t, first.Credential, got.Credential)
	assert.Equal(t, first.InitKey, got.InitKey)
	assert.Equal(t, "laptop", got.DeviceName)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))

	_, err = s.GetClient(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	list, err := s.ListClientsByUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	require.NoError(t, s.TouchClient(ctx, first.ID))
	got, err = s.GetClient(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.LastSeen.After(first.LastSeen))

	assert.ErrorIs(t, s.TouchClient(ctx, uuid.New()), storage.ErrNotFound)
}

func testKeyPackageLifecycle(t *testing.T, s storage.Store) {
	ctx := context.Background()
	client := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		kp := &models.KeyPackage{
			ID:        uuid.New(),
			ClientID:  client,
			Data:      []byte{byte(i), 0xff},
			CreatedAt: at(i),
		}
		require.NoError(t, s.InsertKeyPackage(ctx, kp))
		ids = append(ids, kp.ID)
	}

	unused, err := s.ListUnusedKeyPackages(ctx, client)
	require.NoError(t, err)
	require.Len(t, unused, 3)
	assert.Equal(t, ids[2], unused[0].ID)
	assert.Equal(t, []byte{2, 0xff}, unused[0].Data)

	require.NoError(t, s.MarkKeyPackageUsed(ctx, ids[0]))
	assert.ErrorIs(t, s.MarkKeyPackageUsed(ctx, ids[0]), storage.ErrKeyPackageUsed)
	assert.ErrorIs(t, s.MarkKeyPackageUsed(ctx, uuid.New()), storage.ErrNotFound)

	kp, err := s.GetKeyPackage(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, kp.Used)

	consumed, err := s.ConsumeKeyPackage(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, ids[2], consumed.ID)
	assert.True(t, consumed.Used)

	unused, err = s.ListUnusedKeyPackages(ctx, client)
	require.NoError(t, err)
	require.Len(t, unused, 1)
	assert.Equal(t, ids[1], unused[0].ID)

	_, err = s.ConsumeKeyPackage(ctx, client)
	require.NoError(t, err)
	_, err = s.ConsumeKeyPackage(ctx, client)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.GetKeyPackage(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testConcurrentConsume(t *testing.T, s storage.Store) {
	ctx := context.Background()
	client := uuid.New()
	const packages, workers = 5, 20

	for i := 0; i < packages; i++ {
		require.NoError(t, s.InsertKeyPackage(ctx, &models.KeyPackage{
			ID:        uuid.New(),
			ClientID:  client,
			Data:      []byte{byte(i)},
			CreatedAt: at(i),
		}))
	}

	var (
		mu       sync.Mutex
		claimed  = make(map[uuid.UUID]int)
		failures int64
		wg       sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kp, err := s.ConsumeKeyPackage(ctx, client)
			if err != nil {
				assert.ErrorIs(t, err, storage.ErrNotFound)
				atomic.AddInt64(&failures, 1)
				return
			}
			mu.Lock()
			claimed[kp.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, packages)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "key package %s handed out %d times", id, n)
	}
	assert.EqualValues(t, workers-packages, failures)
}

func testCreateGroup(t *testing.T, s storage.Store) {
	ctx := context.Background()
	creator := uuid.New()
	g, m := newGroup(t, s, creator, 0)

	got, err := s.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.Epoch)
	assert.True(t, got.IsActive)
	assert.Equal(t, []byte{9, 9, 9}, got.State)
	assert.Equal(t, creator, got.CreatorID)

	members, err := s.ListMembershipsByGroup(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, m.ID, members[0].ID)
	assert.Equal(t, models.RoleAdmin, members[0].Role)
	assert.Nil(t, members[0].RemovedAt)

	_, err = s.GetGroup(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// A failed creator membership must not leave the group behind.
func testCreateGroupRollsBack(t *testing.T, s storage.Store) {
	ctx := context.Background()
	creator := uuid.New()
	_, taken := newGroup(t, s, creator, 0)

	g := &models.Group{
		ID:        uuid.New(),
		CreatorID: creator,
		State:     []byte{1},
		CreatedAt: at(1),
		UpdatedAt: at(1),
		IsActive:  true,
	}
	m := &models.Membership{
		ID:       taken.ID,
		ClientID: creator,
		GroupID:  g.ID,
		Role:     models.RoleAdmin,
		AddedAt:  at(1),
	}
	assert.ErrorIs(t, s.CreateGroup(ctx, g, m), storage.ErrDuplicateID)

	_, err := s.GetGroup(ctx, g.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	members, err := s.ListMembershipsByGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, members)

	groups, err := s.ListActiveGroupsByClient(ctx, creator)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func testDuplicateIDs(t *testing.T, s storage.Store) {
	ctx := context.Background()

	c := newClient(uuid.New(), 0)
	require.NoError(t, s.InsertClient(ctx, c))
	dup := newClient(uuid.New(), 1)
	dup.ID = c.ID
	assert.ErrorIs(t, s.InsertClient(ctx, dup), storage.ErrDuplicateID)
	got, err := s.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.UserID, got.UserID)

	kp := &models.KeyPackage{ID: uuid.New(), ClientID: c.ID, Data: []byte{1}, CreatedAt: at(2)}
	require.NoError(t, s.InsertKeyPackage(ctx, kp))
	assert.ErrorIs(t, s.InsertKeyPackage(ctx, kp), storage.ErrDuplicateID)

	g, m := newGroup(t, s, c.ID, 3)
	other := &models.Membership{ID: m.ID, ClientID: uuid.New(), GroupID: g.ID, Role: "member", AddedAt: at(4)}
	assert.ErrorIs(t, s.AddMembership(ctx, other), storage.ErrDuplicateID)

	msg := &models.Message{
		ID:           uuid.New(),
		GroupID:      g.ID,
		SenderID:     c.ID,
		CreatedAt:    at(5),
		Kind:         models.KindProposal,
		Proposal:     []byte{2},
		ProposalType: "add",
	}
	require.NoError(t, s.InsertMessage(ctx, msg))
	assert.ErrorIs(t, s.InsertMessage(ctx, msg), storage.ErrDuplicateID)
}

func testGroupVisibility(t *testing.T, s storage.Store) {
	ctx := context.Background()
	client := uuid.New()

	older, _ := newGroup(t, s, client, 0)
	newer, _ := newGroup(t, s, client, 5)
	left, _ := newGroup(t, s, uuid.New(), 10)
	closed, _ := newGroup(t, s, client, 15)

	leftMembership := &models.Membership{ID: uuid.New(), ClientID: client, GroupID: left.ID, Role: "member", AddedAt: at(11)}
	require.NoError(t, s.AddMembership(ctx, leftMembership))
	require.NoError(t, s.RemoveMembership(ctx, leftMembership.ID))
	require.NoError(t, s.DeactivateGroup(ctx, closed.ID))

	groups, err := s.ListActiveGroupsByClient(ctx, client)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, newer.ID, groups[0].ID)
	assert.Equal(t, older.ID, groups[1].ID)
}

func testGroupStateAndDeactivate(t *testing.T, s storage.Store) {
	ctx := context.Background()
	g, _ := newGroup(t, s, uuid.New(), 0)

	require.NoError(t, s.UpdateGroupState(ctx, g.ID, []byte{1, 2}))
	got, err := s.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, got.State)
	assert.True(t, got.UpdatedAt.After(g.UpdatedAt))

	require.NoError(t, s.DeactivateGroup(ctx, g.ID))
	require.NoError(t, s.DeactivateGroup(ctx, g.ID))
	got, err = s.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.ErrorIs(t, s.UpdateGroupState(ctx, g.ID, []byte{3}), storage.ErrGroupInactive)
	assert.ErrorIs(t, s.UpdateGroupState(ctx, uuid.New(), []byte{3}), storage.ErrNotFound)
	assert.ErrorIs(t, s.DeactivateGroup(ctx, uuid.New()), storage.ErrNotFound)
}

func testMemberships(t *testing.T, s storage.Store) {
	ctx := context.Background()
	g, _ := newGroup(t, s, uuid.New(), 0)
	client := uuid.New()

	m := &models.Membership{ID: uuid.New(), ClientID: client, GroupID: g.ID, Role: "member", AddedAt: at(1)}
	require.NoError(t, s.AddMembership(ctx, m))

	dup := &models.Membership{ID: uuid.New(), ClientID: client, GroupID: g.ID, Role: "member", AddedAt: at(2)}
	assert.ErrorIs(t, s.AddMembership(ctx, dup), storage.ErrDuplicateMembership)

	active, err := s.ListActiveMembershipsByClient(ctx, client)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, s.RemoveMembership(ctx, m.ID))
	removed, err := s.GetMembership(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, removed.RemovedAt)
	firstRemoval := *removed.RemovedAt

	require.NoError(t, s.RemoveMembership(ctx, m.ID))
	removed, err = s.GetMembership(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, removed.RemovedAt)
	assert.True(t, firstRemoval.Equal(*removed.RemovedAt))

	assert.ErrorIs(t, s.RemoveMembership(ctx, uuid.New()), storage.ErrNotFound)
	_, err = s.GetMembership(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Rejoining after removal is a fresh membership.
	require.NoError(t, s.AddMembership(ctx, dup))

	all, err := s.ListMembershipsByGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err = s.ListActiveMembershipsByClient(ctx, client)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, dup.ID, active[0].ID)
}

func proposal(groupID, sender uuid.UUID, sec int, payload []byte) *models.Message {
	return &models.Message{
		ID:           uuid.New(),
		GroupID:      groupID,
		SenderID:     sender,
		CreatedAt:    at(sec),
		Kind:         models.KindProposal,
		Proposal:     payload,
		ProposalType: "add",
	}
}

func testMessages(t *testing.T, s storage.Store) {
	ctx := context.Background()
	sender := uuid.New()
	g, _ := newGroup(t, s, sender, 0)

	second := proposal(g.ID, sender, 2, []byte{2})
	first := proposal(g.ID, sender, 1, []byte{1, 0, 1})
	require.NoError(t, s.InsertMessage(ctx, second))
	require.NoError(t, s.InsertMessage(ctx, first))

	msgs, err := s.ListMessagesByGroup(ctx, g.ID, false)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, models.KindProposal, msgs[0].Kind)
	assert.Equal(t, []byte{1, 0, 1}, msgs[0].Proposal)
	assert.Equal(t, "add", msgs[0].ProposalType)
	assert.Nil(t, msgs[0].Epoch)
	assert.Nil(t, msgs[0].Commit)
	assert.Nil(t, msgs[0].Welcome)

	n, err := s.MarkMessagesRead(ctx, []uuid.UUID{first.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	unread, err := s.ListMessagesByGroup(ctx, g.ID, false)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, second.ID, unread[0].ID)

	all, err := s.ListMessagesByGroup(ctx, g.ID, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].Read)
}

func commit(groupID, sender uuid.UUID, sec int, epoch uint64) *models.Message {
	return &models.Message{
		ID:        uuid.New(),
		GroupID:   groupID,
		SenderID:  sender,
		CreatedAt: at(sec),
		Kind:      models.KindCommit,
		Commit:    []byte{0xc0, 0xff, 0xee},
		Epoch:     &epoch,
	}
}

func testApplyCommit(t *testing.T, s storage.Store) {
	ctx := context.Background()
	sender := uuid.New()
	g, _ := newGroup(t, s, sender, 0)

	c1 := commit(g.ID, sender, 1, 1)
	require.NoError(t, s.ApplyCommit(ctx, c1, 0))

	got, err := s.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Epoch)

	stale := commit(g.ID, sender, 2, 1)
	assert.ErrorIs(t, s.ApplyCommit(ctx, stale, 0), storage.ErrEpochConflict)

	msgs, err := s.ListMessagesByGroup(ctx, g.ID, true)
	require.NoError(t, err)
	require.Len(t, msgs, 1, "a rejected commit must not be stored")
	assert.Equal(t, c1.ID, msgs[0].ID)
	require.NotNil(t, msgs[0].Epoch)
	assert.Equal(t, uint64(1), *msgs[0].Epoch)
	assert.Equal(t, []byte{0xc0, 0xff, 0xee}, msgs[0].Commit)

	assert.ErrorIs(t, s.ApplyCommit(ctx, commit(uuid.New(), sender, 3, 1), 0), storage.ErrNotFound)

	require.NoError(t, s.DeactivateGroup(ctx, g.ID))
	assert.ErrorIs(t, s.ApplyCommit(ctx, commit(g.ID, sender, 4, 2), 1), storage.ErrGroupInactive)
}

// A commit whose message cannot be stored must not advance the epoch.
func testApplyCommitRollsBack(t *testing.T, s storage.Store) {
	ctx := context.Background()
	sender := uuid.New()
	g, _ := newGroup(t, s, sender, 0)

	c1 := commit(g.ID, sender, 1, 1)
	require.NoError(t, s.ApplyCommit(ctx, c1, 0))

	reused := commit(g.ID, sender, 2, 2)
	reused.ID = c1.ID
	assert.ErrorIs(t, s.ApplyCommit(ctx, reused, 1), storage.ErrDuplicateID)

	got, err := s.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Epoch)

	msgs, err := s.ListMessagesByGroup(ctx, g.ID, true)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Epoch)
	assert.Equal(t, uint64(1), *msgs[0].Epoch)

	require.NoError(t, s.ApplyCommit(ctx, commit(g.ID, sender, 3, 2), 1))
}

func testConcurrentCommits(t *testing.T, s storage.Store) {
	ctx := context.Background()
	sender := uuid.New()
	g, _ := newGroup(t, s, sender, 0)

	const workers = 10
	var (
		wg        sync.WaitGroup
		successes int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.ApplyCommit(ctx, commit(g.ID, sender, i, 1), 0)
			if err == nil {
				atomic.AddInt64(&successes, 1)
				return
			}
			assert.ErrorIs(t, err, storage.ErrEpochConflict)
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes)
	msgs, err := s.ListMessagesByGroup(ctx, g.ID, true)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func testWelcomes(t *testing.T, s storage.Store) {
	ctx := context.Background()
	sender := uuid.New()
	g, _ := newGroup(t, s, sender, 0)
	alice, bob := uuid.New(), uuid.New()

	w := &models.Message{
		ID:         uuid.New(),
		GroupID:    g.ID,
		SenderID:   sender,
		CreatedAt:  at(1),
		Kind:       models.KindWelcome,
		Welcome:    []byte{0x77},
		Recipients: []uuid.UUID{alice, bob},
	}
	require.NoError(t, s.InsertMessage(ctx, w))

	for _, r := range []uuid.UUID{alice, bob} {
		msgs, err := s.ListWelcomesForClient(ctx, r, false)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, w.ID, msgs[0].ID)
		assert.Equal(t, []byte{0x77}, msgs[0].Welcome)
		assert.ElementsMatch(t, []uuid.UUID{alice, bob}, msgs[0].Recipients)
	}

	msgs, err := s.ListWelcomesForClient(ctx, uuid.New(), true)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = s.MarkMessagesRead(ctx, []uuid.UUID{w.ID})
	require.NoError(t, err)
	msgs, err = s.ListWelcomesForClient(ctx, alice, false)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
