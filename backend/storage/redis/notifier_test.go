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

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/mlsds/backend/models"
)

type published struct {
	channel string
	payload []byte
}

type fakePublisher struct {
	sent []published
	fail map[string]bool
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	if f.fail[channel] {
		cmd.SetErr(errors.New("connection refused"))
		return cmd
	}
	f.sent = append(f.sent, published{channel: channel, payload: message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

func TestChannels(t *testing.T) {
	id := uuid.MustParse("5a1f6d2e-4c1b-4c38-9f1e-2b7d9c0e8a11")
	assert.Equal(t, "mls:notify:group:5a1f6d2e-4c1b-4c38-9f1e-2b7d9c0e8a11", GroupChannel(id))
	assert.Equal(t, "mls:notify:client:5a1f6d2e-4c1b-4c38-9f1e-2b7d9c0e8a11", ClientChannel(id))
}

func TestNotifyCommit(t *testing.T) {
	pub := &fakePublisher{}
	n := &Notifier{rdb: pub}
	epoch := uint64(3)
	m := &models.Message{
		ID:       uuid.New(),
		GroupID:  uuid.New(),
		SenderID: uuid.New(),
		Kind:     models.KindCommit,
		Commit:   []byte{1, 2, 3},
		Epoch:    &epoch,
	}

	require.NoError(t, n.Notify(context.Background(), m))
	require.Len(t, pub.sent, 1)
	assert.Equal(t, GroupChannel(m.GroupID), pub.sent[0].channel)

	var ev Event
	require.NoError(t, json.Unmarshal(pub.sent[0].payload, &ev))
	assert.Equal(t, models.KindCommit, ev.Type)
	assert.Equal(t, m.ID, ev.MessageID)
	assert.Equal(t, m.SenderID, ev.SenderID)
	require.NotNil(t, ev.Epoch)
	assert.Equal(t, uint64(3), *ev.Epoch)
	assert.NotContains(t, string(pub.sent[0].payload), "commit\":")
}

func TestNotifyWelcomeFansOut(t *testing.T) {
	pub := &fakePublisher{}
	n := &Notifier{rdb: pub}
	alice, bob := uuid.New(), uuid.New()
	m := &models.Message{
		ID:         uuid.New(),
		GroupID:    uuid.New(),
		SenderID:   uuid.New(),
		Kind:       models.KindWelcome,
		Welcome:    []byte{9},
		Recipients: []uuid.UUID{alice, bob},
	}

	require.NoError(t, n.Notify(context.Background(), m))
	var channels []string
	for _, p := range pub.sent {
		channels = append(channels, p.channel)
	}
	assert.Equal(t, []string{GroupChannel(m.GroupID), ClientChannel(alice), ClientChannel(bob)}, channels)
}

func TestNotifyKeepsGoingOnFailure(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	pub := &fakePublisher{fail: map[string]bool{ClientChannel(alice): true}}
	n := &Notifier{rdb: pub}
	m := &models.Message{
		ID:         uuid.New(),
		GroupID:    uuid.New(),
		Kind:       models.KindWelcome,
		Recipients: []uuid.UUID{alice, bob},
	}

	err := n.Notify(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ClientChannel(alice))
	assert.Len(t, pub.sent, 2)
}
