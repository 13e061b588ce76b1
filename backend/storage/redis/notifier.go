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

// Package redis publishes delivery events over Redis pub/sub so connected
// clients can be told to fetch instead of polling.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/mlsds/backend/models"
)

const (
	// Redis channel prefixes
	groupChannelPrefix  = "mls:notify:group:"  // mls:notify:group:{groupId}
	clientChannelPrefix = "mls:notify:client:" // mls:notify:client:{clientId}
)

// Event is the JSON payload published for every stored message. It never
// carries the MLS payload itself.
type Event struct {
	Type      models.MessageKind `json:"type"`
	MessageID uuid.UUID          `json:"message_id"`
	GroupID   uuid.UUID          `json:"group_id"`
	SenderID  uuid.UUID          `json:"sender_id"`
	Epoch     *uint64            `json:"epoch,omitempty"`
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type Notifier struct {
	rdb publisher
}

func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Connect parses a redis:// URL and checks the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return rdb, nil
}

func GroupChannel(groupID uuid.UUID) string {
	return groupChannelPrefix + groupID.String()
}

func ClientChannel(clientID uuid.UUID) string {
	return clientChannelPrefix + clientID.String()
}

// Notify publishes the event on the group channel and, for welcomes, on the
// channel of every recipient. All publishes are attempted; the errors are
// joined.
func (n *Notifier) Notify(ctx context.Context, m *models.Message) error {
	payload, err := json.Marshal(Event{
		Type:      m.Kind,
		MessageID: m.ID,
		GroupID:   m.GroupID,
		SenderID:  m.SenderID,
		Epoch:     m.Epoch,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channels := []string{GroupChannel(m.GroupID)}
	if m.Kind == models.KindWelcome {
		for _, r := range m.Recipients {
			channels = append(channels, ClientChannel(r))
		}
	}

	var errs []error
	for _, ch := range channels {
		if err := n.rdb.Publish(ctx, ch, payload).Err(); err != nil {
			errs = append(errs, fmt.Errorf("failed to publish on %s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}
