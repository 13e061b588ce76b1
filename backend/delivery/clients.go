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
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/curve25519"

	"github.com/efchatnet/mlsds/backend/mlswire"
	"github.com/efchatnet/mlsds/backend/models"
)

// newInitKey returns the public half of a fresh X25519 key pair. The
// private half is discarded; clients replace it with their own key
// packages.
func newInitKey(r io.Reader) ([]byte, error) {
	var priv [curve25519.ScalarSize]byte
	if _, err := io.ReadFull(r, priv[:]); err != nil {
		return nil, fmt.Errorf("read entropy: %w", err)
	}
	return curve25519.X25519(priv[:], curve25519.Basepoint)
}

// RegisterClient stores a new client for userID. The credential is the
// MLS basic credential for identity, so equal identities give equal bytes.
// A user may register any number of clients.
func (s *Service) RegisterClient(ctx context.Context, userID, identity, deviceName string) (id uuid.UUID, err error) {
	const op = "RegisterClient"
	defer s.track(op, time.Now(), &err)

	user, err := parseID(op, "user id", userID)
	if err != nil {
		return uuid.Nil, err
	}
	if identity == "" {
		return uuid.Nil, newError(KindInvalidArgument, op, "identity is empty")
	}
	credential, err := mlswire.BasicCredential([]byte(identity))
	if err != nil {
		return uuid.Nil, &Error{Kind: KindInvalidArgument, Op: op, Detail: "identity cannot be encoded", Err: err}
	}
	initKey, err := newInitKey(s.rand)
	if err != nil {
		return uuid.Nil, &Error{Kind: KindInternal, Op: op, Detail: "init key generation failed", Err: err}
	}

	now := s.timestamp()
	c := &models.Client{
		ID:         s.newID(),
		UserID:     user,
		Credential: credential,
		Scheme:     models.SchemeBasic,
		DeviceName: deviceName,
		InitKey:    initKey,
		LastSeen:   now,
		CreatedAt:  now,
	}
	if err := s.store.InsertClient(ctx, c); err != nil {
		return uuid.Nil, storeError(op, "client", err)
	}
	s.log.Debug().Str("client_id", c.ID.String()).Str("user_id", user.String()).Msg("client registered")
	return c.ID, nil
}

// GetClient returns the client and bumps its last_seen. A failed bump is
// logged only.
func (s *Service) GetClient(ctx context.Context, clientID string) (c *models.Client, err error) {
	const op = "GetClient"
	defer s.track(op, time.Now(), &err)

	id, err := parseID(op, "client id", clientID)
	if err != nil {
		return nil, err
	}
	c, err = s.store.GetClient(ctx, id)
	if err != nil {
		return nil, storeError(op, "client", err)
	}
	if err := s.store.TouchClient(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("client_id", clientID).Msg("failed to update last_seen")
	}
	return c, nil
}

// ListClients returns the user's clients, newest first.
func (s *Service) ListClients(ctx context.Context, userID string) (clients []models.Client, err error) {
	const op = "ListClients"
	defer s.track(op, time.Now(), &err)

	id, err := parseID(op, "user id", userID)
	if err != nil {
		return nil, err
	}
	clients, err = s.store.ListClientsByUser(ctx, id)
	if err != nil {
		return nil, storeError(op, "client", err)
	}
	return nonNil(clients), nil
}
