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

// PublishKeyPackage validates and stores a key package for an existing
// client. Rejected packages are not stored.
func (s *Service) PublishKeyPackage(ctx context.Context, clientID string, data []byte) (id uuid.UUID, err error) {
	const op = "PublishKeyPackage"
	defer s.track(op, time.Now(), &err)

	client, err := parseID(op, "client id", clientID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.validator.ValidateKeyPackage(data); err != nil {
		return uuid.Nil, validationError(op, err)
	}
	if _, err := s.store.GetClient(ctx, client); err != nil {
		return uuid.Nil, storeError(op, "client", err)
	}

	kp := &models.KeyPackage{
		ID:        s.newID(),
		ClientID:  client,
		Data:      data,
		CreatedAt: s.timestamp(),
	}
	if err := s.store.InsertKeyPackage(ctx, kp); err != nil {
		return uuid.Nil, storeError(op, "key package", err)
	}
	s.log.Debug().Str("key_package_id", kp.ID.String()).Str("client_id", clientID).Msg("key package published")
	return kp.ID, nil
}

// GetKeyPackage returns a key package by id, used or not.
func (s *Service) GetKeyPackage(ctx context.Context, keyPackageID string) (kp *models.KeyPackage, err error) {
	const op = "GetKeyPackage"
	defer s.track(op, time.Now(), &err)

	id, err := parseID(op, "key package id", keyPackageID)
	if err != nil {
		return nil, err
	}
	kp, err = s.store.GetKeyPackage(ctx, id)
	if err != nil {
		return nil, storeError(op, "key package", err)
	}
	return kp, nil
}

// ListKeyPackages returns only the client's unused packages, newest first.
func (s *Service) ListKeyPackages(ctx context.Context, clientID string) (kps []models.KeyPackage, err error) {
	const op = "ListKeyPackages"
	defer s.track(op, time.Now(), &err)

	id, err := parseID(op, "client id", clientID)
	if err != nil {
		return nil, err
	}
	kps, err = s.store.ListUnusedKeyPackages(ctx, id)
	if err != nil {
		return nil, storeError(op, "key package", err)
	}
	return nonNil(kps), nil
}

// ConsumeKeyPackage claims the client's newest unused package for the
// caller. Concurrent callers never receive the same package.
func (s *Service) ConsumeKeyPackage(ctx context.Context, clientID string) (kp *models.KeyPackage, err error) {
	const op = "ConsumeKeyPackage"
	defer s.track(op, time.Now(), &err)

	id, err := parseID(op, "client id", clientID)
	if err != nil {
		return nil, err
	}
	kp, err = s.store.ConsumeKeyPackage(ctx, id)
	if err != nil {
		return nil, storeError(op, "unused key package", err)
	}
	s.log.Debug().Str("key_package_id", kp.ID.String()).Str("client_id", clientID).Msg("key package consumed")
	return kp, nil
}

// MarkKeyPackageUsed retires a specific package. A second call fails with
// KindConflict.
func (s *Service) MarkKeyPackageUsed(ctx context.Context, keyPackageID string) (err error) {
	const op = "MarkKeyPackageUsed"
	defer s.track(op, time.Now(), &err)

	id, err := parseID(op, "key package id", keyPackageID)
	if err != nil {
		return err
	}
	if err := s.store.MarkKeyPackageUsed(ctx, id); err != nil {
		return storeError(op, "key package", err)
	}
	return nil
}
