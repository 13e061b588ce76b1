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

package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/efchatnet/mlsds/backend/models"
	"github.com/efchatnet/mlsds/backend/storage"
)

const keyPackageColumns = `id, client_id, data, created_at, used`

func scanKeyPackage(row rowScanner) (*models.KeyPackage, error) {
	var kp models.KeyPackage
	if err := row.Scan(&kp.ID, &kp.ClientID, &kp.Data, &kp.CreatedAt, &kp.Used); err != nil {
		return nil, err
	}
	kp.CreatedAt = kp.CreatedAt.UTC()
	return &kp, nil
}

func (s *Store) InsertKeyPackage(ctx context.Context, kp *models.KeyPackage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO key_packages (`+keyPackageColumns+`)
		VALUES ($1, $2, $3, $4, $5)`,
		kp.ID, kp.ClientID, kp.Data, kp.CreatedAt, kp.Used)
	return insertError(err)
}

func (s *Store) GetKeyPackage(ctx context.Context, id uuid.UUID) (*models.KeyPackage, error) {
	kp, err := scanKeyPackage(s.db.QueryRowContext(ctx, `
		SELECT `+keyPackageColumns+` FROM key_packages WHERE id = $1`, id))
	if err != nil {
		return nil, classify(err)
	}
	return kp, nil
}

func (s *Store) ListUnusedKeyPackages(ctx context.Context, clientID uuid.UUID) ([]models.KeyPackage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+keyPackageColumns+` FROM key_packages
		WHERE client_id = $1 AND used = FALSE
		ORDER BY created_at DESC, id`, clientID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var packages []models.KeyPackage
	for rows.Next() {
		kp, err := scanKeyPackage(rows)
		if err != nil {
			return nil, classify(err)
		}
		packages = append(packages, *kp)
	}
	return packages, classify(rows.Err())
}

func (s *Store) MarkKeyPackageUsed(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE key_packages SET used = TRUE
		WHERE id = $1 AND used = FALSE`, id)
	err = affected(res, err)
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	var used bool
	err = s.db.QueryRowContext(ctx, `SELECT used FROM key_packages WHERE id = $1`, id).Scan(&used)
	if err != nil {
		return classify(err)
	}
	return storage.ErrKeyPackageUsed
}

// ConsumeKeyPackage claims the newest unused package in one statement.
// SKIP LOCKED lets concurrent callers move on to the next package instead
// of queueing behind each other.
func (s *Store) ConsumeKeyPackage(ctx context.Context, clientID uuid.UUID) (*models.KeyPackage, error) {
	kp, err := scanKeyPackage(s.db.QueryRowContext(ctx, `
		UPDATE key_packages SET used = TRUE
		WHERE used = FALSE AND id = (
			SELECT id FROM key_packages
			WHERE client_id = $1 AND used = FALSE
			ORDER BY created_at DESC, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+keyPackageColumns, clientID))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return kp, nil
}
