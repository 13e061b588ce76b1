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

	"github.com/google/uuid"

	"github.com/efchatnet/mlsds/backend/models"
	"github.com/efchatnet/mlsds/backend/storage"
)

const clientColumns = `id, user_id, credential, scheme, device_name, init_key, last_seen, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClient(row rowScanner) (*models.Client, error) {
	var c models.Client
	if err := row.Scan(&c.ID, &c.UserID, &c.Credential, &c.Scheme, &c.DeviceName,
		&c.InitKey, &c.LastSeen, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.LastSeen = c.LastSeen.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) InsertClient(ctx context.Context, c *models.Client) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.UserID, c.Credential, c.Scheme, c.DeviceName, c.InitKey, c.LastSeen, c.CreatedAt)
	return insertError(err)
}

func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	c, err := scanClient(s.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
	if err != nil {
		return nil, classify(err)
	}
	return c, nil
}

func (s *Store) ListClientsByUser(ctx context.Context, userID uuid.UUID) ([]models.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+clientColumns+` FROM clients
		WHERE user_id = $1
		ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var clients []models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, classify(err)
		}
		clients = append(clients, *c)
	}
	return clients, classify(rows.Err())
}

func (s *Store) TouchClient(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE clients SET last_seen = $2 WHERE id = $1`, id, s.now().UTC())
	return affected(res, err)
}

// affected turns a zero-row update into ErrNotFound.
func affected(res sql.Result, err error) error {
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
