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

const groupColumns = `id, creator_id, epoch, state, created_at, updated_at, is_active`

func scanGroup(row rowScanner) (*models.Group, error) {
	var g models.Group
	var epoch int64
	if err := row.Scan(&g.ID, &g.CreatorID, &epoch, &g.State, &g.CreatedAt, &g.UpdatedAt, &g.IsActive); err != nil {
		return nil, err
	}
	g.Epoch = uint64(epoch)
	g.CreatedAt = g.CreatedAt.UTC()
	g.UpdatedAt = g.UpdatedAt.UTC()
	return &g, nil
}

func insertMembership(ctx context.Context, tx *sql.Tx, m *models.Membership) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO memberships (id, client_id, group_id, role, added_at, removed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.ClientID, m.GroupID, m.Role, m.AddedAt, m.RemovedAt)
	switch {
	case isPrimaryKeyViolation(err):
		return storage.ErrDuplicateID
	case isUniqueViolation(err):
		return storage.ErrDuplicateMembership
	}
	return classify(err)
}

func (s *Store) CreateGroup(ctx context.Context, g *models.Group, creator *models.Membership) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO groups (`+groupColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			g.ID, g.CreatorID, int64(g.Epoch), g.State, g.CreatedAt, g.UpdatedAt, g.IsActive)
		if err != nil {
			return insertError(err)
		}
		return insertMembership(ctx, tx, creator)
	})
}

func (s *Store) GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	g, err := scanGroup(s.db.QueryRowContext(ctx, `
		SELECT `+groupColumns+` FROM groups WHERE id = $1`, id))
	if err != nil {
		return nil, classify(err)
	}
	return g, nil
}

func (s *Store) ListActiveGroupsByClient(ctx context.Context, clientID uuid.UUID) ([]models.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+groupColumns+` FROM groups g
		WHERE g.is_active AND EXISTS (
			SELECT 1 FROM memberships m
			WHERE m.group_id = g.id AND m.client_id = $1 AND m.removed_at IS NULL
		)
		ORDER BY g.updated_at DESC, g.id`, clientID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, classify(err)
		}
		groups = append(groups, *g)
	}
	return groups, classify(rows.Err())
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// groupWriteError explains why a guarded group update touched no rows:
// the group is missing, inactive, or at another epoch.
func groupWriteError(ctx context.Context, q queryer, id uuid.UUID) error {
	var active bool
	err := q.QueryRowContext(ctx, `SELECT is_active FROM groups WHERE id = $1`, id).Scan(&active)
	switch {
	case err != nil:
		return classify(err)
	case !active:
		return storage.ErrGroupInactive
	}
	return storage.ErrEpochConflict
}

func (s *Store) UpdateGroupState(ctx context.Context, id uuid.UUID, state []byte) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE groups SET state = $2, updated_at = $3
		WHERE id = $1 AND is_active`, id, state, s.now().UTC())
	if err := affected(res, err); err != storage.ErrNotFound {
		return err
	}
	return groupWriteError(ctx, s.db, id)
}

func (s *Store) DeactivateGroup(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE groups
		SET is_active = FALSE,
			updated_at = CASE WHEN is_active THEN $2 ELSE updated_at END
		WHERE id = $1`, id, s.now().UTC())
	return affected(res, err)
}

const membershipColumns = `id, client_id, group_id, role, added_at, removed_at`

func scanMembership(row rowScanner) (*models.Membership, error) {
	var (
		m         models.Membership
		removedAt sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.ClientID, &m.GroupID, &m.Role, &m.AddedAt, &removedAt); err != nil {
		return nil, err
	}
	m.AddedAt = m.AddedAt.UTC()
	m.RemovedAt = nullTime(removedAt)
	return &m, nil
}

func (s *Store) AddMembership(ctx context.Context, m *models.Membership) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertMembership(ctx, tx, m)
	})
}

func (s *Store) GetMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	m, err := scanMembership(s.db.QueryRowContext(ctx, `
		SELECT `+membershipColumns+` FROM memberships WHERE id = $1`, id))
	if err != nil {
		return nil, classify(err)
	}
	return m, nil
}

// RemoveMembership keeps the first removal time when called again.
func (s *Store) RemoveMembership(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memberships SET removed_at = COALESCE(removed_at, $2)
		WHERE id = $1`, id, s.now().UTC())
	return affected(res, err)
}

func (s *Store) listMemberships(ctx context.Context, where string, arg uuid.UUID) ([]models.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+membershipColumns+` FROM memberships
		WHERE `+where+`
		ORDER BY added_at, id`, arg)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var memberships []models.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, classify(err)
		}
		memberships = append(memberships, *m)
	}
	return memberships, classify(rows.Err())
}

func (s *Store) ListMembershipsByGroup(ctx context.Context, groupID uuid.UUID) ([]models.Membership, error) {
	return s.listMemberships(ctx, `group_id = $1`, groupID)
}

func (s *Store) ListActiveMembershipsByClient(ctx context.Context, clientID uuid.UUID) ([]models.Membership, error) {
	return s.listMemberships(ctx, `client_id = $1 AND removed_at IS NULL`, clientID)
}
