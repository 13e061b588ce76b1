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
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/efchatnet/mlsds/backend/models"
	"github.com/efchatnet/mlsds/backend/storage"
)

const messageColumns = `id, group_id, sender_id, message_type, proposal, proposal_type,
	commit, epoch, welcome, recipients, created_at, read`

func uuidStrings(ids []uuid.UUID) pq.StringArray {
	if ids == nil {
		return nil
	}
	out := make(pq.StringArray, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m            models.Message
		proposalType sql.NullString
		epoch        sql.NullInt64
		recipients   pq.StringArray
	)
	if err := row.Scan(&m.ID, &m.GroupID, &m.SenderID, &m.Kind, &m.Proposal, &proposalType,
		&m.Commit, &epoch, &m.Welcome, &recipients, &m.CreatedAt, &m.Read); err != nil {
		return nil, err
	}
	if !m.Kind.Valid() {
		return nil, fmt.Errorf("postgres: message %s has unknown type %q", m.ID, m.Kind)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.ProposalType = proposalType.String
	if epoch.Valid {
		e := uint64(epoch.Int64)
		m.Epoch = &e
	}
	if recipients != nil {
		m.Recipients = make([]uuid.UUID, 0, len(recipients))
		for _, r := range recipients {
			id, err := uuid.Parse(r)
			if err != nil {
				return nil, err
			}
			m.Recipients = append(m.Recipients, id)
		}
	}
	return &m, nil
}

func insertMessage(ctx context.Context, exec interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}, m *models.Message) error {
	var epoch sql.NullInt64
	if m.Epoch != nil {
		epoch = sql.NullInt64{Int64: int64(*m.Epoch), Valid: true}
	}
	_, err := exec.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		m.ID, m.GroupID, m.SenderID, string(m.Kind), m.Proposal,
		sql.NullString{String: m.ProposalType, Valid: m.ProposalType != ""},
		m.Commit, epoch, m.Welcome, uuidStrings(m.Recipients), m.CreatedAt, m.Read)
	return insertError(err)
}

func (s *Store) InsertMessage(ctx context.Context, m *models.Message) error {
	return insertMessage(ctx, s.db, m)
}

// ApplyCommit advances the epoch with a compare-and-set on the group row.
// The row lock taken by the UPDATE serialises concurrent commits, and the
// losers see the new epoch and affect no rows.
func (s *Store) ApplyCommit(ctx context.Context, m *models.Message, expectedEpoch uint64) error {
	if m.Epoch == nil {
		return storage.ErrEpochConflict
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE groups SET epoch = $3, updated_at = $4
			WHERE id = $1 AND epoch = $2 AND is_active`,
			m.GroupID, int64(expectedEpoch), int64(*m.Epoch), s.now().UTC())
		if err := affected(res, err); err == storage.ErrNotFound {
			return groupWriteError(ctx, tx, m.GroupID)
		} else if err != nil {
			return err
		}
		return insertMessage(ctx, tx, m)
	})
}

func (s *Store) listMessages(ctx context.Context, query string, args ...interface{}) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, classify(err)
		}
		messages = append(messages, *m)
	}
	return messages, classify(rows.Err())
}

func (s *Store) ListMessagesByGroup(ctx context.Context, groupID uuid.UUID, includeRead bool) ([]models.Message, error) {
	return s.listMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE group_id = $1 AND ($2 OR read = FALSE)
		ORDER BY created_at, id`, groupID, includeRead)
}

func (s *Store) ListWelcomesForClient(ctx context.Context, clientID uuid.UUID, includeRead bool) ([]models.Message, error) {
	return s.listMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE message_type = 'welcome' AND $1::uuid = ANY(recipients) AND ($2 OR read = FALSE)
		ORDER BY created_at, id`, clientID, includeRead)
}

func (s *Store) MarkMessagesRead(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read = TRUE
		WHERE id = ANY($1::uuid[])`, uuidStrings(ids))
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	return int(n), nil
}
