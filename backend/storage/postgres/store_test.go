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
	"os"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/mlsds/backend/models"
	"github.com/efchatnet/mlsds/backend/storage"
	"github.com/efchatnet/mlsds/backend/storage/storagetest"
)

func TestStore(t *testing.T) {
	url := os.Getenv("MLSDS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MLSDS_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.MigrateContext(ctx))

	storagetest.Run(t, func(t *testing.T) storage.Store {
		_, err := s.db.ExecContext(ctx,
			`TRUNCATE messages, memberships, groups, key_packages, clients`)
		require.NoError(t, err)
		return s
	})
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(sql.ErrNoRows), storage.ErrNotFound)
	assert.ErrorIs(t, classify(context.DeadlineExceeded), storage.ErrUnavailable)
	assert.ErrorIs(t, classify(&pq.Error{Code: "08006"}), storage.ErrUnavailable)
	assert.ErrorIs(t, classify(&pq.Error{Code: "57P01"}), storage.ErrUnavailable)

	syntax := &pq.Error{Code: "42601"}
	err := classify(syntax)
	assert.False(t, errors.Is(err, storage.ErrUnavailable))
	assert.Equal(t, syntax, err)

	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

func TestInsertError(t *testing.T) {
	assert.NoError(t, insertError(nil))
	assert.ErrorIs(t, insertError(&pq.Error{Code: "23505", Constraint: "messages_pkey"}), storage.ErrDuplicateID)

	active := &pq.Error{Code: "23505", Constraint: "idx_active_membership"}
	assert.False(t, isPrimaryKeyViolation(active))
	assert.Equal(t, active, insertError(active))
	assert.ErrorIs(t, insertError(&pq.Error{Code: "08006"}), storage.ErrUnavailable)
}

// kindRow fills only the message_type column.
type kindRow struct {
	kind models.MessageKind
}

func (r kindRow) Scan(dest ...interface{}) error {
	*dest[3].(*models.MessageKind) = r.kind
	return nil
}

func TestScanMessageRejectsUnknownType(t *testing.T) {
	m, err := scanMessage(kindRow{kind: models.KindCommit})
	require.NoError(t, err)
	assert.Equal(t, models.KindCommit, m.Kind)

	_, err = scanMessage(kindRow{kind: "application"})
	assert.ErrorContains(t, err, "unknown type")
}
