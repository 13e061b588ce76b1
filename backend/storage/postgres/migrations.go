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

import "context"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS clients (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		credential BYTEA NOT NULL,
		scheme VARCHAR(32) NOT NULL DEFAULT 'basic',
		device_name VARCHAR(255) NOT NULL DEFAULT '',
		init_key BYTEA,
		last_seen TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_clients_user
	ON clients(user_id, created_at DESC)`,

	// Key packages are single use; used flips once and never back.
	`CREATE TABLE IF NOT EXISTS key_packages (
		id UUID PRIMARY KEY,
		client_id UUID NOT NULL,
		data BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		used BOOLEAN NOT NULL DEFAULT FALSE
	)`,

	`CREATE INDEX IF NOT EXISTS idx_unused_key_packages
	ON key_packages(client_id, created_at DESC)
	WHERE used = FALSE`,

	`CREATE TABLE IF NOT EXISTS groups (
		id UUID PRIMARY KEY,
		creator_id UUID NOT NULL,
		epoch BIGINT NOT NULL DEFAULT 0 CHECK (epoch >= 0),
		state BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,

	// Memberships are soft deleted so the table keeps history.
	`CREATE TABLE IF NOT EXISTS memberships (
		id UUID PRIMARY KEY,
		client_id UUID NOT NULL,
		group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		role VARCHAR(32) NOT NULL DEFAULT 'member',
		added_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		removed_at TIMESTAMPTZ
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_active_membership
	ON memberships(group_id, client_id)
	WHERE removed_at IS NULL`,

	`CREATE INDEX IF NOT EXISTS idx_memberships_client
	ON memberships(client_id)
	WHERE removed_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		sender_id UUID NOT NULL,
		message_type VARCHAR(16) NOT NULL CHECK (message_type IN ('proposal', 'commit', 'welcome')),
		proposal BYTEA,
		proposal_type VARCHAR(64),
		commit BYTEA,
		epoch BIGINT,
		welcome BYTEA,
		recipients UUID[],
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		read BOOLEAN NOT NULL DEFAULT FALSE
	)`,

	`CREATE INDEX IF NOT EXISTS idx_group_messages
	ON messages(group_id, created_at)`,

	`CREATE INDEX IF NOT EXISTS idx_welcome_recipients
	ON messages USING GIN (recipients)
	WHERE message_type = 'welcome'`,
}

func (s *Store) Migrate() error {
	return s.MigrateContext(context.Background())
}

func (s *Store) MigrateContext(ctx context.Context) error {
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return classify(err)
		}
	}
	return nil
}
