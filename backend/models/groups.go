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

package models

import (
	"time"

	"github.com/google/uuid"
)

// RoleAdmin is given to the creator of a group.
const RoleAdmin = "admin"

// Group is the delivery-side bookkeeping for an MLS group. State is opaque.
type Group struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatorID uuid.UUID `json:"creator_id" db:"creator_id"`
	Epoch     uint64    `json:"epoch" db:"epoch"`
	State     []byte    `json:"state" db:"state"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	IsActive  bool      `json:"is_active" db:"is_active"`
}

// Membership links a client to a group. RemovedAt is set once and kept,
// so the table doubles as membership history.
type Membership struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	ClientID  uuid.UUID  `json:"client_id" db:"client_id"`
	GroupID   uuid.UUID  `json:"group_id" db:"group_id"`
	Role      string     `json:"role" db:"role"`
	AddedAt   time.Time  `json:"added_at" db:"added_at"`
	RemovedAt *time.Time `json:"removed_at,omitempty" db:"removed_at"`
}

// Active reports whether the membership has not been removed.
func (m Membership) Active() bool {
	return m.RemovedAt == nil
}
