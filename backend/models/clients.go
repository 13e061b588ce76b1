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

// SchemeBasic tags credentials that carry a bare identity.
const SchemeBasic = "basic"

// Client is one device of a user. Only LastSeen changes after registration.
type Client struct {
	ID         uuid.UUID `json:"id" db:"id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	Credential []byte    `json:"credential" db:"credential"`
	Scheme     string    `json:"scheme" db:"scheme"`
	DeviceName string    `json:"device_name" db:"device_name"`
	InitKey    []byte    `json:"init_key,omitempty" db:"init_key"`
	LastSeen   time.Time `json:"last_seen" db:"last_seen"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
