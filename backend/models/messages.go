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

// MessageKind tags which payload of a Message is populated.
type MessageKind string

const (
	KindProposal MessageKind = "proposal"
	KindCommit   MessageKind = "commit"
	KindWelcome  MessageKind = "welcome"
)

// Valid reports whether k is one of the known kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindProposal, KindCommit, KindWelcome:
		return true
	}
	return false
}

// Message is a stored handshake artifact. Exactly one of Proposal, Commit
// and Welcome is set, matching Kind. Epoch is set on commits only and is
// the epoch the commit moves the group to.
type Message struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	GroupID      uuid.UUID   `json:"group_id" db:"group_id"`
	SenderID     uuid.UUID   `json:"sender_id" db:"sender_id"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	Read         bool        `json:"read" db:"read"`
	Kind         MessageKind `json:"type" db:"message_type"`
	Proposal     []byte      `json:"proposal,omitempty" db:"proposal"`
	Commit       []byte      `json:"commit,omitempty" db:"commit"`
	Welcome      []byte      `json:"welcome,omitempty" db:"welcome"`
	ProposalType string      `json:"proposal_type,omitempty" db:"proposal_type"`
	Epoch        *uint64     `json:"epoch,omitempty" db:"epoch"`
	Recipients   []uuid.UUID `json:"recipients,omitempty" db:"recipients"`
}

// Payload returns the populated payload for the message kind.
func (m *Message) Payload() []byte {
	switch m.Kind {
	case KindProposal:
		return m.Proposal
	case KindCommit:
		return m.Commit
	case KindWelcome:
		return m.Welcome
	}
	return nil
}

// AddressedTo reports whether clientID is one of the welcome recipients.
func (m *Message) AddressedTo(clientID uuid.UUID) bool {
	for _, r := range m.Recipients {
		if r == clientID {
			return true
		}
	}
	return false
}

// VisibleTo decides whether a client with the given membership state may
// see the message. Welcomes are scoped to their sender and recipients;
// recipients see them before their own membership exists.
func (m *Message) VisibleTo(clientID uuid.UUID, activeMember bool) bool {
	if m.Kind == KindWelcome {
		return m.SenderID == clientID || m.AddressedTo(clientID)
	}
	return activeMember
}
