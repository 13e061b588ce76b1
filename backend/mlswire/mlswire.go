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

// Package mlswire reads and writes the few pieces of the MLS (RFC 9420)
// presentation language the delivery service needs: the protocol header,
// variable-length vectors and the basic credential.
package mlswire

import (
	"errors"

	"golang.org/x/crypto/cryptobyte"
)

// ProtocolVersion values.
const (
	VersionMLS10 uint16 = 1
)

// WireFormat values of an MLSMessage.
const (
	WireFormatPublicMessage  uint16 = 1
	WireFormatPrivateMessage uint16 = 2
	WireFormatWelcome        uint16 = 3
	WireFormatGroupInfo      uint16 = 4
	WireFormatKeyPackage     uint16 = 5
)

// ContentType values of framed content.
const (
	ContentTypeApplication uint8 = 1
	ContentTypeProposal    uint8 = 2
	ContentTypeCommit      uint8 = 3
)

// Sender types of a PublicMessage.
const (
	SenderMember            uint8 = 1
	SenderExternal          uint8 = 2
	SenderNewMemberProposal uint8 = 3
	SenderNewMemberCommit   uint8 = 4
)

// CredentialTypeBasic is the basic credential type.
const CredentialTypeBasic uint16 = 1

// maxVarint is the largest length a 4-byte varint can carry.
const maxVarint = 1<<30 - 1

var (
	ErrVarintPrefix     = errors.New("mlswire: invalid varint prefix")
	ErrVarintNotMinimal = errors.New("mlswire: varint not minimally encoded")
	ErrTruncated        = errors.New("mlswire: truncated input")
	ErrTooLong          = errors.New("mlswire: vector too long")
)

// ReadVarint reads an MLS variable-length integer (RFC 9420 section 2.1.2).
func ReadVarint(s *cryptobyte.String) (uint32, error) {
	var first uint8
	if !s.ReadUint8(&first) {
		return 0, ErrTruncated
	}
	prefix := first >> 6
	v := uint32(first & 0x3f)
	var n int
	switch prefix {
	case 0:
		return v, nil
	case 1:
		n = 1
	case 2:
		n = 3
	default:
		return 0, ErrVarintPrefix
	}
	var rest []byte
	if !s.ReadBytes(&rest, n) {
		return 0, ErrTruncated
	}
	for _, b := range rest {
		v = v<<8 | uint32(b)
	}
	if (prefix == 1 && v < 1<<6) || (prefix == 2 && v < 1<<14) {
		return 0, ErrVarintNotMinimal
	}
	return v, nil
}

// ReadVector reads a varint-prefixed opaque vector into out.
func ReadVector(s *cryptobyte.String, out *cryptobyte.String) error {
	n, err := ReadVarint(s)
	if err != nil {
		return err
	}
	var b []byte
	if !s.ReadBytes(&b, int(n)) {
		return ErrTruncated
	}
	*out = b
	return nil
}

// AddVarint appends v in its minimal varint encoding.
func AddVarint(b *cryptobyte.Builder, v uint32) {
	switch {
	case v < 1<<6:
		b.AddUint8(uint8(v))
	case v < 1<<14:
		b.AddUint16(uint16(v) | 0x4000)
	case v <= maxVarint:
		b.AddUint32(v | 0x80000000)
	default:
		b.SetError(ErrTooLong)
	}
}

// AddVector appends data as a varint-prefixed opaque vector.
func AddVector(b *cryptobyte.Builder, data []byte) {
	if len(data) > maxVarint {
		b.SetError(ErrTooLong)
		return
	}
	AddVarint(b, uint32(len(data)))
	b.AddBytes(data)
}

// BasicCredential encodes a basic credential carrying identity. The output
// depends only on identity.
func BasicCredential(identity []byte) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint16(CredentialTypeBasic)
	AddVector(&b, identity)
	return b.Bytes()
}

// ParseBasicCredential returns the identity of a basic credential.
func ParseBasicCredential(data []byte) ([]byte, error) {
	s := cryptobyte.String(data)
	var ct uint16
	if !s.ReadUint16(&ct) {
		return nil, ErrTruncated
	}
	if ct != CredentialTypeBasic {
		return nil, errors.New("mlswire: not a basic credential")
	}
	var identity cryptobyte.String
	if err := ReadVector(&s, &identity); err != nil {
		return nil, err
	}
	if !s.Empty() {
		return nil, errors.New("mlswire: trailing bytes after credential")
	}
	return []byte(identity), nil
}
