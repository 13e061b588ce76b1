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

package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"

	"github.com/efchatnet/mlsds/backend/mlswire"
)

func build(t *testing.T, fn func(b *cryptobyte.Builder)) []byte {
	t.Helper()
	var b cryptobyte.Builder
	fn(&b)
	out, err := b.Bytes()
	require.NoError(t, err)
	return out
}

func keyPackage(t *testing.T, version, suite uint16) []byte {
	return build(t, func(b *cryptobyte.Builder) {
		b.AddUint16(version)
		b.AddUint16(suite)
		mlswire.AddVector(b, make([]byte, 32))
		b.AddBytes([]byte{0xaa, 0xbb})
	})
}

func publicMessage(t *testing.T, contentType uint8) []byte {
	return build(t, func(b *cryptobyte.Builder) {
		b.AddUint16(mlswire.VersionMLS10)
		b.AddUint16(mlswire.WireFormatPublicMessage)
		mlswire.AddVector(b, []byte("group"))
		b.AddUint64(4)
		b.AddUint8(mlswire.SenderMember)
		b.AddUint32(0)
		mlswire.AddVector(b, nil)
		b.AddUint8(contentType)
		b.AddBytes([]byte{1, 2, 3})
	})
}

func privateMessage(t *testing.T, contentType uint8) []byte {
	return build(t, func(b *cryptobyte.Builder) {
		b.AddUint16(mlswire.VersionMLS10)
		b.AddUint16(mlswire.WireFormatPrivateMessage)
		mlswire.AddVector(b, []byte("group"))
		b.AddUint64(4)
		b.AddUint8(contentType)
		mlswire.AddVector(b, nil)
		mlswire.AddVector(b, []byte{9})
		mlswire.AddVector(b, []byte{9, 9})
	})
}

func welcome(t *testing.T, trailing bool) []byte {
	return build(t, func(b *cryptobyte.Builder) {
		b.AddUint16(mlswire.VersionMLS10)
		b.AddUint16(mlswire.WireFormatWelcome)
		b.AddUint16(0x0001)
		mlswire.AddVector(b, []byte{1, 2, 3, 4})
		mlswire.AddVector(b, []byte{5, 6})
		if trailing {
			b.AddUint8(0)
		}
	})
}

func TestPassThroughRejectsOnlyEmpty(t *testing.T) {
	v := PassThrough{}
	for _, fn := range []func([]byte) error{
		v.ValidateKeyPackage, v.ValidateGroupState, v.ValidateProposal,
		v.ValidateCommit, v.ValidateWelcome,
	} {
		assert.NoError(t, fn([]byte{0}))
		err := fn(nil)
		require.Error(t, err)
		assert.True(t, IsRejection(err))
	}
}

func TestMLSKeyPackage(t *testing.T) {
	v := MLS{}
	assert.NoError(t, v.ValidateKeyPackage(keyPackage(t, 1, 1)))
	assert.True(t, IsRejection(v.ValidateKeyPackage(keyPackage(t, 2, 1))))
	assert.True(t, IsRejection(v.ValidateKeyPackage(keyPackage(t, 1, 0x00ff))))
	assert.True(t, IsRejection(v.ValidateKeyPackage([]byte{0, 1})))
	assert.True(t, IsRejection(v.ValidateKeyPackage(nil)))
}

func TestMLSHandshakeContentType(t *testing.T) {
	v := MLS{}
	assert.NoError(t, v.ValidateProposal(publicMessage(t, mlswire.ContentTypeProposal)))
	assert.NoError(t, v.ValidateCommit(publicMessage(t, mlswire.ContentTypeCommit)))
	assert.NoError(t, v.ValidateCommit(privateMessage(t, mlswire.ContentTypeCommit)))

	err := v.ValidateCommit(publicMessage(t, mlswire.ContentTypeProposal))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content type")

	assert.True(t, IsRejection(v.ValidateProposal(privateMessage(t, mlswire.ContentTypeApplication))))
	assert.True(t, IsRejection(v.ValidateProposal(welcome(t, false))))
}

func TestMLSWelcome(t *testing.T) {
	v := MLS{}
	assert.NoError(t, v.ValidateWelcome(welcome(t, false)))
	assert.True(t, IsRejection(v.ValidateWelcome(welcome(t, true))))
	assert.True(t, IsRejection(v.ValidateWelcome(publicMessage(t, mlswire.ContentTypeCommit))))
}

func TestNewModes(t *testing.T) {
	v, err := New("strict")
	require.NoError(t, err)
	assert.IsType(t, MLS{}, v)

	v, err = New("passthrough")
	require.NoError(t, err)
	assert.IsType(t, PassThrough{}, v)

	_, err = New("yolo")
	assert.Error(t, err)
}
