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

package mlswire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"
)

func TestVarintRoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 63, 64, 16383, 16384, 1<<30 - 1} {
		var b cryptobyte.Builder
		AddVarint(&b, v)
		out, err := b.Bytes()
		require.NoError(t, err)

		s := cryptobyte.String(out)
		got, err := ReadVarint(&s)
		require.NoError(t, err, "value %d", v)
		assert.Equal(t, v, got)
		assert.True(t, s.Empty())
	}
}

func TestVarintEncodedLengths(t *testing.T) {
	cases := map[uint32]int{0: 1, 63: 1, 64: 2, 16383: 2, 16384: 4}
	for v, n := range cases {
		var b cryptobyte.Builder
		AddVarint(&b, v)
		out, err := b.Bytes()
		require.NoError(t, err)
		assert.Len(t, out, n, "value %d", v)
	}
}

func TestReadVarintRejects(t *testing.T) {
	s := cryptobyte.String([]byte{0xc0, 0, 0, 0, 0, 0, 0, 1})
	_, err := ReadVarint(&s)
	assert.ErrorIs(t, err, ErrVarintPrefix)

	// 5 encoded on two bytes.
	s = cryptobyte.String([]byte{0x40, 0x05})
	_, err = ReadVarint(&s)
	assert.ErrorIs(t, err, ErrVarintNotMinimal)

	s = cryptobyte.String([]byte{0x80, 0x01})
	_, err = ReadVarint(&s)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestReadVectorTruncated(t *testing.T) {
	s := cryptobyte.String([]byte{0x05, 1, 2})
	var v cryptobyte.String
	assert.ErrorIs(t, ReadVector(&s, &v), ErrTruncated)
}

func TestBasicCredentialDeterministic(t *testing.T) {
	a, err := BasicCredential([]byte("alice-1"))
	require.NoError(t, err)
	b, err := BasicCredential([]byte("alice-1"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b))
	assert.Equal(t, []byte{0x00, 0x01, 0x07}, a[:3])

	identity, err := ParseBasicCredential(a)
	require.NoError(t, err)
	assert.Equal(t, "alice-1", string(identity))

	_, err = ParseBasicCredential(append(a, 0))
	assert.Error(t, err)
}
