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
	"golang.org/x/crypto/cryptobyte"

	"github.com/efchatnet/mlsds/backend/mlswire"
)

// MLS checks RFC 9420 framing: protocol version, wire format, cipher suite,
// content type and well-formed vectors. It does not verify signatures or
// anything that needs group secrets.
type MLS struct{}

// knownCipherSuite covers the suites registered by RFC 9420.
func knownCipherSuite(cs uint16) bool {
	return cs >= 0x0001 && cs <= 0x0007
}

func (MLS) ValidateKeyPackage(data []byte) error {
	if err := nonEmpty(ArtifactKeyPackage, data); err != nil {
		return err
	}
	s := cryptobyte.String(data)
	var version, suite uint16
	if !s.ReadUint16(&version) || !s.ReadUint16(&suite) {
		return reject(ArtifactKeyPackage, "truncated header")
	}
	if version != mlswire.VersionMLS10 {
		return reject(ArtifactKeyPackage, "unsupported protocol version %d", version)
	}
	if !knownCipherSuite(suite) {
		return reject(ArtifactKeyPackage, "unknown cipher suite 0x%04x", suite)
	}
	var initKey cryptobyte.String
	if err := mlswire.ReadVector(&s, &initKey); err != nil {
		return reject(ArtifactKeyPackage, "init key: %v", err)
	}
	if len(initKey) == 0 {
		return reject(ArtifactKeyPackage, "empty init key")
	}
	if s.Empty() {
		return reject(ArtifactKeyPackage, "missing leaf node")
	}
	return nil
}

func (MLS) ValidateGroupState(data []byte) error {
	return nonEmpty(ArtifactGroupState, data)
}

func (MLS) ValidateProposal(data []byte) error {
	return validateHandshake(ArtifactProposal, data, mlswire.ContentTypeProposal)
}

func (MLS) ValidateCommit(data []byte) error {
	return validateHandshake(ArtifactCommit, data, mlswire.ContentTypeCommit)
}

func (MLS) ValidateWelcome(data []byte) error {
	if err := nonEmpty(ArtifactWelcome, data); err != nil {
		return err
	}
	s := cryptobyte.String(data)
	wf, err := readHeader(ArtifactWelcome, &s)
	if err != nil {
		return err
	}
	if wf != mlswire.WireFormatWelcome {
		return reject(ArtifactWelcome, "wire format %d is not a welcome", wf)
	}
	var suite uint16
	if !s.ReadUint16(&suite) {
		return reject(ArtifactWelcome, "truncated cipher suite")
	}
	if !knownCipherSuite(suite) {
		return reject(ArtifactWelcome, "unknown cipher suite 0x%04x", suite)
	}
	var secrets, groupInfo cryptobyte.String
	if err := mlswire.ReadVector(&s, &secrets); err != nil {
		return reject(ArtifactWelcome, "secrets: %v", err)
	}
	if len(secrets) == 0 {
		return reject(ArtifactWelcome, "no encrypted group secrets")
	}
	if err := mlswire.ReadVector(&s, &groupInfo); err != nil {
		return reject(ArtifactWelcome, "encrypted group info: %v", err)
	}
	if len(groupInfo) == 0 {
		return reject(ArtifactWelcome, "empty encrypted group info")
	}
	if !s.Empty() {
		return reject(ArtifactWelcome, "trailing bytes")
	}
	return nil
}

func readHeader(artifact string, s *cryptobyte.String) (uint16, error) {
	var version, wf uint16
	if !s.ReadUint16(&version) || !s.ReadUint16(&wf) {
		return 0, reject(artifact, "truncated header")
	}
	if version != mlswire.VersionMLS10 {
		return 0, reject(artifact, "unsupported protocol version %d", version)
	}
	return wf, nil
}

// validateHandshake walks an MLSMessage up to the content type of its
// framed content and checks it matches want.
func validateHandshake(artifact string, data []byte, want uint8) error {
	if err := nonEmpty(artifact, data); err != nil {
		return err
	}
	s := cryptobyte.String(data)
	wf, err := readHeader(artifact, &s)
	if err != nil {
		return err
	}

	var groupID cryptobyte.String
	if err := mlswire.ReadVector(&s, &groupID); err != nil {
		return reject(artifact, "group id: %v", err)
	}
	var epoch uint64
	if !s.ReadUint64(&epoch) {
		return reject(artifact, "truncated epoch")
	}

	var contentType uint8
	switch wf {
	case mlswire.WireFormatPublicMessage:
		var senderType uint8
		if !s.ReadUint8(&senderType) {
			return reject(artifact, "truncated sender")
		}
		switch senderType {
		case mlswire.SenderMember, mlswire.SenderExternal:
			var index uint32
			if !s.ReadUint32(&index) {
				return reject(artifact, "truncated sender index")
			}
		case mlswire.SenderNewMemberProposal, mlswire.SenderNewMemberCommit:
		default:
			return reject(artifact, "unknown sender type %d", senderType)
		}
		var aad cryptobyte.String
		if err := mlswire.ReadVector(&s, &aad); err != nil {
			return reject(artifact, "authenticated data: %v", err)
		}
		if !s.ReadUint8(&contentType) {
			return reject(artifact, "truncated content type")
		}
	case mlswire.WireFormatPrivateMessage:
		if !s.ReadUint8(&contentType) {
			return reject(artifact, "truncated content type")
		}
	default:
		return reject(artifact, "wire format %d cannot carry a handshake message", wf)
	}

	// content_type travels in the clear for both wire formats.
	if contentType != want {
		return reject(artifact, "content type %d, want %d", contentType, want)
	}
	if s.Empty() {
		return reject(artifact, "missing content")
	}
	return nil
}
