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

// Package validator checks the wire format of MLS artifacts before the
// delivery service stores them. It never decrypts or interprets content.
package validator

import (
	"errors"
	"fmt"
)

// Validator accepts or rejects an artifact. A rejection is reported as a
// *Rejection; any other error is a validator fault.
type Validator interface {
	ValidateKeyPackage(data []byte) error
	ValidateGroupState(data []byte) error
	ValidateProposal(data []byte) error
	ValidateCommit(data []byte) error
	ValidateWelcome(data []byte) error
}

// Artifact names used in rejections.
const (
	ArtifactKeyPackage = "key package"
	ArtifactGroupState = "group state"
	ArtifactProposal   = "proposal"
	ArtifactCommit     = "commit"
	ArtifactWelcome    = "welcome"
)

// Rejection is returned when an artifact fails validation.
type Rejection struct {
	Artifact string
	Reason   string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("invalid %s: %s", r.Artifact, r.Reason)
}

func reject(artifact, format string, args ...interface{}) error {
	return &Rejection{Artifact: artifact, Reason: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err is, or wraps, a Rejection.
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}

// New returns the validator for a mode name: "strict" or "passthrough".
func New(mode string) (Validator, error) {
	switch mode {
	case "", "strict":
		return MLS{}, nil
	case "passthrough":
		return PassThrough{}, nil
	}
	return nil, fmt.Errorf("validator: unknown mode %q", mode)
}

// PassThrough trusts clients and only rejects empty payloads.
type PassThrough struct{}

func nonEmpty(artifact string, data []byte) error {
	if len(data) == 0 {
		return reject(artifact, "empty payload")
	}
	return nil
}

func (PassThrough) ValidateKeyPackage(data []byte) error {
	return nonEmpty(ArtifactKeyPackage, data)
}

func (PassThrough) ValidateGroupState(data []byte) error {
	return nonEmpty(ArtifactGroupState, data)
}

func (PassThrough) ValidateProposal(data []byte) error {
	return nonEmpty(ArtifactProposal, data)
}

func (PassThrough) ValidateCommit(data []byte) error {
	return nonEmpty(ArtifactCommit, data)
}

func (PassThrough) ValidateWelcome(data []byte) error {
	return nonEmpty(ArtifactWelcome, data)
}
