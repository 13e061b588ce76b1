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

package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/efchatnet/mlsds/backend/storage"
	"github.com/efchatnet/mlsds/backend/validator"
)

// Kind is the stable error category returned to transports.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidArgument
	KindConflict
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	}
	return "internal"
}

// Retryable reports whether a caller may retry an operation that failed
// with this kind. Writes carry no idempotency key, so only reads qualify.
func (k Kind) Retryable(readOnly bool) bool {
	return k == KindUnavailable && readOnly
}

// Error is the only error type the Service returns.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Detail
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a Service error, or KindInternal for anything
// else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func newError(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

func parseID(op, field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, newError(KindInvalidArgument, op, "invalid %s %q", field, s)
	}
	return id, nil
}

// storeError maps a storage failure onto the taxonomy. what names the
// entity for not-found details.
func storeError(op, what string, err error) error {
	e := &Error{Op: op, Err: err}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		e.Kind, e.Detail, e.Err = KindNotFound, what+" not found", nil
	case errors.Is(err, storage.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		e.Kind, e.Detail = KindUnavailable, "store unavailable"
	case errors.Is(err, storage.ErrKeyPackageUsed):
		e.Kind, e.Detail, e.Err = KindConflict, "key package already used", nil
	case errors.Is(err, storage.ErrEpochConflict):
		e.Kind, e.Detail, e.Err = KindConflict, "group epoch changed concurrently", nil
	case errors.Is(err, storage.ErrGroupInactive):
		e.Kind, e.Detail, e.Err = KindConflict, "group is not active", nil
	case errors.Is(err, storage.ErrDuplicateMembership):
		e.Kind, e.Detail, e.Err = KindConflict, "client is already an active member", nil
	default:
		e.Kind, e.Detail = KindInternal, "store failure"
	}
	return e
}

func validationError(op string, err error) error {
	if validator.IsRejection(err) {
		return &Error{Kind: KindInvalidArgument, Op: op, Detail: err.Error()}
	}
	return &Error{Kind: KindInternal, Op: op, Detail: "validator failure", Err: err}
}
