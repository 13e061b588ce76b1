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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/efchatnet/mlsds/backend/storage"
	"github.com/efchatnet/mlsds/backend/validator"
)

func TestStoreErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{storage.ErrNotFound, KindNotFound},
		{fmt.Errorf("%w: dial tcp", storage.ErrUnavailable), KindUnavailable},
		{context.DeadlineExceeded, KindUnavailable},
		{storage.ErrKeyPackageUsed, KindConflict},
		{storage.ErrEpochConflict, KindConflict},
		{storage.ErrGroupInactive, KindConflict},
		{storage.ErrDuplicateMembership, KindConflict},
		{errors.New("syntax error at or near"), KindInternal},
	}
	for _, tc := range tests {
		err := storeError("Op", "thing", tc.err)
		assert.Equal(t, tc.want, KindOf(err), "%v", tc.err)
	}

	err := storeError("GetGroup", "group", storage.ErrNotFound)
	assert.Equal(t, "GetGroup: group not found", err.Error())

	err = storeError("GetGroup", "group", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestValidationErrorKinds(t *testing.T) {
	rejected := validator.PassThrough{}.ValidateCommit(nil)
	assert.Equal(t, KindInvalidArgument, KindOf(validationError("StoreCommit", rejected)))
	assert.Equal(t, KindInternal, KindOf(validationError("StoreCommit", errors.New("oom"))))
}

func TestKindRetryable(t *testing.T) {
	assert.True(t, KindUnavailable.Retryable(true))
	assert.False(t, KindUnavailable.Retryable(false))
	for _, k := range []Kind{KindNotFound, KindInvalidArgument, KindConflict, KindInternal} {
		assert.False(t, k.Retryable(true), k.String())
	}
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	wrapped := fmt.Errorf("handler: %w", newError(KindNotFound, "GetClient", "client not found"))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}
