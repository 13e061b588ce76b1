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

package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/mlsds/backend/storage/memory"
)

func TestNewRequiresStore(t *testing.T) {
	_, err := NewMLSIntegration(&Config{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestNewRejectsUnknownValidation(t *testing.T) {
	_, err := NewMLSIntegration(&Config{Store: memory.New(), Validation: "lenient"})
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
}

func TestRoutesRequireTokenWhenSecretSet(t *testing.T) {
	e, err := NewMLSIntegration(&Config{Store: memory.New(), JWTSecret: "s3cret", JWTIssuer: "efchat"})
	require.NoError(t, err)
	router := mux.NewRouter()
	e.RegisterRoutes(router, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/mls/clients/"+"00000000-0000-0000-0000-000000000000", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoutesUseProvidedMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	e, err := NewMLSIntegration(&Config{Store: memory.New(), Validation: "passthrough", Registerer: reg})
	require.NoError(t, err)

	called := false
	auth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			next.ServeHTTP(w, r)
		})
	}
	router := mux.NewRouter()
	e.RegisterRoutes(router, auth)

	body := strings.NewReader(`{"user_id":"7b0c6a0e-3f8a-4d7b-9d5e-1f2a3b4c5d6e","identity":"alice-1","device_name":"laptop"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/mls/clients", body))
	assert.True(t, called)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "mlsds_delivery_operations_total"))
}

func TestValidateSetup(t *testing.T) {
	ctx := context.Background()
	e, err := NewMLSIntegration(&Config{Store: memory.New()})
	require.NoError(t, err)
	err = e.ValidateSetup(ctx)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	e, err = NewMLSIntegration(&Config{Store: memory.New(), JWTSecret: "s3cret"})
	require.NoError(t, err)
	assert.NoError(t, e.ValidateSetup(ctx))
	assert.NoError(t, e.Close())
}
