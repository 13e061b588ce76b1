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

package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/mlsds/backend/delivery"
	"github.com/efchatnet/mlsds/backend/middleware"
	"github.com/efchatnet/mlsds/backend/models"
	"github.com/efchatnet/mlsds/backend/storage/memory"
	"github.com/efchatnet/mlsds/backend/validator"
)

type api struct {
	t      *testing.T
	router *mux.Router
}

func newAPI(t *testing.T) *api {
	t.Helper()
	svc := delivery.New(memory.New(), validator.PassThrough{})
	router := mux.NewRouter()
	router.HandleFunc("/health", Health(svc)).Methods("GET")
	Register(router.PathPrefix("/api/mls").Subrouter(), svc)
	return &api{t: t, router: router}
}

func (a *api) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/mls"+path, &buf)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func (a *api) client(identity string) string {
	a.t.Helper()
	rec := a.do("POST", "/clients", map[string]string{
		"user_id":     uuid.NewString(),
		"identity":    identity,
		"device_name": "phone",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var out map[string]string
	decodeBody(a.t, rec, &out)
	return out["client_id"]
}

func (a *api) group(creator string) string {
	a.t.Helper()
	rec := a.do("POST", "/groups", map[string]interface{}{"creator_id": creator, "state": []byte{1, 2, 3}})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var out map[string]string
	decodeBody(a.t, rec, &out)
	return out["group_id"]
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out map[string]errorBody
	decodeBody(t, rec, &out)
	return out["error"].Kind
}

func TestClientRoutes(t *testing.T) {
	a := newAPI(t)
	id := a.client("alice-1")

	rec := a.do("GET", "/clients/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var c models.Client
	decodeBody(t, rec, &c)
	assert.Equal(t, id, c.ID.String())
	assert.Equal(t, "phone", c.DeviceName)
	assert.Len(t, c.InitKey, 32)

	rec = a.do("GET", "/users/"+c.UserID.String()+"/clients", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Clients []models.Client `json:"clients"`
	}
	decodeBody(t, rec, &list)
	require.Len(t, list.Clients, 1)

	rec = a.do("GET", "/clients/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorKind(t, rec))

	rec = a.do("GET", "/clients/nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_argument", errorKind(t, rec))
}

func TestMalformedBody(t *testing.T) {
	a := newAPI(t)
	req := httptest.NewRequest("POST", "/api/mls/clients", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_argument", errorKind(t, rec))

	rec = a.do("POST", "/clients", map[string]string{"surprise": "field"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKeyPackageRoutes(t *testing.T) {
	a := newAPI(t)
	client := a.client("bob-1")

	rec := a.do("POST", "/clients/"+client+"/key-packages", map[string][]byte{"key_package": {7, 7}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var published map[string]string
	decodeBody(t, rec, &published)
	kpID := published["key_package_id"]

	rec = a.do("GET", "/clients/"+client+"/key-packages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		KeyPackages []models.KeyPackage `json:"key_packages"`
	}
	decodeBody(t, rec, &list)
	require.Len(t, list.KeyPackages, 1)
	assert.Equal(t, []byte{7, 7}, list.KeyPackages[0].Data)

	rec = a.do("POST", "/clients/"+client+"/key-packages/consume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var kp models.KeyPackage
	decodeBody(t, rec, &kp)
	assert.Equal(t, kpID, kp.ID.String())
	assert.True(t, kp.Used)

	rec = a.do("POST", "/clients/"+client+"/key-packages/consume", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do("POST", "/key-packages/"+kpID+"/used", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", errorKind(t, rec))

	rec = a.do("GET", "/key-packages/"+kpID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGroupRoutes(t *testing.T) {
	a := newAPI(t)
	alice := a.client("alice-1")
	bob := a.client("bob-1")
	group := a.group(alice)

	rec := a.do("POST", "/groups/"+group+"/members", map[string]string{"client_id": bob})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var added map[string]string
	decodeBody(t, rec, &added)

	rec = a.do("POST", "/groups/"+group+"/members", map[string]string{"client_id": bob})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do("GET", "/groups/"+group+"/members", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var members struct {
		Memberships []models.Membership `json:"memberships"`
	}
	decodeBody(t, rec, &members)
	assert.Len(t, members.Memberships, 2)

	rec = a.do("GET", "/clients/"+bob+"/groups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var groups struct {
		Groups []models.Group `json:"groups"`
	}
	decodeBody(t, rec, &groups)
	require.Len(t, groups.Groups, 1)
	assert.Equal(t, group, groups.Groups[0].ID.String())

	rec = a.do("DELETE", "/memberships/"+added["membership_id"], nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = a.do("PUT", "/groups/"+group+"/state", map[string][]byte{"state": {4}})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do("GET", "/groups/"+group, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var g models.Group
	decodeBody(t, rec, &g)
	assert.Equal(t, []byte{4}, g.State)
	assert.True(t, g.IsActive)

	rec = a.do("POST", "/groups/"+group+"/deactivate", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do("PUT", "/groups/"+group+"/state", map[string][]byte{"state": {5}})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMessageRoutes(t *testing.T) {
	a := newAPI(t)
	alice := a.client("alice-1")
	bob := a.client("bob-1")
	group := a.group(alice)

	rec := a.do("POST", "/groups/"+group+"/commits", map[string]interface{}{
		"sender_id": alice, "commit": []byte{1}, "epoch": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do("POST", "/groups/"+group+"/commits", map[string]interface{}{
		"sender_id": alice, "commit": []byte{2}, "epoch": 1,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do("POST", "/groups/"+group+"/commits", map[string]interface{}{
		"sender_id": alice, "commit": []byte{2},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do("POST", "/groups/"+group+"/proposals", map[string]interface{}{
		"sender_id": alice, "proposal": []byte{3}, "proposal_type": "add",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do("POST", "/groups/"+group+"/welcomes", map[string]interface{}{
		"sender_id": alice, "welcome": []byte{4}, "recipient_ids": []string{bob},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do("GET", "/clients/"+bob+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var inbox struct {
		Messages []models.Message `json:"messages"`
	}
	decodeBody(t, rec, &inbox)
	require.Len(t, inbox.Messages, 1)
	assert.Equal(t, models.KindWelcome, inbox.Messages[0].Kind)

	rec = a.do("GET", "/clients/"+alice+"/messages?group_id="+group, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &inbox)
	require.Len(t, inbox.Messages, 3)

	ids := make([]string, 0, len(inbox.Messages))
	for _, m := range inbox.Messages {
		ids = append(ids, m.ID.String())
	}
	rec = a.do("POST", "/messages/read", map[string][]string{"message_ids": ids})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"marked":3}`, rec.Body.String())

	rec = a.do("GET", "/clients/"+alice+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &inbox)
	assert.Empty(t, inbox.Messages)

	rec = a.do("GET", "/clients/"+alice+"/messages?include_read=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &inbox)
	assert.Len(t, inbox.Messages, 3)

	rec = a.do("GET", "/clients/"+alice+"/messages?include_read=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// failingStore reports every ping as unreachable.
type failingStore struct {
	*memory.Store
}

func (failingStore) Ping(context.Context) error {
	return context.DeadlineExceeded
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	svc := delivery.New(failingStore{memory.New()}, validator.PassThrough{})
	rec = httptest.NewRecorder()
	Health(svc)(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInternalErrorsHideDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, &delivery.Error{Kind: delivery.KindInternal, Op: "op", Detail: "secret"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}

const testSecret = "s3cret"

func token(t *testing.T, userID string) string {
	t.Helper()
	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	claims, err := json.Marshal(map[string]interface{}{
		"user_id": userID,
		"iss":     "efchat",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	payload := header + "." + enc.EncodeToString(claims)
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(payload))
	return payload + "." + enc.EncodeToString(mac.Sum(nil))
}

func authedDo(t *testing.T, router http.Handler, tok, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/mls"+path, &buf)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestClientRoutesAreScopedToTokenUser(t *testing.T) {
	svc := delivery.New(memory.New(), validator.PassThrough{})
	router := mux.NewRouter()
	api := router.PathPrefix("/api/mls").Subrouter()
	api.Use(middleware.NewAuthMiddleware(testSecret, "efchat"))
	Register(api, svc)

	alice, mallory := token(t, uuid.NewString()), token(t, uuid.NewString())

	rec := authedDo(t, router, alice, "POST", "/clients", map[string]string{"identity": "alice-1", "device_name": "phone"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created map[string]string
	decodeBody(t, rec, &created)
	client := created["client_id"]

	rec = authedDo(t, router, alice, "POST", "/clients", map[string]string{
		"user_id": uuid.NewString(), "identity": "alice-2", "device_name": "phone",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorKind(t, rec))

	rec = authedDo(t, router, alice, "POST", "/clients/"+client+"/key-packages", map[string][]byte{"key_package": {1}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	for _, path := range []string{"/clients/" + client + "/messages", "/clients/" + client + "/key-packages"} {
		rec = authedDo(t, router, mallory, "GET", path, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
		rec = authedDo(t, router, alice, "GET", path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec = authedDo(t, router, mallory, "POST", "/clients/"+client+"/key-packages", map[string][]byte{"key_package": {2}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = authedDo(t, router, mallory, "POST", "/clients/"+client+"/key-packages/consume", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = authedDo(t, router, mallory, "GET", "/clients/"+uuid.NewString()+"/messages", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
