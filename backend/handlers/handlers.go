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

// Package handlers exposes the delivery service as JSON over HTTP. Binary
// fields travel as base64 strings, ids as canonical UUID text and times as
// RFC 3339.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/efchatnet/mlsds/backend/delivery"
	"github.com/efchatnet/mlsds/backend/middleware"
)

// Register mounts every delivery route on r.
func Register(r *mux.Router, svc *delivery.Service) {
	clients := NewClientHandler(svc)
	keys := NewKeyPackageHandler(svc)
	groups := NewGroupHandler(svc)
	messages := NewMessageHandler(svc)

	// Clients
	r.HandleFunc("/clients", clients.RegisterClient).Methods("POST")
	r.HandleFunc("/clients/{clientId}", clients.GetClient).Methods("GET")
	r.HandleFunc("/users/{userId}/clients", clients.ListClients).Methods("GET")

	// Key packages
	r.HandleFunc("/clients/{clientId}/key-packages", keys.PublishKeyPackage).Methods("POST")
	r.HandleFunc("/clients/{clientId}/key-packages", keys.ListKeyPackages).Methods("GET")
	r.HandleFunc("/clients/{clientId}/key-packages/consume", keys.ConsumeKeyPackage).Methods("POST")
	r.HandleFunc("/key-packages/{keyPackageId}", keys.GetKeyPackage).Methods("GET")
	r.HandleFunc("/key-packages/{keyPackageId}/used", keys.MarkKeyPackageUsed).Methods("POST")

	// Groups and memberships
	r.HandleFunc("/groups", groups.CreateGroup).Methods("POST")
	r.HandleFunc("/groups/{groupId}", groups.GetGroup).Methods("GET")
	r.HandleFunc("/groups/{groupId}/state", groups.UpdateGroupState).Methods("PUT")
	r.HandleFunc("/groups/{groupId}/deactivate", groups.DeactivateGroup).Methods("POST")
	r.HandleFunc("/clients/{clientId}/groups", groups.ListGroups).Methods("GET")
	r.HandleFunc("/groups/{groupId}/members", groups.AddMember).Methods("POST")
	r.HandleFunc("/groups/{groupId}/members", groups.ListMemberships).Methods("GET")
	r.HandleFunc("/memberships/{membershipId}", groups.RemoveMember).Methods("DELETE")

	// Messages
	r.HandleFunc("/groups/{groupId}/proposals", messages.StoreProposal).Methods("POST")
	r.HandleFunc("/groups/{groupId}/commits", messages.StoreCommit).Methods("POST")
	r.HandleFunc("/groups/{groupId}/welcomes", messages.StoreWelcome).Methods("POST")
	r.HandleFunc("/clients/{clientId}/messages", messages.FetchMessages).Methods("GET")
	r.HandleFunc("/messages/read", messages.MarkMessagesRead).Methods("POST")
}

// Health answers 200 when the store is reachable and 503 otherwise.
func Health(svc *delivery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Store unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

type errorBody struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

func statusFor(kind delivery.Kind) int {
	switch kind {
	case delivery.KindNotFound:
		return http.StatusNotFound
	case delivery.KindInvalidArgument:
		return http.StatusBadRequest
	case delivery.KindConflict:
		return http.StatusConflict
	case delivery.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders a service error. Internal details are not sent.
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Kind: delivery.KindInternal.String(), Detail: "internal error"}
	var e *delivery.Error
	if errors.As(err, &e) && e.Kind != delivery.KindInternal {
		body = errorBody{Kind: e.Kind.String(), Detail: e.Detail}
	}
	writeJSON(w, statusFor(delivery.KindOf(err)), map[string]errorBody{"error": body})
}

func badRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, map[string]errorBody{
		"error": {Kind: delivery.KindInvalidArgument.String(), Detail: detail},
	})
}

func forbidden(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusForbidden, map[string]errorBody{
		"error": {Kind: "forbidden", Detail: detail},
	})
}

// ownsClient passes when auth is off or the client belongs to the token's
// user. On failure the response is already written.
func ownsClient(w http.ResponseWriter, r *http.Request, svc *delivery.Service, clientID string) bool {
	user, ok := middleware.GetUserID(r)
	if !ok {
		return true
	}
	c, err := svc.GetClient(r.Context(), clientID)
	if err != nil {
		writeError(w, err)
		return false
	}
	if !strings.EqualFold(c.UserID.String(), user) {
		forbidden(w, "client belongs to another user")
		return false
	}
	return true
}

// decode reads a JSON body into v and answers 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid request body")
		return false
	}
	return true
}
