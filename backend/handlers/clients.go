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
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/efchatnet/mlsds/backend/delivery"
	"github.com/efchatnet/mlsds/backend/middleware"
)

type ClientHandler struct {
	svc *delivery.Service
}

func NewClientHandler(svc *delivery.Service) *ClientHandler {
	return &ClientHandler{svc: svc}
}

// RegisterClient takes the user id from the body, or from the token when
// the body leaves it out.
func (h *ClientHandler) RegisterClient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string `json:"user_id"`
		Identity   string `json:"identity"`
		DeviceName string `json:"device_name"`
	}
	if !decode(w, r, &req) {
		return
	}
	if user, ok := middleware.GetUserID(r); ok {
		if req.UserID == "" {
			req.UserID = user
		} else if !strings.EqualFold(req.UserID, user) {
			forbidden(w, "user_id does not match the token")
			return
		}
	}

	id, err := h.svc.RegisterClient(r.Context(), req.UserID, req.Identity, req.DeviceName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"client_id": id.String()})
}

func (h *ClientHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetClient(r.Context(), mux.Vars(r)["clientId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ClientHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.svc.ListClients(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"clients": clients})
}
