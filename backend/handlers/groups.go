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

	"github.com/gorilla/mux"

	"github.com/efchatnet/mlsds/backend/delivery"
)

type GroupHandler struct {
	svc *delivery.Service
}

func NewGroupHandler(svc *delivery.Service) *GroupHandler {
	return &GroupHandler{svc: svc}
}

func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CreatorID string `json:"creator_id"`
		State     []byte `json:"state"`
	}
	if !decode(w, r, &req) {
		return
	}

	id, err := h.svc.CreateGroup(r.Context(), req.CreatorID, req.State)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"group_id": id.String()})
}

func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.GetGroup(r.Context(), mux.Vars(r)["groupId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *GroupHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.svc.ListGroups(r.Context(), mux.Vars(r)["clientId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"groups": groups})
}

func (h *GroupHandler) UpdateGroupState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State []byte `json:"state"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.UpdateGroupState(r.Context(), mux.Vars(r)["groupId"], req.State); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) DeactivateGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeactivateGroup(r.Context(), mux.Vars(r)["groupId"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID string `json:"client_id"`
		Role     string `json:"role"`
	}
	if !decode(w, r, &req) {
		return
	}

	id, err := h.svc.AddMember(r.Context(), mux.Vars(r)["groupId"], req.ClientID, req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"membership_id": id.String()})
}

func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveMember(r.Context(), mux.Vars(r)["membershipId"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *GroupHandler) ListMemberships(w http.ResponseWriter, r *http.Request) {
	ms, err := h.svc.ListMemberships(r.Context(), mux.Vars(r)["groupId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"memberships": ms})
}
