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

type KeyPackageHandler struct {
	svc *delivery.Service
}

func NewKeyPackageHandler(svc *delivery.Service) *KeyPackageHandler {
	return &KeyPackageHandler{svc: svc}
}

func (h *KeyPackageHandler) PublishKeyPackage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		KeyPackage []byte `json:"key_package"`
	}
	if !decode(w, r, &req) {
		return
	}
	clientID := mux.Vars(r)["clientId"]
	if !ownsClient(w, r, h.svc, clientID) {
		return
	}

	id, err := h.svc.PublishKeyPackage(r.Context(), clientID, req.KeyPackage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key_package_id": id.String()})
}

func (h *KeyPackageHandler) GetKeyPackage(w http.ResponseWriter, r *http.Request) {
	kp, err := h.svc.GetKeyPackage(r.Context(), mux.Vars(r)["keyPackageId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kp)
}

// ListKeyPackages only ever returns unused packages.
func (h *KeyPackageHandler) ListKeyPackages(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["clientId"]
	if !ownsClient(w, r, h.svc, clientID) {
		return
	}
	kps, err := h.svc.ListKeyPackages(r.Context(), clientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"key_packages": kps})
}

// ConsumeKeyPackage is open to any caller: adding a client to a group
// consumes one of that client's packages.
func (h *KeyPackageHandler) ConsumeKeyPackage(w http.ResponseWriter, r *http.Request) {
	kp, err := h.svc.ConsumeKeyPackage(r.Context(), mux.Vars(r)["clientId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kp)
}

func (h *KeyPackageHandler) MarkKeyPackageUsed(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkKeyPackageUsed(r.Context(), mux.Vars(r)["keyPackageId"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
