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
	"strconv"

	"github.com/gorilla/mux"

	"github.com/efchatnet/mlsds/backend/delivery"
)

type MessageHandler struct {
	svc *delivery.Service
}

func NewMessageHandler(svc *delivery.Service) *MessageHandler {
	return &MessageHandler{svc: svc}
}

func (h *MessageHandler) StoreProposal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID     string `json:"sender_id"`
		Proposal     []byte `json:"proposal"`
		ProposalType string `json:"proposal_type"`
	}
	if !decode(w, r, &req) {
		return
	}

	id, err := h.svc.StoreProposal(r.Context(), mux.Vars(r)["groupId"], req.SenderID, req.Proposal, req.ProposalType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message_id": id.String()})
}

func (h *MessageHandler) StoreCommit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID string  `json:"sender_id"`
		Commit   []byte  `json:"commit"`
		Epoch    *uint64 `json:"epoch"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Epoch == nil {
		badRequest(w, "epoch is required")
		return
	}

	id, err := h.svc.StoreCommit(r.Context(), mux.Vars(r)["groupId"], req.SenderID, req.Commit, *req.Epoch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message_id": id.String()})
}

func (h *MessageHandler) StoreWelcome(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID     string   `json:"sender_id"`
		Welcome      []byte   `json:"welcome"`
		RecipientIDs []string `json:"recipient_ids"`
	}
	if !decode(w, r, &req) {
		return
	}

	id, err := h.svc.StoreWelcome(r.Context(), mux.Vars(r)["groupId"], req.SenderID, req.Welcome, req.RecipientIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message_id": id.String()})
}

// FetchMessages reads the optional group_id and include_read query
// parameters. With auth on, only the client's own user may read.
func (h *MessageHandler) FetchMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeRead := false
	if v := q.Get("include_read"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(w, "include_read must be a boolean")
			return
		}
		includeRead = b
	}
	clientID := mux.Vars(r)["clientId"]
	if !ownsClient(w, r, h.svc, clientID) {
		return
	}

	msgs, err := h.svc.FetchMessages(r.Context(), clientID, q.Get("group_id"), includeRead)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (h *MessageHandler) MarkMessagesRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageIDs []string `json:"message_ids"`
	}
	if !decode(w, r, &req) {
		return
	}

	n, err := h.svc.MarkMessagesRead(r.Context(), req.MessageIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}
