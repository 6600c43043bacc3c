package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/internal/auth"
	"github.com/cortexdb/cortexdb/pkg/models"
)

func keyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) handleKeyCreate(w http.ResponseWriter, r *http.Request) {
	if !h.requireCaps(w, r, auth.RequireAdmin) {
		return
	}
	var req models.APIKeyCreate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller, _ := auth.KeyFrom(r.Context())
	var createdBy *uuid.UUID
	if caller != nil {
		createdBy = &caller.ID
	}

	created, err := h.keys.CreateKey(r.Context(), req, createdBy)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleKeyList(w http.ResponseWriter, r *http.Request) {
	if !h.requireCaps(w, r, auth.RequireAdmin) {
		return
	}
	keys, err := h.keys.ListKeys(r.Context())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (h *Handler) handleKeyGet(w http.ResponseWriter, r *http.Request) {
	if !h.requireCaps(w, r, auth.RequireAdmin) {
		return
	}
	id, ok := keyID(w, r)
	if !ok {
		return
	}
	key, err := h.keys.GetKey(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (h *Handler) handleKeyUpdate(w http.ResponseWriter, r *http.Request) {
	if !h.requireCaps(w, r, auth.RequireAdmin) {
		return
	}
	id, ok := keyID(w, r)
	if !ok {
		return
	}
	var upd models.APIKeyUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key, err := h.keys.UpdateKey(r.Context(), id, upd)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (h *Handler) handleKeyDelete(w http.ResponseWriter, r *http.Request) {
	if !h.requireCaps(w, r, auth.RequireAdmin) {
		return
	}
	id, ok := keyID(w, r)
	if !ok {
		return
	}
	caller, _ := auth.KeyFrom(r.Context())
	if err := h.keys.DeleteKey(r.Context(), id, caller); err != nil {
		h.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
