package server

import (
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/internal/auth"
	"github.com/cortexdb/cortexdb/internal/schema"
	"github.com/cortexdb/cortexdb/pkg/models"
)

// requireCaps runs a capability predicate for the request's key and writes
// the refusal on failure.
func (h *Handler) requireCaps(w http.ResponseWriter, r *http.Request, check func(*models.APIKey) error) bool {
	key, _ := auth.KeyFrom(r.Context())
	if err := check(key); err != nil {
		h.serviceError(w, r, err)
		return false
	}
	return true
}

// visibleDatabase reports whether the key may see rows belonging to the
// named database. Admins see everything.
func visibleDatabase(key *models.APIKey, database string) bool {
	return auth.CheckDatabaseAccess(key, database) == nil
}

func (h *Handler) handleDatabaseCreate(w http.ResponseWriter, r *http.Request) {
	if !h.requireCaps(w, r, auth.RequireManageDatabases) {
		return
	}
	var req models.DatabaseCreate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	db, err := h.databases.Create(r.Context(), req)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, db)
}

func (h *Handler) handleDatabaseList(w http.ResponseWriter, r *http.Request) {
	dbs, err := h.databases.List(r.Context())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	key, _ := auth.KeyFrom(r.Context())
	visible := make([]models.Database, 0, len(dbs))
	for _, db := range dbs {
		if visibleDatabase(key, db.Name) {
			visible = append(visible, db)
		}
	}
	writeJSON(w, http.StatusOK, visible)
}

func (h *Handler) handleDatabaseGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	key, _ := auth.KeyFrom(r.Context())
	if err := auth.CheckDatabaseAccess(key, name); err != nil {
		h.serviceError(w, r, err)
		return
	}
	db, err := h.databases.Get(r.Context(), name)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, db)
}

func (h *Handler) handleDatabaseDelete(w http.ResponseWriter, r *http.Request) {
	if !h.requireCaps(w, r, auth.RequireManageDatabases) {
		return
	}
	if err := h.databases.Delete(r.Context(), r.PathValue("name")); err != nil {
		h.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// scopedDB resolves the optional {db} path segment: when present the
// database must exist and the caller must hold access to it.
func (h *Handler) scopedDB(w http.ResponseWriter, r *http.Request) (string, bool) {
	db := r.PathValue("db")
	if db == "" {
		return "", true
	}
	if _, err := h.databases.Get(r.Context(), db); err != nil {
		h.serviceError(w, r, err)
		return "", false
	}
	key, _ := auth.KeyFrom(r.Context())
	if err := auth.CheckDatabaseAccess(key, db); err != nil {
		h.serviceError(w, r, err)
		return "", false
	}
	return db, true
}

func (h *Handler) handleCollectionCreate(w http.ResponseWriter, r *http.Request) {
	if !h.requireCaps(w, r, auth.RequireManageCollections) {
		return
	}
	db, ok := h.scopedDB(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	sch, err := schema.Parse(body)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	if db != "" {
		sch.Database = db
	}

	key, _ := auth.KeyFrom(r.Context())
	if err := auth.CheckDatabaseAccess(key, sch.Database); err != nil {
		h.serviceError(w, r, err)
		return
	}

	result, err := h.collections.Create(r.Context(), sch)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleCollectionList(w http.ResponseWriter, r *http.Request) {
	db, ok := h.scopedDB(w, r)
	if !ok {
		return
	}
	if db == "" {
		db = r.URL.Query().Get("database")
	}

	infos, err := h.collections.List(r.Context(), db)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	key, _ := auth.KeyFrom(r.Context())
	visible := make([]models.CollectionInfo, 0, len(infos))
	for _, info := range infos {
		if visibleDatabase(key, info.Database) {
			visible = append(visible, info)
		}
	}
	writeJSON(w, http.StatusOK, visible)
}

func (h *Handler) handleCollectionGet(w http.ResponseWriter, r *http.Request) {
	db, ok := h.scopedDB(w, r)
	if !ok {
		return
	}
	sch, err := h.collections.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	if db != "" && sch.Database != db {
		writeError(w, http.StatusNotFound, "collection not found in database "+db)
		return
	}
	key, _ := auth.KeyFrom(r.Context())
	if err := auth.CheckDatabaseAccess(key, sch.Database); err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

func (h *Handler) handleCollectionDelete(w http.ResponseWriter, r *http.Request) {
	if !h.requireCaps(w, r, auth.RequireManageCollections) {
		return
	}
	db, ok := h.scopedDB(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")

	sch, err := h.collections.Get(r.Context(), name)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	if db != "" && sch.Database != db {
		writeError(w, http.StatusNotFound, "collection not found in database "+db)
		return
	}
	key, _ := auth.KeyFrom(r.Context())
	if err := auth.CheckDatabaseAccess(key, sch.Database); err != nil {
		h.serviceError(w, r, err)
		return
	}

	if err := h.collections.Delete(r.Context(), name); err != nil {
		h.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleProviderCreate(w http.ResponseWriter, r *http.Request) {
	if !h.requireCaps(w, r, auth.RequireManageProviders) {
		return
	}
	var req models.EmbeddingProviderCreate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	provider, err := h.providers.Create(r.Context(), req)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, provider)
}

func (h *Handler) handleProviderList(w http.ResponseWriter, r *http.Request) {
	providers, err := h.providers.List(r.Context())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, providers)
}

func (h *Handler) handleProviderDelete(w http.ResponseWriter, r *http.Request) {
	if !h.requireCaps(w, r, auth.RequireManageProviders) {
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid provider id")
		return
	}
	if err := h.providers.Delete(r.Context(), id); err != nil {
		h.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
