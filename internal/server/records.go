package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/internal/auth"
	"github.com/cortexdb/cortexdb/internal/ingest"
	"github.com/cortexdb/cortexdb/internal/schema"
	"github.com/cortexdb/cortexdb/internal/value"
	"github.com/cortexdb/cortexdb/pkg/models"
)

// maxUploadMemory bounds how much of a multipart body is buffered in memory
// before spilling to disk.
const maxUploadMemory = 32 << 20

// scopedSchema resolves the collection and enforces the caller's database
// scope. On failure it writes the response and reports false.
func (h *Handler) scopedSchema(w http.ResponseWriter, r *http.Request, collection string) (*schema.Schema, bool) {
	sch, err := h.collections.Get(r.Context(), collection)
	if err != nil {
		h.serviceError(w, r, err)
		return nil, false
	}
	key, _ := auth.KeyFrom(r.Context())
	if err := auth.CheckDatabaseAccess(key, sch.Database); err != nil {
		h.serviceError(w, r, err)
		return nil, false
	}
	return sch, true
}

// allowWrite rejects the operation for read-only keys.
func (h *Handler) allowWrite(w http.ResponseWriter, r *http.Request, op string) bool {
	key, _ := auth.KeyFrom(r.Context())
	if err := auth.CheckReadOnly(key, op); err != nil {
		h.serviceError(w, r, err)
		return false
	}
	return true
}

func recordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid record id %q", r.PathValue("id")))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) handleRecordCreate(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	if _, ok := h.scopedSchema(w, r, collection); !ok {
		return
	}
	if !h.allowWrite(w, r, auth.OpCreate) {
		return
	}

	fields, files, err := parseRecordBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.records.Create(r.Context(), collection, fields, files)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleRecordGet(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	if _, ok := h.scopedSchema(w, r, collection); !ok {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	record, err := h.records.Get(r.Context(), collection, id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) handleRecordUpdate(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	if _, ok := h.scopedSchema(w, r, collection); !ok {
		return
	}
	if !h.allowWrite(w, r, auth.OpUpdate) {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	fields, files, err := parseRecordBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.records.Update(r.Context(), collection, id, fields, files)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRecordDelete(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	if _, ok := h.scopedSchema(w, r, collection); !ok {
		return
	}
	if !h.allowWrite(w, r, auth.OpDelete) {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	if err := h.records.Delete(r.Context(), collection, id); err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id.String()})
}

func (h *Handler) handleRecordVectors(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	if _, ok := h.scopedSchema(w, r, collection); !ok {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	vectors, err := h.records.Vectors(r.Context(), collection, id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]ingest.VectorChunk{"vectors": vectors})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	if _, ok := h.scopedSchema(w, r, collection); !ok {
		return
	}

	var req models.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := h.search.Search(r.Context(), collection, req.Query, req.Filters, req.Limit)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	if _, ok := h.scopedSchema(w, r, collection); !ok {
		return
	}

	var req models.QueryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.records.Query(r.Context(), collection, req.Filters, req.Limit, req.Offset)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// parseRecordBody accepts either a JSON object or a multipart form. Form
// values that parse as JSON keep their decoded type; everything else stays a
// string. File parts become uploads keyed by field name.
func parseRecordBody(r *http.Request) (map[string]value.Value, map[string]ingest.Upload, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return parseMultipartRecord(r)
	}

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, nil, fmt.Errorf("request body must be a JSON object: %v", err)
	}

	fields := make(map[string]value.Value, len(body))
	for k, v := range body {
		fields[k] = value.FromJSON(v)
	}
	return fields, map[string]ingest.Upload{}, nil
}

func parseMultipartRecord(r *http.Request) (map[string]value.Value, map[string]ingest.Upload, error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, nil, fmt.Errorf("parse multipart form: %v", err)
	}

	fields := make(map[string]value.Value)
	for key, vals := range r.MultipartForm.Value {
		if len(vals) == 0 {
			continue
		}
		fields[key] = formValue(vals[len(vals)-1])
	}

	files := make(map[string]ingest.Upload)
	for key, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		fh := headers[len(headers)-1]
		f, err := fh.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("open file part %q: %v", key, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("read file part %q: %v", key, err)
		}
		contentType := fh.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		files[key] = ingest.Upload{
			Filename:    fh.Filename,
			ContentType: contentType,
			Data:        data,
		}
	}
	return fields, files, nil
}

// formValue decodes a multipart form value: valid JSON keeps its type so
// numbers, booleans, nulls, and nested documents survive the form encoding.
// Anything with trailing content ("5 apples") stays a plain string.
func formValue(s string) value.Value {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err == nil {
		if _, err := dec.Token(); err == io.EOF {
			return value.FromJSON(decoded)
		}
	}
	return value.String(s)
}
