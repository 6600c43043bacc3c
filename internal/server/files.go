package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/internal/auth"
)

// fileUploadResponse reports where an out-of-band upload landed. URL is null
// when presigning failed; the object is still stored.
type fileUploadResponse struct {
	Bucket string  `json:"bucket"`
	Path   string  `json:"path"`
	URL    *string `json:"url"`
}

func (h *Handler) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "parse multipart form: "+err.Error())
		return
	}

	collection := r.FormValue("collection")
	if collection == "" {
		writeError(w, http.StatusBadRequest, "collection form field is required")
		return
	}
	sch, ok := h.scopedSchema(w, r, collection)
	if !ok {
		return
	}
	if !h.allowWrite(w, r, auth.OpUpload) {
		return
	}

	f, fh, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file form field is required")
		return
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	bucket := sch.Bucket()
	if err := h.files.EnsureBucket(r.Context(), bucket); err != nil {
		h.serviceError(w, r, err)
		return
	}

	path := fmt.Sprintf("%s/uploads/%s_%s", collection, uuid.New(), fh.Filename)
	if err := h.files.Upload(r.Context(), bucket, path, f, fh.Size, contentType); err != nil {
		h.serviceError(w, r, err)
		return
	}

	resp := fileUploadResponse{Bucket: bucket, Path: path}
	if url, err := h.files.PresignedGetURL(r.Context(), bucket, path); err != nil {
		h.logger.Warn(r.Context(), "presign failed after upload",
			"bucket", bucket, "path", path, "error", err)
	} else {
		resp.URL = &url
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleFileDownload(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	sch, ok := h.scopedSchema(w, r, collection)
	if !ok {
		return
	}

	path := fmt.Sprintf("%s/%s/%s", collection, r.PathValue("record_id"), r.PathValue("filename"))
	obj, err := h.files.Download(r.Context(), sch.Bucket(), path)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	defer obj.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj); err != nil {
		h.logger.Warn(r.Context(), "file stream interrupted",
			"bucket", sch.Bucket(), "path", path, "error", err)
	}
}
