package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/internal/ingest"
	"github.com/cortexdb/cortexdb/internal/store/minio"
	"github.com/cortexdb/cortexdb/internal/store/postgres"
	"github.com/cortexdb/cortexdb/internal/value"
)

type filePart struct {
	field       string
	filename    string
	contentType string
	data        string
}

func multipartBody(t *testing.T, values map[string]string, files []filePart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range values {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	for _, fp := range files {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, fp.field, fp.filename))
		hdr.Set("Content-Type", fp.contentType)
		part, err := w.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part %s: %v", fp.field, err)
		}
		if _, err := part.Write([]byte(fp.data)); err != nil {
			t.Fatalf("write part %s: %v", fp.field, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func doMultipart(t *testing.T, h http.Handler, path, token string, values map[string]string, files []filePart) *httptest.ResponseRecorder {
	t.Helper()
	buf, contentType := multipartBody(t, values, files)
	req := httptest.NewRequest(http.MethodPost, path, buf)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRecordCreateJSON(t *testing.T) {
	h, f := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/collections/tickets/records", scopedToken,
		`{"subject":"printer on fire","priority":3,"open":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", rec.Code, rec.Body.String())
	}

	if f.records.gotCollection != "tickets" {
		t.Errorf("collection = %q, want tickets", f.records.gotCollection)
	}
	if got, ok := f.records.gotFields["subject"].StringVal(); !ok || got != "printer on fire" {
		t.Errorf("subject = %v", f.records.gotFields["subject"])
	}
	if got, ok := f.records.gotFields["priority"].IntVal(); !ok || got != 3 {
		t.Errorf("priority = %v, want int 3", f.records.gotFields["priority"])
	}
	if got, ok := f.records.gotFields["open"].BoolVal(); !ok || !got {
		t.Errorf("open = %v, want true", f.records.gotFields["open"])
	}
	if len(f.records.gotFiles) != 0 {
		t.Errorf("files = %v, want none", f.records.gotFiles)
	}

	body := decodeMap(t, rec)
	if body["id"] != f.records.result.ID.String() {
		t.Errorf("response id = %v, want %s", body["id"], f.records.result.ID)
	}
}

func TestRecordCreateRejectsNonObject(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/collections/tickets/records", scopedToken, `[1,2,3]`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("array body: status = %d, want 400", rec.Code)
	}
}

func TestRecordCreateMultipart(t *testing.T) {
	h, f := newTestHandler(t)

	rec := doMultipart(t, h, "/collections/tickets/records", scopedToken,
		map[string]string{
			"subject":  "hello world",
			"priority": "4",
			"tags":     `["vip","billing"]`,
		},
		[]filePart{{field: "attachment", filename: "report.pdf", contentType: "application/pdf", data: "PDFDATA"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", rec.Code, rec.Body.String())
	}

	if got, ok := f.records.gotFields["subject"].StringVal(); !ok || got != "hello world" {
		t.Errorf("subject = %v, want plain string", f.records.gotFields["subject"])
	}
	if got, ok := f.records.gotFields["priority"].IntVal(); !ok || got != 4 {
		t.Errorf("priority = %v, want int 4 decoded from form value", f.records.gotFields["priority"])
	}
	tags, ok := f.records.gotFields["tags"].ListVal()
	if !ok || len(tags) != 2 {
		t.Fatalf("tags = %v, want decoded 2-element list", f.records.gotFields["tags"])
	}

	up, ok := f.records.gotFiles["attachment"]
	if !ok {
		t.Fatalf("attachment upload missing: %v", f.records.gotFiles)
	}
	if up.Filename != "report.pdf" || up.ContentType != "application/pdf" || string(up.Data) != "PDFDATA" {
		t.Errorf("upload = %+v", up)
	}
}

func TestRecordWritesBlockedForReadonly(t *testing.T) {
	h, _ := newTestHandler(t)
	id := uuid.NewString()

	writes := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/collections/tickets/records", `{"subject":"x"}`},
		{http.MethodPatch, "/collections/tickets/records/" + id, `{"subject":"x"}`},
		{http.MethodDelete, "/collections/tickets/records/" + id, ""},
	}
	for _, w := range writes {
		rec := doJSON(t, h, w.method, w.path, readonlyToken, w.body)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s %s readonly: status = %d, want 403", w.method, w.path, rec.Code)
		}
	}

	rec := doJSON(t, h, http.MethodGet, "/collections/tickets/records/"+id, readonlyToken, "")
	if rec.Code != http.StatusOK {
		t.Errorf("readonly GET: status = %d, want 200", rec.Code)
	}
}

func TestRecordDatabaseScopeEnforced(t *testing.T) {
	h, _ := newTestHandler(t)

	// articles lives in the default namespace; the crm key cannot touch it.
	rec := doJSON(t, h, http.MethodPost, "/collections/articles/records", scopedToken, `{"title":"x"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("out-of-scope collection: status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/collections/ghost/records", scopedToken, `{"title":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown collection: status = %d, want 404", rec.Code)
	}
}

func TestRecordDeleteShape(t *testing.T) {
	h, f := newTestHandler(t)
	id := uuid.New()

	rec := doJSON(t, h, http.MethodDelete, "/collections/tickets/records/"+id.String(), adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeMap(t, rec)
	if body["status"] != "deleted" || body["id"] != id.String() {
		t.Errorf("body = %v, want status deleted with id", body)
	}
	if len(f.records.deleted) != 1 || f.records.deleted[0] != id {
		t.Errorf("deleted ids = %v, want [%s]", f.records.deleted, id)
	}
}

func TestRecordVectorsWrapped(t *testing.T) {
	h, f := newTestHandler(t)
	f.records.vectors = []ingest.VectorChunk{
		{ID: "p1", Field: "subject", ChunkIndex: 0, Text: "hello"},
	}

	rec := doJSON(t, h, http.MethodGet,
		"/collections/tickets/records/"+uuid.NewString()+"/vectors", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeMap(t, rec)
	vectors, ok := body["vectors"].([]any)
	if !ok || len(vectors) != 1 {
		t.Fatalf("vectors = %v, want wrapped 1-element list", body)
	}
}

func TestRecordInvalidID(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/collections/tickets/records/not-a-uuid", adminToken, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSearchRoute(t *testing.T) {
	h, f := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/collections/tickets/search", readonlyToken,
		`{"query":"printer","filters":{"status":"open"},"limit":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	if f.search.gotCollection != "tickets" || f.search.gotQuery != "printer" || f.search.gotLimit != 5 {
		t.Errorf("search call = (%q, %q, %d)", f.search.gotCollection, f.search.gotQuery, f.search.gotLimit)
	}
	if f.search.gotFilters["status"] != "open" {
		t.Errorf("filters = %v", f.search.gotFilters)
	}
	body := decodeMap(t, rec)
	if body["took_ms"] != 1.25 {
		t.Errorf("took_ms = %v, want passthrough 1.25", body["took_ms"])
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/collections/tickets/search", adminToken, `{"limit":5}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty query: status = %d, want 400", rec.Code)
	}
}

func TestQueryRoute(t *testing.T) {
	h, f := newTestHandler(t)
	f.records.page = &ingest.QueryPage{
		Records: []map[string]value.Value{{"subject": value.String("hi")}},
		Total:   1, Limit: 10, Offset: 20,
	}

	rec := doJSON(t, h, http.MethodPost, "/collections/tickets/query", readonlyToken,
		`{"filters":{"priority":{"$gte":2}},"limit":10,"offset":20}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	if f.records.gotLimit != 10 || f.records.gotOffset != 20 {
		t.Errorf("limit/offset = %d/%d, want 10/20", f.records.gotLimit, f.records.gotOffset)
	}
	if _, ok := f.records.gotFilters["priority"]; !ok {
		t.Errorf("filters = %v", f.records.gotFilters)
	}
	body := decodeMap(t, rec)
	if body["total"] != float64(1) {
		t.Errorf("total = %v, want 1", body["total"])
	}
}

const invoicesYAML = `name: invoices
fields:
  - name: vendor
    type: string
    required: true
  - name: total
    type: float
`

func TestCollectionCreateYAML(t *testing.T) {
	h, f := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/collections", strings.NewReader(invoicesYAML))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("Content-Type", "application/x-yaml")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", rec.Code, rec.Body.String())
	}
	if len(f.collections.created) != 1 || f.collections.created[0].Name != "invoices" {
		t.Fatalf("created = %v", f.collections.created)
	}
	body := decodeMap(t, rec)
	if body["collection"] != "invoices" {
		t.Errorf("creation result = %v", body)
	}
}

func TestCollectionCreateInvalidSchema(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/collections", adminToken, `{"name":"empty","fields":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty fields: status = %d, want 400", rec.Code)
	}
}

func TestCollectionCreateDBScoped(t *testing.T) {
	h, f := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/databases/crm/collections", strings.NewReader(invoicesYAML))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("Content-Type", "application/x-yaml")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", rec.Code, rec.Body.String())
	}
	if got := f.collections.created[0].Database; got != "crm" {
		t.Errorf("schema database = %q, want forced crm", got)
	}

	ghost := httptest.NewRequest(http.MethodPost, "/databases/ghost/collections", strings.NewReader(invoicesYAML))
	ghost.Header.Set("Authorization", "Bearer "+adminToken)
	ghostRec := httptest.NewRecorder()
	h.ServeHTTP(ghostRec, ghost)
	if ghostRec.Code != http.StatusNotFound {
		t.Errorf("unknown database: status = %d, want 404", ghostRec.Code)
	}
}

func TestCollectionListScoped(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/collections", scopedToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var infos []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 1 || infos[0]["name"] != "tickets" {
		t.Errorf("scoped list = %v, want only tickets", infos)
	}

	rec = doJSON(t, h, http.MethodGet, "/collections", adminToken, "")
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 2 {
		t.Errorf("admin list = %v, want both collections", infos)
	}
}

func TestCollectionGetAcrossDatabases(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/collections/tickets", scopedToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeMap(t, rec)
	if body["name"] != "tickets" || body["database"] != "crm" {
		t.Errorf("schema doc = %v", body)
	}

	// articles does not belong to crm, so the db-scoped route hides it.
	rec = doJSON(t, h, http.MethodGet, "/databases/crm/collections/articles", adminToken, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-database get: status = %d, want 404", rec.Code)
	}
}

func TestCollectionDelete(t *testing.T) {
	h, f := newTestHandler(t)

	rec := doJSON(t, h, http.MethodDelete, "/collections/articles", readonlyToken, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("readonly delete: status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/collections/articles", adminToken, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("admin delete: status = %d, want 204", rec.Code)
	}
	if len(f.collections.deleted) != 1 || f.collections.deleted[0] != "articles" {
		t.Errorf("deleted = %v", f.collections.deleted)
	}
}

func TestDatabaseRoutes(t *testing.T) {
	h, f := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/databases", scopedToken, `{"name":"analytics"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("scoped create: status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/databases", adminToken, `{"name":"analytics"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create: status = %d, want 201; body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/databases", adminToken, `{"name":"analytics"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate create: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/databases", scopedToken, "")
	var dbs []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &dbs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(dbs) != 1 || dbs[0]["name"] != "crm" {
		t.Errorf("scoped database list = %v, want only crm", dbs)
	}

	rec = doJSON(t, h, http.MethodGet, "/databases/ghost", adminToken, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown database: status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/databases/analytics", adminToken, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d, want 204", rec.Code)
	}
	if len(f.databases.deleted) != 1 || f.databases.deleted[0] != "analytics" {
		t.Errorf("deleted = %v", f.databases.deleted)
	}
}

func TestKeyRoutesAdminGated(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api-keys"},
		{http.MethodGet, "/api-keys"},
		{http.MethodGet, "/api-keys/" + uuid.NewString()},
		{http.MethodDelete, "/api-keys/" + uuid.NewString()},
	} {
		rec := doJSON(t, h, tc.method, tc.path, scopedToken, "")
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s %s with scoped key: status = %d, want 403", tc.method, tc.path, rec.Code)
		}
	}
}

func TestKeyCreateAndDelete(t *testing.T) {
	h, f := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api-keys", adminToken,
		`{"name":"ci","type":"readonly","databases":["crm"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, want 201; body %s", rec.Code, rec.Body.String())
	}
	body := decodeMap(t, rec)
	if body["key"] != "ck_fresh_plaintext" {
		t.Errorf("plaintext missing from create response: %v", body)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api-keys/"+f.scopedKey.ID.String(), adminToken, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete other key: status = %d, want 204", rec.Code)
	}
	if f.keys.gotCaller == nil || f.keys.gotCaller.ID != f.adminKey.ID {
		t.Errorf("caller = %v, want admin key", f.keys.gotCaller)
	}
}

func TestKeySelfDeleteRejected(t *testing.T) {
	h, f := newTestHandler(t)

	rec := doJSON(t, h, http.MethodDelete, "/api-keys/"+f.adminKey.ID.String(), adminToken, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("self delete: status = %d, want 400; body %s", rec.Code, rec.Body.String())
	}
}

func TestProviderRoutes(t *testing.T) {
	h, f := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/providers/embeddings", scopedToken,
		`{"name":"openai-prod","provider":"openai","embedding_model":"text-embedding-3-small","api_key":"sk-x"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("scoped create: status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/providers/embeddings", adminToken,
		`{"name":"openai-prod","provider":"openai","embedding_model":"text-embedding-3-small","api_key":"sk-x"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, want 201; body %s", rec.Code, rec.Body.String())
	}
	body := decodeMap(t, rec)
	if body["has_api_key"] != true {
		t.Errorf("create response = %v, want has_api_key true", body)
	}
	if _, leaked := body["api_key"]; leaked {
		t.Errorf("create response leaks api_key: %v", body)
	}

	f.providers.createErr = fmt.Errorf("provider %q already exists: %w", "openai-prod", postgres.ErrConflict)
	rec = doJSON(t, h, http.MethodPost, "/providers/embeddings", adminToken,
		`{"name":"openai-prod","provider":"openai","embedding_model":"text-embedding-3-small","api_key":"sk-x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/providers/embeddings/"+uuid.NewString(), adminToken, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d, want 204", rec.Code)
	}
	if len(f.providers.deleted) != 1 {
		t.Errorf("deleted = %v", f.providers.deleted)
	}
}

func TestFileUpload(t *testing.T) {
	h, f := newTestHandler(t)

	rec := doMultipart(t, h, "/files/upload", scopedToken,
		map[string]string{"collection": "tickets"},
		[]filePart{{field: "file", filename: "scan.png", contentType: "image/png", data: "PNGDATA"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	body := decodeMap(t, rec)
	if body["bucket"] != "crm-tickets" {
		t.Errorf("bucket = %v, want crm-tickets", body["bucket"])
	}
	path, _ := body["path"].(string)
	if !strings.HasPrefix(path, "tickets/uploads/") || !strings.HasSuffix(path, "_scan.png") {
		t.Errorf("path = %q, want tickets/uploads/{uuid}_scan.png", path)
	}
	if url, _ := body["url"].(string); !strings.HasPrefix(url, "https://blobs.test/") {
		t.Errorf("url = %v", body["url"])
	}

	if len(f.files.buckets) != 1 || f.files.buckets[0] != "crm-tickets" {
		t.Errorf("ensured buckets = %v", f.files.buckets)
	}
	if len(f.files.uploads) != 1 {
		t.Fatalf("uploads = %v", f.files.uploads)
	}
	up := f.files.uploads[0]
	if up.contentType != "image/png" || string(up.data) != "PNGDATA" {
		t.Errorf("upload = %+v", up)
	}
}

func TestFileUploadPresignFailureYieldsNullURL(t *testing.T) {
	h, f := newTestHandler(t)
	f.files.presignErr = fmt.Errorf("minio: presign unavailable")

	rec := doMultipart(t, h, "/files/upload", adminToken,
		map[string]string{"collection": "tickets"},
		[]filePart{{field: "file", filename: "scan.png", contentType: "image/png", data: "PNGDATA"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	body := decodeMap(t, rec)
	url, present := body["url"]
	if !present {
		t.Fatalf("url key missing: %v", body)
	}
	if url != nil {
		t.Errorf("url = %v, want null", url)
	}
}

func TestFileUploadValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doMultipart(t, h, "/files/upload", adminToken,
		map[string]string{},
		[]filePart{{field: "file", filename: "scan.png", contentType: "image/png", data: "x"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing collection: status = %d, want 400", rec.Code)
	}

	rec = doMultipart(t, h, "/files/upload", readonlyToken,
		map[string]string{"collection": "tickets"},
		[]filePart{{field: "file", filename: "scan.png", contentType: "image/png", data: "x"}})
	if rec.Code != http.StatusForbidden {
		t.Errorf("readonly upload: status = %d, want 403", rec.Code)
	}

	rec = doMultipart(t, h, "/files/upload", adminToken,
		map[string]string{"collection": "tickets"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing file part: status = %d, want 400", rec.Code)
	}
}

func TestFileDownload(t *testing.T) {
	h, f := newTestHandler(t)
	recordID := uuid.NewString()
	f.files.objects["crm-tickets/tickets/"+recordID+"/report.pdf"] = &minio.Object{
		ReadCloser:  io.NopCloser(strings.NewReader("PDFDATA")),
		ContentType: "application/pdf",
		Size:        7,
	}

	rec := doJSON(t, h, http.MethodGet, "/files/tickets/"+recordID+"/report.pdf", readonlyToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "7" {
		t.Errorf("Content-Length = %q, want 7", got)
	}
	if rec.Body.String() != "PDFDATA" {
		t.Errorf("body = %q", rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/files/tickets/"+recordID+"/missing.pdf", readonlyToken, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing object: status = %d, want 404", rec.Code)
	}
}
