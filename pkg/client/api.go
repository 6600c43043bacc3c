package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/pkg/models"
)

// Upload is one file attached to a record create or update.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Health reports whether the gateway answers its liveness probe.
func (c *Client) Health(ctx context.Context) error {
	return c.getJSON(ctx, "/health", nil)
}

// CreateCollection registers a collection from a raw schema document (YAML
// or JSON). A non-empty database routes through the db-scoped endpoint,
// which pins the schema to that database.
func (c *Client) CreateCollection(ctx context.Context, database string, schemaDoc []byte) (*models.CreationResult, error) {
	path := "/collections"
	if database != "" {
		path = "/databases/" + url.PathEscape(database) + "/collections"
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(schemaDoc), "application/x-yaml")
	if err != nil {
		return nil, err
	}
	var out models.CreationResult
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCollections lists collections, optionally one database's.
func (c *Client) ListCollections(ctx context.Context, database string) ([]models.CollectionInfo, error) {
	path := "/collections"
	if database != "" {
		path = "/databases/" + url.PathEscape(database) + "/collections"
	}
	var out []models.CollectionInfo
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteCollection removes a collection and its backing storage.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	return c.delete(ctx, "/collections/"+url.PathEscape(name), nil)
}

// CreateRecord ingests a record. With no files the fields post as JSON;
// with files the request is a multipart form whose non-string values are
// JSON-encoded.
func (c *Client) CreateRecord(ctx context.Context, collection string, fields map[string]any, files map[string]Upload) (*models.RecordCreated, error) {
	var out models.RecordCreated
	if err := c.sendRecord(ctx, http.MethodPost, recordsPath(collection), fields, files, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateRecord applies a partial update. Fields absent from the map keep
// their stored values.
func (c *Client) UpdateRecord(ctx context.Context, collection string, id uuid.UUID, fields map[string]any, files map[string]Upload) (*models.RecordUpdated, error) {
	var out models.RecordUpdated
	if err := c.sendRecord(ctx, http.MethodPatch, recordPath(collection, id), fields, files, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRecord fetches one record with presigned file URLs.
func (c *Client) GetRecord(ctx context.Context, collection string, id uuid.UUID) (*models.RecordDetail, error) {
	var out models.RecordDetail
	if err := c.getJSON(ctx, recordPath(collection, id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRecord removes a record from every store.
func (c *Client) DeleteRecord(ctx context.Context, collection string, id uuid.UUID) error {
	return c.delete(ctx, recordPath(collection, id), nil)
}

// Vectors lists the stored vector points of a record.
func (c *Client) Vectors(ctx context.Context, collection string, id uuid.UUID) ([]models.RecordVector, error) {
	var out struct {
		Vectors []models.RecordVector `json:"vectors"`
	}
	if err := c.getJSON(ctx, recordPath(collection, id)+"/vectors", &out); err != nil {
		return nil, err
	}
	return out.Vectors, nil
}

// Search runs a hybrid search against one collection.
func (c *Client) Search(ctx context.Context, collection string, req models.SearchRequest) (*models.SearchResponse, error) {
	var out models.SearchResponse
	if err := c.postJSON(ctx, "/collections/"+url.PathEscape(collection)+"/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Query runs a relational filter query with paging.
func (c *Client) Query(ctx context.Context, collection string, req models.QueryRequest) (*models.QueryResponse, error) {
	var out models.QueryResponse
	if err := c.postJSON(ctx, "/collections/"+url.PathEscape(collection)+"/query", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func recordsPath(collection string) string {
	return "/collections/" + url.PathEscape(collection) + "/records"
}

func recordPath(collection string, id uuid.UUID) string {
	return recordsPath(collection) + "/" + id.String()
}

func (c *Client) sendRecord(ctx context.Context, method, path string, fields map[string]any, files map[string]Upload, out any) error {
	if len(files) == 0 {
		body, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		req, err := c.newRequest(ctx, method, path, bytes.NewReader(body), "application/json")
		if err != nil {
			return err
		}
		return c.do(req, out)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, v := range fields {
		encoded, err := formEncode(v)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		if err := w.WriteField(name, encoded); err != nil {
			return err
		}
	}
	for name, up := range files {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, name, up.Filename))
		contentType := up.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		hdr.Set("Content-Type", contentType)
		part, err := w.CreatePart(hdr)
		if err != nil {
			return err
		}
		if _, err := part.Write(up.Data); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, method, path, &buf, w.FormDataContentType())
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// formEncode renders a field for a multipart form. Strings pass through so
// the gateway stores them verbatim; everything else is JSON so numbers and
// nested documents keep their types.
func formEncode(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
