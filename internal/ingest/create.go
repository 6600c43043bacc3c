package ingest

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/internal/chunk"
	"github.com/cortexdb/cortexdb/internal/embed"
	"github.com/cortexdb/cortexdb/internal/extract"
	"github.com/cortexdb/cortexdb/internal/schema"
	"github.com/cortexdb/cortexdb/internal/store/qdrant"
	"github.com/cortexdb/cortexdb/internal/value"
)

// prepared accumulates everything a record write produces before any store
// is touched, except blobs: those upload during preparation because their
// object paths feed the relational row and point payloads.
type prepared struct {
	row      map[string]value.Value
	children map[string][]map[string]value.Value
	points   []qdrant.Point
	uploaded map[string]string
	payload  map[string]value.Value
}

func newPrepared() *prepared {
	return &prepared{
		row:      make(map[string]value.Value),
		children: make(map[string][]map[string]value.Value),
		uploaded: make(map[string]string),
		payload:  make(map[string]value.Value),
	}
}

// Create ingests a new record. Blobs upload first because their paths feed
// the row; the relational insert commits next; vectors upsert last. Any
// failure before the relational commit removes the uploaded blobs. A vector
// failure after the commit is reported without rolling the row back: the
// record exists, its vectors are retried by a subsequent update.
func (p *Pipeline) Create(ctx context.Context, collection string, fields map[string]value.Value, files map[string]Upload) (*Result, error) {
	ctx, span := p.tracer.TraceIngest(ctx, collection, "create")
	defer span.End()
	start := time.Now()

	sch, err := p.store.GetCollectionSchema(ctx, collection)
	if err != nil {
		return nil, p.fail(span, collection, "create", start, err)
	}

	embedder, dim, err := p.resolveEmbedder(ctx, sch)
	if err != nil {
		return nil, p.fail(span, collection, "create", start, err)
	}

	recordID := uuid.New()
	prep, err := p.prepare(ctx, sch, recordID, fields, files, embedder)
	if err != nil {
		p.removeUploads(ctx, sch, prep.uploaded)
		return nil, p.fail(span, collection, "create", start, err)
	}

	insertStart := time.Now()
	err = p.store.InsertRecord(ctx, sch, recordID, prep.row, prep.children)
	if p.metrics != nil {
		p.metrics.RecordStoreOp("postgres", "insert", opStatus(err), time.Since(insertStart).Seconds())
	}
	if err != nil {
		p.removeUploads(ctx, sch, prep.uploaded)
		return nil, p.fail(span, collection, "create", start, err)
	}

	if len(prep.points) > 0 {
		if err := p.upsertPoints(ctx, sch, dim, prep.points); err != nil {
			return nil, p.fail(span, collection, "create", start, err)
		}
	}

	if p.metrics != nil {
		p.metrics.RecordIngest(collection, "create", "success", time.Since(start).Seconds())
	}
	p.logger.Info(ctx, "record created",
		"collection", collection,
		"record_id", recordID,
		"vectors", len(prep.points),
		"files", len(prep.uploaded))

	return &Result{
		ID:             recordID,
		VectorsCreated: len(prep.points),
		Files:          p.fileURLs(ctx, sch, prep.uploaded),
	}, nil
}

// prepare walks the schema in declaration order, coercing values, uploading
// blobs, and embedding vectorised fields. On error the returned prepared
// still lists the blobs uploaded so far, so the caller can compensate.
func (p *Pipeline) prepare(ctx context.Context, sch *schema.Schema, recordID uuid.UUID, fields map[string]value.Value, files map[string]Upload, embedder embed.Embedder) (*prepared, error) {
	prep := newPrepared()
	prep.payload = payloadBase(sch, fields)

	for _, f := range sch.Fields {
		switch field := f.(type) {
		case *schema.ArrayField:
			v, ok := fields[field.Name]
			if !ok || v.IsNull() {
				if field.Required {
					return prep, fmt.Errorf("array field %q is required: %w", field.Name, schema.ErrInvalid)
				}
				continue
			}
			items, err := coerceArray(field, v)
			if err != nil {
				return prep, err
			}
			prep.children[field.Name] = items

		case *schema.ScalarField:
			if field.Type == schema.TypeFile {
				if err := p.prepareFile(ctx, prep, sch, recordID, field, files, embedder); err != nil {
					return prep, err
				}
				continue
			}

			v, ok := fields[field.Name]
			if !ok || v.IsNull() {
				if field.HasDefault {
					v = field.Default
				} else if field.Required {
					return prep, fmt.Errorf("field %q is required: %w", field.Name, schema.ErrInvalid)
				} else {
					continue
				}
			}
			converted, err := schema.Coerce(v, field)
			if err != nil {
				return prep, err
			}
			if field.StoresTo(schema.StorePostgres) {
				prep.row[field.Name] = converted
			}
			if field.StoresTo(schema.StoreQdrantPayload) {
				prep.payload[field.Name] = converted
			}
			if field.Vectorised() {
				size, overlap := chunkParams(sch, field)
				fragments := chunk.Split(converted.Text(), size, overlap)
				if err := p.appendPoints(ctx, prep, sch, recordID, field.Name, fragments, embedder); err != nil {
					return prep, err
				}
			}
		}
	}
	return prep, nil
}

// prepareFile uploads one file field's blob and, when the field is
// vectorised, extracts and embeds its text. The uploaded path is recorded
// before extraction so a later failure still compensates it.
func (p *Pipeline) prepareFile(ctx context.Context, prep *prepared, sch *schema.Schema, recordID uuid.UUID, field *schema.ScalarField, files map[string]Upload, embedder embed.Embedder) error {
	up, ok := files[field.Name]
	if !ok {
		if field.Required {
			return fmt.Errorf("file field %q is required: %w", field.Name, schema.ErrInvalid)
		}
		return nil
	}

	contentType := extract.DetectContentType(up.Filename, up.ContentType, up.Data)
	path := fmt.Sprintf("%s/%s/%s", sch.Name, recordID, up.Filename)
	if err := p.uploadBlob(ctx, sch.Bucket(), path, contentType, up.Data); err != nil {
		return fmt.Errorf("upload %q: %w", path, err)
	}
	prep.uploaded[field.Name] = path

	if field.StoresTo(schema.StorePostgres) {
		prep.row[field.Name] = value.String(path)
	}
	if field.StoresTo(schema.StoreQdrantPayload) {
		prep.payload[field.Name] = value.String(path)
	}
	if !field.Vectorised() {
		return nil
	}

	elements, err := p.extractor.Extract(ctx, up.Filename, contentType, up.Data, field.ExtractOrDefault())
	if err != nil {
		return fmt.Errorf("extract %q: %w", up.Filename, err)
	}
	size, overlap := chunkParams(sch, field)
	fragments := chunk.SplitElements(elements, size, overlap)
	return p.appendPoints(ctx, prep, sch, recordID, field.Name, fragments, embedder)
}

func (p *Pipeline) uploadBlob(ctx context.Context, bucket, path, contentType string, data []byte) error {
	if err := p.blobs.EnsureBucket(ctx, bucket); err != nil {
		return err
	}
	start := time.Now()
	err := p.blobs.Upload(ctx, bucket, path, bytes.NewReader(data), int64(len(data)), contentType)
	if p.metrics != nil {
		p.metrics.RecordStoreOp("minio", "upload", opStatus(err), time.Since(start).Seconds())
	}
	return err
}

// appendPoints embeds the fragments and appends one point per fragment with
// the deterministic (record, field, chunk) identity.
func (p *Pipeline) appendPoints(ctx context.Context, prep *prepared, sch *schema.Schema, recordID uuid.UUID, fieldName string, fragments []string, embedder embed.Embedder) error {
	if len(fragments) == 0 {
		return nil
	}
	if embedder == nil {
		return fmt.Errorf("collection %s has no embedding provider for field %q: %w", sch.Name, fieldName, schema.ErrInvalid)
	}
	vectors, err := embedder.EmbedBatch(ctx, fragments)
	if err != nil {
		return fmt.Errorf("embed field %q: %w", fieldName, err)
	}
	for i, vec := range vectors {
		prep.points = append(prep.points, qdrant.Point{
			ID:      qdrant.PointID(recordID, fieldName, i),
			Vector:  vec,
			Payload: pointPayload(sch.Name, recordID, fieldName, i, fragments[i], prep.payload),
		})
	}
	return nil
}

// pointPayload merges the payload base under the bookkeeping keys. The
// bookkeeping keys win: search grouping depends on them.
func pointPayload(collection string, recordID uuid.UUID, field string, chunkIndex int, text string, base map[string]value.Value) map[string]value.Value {
	payload := make(map[string]value.Value, len(base)+5)
	for k, v := range base {
		payload[k] = v
	}
	payload["record_id"] = value.String(recordID.String())
	payload["collection"] = value.String(collection)
	payload["field"] = value.String(field)
	payload["chunk_index"] = value.Int(int64(chunkIndex))
	payload["text"] = value.String(text)
	return payload
}

// payloadBase snapshots every payload-routed scalar up front so points carry
// the full denormalized context regardless of field declaration order. File
// paths join the base as their uploads land. Values that fail coercion are
// skipped here; the field loop reports them.
func payloadBase(sch *schema.Schema, fields map[string]value.Value) map[string]value.Value {
	base := make(map[string]value.Value)
	for _, f := range sch.Scalars() {
		if !f.StoresTo(schema.StoreQdrantPayload) || f.Type == schema.TypeFile {
			continue
		}
		v, ok := fields[f.Name]
		if !ok || v.IsNull() {
			if !f.HasDefault {
				continue
			}
			v = f.Default
		}
		converted, err := schema.Coerce(v, f)
		if err != nil {
			continue
		}
		base[f.Name] = converted
	}
	return base
}

// coerceArray validates a list-of-objects value against the nested schema
// and coerces each item.
func coerceArray(field *schema.ArrayField, v value.Value) ([]map[string]value.Value, error) {
	list, ok := v.ListVal()
	if !ok {
		return nil, fmt.Errorf("array field %q expects a list: %w", field.Name, schema.ErrInvalid)
	}
	items := make([]map[string]value.Value, 0, len(list))
	for i, item := range list {
		m, ok := item.MapVal()
		if !ok {
			return nil, fmt.Errorf("array field %q expects a list of objects: %w", field.Name, schema.ErrInvalid)
		}
		row := make(map[string]value.Value, len(field.Fields))
		for j := range field.Fields {
			nested := &field.Fields[j]
			nv, ok := m[nested.Name]
			if !ok || nv.IsNull() {
				if nested.Required {
					return nil, fmt.Errorf("array field %q item %d: nested field %q is required: %w",
						field.Name, i, nested.Name, schema.ErrInvalid)
				}
				continue
			}
			converted, err := schema.Coerce(nv, nested)
			if err != nil {
				return nil, err
			}
			row[nested.Name] = converted
		}
		items = append(items, row)
	}
	return items, nil
}

// chunkParams resolves the chunk window for a field: the collection config,
// overridden per file field by its extract config, with package defaults
// for anything unset.
func chunkParams(sch *schema.Schema, field *schema.ScalarField) (int, int) {
	size := sch.Config.ChunkSize
	overlap := sch.Config.ChunkOverlap
	if field.Type == schema.TypeFile {
		cfg := field.ExtractOrDefault()
		if cfg.ChunkSize > 0 {
			size = cfg.ChunkSize
		}
		if cfg.ChunkOverlap > 0 {
			overlap = cfg.ChunkOverlap
		}
	}
	if size <= 0 {
		size = chunk.DefaultSize
	}
	if overlap <= 0 {
		overlap = chunk.DefaultOverlap
	}
	return size, overlap
}
