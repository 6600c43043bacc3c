package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/internal/chunk"
	"github.com/cortexdb/cortexdb/internal/embed"
	"github.com/cortexdb/cortexdb/internal/extract"
	"github.com/cortexdb/cortexdb/internal/schema"
	"github.com/cortexdb/cortexdb/internal/value"
)

// Update applies a partial update: only fields present in the request (or
// carrying a new file) are touched. New blobs upload first; the relational
// update commits next; stale blobs and stale vectors go after the commit so
// a failed update never destroys committed state. Points for every touched
// vectorised field are deleted and rebuilt under the same deterministic ids.
func (p *Pipeline) Update(ctx context.Context, collection string, recordID uuid.UUID, fields map[string]value.Value, files map[string]Upload) (*UpdateResult, error) {
	ctx, span := p.tracer.TraceIngest(ctx, collection, "update")
	defer span.End()
	start := time.Now()

	sch, err := p.store.GetCollectionSchema(ctx, collection)
	if err != nil {
		return nil, p.fail(span, collection, "update", start, err)
	}
	current, err := p.store.GetRecord(ctx, sch, recordID)
	if err != nil {
		return nil, p.fail(span, collection, "update", start, err)
	}

	embedder, dim, err := p.resolveEmbedder(ctx, sch)
	if err != nil {
		return nil, p.fail(span, collection, "update", start, err)
	}

	prep := newPrepared()
	prep.payload = updatePayloadBase(sch, current, fields)

	updated := make([]string, 0, len(fields)+len(files))
	var replaced []string

	for _, f := range sch.Fields {
		switch field := f.(type) {
		case *schema.ArrayField:
			v, ok := fields[field.Name]
			if !ok {
				continue
			}
			items, err := coerceArray(field, v)
			if err != nil {
				p.removeUploads(ctx, sch, prep.uploaded)
				return nil, p.fail(span, collection, "update", start, err)
			}
			prep.children[field.Name] = items
			updated = append(updated, field.Name)

		case *schema.ScalarField:
			if field.Type == schema.TypeFile {
				up, ok := files[field.Name]
				if !ok {
					continue
				}
				if err := p.updateFile(ctx, prep, sch, recordID, field, up, embedder, &replaced); err != nil {
					p.removeUploads(ctx, sch, prep.uploaded)
					return nil, p.fail(span, collection, "update", start, err)
				}
				updated = append(updated, field.Name)
				continue
			}

			v, ok := fields[field.Name]
			if !ok {
				continue
			}
			if err := p.updateScalar(ctx, prep, sch, recordID, field, v, embedder, &replaced); err != nil {
				p.removeUploads(ctx, sch, prep.uploaded)
				return nil, p.fail(span, collection, "update", start, err)
			}
			updated = append(updated, field.Name)
		}
	}

	if len(prep.row) > 0 || len(prep.children) > 0 {
		updateStart := time.Now()
		err := p.store.UpdateRecord(ctx, sch, recordID, prep.row, prep.children)
		if p.metrics != nil {
			p.metrics.RecordStoreOp("postgres", "update", opStatus(err), time.Since(updateStart).Seconds())
		}
		if err != nil {
			p.removeUploads(ctx, sch, prep.uploaded)
			return nil, p.fail(span, collection, "update", start, err)
		}
	}

	// The row now references the new blobs; the old ones are unreachable.
	for field, newPath := range prep.uploaded {
		old, ok := current[field].StringVal()
		if !ok || old == "" || old == newPath {
			continue
		}
		if err := p.blobs.Remove(ctx, sch.Bucket(), old); err != nil {
			p.logger.Warn(ctx, "stale blob delete failed",
				"bucket", sch.Bucket(), "path", old, "field", field, "error", err)
		}
	}

	if len(replaced) > 0 {
		exists, err := p.vectors.CollectionExists(ctx, sch.VectorCollection())
		if err != nil {
			return nil, p.fail(span, collection, "update", start, err)
		}
		if exists {
			for _, field := range replaced {
				if err := p.vectors.DeleteByRecordField(ctx, sch.VectorCollection(), recordID, field); err != nil {
					return nil, p.fail(span, collection, "update", start,
						fmt.Errorf("delete stale vectors for field %q: %w", field, err))
				}
			}
		}
	}
	if len(prep.points) > 0 {
		if err := p.upsertPoints(ctx, sch, dim, prep.points); err != nil {
			return nil, p.fail(span, collection, "update", start, err)
		}
	}

	if p.metrics != nil {
		p.metrics.RecordIngest(collection, "update", "success", time.Since(start).Seconds())
	}
	p.logger.Info(ctx, "record updated",
		"collection", collection,
		"record_id", recordID,
		"fields", updated,
		"vectors", len(prep.points))

	return &UpdateResult{
		ID:             recordID,
		VectorsCreated: len(prep.points),
		UpdatedFields:  updated,
	}, nil
}

// updateFile uploads the replacement blob and stages the row, payload, and
// point changes for one file field.
func (p *Pipeline) updateFile(ctx context.Context, prep *prepared, sch *schema.Schema, recordID uuid.UUID, field *schema.ScalarField, up Upload, embedder embed.Embedder, replaced *[]string) error {
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
	*replaced = append(*replaced, field.Name)

	elements, err := p.extractor.Extract(ctx, up.Filename, contentType, up.Data, field.ExtractOrDefault())
	if err != nil {
		return fmt.Errorf("extract %q: %w", up.Filename, err)
	}
	size, overlap := chunkParams(sch, field)
	fragments := chunk.SplitElements(elements, size, overlap)
	return p.appendPoints(ctx, prep, sch, recordID, field.Name, fragments, embedder)
}

// updateScalar stages one scalar field change. An explicit null clears the
// stored value and its vectors.
func (p *Pipeline) updateScalar(ctx context.Context, prep *prepared, sch *schema.Schema, recordID uuid.UUID, field *schema.ScalarField, v value.Value, embedder embed.Embedder, replaced *[]string) error {
	if v.IsNull() {
		if field.Required {
			return fmt.Errorf("field %q is required: %w", field.Name, schema.ErrInvalid)
		}
		if field.StoresTo(schema.StorePostgres) {
			prep.row[field.Name] = value.Null()
		}
		delete(prep.payload, field.Name)
		if field.Vectorised() {
			*replaced = append(*replaced, field.Name)
		}
		return nil
	}

	converted, err := schema.Coerce(v, field)
	if err != nil {
		return err
	}
	if field.StoresTo(schema.StorePostgres) {
		prep.row[field.Name] = converted
	}
	if field.StoresTo(schema.StoreQdrantPayload) {
		prep.payload[field.Name] = converted
	}
	if field.Vectorised() {
		*replaced = append(*replaced, field.Name)
		size, overlap := chunkParams(sch, field)
		fragments := chunk.Split(converted.Text(), size, overlap)
		return p.appendPoints(ctx, prep, sch, recordID, field.Name, fragments, embedder)
	}
	return nil
}

// updatePayloadBase seeds the payload base from the stored record, then
// overlays the incoming values, so replacement points carry the post-update
// context for every payload-routed field, touched or not.
func updatePayloadBase(sch *schema.Schema, current, fields map[string]value.Value) map[string]value.Value {
	base := make(map[string]value.Value)
	for _, f := range sch.Scalars() {
		if !f.StoresTo(schema.StoreQdrantPayload) {
			continue
		}
		if v, ok := current[f.Name]; ok && !v.IsNull() {
			base[f.Name] = v
		}
	}
	for _, f := range sch.Scalars() {
		if !f.StoresTo(schema.StoreQdrantPayload) || f.Type == schema.TypeFile {
			continue
		}
		v, ok := fields[f.Name]
		if !ok || v.IsNull() {
			continue
		}
		if converted, err := schema.Coerce(v, f); err == nil {
			base[f.Name] = converted
		}
	}
	return base
}
