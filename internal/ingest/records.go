package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/internal/filter"
	"github.com/cortexdb/cortexdb/internal/schema"
	"github.com/cortexdb/cortexdb/internal/value"
)

// Get hydrates one record: the relational row, array fields inlined as lists
// of objects, and presigned URLs for its stored files.
func (p *Pipeline) Get(ctx context.Context, collection string, recordID uuid.UUID) (*Record, error) {
	sch, err := p.store.GetCollectionSchema(ctx, collection)
	if err != nil {
		return nil, err
	}
	row, err := p.store.GetRecord(ctx, sch, recordID)
	if err != nil {
		return nil, err
	}

	for _, af := range sch.Arrays() {
		items, err := p.store.GetChildItems(ctx, sch, af, recordID)
		if err != nil {
			return nil, err
		}
		vals := make([]value.Value, len(items))
		for i, item := range items {
			vals[i] = value.Map(item)
		}
		row[af.Name] = value.List(vals)
	}

	return &Record{
		ID:     recordID,
		Record: row,
		Files:  p.presignRecordFiles(ctx, sch, row),
	}, nil
}

// Delete removes a record everywhere: blobs best-effort, vectors, then the
// relational row (child rows cascade). Vector deletion precedes the row so
// a failure never leaves points for a record that no longer exists.
func (p *Pipeline) Delete(ctx context.Context, collection string, recordID uuid.UUID) error {
	ctx, span := p.tracer.TraceIngest(ctx, collection, "delete")
	defer span.End()
	start := time.Now()

	sch, err := p.store.GetCollectionSchema(ctx, collection)
	if err != nil {
		return p.fail(span, collection, "delete", start, err)
	}
	row, err := p.store.GetRecord(ctx, sch, recordID)
	if err != nil {
		return p.fail(span, collection, "delete", start, err)
	}

	for _, f := range sch.Scalars() {
		if f.Type != schema.TypeFile {
			continue
		}
		path, ok := row[f.Name].StringVal()
		if !ok || path == "" {
			continue
		}
		if err := p.blobs.Remove(ctx, sch.Bucket(), path); err != nil {
			p.logger.Warn(ctx, "blob delete failed",
				"bucket", sch.Bucket(), "path", path, "field", f.Name, "error", err)
		}
	}

	if sch.NeedsVectors() {
		exists, err := p.vectors.CollectionExists(ctx, sch.VectorCollection())
		if err != nil {
			return p.fail(span, collection, "delete", start, err)
		}
		if exists {
			if err := p.vectors.DeleteByRecord(ctx, sch.VectorCollection(), recordID); err != nil {
				return p.fail(span, collection, "delete", start,
					fmt.Errorf("delete vectors for record %s: %w", recordID, err))
			}
		}
	}

	deleteStart := time.Now()
	err = p.store.DeleteRecord(ctx, sch, recordID)
	if p.metrics != nil {
		p.metrics.RecordStoreOp("postgres", "delete", opStatus(err), time.Since(deleteStart).Seconds())
	}
	if err != nil {
		return p.fail(span, collection, "delete", start, err)
	}

	if p.metrics != nil {
		p.metrics.RecordIngest(collection, "delete", "success", time.Since(start).Seconds())
	}
	p.logger.Info(ctx, "record deleted", "collection", collection, "record_id", recordID)
	return nil
}

// Vectors lists a record's stored points ordered by chunk index. A missing
// vector collection reads as no vectors, not as an error.
func (p *Pipeline) Vectors(ctx context.Context, collection string, recordID uuid.UUID) ([]VectorChunk, error) {
	sch, err := p.store.GetCollectionSchema(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !sch.NeedsVectors() {
		return []VectorChunk{}, nil
	}

	points, err := p.vectors.ScrollRecord(ctx, sch.VectorCollection(), recordID)
	if err != nil {
		p.logger.Debug(ctx, "vector scroll failed",
			"collection", collection, "record_id", recordID, "error", err)
		return []VectorChunk{}, nil
	}

	out := make([]VectorChunk, 0, len(points))
	for _, pt := range points {
		out = append(out, VectorChunk{
			ID:         pt.ID,
			Field:      payloadString(pt.Payload, "field"),
			ChunkIndex: payloadInt(pt.Payload, "chunk_index"),
			Text:       payloadString(pt.Payload, "text"),
		})
	}
	return out, nil
}

// Query runs a relational-only filter over a collection, newest first.
func (p *Pipeline) Query(ctx context.Context, collection string, conds map[string]any, limit, offset int) (*QueryPage, error) {
	sch, err := p.store.GetCollectionSchema(ctx, collection)
	if err != nil {
		return nil, err
	}
	f, err := filter.Parse(conds)
	if err != nil {
		return nil, err
	}

	if limit < 1 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	if offset < 0 {
		offset = 0
	}

	start := time.Now()
	rows, total, err := p.store.QueryRecords(ctx, sch, f, limit, offset)
	if p.metrics != nil {
		p.metrics.RecordStoreOp("postgres", "query", opStatus(err), time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []map[string]value.Value{}
	}
	return &QueryPage{Records: rows, Total: total, Limit: limit, Offset: offset}, nil
}

// presignRecordFiles issues download URLs for the row's stored file fields.
// Fields with no stored path, or whose presign fails, are absent.
func (p *Pipeline) presignRecordFiles(ctx context.Context, sch *schema.Schema, row map[string]value.Value) map[string]string {
	var urls map[string]string
	for _, f := range sch.Scalars() {
		if f.Type != schema.TypeFile || !f.StoresTo(schema.StoreMinio) {
			continue
		}
		path, ok := row[f.Name].StringVal()
		if !ok || path == "" {
			continue
		}
		url, err := p.blobs.PresignedGetURL(ctx, sch.Bucket(), path)
		if err != nil {
			p.logger.Warn(ctx, "presign failed",
				"bucket", sch.Bucket(), "path", path, "field", f.Name, "error", err)
			continue
		}
		if urls == nil {
			urls = make(map[string]string)
		}
		urls[f.Name] = url
	}
	return urls
}

func payloadString(payload map[string]value.Value, key string) string {
	s, _ := payload[key].StringVal()
	return s
}

func payloadInt(payload map[string]value.Value, key string) int {
	i, _ := payload[key].IntVal()
	return int(i)
}
