package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cortexdb/cortexdb/internal/filter"
	"github.com/cortexdb/cortexdb/internal/schema"
	"github.com/cortexdb/cortexdb/internal/value"
)

// ApplyPlan executes a compiled schema's DDL statements in one transaction.
func (s *Store) ApplyPlan(ctx context.Context, plan *schema.Plan) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply plan: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range plan.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply plan statement for %s: %w", plan.Table, err)
		}
	}
	return tx.Commit()
}

// InsertRecord writes the primary row and all child rows in one transaction.
// The caller allocates the record id: vector point ids and blob paths derive
// from it before the row exists. Row keys must be postgres-routed column
// names; children maps array field names to ordered item rows.
func (s *Store) InsertRecord(ctx context.Context, sch *schema.Schema, id uuid.UUID, row map[string]value.Value, children map[string][]map[string]value.Value) error {
	table := strings.ToLower(sch.Name)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	cols := []string{"id"}
	placeholders := []string{"$1"}
	args := []any{id}
	for _, f := range sch.Scalars() {
		v, ok := row[f.Name]
		if !ok || !f.StoresTo(schema.StorePostgres) {
			continue
		}
		cols = append(cols, f.Name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
		args = append(args, sqlArg(v))
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)`,
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", ")), args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("record in %s: %w", sch.Name, ErrConflict)
		}
		return fmt.Errorf("insert into %s: %w", table, err)
	}

	for _, af := range sch.Arrays() {
		items := children[af.Name]
		if err := insertChildRows(ctx, tx, table, af, id, items); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// UpdateRecord applies a partial update to the primary row and replaces the
// child rows of every array field present in children.
func (s *Store) UpdateRecord(ctx context.Context, sch *schema.Schema, id uuid.UUID, row map[string]value.Value, children map[string][]map[string]value.Value) error {
	table := strings.ToLower(sch.Name)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	if len(row) > 0 {
		sets := make([]string, 0, len(row)+1)
		args := make([]any, 0, len(row)+1)
		for _, f := range sch.Scalars() {
			v, ok := row[f.Name]
			if !ok || !f.StoresTo(schema.StorePostgres) {
				continue
			}
			sets = append(sets, fmt.Sprintf("%s = $%d", f.Name, len(args)+1))
			args = append(args, sqlArg(v))
		}
		sets = append(sets, "updated_at = NOW()")
		args = append(args, id)

		res, err := tx.ExecContext(ctx, fmt.Sprintf(
			`UPDATE %s SET %s WHERE id = $%d`, table, strings.Join(sets, ", "), len(args)), args...)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("record in %s: %w", sch.Name, ErrConflict)
			}
			return fmt.Errorf("update %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("record %s: %w", id, ErrNotFound)
		}
	}

	for _, af := range sch.Arrays() {
		items, ok := children[af.Name]
		if !ok {
			continue
		}
		child := table + "_" + af.Name
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE parent_id = $1`, child), id); err != nil {
			return fmt.Errorf("clear child rows %s: %w", child, err)
		}
		if err := insertChildRows(ctx, tx, table, af, id, items); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertChildRows(ctx context.Context, tx *sql.Tx, table string, af *schema.ArrayField, parent uuid.UUID, items []map[string]value.Value) error {
	if len(items) == 0 {
		return nil
	}
	child := table + "_" + af.Name

	for idx, item := range items {
		cols := []string{"parent_id", "item_index"}
		placeholders := []string{"$1", "$2"}
		args := []any{parent, idx}
		for i := range af.Fields {
			nested := &af.Fields[i]
			v, ok := item[nested.Name]
			if !ok || !nested.StoresTo(schema.StorePostgres) {
				continue
			}
			cols = append(cols, nested.Name)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
			args = append(args, sqlArg(v))
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (%s) VALUES (%s)`,
			child, strings.Join(cols, ", "), strings.Join(placeholders, ", ")), args...)
		if err != nil {
			return fmt.Errorf("insert child row %s[%d]: %w", child, idx, err)
		}
	}
	return nil
}

// GetRecord loads the primary row. Child rows are loaded separately with
// GetChildItems so callers control which array fields they need.
func (s *Store) GetRecord(ctx context.Context, sch *schema.Schema, id uuid.UUID) (map[string]value.Value, error) {
	table := strings.ToLower(sch.Name)
	fields := postgresScalars(sch)

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = $1`, strings.Join(recordColumns(fields), ", "), table), id)

	rec, err := scanRecord(row, fields)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query record %s: %w", id, err)
	}
	return rec, nil
}

// GetChildItems loads an array field's rows ordered by item_index. Only the
// nested schema fields are returned; bookkeeping columns stay internal.
func (s *Store) GetChildItems(ctx context.Context, sch *schema.Schema, af *schema.ArrayField, id uuid.UUID) ([]map[string]value.Value, error) {
	table := strings.ToLower(sch.Name)
	child := table + "_" + af.Name

	fields := make([]*schema.ScalarField, 0, len(af.Fields))
	for i := range af.Fields {
		if af.Fields[i].StoresTo(schema.StorePostgres) {
			fields = append(fields, &af.Fields[i])
		}
	}

	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		cols = append(cols, f.Name)
	}
	if len(cols) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE parent_id = $1 ORDER BY item_index ASC`,
		strings.Join(cols, ", "), child), id)
	if err != nil {
		return nil, fmt.Errorf("query child items %s: %w", child, err)
	}
	defer rows.Close()

	var out []map[string]value.Value
	for rows.Next() {
		cells := make([]any, len(fields))
		for i, f := range fields {
			cells[i] = scanCell(f.Type)
		}
		if err := rows.Scan(cells...); err != nil {
			return nil, fmt.Errorf("scan child item: %w", err)
		}
		item := make(map[string]value.Value, len(fields))
		for i, f := range fields {
			item[f.Name] = cellValue(cells[i], f.Type)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// DeleteRecord removes the primary row; child rows cascade.
func (s *Store) DeleteRecord(ctx context.Context, sch *schema.Schema, id uuid.UUID) error {
	table := strings.ToLower(sch.Name)
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return nil
}

// QueryRecords runs a relational filter query ordered newest-first, and
// returns the matching page plus the unpaged total.
func (s *Store) QueryRecords(ctx context.Context, sch *schema.Schema, f filter.Filter, limit, offset int) ([]map[string]value.Value, int, error) {
	table := strings.ToLower(sch.Name)
	fields := postgresScalars(sch)

	where, args := whereClause(f)

	var total int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE %s`, table, where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		strings.Join(recordColumns(fields), ", "), table, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []map[string]value.Value
	for rows.Next() {
		rec, err := scanRecord(rows, fields)
		if err != nil {
			return nil, 0, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// FetchRecordsByIDs loads the given records keyed by id. Callers preserve
// their own ordering; ids with no row are simply absent from the result.
func (s *Store) FetchRecordsByIDs(ctx context.Context, sch *schema.Schema, ids []uuid.UUID) (map[uuid.UUID]map[string]value.Value, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	table := strings.ToLower(sch.Name)
	fields := postgresScalars(sch)

	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = ANY($1::uuid[])`,
		strings.Join(recordColumns(fields), ", "), table), pq.Array(idStrs))
	if err != nil {
		return nil, fmt.Errorf("fetch records by ids: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]map[string]value.Value, len(ids))
	for rows.Next() {
		rec, err := scanRecord(rows, fields)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		idStr, _ := rec["id"].StringVal()
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse record id %q: %w", idStr, err)
		}
		out[id] = rec
	}
	return out, rows.Err()
}

// whereClause renders filter conditions as parameterized SQL. Field names
// were already validated against the identifier grammar by filter.Parse.
func whereClause(f filter.Filter) (string, []any) {
	if len(f) == 0 {
		return "TRUE", nil
	}

	clauses := make([]string, 0, len(f))
	args := make([]any, 0, len(f))
	for _, c := range f {
		var op string
		switch c.Op {
		case filter.OpEq:
			op = "="
		case filter.OpNe:
			op = "<>"
		case filter.OpGt:
			op = ">"
		case filter.OpGte:
			op = ">="
		case filter.OpLt:
			op = "<"
		case filter.OpLte:
			op = "<="
		}
		clauses = append(clauses, fmt.Sprintf("%s %s $%d", c.Field, op, len(args)+1))
		args = append(args, sqlArg(c.Value))
	}
	return strings.Join(clauses, " AND "), args
}

func postgresScalars(sch *schema.Schema) []*schema.ScalarField {
	fields := make([]*schema.ScalarField, 0)
	for _, f := range sch.Scalars() {
		if f.StoresTo(schema.StorePostgres) {
			fields = append(fields, f)
		}
	}
	return fields
}

func recordColumns(fields []*schema.ScalarField) []string {
	cols := []string{"id", "created_at", "updated_at"}
	for _, f := range fields {
		cols = append(cols, f.Name)
	}
	return cols
}

// scanRecord reads one row into a value map. The id and timestamps are
// rendered as strings, matching the record JSON shape.
func scanRecord(row rowScannerIface, fields []*schema.ScalarField) (map[string]value.Value, error) {
	var id uuid.UUID
	var createdAt, updatedAt time.Time

	dest := make([]any, 0, len(fields)+3)
	dest = append(dest, &id, &createdAt, &updatedAt)
	cells := make([]any, len(fields))
	for i, f := range fields {
		cells[i] = scanCell(f.Type)
		dest = append(dest, cells[i])
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	rec := make(map[string]value.Value, len(fields)+3)
	rec["id"] = value.String(id.String())
	rec["created_at"] = value.String(createdAt.UTC().Format(time.RFC3339))
	rec["updated_at"] = value.String(updatedAt.UTC().Format(time.RFC3339))
	for i, f := range fields {
		rec[f.Name] = cellValue(cells[i], f.Type)
	}
	return rec, nil
}

// scanCell allocates a typed scan destination for a field.
func scanCell(t schema.FieldType) any {
	switch t {
	case schema.TypeInt:
		return new(sql.NullInt64)
	case schema.TypeFloat:
		return new(sql.NullFloat64)
	case schema.TypeBoolean:
		return new(sql.NullBool)
	case schema.TypeDate, schema.TypeDateTime:
		return new(sql.NullTime)
	case schema.TypeJSON:
		return new([]byte)
	default:
		return new(sql.NullString)
	}
}

// cellValue converts a scanned cell back into a Value. Dates render as
// 2006-01-02, datetimes as RFC 3339 UTC.
func cellValue(cell any, t schema.FieldType) value.Value {
	switch c := cell.(type) {
	case *sql.NullInt64:
		if !c.Valid {
			return value.Null()
		}
		return value.Int(c.Int64)
	case *sql.NullFloat64:
		if !c.Valid {
			return value.Null()
		}
		return value.Float(c.Float64)
	case *sql.NullBool:
		if !c.Valid {
			return value.Null()
		}
		return value.Bool(c.Bool)
	case *sql.NullTime:
		if !c.Valid {
			return value.Null()
		}
		if t == schema.TypeDate {
			return value.String(c.Time.Format("2006-01-02"))
		}
		return value.String(c.Time.UTC().Format(time.RFC3339))
	case *[]byte:
		if len(*c) == 0 {
			return value.Null()
		}
		var v value.Value
		if err := json.Unmarshal(*c, &v); err != nil {
			return value.Null()
		}
		return v
	case *sql.NullString:
		if !c.Valid {
			return value.Null()
		}
		return value.String(c.String)
	default:
		return value.Null()
	}
}

// sqlArg converts a Value into a database/sql argument. Containers are
// serialized to JSON for JSONB columns.
func sqlArg(v value.Value) any {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBool:
		b, _ := v.BoolVal()
		return b
	case value.KindInt:
		i, _ := v.IntVal()
		return i
	case value.KindFloat:
		f, _ := v.FloatVal()
		return f
	case value.KindString:
		s, _ := v.StringVal()
		return s
	case value.KindBytes:
		b, _ := v.BytesVal()
		return b
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(data)
	}
}
