package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cortexdb/cortexdb/internal/value"
)

// isoLayouts are the accepted date/datetime input formats. Layouts without
// a zone are interpreted as UTC.
var isoLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{time.RFC3339, true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02", false},
}

// ParseISOTime parses an ISO-8601 date or datetime string.
func ParseISOTime(s string) (time.Time, error) {
	for _, l := range isoLayouts {
		if l.zoned {
			if t, err := time.Parse(l.layout, s); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(l.layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not an ISO-8601 timestamp: %q", s)
}

// Coerce converts a dynamic value into the field's declared type. Dates and
// datetimes are normalised to canonical string forms (2006-01-02 and
// RFC 3339) so that coerced values remain inside the value sum. Failures
// carry ErrInvalid.
func Coerce(v value.Value, f *ScalarField) (value.Value, error) {
	switch f.Type {
	case TypeString, TypeText, TypeFile:
		return value.String(v.Text()), nil

	case TypeEnum:
		candidate := v.Text()
		for _, allowed := range f.Values {
			if candidate == allowed {
				return value.String(candidate), nil
			}
		}
		return value.Null(), fmt.Errorf("invalid enum value %q for field %q: %w", candidate, f.Name, ErrInvalid)

	case TypeInt:
		switch v.Kind() {
		case value.KindInt:
			return v, nil
		case value.KindFloat:
			fv, _ := v.FloatVal()
			return value.Int(int64(fv)), nil
		case value.KindBool:
			b, _ := v.BoolVal()
			if b {
				return value.Int(1), nil
			}
			return value.Int(0), nil
		case value.KindString:
			s, _ := v.StringVal()
			i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return value.Null(), fmt.Errorf("invalid int value %q for field %q: %w", s, f.Name, ErrInvalid)
			}
			return value.Int(i), nil
		}
		return value.Null(), fmt.Errorf("invalid int value for field %q: %w", f.Name, ErrInvalid)

	case TypeFloat:
		switch v.Kind() {
		case value.KindFloat, value.KindInt:
			fv, _ := v.FloatVal()
			return value.Float(fv), nil
		case value.KindBool:
			b, _ := v.BoolVal()
			if b {
				return value.Float(1), nil
			}
			return value.Float(0), nil
		case value.KindString:
			s, _ := v.StringVal()
			fv, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return value.Null(), fmt.Errorf("invalid float value %q for field %q: %w", s, f.Name, ErrInvalid)
			}
			return value.Float(fv), nil
		}
		return value.Null(), fmt.Errorf("invalid float value for field %q: %w", f.Name, ErrInvalid)

	case TypeBoolean:
		switch v.Kind() {
		case value.KindBool:
			return v, nil
		case value.KindString:
			s, _ := v.StringVal()
			switch strings.ToLower(s) {
			case "true", "1", "yes":
				return value.Bool(true), nil
			case "false", "0", "no":
				return value.Bool(false), nil
			}
		}
		return value.Null(), fmt.Errorf("invalid boolean value for field %q: %w", f.Name, ErrInvalid)

	case TypeDate:
		s, ok := v.StringVal()
		if !ok {
			return value.Null(), fmt.Errorf("invalid date value for field %q: %w", f.Name, ErrInvalid)
		}
		t, err := ParseISOTime(s)
		if err != nil {
			return value.Null(), fmt.Errorf("field %q: %v: %w", f.Name, err, ErrInvalid)
		}
		return value.String(t.Format("2006-01-02")), nil

	case TypeDateTime:
		s, ok := v.StringVal()
		if !ok {
			return value.Null(), fmt.Errorf("invalid datetime value for field %q: %w", f.Name, ErrInvalid)
		}
		t, err := ParseISOTime(s)
		if err != nil {
			return value.Null(), fmt.Errorf("field %q: %v: %w", f.Name, err, ErrInvalid)
		}
		return value.String(t.UTC().Format(time.RFC3339)), nil

	case TypeJSON:
		switch v.Kind() {
		case value.KindMap, value.KindList:
			return v, nil
		case value.KindString:
			s, _ := v.StringVal()
			var decoded any
			dec := json.NewDecoder(strings.NewReader(s))
			dec.UseNumber()
			if err := dec.Decode(&decoded); err != nil {
				return value.Null(), fmt.Errorf("invalid json value for field %q: %w", f.Name, ErrInvalid)
			}
			return value.FromJSON(decoded), nil
		}
		return value.Null(), fmt.Errorf("invalid json value for field %q: %w", f.Name, ErrInvalid)
	}

	return v, nil
}
