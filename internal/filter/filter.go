// Package filter parses the scalar filter grammar accepted by search and
// query requests. A filter document maps field names to either a literal
// (equality) or an operator object such as {"$gte": 2023, "$lt": 2025}.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/cortexdb/cortexdb/internal/value"
)

// ErrInvalid is wrapped by every parse failure.
var ErrInvalid = errors.New("invalid filter")

// Op identifies a comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

var ops = map[string]Op{
	"$ne":  OpNe,
	"$gt":  OpGt,
	"$gte": OpGte,
	"$lt":  OpLt,
	"$lte": OpLte,
}

// Condition compares a single field against a literal.
type Condition struct {
	Field string
	Op    Op
	Value value.Value
}

// Filter is an implicit conjunction of conditions.
type Filter []Condition

var fieldRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Parse converts a decoded JSON filter document into conditions. Fields are
// emitted in sorted order so the same document always produces the same
// condition list. Unknown operators are rejected rather than ignored.
func Parse(raw map[string]any) (Filter, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	fields := make([]string, 0, len(raw))
	for name := range raw {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var out Filter
	for _, name := range fields {
		if !fieldRe.MatchString(name) {
			return nil, fmt.Errorf("%w: bad field name %q", ErrInvalid, name)
		}
		switch spec := raw[name].(type) {
		case map[string]any:
			if len(spec) == 0 {
				return nil, fmt.Errorf("%w: field %q has an empty operator object", ErrInvalid, name)
			}
			names := make([]string, 0, len(spec))
			for op := range spec {
				names = append(names, op)
			}
			sort.Strings(names)
			for _, opName := range names {
				op, ok := ops[opName]
				if !ok {
					return nil, fmt.Errorf("%w: unknown operator %q on field %q", ErrInvalid, opName, name)
				}
				lit := value.FromJSON(spec[opName])
				if lit.Kind() == value.KindList || lit.Kind() == value.KindMap {
					return nil, fmt.Errorf("%w: operator %s on field %q needs a scalar literal", ErrInvalid, opName, name)
				}
				out = append(out, Condition{Field: name, Op: op, Value: lit})
			}
		default:
			lit := value.FromJSON(spec)
			if lit.Kind() == value.KindList || lit.Kind() == value.KindMap {
				return nil, fmt.Errorf("%w: field %q needs a scalar literal", ErrInvalid, name)
			}
			out = append(out, Condition{Field: name, Op: OpEq, Value: lit})
		}
	}
	return out, nil
}

// Split separates the conditions the vector store can evaluate (equality and
// ranges) from the ones that have to be applied after hydration ($ne).
func (f Filter) Split() (vector, post Filter) {
	for _, c := range f {
		if c.Op == OpNe {
			post = append(post, c)
		} else {
			vector = append(vector, c)
		}
	}
	return vector, post
}

// Matches evaluates the condition against a candidate value. Ordering
// comparisons only hold between two numbers or two strings; everything else
// fails the condition.
func (c Condition) Matches(v value.Value) bool {
	switch c.Op {
	case OpEq:
		return value.Equal(v, c.Value)
	case OpNe:
		return !value.Equal(v, c.Value)
	}

	if a, ok := v.FloatVal(); ok {
		b, ok := c.Value.FloatVal()
		if !ok {
			return false
		}
		return ordered(c.Op, a < b, a > b, a == b)
	}
	if a, ok := v.StringVal(); ok {
		b, ok := c.Value.StringVal()
		if !ok {
			return false
		}
		return ordered(c.Op, a < b, a > b, a == b)
	}
	return false
}

func ordered(op Op, lt, gt, eq bool) bool {
	switch op {
	case OpGt:
		return gt
	case OpGte:
		return gt || eq
	case OpLt:
		return lt
	case OpLte:
		return lt || eq
	default:
		return false
	}
}
