package filter

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/cortexdb/cortexdb/internal/value"
)

func decode(t *testing.T, doc string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return raw
}

func TestParse(t *testing.T) {
	f, err := Parse(decode(t, `{"year": {"$gte": 2023, "$lt": 2025}, "status": "published"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Filter{
		{Field: "status", Op: OpEq, Value: value.String("published")},
		{Field: "year", Op: OpGte, Value: value.Int(2023)},
		{Field: "year", Op: OpLt, Value: value.Int(2025)},
	}
	if len(f) != len(want) {
		t.Fatalf("got %d conditions, want %d", len(f), len(want))
	}
	for i := range want {
		if f[i].Field != want[i].Field || f[i].Op != want[i].Op || !value.Equal(f[i].Value, want[i].Value) {
			t.Errorf("condition %d = %+v, want %+v", i, f[i], want[i])
		}
	}
}

func TestParseEmpty(t *testing.T) {
	f, err := Parse(nil)
	if err != nil || f != nil {
		t.Fatalf("empty filter should pass through, got %v / %v", f, err)
	}
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"unknown operator", `{"year": {"$like": "20%"}}`},
		{"empty operator object", `{"year": {}}`},
		{"injection field", `{"year\" OR 1=1 --": 2023}`},
		{"list literal", `{"tags": ["a", "b"]}`},
		{"nested literal", `{"year": {"$gte": {"v": 1}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(decode(t, tc.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("error %v should wrap ErrInvalid", err)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	f, err := Parse(decode(t, `{"year": {"$gte": 2023, "$ne": 2024}, "status": "draft"}`))
	if err != nil {
		t.Fatal(err)
	}
	vec, post := f.Split()
	if len(vec) != 2 || len(post) != 1 {
		t.Fatalf("split = %d vector / %d post", len(vec), len(post))
	}
	if post[0].Op != OpNe {
		t.Errorf("post condition op = %v", post[0].Op)
	}
}

func TestMatches(t *testing.T) {
	cases := []struct {
		name string
		cond Condition
		in   value.Value
		want bool
	}{
		{"eq string", Condition{Op: OpEq, Value: value.String("a")}, value.String("a"), true},
		{"ne hit", Condition{Op: OpNe, Value: value.Int(2024)}, value.Int(2023), true},
		{"ne miss", Condition{Op: OpNe, Value: value.Int(2024)}, value.Int(2024), false},
		{"gte boundary", Condition{Op: OpGte, Value: value.Int(10)}, value.Int(10), true},
		{"lt float vs int", Condition{Op: OpLt, Value: value.Float(2.5)}, value.Int(2), true},
		{"string ordering", Condition{Op: OpGt, Value: value.String("alpha")}, value.String("beta"), true},
		{"cross kind ordering", Condition{Op: OpGt, Value: value.String("10")}, value.Int(11), false},
		{"null never ordered", Condition{Op: OpLte, Value: value.Int(1)}, value.Null(), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cond.Matches(tc.in); got != tc.want {
				t.Errorf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}
