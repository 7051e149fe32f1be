package fetch

import (
	"reflect"
	"testing"
)

func TestWiden(t *testing.T) {
	tests := []struct {
		a, b, want FieldType
	}{
		{TypeUnknown, TypeInt64, TypeInt64},
		{TypeInt64, TypeFloat64, TypeFloat64},
		{TypeFloat64, TypeInt64, TypeFloat64},
		{TypeInt64, TypeString, TypeString},
		{TypeString, TypeFloat64, TypeString},
		{TypeUnknown, TypeUnknown, TypeUnknown},
	}

	for _, tt := range tests {
		if got := tt.a.Widen(tt.b); got != tt.want {
			t.Errorf("%s.Widen(%s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		v    any
		t    FieldType
		want any
	}{
		{int64(3), TypeFloat64, 3.0},
		{int64(3), TypeInt64, int64(3)},
		{2.5, TypeFloat64, 2.5},
		{int64(7), TypeString, "7"},
		{"x", TypeString, "x"},
		{nil, TypeFloat64, nil},
	}

	for _, tt := range tests {
		if got := coerce(tt.v, tt.t); got != tt.want {
			t.Errorf("coerce(%v, %s) = %v (%T), want %v", tt.v, tt.t, got, got, tt.want)
		}
	}
}

func TestAccumulatorUnion(t *testing.T) {
	acc := newAccumulator()

	err := acc.merge(&Chunk{
		Fields: []Field{{Name: "region", Type: TypeString}, {Name: "antal", Type: TypeInt64}},
		Rows:   []map[string]any{{"region": "Riket", "antal": int64(5)}},
	})
	if err != nil {
		t.Fatalf("merge() error = %v", err)
	}
	err = acc.merge(&Chunk{
		Fields: []Field{{Name: "region", Type: TypeString}, {Name: "antal", Type: TypeFloat64}, {Name: "andel", Type: TypeFloat64}},
		Rows:   []map[string]any{{"region": "Riket", "antal": 2.5, "andel": 0.1}},
	})
	if err != nil {
		t.Fatalf("merge() error = %v", err)
	}

	schema := acc.schema()
	want := Schema{Fields: []Field{
		{Name: "region", Type: TypeString},
		{Name: "antal", Type: TypeFloat64},
		{Name: "andel", Type: TypeFloat64},
	}}
	if !reflect.DeepEqual(schema, want) {
		t.Errorf("schema = %+v, want %+v", schema, want)
	}

	batch := acc.take(schema)
	if len(batch.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(batch.Rows))
	}
	// The int64 from the first chunk is coerced to the widened float64.
	if got := batch.Rows[0]["antal"]; got != 5.0 {
		t.Errorf("coerced value = %v (%T), want 5.0", got, got)
	}
	if err := schema.Validate(batch); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if len(acc.rows) != 0 {
		t.Error("take() must drain the accumulator")
	}
}

func TestAccumulatorUnknownSettlesFloat(t *testing.T) {
	acc := newAccumulator()
	if err := acc.merge(&Chunk{
		Fields: []Field{{Name: "antal", Type: TypeUnknown}},
		Rows:   []map[string]any{{"antal": nil}},
	}); err != nil {
		t.Fatalf("merge() error = %v", err)
	}

	schema := acc.schema()
	if schema.Fields[0].Type != TypeFloat64 {
		t.Errorf("all-missing column type = %s, want float64", schema.Fields[0].Type)
	}
}

func TestSeededAccumulatorRejectsNewColumn(t *testing.T) {
	schema := Schema{Fields: []Field{{Name: "antal", Type: TypeInt64}}}
	acc := seeded(schema)

	if err := acc.merge(&Chunk{
		Fields: []Field{{Name: "antal", Type: TypeInt64}, {Name: "andel", Type: TypeFloat64}},
	}); err == nil {
		t.Error("expected error for column appearing after schema emission")
	}
}

func TestSeededAccumulatorRejectsWidening(t *testing.T) {
	schema := Schema{Fields: []Field{{Name: "antal", Type: TypeInt64}}}
	acc := seeded(schema)

	if err := acc.merge(&Chunk{
		Fields: []Field{{Name: "antal", Type: TypeString}},
	}); err == nil {
		t.Error("expected error for widening after schema emission")
	}

	// Narrower chunks are fine; coercion happens at take.
	acc = seeded(Schema{Fields: []Field{{Name: "antal", Type: TypeFloat64}}})
	if err := acc.merge(&Chunk{
		Fields: []Field{{Name: "antal", Type: TypeInt64}},
		Rows:   []map[string]any{{"antal": int64(1)}},
	}); err != nil {
		t.Errorf("merge() of narrower chunk error = %v", err)
	}
}

func TestAssignments(t *testing.T) {
	a := newAssignments(
		[]string{"Region", "Kon"},
		[][]string{{"00", "01"}, {"1", "2"}},
	)

	var got []map[string]string
	for {
		pin, ok := a.next()
		if !ok {
			break
		}
		got = append(got, pin)
	}

	want := []map[string]string{
		{"Region": "00", "Kon": "1"},
		{"Region": "00", "Kon": "2"},
		{"Region": "01", "Kon": "1"},
		{"Region": "01", "Kon": "2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("assignments = %v, want %v", got, want)
	}
}

func TestAssignmentsEmpty(t *testing.T) {
	a := newAssignments(nil, nil)

	pin, ok := a.next()
	if !ok || len(pin) != 0 {
		t.Errorf("no pinned dimensions should yield one empty assignment, got %v/%v", pin, ok)
	}
	if _, ok := a.next(); ok {
		t.Error("sequence must be exhausted after the single empty assignment")
	}
}
