package fetch

import (
	"fmt"
)

// accumulator merges the chunks of one concurrency batch into a single row
// set under a widening union schema. Chunks arrive in completion order;
// merges are serialized by the collector goroutine, so the accumulator
// needs no locking.
type accumulator struct {
	fields []Field
	index  map[string]int
	rows   []map[string]any

	// fixed is set once the stream schema has been emitted. From then on a
	// column that is not part of the schema is a consistency error instead
	// of a union extension.
	fixed bool
}

func newAccumulator() *accumulator {
	return &accumulator{index: make(map[string]int)}
}

// seeded returns an accumulator locked to an already-emitted schema.
func seeded(s Schema) *accumulator {
	a := &accumulator{
		fields: append([]Field(nil), s.Fields...),
		index:  make(map[string]int, len(s.Fields)),
		fixed:  true,
	}
	for i, f := range a.fields {
		a.index[f.Name] = i
	}
	return a
}

// merge folds one chunk into the accumulator: new columns extend the
// union (or fail when the schema is fixed), known columns widen.
func (a *accumulator) merge(c *Chunk) error {
	for _, f := range c.Fields {
		i, ok := a.index[f.Name]
		if !ok {
			if a.fixed {
				return fmt.Errorf("column %q appeared after the schema was emitted", f.Name)
			}
			a.index[f.Name] = len(a.fields)
			a.fields = append(a.fields, f)
			continue
		}
		if a.fixed {
			// A fixed schema still absorbs narrower values; they are
			// coerced up in take.
			if a.fields[i].Type.Widen(f.Type) != a.fields[i].Type {
				return fmt.Errorf("column %q widened to %s after the schema was emitted as %s",
					f.Name, f.Type, a.fields[i].Type)
			}
			continue
		}
		a.fields[i].Type = a.fields[i].Type.Widen(f.Type)
	}
	a.rows = append(a.rows, c.Rows...)
	return nil
}

// schema returns the accumulated union schema. Columns that never saw a
// non-nil value settle on float64, matching how absent measurements read.
func (a *accumulator) schema() Schema {
	fields := append([]Field(nil), a.fields...)
	for i := range fields {
		if fields[i].Type == TypeUnknown {
			fields[i].Type = TypeFloat64
		}
	}
	return Schema{Fields: fields}
}

// take drains the accumulated rows as one batch, coercing every value to
// its column's settled type.
func (a *accumulator) take(s Schema) Batch {
	for _, row := range a.rows {
		for name, v := range row {
			if i := s.FieldIndex(name); i >= 0 {
				row[name] = coerce(v, s.Fields[i].Type)
			}
		}
	}
	b := Batch{Rows: a.rows}
	a.rows = nil
	return b
}
