package fetch

import (
	"fmt"
)

// FieldType is the decoded type of a column. The zero value means no
// non-nil cell has been seen yet.
type FieldType int

const (
	TypeUnknown FieldType = iota
	TypeInt64
	TypeFloat64
	TypeString
)

// String implements fmt.Stringer.
func (t FieldType) String() string {
	switch t {
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// Widen returns the narrowest type both t and other fit in. Integers widen
// to floats, everything widens to string.
func (t FieldType) Widen(other FieldType) FieldType {
	if other > t {
		return other
	}
	return t
}

// typeOf maps a decoded cell value to its FieldType. Nil carries no type.
func typeOf(v any) FieldType {
	switch v.(type) {
	case nil:
		return TypeUnknown
	case int64:
		return TypeInt64
	case float64:
		return TypeFloat64
	default:
		return TypeString
	}
}

// coerce converts a decoded value to a field's final type. Values only ever
// move up the widening order, so the conversions are lossless.
func coerce(v any, t FieldType) any {
	if v == nil {
		return nil
	}
	switch t {
	case TypeFloat64:
		if n, ok := v.(int64); ok {
			return float64(n)
		}
		return v
	case TypeString:
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	default:
		return v
	}
}

// Field is one column of the merged output.
type Field struct {
	Name string
	Type FieldType
}

// Schema is the fixed, ordered column layout of a merged stream. It is
// emitted exactly once, before any row batch.
type Schema struct {
	Fields []Field
}

// FieldIndex returns the position of a named field, or -1.
func (s Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Validate checks that every row of a batch only carries schema columns
// with values of the declared types.
func (s Schema) Validate(b Batch) error {
	for _, row := range b.Rows {
		for name, v := range row {
			i := s.FieldIndex(name)
			if i < 0 {
				return fmt.Errorf("row carries column %q not present in schema", name)
			}
			if v == nil {
				continue
			}
			if got := typeOf(v); got != s.Fields[i].Type {
				return fmt.Errorf("column %q holds %s, schema says %s", name, got, s.Fields[i].Type)
			}
		}
	}
	return nil
}

// Batch is one emitted group of merged rows.
type Batch struct {
	Rows []map[string]any
}
