package fetch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nordstat/pxfetch/pkg/pxweb"
)

// missingValue is the API's sentinel for absent data.
const missingValue = ".."

// DecodeError is a data-integrity failure: a raw code in a response has no
// label in the table's dimension metadata. It is fatal and never retried.
type DecodeError struct {
	Dimension string
	Value     string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("no label for value %q of dimension %s", e.Value, e.Dimension)
}

// Chunk is the decoded table for one pin assignment: content fields plus
// one column per wildcard key dimension, and a raw-code companion column
// for every non-content response column.
type Chunk struct {
	Fields []Field
	Rows   []map[string]any
}

// decodeChunk turns a raw data response into a Chunk, decoding cell values
// against the table's dimension metadata and deriving sanitized column
// names from the response's display texts.
func decodeChunk(info *pxweb.TableInfo, resp *pxweb.DataResponse) (*Chunk, error) {
	lookup := make(map[string]map[string]string, len(info.Variables))
	for i := range info.Variables {
		v := &info.Variables[i]
		lookup[v.Code] = v.Lookup()
	}

	names := columnNames(resp.Columns)

	chunk := &Chunk{
		Fields: make([]Field, 0, len(names)+len(resp.Columns)),
		Rows:   make([]map[string]any, len(resp.Data)),
	}
	for r := range resp.Data {
		chunk.Rows[r] = make(map[string]any, len(names)+len(resp.Columns))
	}

	for i, col := range resp.Columns {
		field := Field{Name: names[i]}
		for r, row := range resp.Data {
			raw, err := cellValue(row, i, len(resp.Columns))
			if err != nil {
				return nil, err
			}
			v, err := parseValue(lookup, col, raw)
			if err != nil {
				return nil, err
			}
			chunk.Rows[r][field.Name] = v
			field.Type = field.Type.Widen(typeOf(v))
		}
		chunk.Fields = append(chunk.Fields, field)
	}

	// Raw-code companion columns for the key dimensions. Key columns come
	// first in the response column order, so index i addresses row.Key.
	for i, col := range resp.Columns {
		if col.Type == pxweb.ColumnContent {
			continue
		}
		field := Field{Name: parseName(col.Text) + "__code", Type: TypeString}
		for r, row := range resp.Data {
			if i >= len(row.Key) {
				return nil, fmt.Errorf("row %d has %d key values, need column %d", r, len(row.Key), i)
			}
			chunk.Rows[r][field.Name] = row.Key[i]
		}
		chunk.Fields = append(chunk.Fields, field)
	}

	return chunk, nil
}

// cellValue returns the raw value of column i: rows carry key values first,
// then content values.
func cellValue(row pxweb.Row, i, columns int) (string, error) {
	if i < len(row.Key) {
		return row.Key[i], nil
	}
	j := i - len(row.Key)
	if j >= len(row.Values) {
		return "", fmt.Errorf("row has %d+%d cells, need column %d of %d",
			len(row.Key), len(row.Values), i, columns)
	}
	return row.Values[j], nil
}

// parseValue decodes one raw cell. The missing-data sentinel becomes nil;
// content values are parsed as numeric literals; time values are parsed as
// integers when they look like one; everything else is decoded through the
// dimension's code→label mapping.
func parseValue(lookup map[string]map[string]string, col pxweb.Column, raw string) (any, error) {
	if raw == missingValue {
		return nil, nil
	}
	switch col.Type {
	case pxweb.ColumnContent:
		return parseLiteral(raw), nil
	case pxweb.ColumnTime:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n, nil
		}
		return raw, nil
	default:
		label, ok := lookup[col.Code][raw]
		if !ok {
			return nil, &DecodeError{Dimension: col.Code, Value: raw}
		}
		return label, nil
	}
}

// parseLiteral parses a content cell as a numeric literal, falling back to
// the raw string for the odd non-numeric measured field.
func parseLiteral(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// parseName sanitizes a display text into a column name: lower-cased,
// Swedish letters folded to ASCII, spaces to underscores, everything else
// outside [a-z0-9_] dropped.
func parseName(text string) string {
	text = strings.ToLower(text)
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == 'å' || r == 'ä':
			b.WriteByte('a')
		case r == 'ö':
			b.WriteByte('o')
		case r == ' ':
			b.WriteByte('_')
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// columnNames derives the output name of every response column, suffixing
// later duplicates deterministically in first-seen order.
func columnNames(cols []pxweb.Column) []string {
	names := make([]string, len(cols))
	seen := make(map[string]bool, len(cols))
	for i, col := range cols {
		name := parseName(col.Text)
		if seen[name] {
			name += "_varde"
		}
		seen[name] = true
		names[i] = name
	}
	return names
}
