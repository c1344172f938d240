package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Record is one structured input row. Fields may repeat; a field that is
// declared in the schema but holds no value has zero occurrences.
type Record interface {
	Schema() *Schema
	Repetition(field string) int
	Int32(field string, index int) (int32, error)
	Int64(field string, index int) (int64, error)
	String() string
}

// Row is a Record decoded from a single JSON object.
type Row struct {
	schema *Schema
	values map[string][]interface{}
	raw    string
}

// Schema returns the row's schema.
func (r *Row) Schema() *Schema {
	return r.schema
}

// Repetition returns the number of values held by field.
func (r *Row) Repetition(field string) int {
	return len(r.values[field])
}

func (r *Row) value(field string, index int) (interface{}, error) {
	vals := r.values[field]
	if index < 0 || index >= len(vals) {
		return nil, fmt.Errorf("field %s: index %d out of range [0,%d)", field, index, len(vals))
	}
	return vals[index], nil
}

// Int64 returns the index-th value of field as a 64-bit integer.
func (r *Row) Int64(field string, index int) (int64, error) {
	v, err := r.value(field, index)
	if err != nil {
		return 0, err
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("field %s: value %v is not a number", field, v)
	}
	i, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", field, err)
	}
	return i, nil
}

// Int32 returns the index-th value of field as a 32-bit integer.
func (r *Row) Int32(field string, index int) (int32, error) {
	v, err := r.value(field, index)
	if err != nil {
		return 0, err
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("field %s: value %v is not a number", field, v)
	}
	i, err := strconv.ParseInt(n.String(), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", field, err)
	}
	return int32(i), nil
}

func (r *Row) String() string {
	return r.raw
}

// Decoder turns JSON-lines input into Rows. Fields declared in the
// decoder's schema keep their declared type; every other field has its
// type inferred from the value.
type Decoder struct {
	declared *Schema
}

// NewDecoder returns a Decoder. schema may be nil.
func NewDecoder(schema *Schema) *Decoder {
	if schema == nil {
		schema = NewSchema()
	}
	return &Decoder{declared: schema}
}

// Decode parses one JSON object into a Row. The line "null" decodes to a
// nil Row.
func (d *Decoder) Decode(line string) (*Row, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode record: trailing data after object")
	}
	if obj == nil {
		return nil, nil
	}

	row := &Row{
		schema: d.declared.clone(),
		values: make(map[string][]interface{}, len(obj)),
		raw:    compact(line),
	}
	for name, v := range obj {
		vals := occurrences(v)
		if !row.schema.ContainsField(name) {
			row.schema.Add(name, inferType(vals))
		}
		if len(vals) > 0 {
			row.values[name] = vals
		}
	}
	return row, nil
}

// occurrences flattens a JSON value into its repeated values. null and
// empty arrays have no occurrences.
func occurrences(v interface{}) []interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case []interface{}:
		out := make([]interface{}, 0, len(t))
		for _, e := range t {
			if e != nil {
				out = append(out, e)
			}
		}
		return out
	default:
		return []interface{}{v}
	}
}

// inferType types a field from its first value. A field with no values
// is treated as an optional integer column.
func inferType(vals []interface{}) PrimitiveType {
	if len(vals) == 0 {
		return Int64
	}
	switch t := vals[0].(type) {
	case json.Number:
		if _, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return Int64
		}
		return Double
	case bool:
		return Boolean
	default:
		return Binary
	}
}

func compact(line string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(line)); err != nil {
		return line
	}
	return buf.String()
}
