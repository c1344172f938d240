package records

import (
	"fmt"
	"sort"
	"strings"
)

// PrimitiveType is the physical type of a record field.
type PrimitiveType int

// Supported field types.
const (
	TypeUnknown PrimitiveType = iota
	Int32
	Int64
	Float
	Double
	Binary
	Boolean
)

var typeNames = map[PrimitiveType]string{
	TypeUnknown: "UNKNOWN",
	Int32:       "INT32",
	Int64:       "INT64",
	Float:       "FLOAT",
	Double:      "DOUBLE",
	Binary:      "BINARY",
	Boolean:     "BOOLEAN",
}

func (t PrimitiveType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("PrimitiveType(%d)", int(t))
}

// IsInteger reports whether t is a 32 or 64-bit integer type.
func (t PrimitiveType) IsInteger() bool {
	return t == Int32 || t == Int64
}

// ParseType parses a type name such as "INT64". Matching is case-insensitive.
func ParseType(name string) (PrimitiveType, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for t, n := range typeNames {
		if t != TypeUnknown && n == upper {
			return t, nil
		}
	}
	return TypeUnknown, fmt.Errorf("unknown field type %q", name)
}

// Schema maps field names to their types.
type Schema struct {
	fields map[string]PrimitiveType
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{fields: make(map[string]PrimitiveType)}
}

// ParseSchema parses a comma separated list of name=TYPE pairs,
// e.g. "PULocationID=INT64,fare_amount=DOUBLE". An empty string yields an
// empty schema.
func ParseSchema(decl string) (*Schema, error) {
	s := NewSchema()
	for _, part := range strings.Split(decl, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
			return nil, fmt.Errorf("invalid schema field %q, expected name=TYPE", part)
		}
		t, err := ParseType(kv[1])
		if err != nil {
			return nil, err
		}
		s.Add(strings.TrimSpace(kv[0]), t)
	}
	return s, nil
}

// Add declares a field. Declaring a field twice replaces its type.
func (s *Schema) Add(name string, t PrimitiveType) {
	s.fields[name] = t
}

// ContainsField reports whether name is declared in the schema.
func (s *Schema) ContainsField(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Type returns the declared type of name.
func (s *Schema) Type(name string) (PrimitiveType, bool) {
	t, ok := s.fields[name]
	return t, ok
}

// Len returns the number of declared fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

// Names returns the declared field names in sorted order.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Schema) clone() *Schema {
	c := NewSchema()
	for name, t := range s.fields {
		c.fields[name] = t
	}
	return c
}

func (s *Schema) String() string {
	parts := make([]string, 0, len(s.fields))
	for _, name := range s.Names() {
		parts = append(parts, name+"="+s.fields[name].String())
	}
	return strings.Join(parts, ",")
}
