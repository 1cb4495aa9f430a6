// Package schema defines the pql type lattice, schemas and typed values,
// and infers column types from raw CSV text.
package schema

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/pql/pkg/errors"
)

// Type is a column type. The numeric order is the inference lattice:
// Null < Boolean < Int64 < Float64 < String.
type Type uint8

const (
	Null Type = iota
	Boolean
	Int64
	Float64
	String
)

var typeNames = [...]string{
	Null:    "null",
	Boolean: "boolean",
	Int64:   "int64",
	Float64: "float64",
	String:  "string",
}

// String returns the canonical lowercase name of t.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Valid reports whether t is one of the defined types.
func (t Type) Valid() bool {
	return t <= String
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseType parses a type name. Common aliases are accepted.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "null":
		return Null, nil
	case "bool", "boolean":
		return Boolean, nil
	case "int", "int64", "long":
		return Int64, nil
	case "float", "float64", "double":
		return Float64, nil
	case "string", "str", "utf8":
		return String, nil
	}
	return Null, errors.Newf(errors.ErrorTypeValidation, "unknown type %q", s)
}

// Max returns the higher of a and b in the lattice.
func Max(a, b Type) Type {
	if a > b {
		return a
	}
	return b
}

// Field describes one column.
type Field struct {
	Name     string `yaml:"name" json:"name"`
	Type     Type   `yaml:"type" json:"type"`
	Nullable bool   `yaml:"nullable" json:"nullable"`
}

// MaxFieldNameLen is the longest field name the file footer can store.
const MaxFieldNameLen = 1<<16 - 1

// Schema is an ordered, immutable list of uniquely named fields.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema validates fields and builds a Schema. Names must be non-empty
// and unique, and every field needs a storable type.
func NewSchema(fields []Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	copy(s.fields, fields)

	for i, f := range fields {
		if f.Name == "" {
			return nil, errors.Newf(errors.ErrorTypeValidation, "field %d has an empty name", i)
		}
		if len(f.Name) > MaxFieldNameLen {
			return nil, errors.Newf(errors.ErrorTypeValidation, "field %d name exceeds %d bytes", i, MaxFieldNameLen)
		}
		if !f.Type.Valid() {
			return nil, errors.Newf(errors.ErrorTypeValidation, "field %q has invalid type %d", f.Name, uint8(f.Type))
		}
		if f.Type == Null {
			return nil, errors.Newf(errors.ErrorTypeValidation, "field %q: type null cannot be stored, use a nullable type", f.Name)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, errors.Newf(errors.ErrorTypeValidation, "duplicate field name %q", f.Name)
		}
		s.index[f.Name] = i
	}
	return s, nil
}

// MustSchema is NewSchema that panics on error. Intended for tests and literals.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Field returns the i-th field.
func (s *Schema) Field(i int) Field { return s.fields[i] }

// Fields returns a copy of the fields.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns field names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of the named field.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Equal reports whether both schemas have the same fields in the same order.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.fields) != len(o.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}

// Project returns a schema restricted to names, in the order given.
func (s *Schema) Project(names []string) (*Schema, []int, error) {
	fields := make([]Field, 0, len(names))
	idx := make([]int, 0, len(names))
	for _, n := range names {
		i, ok := s.index[n]
		if !ok {
			return nil, nil, errors.Newf(errors.ErrorTypeValidation, "unknown column %q", n)
		}
		fields = append(fields, s.fields[i])
		idx = append(idx, i)
	}
	p, err := NewSchema(fields)
	if err != nil {
		return nil, nil, err
	}
	return p, idx, nil
}

func (s *Schema) String() string {
	var b strings.Builder
	for i, f := range s.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteByte(':')
		b.WriteString(f.Type.String())
		if f.Nullable {
			b.WriteByte('?')
		}
	}
	return b.String()
}
