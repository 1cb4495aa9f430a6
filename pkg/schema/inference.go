package schema

import (
	stderrors "errors"
	"strconv"
	"strings"

	"github.com/ajitpratap0/pql/pkg/errors"
)

// DefaultNullSentinels are the raw strings read as null.
var DefaultNullSentinels = []string{"", "NA", "null"}

// Sentinels is a set of raw strings that denote a null value. Matching is
// exact and happens after trimming.
type Sentinels map[string]struct{}

// NewSentinels builds a set from list.
func NewSentinels(list []string) Sentinels {
	s := make(Sentinels, len(list))
	for _, v := range list {
		s[v] = struct{}{}
	}
	return s
}

// IsNull reports whether raw is a null sentinel once trimmed.
func (s Sentinels) IsNull(raw string) bool {
	_, ok := s[strings.TrimSpace(raw)]
	return ok
}

// InferValue returns the lowest lattice type that can represent raw.
// Null is returned for sentinels.
func InferValue(raw string, sentinels Sentinels) Type {
	v := strings.TrimSpace(raw)
	if _, ok := sentinels[v]; ok {
		return Null
	}
	if _, ok := parseBool(v); ok {
		return Boolean
	}
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return Int64
	} else if stderrors.Is(err, strconv.ErrRange) {
		if _, ok := parseFloat(v); ok {
			return Float64
		}
		return String
	}
	if _, ok := parseFloat(v); ok {
		return Float64
	}
	return String
}

func parseBool(v string) (bool, bool) {
	switch {
	case strings.EqualFold(v, "true"):
		return true, true
	case strings.EqualFold(v, "false"):
		return false, true
	}
	return false, false
}

// parseFloat rejects out of range input, which ParseFloat reports as an
// infinity together with ErrRange.
func parseFloat(v string) (float64, bool) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ColumnInference tracks the running type of one column.
type ColumnInference struct {
	typ      Type
	nullable bool
}

// Observe widens the running type with raw.
func (c *ColumnInference) Observe(raw string, sentinels Sentinels) {
	t := InferValue(raw, sentinels)
	if t == Null {
		c.nullable = true
		return
	}
	c.typ = Max(c.typ, t)
}

// ObserveNull records an absent value, e.g. a missing trailing field.
func (c *ColumnInference) ObserveNull() {
	c.nullable = true
}

// Result returns the inferred type and nullability. A column that saw only
// nulls, or nothing at all, is a nullable String.
func (c *ColumnInference) Result() (Type, bool) {
	if c.typ == Null {
		return String, true
	}
	return c.typ, c.nullable
}

// InferColumn infers a single column from its raw values.
func InferColumn(values []string, sentinels Sentinels) (Type, bool) {
	var c ColumnInference
	for _, v := range values {
		c.Observe(v, sentinels)
	}
	return c.Result()
}

// Inferencer infers a whole schema incrementally, one row at a time.
type Inferencer struct {
	names     []string
	columns   []ColumnInference
	sentinels Sentinels
	rows      int
}

// NewInferencer creates an Inferencer for the given column names.
func NewInferencer(names []string, sentinels Sentinels) *Inferencer {
	n := make([]string, len(names))
	copy(n, names)
	return &Inferencer{
		names:     n,
		columns:   make([]ColumnInference, len(names)),
		sentinels: sentinels,
	}
}

// Observe feeds one record. Missing trailing fields count as nulls and
// extra fields are ignored.
func (inf *Inferencer) Observe(record []string) {
	inf.rows++
	for i := range inf.columns {
		if i < len(record) {
			inf.columns[i].Observe(record[i], inf.sentinels)
		} else {
			inf.columns[i].ObserveNull()
		}
	}
}

// Rows returns the number of records observed.
func (inf *Inferencer) Rows() int { return inf.rows }

// Schema returns the schema inferred so far.
func (inf *Inferencer) Schema() (*Schema, error) {
	fields := make([]Field, len(inf.names))
	for i, name := range inf.names {
		t, nullable := inf.columns[i].Result()
		fields[i] = Field{Name: name, Type: t, Nullable: nullable}
	}
	return NewSchema(fields)
}

// Coerce converts raw into a Value of field's type. Sentinels yield a null,
// which is an error for non-nullable fields. String values are kept
// verbatim; every other type is parsed from the trimmed text. Boolean
// literals widen to 1 and 0 in numeric columns, following the lattice, so
// an inferred schema accepts every value it was inferred from.
func Coerce(raw string, field Field, sentinels Sentinels) (Value, error) {
	v := strings.TrimSpace(raw)
	if _, ok := sentinels[v]; ok {
		if !field.Nullable {
			return Value{}, errors.Newf(errors.ErrorTypeTypeCoercion,
				"column %q is not nullable but got null value %q", field.Name, raw).
				WithDetail("column", field.Name)
		}
		return NullValue(), nil
	}

	switch field.Type {
	case Boolean:
		if b, ok := parseBool(v); ok {
			return BoolValue(b), nil
		}
	case Int64:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return IntValue(n), nil
		}
		if b, ok := parseBool(v); ok {
			return IntValue(boolToInt(b)), nil
		}
	case Float64:
		if f, ok := parseFloat(v); ok {
			return FloatValue(f), nil
		}
		if b, ok := parseBool(v); ok {
			return FloatValue(float64(boolToInt(b))), nil
		}
	case String:
		return StringValue(raw), nil
	}
	return Value{}, errors.Newf(errors.ErrorTypeTypeCoercion,
		"value %q in column %q is not %s", raw, field.Name, field.Type).
		WithDetail("column", field.Name)
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
