package columnar

import (
	"math"

	"github.com/ajitpratap0/pql/pkg/errors"
	"github.com/ajitpratap0/pql/pkg/schema"
)

// Column stores values of a single type
type Column struct {
	typ      schema.Type
	validity *Bitmap
	nulls    int

	ints   []int64
	floats []float64
	bools  []bool
	strs   []string
}

// NewColumn creates an empty column of type t
func NewColumn(t schema.Type, capacity int) *Column {
	c := &Column{typ: t, validity: NewBitmap(capacity)}
	switch t {
	case schema.Int64:
		c.ints = make([]int64, 0, capacity)
	case schema.Float64:
		c.floats = make([]float64, 0, capacity)
	case schema.Boolean:
		c.bools = make([]bool, 0, capacity)
	case schema.String:
		c.strs = make([]string, 0, capacity)
	}
	return c
}

func (c *Column) Type() schema.Type { return c.typ }
func (c *Column) Len() int          { return c.validity.Len() }
func (c *Column) NullCount() int    { return c.nulls }

// Validity returns the validity bitmap; a set bit marks a present value.
func (c *Column) Validity() *Bitmap { return c.validity }

// IsNull reports whether row i is absent.
func (c *Column) IsNull(i int) bool { return !c.validity.Get(i) }

// Dense buffers. Null rows hold the zero value.
func (c *Column) Int64s() []int64     { return c.ints }
func (c *Column) Float64s() []float64 { return c.floats }
func (c *Column) Bools() []bool       { return c.bools }
func (c *Column) Strings() []string   { return c.strs }

// Append adds v, which must be null or of the column's type.
func (c *Column) Append(v schema.Value) error {
	if v.Kind == schema.Null {
		c.AppendNull()
		return nil
	}
	if v.Kind != c.typ {
		return errors.Newf(errors.ErrorTypeTypeCoercion, "cannot append %s value to %s column", v.Kind, c.typ)
	}
	switch v.Kind {
	case schema.Int64:
		c.AppendInt64(v.Int)
	case schema.Float64:
		c.AppendFloat64(v.Float)
	case schema.Boolean:
		c.AppendBool(v.Bool)
	case schema.String:
		c.AppendString(v.Str)
	}
	return nil
}

// AppendNull adds an absent row.
func (c *Column) AppendNull() {
	c.validity.Append(false)
	c.nulls++
	switch c.typ {
	case schema.Int64:
		c.ints = append(c.ints, 0)
	case schema.Float64:
		c.floats = append(c.floats, 0)
	case schema.Boolean:
		c.bools = append(c.bools, false)
	case schema.String:
		c.strs = append(c.strs, "")
	}
}

// The typed appenders assume the caller matched the column type.

func (c *Column) AppendInt64(v int64) {
	c.validity.Append(true)
	c.ints = append(c.ints, v)
}

func (c *Column) AppendFloat64(v float64) {
	c.validity.Append(true)
	c.floats = append(c.floats, v)
}

func (c *Column) AppendBool(v bool) {
	c.validity.Append(true)
	c.bools = append(c.bools, v)
}

func (c *Column) AppendString(v string) {
	c.validity.Append(true)
	c.strs = append(c.strs, v)
}

// Value returns row i as a tagged value
func (c *Column) Value(i int) schema.Value {
	if !c.validity.Get(i) {
		return schema.NullValue()
	}
	switch c.typ {
	case schema.Int64:
		return schema.IntValue(c.ints[i])
	case schema.Float64:
		return schema.FloatValue(c.floats[i])
	case schema.Boolean:
		return schema.BoolValue(c.bools[i])
	case schema.String:
		return schema.StringValue(c.strs[i])
	}
	return schema.NullValue()
}

// Equal compares type, validity and present values. Floats compare by bit
// pattern.
func (c *Column) Equal(o *Column) bool {
	if c.typ != o.typ || c.Len() != o.Len() || c.nulls != o.nulls {
		return false
	}
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) != o.IsNull(i) {
			return false
		}
		if c.IsNull(i) {
			continue
		}
		switch c.typ {
		case schema.Int64:
			if c.ints[i] != o.ints[i] {
				return false
			}
		case schema.Float64:
			if math.Float64bits(c.floats[i]) != math.Float64bits(o.floats[i]) {
				return false
			}
		case schema.Boolean:
			if c.bools[i] != o.bools[i] {
				return false
			}
		case schema.String:
			if c.strs[i] != o.strs[i] {
				return false
			}
		}
	}
	return true
}

// MemoryUsage estimates the bytes held by the column buffers
func (c *Column) MemoryUsage() int64 {
	total := int64(len(c.validity.words) * 8)
	total += int64(len(c.ints)*8 + len(c.floats)*8 + len(c.bools))
	for _, s := range c.strs {
		total += int64(len(s)) + 16 // string header overhead
	}
	return total
}
