package schema

import (
	"math"
	"strconv"
)

// Value is a single typed cell. Kind selects which payload field is
// meaningful; a Null kind carries no payload.
type Value struct {
	Kind  Type
	Int   int64
	Float float64
	Bool  bool
	Str   string
}

// NullValue returns an absent value.
func NullValue() Value { return Value{Kind: Null} }

// IntValue wraps v.
func IntValue(v int64) Value { return Value{Kind: Int64, Int: v} }

// FloatValue wraps v.
func FloatValue(v float64) Value { return Value{Kind: Float64, Float: v} }

// BoolValue wraps v.
func BoolValue(v bool) Value { return Value{Kind: Boolean, Bool: v} }

// StringValue wraps v.
func StringValue(v string) Value { return Value{Kind: String, Str: v} }

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool { return v.Kind == Null }

// Equal compares kind and payload. Floats compare by bit pattern so NaN
// equals itself and 0.0 differs from -0.0.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case Null:
		return true
	case Boolean:
		return v.Bool == o.Bool
	case Int64:
		return v.Int == o.Int
	case Float64:
		return math.Float64bits(v.Float) == math.Float64bits(o.Float)
	case String:
		return v.Str == o.Str
	}
	return false
}

// String renders the value as CSV text. Nulls render empty.
func (v Value) String() string {
	switch v.Kind {
	case Boolean:
		return strconv.FormatBool(v.Bool)
	case Int64:
		return strconv.FormatInt(v.Int, 10)
	case Float64:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case String:
		return v.Str
	}
	return ""
}

// Interface returns the payload as a plain Go value, or nil for nulls.
func (v Value) Interface() interface{} {
	switch v.Kind {
	case Boolean:
		return v.Bool
	case Int64:
		return v.Int
	case Float64:
		return v.Float
	case String:
		return v.Str
	}
	return nil
}
