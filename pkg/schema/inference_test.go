package schema

import (
	"bytes"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/pql/pkg/errors"
)

var defaults = NewSentinels(DefaultNullSentinels)

func TestInferValue(t *testing.T) {
	tests := []struct {
		raw  string
		want Type
	}{
		{"", Null},
		{"NA", Null},
		{"null", Null},
		{"  NA  ", Null},
		{"   ", Null},
		{"true", Boolean},
		{"FALSE", Boolean},
		{" True ", Boolean},
		{"1", Int64},
		{"-42", Int64},
		{" 7 ", Int64},
		{"3000000000000", Int64},
		{"9223372036854775807", Int64},
		{"9223372036854775808", Float64},
		{"-99999999999999999999999", Float64},
		{"1.5", Float64},
		{"1e10", Float64},
		{"-0.0", Float64},
		{"1e400", String},
		{"abc", String},
		{"1,000", String},
		{"NULL", String},
		{"yes", String},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, InferValue(tt.raw, defaults))
		})
	}
}

func TestInferColumnLattice(t *testing.T) {
	tests := []struct {
		name     string
		values   []string
		want     Type
		nullable bool
	}{
		{"ints", []string{"1", "2", "3000000000000"}, Int64, false},
		{"ints and floats", []string{"1", "2.5"}, Float64, false},
		{"bool and int", []string{"true", "1"}, Int64, false},
		{"float and text", []string{"1.5", "x"}, String, false},
		{"nullable ints", []string{"1", "", "3"}, Int64, true},
		{"all null", []string{"", "NA", "null"}, String, true},
		{"empty", nil, String, true},
		{"bools", []string{"true", "False"}, Boolean, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, nullable := InferColumn(tt.values, defaults)
			assert.Equal(t, tt.want, typ)
			assert.Equal(t, tt.nullable, nullable)
		})
	}
}

func TestInferenceIsMonotonic(t *testing.T) {
	values := []string{"", "true", "1", "NA", "2", "3.5", "4", "x", "5", "null"}
	var c ColumnInference
	prev := Null
	for _, v := range values {
		c.Observe(v, defaults)
		assert.GreaterOrEqual(t, c.typ, prev, "type lowered after %q", v)
		prev = c.typ
	}
	typ, nullable := c.Result()
	assert.Equal(t, String, typ)
	assert.True(t, nullable)
}

func TestInferencer(t *testing.T) {
	inf := NewInferencer([]string{"id", "name", "score"}, defaults)
	inf.Observe([]string{"1", "Alice", "1.5"})
	inf.Observe([]string{"2", "", "2"})
	inf.Observe([]string{"3", "Carol"})

	s, err := inf.Schema()
	require.NoError(t, err)
	assert.Equal(t, 3, inf.Rows())
	assert.Equal(t, []Field{
		{Name: "id", Type: Int64},
		{Name: "name", Type: String, Nullable: true},
		{Name: "score", Type: Float64, Nullable: true},
	}, s.Fields())
}

func TestCustomSentinels(t *testing.T) {
	s := NewSentinels([]string{"-", "N/A"})
	assert.Equal(t, Null, InferValue("N/A", s))
	assert.Equal(t, Null, InferValue(" - ", s))
	assert.Equal(t, String, InferValue("NA", s))
	// an empty string is no longer a sentinel and is not a number
	assert.Equal(t, String, InferValue("", s))
}

func TestCoerce(t *testing.T) {
	intField := Field{Name: "n", Type: Int64, Nullable: true}

	v, err := Coerce(" 12 ", intField, defaults)
	require.NoError(t, err)
	assert.True(t, v.Equal(IntValue(12)))

	v, err = Coerce("NA", intField, defaults)
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	_, err = Coerce("abc", intField, defaults)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTypeCoercion))

	_, err = Coerce("", Field{Name: "id", Type: Int64}, defaults)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTypeCoercion))

	v, err = Coerce(" padded ", Field{Name: "s", Type: String}, defaults)
	require.NoError(t, err)
	assert.Equal(t, " padded ", v.Str)

	v, err = Coerce("3", Field{Name: "f", Type: Float64}, defaults)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v.Float)

	v, err = Coerce("TRUE", Field{Name: "b", Type: Boolean}, defaults)
	require.NoError(t, err)
	assert.True(t, v.Bool)

	_, err = Coerce("1", Field{Name: "b", Type: Boolean}, defaults)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTypeCoercion))
}

func TestCoerceWidensBooleansInNumericColumns(t *testing.T) {
	tests := []struct {
		raw   string
		field Field
		want  Value
	}{
		{"true", Field{Name: "i", Type: Int64}, IntValue(1)},
		{" False ", Field{Name: "i", Type: Int64}, IntValue(0)},
		{"TRUE", Field{Name: "f", Type: Float64}, FloatValue(1)},
		{"false", Field{Name: "f", Type: Float64}, FloatValue(0)},
	}
	for _, tt := range tests {
		t.Run(tt.raw+"/"+tt.field.Type.String(), func(t *testing.T) {
			v, err := Coerce(tt.raw, tt.field, defaults)
			require.NoError(t, err)
			assert.True(t, v.Equal(tt.want), "got %v", v)
		})
	}
}

// Whatever a column holds, the type inferred from all of its values must
// accept each of those values.
func TestInferredTypeAcceptsEveryObservedValue(t *testing.T) {
	cells := []string{
		"", "NA", "null", "true", "FALSE", " true ", "0", "1", "-42", " 7 ",
		"3000000000000", "99999999999999999999", "2.5", "-0.0", "1e10", "1e400",
		"NaN", "inf", "-Inf", "0x10", "1_000", "abc", " padded ", "t", "yes",
	}
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 2000; trial++ {
		values := make([]string, 1+rng.Intn(6))
		for i := range values {
			values[i] = cells[rng.Intn(len(cells))]
		}
		typ, nullable := InferColumn(values, defaults)
		field := Field{Name: "c", Type: typ, Nullable: nullable}
		for _, raw := range values {
			_, err := Coerce(raw, field, defaults)
			require.NoError(t, err, "values %q inferred as %s", values, typ)
		}
	}
}

func TestValueEqualFloatBits(t *testing.T) {
	nan := FloatValue(math.NaN())
	assert.True(t, nan.Equal(nan))
	assert.False(t, FloatValue(0).Equal(FloatValue(math.Copysign(0, -1))))
	assert.False(t, IntValue(1).Equal(FloatValue(1)))
	assert.True(t, NullValue().Equal(NullValue()))
}

func TestNewSchemaValidation(t *testing.T) {
	_, err := NewSchema([]Field{{Name: "a", Type: Int64}, {Name: "a", Type: String}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Contains(t, err.Error(), "duplicate")

	_, err = NewSchema([]Field{{Name: "", Type: Int64}})
	assert.Error(t, err)

	_, err = NewSchema([]Field{{Name: "x", Type: Null, Nullable: true}})
	assert.Error(t, err)

	s, err := NewSchema(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestSchemaProject(t *testing.T) {
	s := MustSchema(
		Field{Name: "a", Type: Int64},
		Field{Name: "b", Type: String},
		Field{Name: "c", Type: Boolean},
	)
	p, idx, err := s.Project([]string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, p.Names())
	assert.Equal(t, []int{2, 0}, idx)

	_, _, err = s.Project([]string{"zzz"})
	assert.Error(t, err)
}

func TestSchemaYAMLRoundTrip(t *testing.T) {
	doc := `fields:
  - name: id
    type: int
  - name: name
    type: string
    nullable: true
  - name: ok
    type: bool
`
	s, err := DecodeSchema(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "id:int64, name:string?, ok:boolean", s.String())

	var buf bytes.Buffer
	require.NoError(t, EncodeSchema(&buf, s))
	again, err := DecodeSchema(&buf)
	require.NoError(t, err)
	assert.True(t, s.Equal(again))
}

func TestDecodeSchemaErrors(t *testing.T) {
	_, err := DecodeSchema(strings.NewReader("fields: []\n"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = DecodeSchema(strings.NewReader("fields:\n  - name: a\n    type: decimal\n"))
	assert.Error(t, err)

	_, err = LoadSchema("/nonexistent/schema.yaml")
	assert.True(t, errors.IsType(err, errors.ErrorTypeInputNotFound))
}
