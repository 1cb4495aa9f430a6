package encoding

import (
	"crypto/rand"
	"fmt"
	"math"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/pql/pkg/columnar"
	"github.com/ajitpratap0/pql/pkg/compression"
	"github.com/ajitpratap0/pql/pkg/errors"
	"github.com/ajitpratap0/pql/pkg/schema"
)

func buildColumn(t *testing.T, typ schema.Type, values ...schema.Value) *columnar.Column {
	t.Helper()
	col := columnar.NewColumn(typ, len(values))
	for _, v := range values {
		require.NoError(t, col.Append(v))
	}
	return col
}

func roundTrip(t *testing.T, col *columnar.Column, opts Options) *Chunk {
	t.Helper()
	chunk, err := Encode(col, opts)
	require.NoError(t, err)
	got, err := Decode(chunk)
	require.NoError(t, err)
	assert.True(t, col.Equal(got), "decoded column differs")
	return chunk
}

func deflate(t *testing.T) compression.Compressor {
	t.Helper()
	c, err := compression.NewCompressor(compression.DefaultConfig())
	require.NoError(t, err)
	return c
}

func TestRoundTripAllTypes(t *testing.T) {
	null := schema.NullValue()
	cols := map[string]*columnar.Column{
		"int64": buildColumn(t, schema.Int64,
			schema.IntValue(1), null, schema.IntValue(math.MinInt64), schema.IntValue(math.MaxInt64)),
		"float64": buildColumn(t, schema.Float64,
			schema.FloatValue(1.5), schema.FloatValue(math.Copysign(0, -1)), null,
			schema.FloatValue(math.Inf(1)), schema.FloatValue(math.NaN())),
		"boolean": buildColumn(t, schema.Boolean,
			schema.BoolValue(true), null, schema.BoolValue(false), schema.BoolValue(true),
			schema.BoolValue(true), schema.BoolValue(false), schema.BoolValue(true), schema.BoolValue(false),
			schema.BoolValue(true)),
		"string": buildColumn(t, schema.String,
			schema.StringValue("Alice"), null, schema.StringValue(""), schema.StringValue(" padded "),
			schema.StringValue("日本語")),
	}
	for name, col := range cols {
		for _, opts := range []Options{DefaultOptions(), {DictionaryThreshold: 0.2, Compressor: deflate(t)}} {
			t.Run(name, func(t *testing.T) {
				chunk := roundTrip(t, col, opts)
				assert.Equal(t, uint64(col.Len()), chunk.RowCount)
				assert.Equal(t, uint64(col.NullCount()), chunk.NullCount)
				assert.Equal(t, Plain, chunk.Encoding)
			})
		}
	}
}

func TestDictionarySelection(t *testing.T) {
	var low, high []schema.Value
	for i := 0; i < 100; i++ {
		low = append(low, schema.StringValue(fmt.Sprintf("v%d", i%5)))
		high = append(high, schema.StringValue(fmt.Sprintf("v%d", i)))
	}

	chunk := roundTrip(t, buildColumn(t, schema.String, low...), DefaultOptions())
	assert.Equal(t, Dictionary, chunk.Encoding)

	chunk = roundTrip(t, buildColumn(t, schema.String, high...), DefaultOptions())
	assert.Equal(t, Plain, chunk.Encoding)

	// 20 distinct of 100 rows is not below the threshold
	var edge []schema.Value
	for i := 0; i < 100; i++ {
		edge = append(edge, schema.IntValue(int64(i%20)))
	}
	chunk = roundTrip(t, buildColumn(t, schema.Int64, edge...), DefaultOptions())
	assert.Equal(t, Plain, chunk.Encoding)

	edge = edge[:0]
	for i := 0; i < 100; i++ {
		edge = append(edge, schema.IntValue(int64(i%19)))
	}
	chunk = roundTrip(t, buildColumn(t, schema.Int64, edge...), DefaultOptions())
	assert.Equal(t, Dictionary, chunk.Encoding)
}

func TestDictionaryWithNullsAndFloats(t *testing.T) {
	var vals []schema.Value
	for i := 0; i < 50; i++ {
		switch i % 3 {
		case 0:
			vals = append(vals, schema.NullValue())
		case 1:
			vals = append(vals, schema.FloatValue(0))
		default:
			vals = append(vals, schema.FloatValue(math.Copysign(0, -1)))
		}
	}
	chunk := roundTrip(t, buildColumn(t, schema.Float64, vals...), DefaultOptions())
	assert.Equal(t, Dictionary, chunk.Encoding)
}

func TestBooleanNeverDictionary(t *testing.T) {
	var vals []schema.Value
	for i := 0; i < 100; i++ {
		vals = append(vals, schema.BoolValue(i%2 == 0))
	}
	chunk := roundTrip(t, buildColumn(t, schema.Boolean, vals...), DefaultOptions())
	assert.Equal(t, Plain, chunk.Encoding)
}

func TestWideDictionaryIndices(t *testing.T) {
	var vals []schema.Value
	for i := 0; i < 4000; i++ {
		vals = append(vals, schema.IntValue(int64(i%300)))
	}
	col := buildColumn(t, schema.Int64, vals...)
	chunk := roundTrip(t, col, DefaultOptions())
	require.Equal(t, Dictionary, chunk.Encoding)

	d := buildDictionary(col, DefaultDictionaryThreshold)
	require.NotNil(t, d)
	assert.Len(t, d.order, 300)
	assert.Equal(t, 2, indexWidth(len(d.order)))
}

func TestEncodeIsDeterministic(t *testing.T) {
	var vals []schema.Value
	for i := 0; i < 500; i++ {
		if i%7 == 0 {
			vals = append(vals, schema.NullValue())
			continue
		}
		vals = append(vals, schema.StringValue(fmt.Sprintf("row-%d", i%40)))
	}
	col := buildColumn(t, schema.String, vals...)
	opts := Options{DictionaryThreshold: 0.2, Compressor: deflate(t)}

	a, err := Encode(col, opts)
	require.NoError(t, err)
	b, err := Encode(col, opts)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	decoded, err := Decode(a)
	require.NoError(t, err)
	c, err := Encode(decoded, opts)
	require.NoError(t, err)
	assert.Equal(t, a.Data, c.Data)
}

func TestAllNullAndEmpty(t *testing.T) {
	col := buildColumn(t, schema.String, schema.NullValue(), schema.NullValue(), schema.NullValue())
	chunk := roundTrip(t, col, DefaultOptions())
	assert.Equal(t, Plain, chunk.Encoding)
	assert.Equal(t, uint64(3), chunk.NullCount)
	assert.Equal(t, uint64(1), chunk.UncompressedLen)

	empty := columnar.NewColumn(schema.Int64, 0)
	chunk = roundTrip(t, empty, Options{Compressor: deflate(t)})
	assert.Equal(t, compression.None, chunk.Codec)
	assert.Empty(t, chunk.Data)
	assert.Zero(t, chunk.RowCount)
}

func TestCompressionFallback(t *testing.T) {
	noise := make([]byte, 4096)
	_, err := rand.Read(noise)
	require.NoError(t, err)
	col := buildColumn(t, schema.String, schema.StringValue(string(noise)))

	chunk := roundTrip(t, col, Options{DictionaryThreshold: 0.2, Compressor: deflate(t)})
	assert.Equal(t, compression.None, chunk.Codec)
	assert.Equal(t, chunk.UncompressedLen, chunk.CompressedLen())

	var vals []schema.Value
	for i := 0; i < 1000; i++ {
		vals = append(vals, schema.IntValue(int64(i)))
	}
	chunk = roundTrip(t, buildColumn(t, schema.Int64, vals...), Options{Compressor: deflate(t)})
	assert.Equal(t, compression.Deflate, chunk.Codec)
	assert.Less(t, chunk.CompressedLen(), chunk.UncompressedLen)
}

func TestEveryCodecRoundTrips(t *testing.T) {
	var vals []schema.Value
	for i := 0; i < 2000; i++ {
		vals = append(vals, schema.FloatValue(float64(i)/4))
	}
	col := buildColumn(t, schema.Float64, vals...)
	for _, alg := range compression.Algorithms {
		t.Run(string(alg), func(t *testing.T) {
			c, err := compression.NewCompressor(&compression.Config{Algorithm: alg, Level: compression.Default})
			require.NoError(t, err)
			roundTrip(t, col, Options{DictionaryThreshold: 0.2, Compressor: c})
		})
	}
}

func encodedSample(t *testing.T) *Chunk {
	t.Helper()
	col := buildColumn(t, schema.String,
		schema.StringValue("a"), schema.NullValue(), schema.StringValue("bc"), schema.StringValue("def"))
	chunk, err := Encode(col, DefaultOptions())
	require.NoError(t, err)
	return chunk
}

func TestDecodeDetectsCorruption(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Chunk)
	}{
		{"flipped byte", func(c *Chunk) { c.Data[len(c.Data)-1] ^= 0xff }},
		{"truncated", func(c *Chunk) { c.Data = c.Data[:len(c.Data)-2] }},
		{"wrong uncompressed length", func(c *Chunk) { c.UncompressedLen++ }},
		{"wrong null count", func(c *Chunk) { c.NullCount = 2 }},
		{"null count above rows", func(c *Chunk) { c.NullCount = 10 }},
		{"wrong row count", func(c *Chunk) { c.RowCount = 3 }},
		{"unknown encoding", func(c *Chunk) { c.Encoding = 9 }},
		{"claims compression", func(c *Chunk) { c.Codec = compression.Zstd }},
		{"trailing bytes", func(c *Chunk) {
			c.Data = append(c.Data, 0)
			c.UncompressedLen++
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk := encodedSample(t)
			tt.mutate(chunk)
			if tt.name != "flipped byte" {
				// keep the checksum valid so the structural checks are reached
				chunk.Checksum = xxhash.Sum64(chunk.Data)
			}
			_, err := Decode(chunk)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeCorruptFile), "got %v", err)
		})
	}
}

func TestDecodeBoundsDecompressionByDeclaredLength(t *testing.T) {
	huge := make([]byte, 32<<20)
	for _, alg := range []compression.Algorithm{compression.Deflate, compression.Zstd, compression.LZ4, compression.S2} {
		t.Run(string(alg), func(t *testing.T) {
			c, err := compression.NewCompressor(&compression.Config{Algorithm: alg, Level: compression.Fastest})
			require.NoError(t, err)
			data, err := c.Compress(huge)
			require.NoError(t, err)

			chunk := &Chunk{
				Type:            schema.String,
				Encoding:        Plain,
				Codec:           alg,
				RowCount:        1,
				UncompressedLen: 16,
				Checksum:        xxhash.Sum64(data),
				Data:            data,
			}
			_, err = Decode(chunk)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeCorruptFile), "got %v", err)
			assert.ErrorIs(t, err, compression.ErrLimitExceeded)
		})
	}
}

func TestCursorRejectsOversizedLengths(t *testing.T) {
	c := NewCursor([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f, 1, 2})
	_, err := c.Int(1)
	assert.ErrorIs(t, err, ErrShortBuffer)

	c = NewCursor([]byte{1, 0})
	v, err := c.Uint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), v)
	_, err = c.Uint8()
	assert.ErrorIs(t, err, ErrShortBuffer)
}
