package compression

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() []byte {
	return []byte(strings.Repeat("id,name,score\n1,Alice,1.5\n2,Bob,2.5\n", 200))
}

func TestCompressorsRoundTrip(t *testing.T) {
	original := sample()
	for _, alg := range Algorithms {
		for _, level := range []Level{Fastest, Default, Better, Best} {
			t.Run(string(alg)+"/"+level.String(), func(t *testing.T) {
				c, err := NewCompressor(&Config{Algorithm: alg, Level: level})
				require.NoError(t, err)
				assert.Equal(t, alg, c.Algorithm())
				assert.Equal(t, level, c.Level())

				compressed, err := c.Compress(original)
				require.NoError(t, err)
				if alg != None {
					assert.Less(t, len(compressed), len(original))
				}

				d, err := Decompressor(alg)
				require.NoError(t, err)
				back, err := d.Decompress(compressed)
				require.NoError(t, err)
				assert.Equal(t, original, back)
			})
		}
	}
}

func TestDecompressLimit(t *testing.T) {
	original := sample()
	size := int64(len(original))
	for _, alg := range Algorithms {
		t.Run(string(alg), func(t *testing.T) {
			c, err := NewCompressor(&Config{Algorithm: alg, Level: Default})
			require.NoError(t, err)
			compressed, err := c.Compress(original)
			require.NoError(t, err)

			back, err := c.DecompressLimit(compressed, size)
			require.NoError(t, err)
			assert.Equal(t, original, back)

			_, err = c.DecompressLimit(compressed, size-1)
			assert.ErrorIs(t, err, ErrLimitExceeded)

			_, err = c.DecompressLimit(compressed, 0)
			assert.ErrorIs(t, err, ErrLimitExceeded)
		})
	}
}

func TestDecompressLimitStopsHighRatioInput(t *testing.T) {
	// 64 MiB of zeros compresses to a few KiB
	bomb := make([]byte, 64<<20)
	for _, alg := range []Algorithm{Deflate, Gzip, Zstd, LZ4, Snappy, S2} {
		t.Run(string(alg), func(t *testing.T) {
			c, err := NewCompressor(&Config{Algorithm: alg, Level: Fastest})
			require.NoError(t, err)
			compressed, err := c.Compress(bomb)
			require.NoError(t, err)

			_, err = c.DecompressLimit(compressed, 1024)
			assert.ErrorIs(t, err, ErrLimitExceeded)
		})
	}
}

func TestCompressIsDeterministic(t *testing.T) {
	for _, alg := range Algorithms {
		c, err := NewCompressor(&Config{Algorithm: alg, Level: Default})
		require.NoError(t, err)
		a, err := c.Compress(sample())
		require.NoError(t, err)
		b, err := c.Compress(sample())
		require.NoError(t, err)
		assert.Equal(t, a, b, string(alg))
	}
}

func TestAlgorithmIDs(t *testing.T) {
	for i, alg := range Algorithms {
		id, err := alg.ID()
		require.NoError(t, err)
		assert.Equal(t, byte(i), id)

		back, err := AlgorithmFromID(id)
		require.NoError(t, err)
		assert.Equal(t, alg, back)
	}
	_, err := AlgorithmFromID(200)
	assert.Error(t, err)
	_, err = Algorithm("brotli").ID()
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	a, err := ParseAlgorithm(" ZSTD ")
	require.NoError(t, err)
	assert.Equal(t, Zstd, a)

	a, err = ParseAlgorithm("uncompressed")
	require.NoError(t, err)
	assert.Equal(t, None, a)

	_, err = ParseAlgorithm("rar")
	assert.Error(t, err)

	l, err := ParseLevel("best")
	require.NoError(t, err)
	assert.Equal(t, Best, l)

	_, err = ParseLevel("max")
	assert.Error(t, err)
}

func TestNewCompressorRejectsUnknown(t *testing.T) {
	_, err := NewCompressor(&Config{Algorithm: "brotli"})
	assert.Error(t, err)
}

func TestSniffAndStream(t *testing.T) {
	original := sample()

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write(original)
	require.NoError(t, gw.Close())

	var zs bytes.Buffer
	zw, err := zstd.NewWriter(&zs)
	require.NoError(t, err)
	_, _ = zw.Write(original)
	require.NoError(t, zw.Close())

	var lz bytes.Buffer
	lw := lz4.NewWriter(&lz)
	_, _ = lw.Write(original)
	require.NoError(t, lw.Close())

	tests := []struct {
		name string
		data []byte
		want Algorithm
	}{
		{"gzip", gz.Bytes(), Gzip},
		{"zstd", zs.Bytes(), Zstd},
		{"lz4", lz.Bytes(), LZ4},
		{"plain", original, None},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alg := Sniff(tt.data[:MaxMagicLen])
			assert.Equal(t, tt.want, alg)

			r, err := NewReader(alg, bytes.NewReader(tt.data))
			require.NoError(t, err)
			defer r.Close()
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, original, got)
		})
	}
}

func TestFromExtension(t *testing.T) {
	assert.Equal(t, Gzip, FromExtension("data.csv.gz"))
	assert.Equal(t, Zstd, FromExtension("DATA.CSV.ZST"))
	assert.Equal(t, LZ4, FromExtension("x.lz4"))
	assert.Equal(t, None, FromExtension("x.csv"))
}
