package ioutils

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/pql/pkg/compression"
	"github.com/ajitpratap0/pql/pkg/errors"
)

const sample = "id,name\n1,Alice\n2,\n3,Carol\n"

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func compress(t *testing.T, alg compression.Algorithm) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch alg {
	case compression.Gzip:
		w = gzip.NewWriter(&buf)
	case compression.Zstd:
		zw, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		w = zw
	case compression.LZ4:
		w = lz4.NewWriter(&buf)
	default:
		t.Fatalf("no writer for %s", alg)
	}
	_, err := w.Write([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func readAll(t *testing.T, path string) (string, *Input) {
	t.Helper()
	in, err := OpenInput(path)
	require.NoError(t, err)
	data, err := io.ReadAll(in)
	require.NoError(t, err)
	require.NoError(t, in.Close())
	return string(data), in
}

func TestOpenPlain(t *testing.T) {
	got, in := readAll(t, writeFile(t, "plain.csv", []byte(sample)))
	assert.Equal(t, sample, got)
	assert.Equal(t, compression.None, in.Format())
	assert.Equal(t, int64(len(sample)), in.BytesRead())
}

func TestOpenCompressed(t *testing.T) {
	for _, alg := range []compression.Algorithm{compression.Gzip, compression.Zstd, compression.LZ4} {
		t.Run(string(alg), func(t *testing.T) {
			data := compress(t, alg)

			// detected by magic bytes even without a telling extension
			got, in := readAll(t, writeFile(t, "input.csv", data))
			assert.Equal(t, sample, got)
			assert.Equal(t, alg, in.Format())
			assert.Equal(t, int64(len(data)), in.BytesRead())
		})
	}
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, Bzip2, DetectFormat("data.csv.bz2", nil))
	assert.Equal(t, Bzip2, DetectFormat("data.csv", []byte("BZh91AY&SY")))
	assert.Equal(t, compression.None, DetectFormat("data.csv", []byte("BZhx")))
	assert.Equal(t, compression.Gzip, DetectFormat("data.csv.gz", []byte("id,name")))
	assert.Equal(t, compression.None, DetectFormat("data.csv", []byte("id,name")))
}

func TestOpenMissing(t *testing.T) {
	_, err := OpenInput(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInputNotFound))
}

func TestOpenDirectory(t *testing.T) {
	_, err := OpenInput(t.TempDir())
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestOpenEmpty(t *testing.T) {
	got, _ := readAll(t, writeFile(t, "empty.csv", nil))
	assert.Empty(t, got)
}
