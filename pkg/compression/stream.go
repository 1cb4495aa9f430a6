package compression

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var magics = []struct {
	alg   Algorithm
	magic []byte
}{
	{Gzip, []byte{0x1f, 0x8b}},
	{Zstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{LZ4, []byte{0x04, 0x22, 0x4d, 0x18}},
	{Snappy, []byte("\xff\x06\x00\x00sNaPpY")},
	{S2, []byte("\xff\x06\x00\x00S2sTwO")},
}

// MaxMagicLen is how many leading bytes Sniff needs to see.
const MaxMagicLen = 10

// Sniff identifies a stream format from its first bytes. None means the
// data is not a recognised compressed stream.
func Sniff(head []byte) Algorithm {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.magic) {
			return m.alg
		}
	}
	return None
}

// FromExtension maps a file name suffix to a stream format.
func FromExtension(name string) Algorithm {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz", ".gzip":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	case ".lz4":
		return LZ4
	case ".sz", ".snappy":
		return Snappy
	case ".s2":
		return S2
	case ".deflate":
		return Deflate
	}
	return None
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// NewReader wraps src with a streaming decoder for alg. Closing the result
// does not close src.
func NewReader(alg Algorithm, src io.Reader) (io.ReadCloser, error) {
	switch alg {
	case None, "":
		return readCloser{Reader: src}, nil
	case Gzip:
		r, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return r, nil
	case Deflate:
		return flate.NewReader(src), nil
	case Zstd:
		d, err := zstd.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		return readCloser{Reader: d, close: func() error { d.Close(); return nil }}, nil
	case LZ4:
		return readCloser{Reader: lz4.NewReader(src)}, nil
	case Snappy:
		return readCloser{Reader: snappy.NewReader(src)}, nil
	case S2:
		return readCloser{Reader: s2.NewReader(src)}, nil
	}
	return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
}
