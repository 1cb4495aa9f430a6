// Package compression provides the block codecs used for column chunks and
// the streaming decoders used for compressed CSV input.
//
// # Overview
//
// Every codec has a name (used in configuration) and a stable one-byte ID
// (stored in the file footer):
//
//	none    0
//	deflate 1
//	gzip    2
//	snappy  3
//	s2      4
//	zstd    5
//	lz4     6
//
// # Basic Usage
//
//	comp, err := compression.NewCompressor(&compression.Config{
//	    Algorithm: compression.Zstd,
//	    Level:     compression.Default,
//	})
//	compressed, err := comp.Compress(data)
//	original, err := comp.Decompress(compressed)
//	bounded, err := comp.DecompressLimit(compressed, int64(len(data)))
//
// Compressors are safe for concurrent use; gzip and zstd keep internal
// writer and reader pools.
package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/pql/pkg/pool"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Deflate represents raw deflate compression
	Deflate Algorithm = "deflate"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents snappy block compression
	Snappy Algorithm = "snappy"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
)

// Algorithms lists every supported codec in ID order.
var Algorithms = []Algorithm{None, Deflate, Gzip, Snappy, S2, Zstd, LZ4}

// ID returns the byte stored in file metadata for a.
func (a Algorithm) ID() (byte, error) {
	for i, alg := range Algorithms {
		if alg == a {
			return byte(i), nil
		}
	}
	return 0, fmt.Errorf("unsupported compression algorithm: %s", a)
}

// AlgorithmFromID is the inverse of Algorithm.ID.
func AlgorithmFromID(id byte) (Algorithm, error) {
	if int(id) >= len(Algorithms) {
		return "", fmt.Errorf("unknown compression codec id %d", id)
	}
	return Algorithms[id], nil
}

// ParseAlgorithm parses a codec name case-insensitively.
func ParseAlgorithm(s string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(s)))
	if a == "" || a == "uncompressed" {
		return None, nil
	}
	if _, err := a.ID(); err != nil {
		return "", err
	}
	return a, nil
}

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Better improves compression at cost of speed.
	Better Level = 7
	// Best maximizes compression ratio.
	Best Level = 9
)

func (l Level) String() string {
	switch l {
	case Fastest:
		return "fastest"
	case Better:
		return "better"
	case Best:
		return "best"
	case Default:
		return "default"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel parses one of fastest, default, better or best.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fastest":
		return Fastest, nil
	case "", "default":
		return Default, nil
	case "better":
		return Better, nil
	case "best":
		return Best, nil
	}
	return 0, fmt.Errorf("unknown compression level %q", s)
}

// Compressor provides block compression and decompression.
// All implementations are safe for concurrent use.
type Compressor interface {
	// Compress compresses data and returns the compressed bytes.
	// The input data is not modified.
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses data and returns the original bytes.
	// The input data is not modified.
	Decompress(data []byte) ([]byte, error)

	// DecompressLimit is Decompress that stops once the output would
	// exceed limit bytes and returns ErrLimitExceeded.
	DecompressLimit(data []byte, limit int64) ([]byte, error)

	// Algorithm returns the compression algorithm used.
	Algorithm() Algorithm

	// Level returns the compression level configured.
	Level() Level
}

// Config represents compressor configuration.
type Config struct {
	Algorithm Algorithm // Compression algorithm to use
	Level     Level     // Compression level
}

// DefaultConfig returns the codec used for column chunks when nothing is
// configured.
func DefaultConfig() *Config {
	return &Config{
		Algorithm: Deflate,
		Level:     Default,
	}
}

// NewCompressor creates a new compressor based on the provided configuration.
// If config is nil, default configuration is used.
func NewCompressor(config *Config) (Compressor, error) {
	if config == nil {
		config = DefaultConfig()
	}

	base := baseCompressor{algorithm: config.Algorithm, level: config.Level}
	switch config.Algorithm {
	case None, "":
		base.algorithm = None
		return &noneCompressor{baseCompressor: base}, nil
	case Deflate:
		return newDeflateCompressor(base), nil
	case Gzip:
		return newGzipCompressor(base), nil
	case Snappy:
		return &snappyCompressor{baseCompressor: base}, nil
	case S2:
		return &s2Compressor{baseCompressor: base}, nil
	case Zstd:
		return newZstdCompressor(base)
	case LZ4:
		return &lz4Compressor{baseCompressor: base, compressionLevel: mapLZ4Level(config.Level)}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", config.Algorithm)
	}
}

var (
	decompressorsMu sync.Mutex
	decompressors   = map[Algorithm]Compressor{}
)

// Decompressor returns a shared compressor able to decode data produced
// with alg at any level.
func Decompressor(alg Algorithm) (Compressor, error) {
	decompressorsMu.Lock()
	defer decompressorsMu.Unlock()
	if c, ok := decompressors[alg]; ok {
		return c, nil
	}
	c, err := NewCompressor(&Config{Algorithm: alg, Level: Default})
	if err != nil {
		return nil, err
	}
	decompressors[alg] = c
	return c, nil
}

// Base compressor implementation
type baseCompressor struct {
	algorithm Algorithm
	level     Level
}

// Algorithm returns the compression algorithm
func (bc *baseCompressor) Algorithm() Algorithm {
	return bc.algorithm
}

// Level returns the compression level
func (bc *baseCompressor) Level() Level {
	return bc.level
}

// ErrLimitExceeded reports decompressed output larger than the caller's limit.
var ErrLimitExceeded = errors.New("decompressed size exceeds limit")

// copyLimited drains r into buf, reading at most one byte past limit.
func copyLimited(buf *bytes.Buffer, r io.Reader, limit int64) error {
	if limit < 0 {
		return ErrLimitExceeded
	}
	n, err := io.Copy(buf, io.LimitReader(r, limit+1))
	if err != nil {
		return err
	}
	if n > limit {
		return ErrLimitExceeded
	}
	return nil
}

// checkDecodedLen rejects block formats whose header declares too much output.
func checkDecodedLen(n int, err error, limit int64) error {
	if err != nil {
		return err
	}
	if int64(n) > limit {
		return fmt.Errorf("%w: header declares %d bytes, limit %d", ErrLimitExceeded, n, limit)
	}
	return nil
}

// copyOut detaches the pooled buffer's content.
func copyOut(buf *bytes.Buffer) []byte {
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result
}

// None compressor (no compression)
type noneCompressor struct {
	baseCompressor
}

func (nc *noneCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (nc *noneCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}

func (nc *noneCompressor) DecompressLimit(data []byte, limit int64) ([]byte, error) {
	if int64(len(data)) > limit {
		return nil, ErrLimitExceeded
	}
	return data, nil
}

// Deflate compressor
type deflateCompressor struct {
	baseCompressor
	writerPool sync.Pool
}

func newDeflateCompressor(base baseCompressor) *deflateCompressor {
	level := mapDeflateLevel(base.level)
	dc := &deflateCompressor{baseCompressor: base}
	dc.writerPool.New = func() interface{} {
		w, _ := flate.NewWriter(nil, level)
		return w
	}
	return dc
}

func (dc *deflateCompressor) Compress(data []byte) ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	w := dc.writerPool.Get().(*flate.Writer)
	defer dc.writerPool.Put(w)

	w.Reset(buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return copyOut(buf), nil
}

func (dc *deflateCompressor) Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	return copyOut(buf), nil
}

func (dc *deflateCompressor) DecompressLimit(data []byte, limit int64) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if err := copyLimited(buf, r, limit); err != nil {
		return nil, err
	}
	return copyOut(buf), nil
}

// Gzip compressor
type gzipCompressor struct {
	baseCompressor
	writerPool sync.Pool
	readerPool sync.Pool
}

func newGzipCompressor(base baseCompressor) *gzipCompressor {
	level := mapGzipLevel(base.level)
	gc := &gzipCompressor{baseCompressor: base}

	gc.writerPool.New = func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, level)
		return w
	}
	gc.readerPool.New = func() interface{} {
		return new(gzip.Reader)
	}
	return gc
}

func (gc *gzipCompressor) Compress(data []byte) ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	w := gc.writerPool.Get().(*gzip.Writer)
	defer gc.writerPool.Put(w)

	w.Reset(buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return copyOut(buf), nil
}

func (gc *gzipCompressor) Decompress(data []byte) ([]byte, error) {
	r := gc.readerPool.Get().(*gzip.Reader)
	defer gc.readerPool.Put(r)

	if err := r.Reset(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	return copyOut(buf), nil
}

func (gc *gzipCompressor) DecompressLimit(data []byte, limit int64) ([]byte, error) {
	r := gc.readerPool.Get().(*gzip.Reader)
	defer gc.readerPool.Put(r)

	if err := r.Reset(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if err := copyLimited(buf, r, limit); err != nil {
		return nil, err
	}
	return copyOut(buf), nil
}

// Snappy compressor
type snappyCompressor struct {
	baseCompressor
}

func (sc *snappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (sc *snappyCompressor) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

func (sc *snappyCompressor) DecompressLimit(data []byte, limit int64) ([]byte, error) {
	n, err := snappy.DecodedLen(data)
	if err := checkDecodedLen(n, err, limit); err != nil {
		return nil, err
	}
	return snappy.Decode(nil, data)
}

// S2 compressor (Snappy-compatible but better compression)
type s2Compressor struct {
	baseCompressor
}

func (sc *s2Compressor) Compress(data []byte) ([]byte, error) {
	switch sc.level {
	case Better:
		return s2.EncodeBetter(nil, data), nil
	case Best:
		return s2.EncodeBest(nil, data), nil
	}
	return s2.Encode(nil, data), nil
}

func (sc *s2Compressor) Decompress(data []byte) ([]byte, error) {
	return s2.Decode(nil, data)
}

func (sc *s2Compressor) DecompressLimit(data []byte, limit int64) ([]byte, error) {
	n, err := s2.DecodedLen(data)
	if err := checkDecodedLen(n, err, limit); err != nil {
		return nil, err
	}
	return s2.Decode(nil, data)
}

// Zstd compressor
type zstdCompressor struct {
	baseCompressor
	encoderPool sync.Pool
	decoderPool sync.Pool
	streamPool  sync.Pool // Reset only, never DecodeAll
}

func newZstdCompressor(base baseCompressor) (*zstdCompressor, error) {
	level := mapZstdLevel(base.level)

	// Fail early on a bad option instead of inside the pool.
	first, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}

	zc := &zstdCompressor{baseCompressor: base}
	zc.encoderPool.Put(first)
	zc.encoderPool.New = func() interface{} {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		return enc
	}
	zc.decoderPool.New = func() interface{} {
		dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		return dec
	}
	zc.streamPool.New = zc.decoderPool.New
	return zc, nil
}

func (zc *zstdCompressor) Compress(data []byte) ([]byte, error) {
	enc := zc.encoderPool.Get().(*zstd.Encoder)
	defer zc.encoderPool.Put(enc)

	return enc.EncodeAll(data, nil), nil
}

func (zc *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	dec := zc.decoderPool.Get().(*zstd.Decoder)
	defer zc.decoderPool.Put(dec)

	return dec.DecodeAll(data, nil)
}

// DecompressLimit streams through a pooled decoder, so concatenated frames
// and frames without a content size are bounded as well.
func (zc *zstdCompressor) DecompressLimit(data []byte, limit int64) ([]byte, error) {
	dec := zc.streamPool.Get().(*zstd.Decoder)
	defer zc.streamPool.Put(dec)

	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if err := copyLimited(buf, dec, limit); err != nil {
		return nil, err
	}
	return copyOut(buf), nil
}

// LZ4 compressor
type lz4Compressor struct {
	baseCompressor
	compressionLevel lz4.CompressionLevel
}

func (lc *lz4Compressor) Compress(data []byte) ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	w := lz4.NewWriter(buf)
	if err := w.Apply(lz4.CompressionLevelOption(lc.compressionLevel)); err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return copyOut(buf), nil
}

func (lc *lz4Compressor) Decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	return copyOut(buf), nil
}

func (lc *lz4Compressor) DecompressLimit(data []byte, limit int64) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if err := copyLimited(buf, r, limit); err != nil {
		return nil, err
	}
	return copyOut(buf), nil
}

// Helper functions to map compression levels

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func mapDeflateLevel(level Level) int {
	switch level {
	case Fastest:
		return flate.BestSpeed
	case Best:
		return flate.BestCompression
	default:
		return flate.DefaultCompression
	}
}
