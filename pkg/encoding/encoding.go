// Package encoding converts columns to and from their on-disk chunk form.
//
// A chunk payload is the column's validity bitmap (one bit per row, LSB
// first) followed by a value section holding only the non-null values:
//
//	Int64    n x 8-byte two's complement
//	Float64  n x 8-byte IEEE-754 bit pattern
//	Boolean  ceil(n/8) bytes of packed bits
//	String   n x u64 offsets into the run, then n x (u32 length, bytes)
//
// Dictionary encoded columns replace the value section with
//
//	u32 dictionary size, u8 index width, u64 dictionary length,
//	dictionary (plain value section), n x index
//
// All integers are little-endian. The payload may then be compressed as a
// whole; compression is dropped when it does not make the payload smaller.
package encoding

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/ajitpratap0/pql/pkg/columnar"
	"github.com/ajitpratap0/pql/pkg/compression"
	"github.com/ajitpratap0/pql/pkg/errors"
	"github.com/ajitpratap0/pql/pkg/pool"
	"github.com/ajitpratap0/pql/pkg/schema"
)

// Encoding identifies the value layout of a chunk.
type Encoding uint8

const (
	Plain      Encoding = 0
	Dictionary Encoding = 1
)

func (e Encoding) String() string {
	switch e {
	case Plain:
		return "plain"
	case Dictionary:
		return "dictionary"
	}
	return fmt.Sprintf("encoding(%d)", uint8(e))
}

// MarshalText implements encoding.TextMarshaler.
func (e Encoding) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Encoding) UnmarshalText(text []byte) error {
	switch string(text) {
	case "plain":
		*e = Plain
	case "dictionary":
		*e = Dictionary
	default:
		return fmt.Errorf("unknown encoding %q", text)
	}
	return nil
}

// Valid reports whether e is a known encoding.
func (e Encoding) Valid() bool { return e <= Dictionary }

// Chunk is one encoded column. Data holds the stored bytes, compressed
// when Codec is not none; Checksum is the xxhash64 of Data.
type Chunk struct {
	Type            schema.Type
	Encoding        Encoding
	Codec           compression.Algorithm
	RowCount        uint64
	NullCount       uint64
	UncompressedLen uint64
	Checksum        uint64
	Data            []byte
}

// CompressedLen is the number of stored bytes.
func (c *Chunk) CompressedLen() uint64 { return uint64(len(c.Data)) }

// DefaultDictionaryThreshold selects dictionary encoding when fewer than
// 20% of the rows are distinct values.
const DefaultDictionaryThreshold = 0.2

// Options configures Encode.
type Options struct {
	// DictionaryThreshold is compared against distinct/rows
	DictionaryThreshold float64
	// Compressor compresses the payload; nil stores it uncompressed
	Compressor compression.Compressor
}

// DefaultOptions returns the default threshold with no compression.
func DefaultOptions() Options {
	return Options{DictionaryThreshold: DefaultDictionaryThreshold}
}

// Encode converts col into a chunk. The result depends only on the column
// contents and opts.
func Encode(col *columnar.Column, opts Options) (*Chunk, error) {
	rows := col.Len()
	chunk := &Chunk{
		Type:      col.Type(),
		Encoding:  Plain,
		Codec:     compression.None,
		RowCount:  uint64(rows),
		NullCount: uint64(col.NullCount()),
	}
	if rows == 0 {
		chunk.Checksum = xxhash.Sum64(nil)
		return chunk, nil
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	buf.Grow(payloadSizeHint(col))

	payload := col.Validity().AppendBytes(buf.AvailableBuffer())

	var err error
	dict := buildDictionary(col, opts.DictionaryThreshold)
	if dict != nil {
		chunk.Encoding = Dictionary
		payload, err = appendDictionary(payload, col, dict)
	} else {
		payload, err = appendPlain(payload, col)
	}
	if err != nil {
		return nil, err
	}
	chunk.UncompressedLen = uint64(len(payload))

	stored := payload
	if opts.Compressor != nil && opts.Compressor.Algorithm() != compression.None {
		compressed, err := opts.Compressor.Compress(payload)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal,
				fmt.Sprintf("compressing %s chunk", opts.Compressor.Algorithm()))
		}
		if len(compressed) < len(payload) {
			stored = compressed
			chunk.Codec = opts.Compressor.Algorithm()
		}
	}

	// the payload may live in the pooled buffer
	chunk.Data = append([]byte(nil), stored...)
	chunk.Checksum = xxhash.Sum64(chunk.Data)
	return chunk, nil
}

// payloadSizeHint estimates the plain payload size of col.
func payloadSizeHint(col *columnar.Column) int {
	n := col.Len()
	size := columnar.ByteLen(n)
	switch col.Type() {
	case schema.Int64, schema.Float64:
		size += 8 * n
	case schema.Boolean:
		size += columnar.ByteLen(n)
	case schema.String:
		size += 12 * n
		for _, v := range col.Strings() {
			size += len(v)
		}
	}
	return size
}

// dictionary maps each distinct non-null value to its first-seen index.
type dictionary struct {
	order   []int // row of the first occurrence of each entry
	indices []uint32
}

// buildDictionary returns nil when plain encoding should be used.
func buildDictionary(col *columnar.Column, threshold float64) *dictionary {
	rows := col.Len()
	if col.Type() == schema.Boolean || rows == col.NullCount() {
		return nil
	}
	limit := threshold * float64(rows)
	switch col.Type() {
	case schema.Int64:
		return collect(col, col.Int64s(), limit, func(v int64) int64 { return v })
	case schema.Float64:
		// keyed by bit pattern so NaN payloads and -0 stay distinct
		return collect(col, col.Float64s(), limit, math.Float64bits)
	case schema.String:
		return collect(col, col.Strings(), limit, func(v string) string { return v })
	}
	return nil
}

func collect[V any, K comparable](col *columnar.Column, vals []V, limit float64, key func(V) K) *dictionary {
	d := &dictionary{indices: make([]uint32, 0, col.Len()-col.NullCount())}
	seen := make(map[K]uint32)
	for i, v := range vals {
		if col.IsNull(i) {
			continue
		}
		k := key(v)
		idx, ok := seen[k]
		if !ok {
			idx = uint32(len(d.order))
			seen[k] = idx
			d.order = append(d.order, i)
			if float64(len(d.order)) >= limit {
				return nil
			}
		}
		d.indices = append(d.indices, idx)
	}
	return d
}

func indexWidth(n int) int {
	switch {
	case n <= 1<<8:
		return 1
	case n <= 1<<16:
		return 2
	}
	return 4
}

func appendDictionary(dst []byte, col *columnar.Column, d *dictionary) ([]byte, error) {
	width := indexWidth(len(d.order))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(d.order)))
	dst = append(dst, byte(width))

	lenPos := len(dst)
	dst = binary.LittleEndian.AppendUint64(dst, 0)
	start := len(dst)
	var err error
	dst, err = appendValues(dst, col, d.order)
	if err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint64(dst[lenPos:], uint64(len(dst)-start))

	for _, idx := range d.indices {
		switch width {
		case 1:
			dst = append(dst, byte(idx))
		case 2:
			dst = binary.LittleEndian.AppendUint16(dst, uint16(idx))
		default:
			dst = binary.LittleEndian.AppendUint32(dst, idx)
		}
	}
	return dst, nil
}

func appendPlain(dst []byte, col *columnar.Column) ([]byte, error) {
	rows := make([]int, 0, col.Len()-col.NullCount())
	for i := 0; i < col.Len(); i++ {
		if !col.IsNull(i) {
			rows = append(rows, i)
		}
	}
	return appendValues(dst, col, rows)
}

// appendValues writes the plain value section for the given rows.
func appendValues(dst []byte, col *columnar.Column, rows []int) ([]byte, error) {
	switch col.Type() {
	case schema.Int64:
		vals := col.Int64s()
		for _, r := range rows {
			dst = binary.LittleEndian.AppendUint64(dst, uint64(vals[r]))
		}
	case schema.Float64:
		vals := col.Float64s()
		for _, r := range rows {
			dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(vals[r]))
		}
	case schema.Boolean:
		vals := col.Bools()
		bits := columnar.NewBitmap(len(rows))
		for _, r := range rows {
			bits.Append(vals[r])
		}
		dst = bits.AppendBytes(dst)
	case schema.String:
		vals := col.Strings()
		var off uint64
		for _, r := range rows {
			dst = binary.LittleEndian.AppendUint64(dst, off)
			off += 4 + uint64(len(vals[r]))
		}
		for _, r := range rows {
			s := vals[r]
			if uint64(len(s)) > math.MaxUint32 {
				return nil, errors.Newf(errors.ErrorTypeValidation, "string value of %d bytes is too long", len(s))
			}
			dst = binary.LittleEndian.AppendUint32(dst, uint32(len(s)))
			dst = append(dst, s...)
		}
	default:
		return nil, errors.Newf(errors.ErrorTypeInternal, "cannot encode %s column", col.Type())
	}
	return dst, nil
}
