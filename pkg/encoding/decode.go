package encoding

import (
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/ajitpratap0/pql/pkg/columnar"
	"github.com/ajitpratap0/pql/pkg/compression"
	"github.com/ajitpratap0/pql/pkg/errors"
	"github.com/ajitpratap0/pql/pkg/schema"
)

// limitOf caps a declared length to what a decompressor can be asked for.
func limitOf(n uint64) int64 {
	if n > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(n)
}

func corrupt(err error, msg string) error {
	if err == nil {
		return errors.New(errors.ErrorTypeCorruptFile, msg)
	}
	return errors.Wrap(err, errors.ErrorTypeCorruptFile, msg)
}

// Decode verifies and decodes a chunk back into a column. Any mismatch
// between the chunk metadata and its bytes is a corrupt_file error.
func Decode(c *Chunk) (*columnar.Column, error) {
	if !c.Type.Valid() || c.Type == schema.Null {
		return nil, errors.Newf(errors.ErrorTypeCorruptFile, "invalid column type %d", uint8(c.Type))
	}
	if !c.Encoding.Valid() {
		return nil, errors.Newf(errors.ErrorTypeCorruptFile, "invalid encoding %d", uint8(c.Encoding))
	}
	if c.NullCount > c.RowCount {
		return nil, errors.Newf(errors.ErrorTypeCorruptFile,
			"null count %d exceeds row count %d", c.NullCount, c.RowCount)
	}
	if got := xxhash.Sum64(c.Data); got != c.Checksum {
		return nil, errors.Newf(errors.ErrorTypeCorruptFile,
			"checksum mismatch: stored %016x, computed %016x", c.Checksum, got)
	}

	payload := c.Data
	if c.Codec != compression.None {
		dec, err := compression.Decompressor(c.Codec)
		if err != nil {
			return nil, corrupt(err, "unknown chunk codec")
		}
		payload, err = dec.DecompressLimit(c.Data, limitOf(c.UncompressedLen))
		if err != nil {
			return nil, corrupt(err, "decompressing chunk")
		}
	}
	if uint64(len(payload)) != c.UncompressedLen {
		return nil, errors.Newf(errors.ErrorTypeCorruptFile,
			"payload is %d bytes, expected %d", len(payload), c.UncompressedLen)
	}

	if c.RowCount == 0 {
		if len(payload) != 0 {
			return nil, errors.New(errors.ErrorTypeCorruptFile, "empty chunk carries data")
		}
		return columnar.NewColumn(c.Type, 0), nil
	}
	// every row needs at least one validity bit
	if c.RowCount > uint64(len(payload))*8 {
		return nil, errors.Newf(errors.ErrorTypeCorruptFile,
			"row count %d does not fit a %d byte payload", c.RowCount, len(payload))
	}
	rows := int(c.RowCount)

	cur := NewCursor(payload)
	raw, err := cur.Bytes(columnar.ByteLen(rows))
	if err != nil {
		return nil, corrupt(err, "reading validity bitmap")
	}
	validity, err := columnar.BitmapFromBytes(raw, rows)
	if err != nil {
		return nil, corrupt(err, "reading validity bitmap")
	}
	present := validity.Count()
	if uint64(rows-present) != c.NullCount {
		return nil, errors.Newf(errors.ErrorTypeCorruptFile,
			"bitmap has %d nulls, metadata says %d", rows-present, c.NullCount)
	}

	var values valueSet
	switch c.Encoding {
	case Plain:
		values, err = readValues(cur, c.Type, present)
	case Dictionary:
		values, err = readDictionary(cur, c.Type, present)
	}
	if err != nil {
		return nil, corrupt(err, "decoding "+c.Encoding.String()+" values")
	}
	if cur.Remaining() != 0 {
		return nil, errors.Newf(errors.ErrorTypeCorruptFile, "%d trailing bytes after values", cur.Remaining())
	}

	col := columnar.NewColumn(c.Type, rows)
	next := 0
	for i := 0; i < rows; i++ {
		if !validity.Get(i) {
			col.AppendNull()
			continue
		}
		values.appendTo(col, next)
		next++
	}
	return col, nil
}

// valueSet holds the present values of a chunk, optionally behind an index.
type valueSet struct {
	typ     schema.Type
	ints    []int64
	floats  []float64
	bools   []bool
	strs    []string
	indices []uint32
}

func (v *valueSet) appendTo(col *columnar.Column, i int) {
	if v.indices != nil {
		i = int(v.indices[i])
	}
	switch v.typ {
	case schema.Int64:
		col.AppendInt64(v.ints[i])
	case schema.Float64:
		col.AppendFloat64(v.floats[i])
	case schema.Boolean:
		col.AppendBool(v.bools[i])
	case schema.String:
		col.AppendString(v.strs[i])
	}
}

func readValues(cur *Cursor, t schema.Type, n int) (valueSet, error) {
	vs := valueSet{typ: t}
	switch t {
	case schema.Int64:
		vs.ints = make([]int64, n)
		for i := range vs.ints {
			v, err := cur.Uint64()
			if err != nil {
				return vs, err
			}
			vs.ints[i] = int64(v)
		}
	case schema.Float64:
		vs.floats = make([]float64, n)
		for i := range vs.floats {
			v, err := cur.Uint64()
			if err != nil {
				return vs, err
			}
			vs.floats[i] = math.Float64frombits(v)
		}
	case schema.Boolean:
		raw, err := cur.Bytes(columnar.ByteLen(n))
		if err != nil {
			return vs, err
		}
		bits, err := columnar.BitmapFromBytes(raw, n)
		if err != nil {
			return vs, err
		}
		vs.bools = make([]bool, n)
		for i := range vs.bools {
			vs.bools[i] = bits.Get(i)
		}
	case schema.String:
		if n > cur.Remaining()/12 {
			return vs, errors.Newf(errors.ErrorTypeCorruptFile, "%d strings do not fit %d bytes", n, cur.Remaining())
		}
		offsets := make([]uint64, n)
		for i := range offsets {
			offsets[i], _ = cur.Uint64()
		}
		runStart := cur.Offset()
		vs.strs = make([]string, n)
		for i := range vs.strs {
			if uint64(cur.Offset()-runStart) != offsets[i] {
				return vs, errors.Newf(errors.ErrorTypeCorruptFile,
					"string %d offset %d does not match position %d", i, offsets[i], cur.Offset()-runStart)
			}
			l, err := cur.Uint32()
			if err != nil {
				return vs, err
			}
			b, err := cur.Bytes(int(l))
			if err != nil {
				return vs, err
			}
			vs.strs[i] = string(b)
		}
	default:
		return vs, errors.Newf(errors.ErrorTypeCorruptFile, "cannot decode %s values", t)
	}
	return vs, nil
}

func readDictionary(cur *Cursor, t schema.Type, n int) (valueSet, error) {
	if t == schema.Boolean {
		return valueSet{}, errors.New(errors.ErrorTypeCorruptFile, "boolean columns are never dictionary encoded")
	}
	size, err := cur.Uint32()
	if err != nil {
		return valueSet{}, err
	}
	width, err := cur.Uint8()
	if err != nil {
		return valueSet{}, err
	}
	if int(width) != indexWidth(int(size)) {
		return valueSet{}, errors.Newf(errors.ErrorTypeCorruptFile,
			"index width %d does not match dictionary of %d entries", width, size)
	}
	if n > 0 && size == 0 {
		return valueSet{}, errors.New(errors.ErrorTypeCorruptFile, "empty dictionary")
	}
	dictLen, err := cur.Int(1)
	if err != nil {
		return valueSet{}, err
	}
	section, err := cur.Bytes(dictLen)
	if err != nil {
		return valueSet{}, err
	}
	dc := NewCursor(section)
	vs, err := readValues(dc, t, int(size))
	if err != nil {
		return vs, err
	}
	if dc.Remaining() != 0 {
		return vs, errors.Newf(errors.ErrorTypeCorruptFile, "%d trailing bytes in dictionary", dc.Remaining())
	}

	if n > cur.Remaining()/int(width) {
		return vs, errors.Newf(errors.ErrorTypeCorruptFile, "%d indices do not fit %d bytes", n, cur.Remaining())
	}
	vs.indices = make([]uint32, n)
	for i := range vs.indices {
		var idx uint32
		switch width {
		case 1:
			b, _ := cur.Uint8()
			idx = uint32(b)
		case 2:
			b, _ := cur.Uint16()
			idx = uint32(b)
		default:
			idx, _ = cur.Uint32()
		}
		if idx >= size {
			return vs, errors.Newf(errors.ErrorTypeCorruptFile, "index %d out of range for dictionary of %d", idx, size)
		}
		vs.indices[i] = idx
	}
	return vs, nil
}
