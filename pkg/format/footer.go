// Package format reads and writes PQL files.
//
// A file is the magic "PQL1", a version byte, the column chunks in schema
// order, a footer describing the schema and every chunk, and finally the
// footer length as a little-endian u32 so readers can seek from the end.
// The footer ends with the xxhash64 of its own preceding bytes.
package format

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/ajitpratap0/pql/pkg/compression"
	"github.com/ajitpratap0/pql/pkg/encoding"
	"github.com/ajitpratap0/pql/pkg/errors"
	"github.com/ajitpratap0/pql/pkg/schema"
)

const (
	// Magic opens every file.
	Magic = "PQL1"
	// Version is the only format version written and accepted.
	Version uint8 = 1

	headerLen  = len(Magic) + 1
	trailerLen = 4
	// fixed bytes per column entry in the footer
	columnEntryLen = 8 + 8 + 1 + 8 + 1 + 8 + 8
)

// ColumnMeta locates and describes one chunk.
type ColumnMeta struct {
	Offset          uint64                `json:"offset"`
	Length          uint64                `json:"length"`
	Encoding        encoding.Encoding     `json:"encoding"`
	NullCount       uint64                `json:"null_count"`
	Codec           compression.Algorithm `json:"codec"`
	UncompressedLen uint64                `json:"uncompressed_len"`
	Checksum        uint64                `json:"checksum"`
}

// Footer is the trailing metadata block.
type Footer struct {
	Version uint8          `json:"version"`
	Rows    uint64         `json:"rows"`
	Schema  *schema.Schema `json:"-"`
	Columns []ColumnMeta   `json:"columns"`
}

// MarshalBinary serializes f including its checksum.
func (f *Footer) MarshalBinary() ([]byte, error) {
	if f.Schema.Len() != len(f.Columns) {
		return nil, errors.Newf(errors.ErrorTypeInternal,
			"footer has %d fields but %d columns", f.Schema.Len(), len(f.Columns))
	}
	le := binary.LittleEndian
	buf := make([]byte, 0, 16+f.Schema.Len()*(columnEntryLen+16))
	buf = append(buf, f.Version)
	buf = le.AppendUint64(buf, f.Rows)
	buf = le.AppendUint32(buf, uint32(f.Schema.Len()))
	for _, field := range f.Schema.Fields() {
		buf = le.AppendUint16(buf, uint16(len(field.Name)))
		buf = append(buf, field.Name...)
		buf = append(buf, byte(field.Type))
		if field.Nullable {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	for _, c := range f.Columns {
		codec, err := c.Codec.ID()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "footer codec")
		}
		buf = le.AppendUint64(buf, c.Offset)
		buf = le.AppendUint64(buf, c.Length)
		buf = append(buf, byte(c.Encoding))
		buf = le.AppendUint64(buf, c.NullCount)
		buf = append(buf, codec)
		buf = le.AppendUint64(buf, c.UncompressedLen)
		buf = le.AppendUint64(buf, c.Checksum)
	}
	return le.AppendUint64(buf, xxhash.Sum64(buf)), nil
}

func corruptf(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrorTypeCorruptFile, format, args...)
}

// UnmarshalBinary parses and verifies a serialized footer.
func (f *Footer) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return corruptf("footer of %d bytes is too short", len(data))
	}
	body := data[:len(data)-8]
	if want, got := binary.LittleEndian.Uint64(data[len(body):]), xxhash.Sum64(body); want != got {
		return corruptf("footer checksum mismatch: stored %016x, computed %016x", want, got)
	}

	cur := encoding.NewCursor(body)
	wrap := func(err error, what string) error {
		return errors.Wrap(err, errors.ErrorTypeCorruptFile, "footer "+what)
	}

	version, err := cur.Uint8()
	if err != nil {
		return wrap(err, "version")
	}
	if version != Version {
		return corruptf("unsupported footer version %d", version)
	}
	rows, err := cur.Uint64()
	if err != nil {
		return wrap(err, "row count")
	}
	nfields, err := cur.Uint32()
	if err != nil {
		return wrap(err, "field count")
	}
	// each field takes at least 4 bytes plus its column entry
	if uint64(nfields) > uint64(cur.Remaining()/(4+columnEntryLen)) {
		return corruptf("field count %d does not fit the footer", nfields)
	}

	fields := make([]schema.Field, nfields)
	for i := range fields {
		nameLen, err := cur.Uint16()
		if err != nil {
			return wrap(err, "field name length")
		}
		name, err := cur.Bytes(int(nameLen))
		if err != nil {
			return wrap(err, "field name")
		}
		typ, err := cur.Uint8()
		if err != nil {
			return wrap(err, "field type")
		}
		nullable, err := cur.Uint8()
		if err != nil {
			return wrap(err, "field nullability")
		}
		if nullable > 1 {
			return corruptf("field %d has nullable flag %d", i, nullable)
		}
		fields[i] = schema.Field{Name: string(name), Type: schema.Type(typ), Nullable: nullable == 1}
	}
	s, err := schema.NewSchema(fields)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeCorruptFile, "footer schema")
	}

	columns := make([]ColumnMeta, nfields)
	for i := range columns {
		raw, err := cur.Bytes(columnEntryLen)
		if err != nil {
			return wrap(err, fmt.Sprintf("column %d", i))
		}
		c := encoding.NewCursor(raw)
		var m ColumnMeta
		m.Offset, _ = c.Uint64()
		m.Length, _ = c.Uint64()
		enc, _ := c.Uint8()
		m.NullCount, _ = c.Uint64()
		codec, _ := c.Uint8()
		m.UncompressedLen, _ = c.Uint64()
		m.Checksum, _ = c.Uint64()

		m.Encoding = encoding.Encoding(enc)
		if !m.Encoding.Valid() {
			return corruptf("column %d has unknown encoding %d", i, enc)
		}
		if m.Codec, err = compression.AlgorithmFromID(codec); err != nil {
			return errors.Wrap(err, errors.ErrorTypeCorruptFile, fmt.Sprintf("column %d codec", i))
		}
		if m.NullCount > rows {
			return corruptf("column %d null count %d exceeds row count %d", i, m.NullCount, rows)
		}
		columns[i] = m
	}
	if cur.Remaining() != 0 {
		return corruptf("%d trailing bytes in footer", cur.Remaining())
	}

	f.Version = version
	f.Rows = rows
	f.Schema = s
	f.Columns = columns
	return nil
}

// Chunk pairs column i's metadata with its stored bytes.
func (f *Footer) Chunk(i int, data []byte) *encoding.Chunk {
	m := f.Columns[i]
	return &encoding.Chunk{
		Type:            f.Schema.Field(i).Type,
		Encoding:        m.Encoding,
		Codec:           m.Codec,
		RowCount:        f.Rows,
		NullCount:       m.NullCount,
		UncompressedLen: m.UncompressedLen,
		Checksum:        m.Checksum,
		Data:            data,
	}
}
