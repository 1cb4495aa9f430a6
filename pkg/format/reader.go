package format

import (
	"encoding/binary"
	"io"
	"io/fs"

	"github.com/ajitpratap0/pql/pkg/columnar"
	"github.com/ajitpratap0/pql/pkg/encoding"
	"github.com/ajitpratap0/pql/pkg/errors"
	"github.com/ajitpratap0/pql/pkg/mmap"
	"github.com/ajitpratap0/pql/pkg/schema"
)

// rangeReader is implemented by sources that can hand out byte ranges
// without copying.
type rangeReader interface {
	ReadRange(offset, length int64) ([]byte, error)
}

// Reader decodes columns from a file on demand. Only the header, the
// trailer, the footer and the chunks of requested columns are read.
type Reader struct {
	r      io.ReaderAt
	size   int64
	footer *Footer
	closer io.Closer
}

// Open validates the framing and footer of the file in r.
func Open(r io.ReaderAt, size int64) (*Reader, error) {
	if size < int64(headerLen+trailerLen) {
		return nil, corruptf("file of %d bytes is too short", size)
	}
	rd := &Reader{r: r, size: size}

	head, err := rd.readRange(0, int64(headerLen))
	if err != nil {
		return nil, err
	}
	if string(head[:len(Magic)]) != Magic {
		return nil, corruptf("bad magic %q", head[:len(Magic)])
	}
	if head[len(Magic)] != Version {
		return nil, corruptf("unsupported version %d", head[len(Magic)])
	}

	tail, err := rd.readRange(size-trailerLen, trailerLen)
	if err != nil {
		return nil, err
	}
	footerLen := int64(binary.LittleEndian.Uint32(tail))
	footerStart := size - trailerLen - footerLen
	if footerLen == 0 || footerStart < int64(headerLen) {
		return nil, corruptf("footer length %d is inconsistent with file size %d", footerLen, size)
	}
	raw, err := rd.readRange(footerStart, footerLen)
	if err != nil {
		return nil, err
	}
	footer := &Footer{}
	if err := footer.UnmarshalBinary(raw); err != nil {
		return nil, err
	}

	// chunks are contiguous and in schema order
	next := uint64(headerLen)
	for i, c := range footer.Columns {
		if c.Offset != next || c.Offset+c.Length < c.Offset || c.Offset+c.Length > uint64(footerStart) {
			return nil, corruptf("column %d range [%d, %d) is invalid", i, c.Offset, c.Offset+c.Length)
		}
		next = c.Offset + c.Length
	}
	if next != uint64(footerStart) {
		return nil, corruptf("%d unaccounted bytes before footer", uint64(footerStart)-next)
	}

	rd.footer = footer
	return rd, nil
}

// OpenFile memory-maps path and opens it. The returned Reader must be
// closed.
func OpenFile(path string) (*Reader, error) {
	m, err := mmap.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrap(err, errors.ErrorTypeInputNotFound, "opening "+path).WithDetail("path", path)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "opening "+path)
	}
	rd, err := Open(m, m.Size())
	if err != nil {
		m.Close()
		return nil, err
	}
	rd.closer = m
	return rd, nil
}

func (rd *Reader) readRange(off, n int64) ([]byte, error) {
	if rr, ok := rd.r.(rangeReader); ok {
		b, err := rr.ReadRange(off, n)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeIO, "reading file")
		}
		return b, nil
	}
	buf := make([]byte, n)
	if got, err := rd.r.ReadAt(buf, off); got < len(buf) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(err, errors.ErrorTypeCorruptFile, "file is truncated")
		}
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "reading file")
	}
	return buf, nil
}

// Footer returns the parsed footer.
func (rd *Reader) Footer() *Footer { return rd.footer }

// Schema returns the file schema.
func (rd *Reader) Schema() *schema.Schema { return rd.footer.Schema }

// NumRows returns the row count.
func (rd *Reader) NumRows() int64 { return int64(rd.footer.Rows) }

// Size returns the file size in bytes.
func (rd *Reader) Size() int64 { return rd.size }

// ReadChunk returns the stored chunk of column i without decoding it.
func (rd *Reader) ReadChunk(i int) (*encoding.Chunk, error) {
	if i < 0 || i >= len(rd.footer.Columns) {
		return nil, errors.Newf(errors.ErrorTypeValidation, "column %d out of range", i)
	}
	m := rd.footer.Columns[i]
	data, err := rd.readRange(int64(m.Offset), int64(m.Length))
	if err != nil {
		return nil, err
	}
	return rd.footer.Chunk(i, data), nil
}

// ReadColumn decodes column i.
func (rd *Reader) ReadColumn(i int) (*columnar.Column, error) {
	chunk, err := rd.ReadChunk(i)
	if err != nil {
		return nil, err
	}
	col, err := encoding.Decode(chunk)
	if err != nil {
		var e *errors.Error
		if errors.As(err, &e) {
			e.WithDetail("column", rd.footer.Schema.Field(i).Name)
		}
		return nil, err
	}
	return col, nil
}

// ReadColumnByName decodes the named column.
func (rd *Reader) ReadColumnByName(name string) (*columnar.Column, error) {
	i, ok := rd.footer.Schema.Index(name)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "no column named %q", name)
	}
	return rd.ReadColumn(i)
}

// ReadColumns decodes the named columns, or all columns when none are
// given, into a batch.
func (rd *Reader) ReadColumns(names ...string) (*columnar.RowBatch, error) {
	s := rd.footer.Schema
	idx := make([]int, s.Len())
	for i := range idx {
		idx[i] = i
	}
	if len(names) > 0 {
		var err error
		if s, idx, err = s.Project(names); err != nil {
			return nil, err
		}
	}
	cols := make([]*columnar.Column, len(idx))
	for j, i := range idx {
		col, err := rd.ReadColumn(i)
		if err != nil {
			return nil, err
		}
		cols[j] = col
	}
	if len(cols) == 0 {
		return columnar.NewRowBatch(s, 0), nil
	}
	batch, err := columnar.NewRowBatchFromColumns(s, cols)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorruptFile, "assembling columns")
	}
	return batch, nil
}

// Close releases the underlying file when the Reader owns it.
func (rd *Reader) Close() error {
	if rd.closer == nil {
		return nil
	}
	c := rd.closer
	rd.closer = nil
	return c.Close()
}
