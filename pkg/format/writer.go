package format

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/ajitpratap0/pql/pkg/encoding"
	"github.com/ajitpratap0/pql/pkg/errors"
	"github.com/ajitpratap0/pql/pkg/schema"
)

// WriterState tracks progress through a file.
type WriterState int

const (
	StateEmpty WriterState = iota
	StateHeaderWritten
	StateChunkWritten
	StateFooterWritten
	StateClosed
)

func (s WriterState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateHeaderWritten:
		return "header_written"
	case StateChunkWritten:
		return "chunk_written"
	case StateFooterWritten:
		return "footer_written"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Writer lays out a file on w. Calls must follow
// WriteHeader, WriteChunk once per schema field, WriteFooter, Close.
// A Writer that is dropped before WriteFooter leaves an incomplete stream
// that readers reject.
type Writer struct {
	bw     *bufio.Writer
	state  WriterState
	offset uint64
	schema *schema.Schema
	rows   uint64
	cols   []ColumnMeta
}

// NewWriter returns a Writer in the empty state.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriterSize(w, 256*1024)}
}

// State returns the current state.
func (w *Writer) State() WriterState { return w.state }

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() uint64 { return w.offset }

func (w *Writer) illegal(op string) error {
	return errors.Newf(errors.ErrorTypeIllegalState, "%s called in state %s", op, w.state).
		WithDetail("state", w.state.String())
}

func (w *Writer) write(p []byte) error {
	n, err := w.bw.Write(p)
	w.offset += uint64(n)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "writing output")
	}
	return nil
}

// WriteHeader writes the magic and version for a file holding s.
func (w *Writer) WriteHeader(s *schema.Schema) error {
	if w.state != StateEmpty {
		return w.illegal("WriteHeader")
	}
	if err := w.write(append([]byte(Magic), Version)); err != nil {
		return err
	}
	w.schema = s
	w.cols = make([]ColumnMeta, 0, s.Len())
	w.state = StateHeaderWritten
	return nil
}

// WriteChunk appends the chunk for the next schema column.
func (w *Writer) WriteChunk(c *encoding.Chunk) error {
	if w.state != StateHeaderWritten && w.state != StateChunkWritten {
		return w.illegal("WriteChunk")
	}
	i := len(w.cols)
	if i >= w.schema.Len() {
		return errors.Newf(errors.ErrorTypeIllegalState,
			"schema has %d fields, all chunks already written", w.schema.Len())
	}
	field := w.schema.Field(i)
	if c.Type != field.Type {
		return errors.Newf(errors.ErrorTypeIllegalState,
			"chunk for %q is %s, schema says %s", field.Name, c.Type, field.Type)
	}
	if i == 0 {
		w.rows = c.RowCount
	} else if c.RowCount != w.rows {
		return errors.Newf(errors.ErrorTypeIllegalState,
			"chunk for %q has %d rows, expected %d", field.Name, c.RowCount, w.rows)
	}

	meta := ColumnMeta{
		Offset:          w.offset,
		Length:          c.CompressedLen(),
		Encoding:        c.Encoding,
		NullCount:       c.NullCount,
		Codec:           c.Codec,
		UncompressedLen: c.UncompressedLen,
		Checksum:        c.Checksum,
	}
	if err := w.write(c.Data); err != nil {
		return err
	}
	w.cols = append(w.cols, meta)
	w.state = StateChunkWritten
	return nil
}

// WriteFooter writes the footer and its length and flushes the stream.
func (w *Writer) WriteFooter() error {
	if w.state != StateHeaderWritten && w.state != StateChunkWritten {
		return w.illegal("WriteFooter")
	}
	if len(w.cols) != w.schema.Len() {
		return errors.Newf(errors.ErrorTypeIllegalState,
			"footer written after %d of %d chunks", len(w.cols), w.schema.Len())
	}
	footer := &Footer{Version: Version, Rows: w.rows, Schema: w.schema, Columns: w.cols}
	data, err := footer.MarshalBinary()
	if err != nil {
		return err
	}
	if uint64(len(data)) > math.MaxUint32 {
		return errors.Newf(errors.ErrorTypeValidation, "footer of %d bytes is too large", len(data))
	}
	if err := w.write(data); err != nil {
		return err
	}
	if err := w.write(binary.LittleEndian.AppendUint32(nil, uint32(len(data)))); err != nil {
		return err
	}
	if err := w.bw.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "flushing output")
	}
	w.state = StateFooterWritten
	return nil
}

// Close finishes the writer. Closing an unfinished writer abandons it
// without flushing. Close on a closed writer is a no-op.
func (w *Writer) Close() error {
	w.state = StateClosed
	return nil
}
