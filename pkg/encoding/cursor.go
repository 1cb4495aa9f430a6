package encoding

import (
	"encoding/binary"
	stderrors "errors"
	"fmt"
)

// ErrShortBuffer is returned when a Cursor runs out of bytes.
var ErrShortBuffer = stderrors.New("unexpected end of data")

// Cursor reads little-endian values from a byte slice.
type Cursor struct {
	data []byte
	off  int
}

// NewCursor returns a Cursor positioned at the start of data.
func NewCursor(data []byte) *Cursor { return &Cursor{data: data} }

// Offset returns the number of bytes consumed.
func (c *Cursor) Offset() int { return c.off }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.data) - c.off }

// Bytes consumes n bytes. The result aliases the underlying slice.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, fmt.Errorf("reading %d bytes at offset %d: %w", n, c.off, ErrShortBuffer)
	}
	b := c.data[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) Uint16() (uint16, error) {
	b, err := c.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) Uint32() (uint32, error) {
	b, err := c.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Cursor) Uint64() (uint64, error) {
	b, err := c.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Int converts a stored u64 length or count, rejecting values that do not
// fit the remaining input when multiplied by unit.
func (c *Cursor) Int(unit int) (int, error) {
	v, err := c.Uint64()
	if err != nil {
		return 0, err
	}
	if unit > 0 && v > uint64(c.Remaining()/unit) {
		return 0, fmt.Errorf("length %d at offset %d exceeds data: %w", v, c.off-8, ErrShortBuffer)
	}
	return int(v), nil
}
