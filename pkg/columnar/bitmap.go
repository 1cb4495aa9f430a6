package columnar

import (
	"fmt"
	"math/bits"
)

// Bitmap is a growable bit set packed into 64-bit words. Bit i of the
// serialized form lives in byte i/8 at position i%8 (LSB first).
type Bitmap struct {
	words []uint64
	n     int
}

// NewBitmap returns an empty bitmap with room for capacity bits.
func NewBitmap(capacity int) *Bitmap {
	return &Bitmap{words: make([]uint64, 0, (capacity+63)/64)}
}

// Len returns the number of bits.
func (b *Bitmap) Len() int { return b.n }

// Append adds one bit.
func (b *Bitmap) Append(v bool) {
	if b.n%64 == 0 {
		b.words = append(b.words, 0)
	}
	if v {
		b.words[b.n/64] |= 1 << (b.n % 64)
	}
	b.n++
}

// Get returns bit i.
func (b *Bitmap) Get(i int) bool {
	return b.words[i/64]&(1<<(i%64)) != 0
}

// Count returns the number of set bits.
func (b *Bitmap) Count() int {
	c := 0
	for _, w := range b.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// ByteLen is the serialized size of an n-bit bitmap.
func ByteLen(n int) int { return (n + 7) / 8 }

// AppendBytes appends the serialized form of b to dst.
func (b *Bitmap) AppendBytes(dst []byte) []byte {
	nbytes := ByteLen(b.n)
	for i := 0; i < nbytes; i++ {
		dst = append(dst, byte(b.words[i/8]>>(8*(i%8))))
	}
	return dst
}

// Bytes returns the serialized form of b.
func (b *Bitmap) Bytes() []byte {
	return b.AppendBytes(make([]byte, 0, ByteLen(b.n)))
}

// BitmapFromBytes rebuilds an n-bit bitmap from its serialized form.
// Bits past n in the final byte must be zero.
func BitmapFromBytes(data []byte, n int) (*Bitmap, error) {
	if len(data) != ByteLen(n) {
		return nil, fmt.Errorf("bitmap of %d bits needs %d bytes, got %d", n, ByteLen(n), len(data))
	}
	if rem := n % 8; rem != 0 && data[len(data)-1]>>rem != 0 {
		return nil, fmt.Errorf("bitmap has bits set past length %d", n)
	}
	b := &Bitmap{words: make([]uint64, (n+63)/64), n: n}
	for i, v := range data {
		b.words[i/8] |= uint64(v) << (8 * (i % 8))
	}
	return b, nil
}
