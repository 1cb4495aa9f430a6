// Package mmap provides read-only memory-mapped access to files.
package mmap

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// Reader exposes a memory-mapped file as an io.ReaderAt. Platforms without
// mmap support fall back to positional reads on the open file.
type Reader struct {
	file     *os.File
	data     []byte
	size     int64
	pageSize int

	bytesRead atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// Open maps filename read-only.
func Open(filename string) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	r := &Reader{file: file, size: stat.Size(), pageSize: os.Getpagesize()}
	// a zero length mapping is invalid
	if r.size == 0 {
		return r, nil
	}
	if int64(int(r.size)) != r.size {
		file.Close()
		return nil, fmt.Errorf("file of %d bytes is too large to map", r.size)
	}
	data, err := mmap(int(file.Fd()), 0, int(r.size), ProtRead, MapShared)
	if err != nil {
		// positional reads still work
		return r, nil
	}
	r.data = data
	return r, nil
}

// Size returns the file length.
func (r *Reader) Size() int64 { return r.size }

// Mapped reports whether reads are served from a mapping.
func (r *Reader) Mapped() bool { return r.data != nil }

// BytesRead returns the number of bytes handed out so far.
func (r *Reader) BytesRead() int64 { return r.bytesRead.Load() }

// ReadAt implements io.ReaderAt.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return 0, os.ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if r.data == nil {
		n, err := r.file.ReadAt(p, off)
		r.bytesRead.Add(int64(n))
		return n, err
	}
	if off >= r.size {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	r.bytesRead.Add(int64(n))
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// ReadRange returns length bytes at offset without copying when mapped.
// The slice is only valid until Close.
func (r *Reader) ReadRange(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > r.size || offset+length < offset {
		return nil, fmt.Errorf("range [%d, %d) outside file of %d bytes", offset, offset+length, r.size)
	}
	r.mu.RLock()
	mapped := r.data != nil && !r.closed
	if mapped {
		defer r.mu.RUnlock()
		r.prefetchRange(offset, offset+length)
		r.bytesRead.Add(length)
		return r.data[offset : offset+length], nil
	}
	r.mu.RUnlock()

	buf := make([]byte, length)
	if _, err := r.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	return buf, nil
}

// prefetchRange advises the kernel that a page range will be read soon.
func (r *Reader) prefetchRange(start, end int64) {
	page := int64(r.pageSize)
	startPage := (start / page) * page
	endPage := ((end + page - 1) / page) * page
	if endPage > r.size {
		endPage = r.size
	}
	if endPage <= startPage {
		return
	}
	_ = madvise(r.data[startPage:endPage], MadvWillneed)
}

// Close unmaps and closes the file. It is safe to call more than once.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.data != nil {
		err = munmap(r.data)
		r.data = nil
	}
	if closeErr := r.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
