// Package ioutils opens CSV inputs, decompressing them on the fly.
package ioutils

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/ajitpratap0/pql/pkg/compression"
	"github.com/ajitpratap0/pql/pkg/errors"
)

// Bzip2 is the input-only bzip2 stream format.
const Bzip2 compression.Algorithm = "bzip2"

var bzip2Magic = []byte("BZh")

// Input is an opened, possibly decompressed, input file.
type Input struct {
	io.Reader
	path      string
	format    compression.Algorithm
	file      *os.File
	decoder   io.Closer
	bytesRead *atomic.Int64
}

// Path returns the file path.
func (in *Input) Path() string { return in.path }

// Format returns the detected stream format, None for plain text.
func (in *Input) Format() compression.Algorithm { return in.format }

// BytesRead returns how many bytes were read from the file so far, before
// decompression.
func (in *Input) BytesRead() int64 { return in.bytesRead.Load() }

// Close closes the decoder and the file.
func (in *Input) Close() error {
	var err error
	if in.decoder != nil {
		err = in.decoder.Close()
		in.decoder = nil
	}
	if in.file != nil {
		if cerr := in.file.Close(); err == nil {
			err = cerr
		}
		in.file = nil
	}
	return err
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// DetectFormat picks the stream format from the file extension, falling
// back to the magic bytes in head.
func DetectFormat(path string, head []byte) compression.Algorithm {
	if strings.EqualFold(filepath.Ext(path), ".bz2") {
		return Bzip2
	}
	if alg := compression.FromExtension(path); alg != compression.None {
		return alg
	}
	if bytes.HasPrefix(head, bzip2Magic) && len(head) > 3 && head[3] >= '1' && head[3] <= '9' {
		return Bzip2
	}
	return compression.Sniff(head)
}

// OpenInput opens path for reading. A missing file fails with an
// input_not_found error.
func OpenInput(path string) (*Input, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrap(err, errors.ErrorTypeInputNotFound, "input file not found: "+path).
				WithDetail("path", path)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "opening input "+path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "stat input "+path)
	}
	if info.IsDir() {
		f.Close()
		return nil, errors.Newf(errors.ErrorTypeValidation, "input %s is a directory", path)
	}

	in := &Input{path: path, file: f, bytesRead: new(atomic.Int64)}
	br := bufio.NewReaderSize(countingReader{r: f, n: in.bytesRead}, 64*1024)
	head, err := br.Peek(compression.MaxMagicLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		f.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "reading input "+path)
	}

	in.format = DetectFormat(path, head)
	switch in.format {
	case compression.None:
		in.Reader = br
	case Bzip2:
		in.Reader = bzip2.NewReader(br)
	default:
		dec, err := compression.NewReader(in.format, br)
		if err != nil {
			f.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeCorruptFile, "decompressing input "+path).
				WithDetail("format", string(in.format))
		}
		in.Reader = dec
		in.decoder = dec
	}
	return in, nil
}
