// Package json wraps github.com/goccy/go-json for pql's JSON output: the
// inspect report, avro schema documents and JSON lines from head.
package json

import (
	"bytes"
	"io"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/pql/pkg/pool"
)

// Marshal is a drop-in replacement for encoding/json.Marshal.
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for encoding/json.Unmarshal.
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a drop-in replacement for encoding/json.MarshalIndent.
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// NewEncoder returns an encoder that leaves HTML characters unescaped.
func NewEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// WriteIndented writes v to w as indented JSON followed by a newline.
func WriteIndented(w io.Writer, v interface{}) error {
	enc := NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// LinesEncoder writes one JSON document per line. Each value is encoded
// into a pooled buffer first so a failed value leaves no partial line.
type LinesEncoder struct {
	w     io.Writer
	count int
}

// NewLinesEncoder returns a LinesEncoder writing to w.
func NewLinesEncoder(w io.Writer) *LinesEncoder {
	return &LinesEncoder{w: w}
}

// Encode writes v and a trailing newline.
func (le *LinesEncoder) Encode(v interface{}) error {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if err := NewEncoder(buf).Encode(v); err != nil {
		return err
	}
	if _, err := le.w.Write(buf.Bytes()); err != nil {
		return err
	}
	le.count++
	return nil
}

// Count returns the number of values written.
func (le *LinesEncoder) Count() int { return le.count }

// Compact removes insignificant whitespace from a JSON document.
func Compact(data []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := gojson.Compact(&out, data); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
