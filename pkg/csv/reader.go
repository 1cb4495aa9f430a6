// Package csv turns delimited text into typed rows.
//
// Reader tokenizes records with a configurable delimiter and quote
// character. Source adds header handling on top of it, InferSchema runs the
// sampling pass and Parser produces typed rows for a known schema.
package csv

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/ajitpratap0/pql/pkg/errors"
)

const bom = '\uFEFF'

type tokenState int

const (
	fieldStart tokenState = iota
	unquoted
	quoted
	quoteInQuoted // saw a quote inside a quoted field
)

// Reader splits text into records. Quoted fields may contain the
// delimiter, newlines and doubled quotes. Records end with \n, \r\n or a
// lone \r. Lines with no content are skipped.
type Reader struct {
	br         *bufio.Reader
	delim      rune
	quote      rune
	line       int // physical lines consumed so far
	recordLine int
	started    bool
	field      strings.Builder
}

// NewReader creates a tokenizer over r.
func NewReader(r io.Reader, delim, quote rune) *Reader {
	return &Reader{
		br:    bufio.NewReaderSize(r, 64*1024),
		delim: delim,
		quote: quote,
	}
}

// Line returns the 1-based line on which the last returned record started.
func (r *Reader) Line() int { return r.recordLine }

// Read returns the next record, or io.EOF when the input is exhausted.
// An unterminated quoted field fails with a malformed_row error.
func (r *Reader) Read() ([]string, error) {
	for {
		rec, err := r.readRecord()
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}
}

// readRecord returns nil, nil for a blank line.
func (r *Reader) readRecord() ([]string, error) {
	r.recordLine = r.line + 1
	var fields []string
	state := fieldStart
	r.field.Reset()
	// a record consisting of a single "" is not blank
	touched := false

	endField := func() {
		fields = append(fields, r.field.String())
		r.field.Reset()
	}
	endRecord := func() ([]string, error) {
		if !touched && len(fields) == 0 && r.field.Len() == 0 {
			return nil, nil
		}
		endField()
		return fields, nil
	}

	for {
		c, _, err := r.br.ReadRune()
		if err == io.EOF {
			if state == quoted {
				return nil, errors.Newf(errors.ErrorTypeMalformedRow,
					"line %d: unterminated quoted field", r.recordLine).WithDetail("line", r.recordLine)
			}
			if !touched && len(fields) == 0 && r.field.Len() == 0 {
				return nil, io.EOF
			}
			return endRecord()
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeIO, "reading csv input")
		}
		if !r.started {
			r.started = true
			if c == bom {
				continue
			}
		}

		switch state {
		case fieldStart, unquoted:
			switch {
			case c == r.quote && state == fieldStart:
				state = quoted
				touched = true
			case c == r.delim:
				endField()
				state = fieldStart
				touched = true
			case c == '\n':
				r.line++
				return endRecord()
			case c == '\r':
				r.line++
				r.skipLF()
				return endRecord()
			default:
				r.field.WriteRune(c)
				state = unquoted
			}

		case quoted:
			if c == r.quote {
				state = quoteInQuoted
				continue
			}
			if c == '\n' {
				r.line++
			}
			r.field.WriteRune(c)

		case quoteInQuoted:
			switch c {
			case r.quote:
				r.field.WriteRune(r.quote)
				state = quoted
			case r.delim:
				endField()
				state = fieldStart
			case '\n':
				r.line++
				return endRecord()
			case '\r':
				r.line++
				r.skipLF()
				return endRecord()
			default:
				// text after a closing quote is kept literally
				r.field.WriteRune(c)
				state = unquoted
			}
		}
	}
}

func (r *Reader) skipLF() {
	next, err := r.br.Peek(1)
	if err == nil && next[0] == '\n' {
		_, _ = r.br.ReadByte()
	}
}

// ReadAll reads every remaining record.
func (r *Reader) ReadAll() ([][]string, error) {
	var out [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// NormalizeHeader makes header names usable as unique field names. Blank
// names become "Unnamed: <i>" and repeats get ".1", ".2", ... suffixes.
func NormalizeHeader(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]struct{}, len(names))
	for i, n := range names {
		if strings.TrimSpace(n) == "" {
			n = fmt.Sprintf("Unnamed: %d", i)
		}
		out[i] = n
	}
	for _, n := range out {
		seen[n] = struct{}{}
	}
	counts := make(map[string]int, len(names))
	used := make(map[string]struct{}, len(names))
	for i, n := range out {
		if _, dup := used[n]; !dup {
			used[n] = struct{}{}
			continue
		}
		for {
			counts[n]++
			candidate := fmt.Sprintf("%s.%d", n, counts[n])
			_, taken := seen[candidate]
			_, takenNow := used[candidate]
			if !taken && !takenNow {
				out[i] = candidate
				used[candidate] = struct{}{}
				break
			}
		}
	}
	return out
}

// GeneratedNames returns col_0 .. col_{n-1} for headerless input.
func GeneratedNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("col_%d", i)
	}
	return names
}
