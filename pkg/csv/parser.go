package csv

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/pql/pkg/config"
	"github.com/ajitpratap0/pql/pkg/errors"
	"github.com/ajitpratap0/pql/pkg/schema"
)

// Options controls tokenizing, header handling and row validation.
type Options struct {
	Delimiter       rune
	Quote           rune
	HasHeader       bool
	NullSentinels   []string
	StrictRowLength bool
	// SampleRows bounds the inference pass; 0 reads everything
	SampleRows int
}

// DefaultOptions mirrors config.DefaultConfig().CSV.
func DefaultOptions() Options {
	return Options{
		Delimiter:       ',',
		Quote:           '"',
		HasHeader:       true,
		NullSentinels:   schema.DefaultNullSentinels,
		StrictRowLength: true,
	}
}

// OptionsFromConfig converts the csv configuration section.
func OptionsFromConfig(c *config.CSVConfig) (Options, error) {
	d, err := c.DelimiterRune()
	if err != nil {
		return Options{}, errors.Wrap(err, errors.ErrorTypeConfig, "csv options")
	}
	q, err := c.QuoteRune()
	if err != nil {
		return Options{}, errors.Wrap(err, errors.ErrorTypeConfig, "csv options")
	}
	return Options{
		Delimiter:       d,
		Quote:           q,
		HasHeader:       c.HasHeader,
		NullSentinels:   c.NullSentinels,
		StrictRowLength: c.StrictRowLength,
		SampleRows:      c.SampleRows,
	}, nil
}

// Source is a record stream with resolved column names. Without a header
// the first record is read ahead to count columns and replayed by Next.
type Source struct {
	rd      *Reader
	names   []string
	pending []string
}

// NewSource reads the header, or peeks the first record, from r.
func NewSource(r io.Reader, opts Options) (*Source, error) {
	rd := NewReader(r, opts.Delimiter, opts.Quote)
	first, err := rd.Read()
	if err == io.EOF {
		return &Source{rd: rd}, nil
	}
	if err != nil {
		return nil, err
	}
	if opts.HasHeader {
		return &Source{rd: rd, names: NormalizeHeader(first)}, nil
	}
	return &Source{rd: rd, names: GeneratedNames(len(first)), pending: first}, nil
}

// Names returns the column names.
func (s *Source) Names() []string { return s.names }

// Next returns the next data record or io.EOF.
func (s *Source) Next() ([]string, error) {
	if s.pending != nil {
		rec := s.pending
		s.pending = nil
		return rec, nil
	}
	return s.rd.Read()
}

// Line returns the line on which the last record started.
func (s *Source) Line() int { return s.rd.Line() }

func widthError(line, want, got int) error {
	return errors.Newf(errors.ErrorTypeMalformedRow,
		"line %d: expected %d fields, got %d", line, want, got).
		WithDetail("line", line).
		WithDetail("expected", want).
		WithDetail("actual", got)
}

// InferSchema runs the inference pass over src, reading at most
// opts.SampleRows records (all when 0). In strict mode a record of the
// wrong width fails here already.
func InferSchema(ctx context.Context, src *Source, opts Options) (*schema.Schema, int, error) {
	inf := schema.NewInferencer(src.Names(), schema.NewSentinels(opts.NullSentinels))
	width := len(src.Names())
	for opts.SampleRows == 0 || inf.Rows() < opts.SampleRows {
		if inf.Rows()%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, inf.Rows(), err
			}
		}
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, inf.Rows(), err
		}
		if opts.StrictRowLength && len(rec) != width {
			return nil, inf.Rows(), widthError(src.Line(), width, len(rec))
		}
		inf.Observe(rec)
	}
	s, err := inf.Schema()
	if err != nil {
		return nil, inf.Rows(), err
	}
	return s, inf.Rows(), nil
}

// Stats counts what the parser saw and repaired.
type Stats struct {
	Rows      int `json:"rows"`
	ShortRows int `json:"short_rows"`
	LongRows  int `json:"long_rows"`
}

// Parser yields typed rows for a fixed schema. It is single pass: once it
// returns io.EOF or an error it keeps returning the same result.
type Parser struct {
	src       *Source
	schema    *schema.Schema
	sentinels schema.Sentinels
	strict    bool
	logger    *zap.Logger

	stats Stats
	err   error
}

// NewParser binds src to s. When the input has a header its width must
// match the schema.
func NewParser(src *Source, s *schema.Schema, opts Options, logger *zap.Logger) (*Parser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HasHeader && len(src.Names()) != 0 && len(src.Names()) != s.Len() {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"header has %d columns but schema has %d fields", len(src.Names()), s.Len())
	}
	return &Parser{
		src:       src,
		schema:    s,
		sentinels: schema.NewSentinels(opts.NullSentinels),
		strict:    opts.StrictRowLength,
		logger:    logger,
	}, nil
}

// Stats returns counters for the rows produced so far.
func (p *Parser) Stats() Stats { return p.stats }

// Next returns the next typed row, or io.EOF when the input is exhausted.
func (p *Parser) Next() ([]schema.Value, error) {
	if p.err != nil {
		return nil, p.err
	}
	row, err := p.next()
	if err != nil {
		p.err = err
		return nil, err
	}
	p.stats.Rows++
	return row, nil
}

func (p *Parser) next() ([]schema.Value, error) {
	rec, err := p.src.Next()
	if err != nil {
		return nil, err
	}
	line := p.src.Line()
	width := p.schema.Len()

	if len(rec) != width {
		if p.strict {
			return nil, widthError(line, width, len(rec))
		}
		p.logger.Debug("repaired row length",
			zap.Int("line", line),
			zap.Int("expected", width),
			zap.Int("actual", len(rec)))
		if len(rec) < width {
			p.stats.ShortRows++
		} else {
			p.stats.LongRows++
			rec = rec[:width]
		}
	}

	row := make([]schema.Value, width)
	for i := 0; i < width; i++ {
		f := p.schema.Field(i)
		if i >= len(rec) {
			if !f.Nullable {
				return nil, errors.Newf(errors.ErrorTypeTypeCoercion,
					"line %d: column %q is missing and not nullable", line, f.Name).
					WithDetail("line", line).
					WithDetail("column", f.Name)
			}
			row[i] = schema.NullValue()
			continue
		}
		v, err := schema.Coerce(rec[i], f, p.sentinels)
		if err != nil {
			var e *errors.Error
			if errors.As(err, &e) {
				e.Message = fmt.Sprintf("line %d: %s", line, e.Message)
				e.WithDetail("line", line)
			}
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}
