// Package pipeline runs CSV conversions end to end.
//
// # Overview
//
// A conversion is a fixed sequence of stages:
//   - resolve the schema, by inference over the input or from a schema file
//   - parse the input into a RowBatch
//   - encode every column, in parallel on a bounded worker group
//   - write the file to a temporary path
//   - publish the finished file to its destination
//
// Nothing is published unless every stage succeeds; on failure or
// cancellation the temporary file is removed.
//
// # Basic Usage
//
//	conv, err := pipeline.NewConverter(cfg,
//	    pipeline.WithLogger(logger),
//	    pipeline.WithMetrics(metrics.NewCollector(reg)),
//	)
//	if err != nil {
//	    return err
//	}
//	result, err := conv.Convert(ctx, "data.csv", "")
//
// The Converter holds no global state: logger, metrics collector, tracer
// and publisher are injected through options.
package pipeline

import (
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/ajitpratap0/pql/pkg/columnar"
	"github.com/ajitpratap0/pql/pkg/compression"
	"github.com/ajitpratap0/pql/pkg/config"
	"github.com/ajitpratap0/pql/pkg/csv"
	"github.com/ajitpratap0/pql/pkg/errors"
	"github.com/ajitpratap0/pql/pkg/formats"
	"github.com/ajitpratap0/pql/pkg/ioutils"
	"github.com/ajitpratap0/pql/pkg/logger"
	"github.com/ajitpratap0/pql/pkg/metrics"
	"github.com/ajitpratap0/pql/pkg/observability"
	"github.com/ajitpratap0/pql/pkg/schema"
	"github.com/ajitpratap0/pql/pkg/storage"
)

// checkEvery is how many rows are parsed between cancellation checks.
const checkEvery = 1024

// Converter converts CSV files. It is safe for concurrent use; each
// Convert call works on its own state.
type Converter struct {
	config     *config.Config
	format     formats.Format
	csvOptions csv.Options
	compressor compression.Compressor
	workers    int

	logger    *zap.Logger
	metrics   *metrics.Collector
	tracer    trace.Tracer
	publisher storage.Publisher
}

// Option customizes a Converter.
type Option func(*Converter)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Converter) { c.logger = l }
}

// WithMetrics records run statistics on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Converter) { c.metrics = m }
}

// WithTracer records spans on t.
func WithTracer(t trace.Tracer) Option {
	return func(c *Converter) { c.tracer = t }
}

// WithPublisher replaces the destination publisher. The default only
// handles local paths.
func WithPublisher(p storage.Publisher) Option {
	return func(c *Converter) { c.publisher = p }
}

// NewConverter validates cfg and prepares a Converter.
func NewConverter(cfg *config.Config, opts ...Option) (*Converter, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}
	f, err := formats.Parse(cfg.Output.Format)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "output format")
	}
	csvOpts, err := csv.OptionsFromConfig(&cfg.CSV)
	if err != nil {
		return nil, err
	}
	compCfg, err := cfg.Encoding.CompressionConfig()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "compression")
	}
	comp, err := compression.NewCompressor(compCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "compression")
	}

	c := &Converter{
		config:     cfg,
		format:     f,
		csvOptions: csvOpts,
		compressor: comp,
		workers:    cfg.Encoding.GetWorkers(),
		logger:     zap.NewNop(),
		tracer:     noop.NewTracerProvider().Tracer(observability.InstrumentationName),
		publisher:  &storage.Router{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Format returns the output format.
func (c *Converter) Format() formats.Format { return c.format }

// run carries the state of one Convert call.
type run struct {
	*Converter
	id     string
	log    *zap.Logger
	result *Result
}

// Convert converts the CSV file at input and publishes it to output. An
// empty output derives the path from input and the configured format.
func (c *Converter) Convert(ctx context.Context, input, output string) (res *Result, err error) {
	start := time.Now()
	if output == "" {
		output = formats.OutputPath(input, c.format)
	}
	r := &run{
		Converter: c,
		id:        uuid.NewString(),
		result:    &Result{Input: input, Output: output, Format: c.format},
	}
	r.result.RunID = r.id
	ctx = logger.ContextWithInput(logger.ContextWithRunID(ctx, r.id), input)
	r.log = logger.FromContext(ctx, c.logger)

	ctx, span := observability.StartSpan(ctx, c.tracer, "convert",
		attribute.String("run_id", r.id),
		attribute.String("input", input),
		attribute.String("output", output),
		attribute.String("format", string(c.format)),
	)
	defer func() {
		r.result.Duration = time.Since(start)
		if err == nil {
			span.SetAttribute("rows", r.result.Rows)
			span.SetAttribute("columns", r.result.Columns)
		}
		span.End(err)
		c.metrics.RunFinished(err)
		if err != nil {
			r.log.Error("conversion failed", zap.Error(err))
			res = nil
		}
	}()

	if _, err := os.Stat(input); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.ErrorTypeInputNotFound, "input file not found: "+input).
				WithDetail("path", input)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "stat input "+input)
	}
	dest, err := storage.ParseDestination(output)
	if err != nil {
		return nil, err
	}
	r.log.Debug("starting conversion",
		zap.String("output", output),
		zap.String("format", string(c.format)),
		zap.Int("workers", c.workers))

	s, err := r.resolveSchema(ctx)
	if err != nil {
		return nil, err
	}
	batch, err := r.parse(ctx, s)
	if err != nil {
		return nil, err
	}
	if err := r.writeAndPublish(ctx, batch, dest); err != nil {
		return nil, err
	}

	r.result.Duration = time.Since(start)
	tput := c.metrics.SetThroughput(string(c.format), r.result.Rows, r.result.Duration)
	if rss, err := c.metrics.SampleMemory(); err == nil && rss > 0 {
		r.result.ResidentBytes = rss
	}
	r.log.Info("conversion complete",
		zap.String("output", output),
		zap.Int("rows", r.result.Rows),
		zap.Int("columns", r.result.Columns),
		zap.Int64("bytes", r.result.OutputBytes),
		zap.Duration("duration", r.result.Duration),
		zap.Float64("rows_per_second", tput))
	return r.result, nil
}

// resolveSchema loads the configured schema file, or infers the schema
// from a first pass over the input.
func (r *run) resolveSchema(ctx context.Context) (*schema.Schema, error) {
	timer := metrics.NewTimer("infer_schema")
	defer func() { r.metrics.ObserveStage(timer.Name(), timer.Stop()) }()

	if path := r.config.CSV.SchemaFile; path != "" {
		s, err := schema.LoadSchema(path)
		if err != nil {
			return nil, err
		}
		r.log.Debug("loaded schema", zap.String("schema_file", path), zap.Stringer("schema", s))
		return s, nil
	}

	var s *schema.Schema
	err := observability.TraceFunc(ctx, r.tracer, "infer_schema", func(ctx context.Context) error {
		in, err := ioutils.OpenInput(r.result.Input)
		if err != nil {
			return err
		}
		defer in.Close()
		src, err := csv.NewSource(in, r.csvOptions)
		if err != nil {
			return withInput(err, r.result.Input)
		}
		var sampled int
		s, sampled, err = csv.InferSchema(ctx, src, r.csvOptions)
		if err != nil {
			return withInput(err, r.result.Input)
		}
		r.log.Debug("inferred schema", zap.Stringer("schema", s), zap.Int("sampled_rows", sampled))
		return nil
	})
	return s, err
}

// parse reads the whole input into a batch.
func (r *run) parse(ctx context.Context, s *schema.Schema) (*columnar.RowBatch, error) {
	timer := metrics.NewTimer("parse")
	defer func() { r.metrics.ObserveStage(timer.Name(), timer.Stop()) }()

	ctx, span := observability.StartSpan(ctx, r.tracer, "parse")
	batch, stats, inputBytes, err := r.parseInput(ctx, s)
	span.SetAttribute("rows", stats.Rows)
	span.End(err)
	if err != nil {
		return nil, err
	}

	r.result.Schema = s
	r.result.Rows = stats.Rows
	r.result.Columns = s.Len()
	r.result.ShortRows = stats.ShortRows
	r.result.LongRows = stats.LongRows
	r.result.InputBytes = inputBytes
	r.metrics.AddInputBytes(inputBytes)
	r.metrics.AddRepaired("short", stats.ShortRows)
	r.metrics.AddRepaired("long", stats.LongRows)
	if stats.ShortRows+stats.LongRows > 0 {
		r.log.Warn("repaired rows with unexpected field counts",
			zap.Int("short_rows", stats.ShortRows),
			zap.Int("long_rows", stats.LongRows))
	}
	return batch, nil
}

func (r *run) parseInput(ctx context.Context, s *schema.Schema) (*columnar.RowBatch, csv.Stats, int64, error) {
	in, err := ioutils.OpenInput(r.result.Input)
	if err != nil {
		return nil, csv.Stats{}, 0, err
	}
	defer in.Close()

	src, err := csv.NewSource(in, r.csvOptions)
	if err != nil {
		return nil, csv.Stats{}, in.BytesRead(), withInput(err, r.result.Input)
	}
	p, err := csv.NewParser(src, s, r.csvOptions, r.log)
	if err != nil {
		return nil, csv.Stats{}, in.BytesRead(), withInput(err, r.result.Input)
	}

	batch := columnar.NewRowBatch(s, 1024)
	for n := 0; ; n++ {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, p.Stats(), in.BytesRead(), err
			}
		}
		row, err := p.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, p.Stats(), in.BytesRead(), withInput(err, r.result.Input)
		}
		if err := batch.AppendRow(row); err != nil {
			return nil, p.Stats(), in.BytesRead(), errors.Wrap(err, errors.ErrorTypeInternal, "building row batch")
		}
	}
	return batch, p.Stats(), in.BytesRead(), nil
}

// withInput names the input file on typed errors.
func withInput(err error, path string) error {
	var e *errors.Error
	if errors.As(err, &e) {
		if _, ok := e.Detail("input"); !ok {
			e.WithDetail("input", path)
		}
	}
	return err
}

// Metadata describes the run on published objects.
func (r *run) metadata() map[string]string {
	return map[string]string{
		"pql-run-id":  r.id,
		"pql-rows":    strconv.Itoa(r.result.Rows),
		"pql-columns": strconv.Itoa(r.result.Columns),
		"pql-format":  string(r.format),
	}
}
