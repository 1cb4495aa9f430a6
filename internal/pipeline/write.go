package pipeline

import (
	"context"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/pql/pkg/columnar"
	"github.com/ajitpratap0/pql/pkg/encoding"
	"github.com/ajitpratap0/pql/pkg/errors"
	"github.com/ajitpratap0/pql/pkg/format"
	"github.com/ajitpratap0/pql/pkg/formats"
	"github.com/ajitpratap0/pql/pkg/formats/avro"
	"github.com/ajitpratap0/pql/pkg/formats/parquet"
	"github.com/ajitpratap0/pql/pkg/metrics"
	"github.com/ajitpratap0/pql/pkg/observability"
	"github.com/ajitpratap0/pql/pkg/storage"
)

// writeAndPublish stages the output in a temporary file and publishes it.
// The temporary file is removed on every failure path.
func (r *run) writeAndPublish(ctx context.Context, batch *columnar.RowBatch, dest storage.Destination) (err error) {
	dir := storage.TempDir(dest, r.config.Output.TempDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "creating output directory "+dir)
	}
	tmp, err := os.CreateTemp(dir, ".pql-*.tmp")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "creating temporary output")
	}
	tmpPath := tmp.Name()
	closed := false
	defer func() {
		if !closed {
			tmp.Close()
		}
		if err != nil {
			if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
				r.log.Warn("failed to remove temporary output", zap.String("path", tmpPath), zap.Error(rmErr))
			}
		}
	}()

	timer := metrics.NewTimer("write_file")
	err = observability.TraceFunc(ctx, r.tracer, "write_file", func(ctx context.Context) error {
		switch r.format {
		case formats.Parquet:
			cfg := parquet.DefaultWriterConfig()
			cfg.Compression = r.compressor.Algorithm()
			return parquet.Write(tmp, batch, cfg)
		case formats.Avro:
			cfg := avro.DefaultWriterConfig()
			cfg.Compression = r.compressor.Algorithm()
			return avro.Write(tmp, batch, cfg)
		default:
			return r.writePQL(ctx, tmp, batch)
		}
	}, attribute.String("path", tmpPath))
	r.metrics.ObserveStage(timer.Name(), timer.Stop())
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := tmp.Sync(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "syncing output")
	}
	info, err := tmp.Stat()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "stat output")
	}
	closed = true
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "closing output")
	}
	r.result.OutputBytes = info.Size()

	timer = metrics.NewTimer("publish")
	err = observability.TraceFunc(ctx, r.tracer, "publish", func(ctx context.Context) error {
		return r.publisher.Publish(ctx, storage.Object{
			LocalPath:   tmpPath,
			ContentType: formats.GetInfo(r.format).MIMEType,
			Metadata:    r.metadata(),
		}, dest)
	}, attribute.String("destination", dest.String()))
	r.metrics.ObserveStage(timer.Name(), timer.Stop())
	if err != nil {
		return err
	}

	r.metrics.AddRows(string(r.format), r.result.Rows)
	r.metrics.AddOutputBytes(string(r.format), r.result.OutputBytes)
	return nil
}

// writePQL encodes every column on a bounded worker group, then writes
// the chunks in schema order once all of them are ready.
func (r *run) writePQL(ctx context.Context, w *os.File, batch *columnar.RowBatch) error {
	chunks, err := r.encodeColumns(ctx, batch)
	if err != nil {
		return err
	}

	fw := format.NewWriter(w)
	defer fw.Close()
	if err := fw.WriteHeader(batch.Schema()); err != nil {
		return err
	}
	for _, c := range chunks {
		if err := fw.WriteChunk(c); err != nil {
			return err
		}
	}
	if err := fw.WriteFooter(); err != nil {
		return err
	}
	return fw.Close()
}

func (r *run) encodeColumns(ctx context.Context, batch *columnar.RowBatch) ([]*encoding.Chunk, error) {
	timer := metrics.NewTimer("encode")
	defer func() { r.metrics.ObserveStage(timer.Name(), timer.Stop()) }()

	opts := encoding.Options{
		DictionaryThreshold: r.config.Encoding.DictionaryThreshold,
		Compressor:          r.compressor,
	}
	s := batch.Schema()
	chunks := make([]*encoding.Chunk, batch.NumColumns())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			name := s.Field(i).Name
			_, span := observability.StartSpan(gctx, r.tracer, "encode_column",
				attribute.String("column", name),
				attribute.String("type", s.Field(i).Type.String()))
			chunk, err := encoding.Encode(batch.Column(i), opts)
			if err != nil {
				span.End(err)
				var e *errors.Error
				if errors.As(err, &e) {
					e.WithDetail("column", name)
					return e
				}
				return errors.Wrap(err, errors.ErrorTypeInternal, "encoding column "+name)
			}
			span.SetAttribute("encoding", chunk.Encoding.String())
			span.SetAttribute("codec", string(chunk.Codec))
			span.SetAttribute("bytes", chunk.CompressedLen())
			span.End(nil)

			r.metrics.ObserveChunk(chunk.Encoding.String(), string(chunk.Codec), chunk.CompressedLen())
			r.log.Debug("encoded column",
				zap.String("column", name),
				zap.Stringer("encoding", chunk.Encoding),
				zap.String("codec", string(chunk.Codec)),
				zap.Uint64("null_count", chunk.NullCount),
				zap.Uint64("uncompressed_bytes", chunk.UncompressedLen),
				zap.Uint64("stored_bytes", chunk.CompressedLen()))
			chunks[i] = chunk
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}
