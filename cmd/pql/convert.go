package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ajitpratap0/pql/internal/pipeline"
	"github.com/ajitpratap0/pql/pkg/metrics"
	"github.com/ajitpratap0/pql/pkg/observability"
	"github.com/ajitpratap0/pql/pkg/storage"
)

func (a *app) convertCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <input.csv> [output]",
		Short: "Convert a CSV file",
		Long: `Convert a CSV file into a columnar file.

The output defaults to the input path with its extension replaced by the
format's extension. It may also be an s3://bucket/key or gs://bucket/object
URL; the file is uploaded only after it has been written completely.

Example:
  pql convert sales.csv
  pql convert sales.csv.gz s3://exports/sales.parquet --format parquet`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := ""
			if len(args) == 2 {
				output = args[1]
			}
			return a.convert(cmd.Context(), args[0], output)
		},
	}

	f := cmd.Flags()
	addCSVFlags(f)
	f.String("schema", "", "YAML schema file to use instead of inference")
	f.Float64("dictionary-threshold", 0.2, "Dictionary-encode columns with distinct/rows below this ratio")
	f.String("compression", "deflate", "Chunk compression (none, deflate, gzip, snappy, s2, zstd, lz4)")
	f.String("compression-level", "default", "Compression level (fastest, default, better, best)")
	f.Int("workers", 0, "Columns encoded in parallel (0 = number of CPUs)")
	f.StringP("format", "f", "pql", "Output format (pql, parquet, avro)")
	f.String("temp-dir", "", "Directory for the temporary output file")
	f.String("s3-region", "", "AWS region for s3:// outputs")
	f.String("gcs-credentials", "", "Service account key file for gs:// outputs")
	f.String("metrics-file", "", "Write Prometheus metrics to this file after the run")
	f.Bool("trace", false, "Export trace spans to stderr")
	return cmd
}

// addCSVFlags registers the csv section flags shared by convert and schema.
func addCSVFlags(f *pflag.FlagSet) {
	f.String("delimiter", ",", "Field delimiter (a single character, \\t for tab)")
	f.String("quote", `"`, "Quote character")
	f.Bool("has-header", true, "Treat the first record as the header")
	f.StringSlice("null-sentinels", []string{"", "NA", "null"}, "Values read as null")
	f.Int("sample-rows", 0, "Rows used for type inference (0 = all)")
	f.Bool("strict", true, "Fail on rows with the wrong number of fields")
}

func (a *app) convert(ctx context.Context, input, output string) error {
	obs := a.cfg.Observability
	tp, err := observability.NewProvider(observability.TracingConfig{
		Enabled:        obs.Trace,
		ServiceName:    "pql",
		ServiceVersion: version,
		SamplingRate:   1.0,
		Writer:         a.stderr,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			a.logger.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	conv, err := pipeline.NewConverter(a.cfg,
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(metrics.NewCollector(reg)),
		pipeline.WithTracer(tp.Tracer()),
		pipeline.WithPublisher(storage.NewRouter(storage.Config{
			S3Region:           a.cfg.Output.S3Region,
			GCSCredentialsFile: a.cfg.Output.GCSCredentialsFile,
		})),
	)
	if err != nil {
		return err
	}

	res, convErr := conv.Convert(ctx, input, output)
	if obs.MetricsFile != "" {
		if err := metrics.WriteToTextfile(obs.MetricsFile, reg); err != nil {
			a.logger.Warn("failed to write metrics file", zap.String("path", obs.MetricsFile), zap.Error(err))
		}
	}
	if convErr != nil {
		return fmt.Errorf("converting %s: %w", input, convErr)
	}

	fmt.Fprintf(a.stdout, "Converted %s -> %s\n", res.Input, res.Output)
	fmt.Fprintf(a.stdout, "  Rows: %d, Columns: %d\n", res.Rows, res.Columns)
	fmt.Fprintf(a.stdout, "  Columns: %s\n", strings.Join(res.ColumnNames(), ", "))
	if res.Repaired() > 0 {
		fmt.Fprintf(a.stdout, "  Repaired rows: %d (short %d, long %d)\n", res.Repaired(), res.ShortRows, res.LongRows)
	}
	return nil
}
