// Command pql-profile converts a CSV file, or a generated one, while
// collecting pprof profiles of the run.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ajitpratap0/pql/internal/pipeline"
	"github.com/ajitpratap0/pql/pkg/config"
	"github.com/ajitpratap0/pql/pkg/logger"
)

var profileNames = []string{"cpu", "memory", "block", "mutex", "goroutine"}

type options struct {
	input      string
	rows       int
	format     string
	workers    int
	iterations int
	outputDir  string
	types      []string
}

func main() {
	var opts options
	var types string
	flags := pflag.NewFlagSet("pql-profile", pflag.ExitOnError)
	flags.StringVar(&opts.input, "input", "", "CSV file to convert (generated when empty)")
	flags.IntVar(&opts.rows, "rows", 1_000_000, "Rows in the generated CSV")
	flags.StringVar(&opts.format, "format", config.FormatPQL, "Output format (pql, parquet, avro)")
	flags.IntVar(&opts.workers, "workers", 0, "Encoding workers (0 = number of CPUs)")
	flags.IntVar(&opts.iterations, "iterations", 1, "Conversions to run")
	flags.StringVar(&opts.outputDir, "output", "./profiles", "Output directory for profiles")
	flags.StringVar(&types, "types", "cpu,memory", "Profile types (cpu,memory,block,mutex,goroutine,all)")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\nOptions:\n", os.Args[0])
		flags.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --rows 5000000 --types cpu\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input sales.csv --format parquet --types all\n", os.Args[0])
	}
	_ = flags.Parse(os.Args[1:])
	opts.types = parseProfileTypes(types)

	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	log, err := logger.New(logger.Config{Level: "info", Encoding: "console"})
	if err != nil {
		return err
	}
	defer log.Sync()

	input := opts.input
	if input == "" {
		input = filepath.Join(opts.outputDir, "generated.csv")
		start := time.Now()
		if err := generateCSV(input, opts.rows); err != nil {
			return err
		}
		log.Info("generated input", zap.String("path", input), zap.Int("rows", opts.rows), zap.Duration("took", time.Since(start)))
	}

	cfg := config.DefaultConfig()
	cfg.Output.Format = opts.format
	if opts.workers > 0 {
		cfg.Encoding.Workers = opts.workers
	}
	conv, err := pipeline.NewConverter(cfg, pipeline.WithLogger(log))
	if err != nil {
		return err
	}

	if contains(opts.types, "block") {
		runtime.SetBlockProfileRate(1)
		defer runtime.SetBlockProfileRate(0)
	}
	if contains(opts.types, "mutex") {
		runtime.SetMutexProfileFraction(1)
		defer runtime.SetMutexProfileFraction(0)
	}
	if contains(opts.types, "cpu") {
		f, err := os.Create(filepath.Join(opts.outputDir, "cpu.prof"))
		if err != nil {
			return fmt.Errorf("failed to create CPU profile: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	output := filepath.Join(opts.outputDir, "out."+opts.format)
	for i := 0; i < opts.iterations; i++ {
		res, err := conv.Convert(ctx, input, output)
		if err != nil {
			return err
		}
		fmt.Printf("iteration %d: %d rows in %v (%.0f rows/s, %d bytes out)\n",
			i+1, res.Rows, res.Duration, float64(res.Rows)/res.Duration.Seconds(), res.OutputBytes)
	}

	if contains(opts.types, "memory") {
		runtime.GC()
		if err := writeProfile("heap", filepath.Join(opts.outputDir, "mem.prof")); err != nil {
			return err
		}
	}
	for _, t := range []string{"block", "mutex", "goroutine"} {
		if contains(opts.types, t) {
			if err := writeProfile(t, filepath.Join(opts.outputDir, t+".prof")); err != nil {
				return err
			}
		}
	}
	fmt.Printf("Profiles written to %s\n", opts.outputDir)
	return nil
}

// generateCSV writes rows of mixed-type data with some nulls and a low
// cardinality column so both encodings are exercised.
func generateCSV(path string, rows int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriterSize(f, 1<<20)
	categories := []string{"north", "south", "east", "west"}
	fmt.Fprintln(w, "id,name,score,active,region,note")
	for i := 0; i < rows; i++ {
		score := "NA"
		if i%17 != 0 {
			score = fmt.Sprintf("%.2f", float64(i%1000)/7)
		}
		fmt.Fprintf(w, "%d,user-%d,%s,%t,%s,\"note %d, free text\"\n",
			i, i, score, i%3 == 0, categories[i%len(categories)], i)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeProfile(name, path string) error {
	p := pprof.Lookup(name)
	if p == nil {
		return fmt.Errorf("profile %s not found", name)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s profile: %w", name, err)
	}
	defer f.Close()
	return p.WriteTo(f, 0)
}

// parseProfileTypes keeps the known names from a comma separated list.
func parseProfileTypes(s string) []string {
	if s == "all" {
		return profileNames
	}
	var types []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "mem" {
			part = "memory"
		}
		if contains(profileNames, part) {
			types = append(types, part)
		}
	}
	return types
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
