// Package config provides the configuration of a pql conversion.
//
// The configuration is organized into sections:
//   - CSV: how the input is tokenized and typed
//   - Encoding: column encoding, compression and parallelism
//   - Output: output format and destination handling
//   - Observability: logging, metrics and tracing
//
// Example usage:
//
//	cfg := config.DefaultConfig()
//	cfg.CSV.Delimiter = ";"
//	cfg.Encoding.Compression = "zstd"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"runtime"
	"unicode/utf8"

	"github.com/ajitpratap0/pql/pkg/compression"
	"github.com/ajitpratap0/pql/pkg/schema"
)

// Output formats
const (
	FormatPQL     = "pql"
	FormatParquet = "parquet"
	FormatAvro    = "avro"
)

// Config is the complete configuration of a conversion.
type Config struct {
	// CSV settings control tokenizing and type inference
	CSV CSVConfig `yaml:"csv" json:"csv" mapstructure:"csv"`

	// Encoding settings control the column encoder
	Encoding EncodingConfig `yaml:"encoding" json:"encoding" mapstructure:"encoding"`

	// Output settings control the written file
	Output OutputConfig `yaml:"output" json:"output" mapstructure:"output"`

	// Observability settings for logging, metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// CSVConfig describes the input text.
type CSVConfig struct {
	// Delimiter separates fields; a single character, `\t` means tab
	Delimiter string `yaml:"delimiter" json:"delimiter" mapstructure:"delimiter"`
	// Quote encloses fields containing delimiters, quotes or newlines
	Quote string `yaml:"quote" json:"quote" mapstructure:"quote"`
	// HasHeader treats the first record as column names
	HasHeader bool `yaml:"has_header" json:"has_header" mapstructure:"has_header"`
	// NullSentinels are raw values read as null after trimming
	NullSentinels []string `yaml:"null_sentinels" json:"null_sentinels" mapstructure:"null_sentinels"`
	// SampleRows bounds the rows used for type inference (0 = all rows)
	SampleRows int `yaml:"sample_rows" json:"sample_rows" mapstructure:"sample_rows"`
	// StrictRowLength rejects records whose width differs from the header
	StrictRowLength bool `yaml:"strict_row_length" json:"strict_row_length" mapstructure:"strict_row_length"`
	// SchemaFile supplies the schema instead of inferring it
	SchemaFile string `yaml:"schema_file" json:"schema_file" mapstructure:"schema_file"`
}

// EncodingConfig controls column encoding.
type EncodingConfig struct {
	// DictionaryThreshold selects dictionary encoding when distinct < threshold * rows
	DictionaryThreshold float64 `yaml:"dictionary_threshold" json:"dictionary_threshold" mapstructure:"dictionary_threshold"`
	// Compression is the chunk codec (none, deflate, gzip, snappy, s2, zstd, lz4)
	Compression string `yaml:"compression" json:"compression" mapstructure:"compression"`
	// CompressionLevel is one of fastest, default, better, best
	CompressionLevel string `yaml:"compression_level" json:"compression_level" mapstructure:"compression_level"`
	// Workers bounds how many columns are encoded in parallel
	Workers int `yaml:"workers" json:"workers" mapstructure:"workers"`
}

// OutputConfig controls the produced file.
type OutputConfig struct {
	// Format is pql, parquet or avro
	Format string `yaml:"format" json:"format" mapstructure:"format"`
	// TempDir holds the file while it is written (default: next to a local
	// output, or the system temp dir for object stores)
	TempDir string `yaml:"temp_dir" json:"temp_dir" mapstructure:"temp_dir"`
	// S3Region overrides the AWS region for s3:// outputs
	S3Region string `yaml:"s3_region" json:"s3_region" mapstructure:"s3_region"`
	// GCSCredentialsFile is a service account key for gs:// outputs
	GCSCredentialsFile string `yaml:"gcs_credentials_file" json:"gcs_credentials_file" mapstructure:"gcs_credentials_file"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	// LogEncoding is json or console
	LogEncoding string `yaml:"log_encoding" json:"log_encoding" mapstructure:"log_encoding"`
	// MetricsFile receives the Prometheus text exposition after a run
	MetricsFile string `yaml:"metrics_file" json:"metrics_file" mapstructure:"metrics_file"`
	// Trace exports spans to stderr
	Trace bool `yaml:"trace" json:"trace" mapstructure:"trace"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		CSV: CSVConfig{
			Delimiter:       ",",
			Quote:           `"`,
			HasHeader:       true,
			NullSentinels:   append([]string(nil), schema.DefaultNullSentinels...),
			SampleRows:      0,
			StrictRowLength: true,
		},
		Encoding: EncodingConfig{
			DictionaryThreshold: 0.2,
			Compression:         string(compression.Deflate),
			CompressionLevel:    "default",
			Workers:             runtime.NumCPU(),
		},
		Output: OutputConfig{
			Format: FormatPQL,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "error",
			LogEncoding: "console",
		},
	}
}

// Validate validates the configuration for correctness.
func (c *Config) Validate() error {
	d, err := c.CSV.DelimiterRune()
	if err != nil {
		return err
	}
	q, err := c.CSV.QuoteRune()
	if err != nil {
		return err
	}
	if d == q {
		return fmt.Errorf("delimiter and quote must differ")
	}
	if c.CSV.SampleRows < 0 {
		return fmt.Errorf("sample_rows cannot be negative")
	}
	if c.Encoding.DictionaryThreshold < 0 || c.Encoding.DictionaryThreshold > 1 {
		return fmt.Errorf("dictionary_threshold must be between 0 and 1")
	}
	if _, err := compression.ParseAlgorithm(c.Encoding.Compression); err != nil {
		return err
	}
	if _, err := compression.ParseLevel(c.Encoding.CompressionLevel); err != nil {
		return err
	}
	if c.Encoding.Workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}
	switch c.Output.Format {
	case FormatPQL, FormatParquet, FormatAvro:
	default:
		return fmt.Errorf("unsupported output format %q", c.Output.Format)
	}
	return nil
}

// DelimiterRune returns the configured delimiter.
func (c *CSVConfig) DelimiterRune() (rune, error) {
	return singleRune("delimiter", c.Delimiter)
}

// QuoteRune returns the configured quote character.
func (c *CSVConfig) QuoteRune() (rune, error) {
	return singleRune("quote", c.Quote)
}

func singleRune(key, s string) (rune, error) {
	if s == `\t` || s == "tab" {
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%s must be a single character, got %q", key, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '\n' || r == '\r' || r == utf8.RuneError {
		return 0, fmt.Errorf("%s cannot be %q", key, s)
	}
	return r, nil
}

// GetWorkers returns the number of workers, ensuring it's at least 1
func (e *EncodingConfig) GetWorkers() int {
	if e.Workers <= 0 {
		return runtime.NumCPU()
	}
	return e.Workers
}

// CompressionConfig converts the encoding section for the compression package.
func (e *EncodingConfig) CompressionConfig() (*compression.Config, error) {
	alg, err := compression.ParseAlgorithm(e.Compression)
	if err != nil {
		return nil, err
	}
	level, err := compression.ParseLevel(e.CompressionLevel)
	if err != nil {
		return nil, err
	}
	return &compression.Config{Algorithm: alg, Level: level}, nil
}

// OutputExtension is the default file suffix for the configured format.
func (o *OutputConfig) OutputExtension() string {
	return "." + o.Format
}
