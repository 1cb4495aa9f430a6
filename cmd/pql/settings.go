package main

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/pql/pkg/config"
)

// setting maps one configuration key onto its flag and the Config field.
type setting struct {
	key   string
	flag  string
	apply func(v *viper.Viper, key string, cfg *config.Config)
}

func str(set func(*config.Config, string)) func(*viper.Viper, string, *config.Config) {
	return func(v *viper.Viper, key string, cfg *config.Config) { set(cfg, v.GetString(key)) }
}

// settings lists every key that flags and PQL_* environment variables can
// override. PQL_CSV_DELIMITER sets csv.delimiter.
var settings = []setting{
	{"csv.delimiter", "delimiter", str(func(c *config.Config, s string) { c.CSV.Delimiter = s })},
	{"csv.quote", "quote", str(func(c *config.Config, s string) { c.CSV.Quote = s })},
	{"csv.has_header", "has-header", func(v *viper.Viper, k string, c *config.Config) { c.CSV.HasHeader = v.GetBool(k) }},
	{"csv.null_sentinels", "null-sentinels", func(v *viper.Viper, k string, c *config.Config) { c.CSV.NullSentinels = stringList(v.GetStringSlice(k)) }},
	{"csv.sample_rows", "sample-rows", func(v *viper.Viper, k string, c *config.Config) { c.CSV.SampleRows = v.GetInt(k) }},
	{"csv.strict_row_length", "strict", func(v *viper.Viper, k string, c *config.Config) { c.CSV.StrictRowLength = v.GetBool(k) }},
	{"csv.schema_file", "schema", str(func(c *config.Config, s string) { c.CSV.SchemaFile = s })},
	{"encoding.dictionary_threshold", "dictionary-threshold", func(v *viper.Viper, k string, c *config.Config) { c.Encoding.DictionaryThreshold = v.GetFloat64(k) }},
	{"encoding.compression", "compression", str(func(c *config.Config, s string) { c.Encoding.Compression = s })},
	{"encoding.compression_level", "compression-level", str(func(c *config.Config, s string) { c.Encoding.CompressionLevel = s })},
	{"encoding.workers", "workers", func(v *viper.Viper, k string, c *config.Config) { c.Encoding.Workers = v.GetInt(k) }},
	{"output.format", "format", str(func(c *config.Config, s string) { c.Output.Format = s })},
	{"output.temp_dir", "temp-dir", str(func(c *config.Config, s string) { c.Output.TempDir = s })},
	{"output.s3_region", "s3-region", str(func(c *config.Config, s string) { c.Output.S3Region = s })},
	{"output.gcs_credentials_file", "gcs-credentials", str(func(c *config.Config, s string) { c.Output.GCSCredentialsFile = s })},
	{"observability.log_level", "log-level", str(func(c *config.Config, s string) { c.Observability.LogLevel = s })},
	{"observability.log_encoding", "log-encoding", str(func(c *config.Config, s string) { c.Observability.LogEncoding = s })},
	{"observability.metrics_file", "metrics-file", str(func(c *config.Config, s string) { c.Observability.MetricsFile = s })},
	{"observability.trace", "trace", func(v *viper.Viper, k string, c *config.Config) { c.Observability.Trace = v.GetBool(k) }},
}

// stringList accepts both repeated flags and a comma separated
// environment value.
func stringList(in []string) []string {
	if len(in) == 1 && strings.Contains(in[0], ",") {
		return strings.Split(in[0], ",")
	}
	return in
}

// resolveConfig layers defaults, the YAML file, PQL_* environment
// variables and explicitly set flags, in increasing precedence.
func resolveConfig(configFile string, flags *pflag.FlagSet) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		if err := config.Load(configFile, cfg); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetEnvPrefix("PQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, s := range settings {
		if err := v.BindEnv(s.key); err != nil {
			return nil, err
		}
		if f := flags.Lookup(s.flag); f != nil {
			if err := v.BindPFlag(s.key, f); err != nil {
				return nil, err
			}
		}
	}
	for _, s := range settings {
		if v.IsSet(s.key) {
			s.apply(v, s.key, cfg)
		}
	}
	return cfg, cfg.Validate()
}
