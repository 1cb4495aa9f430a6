// Package formats describes the output formats a conversion can produce.
// The native format lives in pkg/format; pkg/formats/parquet and
// pkg/formats/avro write the same row batches as Apache Parquet and Avro.
package formats

import (
	"fmt"
	"strings"
)

// Format represents an output file format.
type Format string

const (
	// PQL is the native columnar format
	PQL Format = "pql"
	// Parquet is Apache Parquet format
	Parquet Format = "parquet"
	// Avro is Apache Avro object container format
	Avro Format = "avro"
)

// Info provides information about a format.
type Info struct {
	Format        Format `json:"format"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	FileExtension string `json:"file_extension"`
	MIMEType      string `json:"mime_type"`
	Columnar      bool   `json:"columnar"`
}

var infos = map[Format]*Info{
	PQL: {
		Format:        PQL,
		Name:          "PQL",
		Description:   "Columnar format with per-column dictionary encoding and checksums",
		FileExtension: ".pql",
		MIMEType:      "application/octet-stream",
		Columnar:      true,
	},
	Parquet: {
		Format:        Parquet,
		Name:          "Apache Parquet",
		Description:   "Columnar storage format optimized for analytics",
		FileExtension: ".parquet",
		MIMEType:      "application/vnd.apache.parquet",
		Columnar:      true,
	},
	Avro: {
		Format:        Avro,
		Name:          "Apache Avro",
		Description:   "Row-oriented data serialization format",
		FileExtension: ".avro",
		MIMEType:      "application/avro",
	},
}

// GetInfo returns information about f, or nil when f is unknown.
func GetInfo(f Format) *Info {
	return infos[f]
}

// Parse resolves a format name case-insensitively.
func Parse(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return PQL, nil
	}
	if _, ok := infos[f]; !ok {
		return "", fmt.Errorf("unsupported output format: %q", s)
	}
	return f, nil
}

// OutputPath derives an output path from input by replacing its extension
// (after any compression suffix) with the extension of f.
func OutputPath(input string, f Format) string {
	base := input
	for _, ext := range []string{".gz", ".gzip", ".zst", ".zstd", ".lz4", ".sz", ".s2", ".bz2"} {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			base = base[:len(base)-len(ext)]
			break
		}
	}
	slash := strings.LastIndexAny(base, `/\`)
	if dot := strings.LastIndex(base, "."); dot > slash+1 {
		base = base[:dot]
	}
	return base + GetInfo(f).FileExtension
}
