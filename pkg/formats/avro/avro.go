// Package avro writes and reads row batches as Avro object container files
// using goavro.
package avro

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/pql/pkg/columnar"
	"github.com/ajitpratap0/pql/pkg/compression"
	"github.com/ajitpratap0/pql/pkg/errors"
	"github.com/ajitpratap0/pql/pkg/json"
	"github.com/ajitpratap0/pql/pkg/schema"
)

// schemaMetaKey stores the original pql schema in the container header,
// since column names may have been rewritten to valid Avro names.
const schemaMetaKey = "pql.schema"

// RecordName is the name of the generated Avro record type.
const RecordName = "pql_row"

// WriterConfig configures Write.
type WriterConfig struct {
	Compression compression.Algorithm
	// BlockLength is the number of rows per container block
	BlockLength int
}

// DefaultWriterConfig returns deflate compression.
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{Compression: compression.Deflate, BlockLength: 4096}
}

// CompressionName maps a pql codec to an Avro container codec. Codecs
// without an Avro equivalent fall back to deflate.
func CompressionName(alg compression.Algorithm) string {
	switch alg {
	case compression.None, "":
		return goavro.CompressionNullLabel
	case compression.Snappy, compression.S2:
		return goavro.CompressionSnappyLabel
	default:
		return goavro.CompressionDeflateLabel
	}
}

func avroType(t schema.Type) (string, error) {
	switch t {
	case schema.Int64:
		return "long", nil
	case schema.Float64:
		return "double", nil
	case schema.Boolean:
		return "boolean", nil
	case schema.String:
		return "string", nil
	}
	return "", fmt.Errorf("unsupported field type: %s", t)
}

// SanitizeNames rewrites names into unique valid Avro identifiers.
func SanitizeNames(names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]struct{}, len(names))
	for i, n := range names {
		var b strings.Builder
		for j, r := range n {
			switch {
			case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
				b.WriteRune(r)
			case r >= '0' && r <= '9':
				if j == 0 {
					b.WriteByte('_')
				}
				b.WriteRune(r)
			default:
				b.WriteByte('_')
			}
		}
		base := b.String()
		if base == "" {
			base = "_"
		}
		s := base
		for k := 1; ; k++ {
			if _, taken := used[s]; !taken {
				break
			}
			s = base + "_" + strconv.Itoa(k)
		}
		used[s] = struct{}{}
		out[i] = s
	}
	return out
}

type avroField struct {
	Name string      `json:"name"`
	Type interface{} `json:"type"`
}

type avroRecord struct {
	Type   string      `json:"type"`
	Name   string      `json:"name"`
	Fields []avroField `json:"fields"`
}

// SchemaJSON returns the Avro record schema for s and the Avro field names
// used for each column.
func SchemaJSON(s *schema.Schema) (string, []string, error) {
	names := SanitizeNames(s.Names())
	rec := avroRecord{Type: "record", Name: RecordName, Fields: make([]avroField, s.Len())}
	for i, f := range s.Fields() {
		t, err := avroType(f.Type)
		if err != nil {
			return "", nil, err
		}
		rec.Fields[i] = avroField{Name: names[i], Type: t}
		if f.Nullable {
			rec.Fields[i].Type = []string{"null", t}
		}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", nil, err
	}
	return string(data), names, nil
}

type storedField struct {
	Name     string      `json:"name"`
	Type     schema.Type `json:"type"`
	Nullable bool        `json:"nullable"`
}

// Write encodes batch as an Avro object container file on w.
func Write(w io.Writer, batch *columnar.RowBatch, config *WriterConfig) error {
	if config == nil {
		config = DefaultWriterConfig()
	}
	s := batch.Schema()
	avroSchema, names, err := SchemaJSON(s)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "avro schema")
	}
	codec, err := goavro.NewCodec(avroSchema)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create avro codec")
	}
	stored := make([]storedField, s.Len())
	for i, f := range s.Fields() {
		stored[i] = storedField{Name: f.Name, Type: f.Type, Nullable: f.Nullable}
	}
	meta, err := json.Marshal(stored)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "encoding schema metadata")
	}

	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           codec,
		CompressionName: CompressionName(config.Compression),
		MetaData:        map[string][]byte{schemaMetaKey: meta},
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create avro writer")
	}

	blockLen := config.BlockLength
	if blockLen <= 0 {
		blockLen = 4096
	}
	block := make([]interface{}, 0, blockLen)
	for row := 0; row < batch.NumRows(); row++ {
		native := make(map[string]interface{}, s.Len())
		for i, f := range s.Fields() {
			native[names[i]] = nativeValue(batch.Column(i), row, f)
		}
		block = append(block, native)
		if len(block) == blockLen {
			if err := ocf.Append(block); err != nil {
				return errors.Wrap(err, errors.ErrorTypeIO, "failed to write avro block")
			}
			block = block[:0]
		}
	}
	if len(block) > 0 {
		if err := ocf.Append(block); err != nil {
			return errors.Wrap(err, errors.ErrorTypeIO, "failed to write avro block")
		}
	}
	return nil
}

func nativeValue(col *columnar.Column, row int, f schema.Field) interface{} {
	if col.IsNull(row) {
		return nil
	}
	var v interface{}
	switch f.Type {
	case schema.Int64:
		v = col.Int64s()[row]
	case schema.Float64:
		v = col.Float64s()[row]
	case schema.Boolean:
		v = col.Bools()[row]
	case schema.String:
		v = col.Strings()[row]
	}
	if f.Nullable {
		t, _ := avroType(f.Type)
		return goavro.Union(t, v)
	}
	return v
}

// Read loads a container file written by Write into a row batch.
func Read(r io.Reader) (*columnar.RowBatch, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorruptFile, "failed to read avro container")
	}
	raw, ok := ocf.MetaData()[schemaMetaKey]
	if !ok {
		return nil, errors.New(errors.ErrorTypeValidation, "avro file was not written by pql")
	}
	var stored []storedField
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorruptFile, "decoding schema metadata")
	}
	fields := make([]schema.Field, len(stored))
	for i, f := range stored {
		fields[i] = schema.Field{Name: f.Name, Type: f.Type, Nullable: f.Nullable}
	}
	s, err := schema.NewSchema(fields)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorruptFile, "schema metadata")
	}
	names := SanitizeNames(s.Names())

	batch := columnar.NewRowBatch(s, 0)
	row := make([]schema.Value, s.Len())
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeCorruptFile, "reading avro record")
		}
		rec, ok := datum.(map[string]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeCorruptFile, "unexpected avro datum %T", datum)
		}
		for i, f := range s.Fields() {
			v, err := fromNative(rec[names[i]], f)
			if err != nil {
				return nil, err
			}
			row[i] = v
		}
		if err := batch.AppendRow(row); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeCorruptFile, "avro record")
		}
	}
	if err := ocf.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorruptFile, "scanning avro container")
	}
	return batch, nil
}

func fromNative(v interface{}, f schema.Field) (schema.Value, error) {
	if v == nil {
		return schema.NullValue(), nil
	}
	if u, ok := v.(map[string]interface{}); ok {
		for _, inner := range u {
			v = inner
		}
	}
	switch x := v.(type) {
	case int64:
		return schema.IntValue(x), nil
	case float64:
		return schema.FloatValue(x), nil
	case bool:
		return schema.BoolValue(x), nil
	case string:
		return schema.StringValue(x), nil
	}
	return schema.Value{}, errors.Newf(errors.ErrorTypeCorruptFile, "column %q holds unexpected %T", f.Name, v)
}
