// Package parquet writes and reads row batches as Apache Parquet files
// through the arrow-go pqarrow bridge.
package parquet

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/ajitpratap0/pql/pkg/columnar"
	"github.com/ajitpratap0/pql/pkg/compression"
	"github.com/ajitpratap0/pql/pkg/errors"
	"github.com/ajitpratap0/pql/pkg/schema"
)

// WriterConfig configures Write.
type WriterConfig struct {
	Compression compression.Algorithm
	// Dictionary enables parquet dictionary pages
	Dictionary bool
	// RowGroupSize is the maximum number of rows per row group
	RowGroupSize int64
	Allocator    memory.Allocator
}

// DefaultWriterConfig returns snappy compression with dictionaries.
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		Compression:  compression.Snappy,
		Dictionary:   true,
		RowGroupSize: 1 << 20,
	}
}

// Codec maps a pql codec to the closest parquet codec. Deflate has no
// parquet equivalent and is written as gzip; s2 is written as snappy.
func Codec(alg compression.Algorithm) (compress.Compression, error) {
	switch alg {
	case compression.None, "":
		return compress.Codecs.Uncompressed, nil
	case compression.Deflate, compression.Gzip:
		return compress.Codecs.Gzip, nil
	case compression.Snappy, compression.S2:
		return compress.Codecs.Snappy, nil
	case compression.Zstd:
		return compress.Codecs.Zstd, nil
	case compression.LZ4:
		return compress.Codecs.Lz4Raw, nil
	}
	return compress.Codecs.Uncompressed, fmt.Errorf("unsupported compression algorithm: %s", alg)
}

// ArrowSchema converts s to an arrow schema.
func ArrowSchema(s *schema.Schema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, s.Len())
	for _, f := range s.Fields() {
		t, err := arrowType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to convert field %s: %w", f.Name, err)
		}
		fields = append(fields, arrow.Field{Name: f.Name, Type: t, Nullable: f.Nullable})
	}
	return arrow.NewSchema(fields, nil), nil
}

func arrowType(t schema.Type) (arrow.DataType, error) {
	switch t {
	case schema.Int64:
		return arrow.PrimitiveTypes.Int64, nil
	case schema.Float64:
		return arrow.PrimitiveTypes.Float64, nil
	case schema.Boolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case schema.String:
		return arrow.BinaryTypes.String, nil
	}
	return nil, fmt.Errorf("unsupported field type: %s", t)
}

// FromArrowSchema converts an arrow schema back. Narrower integer and
// float types widen to Int64 and Float64.
func FromArrowSchema(as *arrow.Schema) (*schema.Schema, error) {
	fields := make([]schema.Field, 0, as.NumFields())
	for _, f := range as.Fields() {
		var t schema.Type
		switch f.Type.ID() {
		case arrow.BOOL:
			t = schema.Boolean
		case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64:
			t = schema.Int64
		case arrow.FLOAT32, arrow.FLOAT64:
			t = schema.Float64
		case arrow.STRING, arrow.LARGE_STRING:
			t = schema.String
		default:
			return nil, errors.Newf(errors.ErrorTypeValidation, "column %q has unsupported type %s", f.Name, f.Type)
		}
		fields = append(fields, schema.Field{Name: f.Name, Type: t, Nullable: f.Nullable})
	}
	return schema.NewSchema(fields)
}

// writeOnly hides io.Closer so the parquet writer does not close the
// caller's sink.
type writeOnly struct{ io.Writer }

// Write encodes batch as a parquet file on w.
func Write(w io.Writer, batch *columnar.RowBatch, config *WriterConfig) error {
	if config == nil {
		config = DefaultWriterConfig()
	}
	mem := config.Allocator
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	as, err := ArrowSchema(batch.Schema())
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "parquet schema")
	}
	codec, err := Codec(config.Compression)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "parquet compression")
	}

	builder := array.NewRecordBuilder(mem, as)
	defer builder.Release()
	for i := 0; i < batch.NumColumns(); i++ {
		if err := appendColumn(builder.Field(i), batch.Column(i)); err != nil {
			return err
		}
	}
	record := builder.NewRecord()
	defer record.Release()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(config.Dictionary),
		parquet.WithMaxRowGroupLength(config.RowGroupSize),
		parquet.WithAllocator(mem),
		parquet.WithCreatedBy("pql"),
	)
	fw, err := pqarrow.NewFileWriter(as, writeOnly{w}, props, pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(mem)))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create parquet writer")
	}
	if err := fw.Write(record); err != nil {
		fw.Close()
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to write record batch")
	}
	if err := fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to close parquet writer")
	}
	return nil
}

func validity(col *columnar.Column) []bool {
	if col.NullCount() == 0 {
		return nil
	}
	valid := make([]bool, col.Len())
	for i := range valid {
		valid[i] = !col.IsNull(i)
	}
	return valid
}

func appendColumn(b array.Builder, col *columnar.Column) error {
	valid := validity(col)
	switch b := b.(type) {
	case *array.Int64Builder:
		b.AppendValues(col.Int64s(), valid)
	case *array.Float64Builder:
		b.AppendValues(col.Float64s(), valid)
	case *array.BooleanBuilder:
		b.AppendValues(col.Bools(), valid)
	case *array.StringBuilder:
		b.AppendValues(col.Strings(), valid)
	default:
		return errors.Newf(errors.ErrorTypeInternal, "unsupported builder type: %T", b)
	}
	return nil
}

// Read loads a whole parquet file into a row batch.
func Read(ctx context.Context, r parquet.ReaderAtSeeker) (*columnar.RowBatch, error) {
	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(ctx, r, parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorruptFile, "failed to read parquet file")
	}
	defer tbl.Release()

	s, err := FromArrowSchema(tbl.Schema())
	if err != nil {
		return nil, err
	}
	rows := int(tbl.NumRows())
	cols := make([]*columnar.Column, s.Len())
	for i := range cols {
		col := columnar.NewColumn(s.Field(i).Type, rows)
		for _, chunk := range tbl.Column(i).Data().Chunks() {
			if err := readChunk(col, chunk); err != nil {
				return nil, err
			}
		}
		cols[i] = col
	}
	if len(cols) == 0 {
		return columnar.NewRowBatch(s, 0), nil
	}
	return columnar.NewRowBatchFromColumns(s, cols)
}

func readChunk(col *columnar.Column, arr arrow.Array) error {
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			col.AppendNull()
			continue
		}
		switch a := arr.(type) {
		case *array.Boolean:
			col.AppendBool(a.Value(i))
		case *array.Int8:
			col.AppendInt64(int64(a.Value(i)))
		case *array.Int16:
			col.AppendInt64(int64(a.Value(i)))
		case *array.Int32:
			col.AppendInt64(int64(a.Value(i)))
		case *array.Int64:
			col.AppendInt64(a.Value(i))
		case *array.Float32:
			col.AppendFloat64(float64(a.Value(i)))
		case *array.Float64:
			col.AppendFloat64(a.Value(i))
		case *array.String:
			col.AppendString(a.Value(i))
		case *array.LargeString:
			col.AppendString(a.Value(i))
		default:
			return errors.Newf(errors.ErrorTypeValidation, "unsupported arrow array %T", arr)
		}
	}
	return nil
}
