package columnar

import (
	"github.com/ajitpratap0/pql/pkg/errors"
	"github.com/ajitpratap0/pql/pkg/schema"
)

// RowBatch is a set of equally long columns sharing one schema.
type RowBatch struct {
	schema  *schema.Schema
	columns []*Column
	rows    int
}

// NewRowBatch creates an empty batch for s.
func NewRowBatch(s *schema.Schema, capacity int) *RowBatch {
	cols := make([]*Column, s.Len())
	for i := range cols {
		cols[i] = NewColumn(s.Field(i).Type, capacity)
	}
	return &RowBatch{schema: s, columns: cols}
}

// NewRowBatchFromColumns assembles a batch from already built columns.
func NewRowBatchFromColumns(s *schema.Schema, cols []*Column) (*RowBatch, error) {
	if len(cols) != s.Len() {
		return nil, errors.Newf(errors.ErrorTypeValidation, "schema has %d fields, got %d columns", s.Len(), len(cols))
	}
	rows := 0
	for i, c := range cols {
		f := s.Field(i)
		if c.Type() != f.Type {
			return nil, errors.Newf(errors.ErrorTypeValidation, "column %q is %s, schema says %s", f.Name, c.Type(), f.Type)
		}
		if i == 0 {
			rows = c.Len()
		} else if c.Len() != rows {
			return nil, errors.Newf(errors.ErrorTypeValidation, "column %q has %d rows, expected %d", f.Name, c.Len(), rows)
		}
		if !f.Nullable && c.NullCount() > 0 {
			return nil, errors.Newf(errors.ErrorTypeValidation, "column %q is not nullable but has %d nulls", f.Name, c.NullCount())
		}
	}
	return &RowBatch{schema: s, columns: cols, rows: rows}, nil
}

// AppendRow appends one row. The row is validated completely before any
// column is modified.
func (b *RowBatch) AppendRow(row []schema.Value) error {
	if len(row) != len(b.columns) {
		return errors.Newf(errors.ErrorTypeValidation, "row has %d values, schema has %d fields", len(row), len(b.columns))
	}
	for i, v := range row {
		f := b.schema.Field(i)
		if v.Kind == schema.Null {
			if !f.Nullable {
				return errors.Newf(errors.ErrorTypeTypeCoercion, "column %q is not nullable", f.Name)
			}
			continue
		}
		if v.Kind != f.Type {
			return errors.Newf(errors.ErrorTypeTypeCoercion, "column %q expects %s, got %s", f.Name, f.Type, v.Kind)
		}
	}
	for i, v := range row {
		// types were checked above
		_ = b.columns[i].Append(v)
	}
	b.rows++
	return nil
}

func (b *RowBatch) Schema() *schema.Schema { return b.schema }
func (b *RowBatch) NumRows() int           { return b.rows }
func (b *RowBatch) NumColumns() int        { return len(b.columns) }
func (b *RowBatch) Column(i int) *Column   { return b.columns[i] }

// ColumnByName looks a column up by field name.
func (b *RowBatch) ColumnByName(name string) (*Column, bool) {
	i, ok := b.schema.Index(name)
	if !ok {
		return nil, false
	}
	return b.columns[i], true
}

// Row materializes row i.
func (b *RowBatch) Row(i int) []schema.Value {
	row := make([]schema.Value, len(b.columns))
	for c, col := range b.columns {
		row[c] = col.Value(i)
	}
	return row
}

// Equal reports whether both batches hold the same schema and data.
func (b *RowBatch) Equal(o *RowBatch) bool {
	if !b.schema.Equal(o.schema) || b.rows != o.rows {
		return false
	}
	for i := range b.columns {
		if !b.columns[i].Equal(o.columns[i]) {
			return false
		}
	}
	return true
}

// MemoryUsage sums the column estimates.
func (b *RowBatch) MemoryUsage() int64 {
	var total int64
	for _, c := range b.columns {
		total += c.MemoryUsage()
	}
	return total
}
