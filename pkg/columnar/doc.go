// Package columnar holds decoded tabular data in memory, one dense typed
// buffer per column plus a validity bitmap.
//
// A Column stores every row, including nulls; a null row keeps the zero
// value of the column type in the dense buffer and a cleared validity bit.
// A RowBatch groups the columns of one schema and guarantees they all have
// the same length.
//
// Basic usage:
//
//	s := schema.MustSchema(
//	    schema.Field{Name: "id", Type: schema.Int64},
//	    schema.Field{Name: "name", Type: schema.String, Nullable: true},
//	)
//	batch := columnar.NewRowBatch(s, 1024)
//	err := batch.AppendRow([]schema.Value{schema.IntValue(1), schema.NullValue()})
//
// Columns are safe for concurrent reads once building has finished.
package columnar
