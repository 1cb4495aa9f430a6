package pipeline

import (
	"time"

	"github.com/ajitpratap0/pql/pkg/formats"
	"github.com/ajitpratap0/pql/pkg/schema"
)

// Result summarizes a successful conversion.
type Result struct {
	RunID  string         `json:"run_id"`
	Input  string         `json:"input"`
	Output string         `json:"output"`
	Format formats.Format `json:"format"`
	Schema *schema.Schema `json:"-"`

	Rows    int `json:"rows"`
	Columns int `json:"columns"`
	// ShortRows and LongRows count rows repaired in lenient mode
	ShortRows int `json:"short_rows"`
	LongRows  int `json:"long_rows"`

	InputBytes    int64         `json:"input_bytes"`
	OutputBytes   int64         `json:"output_bytes"`
	Duration      time.Duration `json:"duration"`
	ResidentBytes uint64        `json:"resident_bytes,omitempty"`
}

// ColumnNames returns the output column names in order.
func (r *Result) ColumnNames() []string {
	if r.Schema == nil {
		return nil
	}
	return r.Schema.Names()
}

// Repaired returns the number of rows fixed up in lenient mode.
func (r *Result) Repaired() int { return r.ShortRows + r.LongRows }
