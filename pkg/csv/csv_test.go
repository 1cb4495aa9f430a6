package csv

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/pql/pkg/config"
	"github.com/ajitpratap0/pql/pkg/errors"
	"github.com/ajitpratap0/pql/pkg/schema"
)

func readAll(t *testing.T, input string, delim, quote rune) [][]string {
	t.Helper()
	recs, err := NewReader(strings.NewReader(input), delim, quote).ReadAll()
	require.NoError(t, err)
	return recs
}

func TestReaderTokenizes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  [][]string
	}{
		{"simple", "a,b\n1,2\n", [][]string{{"a", "b"}, {"1", "2"}}},
		{"no trailing newline", "a,b\n1,2", [][]string{{"a", "b"}, {"1", "2"}}},
		{"crlf", "a,b\r\n1,2\r\n", [][]string{{"a", "b"}, {"1", "2"}}},
		{"lone cr", "a\r1", [][]string{{"a"}, {"1"}}},
		{"quoted delimiter", `"x,y",z`, [][]string{{"x,y", "z"}}},
		{"doubled quote", `"say ""hi""",2`, [][]string{{`say "hi"`, "2"}}},
		{"embedded newline", "\"line1\nline2\",b\nc,d", [][]string{{"line1\nline2", "b"}, {"c", "d"}}},
		{"embedded crlf", "\"a\r\nb\"\n", [][]string{{"a\r\nb"}}},
		{"empty fields", "a,,c\n,,\n", [][]string{{"a", "", "c"}, {"", "", ""}}},
		{"trailing delimiter", "a,\n", [][]string{{"a", ""}}},
		{"blank lines skipped", "a\n\n\nb\n\n", [][]string{{"a"}, {"b"}}},
		{"empty quoted field kept", "\"\"\n", [][]string{{""}}},
		{"quote inside unquoted field", `ab"c,d`, [][]string{{`ab"c`, "d"}}},
		{"text after closing quote", `"ab"c,d`, [][]string{{"abc", "d"}}},
		{"bom stripped", "\ufeffid,name\n1,x", [][]string{{"id", "name"}, {"1", "x"}}},
		{"spaces preserved", " a , b ", [][]string{{" a ", " b "}}},
		{"unicode", "naïve,日本\n", [][]string{{"naïve", "日本"}}},
		{"empty input", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, readAll(t, tt.input, ',', '"'))
		})
	}
}

func TestReaderCustomDelimiterAndQuote(t *testing.T) {
	got := readAll(t, "a;'b;c';'it''s'\n", ';', '\'')
	assert.Equal(t, [][]string{{"a", "b;c", "it's"}}, got)

	got = readAll(t, "a\tb\n1\t2\n", '\t', '"')
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, got)
}

func TestReaderUnterminatedQuote(t *testing.T) {
	r := NewReader(strings.NewReader("a,b\n1,\"open\n2,3\n"), ',', '"')
	_, err := r.Read()
	require.NoError(t, err)

	_, err = r.Read()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedRow))
	assert.Contains(t, err.Error(), "line 2")
}

func TestReaderLineNumbers(t *testing.T) {
	r := NewReader(strings.NewReader("h\n\"a\nb\"\n\nc\n"), ',', '"')
	_, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, 1, r.Line())
	_, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, 2, r.Line())
	_, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, 5, r.Line())
	_, err = r.Read()
	assert.Equal(t, io.EOF, err)
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t,
		[]string{"a", "b", "a.1", "Unnamed: 3", "a.2"},
		NormalizeHeader([]string{"a", "b", "a", " ", "a"}))
	// a literal a.1 keeps its name and the duplicate skips past it
	assert.Equal(t,
		[]string{"a", "a.2", "a.1"},
		NormalizeHeader([]string{"a", "a", "a.1"}))
}

func newSource(t *testing.T, input string, opts Options) *Source {
	t.Helper()
	src, err := NewSource(strings.NewReader(input), opts)
	require.NoError(t, err)
	return src
}

func inferAndParse(t *testing.T, input string, opts Options) (*schema.Schema, [][]schema.Value, Stats, error) {
	t.Helper()
	s, _, err := InferSchema(context.Background(), newSource(t, input, opts), opts)
	if err != nil {
		return nil, nil, Stats{}, err
	}
	p, err := NewParser(newSource(t, input, opts), s, opts, zaptest.NewLogger(t))
	require.NoError(t, err)

	var rows [][]schema.Value
	for {
		row, err := p.Next()
		if err == io.EOF {
			return s, rows, p.Stats(), nil
		}
		if err != nil {
			return s, rows, p.Stats(), err
		}
		rows = append(rows, row)
	}
}

func TestEmptyFieldMakesStringColumnNullable(t *testing.T) {
	s, rows, _, err := inferAndParse(t, "id,name\n1,Alice\n2,\n3,Carol", DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []schema.Field{
		{Name: "id", Type: schema.Int64},
		{Name: "name", Type: schema.String, Nullable: true},
	}, s.Fields())
	require.Len(t, rows, 3)
	assert.True(t, rows[1][1].IsNull())
	assert.Equal(t, "Carol", rows[2][1].Str)
	assert.Equal(t, int64(3), rows[2][0].Int)
}

func TestQuotedIntegersInferInt64(t *testing.T) {
	s, rows, _, err := inferAndParse(t, "n\n\"1\"\n\"2\"\n\"3000000000000\"\n", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, schema.Int64, s.Field(0).Type)
	assert.False(t, s.Field(0).Nullable)
	assert.Equal(t, int64(3000000000000), rows[2][0].Int)
}

func TestShortRowStrictAndLenient(t *testing.T) {
	_, _, _, err := inferAndParse(t, "a,b,c\n1,2", DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedRow))
	assert.Contains(t, err.Error(), "line 2")

	lenient := DefaultOptions()
	lenient.StrictRowLength = false
	s, rows, stats, err := inferAndParse(t, "a,b,c\n1,2", lenient)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0][2].IsNull())
	assert.True(t, s.Field(2).Nullable)
	assert.Equal(t, 1, stats.ShortRows)
}

func TestBooleansMixedWithNumbersParse(t *testing.T) {
	s, rows, _, err := inferAndParse(t, "flag,ratio\ntrue,false\n1,2.5\nFALSE,-1\n", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, schema.Int64, s.Field(0).Type)
	assert.Equal(t, schema.Float64, s.Field(1).Type)
	require.Len(t, rows, 3)

	assert.Equal(t, []int64{1, 1, 0}, []int64{rows[0][0].Int, rows[1][0].Int, rows[2][0].Int})
	assert.Equal(t, []float64{0, 2.5, -1}, []float64{rows[0][1].Float, rows[1][1].Float, rows[2][1].Float})
}

// A schema inferred from every row must parse every row.
func TestInferredSchemaParsesItsOwnInput(t *testing.T) {
	cells := []string{
		"", "NA", "null", "true", "False", "0", "17", "-3", "3000000000000",
		"99999999999999999999", "2.5", "1e400", "NaN", "-inf", " 4 ",
		"text", `"quoted, comma"`, `"say ""hi"""`, "\"multi\nline\"",
	}
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 300; trial++ {
		cols := 1 + rng.Intn(4)
		var b strings.Builder
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "c%d", c)
		}
		rowCount := rng.Intn(8)
		for r := 0; r < rowCount; r++ {
			b.WriteByte('\n')
			for c := 0; c < cols; c++ {
				if c > 0 {
					b.WriteByte(',')
				}
				cell := cells[rng.Intn(len(cells))]
				if cols == 1 && cell == "" {
					// a bare empty line is skipped as blank
					cell = `""`
				}
				b.WriteString(cell)
			}
		}
		input := b.String()

		_, rows, _, err := inferAndParse(t, input, DefaultOptions())
		require.NoError(t, err, "input %q", input)
		assert.Len(t, rows, rowCount, "input %q", input)
	}
}

func TestLenientLongRows(t *testing.T) {
	opts := DefaultOptions()
	opts.StrictRowLength = false
	_, rows, stats, err := inferAndParse(t, "a,b\n1,2,3,4\n5,6\n", opts)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 2)
	assert.Equal(t, Stats{Rows: 2, LongRows: 1}, stats)
}

func TestSampledInferenceCoercionFailure(t *testing.T) {
	opts := DefaultOptions()
	opts.SampleRows = 2
	_, rows, _, err := inferAndParse(t, "n\n1\n2\nthree\n", opts)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTypeCoercion))
	assert.Contains(t, err.Error(), "line 4")
	assert.Len(t, rows, 2)
}

func TestParserIsSinglePass(t *testing.T) {
	opts := DefaultOptions()
	s := schema.MustSchema(schema.Field{Name: "a", Type: schema.Int64})
	p, err := NewParser(newSource(t, "a\n1\n", opts), s, opts, nil)
	require.NoError(t, err)

	_, err = p.Next()
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = p.Next()
		assert.Equal(t, io.EOF, err)
	}
}

func TestExternalSchemaHeaderMismatch(t *testing.T) {
	opts := DefaultOptions()
	s := schema.MustSchema(schema.Field{Name: "a", Type: schema.Int64})
	_, err := NewParser(newSource(t, "a,b\n1,2\n", opts), s, opts, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestHeaderless(t *testing.T) {
	opts := DefaultOptions()
	opts.HasHeader = false
	s, rows, _, err := inferAndParse(t, "1,true\n2,false\n", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"col_0", "col_1"}, s.Names())
	assert.Equal(t, schema.Boolean, s.Field(1).Type)
	assert.Len(t, rows, 2)
}

func TestHeaderOnlyAndEmpty(t *testing.T) {
	s, rows, _, err := inferAndParse(t, "a,b\n", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Empty(t, rows)
	assert.Equal(t, schema.String, s.Field(0).Type)
	assert.True(t, s.Field(0).Nullable)

	s, rows, _, err = inferAndParse(t, "", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, rows)
}

func TestInferSchemaHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := InferSchema(ctx, newSource(t, "a\n1\n", DefaultOptions()), DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CSV.Delimiter = `\t`
	cfg.CSV.Quote = "'"
	cfg.CSV.SampleRows = 10
	opts, err := OptionsFromConfig(&cfg.CSV)
	require.NoError(t, err)
	assert.Equal(t, '\t', opts.Delimiter)
	assert.Equal(t, '\'', opts.Quote)
	assert.Equal(t, 10, opts.SampleRows)

	cfg.CSV.Delimiter = "ab"
	_, err = OptionsFromConfig(&cfg.CSV)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
