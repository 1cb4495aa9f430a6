package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/pql/pkg/columnar"
	"github.com/ajitpratap0/pql/pkg/config"
	"github.com/ajitpratap0/pql/pkg/format"
	"github.com/ajitpratap0/pql/pkg/formats/avro"
	"github.com/ajitpratap0/pql/pkg/formats/parquet"
	"github.com/ajitpratap0/pql/pkg/testutil"
)

type FormatsSuite struct {
	testutil.IntegrationTestSuite
	input    string
	expected *columnar.RowBatch
}

func TestFormatsSuite(t *testing.T) {
	suite.Run(t, new(FormatsSuite))
}

func (s *FormatsSuite) SetupSuite() {
	s.IntegrationTestSuite.SetupSuite()
	s.input = testutil.GenerateCSV(s.T(), s.TempDir(), "data.csv", 300)

	res, err := newConverter(s.T(), nil).Convert(s.Context(), s.input, filepath.Join(s.TempDir(), "native.pql"))
	s.Require().NoError(err)
	r, err := format.OpenFile(res.Output)
	s.Require().NoError(err)
	defer r.Close()
	s.expected, err = r.ReadColumns()
	s.Require().NoError(err)
}

func (s *FormatsSuite) convert(format string) string {
	cfg := config.DefaultConfig()
	cfg.Output.Format = format
	cfg.Encoding.Compression = "snappy"
	res, err := newConverter(s.T(), cfg).Convert(s.Context(), s.input, filepath.Join(s.TempDir(), "out", "data."+format))
	s.Require().NoError(err)
	s.Equal(300, res.Rows)
	return res.Output
}

func (s *FormatsSuite) TestParquetRoundTrip() {
	path := s.convert("parquet")
	f, err := os.Open(path)
	s.Require().NoError(err)
	defer f.Close()

	got, err := parquet.Read(s.Context(), f)
	s.Require().NoError(err)
	s.True(s.expected.Equal(got), "parquet output differs from native output")
}

func (s *FormatsSuite) TestAvroRoundTrip() {
	path := s.convert("avro")
	f, err := os.Open(path)
	s.Require().NoError(err)
	defer f.Close()

	got, err := avro.Read(f)
	s.Require().NoError(err)
	s.True(s.expected.Equal(got), "avro output differs from native output")
}

func (s *FormatsSuite) TestDerivedOutputExtension() {
	cfg := config.DefaultConfig()
	cfg.Output.Format = "parquet"
	res, err := newConverter(s.T(), cfg).Convert(s.Context(), s.input, "")
	s.Require().NoError(err)
	s.Equal(filepath.Join(s.TempDir(), "data.parquet"), res.Output)
	s.FileExists(res.Output)
}

func TestConversionThroughput(t *testing.T) {
	testutil.IntegrationTest(t)
	in := testutil.GenerateCSV(t, t.TempDir(), "large.csv", 20000)
	conv := newConverter(t, nil)

	testutil.NewPerformanceTest(t, "convert 20k rows").
		WithThroughputTarget(1000).
		Run(func() (int64, time.Duration) {
			res, err := conv.Convert(testutil.TestContext(t), in, "")
			if err != nil {
				t.Fatalf("convert: %v", err)
			}
			return int64(res.Rows), res.Duration
		})
}
