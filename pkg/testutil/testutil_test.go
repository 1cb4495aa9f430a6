package testutil

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCSV(t *testing.T) {
	path := GenerateCSV(t, t.TempDir(), "gen.csv", 20)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 21)
	assert.Equal(t, "id,name,score,active,category", lines[0])
	assert.Equal(t, "3,Record_3,NA,false,red", lines[4])
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2<<20))
}

func TestTempFiles(t *testing.T) {
	dir := t.TempDir()
	WriteFile(t, dir, ".pql-123.tmp", "x")
	WriteFile(t, dir, "keep.pql", "x")
	assert.Len(t, TempFiles(t, dir), 1)
}
