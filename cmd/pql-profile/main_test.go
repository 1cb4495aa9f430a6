package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/pql/pkg/format"
	"github.com/ajitpratap0/pql/pkg/testutil"
)

func TestParseProfileTypes(t *testing.T) {
	assert.Equal(t, []string{"cpu", "memory"}, parseProfileTypes("cpu, mem,bogus"))
	assert.Equal(t, profileNames, parseProfileTypes("all"))
	assert.Empty(t, parseProfileTypes(""))
}

func TestRunWritesProfiles(t *testing.T) {
	dir := t.TempDir()
	err := run(testutil.TestContext(t), options{
		rows:       500,
		format:     "pql",
		iterations: 2,
		outputDir:  dir,
		types:      []string{"memory", "goroutine"},
	})
	require.NoError(t, err)

	for _, name := range []string{"generated.csv", "out.pql", "mem.prof", "goroutine.prof"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	_, err = os.Stat(filepath.Join(dir, "cpu.prof"))
	assert.True(t, os.IsNotExist(err))

	r, err := format.OpenFile(filepath.Join(dir, "out.pql"))
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, int64(500), r.NumRows())
	assert.Equal(t, []string{"id", "name", "score", "active", "region", "note"}, r.Schema().Names())
}
