// Package testutil provides helpers shared by pql tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// TestLogger creates a logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a context with a 30-second timeout that is
// cancelled when the test ends.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// WriteFile writes content to dir/name and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// GenerateCSV writes a CSV file with a header and rows deterministic
// records covering every column type, including nulls and a low
// cardinality column.
func GenerateCSV(t *testing.T, dir, name string, rows int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("id,name,score,active,category\n")
	categories := []string{"red", "green", "blue"}
	for i := 0; i < rows; i++ {
		score := fmt.Sprintf("%.2f", float64(i)*1.25)
		if i%10 == 3 {
			score = "NA"
		}
		fmt.Fprintf(&b, "%d,Record_%d,%s,%t,%s\n", i, i, score, i%2 == 0, categories[i%len(categories)])
	}
	return WriteFile(t, dir, name, b.String())
}

// TempFiles lists leftover temporary outputs in dir.
func TempFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".pql-*.tmp"))
	require.NoError(t, err)
	return matches
}
