package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinesEncoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewLinesEncoder(&buf)
	require.NoError(t, enc.Encode(map[string]interface{}{"id": 1, "name": "<b>"}))
	require.NoError(t, enc.Encode(map[string]interface{}{"id": 2, "name": nil}))
	assert.Equal(t, "{\"id\":1,\"name\":\"<b>\"}\n{\"id\":2,\"name\":null}\n", buf.String())
	assert.Equal(t, 2, enc.Count())

	assert.Error(t, enc.Encode(func() {}))
	assert.Equal(t, 2, enc.Count())
}

func TestWriteIndentedAndCompact(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteIndented(&buf, struct {
		A int `json:"a"`
	}{A: 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())

	out, err := Compact(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(out))

	var v map[string]int
	require.NoError(t, Unmarshal(out, &v))
	assert.Equal(t, 1, v["a"])
}
