package json

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

func TestMarshalUnmarshal(t *testing.T) {
	in := embedRequest{Model: "text-embedding-3-small", Input: []string{"你好", "world"}, Dimensions: 512}

	data, err := Marshal(in)
	require.NoError(t, err)

	var out embedRequest
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestOmitEmpty(t *testing.T) {
	b, err := Marshal(embedRequest{Model: "m"})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "dimensions")
}

func TestStableMapOrder(t *testing.T) {
	m := map[string]int{"k": 1, "a": 2, "m": 3}
	first, err := Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"k":1,"m":3}`, string(first), "map 键按字典序输出")
}

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(map[string]int{"k": 5}))

	var out map[string]int
	require.NoError(t, NewDecoder(&buf).Decode(&out))
	assert.Equal(t, 5, out["k"])
}

func TestUsingSonic(t *testing.T) {
	want := runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64"
	assert.Equal(t, want, UsingSonic())
}
