package configx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Addr    string `json:"addr" yaml:"addr"`
	Enabled *bool  `json:"enabled" yaml:"enabled"`
}

func TestLoadFile_ByExtension(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "cfg.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"addr":":1","enabled":true}`), 0o600))

	yamlPath := filepath.Join(dir, "cfg.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("addr: \":2\"\nenabled: false\n"), 0o600))

	var j sample
	require.NoError(t, LoadFile(jsonPath, &j))
	assert.Equal(t, ":1", j.Addr)
	require.NotNil(t, j.Enabled)
	assert.True(t, *j.Enabled)

	var y sample
	require.NoError(t, LoadFile(yamlPath, &y))
	assert.Equal(t, ":2", y.Addr)
	require.NotNil(t, y.Enabled)
	assert.False(t, *y.Enabled)
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{ nope`), 0o600))

	var s sample
	assert.Error(t, LoadFile(bad, &s))
	assert.Error(t, LoadFile(filepath.Join(dir, "missing.yaml"), &s))
}

func TestSetters(t *testing.T) {
	s := "keep"
	SetString(&s, "")
	assert.Equal(t, "keep", s)
	SetString(&s, "new")
	assert.Equal(t, "new", s)

	b := true
	SetBool(&b, nil)
	assert.True(t, b)
	f := false
	SetBool(&b, &f)
	assert.False(t, b)
}
