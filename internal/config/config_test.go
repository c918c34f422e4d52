package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsSelfConsistent(t *testing.T) {
	r := Default()

	assert.Equal(t, "info", r.Log.Level)
	assert.Equal(t, "console", r.Log.Format)
	assert.Greater(t, r.StreamBufferBytes, 0)
	assert.Greater(t, r.KillTimeoutMS, 0)
	assert.NotEmpty(t, r.RPC.ListenAddress)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mqloopd.yaml")
	yamlContent := `
log:
  level: debug
  format: json
streamBufferBytes: 4096
rpc:
  listenAddress: "0.0.0.0:9999"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	r, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", r.Log.Level)
	assert.Equal(t, "json", r.Log.Format)
	assert.Equal(t, 4096, r.StreamBufferBytes)
	assert.Equal(t, "0.0.0.0:9999", r.RPC.ListenAddress)
	// killTimeoutMs was not in the file, so the default survives.
	assert.Equal(t, Default().KillTimeoutMS, r.KillTimeoutMS)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
