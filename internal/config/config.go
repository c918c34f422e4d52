// Package config loads mqloopd's runtime configuration from a YAML file,
// grounded on the teacher's cmd/warren/apply.go (os.ReadFile +
// yaml.Unmarshal into a plain tagged struct).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvimrt/mqloop/watcher"
)

// Runtime holds mqloopd's ambient knobs: logging, stream buffer sizing,
// process kill escalation timing, and the RPC channel listen address.
// cmd/mqloopd applies KillTimeoutMS and RPC.ListenAddress; Log and
// StreamBufferBytes are loaded but not applied (logging is set from the
// --log-level/--log-json flags, and watcher.Process reads its streams with
// a fixed 32KiB buffer).
type Runtime struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // "console" or "json"
	} `yaml:"log"`

	StreamBufferBytes int `yaml:"streamBufferBytes"`

	KillTimeoutMS int `yaml:"killTimeoutMs"`

	RPC struct {
		ListenAddress string `yaml:"listenAddress"`
	} `yaml:"rpc"`
}

// Default returns the configuration mqloopd runs with absent a config
// file: console logging at info level, a 32KiB stream buffer, the
// reference KILL_TIMEOUT_MS, and the RPC channel listening on localhost.
func Default() Runtime {
	var r Runtime
	r.Log.Level = "info"
	r.Log.Format = "console"
	r.StreamBufferBytes = 32 * 1024
	r.KillTimeoutMS = watcher.KillTimeoutMS
	r.RPC.ListenAddress = "127.0.0.1:7650"
	return r
}

// Load reads and parses a YAML runtime configuration file, filling in
// Default's values for anything the file leaves zero.
func Load(path string) (Runtime, error) {
	r := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Runtime{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &r); err != nil {
		return Runtime{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if r.StreamBufferBytes <= 0 {
		r.StreamBufferBytes = Default().StreamBufferBytes
	}
	if r.KillTimeoutMS <= 0 {
		r.KillTimeoutMS = Default().KillTimeoutMS
	}

	return r, nil
}

// KillTimeout returns KillTimeoutMS as a time.Duration.
func (r Runtime) KillTimeout() time.Duration {
	return time.Duration(r.KillTimeoutMS) * time.Millisecond
}
