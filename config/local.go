package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Local holds tunable overrides for running a node outside of `dora start`,
// e.g. against a locally spawned daemon during development. Structured and
// loaded the same way the teacher loads its exchange config
// (config/config.go: os.ReadFile + toml.Unmarshal).
type Local struct {
	DaemonAddr        string `toml:"daemon_addr"`
	ZeroCopyThreshold int    `toml:"zero_copy_threshold"`
	MaxCacheSize      int    `toml:"max_cache_size"`
}

// LoadLocal reads and parses a local TOML override file. A missing file is
// not an error — callers fall back to defaults.
func LoadLocal(path string) (*Local, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Local{}, nil
		}
		return nil, err
	}
	var l Local
	if err := toml.Unmarshal(b, &l); err != nil {
		return nil, err
	}
	return &l, nil
}
