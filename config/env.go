// Package config loads the daemon-supplied NodeConfig (spec.md §6) and
// parses the dataflow descriptor it carries, plus an optional local
// tunable-override file for the example binary. NodeConfig parsing uses
// gopkg.in/yaml.v3 (the daemon wire format is YAML); the local override
// file reuses the teacher's pelletier/go-toml/v2, the same way
// AlephTX/aleph-tx/feeder/config/config.go loads its exchange config.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/DoraCN/dora/wire"
)

// EnvNodeConfig is the environment variable a spawning daemon uses to pass
// a node its configuration (spec.md §6).
const EnvNodeConfig = "DORA_NODE_CONFIG"

// EnvDaemonPort overrides the default local daemon port for the
// direct-connect bootstrap path.
const EnvDaemonPort = "DORA_DAEMON_LOCAL_LISTEN_PORT_DEFAULT"

// ErrMissing marks DORA_NODE_CONFIG being unset (spec.md §7 ConfigMissing).
// Callers distinguish it from ErrParse with errors.Is, the same way
// transport.ErrProtocol lets node/core.go tell DaemonConnect apart from
// DaemonReply.
var ErrMissing = errors.New("node config environment variable is not set")

// ErrParse marks DORA_NODE_CONFIG being set but not valid YAML, or not
// matching the expected NodeConfig shape (spec.md §7 ConfigParse).
var ErrParse = errors.New("node config could not be parsed")

// LoadFromEnv reads and parses DORA_NODE_CONFIG. The returned error wraps
// ErrMissing if the variable is unset, ErrParse if it doesn't parse.
func LoadFromEnv() (wire.NodeConfig, error) {
	raw, ok := os.LookupEnv(EnvNodeConfig)
	if !ok {
		return wire.NodeConfig{}, fmt.Errorf("config: %s is not set; are you sure you're using `dora start`?: %w", EnvNodeConfig, ErrMissing)
	}
	var nc wire.NodeConfig
	if err := yaml.Unmarshal([]byte(raw), &nc); err != nil {
		return wire.NodeConfig{}, fmt.Errorf("config: failed to parse %s: %w: %w", EnvNodeConfig, err, ErrParse)
	}
	return nc, nil
}

// HasEnv reports whether DORA_NODE_CONFIG is set, used by the flexible
// init path to decide which bootstrap route to take.
func HasEnv() bool {
	_, ok := os.LookupEnv(EnvNodeConfig)
	return ok
}
