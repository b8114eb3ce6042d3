package transport

import (
	"errors"
	"fmt"

	"github.com/DoraCN/dora/clock"
	"github.com/DoraCN/dora/wire"
)

// ErrProtocol marks a bootstrap failure in the shape of the daemon's reply
// (an explicit rejection or an empty/unexpected reply) as distinct from a
// failure to reach the daemon at all (spec.md §7: DaemonConnect vs
// DaemonReply). Callers can distinguish the two with errors.Is.
var ErrProtocol = errors.New("unexpected reply from daemon")

// DaemonLocalListenPortDefault is the TCP port a local daemon listens on
// for direct-connect bootstrap requests (spec.md §6). Arbitrary but fixed,
// so the direct-connect path is reproducible without external
// configuration.
const DaemonLocalListenPortDefault = 53290

// RequestNodeConfig performs the direct-connect bootstrap handshake of
// spec.md §6: dial the local daemon, send a NodeConfig request wrapped with
// an HLC timestamp, and expect exactly a NodeConfig reply — any other shape
// is a protocol error.
func RequestNodeConfig(addr string, nodeID string, hlc *clock.HLC) (wire.NodeConfig, error) {
	fc := dialFrameConn(addr)
	defer fc.close()

	req := wire.NodeConfigRequest{NodeID: nodeID, Timestamp: hlc.NewTimestamp()}
	if err := fc.writeJSON(req); err != nil {
		return wire.NodeConfig{}, fmt.Errorf("bootstrap: could not reach daemon at %s: %w", addr, err)
	}

	var reply wire.NodeConfigReply
	if err := fc.readJSON(&reply); err != nil {
		return wire.NodeConfig{}, fmt.Errorf("bootstrap: no reply from daemon at %s: %w", addr, err)
	}
	if reply.Error != "" {
		return wire.NodeConfig{}, fmt.Errorf("bootstrap: daemon rejected node %q: %s: %w", nodeID, reply.Error, ErrProtocol)
	}
	if reply.Ok == nil {
		return wire.NodeConfig{}, fmt.Errorf("bootstrap: unexpected empty reply from daemon at %s: %w", addr, ErrProtocol)
	}
	return *reply.Ok, nil
}
