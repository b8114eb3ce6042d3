// Package wire defines the message shapes exchanged with the daemon over
// the control channel, the drop stream and the event stream. Encoding
// itself (newline-delimited JSON frames) lives in package transport; this
// package only defines the shapes, matching spec.md §6's "Metadata wire
// shape" and §3's NodeConfig description.
package wire

import "github.com/DoraCN/dora/clock"

// ArrowTypeInfo is the type descriptor carried alongside every output.
// Only the byte-array shape is produced by this repo's send paths — the
// Arrow-like typed-array encoder itself is out of scope (spec.md §1); Kind
// and Len are its size-query contract.
type ArrowTypeInfo struct {
	Kind string `json:"kind"`
	Len  int    `json:"len"`
}

// ByteArray builds the type descriptor for a raw byte-array payload of the
// given length.
func ByteArray(length int) ArrowTypeInfo {
	return ArrowTypeInfo{Kind: "byte_array", Len: length}
}

// Parameters are user-supplied tags attached to an output message.
type Parameters map[string]string

// Metadata is bound to every output send: a fresh HLC timestamp, the type
// descriptor, and caller-supplied parameters (spec.md §6).
type Metadata struct {
	Timestamp  clock.Timestamp `json:"timestamp"`
	TypeInfo   ArrowTypeInfo   `json:"type_info"`
	Parameters Parameters      `json:"parameters"`
}

// SharedMemoryRef is the wire reference to a shared-memory-backed payload.
type SharedMemoryRef struct {
	ShmOSID string `json:"shm_os_id"`
	Len     int    `json:"len"`
	// DropToken is carried as its string form on the wire; the node side
	// reconstructs an ids.DropToken for map lookups via transport's codec.
	DropToken string `json:"drop_token"`
}

// DataMessage is the payload half of an output send: either inline bytes or
// a shared-memory reference. At most one of the two fields is set.
type DataMessage struct {
	Inline []byte           `json:"inline,omitempty"`
	Shared *SharedMemoryRef `json:"shared,omitempty"`
}

// NodeConfig is the daemon-supplied configuration for one node, delivered
// either inline via DORA_NODE_CONFIG or fetched over TCP at bootstrap
// (spec.md §6).
type NodeConfig struct {
	DataflowID            string         `yaml:"dataflow_id"`
	NodeID                string         `yaml:"node_id"`
	RunConfig             NodeRunConfig  `yaml:"run_config"`
	DaemonCommunication   DaemonComm     `yaml:"daemon_communication"`
	DataflowDescriptorRaw map[string]any `yaml:"dataflow_descriptor"`
}

// NodeRunConfig declares a node's recognized inputs and its (mutable) set
// of active outputs (spec.md §3).
type NodeRunConfig struct {
	Inputs  []string `yaml:"inputs"`
	Outputs []string `yaml:"outputs"`
}

// DaemonComm describes how to reach the daemon for the control channel,
// drop stream and event stream. Transport internals are out of scope
// (spec.md §1); only the address is needed here.
type DaemonComm struct {
	ControlAddr string `yaml:"control_addr"`
	DropAddr    string `yaml:"drop_addr"`
	EventAddr   string `yaml:"event_addr"`
}

// NodeConfigRequest is the bootstrap request sent to the daemon when
// initializing from a bare NodeId (spec.md §6).
type NodeConfigRequest struct {
	NodeID    string          `json:"node_id"`
	Timestamp clock.Timestamp `json:"timestamp"`
}

// NodeConfigReply is the daemon's reply to a NodeConfigRequest.
type NodeConfigReply struct {
	Ok    *NodeConfig `json:"ok,omitempty"`
	Error string      `json:"error,omitempty"`
}
