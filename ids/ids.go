// Package ids defines the opaque identifier types shared across the node
// runtime: dataflow/node/output identifiers and the drop-token used by the
// shared-memory handoff protocol.
package ids

import "github.com/google/uuid"

// NodeId identifies a single running node within a dataflow instance.
type NodeId string

// DataflowId identifies one running dataflow instance.
type DataflowId string

// DataId identifies one input or output on a node. DataId is orderable so
// that diagnostics (e.g. sorted warning output) are deterministic.
type DataId string

// Less reports whether d sorts before other.
func (d DataId) Less(other DataId) bool {
	return d < other
}

// DropToken is a process-unique, unforgeable token minted for every
// shm-backed output send. Its return over the drop-stream signals that
// every consumer has finished reading the associated region.
type DropToken struct {
	id uuid.UUID
}

// NewDropToken mints a fresh, process-unique drop token.
func NewDropToken() DropToken {
	return DropToken{id: uuid.New()}
}

// String renders the token for logging/diagnostics.
func (t DropToken) String() string {
	return t.id.String()
}

// IsZero reports whether t is the zero value (never minted).
func (t DropToken) IsZero() bool {
	return t.id == uuid.Nil
}

// ParseDropToken reconstructs a DropToken from its wire string form.
func ParseDropToken(s string) (DropToken, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return DropToken{}, err
	}
	return DropToken{id: id}, nil
}
