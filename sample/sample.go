// Package sample implements DataSample: a write-once byte staging buffer
// used to build an output payload before it is finalized and handed to the
// control channel. Grounded on dora's own Rust DataSample (see
// original_source/apis/rust/node/src/node/mod.rs) but expressed as an
// idiomatic Go tagged struct rather than an enum-with-methods.
package sample

import (
	"github.com/DoraCN/dora/ids"
	"github.com/DoraCN/dora/shm"
)

// align is the alignment, in bytes, of inline heap-backed samples (spec §3).
const align = 128

// kind distinguishes the two backing stores a Sample may use.
type kind int

const (
	kindInline kind = iota
	kindShared
)

// Sample is a write-once byte region: either an aligned heap buffer (small
// payloads) or a shared-memory Handle (large payloads). Finalize consumes
// the sample; there is no way to obtain a mutable view afterward.
type Sample struct {
	k      kind
	length int
	inline []byte
	shared *shm.Handle
}

// NewInline wraps a freshly allocated, 128-byte-aligned heap buffer of
// exactly length bytes.
func NewInline(length int) *Sample {
	return &Sample{k: kindInline, length: length, inline: newAligned(length)}
}

// NewShared wraps a shared-memory handle whose capacity must be ≥ length.
func NewShared(h *shm.Handle, length int) *Sample {
	return &Sample{k: kindShared, length: length, shared: h}
}

// newAligned allocates a slice of length bytes whose backing array starts
// on an `align`-byte boundary, over-allocating and slicing forward as
// needed since Go's allocator gives no alignment guarantee for byte slices.
func newAligned(length int) []byte {
	buf := make([]byte, length+align)
	addr := uintptrOf(buf)
	pad := (align - int(addr%align)) % align
	return buf[pad : pad+length]
}

// Bytes returns the mutable slice view of exactly Len() bytes. Calling
// Bytes after Finalize is a programming error; Finalize consumes the
// sample so there is no longer a receiver to call it on.
func (s *Sample) Bytes() []byte {
	switch s.k {
	case kindShared:
		return s.shared.Bytes()[:s.length]
	default:
		return s.inline
	}
}

// Len returns the sample's logical length.
func (s *Sample) Len() int {
	return s.length
}

// IsShared reports whether the sample is backed by shared memory.
func (s *Sample) IsShared() bool {
	return s.k == kindShared
}

// Finalized is the one-shot consuming result of Finalize: either an inline
// payload ready to go straight on the wire, or a shared-memory reference
// plus the Handle the caller must track until its DropToken returns.
type Finalized struct {
	Inline []byte // nil when Shared is set
	Shared *SharedRef
}

// SharedRef is the wire-visible reference to a shared-memory payload.
type SharedRef struct {
	OSID   string
	Len    int
	Token  ids.DropToken
	Handle *shm.Handle // retained by the caller, not part of the wire message
}

// Finalize consumes the sample, yielding its wire-form payload. For a
// shared sample this mints a fresh DropToken (spec §4.1 step 3); the caller
// is responsible for tracking (token → handle) only after the send that
// carries this payload actually succeeds.
func (s *Sample) Finalize() Finalized {
	switch s.k {
	case kindShared:
		token := ids.NewDropToken()
		return Finalized{Shared: &SharedRef{
			OSID:   s.shared.OSID(),
			Len:    s.length,
			Token:  token,
			Handle: s.shared,
		}}
	default:
		return Finalized{Inline: s.inline}
	}
}
