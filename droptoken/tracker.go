// Package droptoken implements the DropTokenTracker: the producer-owned
// mapping from outstanding DropToken to the shared-memory Handle that must
// stay mapped until that token comes back over the drop-stream.
package droptoken

import (
	"github.com/DoraCN/dora/ids"
	"github.com/DoraCN/dora/shm"
)

// Tracker maps DropToken → *shm.Handle for every shm-backed send whose
// acknowledgement hasn't arrived yet. Not safe for concurrent use; owned
// exclusively by NodeCore.
type Tracker struct {
	outstanding map[ids.DropToken]*shm.Handle
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{outstanding: make(map[ids.DropToken]*shm.Handle)}
}

// Insert records that token must stay alive until it is acknowledged.
func (t *Tracker) Insert(token ids.DropToken, h *shm.Handle) {
	t.outstanding[token] = h
}

// Take removes and returns the handle for token, or (nil, false) if the
// token is unknown (e.g. a protocol-desync double-acknowledgement).
func (t *Tracker) Take(token ids.DropToken) (*shm.Handle, bool) {
	h, ok := t.outstanding[token]
	if ok {
		delete(t.outstanding, token)
	}
	return h, ok
}

// Len reports the number of outstanding (unacknowledged) tokens.
func (t *Tracker) Len() int {
	return len(t.outstanding)
}

// Outstanding returns a snapshot of the handles currently tracked, without
// removing them. Used by tests that need to assert on a handle's fate
// after the tracker itself has been drained.
func (t *Tracker) Outstanding() []*shm.Handle {
	out := make([]*shm.Handle, 0, len(t.outstanding))
	for _, h := range t.outstanding {
		out = append(out, h)
	}
	return out
}

// DestroyAll destroys every handle still outstanding and empties the
// tracker. Go has no destructor to run this when the map goes out of
// scope the way the original Rust HashMap<DropToken, ShmemHandle> does
// (spec.md §4.3: "Any ShmHandles still held at break are destroyed by the
// tracker going out of scope"), so callers must invoke this explicitly —
// NodeCore.Close calls it after every shutdown drain; entries remain for it
// to destroy only when the drain gave up on a timeout or disconnect.
func (t *Tracker) DestroyAll() {
	for token, h := range t.outstanding {
		h.Destroy()
		delete(t.outstanding, token)
	}
}
