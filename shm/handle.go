// Package shm owns named shared-memory regions used to move large output
// payloads between the node and the daemon without copying, and the bounded
// reuse cache that amortizes the cost of creating them.
//
// Grounded on the teacher's shm package (AlephTX/aleph-tx/feeder/shm): a
// named file under /dev/shm, truncated to size and mmap'd MAP_SHARED. The
// mmap calls themselves go through golang.org/x/sys/unix instead of the
// teacher's raw syscall package — same technique, more portable flag
// surface (O_CLOEXEC) and consistent with how the rest of the example pack
// (e.g. aistore's ios package) reaches for x/sys/unix over syscall.
package shm

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

const shmDir = "/dev/shm"

// Handle owns one shared-memory region: a named, mmap'd byte slice. The
// region is mapped and writable for the entire time the handle is owned by
// the node; once handed to the daemon (i.e. after a successful send) it
// must not be mutated until its drop-token returns.
type Handle struct {
	osID string
	data []byte
}

// Create allocates a fresh shared-memory region of exactly capacity bytes,
// naming it with a process-unique identifier so the daemon (in a separate
// process) can open the same region by name.
func Create(capacity int) (*Handle, error) {
	osID := "dora-" + uuid.NewString()
	path := shmDir + "/" + osID

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_TRUNC|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	f := os.NewFile(uintptr(fd), path)
	defer f.Close()

	if err := unix.Ftruncate(fd, int64(capacity)); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("shm: truncate %s to %d: %w", path, capacity, err)
	}

	data, err := unix.Mmap(fd, 0, capacity, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}

	return &Handle{osID: osID, data: data}, nil
}

// OSID returns the shared-memory region's OS identifier, carried on the
// wire so a remote consumer can open the same region.
func (h *Handle) OSID() string {
	return h.osID
}

// Capacity returns the region's total size in bytes.
func (h *Handle) Capacity() int {
	return len(h.data)
}

// Bytes returns the full mapped region. Callers must not retain slices
// derived from it past Destroy.
func (h *Handle) Bytes() []byte {
	return h.data
}

// Destroy unmaps the region and removes its backing file. Calling it again
// on a destroyed handle is a no-op that returns nil; the handle must not be
// used otherwise afterward.
func (h *Handle) Destroy() error {
	if h.data == nil {
		return nil
	}
	err := unix.Munmap(h.data)
	h.data = nil
	os.Remove(shmDir + "/" + h.osID)
	return err
}

// Destroyed reports whether Destroy has already been called on this
// handle. Mainly useful for tests asserting that a handle's lifetime was
// actually ended, not just forgotten by whatever was tracking it.
func (h *Handle) Destroyed() bool {
	return h.data == nil
}
