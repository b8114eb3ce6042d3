package node

import (
	"log"

	"github.com/DoraCN/dora/ids"
	"github.com/DoraCN/dora/sample"
	"github.com/DoraCN/dora/shm"
	"github.com/DoraCN/dora/transport"
	"github.com/DoraCN/dora/wire"
)

// Array is the size-query/copy contract this runtime needs from the
// Arrow-like typed-array encoder; the encoder itself is out of scope
// (spec.md §1). Grounded on the original implementation's
// `required_data_size`/`copy_array_into_sample` pair
// (original_source/apis/rust/node/src/node/mod.rs).
type Array interface {
	// RequiredSize returns the number of bytes needed to serialize the array.
	RequiredSize() int
	// CopyInto serializes the array into dst (len(dst) == RequiredSize())
	// and returns its type descriptor.
	CopyInto(dst []byte) wire.ArrowTypeInfo
}

// AllocateDataSample returns a writable Sample of exactly length bytes,
// backed by shared memory when length is at or above the zero-copy
// threshold, otherwise by an aligned heap buffer (spec.md §4.1).
func (c *Core) AllocateDataSample(length int) (*sample.Sample, error) {
	if length < c.threshold {
		return sample.NewInline(length), nil
	}
	h, err := c.allocateSharedMemory(length)
	if err != nil {
		return nil, err
	}
	return sample.NewShared(h, length), nil
}

// allocateSharedMemory takes a best-fit handle from the cache, or creates a
// fresh region when none fits (spec.md §4.2). Pending acknowledgements are
// drained first so that regions released since the last send are back in
// the cache before it is searched.
func (c *Core) allocateSharedMemory(length int) (*shm.Handle, error) {
	if err := c.HandleFinishedDropTokens(); err != nil {
		return nil, err
	}
	if h := c.cache.Take(length); h != nil {
		return h, nil
	}
	h, err := shm.Create(length)
	if err != nil {
		return nil, errf(ShmAlloc, "%w", err)
	}
	return h, nil
}

// SendOutputRaw allocates a sample of data_len bytes, invokes fill on its
// mutable slice, and sends it with a byte-array type descriptor (spec.md
// §4.1).
func (c *Core) SendOutputRaw(id ids.DataId, params wire.Parameters, dataLen int, fill func([]byte)) error {
	if !c.validateOutput(id) {
		return nil
	}
	s, err := c.AllocateDataSample(dataLen)
	if err != nil {
		return err
	}
	fill(s.Bytes())
	return c.sendOutputSample(id, wire.ByteArray(dataLen), params, s)
}

// SendOutputBytes copies data into a freshly allocated sample and sends it
// (spec.md §4.1).
func (c *Core) SendOutputBytes(id ids.DataId, params wire.Parameters, dataLen int, data []byte) error {
	if !c.validateOutput(id) {
		return nil
	}
	return c.SendOutputRaw(id, params, dataLen, func(dst []byte) {
		copy(dst, data)
	})
}

// SendOutput serializes the given Array into a freshly allocated sample of
// its required size and sends it with the type descriptor the array
// produces (spec.md §4.1).
func (c *Core) SendOutput(id ids.DataId, params wire.Parameters, arr Array) error {
	if !c.validateOutput(id) {
		return nil
	}
	total := arr.RequiredSize()
	s, err := c.AllocateDataSample(total)
	if err != nil {
		return err
	}
	typeInfo := arr.CopyInto(s.Bytes())
	return c.sendOutputSample(id, typeInfo, params, s)
}

// SendTypedOutput is like SendOutputRaw but the caller supplies the type
// descriptor directly (spec.md §4.1).
func (c *Core) SendTypedOutput(id ids.DataId, typeInfo wire.ArrowTypeInfo, params wire.Parameters, dataLen int, fill func([]byte)) error {
	if !c.validateOutput(id) {
		return nil
	}
	s, err := c.AllocateDataSample(dataLen)
	if err != nil {
		return err
	}
	fill(s.Bytes())
	return c.sendOutputSample(id, typeInfo, params, s)
}

// SendOutputSample is the unified send primitive every other send path
// funnels through (spec.md §4.1): drain acknowledgements, stamp metadata,
// finalize the sample, send, and track the resulting handle on success.
// A nil sample sends an empty payload.
func (c *Core) SendOutputSample(id ids.DataId, typeInfo wire.ArrowTypeInfo, params wire.Parameters, s *sample.Sample) error {
	if !c.validateOutput(id) {
		return nil
	}
	return c.sendOutputSample(id, typeInfo, params, s)
}

func (c *Core) sendOutputSample(id ids.DataId, typeInfo wire.ArrowTypeInfo, params wire.Parameters, s *sample.Sample) error {
	if err := c.HandleFinishedDropTokens(); err != nil {
		return err
	}

	metadata := wire.Metadata{
		Timestamp:  c.hlc.NewTimestamp(),
		TypeInfo:   typeInfo,
		Parameters: params,
	}

	var payload wire.DataMessage
	var finalized *sample.Finalized
	if s != nil {
		f := s.Finalize()
		finalized = &f
		if f.Inline != nil {
			payload.Inline = f.Inline
		} else if f.Shared != nil {
			payload.Shared = &wire.SharedMemoryRef{
				ShmOSID:   f.Shared.OSID,
				Len:       f.Shared.Len,
				DropToken: f.Shared.Token.String(),
			}
		}
	}

	if err := c.control.SendMessage(string(id), metadata, payload); err != nil {
		// The handle (if any) is released immediately, not tracked: it was
		// never handed to the daemon (spec.md §7, SendFailed).
		if finalized != nil && finalized.Shared != nil {
			finalized.Shared.Handle.Destroy()
		}
		return errf(SendFailed, "failed to send output %q: %w", id, err)
	}

	if finalized != nil && finalized.Shared != nil {
		c.tracker.Insert(finalized.Shared.Token, finalized.Shared.Handle)
	}
	return nil
}

// HandleFinishedDropTokens drains the drop-stream without blocking,
// returning released handles to the cache. Called at the top of every send
// (spec.md §4.3) so sustained output continuously recycles handles even
// without explicit polling. Fails with ChannelClosed if the stream
// disconnects while tokens are still outstanding.
func (c *Core) HandleFinishedDropTokens() error {
	for {
		token, state := c.dropStream.TryRecv()
		switch state {
		case transport.RecvToken:
			if h, ok := c.tracker.Take(token); ok {
				c.cache.Put(h)
			} else {
				log.Printf("node: received unknown drop token %s", token)
			}
		case transport.RecvEmpty:
			return nil
		default: // RecvDisconnected
			if c.tracker.Len() > 0 {
				return errf(ChannelClosed, "drop stream disconnected before all expected tokens arrived")
			}
			return nil
		}
	}
}
