package node

import (
	"sync"
	"time"

	"github.com/DoraCN/dora/clock"
	"github.com/DoraCN/dora/droptoken"
	"github.com/DoraCN/dora/ids"
	"github.com/DoraCN/dora/shm"
	"github.com/DoraCN/dora/transport"
	"github.com/DoraCN/dora/wire"
)

// fakeControl is an in-memory ControlChannel that records every call,
// standing in for the transport collaborator the way spec.md §2 treats it:
// an interface boundary, not a concrete socket.
type fakeControl struct {
	mu            sync.Mutex
	sent          []sentMessage
	closedOutputs [][]string
	outputsDone   int
	sendErr       error
}

type sentMessage struct {
	id       string
	metadata wire.Metadata
	payload  wire.DataMessage
}

func (f *fakeControl) SendMessage(outputID string, metadata wire.Metadata, payload wire.DataMessage) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{id: outputID, metadata: metadata, payload: payload})
	return nil
}

func (f *fakeControl) ReportClosedOutputs(outputIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedOutputs = append(f.closedOutputs, append([]string(nil), outputIDs...))
	return nil
}

func (f *fakeControl) ReportOutputsDone() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputsDone++
	return nil
}

func (f *fakeControl) Close() error { return nil }

func (f *fakeControl) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeDropStream is a manually-fed DropStream: tests push tokens (or leave
// it empty/stalled) to drive the exact scenarios spec.md §8 describes.
type fakeDropStream struct {
	mu           sync.Mutex
	pending      []ids.DropToken
	disconnected bool
	stall        bool // when true, RecvTimeout always times out instead of disconnecting
}

func (f *fakeDropStream) push(token ids.DropToken) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, token)
}

func (f *fakeDropStream) TryRecv() (ids.DropToken, transport.RecvState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) > 0 {
		token := f.pending[0]
		f.pending = f.pending[1:]
		return token, transport.RecvToken
	}
	if f.disconnected {
		return ids.DropToken{}, transport.RecvDisconnected
	}
	return ids.DropToken{}, transport.RecvEmpty
}

func (f *fakeDropStream) RecvTimeout(d time.Duration) (ids.DropToken, transport.RecvState) {
	f.mu.Lock()
	if len(f.pending) > 0 {
		token := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return token, transport.RecvToken
	}
	stalled := f.stall
	disconnected := f.disconnected
	f.mu.Unlock()

	if stalled {
		time.Sleep(d)
		return ids.DropToken{}, transport.RecvTimeout
	}
	if disconnected {
		return ids.DropToken{}, transport.RecvDisconnected
	}
	time.Sleep(d)
	return ids.DropToken{}, transport.RecvTimeout
}

func (f *fakeDropStream) IsEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending) == 0
}

func (f *fakeDropStream) Close() error { return nil }

// newTestCore builds a Core wired to in-memory fakes instead of real TCP
// transports, with the given outputs active.
func newTestCore(outputs []string) (*Core, *fakeControl, *fakeDropStream) {
	control := &fakeControl{}
	dropStream := &fakeDropStream{}

	outSet := make(map[ids.DataId]struct{}, len(outputs))
	for _, o := range outputs {
		outSet[ids.DataId(o)] = struct{}{}
	}

	core := &Core{
		id:         "test-node",
		dataflowID: "test-dataflow",
		outputs:    outSet,
		control:    control,
		dropStream: dropStream,
		hlc:        clock.New(),
		tracker:    droptoken.New(),
		cache:      shm.NewCache(),
		threshold:  ZeroCopyThreshold,
		warned:     make(map[ids.DataId]struct{}),
	}
	return core, control, dropStream
}
