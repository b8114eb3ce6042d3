package transport

import (
	"context"
	"fmt"

	"github.com/DoraCN/dora/wire"
)

// Event is one inbound message delivered by the daemon. Merging multiple
// input sources, backpressure and close semantics beyond the sentinel below
// are out of scope (spec.md §1) — only the shape matters here.
type Event struct {
	InputID  string
	Metadata wire.Metadata
	Payload  []byte
	Closed   bool // true once the stream has no more events to deliver
}

// EventStream is the collaborator contract for inbound message delivery
// (spec.md §2). Internals of how the daemon fans inputs into this stream
// are out of scope; only Recv's blocking-with-cancellation contract is
// specified here.
type EventStream interface {
	Recv(ctx context.Context) (Event, error)
	Close() error
}

type eventFrame struct {
	InputID  string        `json:"input_id"`
	Metadata wire.Metadata `json:"metadata"`
	Payload  []byte        `json:"payload"`
	Closed   bool          `json:"closed"`
}

// tcpEventStream reads newline-delimited event frames from the daemon.
type tcpEventStream struct {
	fc *frameConn
}

// NewTCPEventStream dials (best-effort) the daemon's event-stream address.
func NewTCPEventStream(addr string) EventStream {
	return &tcpEventStream{fc: dialFrameConn(addr)}
}

func (es *tcpEventStream) Recv(ctx context.Context) (Event, error) {
	type result struct {
		frame eventFrame
		err   error
	}
	done := make(chan result, 1)
	go func() {
		var f eventFrame
		err := es.fc.readJSON(&f)
		done <- result{frame: f, err: err}
	}()

	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return Event{}, fmt.Errorf("eventstream: recv: %w", r.err)
		}
		return Event{InputID: r.frame.InputID, Metadata: r.frame.Metadata, Payload: r.frame.Payload, Closed: r.frame.Closed}, nil
	}
}

func (es *tcpEventStream) Close() error {
	return es.fc.close()
}
