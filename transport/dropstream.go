package transport

import (
	"time"

	"github.com/DoraCN/dora/ids"
)

// RecvState is the tri-state result of a DropStream receive, mirroring
// spec.md §6's `try_recv() → Token | Empty | Disconnected` and
// `recv_timeout(duration) → Token | Timeout | Disconnected`.
type RecvState int

const (
	// RecvToken indicates a token was received; only meaningful alongside it.
	RecvToken RecvState = iota
	// RecvEmpty indicates try_recv found nothing currently available.
	RecvEmpty
	// RecvTimeout indicates recv_timeout's deadline elapsed with nothing available.
	RecvTimeout
	// RecvDisconnected indicates the stream will never deliver again.
	RecvDisconnected
)

// DropStream is the collaborator contract of spec.md §2/§6: inbound
// drop-token acknowledgements, with non-blocking and timed-blocking receive.
type DropStream interface {
	TryRecv() (ids.DropToken, RecvState)
	RecvTimeout(d time.Duration) (ids.DropToken, RecvState)
	IsEmpty() bool
	Close() error
}

type dropTokenFrame struct {
	DropToken string `json:"drop_token"`
}

// tcpDropStream reads newline-delimited {"drop_token": "..."} frames off a
// background goroutine into a buffered channel, so TryRecv/RecvTimeout never
// block on the socket itself.
type tcpDropStream struct {
	fc     *frameConn
	tokens chan ids.DropToken
	closed chan struct{}
}

// NewTCPDropStream dials (best-effort) the daemon's drop-stream address and
// starts the background reader.
func NewTCPDropStream(addr string) DropStream {
	ds := &tcpDropStream{
		fc:     dialFrameConn(addr),
		tokens: make(chan ids.DropToken, 256),
		closed: make(chan struct{}),
	}
	go ds.readLoop()
	return ds
}

func (ds *tcpDropStream) readLoop() {
	defer close(ds.closed)
	for {
		var frame dropTokenFrame
		if err := ds.fc.readJSON(&frame); err != nil {
			return
		}
		token, err := ids.ParseDropToken(frame.DropToken)
		if err != nil {
			continue
		}
		select {
		case ds.tokens <- token:
		case <-ds.closed:
			return
		}
	}
}

func (ds *tcpDropStream) TryRecv() (ids.DropToken, RecvState) {
	select {
	case token, ok := <-ds.tokens:
		if !ok {
			return ids.DropToken{}, RecvDisconnected
		}
		return token, RecvToken
	default:
	}
	select {
	case <-ds.closed:
		return ids.DropToken{}, RecvDisconnected
	default:
		return ids.DropToken{}, RecvEmpty
	}
}

func (ds *tcpDropStream) RecvTimeout(d time.Duration) (ids.DropToken, RecvState) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case token, ok := <-ds.tokens:
		if !ok {
			return ids.DropToken{}, RecvDisconnected
		}
		return token, RecvToken
	case <-ds.closed:
		return ids.DropToken{}, RecvDisconnected
	case <-timer.C:
		return ids.DropToken{}, RecvTimeout
	}
}

func (ds *tcpDropStream) IsEmpty() bool {
	return len(ds.tokens) == 0
}

func (ds *tcpDropStream) Close() error {
	return ds.fc.close()
}
