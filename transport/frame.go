// Package transport implements the collaborator contracts spec.md §2/§6
// treat as external: ControlChannel, DropStream and EventStream. It ships
// one concrete implementation — newline-delimited JSON frames over TCP —
// grounded directly on the teacher's own IPC client
// (AlephTX/aleph-tx/feeder/ipc/publisher.go): dial, best-effort reconnect,
// append '\n', write, retry a bounded number of times.
package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

// frameConn is a line-delimited JSON connection with teacher-style
// best-effort reconnect. It is the shared plumbing behind ControlChannel,
// DropStream and the bootstrap request/reply exchange.
type frameConn struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

func dialFrameConn(addr string) *frameConn {
	fc := &frameConn{addr: addr}
	fc.dial() // best-effort; the daemon may not be listening yet
	return fc
}

func (fc *frameConn) dial() {
	conn, err := net.DialTimeout("tcp", fc.addr, 3*time.Second)
	if err != nil {
		return
	}
	fc.mu.Lock()
	fc.conn = conn
	fc.r = bufio.NewReader(conn)
	fc.mu.Unlock()
}

// writeJSON marshals v, appends a newline and writes it, reconnecting and
// retrying a bounded number of times on failure — the same retry budget
// and backoff the teacher's Publish uses.
func (fc *frameConn) writeJSON(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("transport: marshal: %w", err)
	}
	body = append(body, '\n')

	fc.mu.Lock()
	defer fc.mu.Unlock()

	for attempt := 0; attempt < 3; attempt++ {
		if fc.conn == nil {
			fc.mu.Unlock()
			time.Sleep(250 * time.Millisecond)
			fc.mu.Lock()
			conn, err := net.DialTimeout("tcp", fc.addr, 3*time.Second)
			if err != nil {
				continue
			}
			fc.conn = conn
			fc.r = bufio.NewReader(conn)
		}
		if _, err := fc.conn.Write(body); err != nil {
			fc.conn.Close()
			fc.conn = nil
			fc.r = nil
			continue
		}
		return nil
	}
	return fmt.Errorf("transport: failed to reach %s after retries", fc.addr)
}

// readJSON blocks until one newline-delimited JSON frame arrives, or
// returns an error if the connection is down/closed.
func (fc *frameConn) readJSON(v any) error {
	fc.mu.Lock()
	r := fc.r
	fc.mu.Unlock()
	if r == nil {
		return fmt.Errorf("transport: not connected to %s", fc.addr)
	}
	line, err := r.ReadBytes('\n')
	if err != nil {
		fc.mu.Lock()
		if fc.conn != nil {
			fc.conn.Close()
		}
		fc.conn = nil
		fc.r = nil
		fc.mu.Unlock()
		return fmt.Errorf("transport: read from %s: %w", fc.addr, err)
	}
	return json.Unmarshal(line, v)
}

func (fc *frameConn) close() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.conn == nil {
		return nil
	}
	err := fc.conn.Close()
	fc.conn = nil
	fc.r = nil
	return err
}
