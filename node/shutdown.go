package node

import (
	"log"
	"time"

	"github.com/DoraCN/dora/transport"
)

// shutdownDrainTick is the bounded blocking-receive timeout used while
// draining outstanding drop tokens at shutdown (spec.md §4.3/§6).
const shutdownDrainTick = 2 * time.Second

// Close performs the shutdown handshake of spec.md §4.3: best-effort close
// of every active output, a bounded drain of outstanding drop tokens (each
// wait capped at shutdownDrainTick), and a best-effort "outputs done"
// report. It always returns within bounded time, even if a downstream
// consumer never acknowledges — Go has no destructor to run this
// automatically (unlike the original Rust `impl Drop`), so callers must
// `defer core.Close()` themselves (see DESIGN.md).
//
// Close never returns an error: every failure along the drain is logged,
// not propagated, matching spec.md §7 ("shutdown errors are logged only").
func (c *Core) Close() {
	c.closeAllOutputs()
	c.drainDropTokens()
	c.reportOutputsDone()
	c.tracker.DestroyAll()
	c.cache.Drain()
}

func (c *Core) closeAllOutputs() {
	if len(c.outputs) == 0 {
		return
	}
	if err := c.CloseOutputs(c.Outputs()); err != nil {
		log.Printf("node: failed to close outputs on shutdown: %v", err)
	}
}

func (c *Core) drainDropTokens() {
	for c.tracker.Len() > 0 {
		if c.dropStream.IsEmpty() {
			log.Printf("node: waiting for %d remaining drop tokens", c.tracker.Len())
		}

		token, state := c.dropStream.RecvTimeout(shutdownDrainTick)
		switch state {
		case transport.RecvToken:
			// Destroyed directly rather than returned to the cache: the
			// cache itself is about to be drained, so there is nothing
			// left to recycle into.
			if h, ok := c.tracker.Take(token); ok {
				h.Destroy()
			}
		case transport.RecvTimeout:
			log.Printf("node: timeout while waiting for drop tokens; %d shared memory regions may not have been released", c.tracker.Len())
			return
		default: // RecvDisconnected
			log.Printf("node: drop stream disconnected while waiting for drop tokens; %d shared memory regions may not have been released", c.tracker.Len())
			return
		}
	}
}

func (c *Core) reportOutputsDone() {
	if err := c.control.ReportOutputsDone(); err != nil {
		log.Printf("node: failed to report outputs done: %v", err)
	}
}
