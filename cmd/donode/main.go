// Command donode is a runnable example node, mirroring the shape of the
// teacher's own entrypoint (AlephTX/aleph-tx/feeder/main.go): load local
// configuration, bootstrap against the daemon, run until interrupted, and
// shut down cleanly.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/DoraCN/dora/config"
	"github.com/DoraCN/dora/ids"
	"github.com/DoraCN/dora/node"
	"github.com/DoraCN/dora/transport"
	"github.com/DoraCN/dora/wire"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("donode: could not load .env: %v", err)
	}

	localPath := "node.toml"
	if p := os.Getenv("DONODE_CONFIG"); p != "" {
		localPath = p
	}
	local, err := config.LoadLocal(localPath)
	if err != nil {
		log.Fatalf("donode: failed to load %s: %v", localPath, err)
	}

	daemonAddr := local.DaemonAddr
	if daemonAddr == "" {
		port := fmt.Sprint(transport.DaemonLocalListenPortDefault)
		if p := os.Getenv(config.EnvDaemonPort); p != "" {
			port = p
		}
		daemonAddr = "127.0.0.1:" + port
	}

	nodeID := ids.NodeId(os.Getenv("DONODE_NODE_ID"))
	if nodeID == "" {
		nodeID = "donode-example"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var opts []node.Option
	if local.ZeroCopyThreshold > 0 {
		opts = append(opts, node.WithZeroCopyThreshold(local.ZeroCopyThreshold))
	}

	core, events, err := node.InitFlexible(ctx, nodeID, daemonAddr, opts...)
	if err != nil {
		log.Fatalf("donode: init failed: %v", err)
	}
	defer core.Close()

	log.Printf("donode: node %s running in dataflow %s", core.Id(), core.DataflowId())

	go consumeEvents(ctx, events)
	runDemoOutputs(ctx, core)
}

// consumeEvents drains the inbound event stream until the node is
// cancelled. The stream's internal fan-in/backpressure policy is out of
// scope (spec.md §1); this just logs what arrives.
func consumeEvents(ctx context.Context, events transport.EventStream) {
	defer events.Close()
	for {
		ev, err := events.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("donode: event stream error: %v", err)
			return
		}
		if ev.Closed {
			return
		}
		log.Printf("donode: received input %q (%d bytes)", ev.InputID, len(ev.Payload))
	}
}

// runDemoOutputs sends a small heartbeat output every second until
// cancelled, exercising the send path end to end against a local daemon.
func runDemoOutputs(ctx context.Context, core *node.Core) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seq++
			payload := fmt.Sprintf("tick-%d", seq)
			err := core.SendOutputBytes(
				ids.DataId("heartbeat"),
				wire.Parameters{"seq": fmt.Sprint(seq)},
				len(payload),
				[]byte(payload),
			)
			if err != nil {
				log.Printf("donode: send failed: %v", err)
			}
		}
	}
}
