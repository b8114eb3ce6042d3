// Package node implements NodeCore: the top-level object a user program
// talks to in order to read its configuration, allocate and send outputs,
// and shut down cleanly. It composes shm.Cache, droptoken.Tracker,
// sample.Sample and a ControlChannel/DropStream pair exactly as spec.md §2
// describes, generalizing the teacher's single main.go wiring
// (AlephTX/aleph-tx/feeder/main.go) into a reusable library type.
package node

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/DoraCN/dora/clock"
	"github.com/DoraCN/dora/config"
	"github.com/DoraCN/dora/droptoken"
	"github.com/DoraCN/dora/ids"
	"github.com/DoraCN/dora/shm"
	"github.com/DoraCN/dora/transport"
	"github.com/DoraCN/dora/wire"
)

// ZeroCopyThreshold is the payload size, in bytes, at and above which
// allocate_data_sample switches from an aligned heap buffer to shared
// memory (spec.md §3/§6). 4096 is a typical page size: sub-page messages
// are cheaper to carry inline than to pay shm's syscall overhead for.
const ZeroCopyThreshold = 4096

// Core is the node-side runtime object. All of its methods assume
// single-actor access: the send path, the drop-token tracker, the shm
// cache, the warned-output set and the active-output set are touched only
// from the goroutine that owns the Core, so none of them carry their own
// locks (spec.md §5).
type Core struct {
	id         ids.NodeId
	dataflowID ids.DataflowId
	inputs     []string
	outputs    map[ids.DataId]struct{}

	control    transport.ControlChannel
	dropStream transport.DropStream
	hlc        *clock.HLC
	tracker    *droptoken.Tracker
	cache      *shm.Cache
	driver     *Driver

	threshold int

	descriptor    config.Descriptor
	descriptorErr error

	warned map[ids.DataId]struct{}
}

// Option customizes construction.
type Option func(*options)

type options struct {
	threshold int
	workers   int
	driver    *Driver
	metrics   MetricsFunc
}

// MetricsFunc is an optional background hook run on the node's task driver,
// the spot the original implementation's `#[cfg(feature = "metrics")]`
// monitor task occupies (see SPEC_FULL.md §12). No metrics library is
// wired — metrics subsystems are out of scope (spec.md §1) — this is just
// the slot a caller can plug one into.
type MetricsFunc func(ctx context.Context) error

// WithMetrics schedules fn on the node's background task driver once
// construction completes.
func WithMetrics(fn MetricsFunc) Option {
	return func(o *options) { o.metrics = fn }
}

// WithZeroCopyThreshold overrides the default zero-copy size threshold.
func WithZeroCopyThreshold(n int) Option {
	return func(o *options) { o.threshold = n }
}

// WithWorkers overrides the background task driver's worker budget.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithDriver supplies an ambient background task driver instead of letting
// the Core create its own (spec.md §5: "adopts an ambient task driver if
// one exists").
func WithDriver(d *Driver) Option {
	return func(o *options) { o.driver = d }
}

func resolveOptions(opts []Option) options {
	o := options{threshold: ZeroCopyThreshold, workers: minWorkers}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

// InitFromEnv initializes a node from the daemon-supplied NodeConfig
// carried in DORA_NODE_CONFIG (spec.md §6). This is the recommended
// initialization path for nodes spawned by `dora start`.
func InitFromEnv(ctx context.Context, opts ...Option) (*Core, transport.EventStream, error) {
	nc, err := config.LoadFromEnv()
	if err != nil {
		if errors.Is(err, config.ErrMissing) {
			return nil, nil, errf(ConfigMissing, "%w", err)
		}
		return nil, nil, errf(ConfigParse, "%w", err)
	}
	return Init(ctx, nc, opts...)
}

// InitFromNodeID connects to the local daemon over TCP and requests a
// NodeConfig for the given NodeId (spec.md §6). Used for dynamic nodes
// started outside of `dora start`.
func InitFromNodeID(ctx context.Context, id ids.NodeId, daemonAddr string, opts ...Option) (*Core, transport.EventStream, error) {
	hlc := clock.New()
	nc, err := transport.RequestNodeConfig(daemonAddr, string(id), hlc)
	if err != nil {
		if errors.Is(err, transport.ErrProtocol) {
			return nil, nil, errf(DaemonReply, "%w", err)
		}
		return nil, nil, errf(DaemonConnect, "%w", err)
	}
	return initWithClock(ctx, nc, hlc, opts...)
}

// InitFlexible prefers InitFromEnv when DORA_NODE_CONFIG is set, falling
// back to InitFromNodeID otherwise (spec.md §4.1).
func InitFlexible(ctx context.Context, id ids.NodeId, daemonAddr string, opts ...Option) (*Core, transport.EventStream, error) {
	if config.HasEnv() {
		log.Printf("node: %s specified at the call site is ignored in favor of %s", id, config.EnvNodeConfig)
		return InitFromEnv(ctx, opts...)
	}
	return InitFromNodeID(ctx, id, daemonAddr, opts...)
}

// Init builds a Core directly from an already-obtained NodeConfig. Exposed
// for callers (and tests) that construct NodeConfig themselves rather than
// going through env or the daemon handshake.
func Init(ctx context.Context, nc wire.NodeConfig, opts ...Option) (*Core, transport.EventStream, error) {
	return initWithClock(ctx, nc, clock.New(), opts...)
}

func initWithClock(ctx context.Context, nc wire.NodeConfig, hlc *clock.HLC, opts ...Option) (*Core, transport.EventStream, error) {
	o := resolveOptions(opts)

	driver := o.driver
	if driver == nil {
		driver = NewDriver(ctx, o.workers)
	}

	outputs := make(map[ids.DataId]struct{}, len(nc.RunConfig.Outputs))
	for _, id := range nc.RunConfig.Outputs {
		outputs[ids.DataId(id)] = struct{}{}
	}

	descriptor, descErr := config.ParseDescriptor(nc.DataflowDescriptorRaw)

	control := transport.NewTCPControlChannel(nc.DaemonCommunication.ControlAddr)
	dropStream := transport.NewTCPDropStream(nc.DaemonCommunication.DropAddr)
	eventStream := transport.NewTCPEventStream(nc.DaemonCommunication.EventAddr)

	core := &Core{
		id:            ids.NodeId(nc.NodeID),
		dataflowID:    ids.DataflowId(nc.DataflowID),
		inputs:        append([]string(nil), nc.RunConfig.Inputs...),
		outputs:       outputs,
		control:       control,
		dropStream:    dropStream,
		hlc:           hlc,
		tracker:       droptoken.New(),
		cache:         shm.NewCache(),
		driver:        driver,
		threshold:     o.threshold,
		descriptor:    descriptor,
		descriptorErr: descErr,
		warned:        make(map[ids.DataId]struct{}),
	}
	if o.metrics != nil {
		driver.Go(func() error { return o.metrics(driver.Context()) })
	}
	return core, eventStream, nil
}

// Id returns the node's identifier.
func (c *Core) Id() ids.NodeId { return c.id }

// DataflowId returns the running dataflow instance's identifier.
func (c *Core) DataflowId() ids.DataflowId { return c.dataflowID }

// Inputs returns the node's declared inputs.
func (c *Core) Inputs() []string { return append([]string(nil), c.inputs...) }

// Outputs returns the node's currently active outputs.
func (c *Core) Outputs() []ids.DataId {
	out := make([]ids.DataId, 0, len(c.outputs))
	for id := range c.outputs {
		out = append(out, id)
	}
	return out
}

// DataflowDescriptor returns the parsed dataflow descriptor, or a
// DescriptorUnavailable error if it failed to parse (spec.md §4.1).
func (c *Core) DataflowDescriptor() (config.Descriptor, error) {
	if c.descriptorErr != nil {
		return config.Descriptor{}, errf(DescriptorUnavailable, "%w", c.descriptorErr)
	}
	return c.descriptor, nil
}

// validateOutput reports whether id is currently active. If not, it warns
// exactly once per id across the node's lifetime (spec.md §8 invariant 4)
// and returns false, meaning the caller should treat the send as a no-op.
func (c *Core) validateOutput(id ids.DataId) bool {
	if _, ok := c.outputs[id]; ok {
		return true
	}
	if _, warned := c.warned[id]; !warned {
		log.Printf("node: ignoring output %q not in node's output list", id)
		c.warned[id] = struct{}{}
	}
	return false
}

// CloseOutputs removes each id from the active-output set and reports the
// closure to the daemon. Fails with UnknownOutput if any id is not
// currently active (spec.md §4.1).
func (c *Core) CloseOutputs(outputIDs []ids.DataId) error {
	for _, id := range outputIDs {
		if _, ok := c.outputs[id]; !ok {
			return errf(UnknownOutput, "unknown output %q", id)
		}
	}
	for _, id := range outputIDs {
		delete(c.outputs, id)
	}

	raw := make([]string, len(outputIDs))
	for i, id := range outputIDs {
		raw[i] = string(id)
	}
	if err := c.control.ReportClosedOutputs(raw); err != nil {
		return fmt.Errorf("node: failed to report closed outputs to daemon: %w", err)
	}
	return nil
}
