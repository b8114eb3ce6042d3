package transport

import (
	"fmt"

	"github.com/DoraCN/dora/wire"
)

// ControlChannel is the collaborator contract spec.md §2/§6 describes:
// enqueue one output, report closed outputs, report shutdown.
type ControlChannel interface {
	SendMessage(outputID string, metadata wire.Metadata, payload wire.DataMessage) error
	ReportClosedOutputs(ids []string) error
	ReportOutputsDone() error
	Close() error
}

// controlMessage is the envelope written to the control socket; Kind
// selects which of the three operations the daemon should perform.
type controlMessage struct {
	Kind      string            `json:"kind"`
	OutputID  string            `json:"output_id,omitempty"`
	Metadata  *wire.Metadata    `json:"metadata,omitempty"`
	Payload   *wire.DataMessage `json:"payload,omitempty"`
	OutputIDs []string          `json:"output_ids,omitempty"`
}

// tcpControlChannel is the concrete ControlChannel implementation: one
// frameConn to the daemon's control socket.
type tcpControlChannel struct {
	fc *frameConn
}

// NewTCPControlChannel dials (best-effort) the daemon's control address.
func NewTCPControlChannel(addr string) ControlChannel {
	return &tcpControlChannel{fc: dialFrameConn(addr)}
}

func (c *tcpControlChannel) SendMessage(outputID string, metadata wire.Metadata, payload wire.DataMessage) error {
	msg := controlMessage{Kind: "send_message", OutputID: outputID, Metadata: &metadata, Payload: &payload}
	if err := c.fc.writeJSON(msg); err != nil {
		return fmt.Errorf("control: send_message %s: %w", outputID, err)
	}
	return nil
}

func (c *tcpControlChannel) ReportClosedOutputs(ids []string) error {
	msg := controlMessage{Kind: "report_closed_outputs", OutputIDs: ids}
	if err := c.fc.writeJSON(msg); err != nil {
		return fmt.Errorf("control: report_closed_outputs: %w", err)
	}
	return nil
}

func (c *tcpControlChannel) ReportOutputsDone() error {
	msg := controlMessage{Kind: "report_outputs_done"}
	if err := c.fc.writeJSON(msg); err != nil {
		return fmt.Errorf("control: report_outputs_done: %w", err)
	}
	return nil
}

func (c *tcpControlChannel) Close() error {
	return c.fc.close()
}
