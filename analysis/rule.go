// Package analysis reconstructs device, link and profile lifecycles
// from a decoded snoop-log packet stream and renders them as a report.
package analysis

import (
	"io"
	"time"

	"github.com/rigado/btsnoop/hci"
)

// Signal flags one anomalous point in the packet stream.
type Signal struct {
	TS  time.Time
	Tag string
}

// Rule is one analysis over a packet stream. The driver feeds packets
// in non-decreasing timestamp order through Process, then collects the
// findings. Report may be called at any point after processing begins
// and must not mutate state. Rules sharing a stream are independent;
// a pipeline may run several of them side by side.
type Rule interface {
	Process(pkt *hci.Packet)
	Report(w io.Writer)
	Signals() []Signal
}
