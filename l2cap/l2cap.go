// Package l2cap models the channel-control signaling frames exchanged
// over an established physical link [Vol 3, Part A, 4].
package l2cap

import "fmt"

// PSM is the protocol/service multiplexer a connection request declares.
type PSM uint16

// CID is a locally-scoped channel id on one side of a link.
type CID uint16

// ConnectionResponseResult is the result field of a connection response
// [Vol 3, Part A, 4.3].
type ConnectionResponseResult uint16

const (
	ResultSuccess          ConnectionResponseResult = 0x0000
	ResultPending          ConnectionResponseResult = 0x0001
	ResultPSMNotSupported  ConnectionResponseResult = 0x0002
	ResultSecurityBlock    ConnectionResponseResult = 0x0003
	ResultNoResources      ConnectionResponseResult = 0x0004
	ResultInvalidSourceCID ConnectionResponseResult = 0x0006
	ResultSourceCIDInUse   ConnectionResponseResult = 0x0007
)

func (r ConnectionResponseResult) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultPending:
		return "pending"
	case ResultPSMNotSupported:
		return "PSM not supported"
	case ResultSecurityBlock:
		return "security block"
	case ResultNoResources:
		return "no resources available"
	case ResultInvalidSourceCID:
		return "invalid source CID"
	case ResultSourceCIDInUse:
		return "source CID already allocated"
	}
	return fmt.Sprintf("unknown result 0x%04X", uint16(r))
}

// Frame is one channel-control signaling frame. The set of frame types
// is closed; consumers type-switch with an ignored default.
type Frame interface {
	frame()
}

// ConnectionRequest opens a channel for the given service.
type ConnectionRequest struct {
	PSM       PSM
	SourceCID CID
}

// ConnectionResponse answers a pending connection request.
type ConnectionResponse struct {
	Result         ConnectionResponseResult
	DestinationCID CID
	SourceCID      CID
}

// DisconnectionResponse confirms a channel teardown.
type DisconnectionResponse struct {
	DestinationCID CID
	SourceCID      CID
}

func (ConnectionRequest) frame()     {}
func (ConnectionResponse) frame()    {}
func (DisconnectionResponse) frame() {}
