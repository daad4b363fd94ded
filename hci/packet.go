// Package hci holds the typed link-layer packet model consumed by the
// analysis rules. An external decoder turns the raw snoop capture into
// these values; nothing here touches the wire format.
package hci

import (
	"time"

	"github.com/rigado/btsnoop"
	"github.com/rigado/btsnoop/l2cap"
)

// Packet is one decoded, timestamped controller packet.
type Packet struct {
	Timestamp time.Time
	Msg       Message
}

// Message is a closed union over the packet kinds the analysis cares
// about. Consumers type-switch on it with an ignored default so that
// unrecognized traffic flows through harmlessly.
type Message interface {
	message()
}

// Commands (host to controller).

// Reset drops every link the controller holds.
type Reset struct{}

// CreateConnection initiates a BR/EDR link to Addr.
type CreateConnection struct {
	Addr btsnoop.Address
}

// AcceptConnectionRequest accepts a peer-initiated BR/EDR link.
type AcceptConnectionRequest struct {
	Addr btsnoop.Address
}

// Disconnect tears down the link owning Handle.
type Disconnect struct {
	Handle ConnectionHandle
	Reason DisconnectReason
}

// Events (controller to host).

// ConnectionComplete reports the outcome of a BR/EDR link establishment.
type ConnectionComplete struct {
	Status ErrorCode
	Handle ConnectionHandle
	Addr   btsnoop.Address
}

// SynchronousConnectionComplete reports the outcome of a voice-grade
// link layered on an existing BR/EDR link.
type SynchronousConnectionComplete struct {
	Status ErrorCode
	Handle ConnectionHandle
	Addr   btsnoop.Address
}

// DisconnectionComplete confirms a link teardown.
type DisconnectionComplete struct {
	Status ErrorCode
	Handle ConnectionHandle
	Reason ErrorCode
}

// ExtendedInquiryResult carries a discovered device's EIR payload.
type ExtendedInquiryResult struct {
	Addr btsnoop.Address
	Data []byte
}

// RemoteNameRequestComplete carries the peer's name, zero padded to
// its fixed wire size.
type RemoteNameRequestComplete struct {
	Status ErrorCode
	Addr   btsnoop.Address
	Name   []byte
}

// LEConnectionComplete reports the outcome of an LE link establishment.
type LEConnectionComplete struct {
	Status ErrorCode
	Handle ConnectionHandle
	Addr   btsnoop.Address
}

// LEEnhancedConnectionComplete is the extended variant of
// LEConnectionComplete.
type LEEnhancedConnectionComplete struct {
	Status ErrorCode
	Handle ConnectionHandle
	Addr   btsnoop.Address
}

// AdvReport is one response within an LE advertising report event.
type AdvReport struct {
	Addr btsnoop.Address
	Data []byte
}

// LEAdvertisingReport carries one or more advertising responses.
type LEAdvertisingReport struct {
	Reports []AdvReport
}

// LEExtendedAdvertisingReport is the extended variant of
// LEAdvertisingReport.
type LEExtendedAdvertisingReport struct {
	Reports []AdvReport
}

// ACL data.

// Direction tells which side sent an ACL fragment.
type Direction int

const (
	HostToPeer Direction = iota
	PeerToHost
)

// ACLData is a data fragment on an established link. Frame is the
// decoded channel-control frame when the fragment carries signaling,
// nil otherwise.
type ACLData struct {
	Handle ConnectionHandle
	Dir    Direction
	Frame  l2cap.Frame
}

func (Reset) message()                         {}
func (CreateConnection) message()              {}
func (AcceptConnectionRequest) message()       {}
func (Disconnect) message()                    {}
func (ConnectionComplete) message()            {}
func (SynchronousConnectionComplete) message() {}
func (DisconnectionComplete) message()         {}
func (ExtendedInquiryResult) message()         {}
func (RemoteNameRequestComplete) message()     {}
func (LEConnectionComplete) message()          {}
func (LEEnhancedConnectionComplete) message()  {}
func (LEAdvertisingReport) message()           {}
func (LEExtendedAdvertisingReport) message()   {}
func (ACLData) message()                       {}
