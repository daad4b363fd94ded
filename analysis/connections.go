package analysis

import (
	"sort"
	"strings"
	"time"

	"github.com/rigado/btsnoop"
	"github.com/rigado/btsnoop/adv"
	"github.com/rigado/btsnoop/hci"
	"github.com/rigado/btsnoop/l2cap"
)

// ConnectionsRule reconstructs the lifecycle of every device, link and
// profile seen in the stream. Reconstruction is best effort: a capture
// may start mid-session, drop packets, or reference handles it never
// introduced, and none of that stops the scan.
type ConnectionsRule struct {
	devices map[btsnoop.Address]*deviceInfo
	handles map[hci.ConnectionHandle]btsnoop.Address
	// scoHandles maps a synchronous-link handle to the BR/EDR link it
	// runs over, while the synchronous link is up.
	scoHandles map[hci.ConnectionHandle]hci.ConnectionHandle
	// unknown holds sessions whose owning address was never learned,
	// e.g. links established before the capture started. They are never
	// merged back into a device, even if the address shows up later for
	// the same handle.
	unknown map[hci.ConnectionHandle]*aclSession
	// pendingDisconnects remembers a Disconnect command until its
	// completion event, so the completion can be attributed to the
	// host. The value records whether the stated reason was a peer
	// power-off, in which case the completion may never arrive.
	pendingDisconnects map[hci.ConnectionHandle]bool

	log btsnoop.Logger
}

// NewConnectionsRule returns an empty rule ready to consume a stream.
func NewConnectionsRule() *ConnectionsRule {
	return &ConnectionsRule{
		devices:            make(map[btsnoop.Address]*deviceInfo),
		handles:            make(map[hci.ConnectionHandle]btsnoop.Address),
		scoHandles:         make(map[hci.ConnectionHandle]hci.ConnectionHandle),
		unknown:            make(map[hci.ConnectionHandle]*aclSession),
		pendingDisconnects: make(map[hci.ConnectionHandle]bool),
		log:                btsnoop.GetLogger().ChildLogger(map[string]interface{}{"rule": "connections"}),
	}
}

// Process consumes one packet and updates the registries. Packet kinds
// outside the recognized set fall through the default arms untouched.
func (r *ConnectionsRule) Process(pkt *hci.Packet) {
	ts := pkt.Timestamp

	switch m := pkt.Msg.(type) {
	case hci.ConnectionComplete:
		r.reportConnectionStart(m.Addr, m.Handle, TransportBREDR, ts)
		// A failed attempt is modeled as a zero-duration session.
		if m.Status != hci.ErrSuccess {
			r.reportConnectionEnd(m.Handle, ts)
		}

	case hci.SynchronousConnectionComplete:
		r.reportSCOConnectionStart(m.Addr, m.Handle, ts)
		if m.Status != hci.ErrSuccess {
			r.reportConnectionEnd(m.Handle, ts)
		}

	case hci.DisconnectionComplete:
		// A power-off teardown was already synthesized at command time;
		// swallow its completion if the controller did reply.
		if !r.pendingDisconnects[m.Handle] {
			r.reportConnectionEnd(m.Handle, ts)
		}
		delete(r.pendingDisconnects, m.Handle)

	case hci.ExtendedInquiryResult:
		r.processRawAdvData(m.Addr, m.Data)
		r.reportAddressType(m.Addr, btsnoop.AddressTypeBREDR)

	case hci.RemoteNameRequestComplete:
		if m.Status != hci.ErrSuccess {
			return
		}
		name := strings.TrimRight(string(m.Name), "\x00")
		r.reportName(m.Addr, name)
		r.reportAddressType(m.Addr, btsnoop.AddressTypeBREDR)

	case hci.LEConnectionComplete:
		r.leConnectionComplete(m.Status, m.Addr, m.Handle, ts)

	case hci.LEEnhancedConnectionComplete:
		r.leConnectionComplete(m.Status, m.Addr, m.Handle, ts)

	case hci.LEAdvertisingReport:
		for _, rep := range m.Reports {
			r.processRawAdvData(rep.Addr, rep.Data)
			r.reportAddressType(rep.Addr, btsnoop.AddressTypeLE)
		}

	case hci.LEExtendedAdvertisingReport:
		for _, rep := range m.Reports {
			r.processRawAdvData(rep.Addr, rep.Data)
			r.reportAddressType(rep.Addr, btsnoop.AddressTypeLE)
		}

	case hci.Reset:
		r.reportReset(ts)

	case hci.CreateConnection:
		r.reportLinkState(m.Addr, TransportBREDR, linkInitiating)
		r.reportAddressType(m.Addr, btsnoop.AddressTypeBREDR)

	case hci.AcceptConnectionRequest:
		r.reportLinkState(m.Addr, TransportBREDR, linkAccepting)
		r.reportAddressType(m.Addr, btsnoop.AddressTypeBREDR)

	case hci.Disconnect:
		// On a peer power-off the host may not wait for the completion
		// event, so synthesize the teardown right away.
		powerOff := m.Reason == hci.ReasonRemotePowerOff
		r.pendingDisconnects[m.Handle] = powerOff
		if powerOff {
			r.reportConnectionEnd(m.Handle, ts)
		}

	case hci.ACLData:
		r.processACL(m, ts)

	default:
		// Everything else carries no connection state.
	}
}

// leConnectionComplete handles both LE complete variants. Determining
// the LE initiator needs signals this log doesn't carry, so assume the
// host initiated.
func (r *ConnectionsRule) leConnectionComplete(status hci.ErrorCode, addr btsnoop.Address, handle hci.ConnectionHandle, ts time.Time) {
	r.reportLinkState(addr, TransportLE, linkInitiating)
	r.reportConnectionStart(addr, handle, TransportLE, ts)
	r.reportAddressType(addr, btsnoop.AddressTypeLE)
	if status != hci.ErrSuccess {
		r.reportConnectionEnd(handle, ts)
	}
}

func (r *ConnectionsRule) processACL(m hci.ACLData, ts time.Time) {
	// The direction fixes which side's CID is local: the sender of a
	// frame names its own CID as the source. A request is initiated by
	// its sender, a response answers a request from the other side.
	senderInit, otherInit := InitiatorHost, InitiatorPeer
	if m.Dir == hci.PeerToHost {
		senderInit, otherInit = InitiatorPeer, InitiatorHost
	}

	switch f := m.Frame.(type) {
	case l2cap.ConnectionRequest:
		conn := r.getOrAllocateConnection(m.Handle, TransportBREDR)
		conn.reportConnReq(f.PSM, f.SourceCID, senderInit)

	case l2cap.ConnectionResponse:
		// A "pending" result is interim; wait for the definitive one.
		if f.Result == l2cap.ResultPending {
			return
		}
		cids := cidPair{host: f.DestinationCID, peer: f.SourceCID}
		if m.Dir == hci.PeerToHost {
			cids = cidPair{host: f.SourceCID, peer: f.DestinationCID}
		}
		conn := r.getOrAllocateConnection(m.Handle, TransportBREDR)
		conn.reportConnRsp(f.Result, cids, otherInit, ts)

	case l2cap.DisconnectionResponse:
		cids := cidPair{host: f.DestinationCID, peer: f.SourceCID}
		if m.Dir == hci.PeerToHost {
			cids = cidPair{host: f.SourceCID, peer: f.DestinationCID}
		}
		conn := r.getOrAllocateConnection(m.Handle, TransportBREDR)
		conn.reportDisconnRsp(cids, otherInit, ts)

	default:
		// Non-signaling traffic.
	}
}

func (r *ConnectionsRule) getOrAllocateDevice(address btsnoop.Address) *deviceInfo {
	dev, ok := r.devices[address]
	if !ok {
		dev = newDeviceInfo(address, r.log)
		r.devices[address] = dev
	}
	return dev
}

func (r *ConnectionsRule) getOrAllocateUnknownConnection(handle hci.ConnectionHandle, transport Transport) *aclSession {
	sess, ok := r.unknown[handle]
	if !ok {
		sess = newACLSession(handle, transport, r.log)
		r.unknown[handle] = sess
	}
	return sess
}

func (r *ConnectionsRule) getOrAllocateConnection(handle hci.ConnectionHandle, transport Transport) *aclSession {
	address, ok := r.handles[handle]
	if !ok || transport == TransportUnknown {
		return r.getOrAllocateUnknownConnection(handle, transport)
	}
	return r.getOrAllocateDevice(address).getOrAllocateConnection(handle, transport)
}

func (r *ConnectionsRule) reportAddressType(address btsnoop.Address, observed btsnoop.AddressType) {
	dev := r.getOrAllocateDevice(address)
	dev.addrType = dev.addrType.Merge(observed)
}

func (r *ConnectionsRule) reportName(address btsnoop.Address, name string) {
	r.getOrAllocateDevice(address).names[name] = struct{}{}
}

func (r *ConnectionsRule) reportLinkState(address btsnoop.Address, transport Transport, state linkState) {
	r.getOrAllocateDevice(address).linkState[transport] = state
}

func (r *ConnectionsRule) reportConnectionStart(address btsnoop.Address, handle hci.ConnectionHandle, transport Transport, ts time.Time) {
	r.getOrAllocateDevice(address).reportConnectionStart(handle, transport, ts)
	r.handles[handle] = address
	delete(r.pendingDisconnects, handle)
}

// reportSCOConnectionStart attaches a voice profile to the device's
// active BR/EDR link. The command stream would be needed to know who
// really initiated the synchronous link; assume the host.
func (r *ConnectionsRule) reportSCOConnectionStart(address btsnoop.Address, handle hci.ConnectionHandle, ts time.Time) {
	dev, ok := r.devices[address]
	if !ok {
		// Synchronous link for a device never seen; skip it.
		return
	}
	if !dev.activeConnection(TransportBREDR) {
		r.log.Warnf("[%s] synchronous link is connected, but no BR/EDR link is", address)
		return
	}

	sess := dev.getOrAllocateConnection(0, TransportBREDR)
	sess.reportProfileStart(profileHFP, perLinkKey(profileHFP), InitiatorHost, ts)
	r.scoHandles[handle] = sess.handle
}

// reportConnectionEnd attributes the teardown to the host when a
// matching Disconnect command is pending, otherwise to the peer.
func (r *ConnectionsRule) reportConnectionEnd(handle hci.ConnectionHandle, ts time.Time) {
	initiator := InitiatorPeer
	if _, ok := r.pendingDisconnects[handle]; ok {
		initiator = InitiatorHost
	}
	r.endConnection(handle, initiator, ts)
}

func (r *ConnectionsRule) endConnection(handle hci.ConnectionHandle, initiator Initiator, ts time.Time) {
	// Synchronous-link handles share the numeric space with physical
	// ones, so check those first.
	if aclHandle, ok := r.scoHandles[handle]; ok {
		conn := r.getOrAllocateConnection(aclHandle, TransportBREDR)
		conn.reportProfileEnd(profileHFP, perLinkKey(profileHFP), initiator, ts)
		r.dropSCOHandles(aclHandle)
		return
	}

	if address, ok := r.handles[handle]; ok {
		r.devices[address].reportConnectionEnd(handle, initiator, ts)
		delete(r.handles, handle)
		r.dropSCOHandles(handle)
		return
	}

	// Wholly unknown handle: keep the teardown for the report instead
	// of discarding it.
	conn := r.getOrAllocateUnknownConnection(handle, TransportUnknown)
	conn.reportEnd(initiator, ts)
}

// dropSCOHandles removes every synchronous-map entry pointing at the
// given physical link.
func (r *ConnectionsRule) dropSCOHandles(aclHandle hci.ConnectionHandle) {
	for sco, acl := range r.scoHandles {
		if acl == aclHandle {
			delete(r.scoHandles, sco)
		}
	}
}

// reportReset synthesizes a host-attributed teardown for every live
// link; a controller reset silently drops them all.
func (r *ConnectionsRule) reportReset(ts time.Time) {
	handles := make([]hci.ConnectionHandle, 0, len(r.handles))
	for handle := range r.handles {
		handles = append(handles, handle)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	for _, handle := range handles {
		r.endConnection(handle, InitiatorHost, ts)
	}
	r.scoHandles = make(map[hci.ConnectionHandle]hci.ConnectionHandle)
	r.pendingDisconnects = make(map[hci.ConnectionHandle]bool)
}

// processRawAdvData walks the length-prefixed records in an
// advertising or inquiry payload, keeping any local names. A malformed
// record abandons this one payload only.
func (r *ConnectionsRule) processRawAdvData(address btsnoop.Address, data []byte) {
	for offset := 0; offset < len(data); {
		rec, err := adv.Parse(data[offset:])
		if err != nil {
			r.log.Warnf("[%s] advertising data is not parsed correctly: %v", address, err)
			break
		}
		if rec.IsName() {
			r.reportName(address, string(rec.Data))
		}
		offset += len(rec.Data) + 2
	}
}

// Signals implements Rule. This rule only describes; it never alerts.
func (r *ConnectionsRule) Signals() []Signal {
	return nil
}
