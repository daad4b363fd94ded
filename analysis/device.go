package analysis

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rigado/btsnoop"
	"github.com/rigado/btsnoop/hci"
	"github.com/rigado/btsnoop/l2cap"
)

const timeLayout = "15:04:05.000000"

// Transport classifies a physical link.
type Transport int

const (
	TransportUnknown Transport = iota
	TransportBREDR
	TransportLE
)

func (t Transport) String() string {
	switch t {
	case TransportBREDR:
		return "BR"
	case TransportLE:
		return "LE"
	}
	return "??"
}

// Initiator tells who initiated an action.
type Initiator int

const (
	InitiatorUnknown Initiator = iota
	InitiatorHost
	InitiatorPeer
)

func (i Initiator) String() string {
	switch i {
	case InitiatorHost:
		return "by host"
	case InitiatorPeer:
		return "by peer"
	}
	return "by ??"
}

// linkState is the transient per-(device,transport) hint recorded when
// a connection-establishing command is seen. The next completion event
// consumes it to recover the initiator, which the event itself lacks.
type linkState int

const (
	linkNone linkState = iota
	linkInitiating
	linkAccepting
	linkConnected
)

func (s linkState) connectionInitiator() Initiator {
	switch s {
	case linkInitiating:
		return InitiatorHost
	case linkAccepting:
		return InitiatorPeer
	}
	return InitiatorUnknown
}

// profileType is an upper-layer service running over a link.
type profileType int

const (
	profileATT profileType = iota
	profileAVCTP
	profileAVDTP
	profileEATT
	profileHFP
	profileHIDCtrl
	profileHIDIntr
	profileRFCOMM
	profileSDP
)

func (p profileType) String() string {
	switch p {
	case profileATT:
		return "ATT"
	case profileAVCTP:
		return "AVCTP"
	case profileAVDTP:
		return "AVDTP"
	case profileEATT:
		return "EATT"
	case profileHFP:
		return "HFP"
	case profileHIDCtrl:
		return "HID CTRL"
	case profileHIDIntr:
		return "HID INTR"
	case profileRFCOMM:
		return "RFCOMM"
	case profileSDP:
		return "SDP"
	}
	return "unknown"
}

func profileFromPSM(psm l2cap.PSM) (profileType, bool) {
	switch psm {
	case 1:
		return profileSDP, true
	case 3:
		return profileRFCOMM, true
	case 17:
		return profileHIDCtrl, true
	case 19:
		return profileHIDIntr, true
	case 23:
		return profileAVCTP, true
	case 25:
		return profileAVDTP, true
	case 31:
		return profileATT, true
	case 39:
		return profileEATT, true
	}
	return 0, false
}

// cidState is the lifecycle of one channel id within a link session.
type cidState struct {
	connected bool
	remoteCID l2cap.CID // counterpart id, set once connected
	psm       l2cap.PSM
}

type cidPair struct {
	host l2cap.CID
	peer l2cap.CID
}

// profileKey distinguishes concurrent instances of the same profile on
// one link. Profiles negotiated per channel are keyed by the CID pair;
// ones that exist at most once per link are keyed by type alone.
type profileKey struct {
	byCID   bool
	profile profileType
	cids    cidPair
}

func perLinkKey(p profileType) profileKey {
	return profileKey{profile: p}
}

func cidKey(cids cidPair) profileKey {
	return profileKey{byCID: true, cids: cids}
}

func (k profileKey) String() string {
	if k.byCID {
		return fmt.Sprintf(" (CID: host=%d, peer=%d)", k.cids.host, k.cids.peer)
	}
	return ""
}

// profile is one service session nested inside a link session. Zero
// start/end times mean "not yet happened".
type profile struct {
	start     time.Time
	end       time.Time
	ptype     profileType
	startInit Initiator
	endInit   Initiator
	key       profileKey
}

func newProfile(ptype profileType, key profileKey) *profile {
	return &profile{ptype: ptype, key: key}
}

func (p *profile) reportStart(initiator Initiator, ts time.Time) {
	p.startInit = initiator
	p.start = ts
}

func (p *profile) reportEnd(initiator Initiator, ts time.Time) {
	p.endInit = initiator
	p.end = ts
}

func (p *profile) writeTo(w io.Writer) {
	fmt.Fprintf(w, "    %s, %s%s\n",
		p.ptype, formatSpan(p.start, p.startInit, p.end, p.endInit), p.key)
}

// formatSpan renders a start/end pair with initiators. A session whose
// start and end coincide was a failed attempt.
func formatSpan(start time.Time, startInit Initiator, end time.Time, endInit Initiator) string {
	one := func(ts time.Time, init Initiator) string {
		if ts.IsZero() {
			return "N/A"
		}
		return fmt.Sprintf("%s (%s)", ts.Format(timeLayout), init)
	}

	if !start.IsZero() && start.Equal(end) {
		return fmt.Sprintf("%s (%s) - Failed", start.Format(timeLayout), startInit)
	}
	return fmt.Sprintf("%s to %s", one(start, startInit), one(end, endInit))
}

// aclSession is one physical connection instance. Profiles live inside
// the session they run over, so ending the session can close them
// directly.
type aclSession struct {
	start     time.Time
	end       time.Time
	handle    hci.ConnectionHandle
	transport Transport
	startInit Initiator
	endInit   Initiator
	active    map[profileKey]*profile
	ended     []*profile
	hostCIDs  map[l2cap.CID]cidState
	peerCIDs  map[l2cap.CID]cidState
	log       btsnoop.Logger
}

func newACLSession(handle hci.ConnectionHandle, transport Transport, log btsnoop.Logger) *aclSession {
	return &aclSession{
		handle:    handle,
		transport: transport,
		active:    make(map[profileKey]*profile),
		hostCIDs:  make(map[l2cap.CID]cidState),
		peerCIDs:  make(map[l2cap.CID]cidState),
		log:       log,
	}
}

func (s *aclSession) reportStart(initiator Initiator, ts time.Time) {
	s.startInit = initiator
	s.start = ts
}

// reportEnd closes the session and force-ends every profile still
// active on it, with the session's end initiator and timestamp.
func (s *aclSession) reportEnd(initiator Initiator, ts time.Time) {
	for _, key := range s.sortedActiveKeys() {
		p := s.active[key]
		p.reportEnd(initiator, ts)
		s.ended = append(s.ended, p)
	}
	s.active = make(map[profileKey]*profile)
	s.endInit = initiator
	s.end = ts
}

func (s *aclSession) reportProfileStart(ptype profileType, key profileKey, initiator Initiator, ts time.Time) {
	p := newProfile(ptype, key)
	p.reportStart(initiator, ts)
	if old, ok := s.active[key]; ok {
		s.ended = append(s.ended, old)
	}
	s.active[key] = p
}

func (s *aclSession) reportProfileEnd(ptype profileType, key profileKey, initiator Initiator, ts time.Time) {
	p, ok := s.active[key]
	if !ok {
		p = newProfile(ptype, key)
	}
	delete(s.active, key)
	p.reportEnd(initiator, ts)
	s.ended = append(s.ended, p)
}

// reportConnReq records a pending channel in the requester's table.
func (s *aclSession) reportConnReq(psm l2cap.PSM, cid l2cap.CID, initiator Initiator) {
	switch initiator {
	case InitiatorHost:
		s.hostCIDs[cid] = cidState{psm: psm}
	case InitiatorPeer:
		s.peerCIDs[cid] = cidState{psm: psm}
	}
}

// reportConnRsp resolves a pending channel. On success both sides'
// tables move to connected and a profile starts if the PSM maps to a
// known one; on failure the profile starts and ends at the same
// instant.
func (s *aclSession) reportConnRsp(result l2cap.ConnectionResponseResult, cids cidPair, initiator Initiator, ts time.Time) {
	var state cidState
	var ok bool
	switch initiator {
	case InitiatorHost:
		state, ok = s.hostCIDs[cids.host]
	case InitiatorPeer:
		state, ok = s.peerCIDs[cids.peer]
	}
	if !ok || state.connected {
		return
	}
	psm := state.psm

	ptype, known := profileFromPSM(psm)
	key := cidKey(cids)
	if result == l2cap.ResultSuccess {
		s.hostCIDs[cids.host] = cidState{connected: true, remoteCID: cids.peer, psm: psm}
		s.peerCIDs[cids.peer] = cidState{connected: true, remoteCID: cids.host, psm: psm}
		if known {
			s.reportProfileStart(ptype, key, initiator, ts)
		}
	} else if known {
		s.reportProfileStart(ptype, key, initiator, ts)
		s.reportProfileEnd(ptype, key, initiator, ts)
	}
}

// reportDisconnRsp removes both channel-table entries and ends the
// matching profile, preferring the host side's service id when the two
// disagree.
func (s *aclSession) reportDisconnRsp(cids cidPair, initiator Initiator, ts time.Time) {
	var hostPSM, peerPSM l2cap.PSM
	var hostOK, peerOK bool

	if state, ok := s.hostCIDs[cids.host]; ok {
		if state.connected {
			hostPSM, hostOK = state.psm, true
		}
		delete(s.hostCIDs, cids.host)
	}
	if state, ok := s.peerCIDs[cids.peer]; ok {
		if state.connected {
			peerPSM, peerOK = state.psm, true
		}
		delete(s.peerCIDs, cids.peer)
	}

	if hostOK != peerOK || hostPSM != peerPSM {
		s.log.Warnf("PSM for host and peer mismatches at l2cap disconnection for handle %d at %s",
			s.handle, ts.Format(timeLayout))
	}

	psm := hostPSM
	if !hostOK {
		if !peerOK {
			return
		}
		psm = peerPSM
	}

	if ptype, known := profileFromPSM(psm); known {
		s.reportProfileEnd(ptype, cidKey(cids), initiator, ts)
	}
}

func (s *aclSession) sortedActiveKeys() []profileKey {
	keys := make([]profileKey, 0, len(s.active))
	for key := range s.active {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := s.active[keys[i]], s.active[keys[j]]
		if !a.start.Equal(b.start) {
			return a.start.Before(b.start)
		}
		return a.ptype.String()+keys[i].String() < b.ptype.String()+keys[j].String()
	})
	return keys
}

func (s *aclSession) writeTo(w io.Writer) {
	fmt.Fprintf(w, "  Handle: %d (%s), %s\n",
		s.handle, s.transport, formatSpan(s.start, s.startInit, s.end, s.endInit))
	for _, p := range s.ended {
		p.writeTo(w)
	}
	for _, key := range s.sortedActiveKeys() {
		s.active[key].writeTo(w)
	}
}

// deviceInfo is everything observed about one address.
type deviceInfo struct {
	names     map[string]struct{}
	address   btsnoop.Address
	addrType  btsnoop.AddressType
	acls      map[Transport][]*aclSession
	linkState map[Transport]linkState
	log       btsnoop.Logger
}

func newDeviceInfo(address btsnoop.Address, log btsnoop.Logger) *deviceInfo {
	return &deviceInfo{
		names:   make(map[string]struct{}),
		address: address,
		acls: map[Transport][]*aclSession{
			TransportBREDR: nil,
			TransportLE:    nil,
		},
		linkState: map[Transport]linkState{
			TransportBREDR: linkNone,
			TransportLE:    linkNone,
		},
		log: log,
	}
}

// activeConnection reports whether the most recent session on the
// transport is still open.
func (d *deviceInfo) activeConnection(transport Transport) bool {
	if transport == TransportUnknown {
		return false
	}
	sessions := d.acls[transport]
	return len(sessions) > 0 && sessions[len(sessions)-1].end.IsZero()
}

// getOrAllocateConnection returns the active session on the transport,
// allocating a fresh one only when none is active.
func (d *deviceInfo) getOrAllocateConnection(handle hci.ConnectionHandle, transport Transport) *aclSession {
	if !d.activeConnection(transport) {
		d.acls[transport] = append(d.acls[transport], newACLSession(handle, transport, d.log))
	}
	sessions := d.acls[transport]
	return sessions[len(sessions)-1]
}

// reportConnectionStart opens a session, consuming the provisional
// link state as the start initiator.
func (d *deviceInfo) reportConnectionStart(handle hci.ConnectionHandle, transport Transport, ts time.Time) {
	if transport == TransportUnknown {
		return
	}
	sess := d.getOrAllocateConnection(handle, transport)
	sess.handle = handle
	sess.reportStart(d.linkState[transport].connectionInitiator(), ts)
	d.linkState[transport] = linkConnected
}

func (d *deviceInfo) reportConnectionEnd(handle hci.ConnectionHandle, initiator Initiator, ts time.Time) {
	for _, transport := range []Transport{TransportBREDR, TransportLE} {
		if !d.activeConnection(transport) {
			continue
		}
		sessions := d.acls[transport]
		if last := sessions[len(sessions)-1]; last.handle == handle {
			last.reportEnd(initiator, ts)
			d.linkState[transport] = linkNone
			return
		}
	}

	d.log.Warnf("device %s got disconnection of handle %d without corresponding connection at %s",
		d.address, handle, ts.Format(timeLayout))
}

func (d *deviceInfo) sessionCount() int {
	return len(d.acls[TransportBREDR]) + len(d.acls[TransportLE])
}

func (d *deviceInfo) namesString() string {
	switch len(d.names) {
	case 0:
		return "<Unknown name>"
	case 1:
		for name := range d.names {
			return name
		}
	}
	names := make([]string, 0, len(d.names))
	for name := range d.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return "[" + strings.Join(names, ", ") + "]"
}

func (d *deviceInfo) writeTo(w io.Writer) {
	fmt.Fprintf(w, "%s (%s, %s), %d connections\n",
		d.address, d.addrType, d.namesString(), d.sessionCount())
	for _, sess := range d.acls[TransportBREDR] {
		sess.writeTo(w)
	}
	for _, sess := range d.acls[TransportLE] {
		sess.writeTo(w)
	}
}
