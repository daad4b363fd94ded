package analysis

import (
	"io"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Snapshot is a machine-readable view of the accumulated state, for
// callers that want to persist results next to the text report.
type Snapshot struct {
	PreCaptureSessions []SessionSnapshot `json:"pre_capture_sessions,omitempty"`
	Devices            []DeviceSnapshot  `json:"devices"`
}

type DeviceSnapshot struct {
	Address  string            `json:"address"`
	Type     string            `json:"type"`
	Names    []string          `json:"names,omitempty"`
	Sessions []SessionSnapshot `json:"sessions,omitempty"`
}

type SessionSnapshot struct {
	Handle         uint16            `json:"handle"`
	Transport      string            `json:"transport"`
	Start          string            `json:"start,omitempty"`
	End            string            `json:"end,omitempty"`
	StartInitiator string            `json:"start_initiator"`
	EndInitiator   string            `json:"end_initiator"`
	Profiles       []ProfileSnapshot `json:"profiles,omitempty"`
}

type ProfileSnapshot struct {
	Profile        string `json:"profile"`
	HostCID        uint16 `json:"host_cid,omitempty"`
	PeerCID        uint16 `json:"peer_cid,omitempty"`
	Start          string `json:"start,omitempty"`
	End            string `json:"end,omitempty"`
	StartInitiator string `json:"start_initiator"`
	EndInitiator   string `json:"end_initiator"`
	Active         bool   `json:"active,omitempty"`
}

// Snapshot builds the exportable view. Like Report, it does not
// mutate state.
func (r *ConnectionsRule) Snapshot() *Snapshot {
	snap := &Snapshot{}

	for _, handle := range r.sortedUnknownHandles() {
		snap.PreCaptureSessions = append(snap.PreCaptureSessions, sessionSnapshot(r.unknown[handle]))
	}

	for _, address := range r.sortedAddresses() {
		dev := r.devices[address]
		ds := DeviceSnapshot{
			Address: dev.address.String(),
			Type:    dev.addrType.String(),
		}
		if len(dev.names) > 0 {
			for name := range dev.names {
				ds.Names = append(ds.Names, name)
			}
			sort.Strings(ds.Names)
		}
		for _, transport := range []Transport{TransportBREDR, TransportLE} {
			for _, sess := range dev.acls[transport] {
				ds.Sessions = append(ds.Sessions, sessionSnapshot(sess))
			}
		}
		snap.Devices = append(snap.Devices, ds)
	}

	return snap
}

// WriteSnapshot marshals the snapshot as indented JSON.
func (r *ConnectionsRule) WriteSnapshot(w io.Writer) error {
	out, err := json.MarshalIndent(r.Snapshot(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "can't marshal snapshot")
	}
	_, err = w.Write(append(out, '\n'))
	return errors.Wrap(err, "can't write snapshot")
}

func sessionSnapshot(s *aclSession) SessionSnapshot {
	ss := SessionSnapshot{
		Handle:         uint16(s.handle),
		Transport:      s.transport.String(),
		Start:          snapshotTime(s.start),
		End:            snapshotTime(s.end),
		StartInitiator: s.startInit.String(),
		EndInitiator:   s.endInit.String(),
	}
	for _, p := range s.ended {
		ss.Profiles = append(ss.Profiles, profileSnapshot(p, false))
	}
	for _, key := range s.sortedActiveKeys() {
		ss.Profiles = append(ss.Profiles, profileSnapshot(s.active[key], true))
	}
	return ss
}

func profileSnapshot(p *profile, active bool) ProfileSnapshot {
	ps := ProfileSnapshot{
		Profile:        p.ptype.String(),
		Start:          snapshotTime(p.start),
		End:            snapshotTime(p.end),
		StartInitiator: p.startInit.String(),
		EndInitiator:   p.endInit.String(),
		Active:         active,
	}
	if p.key.byCID {
		ps.HostCID = uint16(p.key.cids.host)
		ps.PeerCID = uint16(p.key.cids.peer)
	}
	return ps
}

func snapshotTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Format(time.RFC3339Nano)
}
