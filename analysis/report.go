package analysis

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/rigado/btsnoop"
	"github.com/rigado/btsnoop/hci"
)

// Report renders a snapshot of the accumulated state. It is a pure
// read and may be called repeatedly, including mid-stream.
func (r *ConnectionsRule) Report(w io.Writer) {
	if len(r.devices) == 0 && len(r.unknown) == 0 {
		return
	}

	fmt.Fprintf(w, "ConnectionsRule report:\n")

	if len(r.unknown) > 0 {
		fmt.Fprintf(w, "Connections initiated before snoop start, %d connections\n", len(r.unknown))
		for _, handle := range r.sortedUnknownHandles() {
			r.unknown[handle].writeTo(w)
		}
	}

	for _, address := range r.sortedAddresses() {
		r.devices[address].writeTo(w)
	}
}

func (r *ConnectionsRule) sortedUnknownHandles() []hci.ConnectionHandle {
	handles := make([]hci.ConnectionHandle, 0, len(r.unknown))
	for handle := range r.unknown {
		handles = append(handles, handle)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles
}

// sortedAddresses orders devices from the most to the least
// interesting: connected before idle, named before anonymous, then by
// address type, name, and finally the address octets themselves.
func (r *ConnectionsRule) sortedAddresses() []btsnoop.Address {
	addresses := make([]btsnoop.Address, 0, len(r.devices))
	for address := range r.devices {
		addresses = append(addresses, address)
	}

	sort.Slice(addresses, func(i, j int) bool {
		a, b := r.devices[addresses[i]], r.devices[addresses[j]]

		aIdle, bIdle := a.sessionCount() == 0, b.sessionCount() == 0
		if aIdle != bIdle {
			return !aIdle
		}
		aAnon, bAnon := len(a.names) == 0, len(b.names) == 0
		if aAnon != bAnon {
			return !aAnon
		}
		if a.addrType != b.addrType {
			return a.addrType < b.addrType
		}
		if an, bn := a.namesString(), b.namesString(); an != bn {
			return an < bn
		}
		return bytes.Compare(a.address[:], b.address[:]) < 0
	})
	return addresses
}
