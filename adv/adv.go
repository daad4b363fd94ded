// Package adv decodes the length-prefixed type/value records found in
// advertising, scan-response and extended-inquiry payloads.
package adv

import "github.com/pkg/errors"

// ErrNoData is returned when there are no bytes left to parse.
var ErrNoData = errors.New("no data to parse")

// https://www.bluetooth.org/en-us/specification/assigned-numbers/generic-access-profile
var types = struct {
	flags       byte
	uuid16inc   byte
	uuid16comp  byte
	uuid32inc   byte
	uuid32comp  byte
	uuid128inc  byte
	uuid128comp byte
	nameshort   byte
	namecomp    byte
	txpwr       byte
	devclass    byte
	sol16       byte
	sol128      byte
	svc16       byte
	appearance  byte
	sol32       byte
	svc32       byte
	svc128      byte
	mfgdata     byte
}{
	flags:       0x01,
	uuid16inc:   0x02,
	uuid16comp:  0x03,
	uuid32inc:   0x04,
	uuid32comp:  0x05,
	uuid128inc:  0x06,
	uuid128comp: 0x07,
	nameshort:   0x08,
	namecomp:    0x09,
	txpwr:       0x0a,
	devclass:    0x0d,
	sol16:       0x14,
	sol128:      0x15,
	svc16:       0x16,
	appearance:  0x19,
	sol32:       0x1f,
	svc32:       0x20,
	svc128:      0x21,
	mfgdata:     0xff,
}

var typeNames = map[byte]string{
	types.flags:       "flags",
	types.uuid16inc:   "incomplete 16-bit UUIDs",
	types.uuid16comp:  "complete 16-bit UUIDs",
	types.uuid32inc:   "incomplete 32-bit UUIDs",
	types.uuid32comp:  "complete 32-bit UUIDs",
	types.uuid128inc:  "incomplete 128-bit UUIDs",
	types.uuid128comp: "complete 128-bit UUIDs",
	types.nameshort:   "shortened local name",
	types.namecomp:    "complete local name",
	types.txpwr:       "tx power level",
	types.devclass:    "class of device",
	types.sol16:       "16-bit solicitation UUIDs",
	types.sol128:      "128-bit solicitation UUIDs",
	types.svc16:       "16-bit service data",
	types.appearance:  "appearance",
	types.sol32:       "32-bit solicitation UUIDs",
	types.svc32:       "32-bit service data",
	types.svc128:      "128-bit service data",
	types.mfgdata:     "manufacturer data",
}

// Record is one decoded type/value record. The zero Record stands for
// the all-zero padding found at the tail of fixed-size EIR payloads.
type Record struct {
	Type byte
	Data []byte
}

// IsName reports whether the record carries a shortened or complete
// local name.
func (r Record) IsName() bool {
	return r.Type == types.namecomp || r.Type == types.nameshort
}

// TypeName returns a human-readable name for the record type.
func (r Record) TypeName() string {
	if n, ok := typeNames[r.Type]; ok {
		return n
	}
	return "padding"
}

// Parse decodes one record from the front of b. A record is a length
// byte n, a type byte, then n-1 bytes of payload. A lone zero byte and
// a zero length byte both decode to the padding Record; anything else
// that doesn't fit is an error. Callers advance by len(Data)+2 per
// record.
func Parse(b []byte) (Record, error) {
	if len(b) == 0 {
		return Record{}, ErrNoData
	}
	if len(b) == 1 {
		if b[0] != 0 {
			return Record{}, errors.Errorf("can't parse 1 byte of data: %d", b[0])
		}
		return Record{}, nil
	}

	size := int(b[0])
	if size == 0 {
		// Zero-size records only appear in the zero padding of EIR
		// payloads; the rest of the buffer is assumed to be padding too.
		return Record{}, nil
	}
	if size > len(b)-1 {
		return Record{}, errors.Errorf("size %d is bigger than remaining length %d", size, len(b)-1)
	}
	if _, ok := typeNames[b[1]]; !ok {
		return Record{}, errors.Errorf("can't parse data type 0x%02X", b[1])
	}
	return Record{Type: b[1], Data: b[2 : size+1]}, nil
}
