package btsnoop

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Address is a 48-bit link-layer device address. Octets are stored
// most-significant first, matching the canonical text form
// AA:BB:CC:DD:EE:FF.
type Address [6]byte

// NewAddress parses a colon-separated hex address string.
func NewAddress(s string) (Address, error) {
	var a Address
	hexStr := strings.Replace(strings.ToUpper(s), ":", "", -1)
	out, err := hex.DecodeString(hexStr)
	if err != nil {
		return a, errors.Wrap(err, "can't decode address")
	}
	if len(out) != 6 {
		return a, errors.Errorf("address %q is not 6 octets", s)
	}
	copy(a[:], out)
	return a, nil
}

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Bytes returns the address octets, most-significant first.
func (a Address) Bytes() []byte {
	b := make([]byte, 6)
	copy(b, a[:])
	return b
}

// AddressType tracks which transport(s) an address has been observed on.
// Merging is monotonic: once both BR/EDR and LE have been seen, the
// address stays Dual.
type AddressType int

const (
	AddressTypeNone AddressType = iota
	AddressTypeBREDR
	AddressTypeLE
	AddressTypeDual
)

func (t AddressType) String() string {
	switch t {
	case AddressTypeBREDR:
		return "BR/EDR"
	case AddressTypeLE:
		return "LE"
	case AddressTypeDual:
		return "Dual"
	default:
		return "Unknown type"
	}
}

// Merge folds an observation into the current type.
func (t AddressType) Merge(observed AddressType) AddressType {
	switch t {
	case AddressTypeNone:
		return observed
	case AddressTypeDual:
		return AddressTypeDual
	case AddressTypeBREDR:
		if observed == AddressTypeLE || observed == AddressTypeDual {
			return AddressTypeDual
		}
		return AddressTypeBREDR
	case AddressTypeLE:
		if observed == AddressTypeBREDR || observed == AddressTypeDual {
			return AddressTypeDual
		}
		return AddressTypeLE
	}
	return t
}
