package btsnoop

import (
	"bytes"
	"testing"
)

func TestNewAddress(t *testing.T) {
	a, err := NewAddress("aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatal(err)
	}
	if a.String() != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("wrong canonical form: %s", a.String())
	}
	if !bytes.Equal(a.Bytes(), []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}) {
		t.Fatalf("wrong octet order: %v", a.Bytes())
	}
}

func TestNewAddressBad(t *testing.T) {
	for _, s := range []string{"", "zz:bb:cc:dd:ee:ff", "aa:bb:cc:dd:ee", "aa:bb:cc:dd:ee:ff:00"} {
		if _, err := NewAddress(s); err == nil {
			t.Fatalf("no error for %q", s)
		}
	}
}

func TestAddressTypeMerge(t *testing.T) {
	all := []AddressType{AddressTypeNone, AddressTypeBREDR, AddressTypeLE, AddressTypeDual}

	// Idempotent and commutative.
	for _, a := range all {
		if a.Merge(a) != a {
			t.Fatalf("merge(%v, %v) != %v", a, a, a)
		}
		for _, b := range all {
			if a.Merge(b) != b.Merge(a) {
				t.Fatalf("merge(%v, %v) not commutative", a, b)
			}
		}
	}

	if AddressTypeBREDR.Merge(AddressTypeLE) != AddressTypeDual {
		t.Fatal("BR/EDR + LE should be Dual")
	}
	if AddressTypeNone.Merge(AddressTypeLE) != AddressTypeLE {
		t.Fatal("None + LE should be LE")
	}
	for _, a := range all {
		if AddressTypeDual.Merge(a) != AddressTypeDual {
			t.Fatalf("Dual + %v should stay Dual", a)
		}
	}
}
