package contract

import (
	"encoding/hex"
	"fmt"
)

// AddressLength is the byte length of an account address.
const AddressLength = 32

// AccountAddress identifies a caller account. Addresses are verified by the
// host runtime before an invocation reaches the contract; the contract never
// derives or checks them itself.
type AccountAddress [AddressLength]byte

// ParseAccountAddress decodes the canonical hex form of an address.
func ParseAccountAddress(s string) (AccountAddress, error) {
	var addr AccountAddress
	if len(s) != AddressLength*2 {
		return AccountAddress{}, fmt.Errorf("account address must be %d hex characters", AddressLength*2)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return AccountAddress{}, fmt.Errorf("decode account address: %w", err)
	}
	copy(addr[:], raw)
	return addr, nil
}

// String returns the canonical hex form.
func (a AccountAddress) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the address is the all-zero placeholder.
func (a AccountAddress) IsZero() bool {
	return a == AccountAddress{}
}
