package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part used when rendering addresses.
type AddressPrefix string

const (
	// StakePrefix is used for staking participant accounts.
	StakePrefix AddressPrefix = "stk"
	// VaultPrefix is used for module custody accounts.
	VaultPrefix AddressPrefix = "vlt"
)

// AddressLength is the raw byte length of every account address.
const AddressLength = 20

// Address represents a 20-byte account identifier with a display prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress wraps raw bytes. It panics when b is not 20 bytes long.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != AddressLength {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}
}

// FromRaw wraps a fixed size address.
func FromRaw(prefix AddressPrefix, raw [20]byte) Address {
	return NewAddress(prefix, raw[:])
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return a.bytes
}

// Raw returns the address as a fixed size array.
func (a Address) Raw() [20]byte {
	var out [20]byte
	copy(out[:], a.bytes)
	return out
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// AddressFromLabel derives a deterministic address from a human label by
// taking the last 20 bytes of its Keccak-256 hash. Scenario files and tests
// use labels such as "alice" instead of raw keys.
func AddressFromLabel(prefix AddressPrefix, label string) Address {
	sum := ethcrypto.Keccak256([]byte(strings.TrimSpace(label)))
	return NewAddress(prefix, sum[len(sum)-AddressLength:])
}

// ParseAccount accepts a bech32 address, a 0x-prefixed hex address or a label.
func ParseAccount(value string) (Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Address{}, fmt.Errorf("account required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		raw, err := hex.DecodeString(trimmed[2:])
		if err != nil {
			return Address{}, fmt.Errorf("decode hex address: %w", err)
		}
		if len(raw) != AddressLength {
			return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(raw))
		}
		return NewAddress(StakePrefix, raw), nil
	}
	if strings.Contains(trimmed, "1") {
		if addr, err := DecodeAddress(trimmed); err == nil {
			return addr, nil
		}
	}
	return AddressFromLabel(StakePrefix, trimmed), nil
}
