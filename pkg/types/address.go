package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressSize is the length of the public-key-hash payload in an address,
// before the version byte and checksum are attached.
const AddressSize = 20

// Version bytes for Base58Check address encoding.
//
//	P2PKHVersion identifies a pay-to-public-key-hash address ("1...").
//	ScriptVersion identifies a script address ("3...").
const (
	P2PKHVersion  byte = 0x00
	ScriptVersion byte = 0x05
)

// Address represents a 160-bit public-key-hash address, Base58Check encoded
// with a leading version byte (spec: prefix byte yielding "1..." or "3...").
type Address struct {
	Version byte
	Hash    [AddressSize]byte
}

// IsZero returns true if the address payload is all zeros.
func (a Address) IsZero() bool {
	return a.Hash == [AddressSize]byte{}
}

// String returns the Base58Check-encoded address.
func (a Address) String() string {
	payload := make([]byte, 1+AddressSize)
	payload[0] = a.Version
	copy(payload[1:], a.Hash[:])
	return base58CheckEncode(payload)
}

// Hex returns the raw hex-encoded 20-byte payload without version/checksum.
func (a Address) Hex() string {
	return hex.EncodeToString(a.Hash[:])
}

// Bytes returns a copy of the raw 20-byte payload (no version/checksum).
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a.Hash[:])
	return b
}

// MarshalJSON encodes the address as its Base58Check string form.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a Base58Check address string.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a Base58Check address string (26-35 chars, version
// byte yielding a leading "1" or "3").
//
// A length/prefix check alone is not sufficient to authenticate an
// address: callers verifying a signature must reconstruct the address
// from the claimed public key (AddressFromPubKey) and compare, per spec.
func ParseAddress(s string) (Address, error) {
	if len(s) < 26 || len(s) > 35 {
		return Address{}, fmt.Errorf("address length %d out of range [26,35]", len(s))
	}
	payload, err := base58CheckDecode(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address: %w", err)
	}
	if len(payload) != 1+AddressSize {
		return Address{}, fmt.Errorf("address payload must be %d bytes, got %d", 1+AddressSize, len(payload))
	}
	var a Address
	a.Version = payload[0]
	copy(a.Hash[:], payload[1:])
	return a, nil
}

// HexToAddressHash converts a raw 40-char hex string to an address with the
// default P2PKH version byte. Used when genesis/config supply an address's
// raw public-key-hash without a Base58Check wrapper.
func HexToAddressHash(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("address hash must be %d bytes, got %d", AddressSize, len(b))
	}
	var a Address
	a.Version = P2PKHVersion
	copy(a.Hash[:], b)
	return a, nil
}

func base58CheckEncode(payload []byte) string {
	checksum := checksum4(payload)
	full := append(append([]byte{}, payload...), checksum...)
	return base58.Encode(full)
}

func base58CheckDecode(s string) ([]byte, error) {
	full, err := base58.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(full) < 5 {
		return nil, fmt.Errorf("base58 payload too short")
	}
	payload := full[:len(full)-4]
	want := checksum4(payload)
	got := full[len(full)-4:]
	for i := range got {
		if got[i] != want[i] {
			return nil, fmt.Errorf("checksum mismatch")
		}
	}
	return payload, nil
}

// checksum4 returns the first 4 bytes of double-SHA-256(payload). Kept
// local to avoid an import cycle with pkg/crypto (which imports pkg/types).
func checksum4(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:4]
}
