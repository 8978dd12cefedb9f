// Package crypto provides cryptographic primitives for Pastella: SHA-256
// hashing, Merkle roots, and ECDSA/secp256k1 signing.
package crypto

import (
	"crypto/sha256"

	"github.com/pastellaproject/pastella/pkg/types"
)

// Hash computes a SHA-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return sha256.Sum256(data)
}

// DoubleHash computes Hash(Hash(data)), i.e. double-SHA-256.
func DoubleHash(data []byte) types.Hash {
	first := Hash(data)
	return Hash(first[:])
}

// AddressFromPubKey derives a P2PKH address from a public key:
// Base58Check(version ‖ RIPEMD160(SHA256(pubkey))).
func AddressFromPubKey(pubKey []byte) types.Address {
	h := ripemd160Hash(Hash(pubKey))
	var a types.Address
	a.Version = types.P2PKHVersion
	copy(a.Hash[:], h)
	return a
}

// HashConcat hashes the concatenation of two hashes. Used for building
// Merkle trees.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}

// MerkleRoot computes the Merkle root of a list of leaf hashes: pairs are
// concatenated left-to-right and SHA-256'd, the last leaf is duplicated
// when the level has an odd count, recursing to a single root. A single
// leaf tree returns that leaf itself.
func MerkleRoot(leaves []types.Hash) types.Hash {
	if len(leaves) == 0 {
		return types.Hash{}
	}
	level := make([]types.Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(next); i++ {
			next[i] = HashConcat(level[2*i], level[2*i+1])
		}
		level = next
	}
	return level[0]
}
