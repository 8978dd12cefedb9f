package block

import (
	"github.com/pastellaproject/pastella/pkg/crypto"
	"github.com/pastellaproject/pastella/pkg/types"
)

// ComputeMerkleRoot calculates the Merkle root of transaction ids.
func ComputeMerkleRoot(txIDs []types.Hash) types.Hash {
	return crypto.MerkleRoot(txIDs)
}
