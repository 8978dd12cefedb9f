package consensus

import (
	"context"
	"fmt"
	"math/big"

	"github.com/pastellaproject/pastella/pkg/block"
	"github.com/pastellaproject/pastella/pkg/perrors"
)

// maxUint256 is 2^256 - 1.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// genesisDifficultyCap bounds the target computed for genesis so an
// operator-chosen difficulty parameter cannot produce a degenerate
// (near-maximal) target.
const genesisDifficultyCap = 1000

// Target returns floor((2^256-1) / max(1, difficulty)) as a 256-bit value.
func Target(difficulty uint64) *big.Int {
	if difficulty == 0 {
		difficulty = 1
	}
	d := new(big.Int).SetUint64(difficulty)
	return new(big.Int).Div(maxUint256, d)
}

// GenesisTarget caps difficulty at genesisDifficultyCap before computing
// the target, per spec.md's genesis-difficulty rule.
func GenesisTarget(difficulty uint64) *big.Int {
	if difficulty > genesisDifficultyCap {
		difficulty = genesisDifficultyCap
	}
	return Target(difficulty)
}

// Velora implements the memory-hard proof-of-work consensus engine.
// Difficulty is stored in the block header (consensus-enforced); the
// engine holds no mutable chain state beyond the scratchpad cache shared
// across all heights.
type Velora struct {
	// DifficultyFn computes the expected difficulty for a new block at a
	// given height. Set by the node. If nil, Prepare leaves the header's
	// difficulty untouched (the caller must have set it already).
	DifficultyFn func(height uint64) uint64

	// Threads holds the configured mining thread count. Seal and
	// SealWithCancel search nonces on a single goroutine and do not read it.
	Threads int
}

// NewVelora creates a Velora consensus engine.
func NewVelora() *Velora {
	return &Velora{}
}

// computeHash runs the Velora hash function for a header at its current
// nonce and returns the digest; comparing it with the target is left to
// the caller.
func computeHash(header *block.Header) [32]byte {
	return veloraHash(header.Index, header.SeedBuffer(), header.Nonce, header.Timestamp)
}

// VerifyHeader checks that the header's stored hash is both the correct
// Velora hash for its fields and within the target implied by its
// difficulty.
func (v *Velora) VerifyHeader(header *block.Header) error {
	if header.Difficulty == 0 {
		return perrors.New(perrors.KindDifficultyMismatch, "difficulty must be > 0")
	}

	digest := computeHash(header)
	if digest != header.Hash {
		return perrors.New(perrors.KindInvalidBlock, "stored hash does not match recomputed Velora hash")
	}

	var t *big.Int
	if header.Index == 0 {
		t = GenesisTarget(header.Difficulty)
	} else {
		t = Target(header.Difficulty)
	}
	hashInt := new(big.Int).SetBytes(digest[:])
	if hashInt.Cmp(t) > 0 {
		return perrors.New(perrors.KindDifficultyMismatch, "hash does not meet difficulty target")
	}
	return nil
}

// Prepare sets the header's difficulty for mining using DifficultyFn.
func (v *Velora) Prepare(header *block.Header) error {
	header.Algorithm = block.AlgorithmVelora
	if v.DifficultyFn != nil {
		header.Difficulty = v.DifficultyFn(header.Index)
	}
	return nil
}

// Seal mines the block by iterating the nonce until the header hash meets
// the target, then stores both the nonce and the resulting hash.
func (v *Velora) Seal(blk *block.Block) error {
	return v.SealWithCancel(context.Background(), blk)
}

// SealWithCancel mines with cancellation support, checked roughly every
// 1000 nonces per spec.md's cooperative-stop requirement for the miner.
func (v *Velora) SealWithCancel(ctx context.Context, blk *block.Block) error {
	if blk == nil || blk.Header == nil {
		return fmt.Errorf("nil block or header")
	}
	if blk.Header.Difficulty == 0 {
		return perrors.New(perrors.KindDifficultyMismatch, "difficulty must be > 0")
	}

	header := blk.Header
	var target *big.Int
	if header.Index == 0 {
		target = GenesisTarget(header.Difficulty)
	} else {
		target = Target(header.Difficulty)
	}

	hashInt := new(big.Int)
	for nonce := uint64(0); ; nonce++ {
		if nonce%1000 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		header.Nonce = nonce
		digest := computeHash(header)
		hashInt.SetBytes(digest[:])
		if hashInt.Cmp(target) <= 0 {
			header.Hash = digest
			return nil
		}
		if nonce == ^uint64(0) {
			return fmt.Errorf("nonce space exhausted")
		}
	}
}
