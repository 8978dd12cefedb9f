package chain

import (
	"context"
	"fmt"

	"github.com/pastellaproject/pastella/config"
	"github.com/pastellaproject/pastella/internal/consensus"
	"github.com/pastellaproject/pastella/pkg/block"
	"github.com/pastellaproject/pastella/pkg/crypto"
	"github.com/pastellaproject/pastella/pkg/tx"
	"github.com/pastellaproject/pastella/pkg/types"
)

// CreateGenesisBlock builds the genesis block from the genesis configuration.
// The genesis block has index 0, a zero previous hash, and a single coinbase
// transaction that pays out the premine. If gen already carries a trusted
// nonce/hash pair (HasMinedHash), those are used directly so every node
// converges on the same genesis without mining it; otherwise the block is
// mined on the spot via Velora.
func CreateGenesisBlock(gen *config.GenesisConfig) (*block.Block, error) {
	if gen == nil {
		return nil, fmt.Errorf("genesis config is nil")
	}

	coinbase, err := buildGenesisCoinbase(gen)
	if err != nil {
		return nil, fmt.Errorf("build coinbase: %w", err)
	}

	merkle := crypto.MerkleRoot([]types.Hash{coinbase.ID()})

	header := &block.Header{
		Index:        0,
		PreviousHash: types.Hash{},
		MerkleRoot:   merkle,
		Timestamp:    gen.Timestamp,
		Difficulty:   gen.Difficulty,
		Algorithm:    block.AlgorithmVelora,
	}

	blk := block.NewBlock(header, []*tx.Transaction{coinbase})

	if gen.HasMinedHash() {
		hash, err := types.HexToHash(gen.Hash)
		if err != nil {
			return nil, fmt.Errorf("invalid genesis hash: %w", err)
		}
		header.Nonce = gen.Nonce
		header.Hash = hash
		return blk, nil
	}

	engine := consensus.NewVelora()
	if err := engine.SealWithCancel(context.Background(), blk); err != nil {
		return nil, fmt.Errorf("mine genesis: %w", err)
	}
	return blk, nil
}

// buildGenesisCoinbase creates the single-output coinbase transaction that
// distributes the premine. CoinbaseNonce/CoinbaseAtomicSequence are carried
// through from the config so re-deriving genesis from the same parameters
// always reproduces the same transaction id (and therefore merkle root).
func buildGenesisCoinbase(gen *config.GenesisConfig) (*tx.Transaction, error) {
	addr, err := types.ParseAddress(gen.PremineAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid premine address %q: %w", gen.PremineAddress, err)
	}

	coinbase := &tx.Transaction{
		Outputs: []tx.Output{{
			Address: addr,
			Amount:  gen.PremineAmount,
			Tag:     tx.TagPremine,
		}},
		Timestamp:  gen.Timestamp,
		Nonce:      gen.CoinbaseNonce,
		Sequence:   gen.CoinbaseAtomicSequence,
		IsCoinbase: true,
		Tag:        tx.TagCoinbase,
	}

	return coinbase, nil
}
