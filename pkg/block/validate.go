package block

import (
	"fmt"

	"github.com/pastellaproject/pastella/config"
	"github.com/pastellaproject/pastella/pkg/perrors"
	"github.com/pastellaproject/pastella/pkg/types"
)

// Validate checks block structure and internal consistency that does not
// require chain context (parent block, difficulty target). Use
// internal/chain for the full six-step consensus check.
func (b *Block) Validate() error {
	if b.Header == nil {
		return perrors.New(perrors.KindInvalidBlock, "nil header")
	}
	if b.Header.Algorithm != AlgorithmVelora {
		return perrors.New(perrors.KindInvalidBlock, fmt.Sprintf("unsupported algorithm %q", b.Header.Algorithm))
	}
	if b.Header.Timestamp == 0 {
		return perrors.New(perrors.KindInvalidBlock, "zero timestamp")
	}
	if len(b.Transactions) == 0 {
		return perrors.New(perrors.KindInvalidBlock, "no transactions")
	}
	if len(b.Transactions) > config.MaxBlockTxs {
		return perrors.New(perrors.KindInvalidBlock, fmt.Sprintf("%d transactions exceeds max %d", len(b.Transactions), config.MaxBlockTxs))
	}

	blockSize := len(b.Header.SeedBuffer())
	for _, t := range b.Transactions {
		blockSize += len(t.SigningBytes())
	}
	if blockSize > config.MaxBlockSize {
		return perrors.New(perrors.KindInvalidBlock, fmt.Sprintf("block size %d exceeds max %d", blockSize, config.MaxBlockSize))
	}

	if !b.Transactions[0].IsCoinbase {
		return perrors.New(perrors.KindInvalidBlock, "first transaction must be coinbase")
	}
	if len(b.Transactions[0].Outputs) != 1 {
		return perrors.New(perrors.KindCoinbaseViolation, "coinbase transaction must have exactly one output")
	}
	for i, t := range b.Transactions[1:] {
		if t.IsCoinbase {
			return perrors.New(perrors.KindInvalidBlock, fmt.Sprintf("tx %d: only the first transaction may be coinbase", i+1))
		}
	}

	txIDs := make([]types.Hash, len(b.Transactions))
	for i, t := range b.Transactions {
		txIDs[i] = t.ID()
	}
	expectedRoot := ComputeMerkleRoot(txIDs)
	if b.Header.MerkleRoot != expectedRoot {
		return perrors.New(perrors.KindInvalidBlock, fmt.Sprintf("merkle root mismatch: header=%s computed=%s", b.Header.MerkleRoot, expectedRoot))
	}

	for i, t := range b.Transactions {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}

	allInputs := make(map[types.Outpoint]int, len(b.Transactions))
	for i, t := range b.Transactions {
		for _, in := range t.Inputs {
			op := in.Outpoint()
			if prevTx, exists := allInputs[op]; exists {
				return perrors.New(perrors.KindDoubleSpend,
					fmt.Sprintf("tx %d: outpoint %s also spent in tx %d", i, op, prevTx))
			}
			allInputs[op] = i
		}
	}

	return nil
}

// Hash returns the block's stored header hash.
func (b *Block) Hash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	return b.Header.Hash
}
