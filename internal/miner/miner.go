// Package miner implements block production for the Pastella chain.
package miner

import (
	"context"
	"fmt"
	"time"

	"github.com/pastellaproject/pastella/config"
	"github.com/pastellaproject/pastella/internal/consensus"
	"github.com/pastellaproject/pastella/pkg/block"
	"github.com/pastellaproject/pastella/pkg/tx"
	"github.com/pastellaproject/pastella/pkg/types"
)

// ChainState provides read-only access to the current chain state.
type ChainState interface {
	Height() uint64
	TipHash() types.Hash
	TipTimestamp() uint64
}

// MempoolSelector selects transactions for block inclusion.
type MempoolSelector interface {
	SelectForBlock(maxBytes int) []*tx.Transaction
	GetFee(txID types.Hash) uint64
}

// SupplyFunc returns the current total coin supply.
type SupplyFunc func() uint64

// maxCandidateTxs bounds how many mempool transactions a candidate block
// drains per spec.md §4.6 ("drain up to 100 transactions from mempool in
// fee-priority order"), independent of the byte-budget SelectForBlock also
// enforces.
const maxCandidateTxs = 100

// minerBlockSizeReserve is the room left in config.MaxBlockSize for the
// block header and coinbase transaction when budgeting mempool selection.
const minerBlockSizeReserve = 4096

// Miner produces new blocks by selecting mempool transactions, building a
// coinbase, and sealing the header through the consensus engine.
type Miner struct {
	chain        ChainState
	engine       consensus.Engine
	pool         MempoolSelector
	coinbaseAddr types.Address
	blockReward  uint64
	maxSupply    uint64     // 0 = unlimited
	supplyFn     SupplyFunc // nil = no cap check
}

// New creates a new block producer.
func New(chain ChainState, engine consensus.Engine, pool MempoolSelector,
	coinbaseAddr types.Address, blockReward, maxSupply uint64, supplyFn SupplyFunc) *Miner {
	return &Miner{
		chain:        chain,
		engine:       engine,
		pool:         pool,
		coinbaseAddr: coinbaseAddr,
		blockReward:  blockReward,
		maxSupply:    maxSupply,
		supplyFn:     supplyFn,
	}
}

// ProduceBlock builds, seals, and returns a new block using the current time.
// The coinbase output value = block reward + sum of all tx fees. The block
// is NOT applied to the chain — the caller must call ProcessBlock.
func (m *Miner) ProduceBlock() (*block.Block, error) {
	return m.produceBlock(context.Background(), uint64(time.Now().UnixMilli()))
}

// ProduceBlockAt builds, seals, and returns a new block with the given
// timestamp, bumped to at least parentTimestamp+1 to guarantee monotonicity.
func (m *Miner) ProduceBlockAt(timestamp uint64) (*block.Block, error) {
	return m.produceBlock(context.Background(), timestamp)
}

// ProduceBlockCtx builds and seals a block with cancellation support. When
// the context is cancelled, PoW sealing stops at the next nonce checkpoint.
func (m *Miner) ProduceBlockCtx(ctx context.Context) (*block.Block, error) {
	return m.produceBlock(ctx, uint64(time.Now().UnixMilli()))
}

func (m *Miner) produceBlock(ctx context.Context, timestamp uint64) (*block.Block, error) {
	if parentTS := m.chain.TipTimestamp(); timestamp <= parentTS {
		timestamp = parentTS + 1
	}

	var selected []*tx.Transaction
	var totalFees uint64
	if m.pool != nil {
		selected = m.pool.SelectForBlock(config.MaxBlockSize - minerBlockSizeReserve)
		if len(selected) > maxCandidateTxs {
			// Safe to truncate: SelectForBlock topologically orders its
			// result, so a prefix never drops a producer while keeping
			// its in-block consumer.
			selected = selected[:maxCandidateTxs]
		}
		for _, t := range selected {
			totalFees += m.pool.GetFee(t.ID())
		}
	}

	reward := m.blockReward
	if m.maxSupply > 0 && m.supplyFn != nil {
		currentSupply := m.supplyFn()
		if currentSupply >= m.maxSupply {
			reward = 0
		} else if currentSupply+reward > m.maxSupply {
			reward = m.maxSupply - currentSupply
		}
	}

	// selected is already ordered by SelectForBlock: fee-priority with any
	// in-block spend dependency placed after its funding transaction. Do
	// not re-sort here — resorting by id would undo that topological order
	// and could place a spend before the output it consumes.
	coinbase := BuildCoinbase(m.coinbaseAddr, reward+totalFees, m.chain.Height()+1)
	txs := make([]*tx.Transaction, 0, 1+len(selected))
	txs = append(txs, coinbase)
	txs = append(txs, selected...)

	txIDs := make([]types.Hash, len(txs))
	for i, t := range txs {
		txIDs[i] = t.ID()
	}
	merkle := block.ComputeMerkleRoot(txIDs)

	header := &block.Header{
		Index:        m.chain.Height() + 1,
		Timestamp:    timestamp,
		PreviousHash: m.chain.TipHash(),
		MerkleRoot:   merkle,
	}

	if err := m.engine.Prepare(header); err != nil {
		return nil, fmt.Errorf("prepare header: %w", err)
	}

	blk := block.NewBlock(header, txs)

	if velora, ok := m.engine.(*consensus.Velora); ok {
		if err := velora.SealWithCancel(ctx, blk); err != nil {
			return nil, fmt.Errorf("seal block: %w", err)
		}
	} else if err := m.engine.Seal(blk); err != nil {
		return nil, fmt.Errorf("seal block: %w", err)
	}

	return blk, nil
}

// BuildCoinbase creates a coinbase transaction paying reward to addr. Height
// is folded into the nonce so two coinbases paying the same address the
// same amount at different heights still produce distinct transaction ids.
func BuildCoinbase(addr types.Address, reward, height uint64) *tx.Transaction {
	return &tx.Transaction{
		Outputs: []tx.Output{{
			Address: addr,
			Amount:  reward,
			Tag:     tx.TagCoinbase,
		}},
		Nonce:      fmt.Sprintf("coinbase-%d", height),
		IsCoinbase: true,
		Tag:        tx.TagCoinbase,
	}
}
