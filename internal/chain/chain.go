// Package chain implements the blockchain state machine: block validation,
// application, and reorg handling on top of the UTXO set.
package chain

import (
	"fmt"
	"sync"

	"github.com/pastellaproject/pastella/config"
	"github.com/pastellaproject/pastella/internal/consensus"
	"github.com/pastellaproject/pastella/internal/storage"
	"github.com/pastellaproject/pastella/internal/utxo"
	"github.com/pastellaproject/pastella/pkg/block"
	"github.com/pastellaproject/pastella/pkg/tx"
	"github.com/pastellaproject/pastella/pkg/types"
)

// RevertedTxHandler is called after a reorg with non-coinbase transactions
// from reverted blocks that are not present on the new branch, so the
// caller can re-offer them to the mempool.
type RevertedTxHandler func(txs []*tx.Transaction)

// Chain represents a blockchain instance: state, storage, and consensus
// wired together behind a single mutex.
type Chain struct {
	mu        sync.Mutex // Protects all state mutations (ProcessBlock, Reorg).
	state     *State
	blocks    *BlockStore
	utxos     utxo.Set
	engine    consensus.Engine
	validator *consensus.Validator

	blockTimeMS     uint64
	coinbaseReward  uint64
	halvingInterval uint64
	difficultyAlgo  consensus.Algorithm
	genesisHash     types.Hash

	revertedTxHandler RevertedTxHandler
}

// New creates a chain with the given components, recovering state from the
// block store if it already has blocks.
func New(db storage.DB, utxoSet utxo.Set, engine consensus.Engine) (*Chain, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	if utxoSet == nil {
		return nil, fmt.Errorf("utxo set is nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("consensus engine is nil")
	}

	blocks := NewBlockStore(db)

	tipHash, height, supply, err := blocks.GetTip()
	if err != nil {
		return nil, fmt.Errorf("recover tip: %w", err)
	}
	cumDiff := blocks.GetCumulativeDifficulty()

	var tipTimestamp uint64
	if !tipHash.IsZero() {
		if blk, err := blocks.GetBlock(tipHash); err == nil {
			tipTimestamp = blk.Header.Timestamp
		}
	}

	var genesisHash types.Hash
	if genBlk, err := blocks.GetBlockByHeight(0); err == nil {
		genesisHash = genBlk.Hash()
	}

	ch := &Chain{
		state: &State{
			TipHash:              tipHash,
			Height:               height,
			Supply:               supply,
			CumulativeDifficulty: cumDiff,
			TipTimestamp:         tipTimestamp,
		},
		blocks:      blocks,
		utxos:       utxoSet,
		engine:      engine,
		validator:   consensus.NewValidator(engine),
		genesisHash: genesisHash,
	}

	// A crash mid-reorg can leave the UTXO set inconsistent with the
	// persisted tip; the checkpoint left by Reorg triggers a full rebuild.
	if _, found := blocks.GetReorgCheckpoint(); found {
		if err := ch.RebuildUTXOs(); err != nil {
			return nil, fmt.Errorf("recover from interrupted reorg: %w", err)
		}
	}

	return ch, nil
}

// SetConsensusRules configures the economic/retargeting parameters read
// from node configuration. Call this on startup for both fresh and
// resumed chains.
func (c *Chain) SetConsensusRules(bc config.BlockchainConfig) {
	c.blockTimeMS = bc.BlockTime
	c.coinbaseReward = bc.CoinbaseReward
	c.halvingInterval = bc.HalvingInterval
	switch bc.DifficultyAlgorithm {
	case config.DifficultyAggressive:
		c.difficultyAlgo = consensus.AlgorithmAggressive
	case config.DifficultyDogecoin:
		c.difficultyAlgo = consensus.AlgorithmDogecoin
	default:
		c.difficultyAlgo = consensus.AlgorithmLWMA3
	}
}

// SetRevertedTxHandler sets the callback invoked after a reorg with
// transactions from reverted blocks that should be re-offered to the
// mempool.
func (c *Chain) SetRevertedTxHandler(fn RevertedTxHandler) {
	c.revertedTxHandler = fn
}

// InitFromGenesis initializes a fresh chain from genesis configuration.
// Returns an error if the chain already has blocks.
func (c *Chain) InitFromGenesis(gen *config.GenesisConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.IsGenesis() {
		return fmt.Errorf("chain already initialized at height %d", c.state.Height)
	}

	blk, err := CreateGenesisBlock(gen)
	if err != nil {
		return fmt.Errorf("create genesis: %w", err)
	}

	// Genesis bypasses ordinary block validation (no parent to check
	// against) but still runs through the PoW engine and UTXO application.
	if err := c.engine.VerifyHeader(blk.Header); err != nil {
		return fmt.Errorf("verify genesis header: %w", err)
	}

	if err := c.applyBlock(blk); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}

	if err := c.blocks.PutBlock(blk); err != nil {
		return fmt.Errorf("store genesis: %w", err)
	}

	supply := gen.PremineAmount
	hash := blk.Hash()

	c.state.TipHash = hash
	c.state.Height = 0
	c.state.Supply = supply
	c.state.CumulativeDifficulty = blk.Header.Difficulty
	c.state.TipTimestamp = blk.Header.Timestamp
	c.genesisHash = hash

	if err := c.blocks.SetTip(hash, 0, supply); err != nil {
		return fmt.Errorf("set genesis tip: %w", err)
	}
	if err := c.blocks.SetCumulativeDifficulty(blk.Header.Difficulty); err != nil {
		return fmt.Errorf("set genesis cumulative difficulty: %w", err)
	}

	return nil
}

// State returns a copy of the current chain state.
func (c *Chain) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.state
}

// GetBlock retrieves a block by its hash.
func (c *Chain) GetBlock(hash types.Hash) (*block.Block, error) {
	return c.blocks.GetBlock(hash)
}

// GetBlockByHeight retrieves a block by its height.
func (c *Chain) GetBlockByHeight(height uint64) (*block.Block, error) {
	return c.blocks.GetBlockByHeight(height)
}

// Height returns the current chain height.
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Height
}

// TipHash returns the hash of the current chain tip.
func (c *Chain) TipHash() types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.TipHash
}

// Supply returns the total coins in circulation.
func (c *Chain) Supply() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Supply
}

// TipTimestamp returns the timestamp of the current chain tip.
func (c *Chain) TipTimestamp() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.TipTimestamp
}

// CumulativeDifficulty returns the chain's total accumulated PoW difficulty,
// used for fork choice between competing tips.
func (c *Chain) CumulativeDifficulty() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.CumulativeDifficulty
}

// subsidyAt returns the coinbase subsidy for a block at the given height,
// halving every HalvingInterval blocks and flooring at zero once the
// shift count exceeds 63.
func (c *Chain) subsidyAt(height uint64) uint64 {
	if c.halvingInterval == 0 {
		return c.coinbaseReward
	}
	halvings := height / c.halvingInterval
	if halvings >= 64 {
		return 0
	}
	return c.coinbaseReward >> halvings
}

// getBlockTimestamp returns the timestamp of a block at the given height.
// Used as the difficulty sample source for the chosen retargeting
// algorithm.
func (c *Chain) getBlockTimestamp(height uint64) (uint64, error) {
	blk, err := c.blocks.GetBlockByHeight(height)
	if err != nil {
		return 0, err
	}
	return blk.Header.Timestamp, nil
}

// expectedDifficulty computes the difficulty a block at the given height
// must carry, sourced from up to a trailing window of samples ending at
// height-1.
func (c *Chain) expectedDifficulty(height uint64) (uint64, error) {
	if height == 0 {
		return 0, fmt.Errorf("genesis difficulty is not computed, it is configured")
	}

	const window = 90
	start := uint64(0)
	if height > window {
		start = height - window
	}

	samples := make([]consensus.Sample, 0, height-start)
	for h := start; h < height; h++ {
		blk, err := c.blocks.GetBlockByHeight(h)
		if err != nil {
			return 0, fmt.Errorf("load block at height %d for difficulty: %w", h, err)
		}
		samples = append(samples, consensus.Sample{Timestamp: blk.Header.Timestamp, Difficulty: blk.Header.Difficulty})
	}

	return consensus.NextDifficulty(c.difficultyAlgo, samples, c.blockTimeMS), nil
}

// ExpectedDifficulty reports the difficulty a block at height must carry
// under the chain's configured retarget algorithm. Exposed for callers
// building a block template (e.g. the admin API's pending-block endpoint)
// ahead of actually mining it.
func (c *Chain) ExpectedDifficulty(height uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if height == 0 {
		return c.genesisDifficulty(), nil
	}
	return c.expectedDifficulty(height)
}

// genesisDifficulty returns the difficulty recorded for block 0, read back
// off the stored genesis block.
func (c *Chain) genesisDifficulty() uint64 {
	blk, err := c.blocks.GetBlockByHeight(0)
	if err != nil {
		return 0
	}
	return blk.Header.Difficulty
}

// RebuildUTXOs clears the UTXO set and replays all blocks from genesis to
// the current tip, reconstructing UTXO state. Used to recover from a crash
// during reorg where the UTXO set may be inconsistent.
func (c *Chain) RebuildUTXOs() error {
	store, ok := c.utxos.(*utxo.Store)
	if !ok {
		return fmt.Errorf("UTXO set does not support ClearAll (not *utxo.Store)")
	}

	if err := store.ClearAll(); err != nil {
		return fmt.Errorf("clear utxo set: %w", err)
	}

	var supply uint64
	var cumDiff uint64
	for h := uint64(0); h <= c.state.Height; h++ {
		blk, err := c.blocks.GetBlockByHeight(h)
		if err != nil {
			return fmt.Errorf("load block at height %d: %w", h, err)
		}

		if err := c.applyBlock(blk); err != nil {
			return fmt.Errorf("replay block at height %d: %w", h, err)
		}

		reward, err := c.computeBlockReward(blk)
		if err != nil {
			return fmt.Errorf("compute reward at height %d: %w", h, err)
		}
		supply += reward
		cumDiff += blk.Header.Difficulty
	}

	c.state.Supply = supply
	c.state.CumulativeDifficulty = cumDiff

	if err := c.blocks.SetTip(c.state.TipHash, c.state.Height, supply); err != nil {
		return fmt.Errorf("set tip after rebuild: %w", err)
	}
	if err := c.blocks.SetCumulativeDifficulty(cumDiff); err != nil {
		return fmt.Errorf("set cumulative difficulty after rebuild: %w", err)
	}
	if err := c.blocks.DeleteReorgCheckpoint(); err != nil {
		return fmt.Errorf("delete reorg checkpoint: %w", err)
	}

	return nil
}

// GetTransaction looks up a confirmed transaction by hash via the tx index.
func (c *Chain) GetTransaction(hash types.Hash) (*tx.Transaction, error) {
	_, blockHash, err := c.blocks.GetTxLocation(hash)
	if err != nil {
		return nil, err
	}
	blk, err := c.blocks.GetBlock(blockHash)
	if err != nil {
		return nil, fmt.Errorf("load block for tx: %w", err)
	}
	for _, t := range blk.Transactions {
		if t.ID() == hash {
			return t, nil
		}
	}
	return nil, fmt.Errorf("tx %s not found in block %s (index corrupt)", hash, blockHash)
}
