package chain

import (
	"encoding/json"
	"fmt"

	"github.com/pastellaproject/pastella/internal/utxo"
	"github.com/pastellaproject/pastella/pkg/block"
	"github.com/pastellaproject/pastella/pkg/tx"
	"github.com/pastellaproject/pastella/pkg/types"
)

// UndoData stores the information needed to revert a block's UTXO changes.
type UndoData struct {
	SpentUTXOs       []utxo.UTXO      `json:"spent_utxos"`
	CreatedOutpoints []types.Outpoint `json:"created_outpoints"`
	TxHashes         []types.Hash     `json:"tx_hashes"`
	BlockReward      uint64           `json:"block_reward"`
}

// ErrForkDetected indicates a valid block whose parent is known but is not
// the current tip. The caller should decide whether to reorg.
var ErrForkDetected = fmt.Errorf("fork detected")

// ErrReorgTooDeep is returned when a reorg exceeds MaxReorgDepth.
var ErrReorgTooDeep = fmt.Errorf("reorg too deep")

// ErrGenesisReorg is returned when a reorg would replace the genesis block.
var ErrGenesisReorg = fmt.Errorf("reorg would replace genesis block")

// MaxReorgDepth is the maximum number of blocks that can be reverted in a
// reorg.
const MaxReorgDepth = 1000

// applyBlockWithUndo applies a block to the UTXO set and returns undo data.
func (c *Chain) applyBlockWithUndo(blk *block.Block) (*UndoData, error) {
	undo := &UndoData{}

	for txIdx, transaction := range blk.Transactions {
		txHash := transaction.ID()
		undo.TxHashes = append(undo.TxHashes, txHash)
		isCoinbase := txIdx == 0

		for _, in := range transaction.Inputs {
			if in.Outpoint().IsZero() {
				continue
			}
			u, err := c.utxos.Get(in.Outpoint())
			if err != nil {
				return nil, fmt.Errorf("get utxo for undo %s: %w", in.Outpoint(), err)
			}
			undo.SpentUTXOs = append(undo.SpentUTXOs, *u)

			if err := c.utxos.Delete(in.Outpoint()); err != nil {
				return nil, fmt.Errorf("spend %s: %w", in.Outpoint(), err)
			}
		}

		for i, out := range transaction.Outputs {
			op := types.Outpoint{TxID: txHash, Index: uint32(i)}
			undo.CreatedOutpoints = append(undo.CreatedOutpoints, op)

			u := &utxo.UTXO{
				Outpoint:      op,
				Address:       out.Address,
				Amount:        out.Amount,
				HeightCreated: blk.Header.Index,
				Coinbase:      isCoinbase,
			}
			if err := c.utxos.Put(u); err != nil {
				return nil, fmt.Errorf("create output %s:%d: %w", txHash, i, err)
			}
		}
	}

	return undo, nil
}

// revertBlock undoes a block's UTXO changes using stored undo data.
func (c *Chain) revertBlock(undo *UndoData) error {
	for i := len(undo.CreatedOutpoints) - 1; i >= 0; i-- {
		if err := c.utxos.Delete(undo.CreatedOutpoints[i]); err != nil {
			return fmt.Errorf("delete created output %s: %w", undo.CreatedOutpoints[i], err)
		}
	}

	for i := range undo.SpentUTXOs {
		if err := c.utxos.Put(&undo.SpentUTXOs[i]); err != nil {
			return fmt.Errorf("restore utxo %s: %w", undo.SpentUTXOs[i].Outpoint, err)
		}
	}

	for _, txHash := range undo.TxHashes {
		if err := c.blocks.DeleteTxIndex(txHash); err != nil {
			return fmt.Errorf("delete tx index %s: %w", txHash, err)
		}
	}

	return nil
}

// Reorg switches the chain from the current tip to the new tip. It finds
// the common ancestor, reverts old blocks, and replays new blocks. The
// reorg only proceeds if the new branch carries more cumulative
// difficulty than the branch it would replace.
func (c *Chain) Reorg(newTipHash types.Hash) error {
	newBranch, err := c.collectBranch(newTipHash)
	if err != nil {
		return fmt.Errorf("collect new branch: %w", err)
	}
	if len(newBranch) == 0 {
		return fmt.Errorf("empty new branch")
	}

	forkHeight := newBranch[0].Header.Index - 1
	oldHeight := c.state.Height

	var newBranchWork, oldBranchWork uint64
	for _, blk := range newBranch {
		newBranchWork += blk.Header.Difficulty
	}
	for h := forkHeight + 1; h <= oldHeight; h++ {
		blk, err := c.blocks.GetBlockByHeight(h)
		if err != nil {
			return fmt.Errorf("load old block for work comparison at height %d: %w", h, err)
		}
		oldBranchWork += blk.Header.Difficulty
	}
	if newBranchWork <= oldBranchWork {
		return nil // New branch doesn't outweigh the current chain.
	}

	if err := c.blocks.PutReorgCheckpoint(forkHeight); err != nil {
		return fmt.Errorf("write reorg checkpoint: %w", err)
	}

	var revertedTxs []*tx.Transaction

	for h := oldHeight; h > forkHeight; h-- {
		blk, err := c.blocks.GetBlockByHeight(h)
		if err != nil {
			return fmt.Errorf("load old block at height %d: %w", h, err)
		}
		bHash := blk.Hash()
		undoBytes, err := c.blocks.GetUndo(bHash)
		if err != nil {
			// Undo data missing — fall back to a full UTXO rebuild.
			return c.rebuildReorg(newBranch, forkHeight)
		}
		var undo UndoData
		if err := json.Unmarshal(undoBytes, &undo); err != nil {
			return fmt.Errorf("unmarshal undo for block %s: %w", bHash, err)
		}

		if err := c.revertBlock(&undo); err != nil {
			return fmt.Errorf("revert block %s: %w", bHash, err)
		}

		if len(blk.Transactions) > 1 {
			revertedTxs = append(revertedTxs, blk.Transactions[1:]...)
		}

		if undo.BlockReward > c.state.Supply {
			return fmt.Errorf("supply underflow at height %d: reward %d > supply %d", h, undo.BlockReward, c.state.Supply)
		}
		c.state.Supply -= undo.BlockReward
		c.state.CumulativeDifficulty -= blk.Header.Difficulty

		if err := c.blocks.DeleteUndo(bHash); err != nil {
			return fmt.Errorf("delete undo for block %s: %w", bHash, err)
		}
	}

	for _, blk := range newBranch {
		if err := c.validator.ValidateBlock(blk); err != nil {
			return fmt.Errorf("validate replay block at index %d: %w", blk.Header.Index, err)
		}
		if err := c.checkDifficulty(blk); err != nil {
			return fmt.Errorf("difficulty check replay block at index %d: %w", blk.Header.Index, err)
		}
		if err := c.validateBlockState(blk); err != nil {
			return fmt.Errorf("state validation replay block at index %d: %w", blk.Header.Index, err)
		}

		blockReward, err := c.computeBlockReward(blk)
		if err != nil {
			return fmt.Errorf("compute reward at index %d: %w", blk.Header.Index, err)
		}

		undo, err := c.applyBlockWithUndo(blk)
		if err != nil {
			return fmt.Errorf("apply new block at index %d: %w", blk.Header.Index, err)
		}
		undo.BlockReward = blockReward

		bHash := blk.Hash()
		if err := c.blocks.PutBlock(blk); err != nil {
			return fmt.Errorf("store replay block at index %d: %w", blk.Header.Index, err)
		}
		if err := c.persistUndo(bHash, undo); err != nil {
			return err
		}

		if c.state.Supply > ^uint64(0)-blockReward {
			return fmt.Errorf("supply overflow at index %d: supply %d + reward %d", blk.Header.Index, c.state.Supply, blockReward)
		}
		c.state.Supply += blockReward
		c.state.CumulativeDifficulty += blk.Header.Difficulty

		if err := c.blocks.SetTip(bHash, blk.Header.Index, c.state.Supply); err != nil {
			return fmt.Errorf("set tip during replay at index %d: %w", blk.Header.Index, err)
		}
		if err := c.blocks.SetCumulativeDifficulty(c.state.CumulativeDifficulty); err != nil {
			return fmt.Errorf("set cumulative difficulty during replay at index %d: %w", blk.Header.Index, err)
		}
	}

	tip := newBranch[len(newBranch)-1]
	c.state.TipHash = tip.Hash()
	c.state.Height = tip.Header.Index
	c.state.TipTimestamp = tip.Header.Timestamp

	if err := c.blocks.DeleteReorgCheckpoint(); err != nil {
		return fmt.Errorf("delete reorg checkpoint: %w", err)
	}

	// Return reverted non-coinbase transactions to the mempool, excluding
	// any that reappear in the new branch.
	if c.revertedTxHandler != nil && len(revertedTxs) > 0 {
		newBranchTxs := make(map[types.Hash]bool)
		for _, blk := range newBranch {
			for _, t := range blk.Transactions {
				newBranchTxs[t.ID()] = true
			}
		}
		var toReturn []*tx.Transaction
		for _, t := range revertedTxs {
			if !newBranchTxs[t.ID()] {
				toReturn = append(toReturn, t)
			}
		}
		if len(toReturn) > 0 {
			c.revertedTxHandler(toReturn)
		}
	}

	return nil
}

// collectBranch collects blocks from the given hash back to the fork
// point (common ancestor with the current main chain), returned in
// ascending index order (fork+1 ... newTip).
func (c *Chain) collectBranch(tipHash types.Hash) ([]*block.Block, error) {
	var branch []*block.Block
	hash := tipHash

	for {
		blk, err := c.blocks.GetBlock(hash)
		if err != nil {
			return nil, fmt.Errorf("load block %s: %w", hash, err)
		}
		branch = append(branch, blk)

		if len(branch) > MaxReorgDepth {
			return nil, fmt.Errorf("%w: branch exceeds %d blocks", ErrReorgTooDeep, MaxReorgDepth)
		}

		if blk.Header.Index == 0 {
			if !c.genesisHash.IsZero() && blk.Hash() != c.genesisHash {
				return nil, ErrGenesisReorg
			}
			break
		}
		parentIndex := blk.Header.Index - 1
		mainBlock, err := c.blocks.GetBlockByHeight(parentIndex)
		if err == nil && mainBlock.Hash() == blk.Header.PreviousHash {
			break // Common ancestor found.
		}
		hash = blk.Header.PreviousHash
	}

	for i, j := 0, len(branch)-1; i < j; i, j = i+1, j-1 {
		branch[i], branch[j] = branch[j], branch[i]
	}

	return branch, nil
}

// rebuildReorg handles a reorg when undo data is missing for old-branch
// blocks. Instead of reverting individual blocks, it indexes the new
// branch by height, clears the entire UTXO set, and replays every block
// from genesis through the new tip. Slower than undo-based reorg but
// always correct.
func (c *Chain) rebuildReorg(newBranch []*block.Block, forkHeight uint64) error {
	store, ok := c.utxos.(*utxo.Store)
	if !ok {
		return fmt.Errorf("rebuild reorg: UTXO set does not support ClearAll (not *utxo.Store)")
	}

	newTip := newBranch[len(newBranch)-1]
	newTipHash := newTip.Hash()

	for _, blk := range newBranch {
		if err := c.blocks.PutBlock(blk); err != nil {
			return fmt.Errorf("rebuild reorg: index block at index %d: %w", blk.Header.Index, err)
		}
	}

	if err := store.ClearAll(); err != nil {
		return fmt.Errorf("rebuild reorg: clear UTXOs: %w", err)
	}

	var supply uint64
	var cumDiff uint64
	for h := uint64(0); h <= newTip.Header.Index; h++ {
		blk, err := c.blocks.GetBlockByHeight(h)
		if err != nil {
			return fmt.Errorf("rebuild reorg: load block at index %d: %w", h, err)
		}

		if h > forkHeight {
			if err := c.validator.ValidateBlock(blk); err != nil {
				return fmt.Errorf("rebuild reorg: validate block at index %d: %w", h, err)
			}
			if err := c.checkDifficulty(blk); err != nil {
				return fmt.Errorf("rebuild reorg: difficulty check at index %d: %w", h, err)
			}
			if err := c.validateBlockState(blk); err != nil {
				return fmt.Errorf("rebuild reorg: state validation at index %d: %w", h, err)
			}
		}

		blockReward, err := c.computeBlockReward(blk)
		if err != nil {
			return fmt.Errorf("rebuild reorg: compute reward at index %d: %w", h, err)
		}

		undo, err := c.applyBlockWithUndo(blk)
		if err != nil {
			return fmt.Errorf("rebuild reorg: apply block at index %d: %w", h, err)
		}
		undo.BlockReward = blockReward

		if err := c.persistUndo(blk.Hash(), undo); err != nil {
			return fmt.Errorf("rebuild reorg: %w", err)
		}

		supply += blockReward
		cumDiff += blk.Header.Difficulty
	}

	c.state.TipHash = newTipHash
	c.state.Height = newTip.Header.Index
	c.state.TipTimestamp = newTip.Header.Timestamp
	c.state.Supply = supply
	c.state.CumulativeDifficulty = cumDiff

	if err := c.blocks.SetTip(newTipHash, newTip.Header.Index, supply); err != nil {
		return fmt.Errorf("rebuild reorg: set tip: %w", err)
	}
	if err := c.blocks.SetCumulativeDifficulty(cumDiff); err != nil {
		return fmt.Errorf("rebuild reorg: set cumulative difficulty: %w", err)
	}
	if err := c.blocks.DeleteReorgCheckpoint(); err != nil {
		return fmt.Errorf("rebuild reorg: delete checkpoint: %w", err)
	}

	return nil
}
