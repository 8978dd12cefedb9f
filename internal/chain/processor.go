package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/pastellaproject/pastella/config"
	"github.com/pastellaproject/pastella/internal/utxo"
	"github.com/pastellaproject/pastella/pkg/block"
	"github.com/pastellaproject/pastella/pkg/tx"
	"github.com/pastellaproject/pastella/pkg/types"
)

// chainUTXOProvider adapts any utxo.Set to tx.UTXOProvider so candidate
// transactions can be validated against the live chain state.
type chainUTXOProvider struct {
	set utxo.Set
}

// Get implements tx.UTXOProvider.
func (p chainUTXOProvider) Get(op types.Outpoint) (tx.UTXOEntry, bool) {
	u, err := p.set.Get(op)
	if err != nil || u == nil {
		return tx.UTXOEntry{}, false
	}
	return tx.UTXOEntry{Address: u.Address, Amount: u.Amount}, true
}

// Block processing errors.
var (
	ErrBlockKnown             = errors.New("block already known")
	ErrPrevNotFound           = errors.New("previous block not found")
	ErrBadHeight              = errors.New("block height does not follow parent")
	ErrBadPrevHash            = errors.New("previous_hash does not match current tip")
	ErrApplyUTXO              = errors.New("failed to apply UTXO changes")
	ErrCoinbaseNotMature      = errors.New("coinbase output not mature")
	ErrTimestampTooFuture     = errors.New("block timestamp too far in the future")
	ErrTimestampBeforeParent  = errors.New("block timestamp before parent")
	ErrBadCoinbaseTx          = errors.New("invalid coinbase transaction")
	ErrCoinbaseRewardExceeded = errors.New("coinbase reward exceeds consensus limit")
	ErrDifficultyMismatch     = errors.New("block difficulty does not match expected retarget")
)

// maxFutureDrift bounds how far a block's timestamp may sit ahead of the
// node's own clock before it is rejected.
const maxFutureDrift = 2 * time.Hour

// ProcessBlock validates a block and applies it to the chain. It checks
// structural validity, consensus rules, and UTXO state, then updates the
// UTXO set, block store, and chain tip. If the block extends a fork that
// ends up heavier than the current chain, a reorg is triggered
// automatically.
func (c *Chain) ProcessBlock(blk *block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if blk == nil || blk.Header == nil {
		return fmt.Errorf("nil block or header")
	}

	hash := blk.Hash()

	known, err := c.blocks.HasBlock(hash)
	if err != nil {
		return fmt.Errorf("check block: %w", err)
	}
	if known {
		return ErrBlockKnown
	}

	// Check parent linkage first — we need the correct height before
	// verifying difficulty and running consensus validation.
	parentErr := c.checkParentLink(blk)
	if parentErr != nil && !errors.Is(parentErr, ErrForkDetected) {
		return parentErr
	}
	onFork := errors.Is(parentErr, ErrForkDetected)

	// Structural + consensus validation (hash recompute, target check).
	if err := c.validator.ValidateBlock(blk); err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	// Difficulty retarget must match chain history. Fork blocks are
	// re-verified during reorg replay, once their ancestry is settled.
	if !onFork {
		if err := c.checkDifficulty(blk); err != nil {
			return err
		}
	}

	maxTime := uint64(time.Now().Add(maxFutureDrift).UnixMilli())
	if blk.Header.Timestamp > maxTime {
		return fmt.Errorf("%w: block timestamp %d exceeds max %d", ErrTimestampTooFuture, blk.Header.Timestamp, maxTime)
	}
	if blk.Header.Index > 0 {
		parentBlk, err := c.blocks.GetBlock(blk.Header.PreviousHash)
		if err == nil && blk.Header.Timestamp < parentBlk.Header.Timestamp {
			return fmt.Errorf("%w: block timestamp %d < parent timestamp %d",
				ErrTimestampBeforeParent, blk.Header.Timestamp, parentBlk.Header.Timestamp)
		}
	}

	if onFork {
		if err := c.blocks.StoreBlock(blk); err != nil {
			return fmt.Errorf("store fork block: %w", err)
		}
		// PoW fork choice is always cumulative-difficulty based, so any
		// fork is a reorg candidate regardless of raw height.
		if err := c.Reorg(hash); err != nil {
			return fmt.Errorf("reorg: %w", err)
		}
		return nil
	}

	// Fast path: block extends current tip.
	if err := c.validateBlockState(blk); err != nil {
		return err
	}

	blockReward, err := c.computeBlockReward(blk)
	if err != nil {
		return fmt.Errorf("compute block reward: %w", err)
	}

	undo, err := c.applyBlockWithUndo(blk)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrApplyUTXO, err)
	}
	undo.BlockReward = blockReward

	if err := c.blocks.PutBlock(blk); err != nil {
		return fmt.Errorf("store block: %w", err)
	}
	if err := c.persistUndo(hash, undo); err != nil {
		return err
	}

	c.state.Supply += blockReward
	c.state.CumulativeDifficulty += blk.Header.Difficulty
	c.state.TipHash = hash
	c.state.Height = blk.Header.Index
	c.state.TipTimestamp = blk.Header.Timestamp

	if err := c.blocks.SetTip(hash, blk.Header.Index, c.state.Supply); err != nil {
		return fmt.Errorf("set tip: %w", err)
	}
	if err := c.blocks.SetCumulativeDifficulty(c.state.CumulativeDifficulty); err != nil {
		return fmt.Errorf("set cumulative difficulty: %w", err)
	}

	return nil
}

// validateBlockState checks UTXO-dependent rules: transaction signatures,
// coinbase shape, coinbase reward limit, and coinbase maturity. Used by
// both the fast path and reorg replay for consistent validation.
func (c *Chain) validateBlockState(blk *block.Block) error {
	coinbaseTx := blk.Transactions[0]

	if len(coinbaseTx.Inputs) != 0 {
		return ErrBadCoinbaseTx
	}

	utxoProvider := chainUTXOProvider{set: c.utxos}
	var totalFees uint64
	for i, transaction := range blk.Transactions {
		if i == 0 {
			continue // Coinbase.
		}
		fee, err := transaction.ValidateWithUTXOs(utxoProvider)
		if err != nil {
			return fmt.Errorf("tx %d validation: %w", i, err)
		}
		if totalFees > math.MaxUint64-fee {
			return fmt.Errorf("tx %d fee overflow", i)
		}
		totalFees += fee
	}

	coinbaseTotal, err := coinbaseTx.TotalOutputAmount()
	if err != nil {
		return fmt.Errorf("coinbase output overflow: %w", err)
	}
	var minted uint64
	if coinbaseTotal > totalFees {
		minted = coinbaseTotal - totalFees
	}
	allowedMint := c.subsidyAt(blk.Header.Index)
	if minted > allowedMint {
		return fmt.Errorf("%w: minted=%d allowed=%d", ErrCoinbaseRewardExceeded, minted, allowedMint)
	}

	// No non-coinbase transaction may spend the zero (null) outpoint.
	for i, transaction := range blk.Transactions[1:] {
		for _, in := range transaction.Inputs {
			if in.Outpoint().IsZero() {
				return fmt.Errorf("%w: tx %d contains coinbase input", ErrBadCoinbaseTx, i+1)
			}
		}
	}

	return c.checkCoinbaseMaturity(blk)
}

// checkParentLink verifies that the block's previous hash and index are
// consistent with the current chain tip.
func (c *Chain) checkParentLink(blk *block.Block) error {
	if c.state.IsGenesis() {
		if blk.Header.Index != 0 {
			return fmt.Errorf("%w: genesis must be index 0, got %d", ErrBadHeight, blk.Header.Index)
		}
		if !blk.Header.PreviousHash.IsZero() {
			return fmt.Errorf("%w: genesis must have zero previous_hash", ErrBadPrevHash)
		}
		return nil
	}

	if blk.Header.PreviousHash == c.state.TipHash {
		expectedHeight := c.state.Height + 1
		if blk.Header.Index != expectedHeight {
			return fmt.Errorf("%w: want %d, got %d", ErrBadHeight, expectedHeight, blk.Header.Index)
		}
		return nil
	}

	parentKnown, err := c.blocks.HasBlock(blk.Header.PreviousHash)
	if err != nil {
		return fmt.Errorf("check parent: %w", err)
	}
	if parentKnown {
		parentBlk, err := c.blocks.GetBlock(blk.Header.PreviousHash)
		if err != nil {
			return fmt.Errorf("load parent block: %w", err)
		}
		expectedHeight := parentBlk.Header.Index + 1
		if blk.Header.Index != expectedHeight {
			return fmt.Errorf("%w: parent index %d implies %d, got %d",
				ErrBadHeight, parentBlk.Header.Index, expectedHeight, blk.Header.Index)
		}
		return fmt.Errorf("%w: block %d forks from %s", ErrForkDetected, blk.Header.Index, blk.Header.PreviousHash)
	}
	return ErrPrevNotFound
}

// checkDifficulty verifies a block's stated difficulty matches the value
// the configured retarget algorithm expects at its height.
func (c *Chain) checkDifficulty(blk *block.Block) error {
	expected, err := c.expectedDifficulty(blk.Header.Index)
	if err != nil {
		return fmt.Errorf("compute expected difficulty: %w", err)
	}
	if blk.Header.Difficulty != expected {
		return fmt.Errorf("%w: want %d, got %d", ErrDifficultyMismatch, expected, blk.Header.Difficulty)
	}
	return nil
}

// computeBlockReward calculates the new coins minted by this block:
// coinbase output total minus total fees from non-coinbase transactions.
// Must be called before applyBlockWithUndo spends the UTXOs it reads.
func (c *Chain) computeBlockReward(blk *block.Block) (uint64, error) {
	if len(blk.Transactions) == 0 {
		return 0, nil
	}

	coinbaseValue, err := blk.Transactions[0].TotalOutputAmount()
	if err != nil {
		return 0, fmt.Errorf("coinbase output overflow: %w", err)
	}

	var totalFees uint64
	for _, transaction := range blk.Transactions[1:] {
		fee, err := c.computeTxFee(transaction)
		if err != nil {
			return 0, err
		}
		if totalFees > math.MaxUint64-fee {
			return 0, fmt.Errorf("fee overflow")
		}
		totalFees += fee
	}

	if coinbaseValue > totalFees {
		return coinbaseValue - totalFees, nil
	}
	return 0, nil
}

// computeTxFee calculates fee = sum(input amounts) - sum(output amounts).
// Must be called before the inputs are spent.
func (c *Chain) computeTxFee(transaction *tx.Transaction) (uint64, error) {
	var inputSum, outputSum uint64
	for _, in := range transaction.Inputs {
		if in.Outpoint().IsZero() {
			continue
		}
		u, err := c.utxos.Get(in.Outpoint())
		if err != nil {
			continue
		}
		if inputSum > math.MaxUint64-u.Amount {
			return 0, fmt.Errorf("input amount overflow")
		}
		inputSum += u.Amount
	}
	outputSum, err := transaction.TotalOutputAmount()
	if err != nil {
		return 0, err
	}
	if inputSum > outputSum {
		return inputSum - outputSum, nil
	}
	return 0, nil
}

// applyBlock updates the UTXO set: spends inputs and creates outputs.
// Coinbase inputs (zero outpoint) are skipped during spending. Used for
// genesis application and UTXO-rebuild replay, where no undo log is kept.
func (c *Chain) applyBlock(blk *block.Block) error {
	for txIdx, transaction := range blk.Transactions {
		txHash := transaction.ID()
		isCoinbase := txIdx == 0

		for _, in := range transaction.Inputs {
			if in.Outpoint().IsZero() {
				continue
			}
			if err := c.utxos.Delete(in.Outpoint()); err != nil {
				return fmt.Errorf("spend %s: %w", in.Outpoint(), err)
			}
		}

		for i, out := range transaction.Outputs {
			u := &utxo.UTXO{
				Outpoint:      types.Outpoint{TxID: txHash, Index: uint32(i)},
				Address:       out.Address,
				Amount:        out.Amount,
				HeightCreated: blk.Header.Index,
				Coinbase:      isCoinbase,
			}
			if err := c.utxos.Put(u); err != nil {
				return fmt.Errorf("create output %s:%d: %w", txHash, i, err)
			}
		}
	}
	return nil
}

// checkCoinbaseMaturity verifies that no transaction in the block spends
// an immature coinbase output.
func (c *Chain) checkCoinbaseMaturity(blk *block.Block) error {
	for _, transaction := range blk.Transactions {
		for _, in := range transaction.Inputs {
			if in.Outpoint().IsZero() {
				continue
			}
			u, err := c.utxos.Get(in.Outpoint())
			if err != nil {
				continue // Caught by UTXO validation.
			}
			if u.Coinbase && blk.Header.Index-u.HeightCreated < config.CoinbaseMaturity {
				return fmt.Errorf("%w: need %d confirmations, have %d",
					ErrCoinbaseNotMature, config.CoinbaseMaturity, blk.Header.Index-u.HeightCreated)
			}
		}
	}
	return nil
}

// persistUndo marshals and stores a block's undo data.
func (c *Chain) persistUndo(hash types.Hash, undo *UndoData) error {
	data, err := json.Marshal(undo)
	if err != nil {
		return fmt.Errorf("marshal undo: %w", err)
	}
	if err := c.blocks.PutUndo(hash, data); err != nil {
		return fmt.Errorf("store undo: %w", err)
	}
	return nil
}
