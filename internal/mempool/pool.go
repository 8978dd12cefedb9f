// Package mempool manages pending transactions waiting for block inclusion.
package mempool

import (
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/pastellaproject/pastella/internal/utxo"
	"github.com/pastellaproject/pastella/pkg/perrors"
	"github.com/pastellaproject/pastella/pkg/tx"
	"github.com/pastellaproject/pastella/pkg/types"
)

// entry wraps a transaction with its fee and bookkeeping metadata.
type entry struct {
	tx        *tx.Transaction
	id        types.Hash
	fee       uint64
	sizeBytes int
	feeRate   float64 // fee per byte of SigningBytes
	arrivedAt uint64  // ms, oldest-first tiebreak for equal fee rates
}

// seenNonce tracks a (nonce, sender pubkey) pair admitted to the pool, so
// it can be rejected as a replay until its originating transaction expires.
type seenNonce struct {
	id        types.Hash
	expiresAt uint64
}

// Pool holds unconfirmed, validated transactions, indexed by id and
// bounded by total serialized size rather than transaction count.
type Pool struct {
	mu           sync.RWMutex
	txs          map[types.Hash]*entry
	spends       map[types.Outpoint]types.Hash // outpoint -> spending tx id (conflict index)
	seen         map[string]seenNonce          // nonce|pubkey -> admitting tx (replay index)
	maxSizeBytes int
	sizeBytes    int
	minFeeRate   uint64
	utxos        tx.UTXOProvider

	// Coinbase maturity checking.
	utxoSet          utxo.Set      // nil disables the maturity check
	heightFn         func() uint64 // current chain height
	coinbaseMaturity uint64        // required confirmations (0 = disabled)
}

// New creates a new mempool bounded by maxSizeKB kilobytes of serialized
// transaction data (spec.md's max_size_kb).
func New(utxos tx.UTXOProvider, maxSizeKB int) *Pool {
	if maxSizeKB <= 0 {
		maxSizeKB = 5000 // 5 MB default
	}
	return &Pool{
		txs:          make(map[types.Hash]*entry),
		spends:       make(map[types.Outpoint]types.Hash),
		seen:         make(map[string]seenNonce),
		maxSizeBytes: maxSizeKB * 1024,
		utxos:        utxos,
	}
}

// nonceKeys returns the replay-index keys for a transaction's signers: one
// per distinct input public key, paired with the transaction's nonce.
func nonceKeys(transaction *tx.Transaction) []string {
	seen := make(map[string]bool)
	keys := make([]string, 0, len(transaction.Inputs))
	for _, in := range transaction.Inputs {
		pk := hex.EncodeToString(in.PublicKey)
		if seen[pk] {
			continue
		}
		seen[pk] = true
		keys = append(keys, transaction.Nonce+"|"+pk)
	}
	return keys
}

// SetMinFeeRate sets the minimum fee rate (atomic units per byte) for
// transaction acceptance.
func (p *Pool) SetMinFeeRate(rate uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minFeeRate = rate
}

// MinFeeRate returns the current minimum fee rate.
func (p *Pool) MinFeeRate() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.minFeeRate
}

// SetCoinbaseMaturity enables coinbase maturity checking: a coinbase
// output cannot be spent by a mempool transaction until it has accrued
// maturity confirmations.
func (p *Pool) SetCoinbaseMaturity(maturity uint64, heightFn func() uint64, set utxo.Set) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.coinbaseMaturity = maturity
	p.heightFn = heightFn
	p.utxoSet = set
}

// Add validates and admits a transaction to the mempool at the given
// wall-clock time (ms). Returns the computed fee.
func (p *Pool) Add(transaction *tx.Transaction, now uint64) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := transaction.ID()

	if _, exists := p.txs[id]; exists {
		return 0, perrors.New(perrors.KindInvalidTransaction, "transaction already in mempool")
	}

	if transaction.ExpiresAt <= now {
		return 0, perrors.New(perrors.KindExpired, fmt.Sprintf("transaction expired at %d, now %d", transaction.ExpiresAt, now))
	}
	if err := transaction.CheckTimestamp(now); err != nil {
		return 0, err
	}

	for _, in := range transaction.Inputs {
		op := in.Outpoint()
		if conflict, exists := p.spends[op]; exists {
			return 0, perrors.New(perrors.KindDoubleSpend, fmt.Sprintf("input %s already spent by mempool tx %s", op, conflict))
		}
	}

	keys := nonceKeys(transaction)
	if !transaction.IsCoinbase {
		for _, k := range keys {
			if s, exists := p.seen[k]; exists && s.id != id {
				return 0, perrors.New(perrors.KindReplayedNonce, fmt.Sprintf("nonce %q already used by tx %s", transaction.Nonce, s.id))
			}
		}
	}

	if p.coinbaseMaturity > 0 && p.utxoSet != nil {
		height := p.heightFn()
		for _, in := range transaction.Inputs {
			u, err := p.utxoSet.Get(in.Outpoint())
			if err != nil {
				continue // resolved by ValidateWithUTXOs below
			}
			if u.Coinbase && height-u.HeightCreated < p.coinbaseMaturity {
				return 0, perrors.New(perrors.KindCoinbaseViolation,
					fmt.Sprintf("coinbase output %s needs %d confirmations, has %d", in.Outpoint(), p.coinbaseMaturity, height-u.HeightCreated))
			}
		}
	}

	fee, err := transaction.ValidateWithUTXOs(p.utxos)
	if err != nil {
		return 0, err
	}

	sizeBytes := len(transaction.SigningBytes())
	var feeRate float64
	if sizeBytes > 0 {
		feeRate = float64(fee) / float64(sizeBytes)
	}

	if p.minFeeRate > 0 {
		required := p.minFeeRate * uint64(sizeBytes)
		if fee < required {
			return 0, perrors.New(perrors.KindFeeTooLow, fmt.Sprintf("fee %d below required %d (%d bytes x %d/byte)", fee, required, sizeBytes, p.minFeeRate))
		}
	}

	if p.sizeBytes+sizeBytes > p.maxSizeBytes {
		if !p.makeRoomLocked(sizeBytes, feeRate) {
			return 0, perrors.New(perrors.KindInvalidTransaction, "mempool full: transaction fee rate too low to evict room")
		}
	}

	e := &entry{
		tx:        transaction,
		id:        id,
		fee:       fee,
		sizeBytes: sizeBytes,
		feeRate:   feeRate,
		arrivedAt: now,
	}

	p.txs[id] = e
	p.sizeBytes += sizeBytes
	for _, in := range transaction.Inputs {
		p.spends[in.Outpoint()] = id
	}
	for _, k := range keys {
		p.seen[k] = seenNonce{id: id, expiresAt: transaction.ExpiresAt}
	}

	return fee, nil
}

// makeRoomLocked evicts the lowest fee-rate (then oldest) entries until
// there is room for an additional needBytes, provided the incoming
// candidateFeeRate beats what would be evicted. Must be called with
// p.mu held.
func (p *Pool) makeRoomLocked(needBytes int, candidateFeeRate float64) bool {
	victims := p.sortedByEvictionOrderLocked()
	freed := 0
	var toRemove []types.Hash
	for _, e := range victims {
		if e.feeRate >= candidateFeeRate {
			break // nothing cheaper left to evict for this candidate
		}
		toRemove = append(toRemove, e.id)
		freed += e.sizeBytes
		if p.sizeBytes-freed+needBytes <= p.maxSizeBytes {
			for _, id := range toRemove {
				p.removeLocked(id)
			}
			return true
		}
	}
	return false
}

// sortedByEvictionOrderLocked returns entries ordered lowest fee-rate
// first, ties broken oldest-arrival first.
func (p *Pool) sortedByEvictionOrderLocked() []*entry {
	entries := make([]*entry, 0, len(p.txs))
	for _, e := range p.txs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].feeRate != entries[j].feeRate {
			return entries[i].feeRate < entries[j].feeRate
		}
		return entries[i].arrivedAt < entries[j].arrivedAt
	})
	return entries
}

// Remove removes a transaction from the mempool by id.
func (p *Pool) Remove(id types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(id)
}

func (p *Pool) removeLocked(id types.Hash) {
	e, exists := p.txs[id]
	if !exists {
		return
	}
	for _, in := range e.tx.Inputs {
		delete(p.spends, in.Outpoint())
	}
	for _, k := range nonceKeys(e.tx) {
		if s, ok := p.seen[k]; ok && s.id == id {
			delete(p.seen, k)
		}
	}
	delete(p.txs, id)
	p.sizeBytes -= e.sizeBytes
}

// RemoveConfirmed removes all transactions that were included in a block.
func (p *Pool) RemoveConfirmed(transactions []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range transactions {
		p.removeLocked(t.ID())
	}
}

// Cleanup removes transactions that have expired as of now (ms) and
// returns how many were evicted.
func (p *Pool) Cleanup(now uint64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var expired []types.Hash
	for id, e := range p.txs {
		if e.tx.ExpiresAt <= now {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		p.removeLocked(id)
	}
	return len(expired)
}

// Has checks if a transaction exists in the mempool.
func (p *Pool) Has(id types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.txs[id]
	return exists
}

// Get retrieves a transaction from the mempool.
func (p *Pool) Get(id types.Hash) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[id]
	if !exists {
		return nil
	}
	return e.tx
}

// GetFee returns the fee for a transaction in the mempool (0 if not found).
func (p *Pool) GetFee(id types.Hash) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[id]
	if !exists {
		return 0
	}
	return e.fee
}

// Count returns the number of transactions in the mempool.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// SizeBytes returns the total serialized size of all pooled transactions.
func (p *Pool) SizeBytes() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sizeBytes
}

// Hashes returns the ids of all transactions in the mempool.
func (p *Pool) Hashes() []types.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]types.Hash, 0, len(p.txs))
	for id := range p.txs {
		ids = append(ids, id)
	}
	return ids
}

// SelectForBlock greedily selects transactions by descending fee-per-byte
// until maxBytes of serialized size would be exceeded (maxBytes <= 0 means
// unbounded), then topologically orders the result so that a transaction
// spending another selected transaction's output always comes after it.
func (p *Pool) SelectForBlock(maxBytes int) []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]*entry, 0, len(p.txs))
	for _, e := range p.txs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].feeRate != entries[j].feeRate {
			return entries[i].feeRate > entries[j].feeRate
		}
		return entries[i].arrivedAt < entries[j].arrivedAt
	})

	selected := make([]*tx.Transaction, 0, len(entries))
	used := 0
	for _, e := range entries {
		if maxBytes > 0 && used+e.sizeBytes > maxBytes {
			continue
		}
		selected = append(selected, e.tx)
		used += e.sizeBytes
	}

	return topoOrder(selected)
}

// topoOrder reorders transactions so that any transaction spending an
// output produced by another transaction in the same set is placed
// after its producer. Transactions with no in-set dependency keep their
// relative (fee-priority) order.
func topoOrder(txs []*tx.Transaction) []*tx.Transaction {
	byID := make(map[types.Hash]*tx.Transaction, len(txs))
	for _, t := range txs {
		byID[t.ID()] = t
	}

	visited := make(map[types.Hash]bool, len(txs))
	visiting := make(map[types.Hash]bool, len(txs))
	ordered := make([]*tx.Transaction, 0, len(txs))

	var visit func(t *tx.Transaction)
	visit = func(t *tx.Transaction) {
		id := t.ID()
		if visited[id] || visiting[id] {
			return
		}
		visiting[id] = true
		for _, in := range t.Inputs {
			if parent, ok := byID[in.TxID]; ok {
				visit(parent)
			}
		}
		visiting[id] = false
		visited[id] = true
		ordered = append(ordered, t)
	}

	for _, t := range txs {
		visit(t)
	}
	return ordered
}

// findLowestFeeRate is retained for callers that want a single eviction
// candidate without running the full make-room search.
func (p *Pool) findLowestFeeRate() (types.Hash, float64) {
	var lowestID types.Hash
	lowestRate := math.MaxFloat64
	for id, e := range p.txs {
		if e.feeRate < lowestRate {
			lowestRate = e.feeRate
			lowestID = id
		}
	}
	return lowestID, lowestRate
}
