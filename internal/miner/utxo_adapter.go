package miner

import (
	"github.com/pastellaproject/pastella/internal/utxo"
	"github.com/pastellaproject/pastella/pkg/tx"
	"github.com/pastellaproject/pastella/pkg/types"
)

// UTXOAdapter bridges utxo.Set to tx.UTXOProvider so the miner (and
// anything else validating candidate transactions before inclusion) can
// reuse the chain's persistent UTXO set directly.
type UTXOAdapter struct {
	set utxo.Set
}

// NewUTXOAdapter creates a UTXOProvider from a utxo.Set.
func NewUTXOAdapter(set utxo.Set) *UTXOAdapter {
	return &UTXOAdapter{set: set}
}

// Get returns the address and amount for a given outpoint, satisfying
// tx.UTXOProvider.
func (a *UTXOAdapter) Get(outpoint types.Outpoint) (tx.UTXOEntry, bool) {
	u, err := a.set.Get(outpoint)
	if err != nil || u == nil {
		return tx.UTXOEntry{}, false
	}
	return tx.UTXOEntry{Address: u.Address, Amount: u.Amount}, true
}
