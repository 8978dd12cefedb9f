// Package utxo manages the unspent transaction output set.
package utxo

import "github.com/pastellaproject/pastella/pkg/types"

// UTXO represents an unspent transaction output.
type UTXO struct {
	Outpoint      types.Outpoint `json:"outpoint"`
	Address       types.Address  `json:"address"`
	Amount        uint64         `json:"amount"`
	HeightCreated uint64         `json:"height_created"`
	Coinbase      bool           `json:"coinbase"`
}

// Set is the interface for UTXO storage. An entry's presence in the set
// means unspent; Delete is how a spend is recorded, so there is no
// separate "spent" flag to track or forget to clear.
type Set interface {
	Get(outpoint types.Outpoint) (*UTXO, error)
	Put(u *UTXO) error
	Delete(outpoint types.Outpoint) error
	Has(outpoint types.Outpoint) (bool, error)
}
