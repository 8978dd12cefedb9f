package wallet

import "github.com/pastellaproject/pastella/pkg/types"

// Account represents a wallet account.
type Account struct {
	Index   uint32
	Name    string
	Address types.Address
}
