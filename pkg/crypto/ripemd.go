package crypto

import (
	"github.com/pastellaproject/pastella/pkg/types"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // spec requires RIPEMD160 for address derivation
)

// ripemd160Hash returns RIPEMD160(h), used as the second step of address
// derivation (spec: Address = Base58Check(version ‖ RIPEMD160(SHA256(pubkey)))).
func ripemd160Hash(h types.Hash) []byte {
	r := ripemd160.New()
	r.Write(h[:])
	return r.Sum(nil)
}
