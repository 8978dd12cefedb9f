package tx

import (
	"fmt"
	"math"

	"github.com/pastellaproject/pastella/pkg/crypto"
	"github.com/pastellaproject/pastella/pkg/perrors"
	"github.com/pastellaproject/pastella/pkg/types"
)

// UTXOEntry is the view of a spendable output exposed by a UTXOProvider.
type UTXOEntry struct {
	Address types.Address
	Amount  uint64
}

// UTXOProvider provides read-only access to the UTXO set for validation.
// Implementations must reflect the mempool-overlay view (a UTXO spent by an
// already-admitted mempool transaction must not be returned).
type UTXOProvider interface {
	Get(outpoint types.Outpoint) (UTXOEntry, bool)
}

// ValidateWithUTXOs performs full consensus validation of a non-coinbase
// transaction: structure, input existence, public-key-to-address binding,
// signatures, and the input/output/fee balance. Returns the resolved fee.
func (t *Transaction) ValidateWithUTXOs(provider UTXOProvider) (uint64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	if t.IsCoinbase {
		return 0, nil
	}

	var totalInput uint64
	for i, in := range t.Inputs {
		entry, ok := provider.Get(in.Outpoint())
		if !ok {
			return 0, perrors.New(perrors.KindUnknownInput, fmt.Sprintf("input %d (%s): not found or already spent", i, in.Outpoint()))
		}
		if err := verifyP2PKH(in.PublicKey, entry.Address); err != nil {
			return 0, perrors.Wrap(perrors.KindBadSignature, fmt.Sprintf("input %d: public key does not match output address", i), err)
		}
		if totalInput > math.MaxUint64-entry.Amount {
			return 0, perrors.New(perrors.KindInvalidTransaction, fmt.Sprintf("input %d: amount overflow", i))
		}
		totalInput += entry.Amount
	}

	if err := t.VerifySignatures(); err != nil {
		return 0, err
	}

	totalOutput, err := t.TotalOutputAmount()
	if err != nil {
		return 0, perrors.Wrap(perrors.KindInvalidTransaction, "output overflow", err)
	}
	if totalOutput > math.MaxUint64-t.Fee {
		return 0, perrors.New(perrors.KindInvalidTransaction, "output+fee overflow")
	}
	if totalInput < totalOutput+t.Fee {
		return 0, perrors.New(perrors.KindInsufficientFunds,
			fmt.Sprintf("inputs=%d outputs=%d declared_fee=%d", totalInput, totalOutput, t.Fee))
	}

	// Inputs may exceed outputs+declared fee; per spec.md §4.3 the excess
	// is additional fee, not an error — the resolved fee is what the
	// block reward accounting and mempool fee-rate ordering use, not the
	// (possibly understated) declared t.Fee.
	return totalInput - totalOutput, nil
}

// verifyP2PKH checks that pubKey hashes (via RIPEMD160(SHA256(pubkey))) to
// the address that owns the referenced UTXO.
func verifyP2PKH(pubKey []byte, owner types.Address) error {
	if len(pubKey) == 0 {
		return fmt.Errorf("missing public key")
	}
	derived := crypto.AddressFromPubKey(pubKey)
	if derived != owner {
		return fmt.Errorf("derived address %s does not match UTXO owner %s", derived, owner)
	}
	return nil
}
