package tx

import (
	"fmt"

	"github.com/pastellaproject/pastella/pkg/crypto"
	"github.com/pastellaproject/pastella/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder for the given tag, nonce and
// timestamp (milliseconds since epoch).
func NewBuilder(tagValue Tag, nonce string, timestamp uint64) *Builder {
	return &Builder{
		tx: &Transaction{Tag: tagValue, Nonce: nonce, Timestamp: timestamp},
	}
}

// NewCoinbaseBuilder starts a coinbase (block-reward) transaction builder.
func NewCoinbaseBuilder(nonce string, timestamp uint64) *Builder {
	return &Builder{
		tx: &Transaction{Tag: TagCoinbase, IsCoinbase: true, Nonce: nonce, Timestamp: timestamp},
	}
}

// AddInput adds an input referencing a previous output.
func (b *Builder) AddInput(outpoint types.Outpoint) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, Input{TxID: outpoint.TxID, OutputIndex: outpoint.Index})
	return b
}

// AddOutput adds an output paying amount to address.
func (b *Builder) AddOutput(address types.Address, amount uint64) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, Output{Address: address, Amount: amount, Tag: TagTransaction})
	return b
}

// SetFee sets the declared transaction fee.
func (b *Builder) SetFee(fee uint64) *Builder {
	b.tx.Fee = fee
	return b
}

// SetExpiresAt sets the transaction expiry (milliseconds since epoch, 0 = none).
func (b *Builder) SetExpiresAt(expiresAt uint64) *Builder {
	b.tx.ExpiresAt = expiresAt
	return b
}

// SetSequence sets the per-sender monotonic sequence number.
func (b *Builder) SetSequence(sequence uint64) *Builder {
	b.tx.Sequence = sequence
	return b
}

// Sign signs every input with the same private key (single-key spending).
func (b *Builder) Sign(key *crypto.PrivateKey) error {
	pubKey := key.PublicKey()
	for i := range b.tx.Inputs {
		b.tx.Inputs[i].PublicKey = pubKey
	}
	id := b.tx.ID()
	sig, err := key.Sign(id[:])
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	for i := range b.tx.Inputs {
		b.tx.Inputs[i].Signature = sig
	}
	return nil
}

// SignMulti signs each input with the key that owns the address spending
// from its outpoint. ownerOf maps an input's outpoint to the address that
// owns it; signers maps an address to the private key that can spend it.
func (b *Builder) SignMulti(
	signers map[types.Address]*crypto.PrivateKey,
	ownerOf map[types.Outpoint]types.Address,
) error {
	owners := make([]types.Address, len(b.tx.Inputs))
	for i := range b.tx.Inputs {
		addr, ok := ownerOf[b.tx.Inputs[i].Outpoint()]
		if !ok {
			return fmt.Errorf("no address mapping for input %d outpoint", i)
		}
		key, ok := signers[addr]
		if !ok {
			return fmt.Errorf("no signer for address %s (input %d)", addr, i)
		}
		b.tx.Inputs[i].PublicKey = key.PublicKey()
		owners[i] = addr
	}

	id := b.tx.ID()
	cache := make(map[types.Address][]byte, len(signers))
	for i := range b.tx.Inputs {
		addr := owners[i]
		sig, ok := cache[addr]
		if !ok {
			var err error
			sig, err = signers[addr].Sign(id[:])
			if err != nil {
				return fmt.Errorf("sign input %d: %w", i, err)
			}
			cache[addr] = sig
		}
		b.tx.Inputs[i].Signature = sig
	}
	return nil
}

// Build returns the constructed transaction. Does NOT validate; call
// Validate() or ValidateWithUTXOs() separately.
func (b *Builder) Build() *Transaction {
	return b.tx
}
