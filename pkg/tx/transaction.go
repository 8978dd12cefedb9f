// Package tx defines transaction types, canonical encoding, and validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/pastellaproject/pastella/pkg/crypto"
	"github.com/pastellaproject/pastella/pkg/perrors"
	"github.com/pastellaproject/pastella/pkg/types"
)

// Tag classifies the purpose of a transaction or output.
type Tag string

const (
	TagCoinbase    Tag = "COINBASE"
	TagPremine     Tag = "PREMINE"
	TagTransaction Tag = "TRANSACTION"
	TagStaking     Tag = "STAKING"
	TagGovernance  Tag = "GOVERNANCE"
)

// Transaction represents a blockchain transaction.
type Transaction struct {
	Inputs     []Input  `json:"inputs"`
	Outputs    []Output `json:"outputs"`
	Fee        uint64   `json:"fee"`
	Timestamp  uint64   `json:"timestamp"`
	Nonce      string   `json:"nonce"`
	ExpiresAt  uint64   `json:"expires_at"`
	Sequence   uint64   `json:"sequence"`
	IsCoinbase bool     `json:"is_coinbase"`
	Tag        Tag      `json:"tag"`
}

// Input references a UTXO being spent.
type Input struct {
	TxID        types.Hash `json:"tx_id"`
	OutputIndex uint32     `json:"output_index"`
	Signature   []byte     `json:"signature"`  // DER-encoded ECDSA
	PublicKey   []byte     `json:"public_key"` // SEC1 compressed or uncompressed
}

// inputJSON hex-encodes the byte fields of Input.
type inputJSON struct {
	TxID        types.Hash `json:"tx_id"`
	OutputIndex uint32     `json:"output_index"`
	Signature   string     `json:"signature,omitempty"`
	PublicKey   string     `json:"public_key,omitempty"`
}

// MarshalJSON hex-encodes signature and public key.
func (in Input) MarshalJSON() ([]byte, error) {
	j := inputJSON{TxID: in.TxID, OutputIndex: in.OutputIndex}
	if len(in.Signature) > 0 {
		j.Signature = hex.EncodeToString(in.Signature)
	}
	if len(in.PublicKey) > 0 {
		j.PublicKey = hex.EncodeToString(in.PublicKey)
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes hex-encoded signature and public key.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.TxID = j.TxID
	in.OutputIndex = j.OutputIndex
	if j.Signature != "" {
		b, err := hex.DecodeString(j.Signature)
		if err != nil {
			return err
		}
		in.Signature = b
	}
	if j.PublicKey != "" {
		b, err := hex.DecodeString(j.PublicKey)
		if err != nil {
			return err
		}
		in.PublicKey = b
	}
	return nil
}

// Outpoint returns the outpoint this input spends.
func (in Input) Outpoint() types.Outpoint {
	return types.Outpoint{TxID: in.TxID, Index: in.OutputIndex}
}

// Output defines a new UTXO paying amount to address.
type Output struct {
	Address types.Address `json:"address"`
	Amount  uint64        `json:"amount"`
	Tag     Tag           `json:"tag,omitempty"`
}

// ID computes the canonical transaction id: SHA-256 over the deterministic,
// length-prefixed binary encoding returned by SigningBytes.
func (t *Transaction) ID() types.Hash {
	return crypto.Hash(t.SigningBytes())
}

// SigningBytes returns the canonical, fixed-order byte encoding used both
// to derive the transaction id and as the message each input signature is
// computed over (spec: "signature input is the tx_id preimage without
// signatures" — so signatures themselves are never part of this encoding,
// avoiding the obvious circularity).
//
// Field order (all integers little-endian, byte strings length-prefixed
// with a uint32 count): input_count, [tx_id(32) output_index(4) pubkey_len
// pubkey]..., output_count, [address_version(1) address_hash(20)
// amount(8) tag_len tag]..., fee(8), timestamp(8), nonce_len nonce,
// expires_at(8), sequence(8), is_coinbase(1), tag_len tag.
func (t *Transaction) SigningBytes() []byte {
	buf := make([]byte, 0, 128)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Inputs)))
	for _, in := range t.Inputs {
		buf = append(buf, in.TxID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.OutputIndex)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(in.PublicKey)))
		buf = append(buf, in.PublicKey...)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Outputs)))
	for _, out := range t.Outputs {
		buf = append(buf, out.Address.Version)
		buf = append(buf, out.Address.Hash[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, out.Amount)
		buf = appendLenPrefixed(buf, []byte(out.Tag))
	}

	buf = binary.LittleEndian.AppendUint64(buf, t.Fee)
	buf = binary.LittleEndian.AppendUint64(buf, t.Timestamp)
	buf = appendLenPrefixed(buf, []byte(t.Nonce))
	buf = binary.LittleEndian.AppendUint64(buf, t.ExpiresAt)
	buf = binary.LittleEndian.AppendUint64(buf, t.Sequence)
	if t.IsCoinbase {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendLenPrefixed(buf, []byte(t.Tag))

	return buf
}

func appendLenPrefixed(buf, data []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

// TotalOutputAmount sums output amounts, erroring on uint64 overflow.
func (t *Transaction) TotalOutputAmount() (uint64, error) {
	var total uint64
	for _, out := range t.Outputs {
		if total > math.MaxUint64-out.Amount {
			return 0, fmt.Errorf("output amount overflow")
		}
		total += out.Amount
	}
	return total, nil
}

// VerifySignatures checks every non-coinbase input's ECDSA signature
// against the transaction's signing-bytes preimage.
func (t *Transaction) VerifySignatures() error {
	if t.IsCoinbase {
		return nil
	}
	id := t.ID()
	for i, in := range t.Inputs {
		if !crypto.VerifySignature(id[:], in.Signature, in.PublicKey) {
			return perrors.New(perrors.KindBadSignature, fmt.Sprintf("input %d: signature verification failed", i))
		}
	}
	return nil
}
