package tx

import (
	"fmt"
	"math"

	"github.com/pastellaproject/pastella/config"
	"github.com/pastellaproject/pastella/pkg/perrors"
	"github.com/pastellaproject/pastella/pkg/types"
)

// MaxNonceLen bounds the replay-protection nonce string.
const MaxNonceLen = 128

// MaxTimestampDrift bounds how far t.Timestamp may sit from the validator's
// clock in either direction, in milliseconds (2 hours).
const MaxTimestampDrift = 2 * 60 * 60 * 1000

var validTags = map[Tag]bool{
	TagCoinbase:    true,
	TagPremine:     true,
	TagTransaction: true,
	TagStaking:     true,
	TagGovernance:  true,
}

// Validate checks transaction structure and basic rules. It does NOT check
// UTXO existence, signatures, or fees against a fee rate — see
// ValidateWithUTXOs for the full consensus check.
func (t *Transaction) Validate() error {
	if !validTags[t.Tag] {
		return perrors.New(perrors.KindInvalidTransaction, fmt.Sprintf("unknown tag %q", t.Tag))
	}
	if len(t.Nonce) == 0 || len(t.Nonce) > MaxNonceLen {
		return perrors.New(perrors.KindInvalidTransaction, "nonce must be 1-128 bytes")
	}
	if t.ExpiresAt != 0 && t.ExpiresAt <= t.Timestamp {
		return perrors.New(perrors.KindInvalidTransaction, "expires_at must be after timestamp")
	}

	if t.IsCoinbase {
		if len(t.Inputs) != 0 {
			return perrors.New(perrors.KindCoinbaseViolation, "coinbase transaction must have zero inputs")
		}
		if t.Tag != TagCoinbase && t.Tag != TagPremine {
			return perrors.New(perrors.KindCoinbaseViolation, "coinbase transaction must be tagged COINBASE or PREMINE")
		}
		if t.Fee != 0 {
			return perrors.New(perrors.KindCoinbaseViolation, "coinbase transaction must not declare a fee")
		}
	} else {
		if len(t.Inputs) == 0 {
			return perrors.New(perrors.KindInvalidTransaction, "transaction has no inputs")
		}
		if t.Tag == TagCoinbase || t.Tag == TagPremine {
			return perrors.New(perrors.KindCoinbaseViolation, "only coinbase transactions may use tag COINBASE or PREMINE")
		}
	}

	if len(t.Outputs) == 0 {
		return perrors.New(perrors.KindInvalidTransaction, "transaction has no outputs")
	}
	if len(t.Inputs) > config.MaxTxInputs {
		return perrors.New(perrors.KindInvalidTransaction, fmt.Sprintf("%d inputs exceeds max %d", len(t.Inputs), config.MaxTxInputs))
	}
	if len(t.Outputs) > config.MaxTxOutputs {
		return perrors.New(perrors.KindInvalidTransaction, fmt.Sprintf("%d outputs exceeds max %d", len(t.Outputs), config.MaxTxOutputs))
	}

	seen := make(map[types.Outpoint]bool, len(t.Inputs))
	for i, in := range t.Inputs {
		op := in.Outpoint()
		if seen[op] {
			return perrors.New(perrors.KindInvalidTransaction, fmt.Sprintf("input %d: duplicate outpoint", i))
		}
		seen[op] = true
		if len(in.PublicKey) == 0 {
			return perrors.New(perrors.KindInvalidTransaction, fmt.Sprintf("input %d: missing public key", i))
		}
		if len(in.Signature) == 0 {
			return perrors.New(perrors.KindInvalidTransaction, fmt.Sprintf("input %d: missing signature", i))
		}
	}

	var total uint64
	for i, out := range t.Outputs {
		if out.Amount == 0 {
			return perrors.New(perrors.KindInvalidTransaction, fmt.Sprintf("output %d: zero amount", i))
		}
		if !validTags[out.Tag] && out.Tag != "" {
			return perrors.New(perrors.KindInvalidTransaction, fmt.Sprintf("output %d: unknown tag %q", i, out.Tag))
		}
		if total > math.MaxUint64-out.Amount {
			return perrors.New(perrors.KindInvalidTransaction, fmt.Sprintf("output %d: amount overflow", i))
		}
		total += out.Amount
	}

	return nil
}

// CheckTimestamp enforces the spec.md §4.3 structural rule that a
// transaction's timestamp sit within MaxTimestampDrift of now. It is
// separate from Validate because "now" is only meaningful at admission
// time (mempool submission); a transaction already sealed into a block
// keeps its original timestamp forever, and replaying old blocks must
// not re-reject it just because wall-clock time has moved on.
func (t *Transaction) CheckTimestamp(now uint64) error {
	var drift uint64
	if t.Timestamp > now {
		drift = t.Timestamp - now
	} else {
		drift = now - t.Timestamp
	}
	if drift > MaxTimestampDrift {
		return perrors.New(perrors.KindInvalidTransaction,
			fmt.Sprintf("timestamp %d outside %dms window of now=%d", t.Timestamp, MaxTimestampDrift, now))
	}
	return nil
}
