package tx

import (
	"testing"

	"github.com/pastellaproject/pastella/config"
	"github.com/pastellaproject/pastella/pkg/crypto"
	"github.com/pastellaproject/pastella/pkg/perrors"
	"github.com/pastellaproject/pastella/pkg/types"
)

// validTx creates a minimal, valid, signed transaction for testing.
func validTx(t *testing.T) *Transaction {
	t.Helper()
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())
	b := NewBuilder(TagTransaction, "nonce", 1700000000000).
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}).
		AddOutput(addr, 1000)
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return b.Build()
}

func TestValidate_Valid(t *testing.T) {
	if err := validTx(t).Validate(); err != nil {
		t.Errorf("valid tx should pass: %v", err)
	}
}

func TestValidate_NoInputs(t *testing.T) {
	txn := &Transaction{
		Tag:     TagTransaction,
		Nonce:   "n",
		Outputs: []Output{{Amount: 1000}},
	}
	if err := txn.Validate(); !perrors.Is(err, perrors.KindInvalidTransaction) {
		t.Errorf("expected KindInvalidTransaction, got: %v", err)
	}
}

func TestValidate_NoOutputs(t *testing.T) {
	txn := &Transaction{
		Tag:    TagTransaction,
		Nonce:  "n",
		Inputs: []Input{{TxID: types.Hash{0x01}, Signature: []byte("s"), PublicKey: []byte("k")}},
	}
	if err := txn.Validate(); !perrors.Is(err, perrors.KindInvalidTransaction) {
		t.Errorf("expected KindInvalidTransaction, got: %v", err)
	}
}

func TestValidate_DuplicateInput(t *testing.T) {
	same := Input{TxID: types.Hash{0x01}, OutputIndex: 0, Signature: []byte("s"), PublicKey: []byte("k")}
	txn := &Transaction{
		Tag:     TagTransaction,
		Nonce:   "n",
		Inputs:  []Input{same, same},
		Outputs: []Output{{Amount: 1000}},
	}
	if err := txn.Validate(); !perrors.Is(err, perrors.KindInvalidTransaction) {
		t.Errorf("expected KindInvalidTransaction for duplicate input, got: %v", err)
	}
}

func TestValidate_MissingPubKey(t *testing.T) {
	txn := &Transaction{
		Tag:     TagTransaction,
		Nonce:   "n",
		Inputs:  []Input{{TxID: types.Hash{0x01}, Signature: []byte("s")}},
		Outputs: []Output{{Amount: 1000}},
	}
	if err := txn.Validate(); !perrors.Is(err, perrors.KindInvalidTransaction) {
		t.Errorf("expected KindInvalidTransaction, got: %v", err)
	}
}

func TestValidate_MissingSig(t *testing.T) {
	txn := &Transaction{
		Tag:     TagTransaction,
		Nonce:   "n",
		Inputs:  []Input{{TxID: types.Hash{0x01}, PublicKey: []byte("k")}},
		Outputs: []Output{{Amount: 1000}},
	}
	if err := txn.Validate(); !perrors.Is(err, perrors.KindInvalidTransaction) {
		t.Errorf("expected KindInvalidTransaction, got: %v", err)
	}
}

func TestValidate_ZeroAmountOutput(t *testing.T) {
	txn := &Transaction{
		Tag:     TagTransaction,
		Nonce:   "n",
		Inputs:  []Input{{TxID: types.Hash{0x01}, Signature: []byte("s"), PublicKey: []byte("k")}},
		Outputs: []Output{{Amount: 0}},
	}
	if err := txn.Validate(); !perrors.Is(err, perrors.KindInvalidTransaction) {
		t.Errorf("expected KindInvalidTransaction for zero amount output, got: %v", err)
	}
}

func TestValidate_OutputOverflow(t *testing.T) {
	txn := &Transaction{
		Tag:    TagTransaction,
		Nonce:  "n",
		Inputs: []Input{{TxID: types.Hash{0x01}, Signature: []byte("s"), PublicKey: []byte("k")}},
		Outputs: []Output{
			{Amount: ^uint64(0)},
			{Amount: 1},
		},
	}
	if err := txn.Validate(); !perrors.Is(err, perrors.KindInvalidTransaction) {
		t.Errorf("expected KindInvalidTransaction for output overflow, got: %v", err)
	}
}

func TestValidate_Coinbase(t *testing.T) {
	coinbase := &Transaction{
		Tag:        TagCoinbase,
		IsCoinbase: true,
		Nonce:      "genesis",
		Outputs:    []Output{{Amount: 50000}},
	}
	if err := coinbase.Validate(); err != nil {
		t.Errorf("coinbase tx should pass Validate: %v", err)
	}
}

func TestValidate_CoinbaseWithInputs(t *testing.T) {
	coinbase := &Transaction{
		Tag:        TagCoinbase,
		IsCoinbase: true,
		Nonce:      "n",
		Inputs:     []Input{{TxID: types.Hash{0x01}}},
		Outputs:    []Output{{Amount: 50000}},
	}
	if err := coinbase.Validate(); !perrors.Is(err, perrors.KindCoinbaseViolation) {
		t.Errorf("expected KindCoinbaseViolation, got: %v", err)
	}
}

func TestValidate_NonCoinbaseWithCoinbaseTag(t *testing.T) {
	txn := &Transaction{
		Tag:     TagCoinbase,
		Nonce:   "n",
		Inputs:  []Input{{TxID: types.Hash{0x01}, Signature: []byte("s"), PublicKey: []byte("k")}},
		Outputs: []Output{{Amount: 1000}},
	}
	if err := txn.Validate(); !perrors.Is(err, perrors.KindCoinbaseViolation) {
		t.Errorf("expected KindCoinbaseViolation for non-coinbase tx tagged COINBASE, got: %v", err)
	}
}

func TestVerifySignatures_Coinbase(t *testing.T) {
	coinbase := &Transaction{Tag: TagCoinbase, IsCoinbase: true, Outputs: []Output{{Amount: 1}}}
	if err := coinbase.VerifySignatures(); err != nil {
		t.Errorf("coinbase tx should pass VerifySignatures: %v", err)
	}
}

func TestVerifySignatures_Valid(t *testing.T) {
	if err := validTx(t).VerifySignatures(); err != nil {
		t.Errorf("valid signatures should verify: %v", err)
	}
}

func TestVerifySignatures_WrongKey(t *testing.T) {
	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key1.PublicKey())

	b := NewBuilder(TagTransaction, "n", 1).
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}).
		AddOutput(addr, 1000)
	if err := b.Sign(key1); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	txn := b.Build()
	txn.Inputs[0].PublicKey = key2.PublicKey()

	if err := txn.VerifySignatures(); !perrors.Is(err, perrors.KindBadSignature) {
		t.Errorf("expected KindBadSignature, got: %v", err)
	}
}

func TestVerifySignatures_TamperedOutput(t *testing.T) {
	txn := validTx(t)
	txn.Outputs[0].Amount = 9999
	if err := txn.VerifySignatures(); !perrors.Is(err, perrors.KindBadSignature) {
		t.Errorf("tampered tx should fail verification: %v", err)
	}
}

func TestVerifySignatures_CorruptedSig(t *testing.T) {
	txn := validTx(t)
	txn.Inputs[0].Signature[0] ^= 0xFF
	if err := txn.VerifySignatures(); !perrors.Is(err, perrors.KindBadSignature) {
		t.Errorf("corrupted sig should fail: %v", err)
	}
}

func TestValidate_TooManyInputs(t *testing.T) {
	inputs := make([]Input, config.MaxTxInputs+1)
	for i := range inputs {
		inputs[i] = Input{
			TxID:        types.Hash{byte(i >> 8), byte(i)},
			OutputIndex: uint32(i),
			Signature:   []byte("s"),
			PublicKey:   []byte("k"),
		}
	}
	txn := &Transaction{Tag: TagTransaction, Nonce: "n", Inputs: inputs, Outputs: []Output{{Amount: 1000}}}
	if err := txn.Validate(); !perrors.Is(err, perrors.KindInvalidTransaction) {
		t.Errorf("expected KindInvalidTransaction for too many inputs, got: %v", err)
	}
}

func TestValidate_TooManyOutputs(t *testing.T) {
	outputs := make([]Output, config.MaxTxOutputs+1)
	for i := range outputs {
		outputs[i] = Output{Amount: 1}
	}
	txn := &Transaction{
		Tag:     TagTransaction,
		Nonce:   "n",
		Inputs:  []Input{{TxID: types.Hash{0x01}, Signature: []byte("s"), PublicKey: []byte("k")}},
		Outputs: outputs,
	}
	if err := txn.Validate(); !perrors.Is(err, perrors.KindInvalidTransaction) {
		t.Errorf("expected KindInvalidTransaction for too many outputs, got: %v", err)
	}
}

func TestValidate_NonceTooLong(t *testing.T) {
	longNonce := make([]byte, MaxNonceLen+1)
	txn := &Transaction{
		Tag:     TagTransaction,
		Nonce:   string(longNonce),
		Inputs:  []Input{{TxID: types.Hash{0x01}, Signature: []byte("s"), PublicKey: []byte("k")}},
		Outputs: []Output{{Amount: 1000}},
	}
	if err := txn.Validate(); !perrors.Is(err, perrors.KindInvalidTransaction) {
		t.Errorf("expected KindInvalidTransaction for oversized nonce, got: %v", err)
	}
}

func TestValidate_ExpiresBeforeTimestamp(t *testing.T) {
	txn := &Transaction{
		Tag:       TagTransaction,
		Nonce:     "n",
		Timestamp: 1000,
		ExpiresAt: 500,
		Inputs:    []Input{{TxID: types.Hash{0x01}, Signature: []byte("s"), PublicKey: []byte("k")}},
		Outputs:   []Output{{Amount: 1000}},
	}
	if err := txn.Validate(); !perrors.Is(err, perrors.KindInvalidTransaction) {
		t.Errorf("expected KindInvalidTransaction for expires_at before timestamp, got: %v", err)
	}
}
