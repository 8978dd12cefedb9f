package tx

import (
	"math"
	"testing"

	"github.com/pastellaproject/pastella/pkg/crypto"
	"github.com/pastellaproject/pastella/pkg/types"
)

func TestTransaction_ID_Deterministic(t *testing.T) {
	txn := &Transaction{
		Inputs:  []Input{{TxID: types.Hash{0x01}, OutputIndex: 0}},
		Outputs: []Output{{Amount: 1000, Tag: TagTransaction}},
		Tag:     TagTransaction,
	}

	id1 := txn.ID()
	id2 := txn.ID()
	if id1 != id2 {
		t.Error("ID() should be deterministic")
	}
	if id1.IsZero() {
		t.Error("ID() should not be zero")
	}
}

func TestTransaction_ID_ChangesWithContent(t *testing.T) {
	base := &Transaction{
		Inputs: []Input{{TxID: types.Hash{0x01}, OutputIndex: 0}},
		Tag:    TagTransaction,
	}
	t1 := *base
	t1.Outputs = []Output{{Amount: 1000}}
	t2 := *base
	t2.Outputs = []Output{{Amount: 2000}}

	if t1.ID() == t2.ID() {
		t.Error("different transactions should have different ids")
	}
}

func TestTransaction_ID_IgnoresSignature(t *testing.T) {
	txn := &Transaction{
		Inputs:  []Input{{TxID: types.Hash{0x01}, OutputIndex: 0, PublicKey: []byte("key")}},
		Outputs: []Output{{Amount: 1000}},
		Tag:     TagTransaction,
	}

	id1 := txn.ID()
	txn.Inputs[0].Signature = []byte("some signature")
	id2 := txn.ID()

	if id1 != id2 {
		t.Error("ID() should not change when only the signature is added")
	}
}

func TestTransaction_ID_ChangesWithPublicKey(t *testing.T) {
	txn := &Transaction{
		Inputs:  []Input{{TxID: types.Hash{0x01}, OutputIndex: 0}},
		Outputs: []Output{{Amount: 1000}},
		Tag:     TagTransaction,
	}
	id1 := txn.ID()
	txn.Inputs[0].PublicKey = []byte("a public key")
	id2 := txn.ID()
	if id1 == id2 {
		t.Error("ID() should change when the public key changes (it's part of SigningBytes)")
	}
}

func TestTransaction_TotalOutputAmount(t *testing.T) {
	txn := &Transaction{
		Outputs: []Output{{Amount: 1000}, {Amount: 2000}, {Amount: 3000}},
	}
	got, err := txn.TotalOutputAmount()
	if err != nil {
		t.Fatalf("TotalOutputAmount() error: %v", err)
	}
	if got != 6000 {
		t.Errorf("TotalOutputAmount() = %d, want 6000", got)
	}
}

func TestTransaction_TotalOutputAmount_Overflow(t *testing.T) {
	txn := &Transaction{
		Outputs: []Output{{Amount: math.MaxUint64}, {Amount: 1}},
	}
	_, err := txn.TotalOutputAmount()
	if err == nil {
		t.Error("TotalOutputAmount() should return error on overflow")
	}
}

func TestBuilder_BuildAndSign(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	prevOut := types.Outpoint{TxID: crypto.Hash([]byte("prev tx")), Index: 0}

	b := NewBuilder(TagTransaction, "nonce-1", 1700000000000).
		AddInput(prevOut).
		AddOutput(addr, 5000).
		SetFee(10)

	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	txn := b.Build()

	if len(txn.Inputs) != 1 {
		t.Fatalf("expected 1 input, got %d", len(txn.Inputs))
	}
	if len(txn.Outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(txn.Outputs))
	}
	if err := txn.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
	if err := txn.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error: %v", err)
	}
}

func TestBuilder_MultipleInputsOutputs(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	b := NewBuilder(TagTransaction, "n", 1).
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}).
		AddInput(types.Outpoint{TxID: types.Hash{0x02}, Index: 1}).
		AddOutput(addr, 3000).
		AddOutput(addr, 2000).
		SetSequence(100)

	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	txn := b.Build()

	if len(txn.Inputs) != 2 {
		t.Errorf("input count = %d, want 2", len(txn.Inputs))
	}
	if len(txn.Outputs) != 2 {
		t.Errorf("output count = %d, want 2", len(txn.Outputs))
	}
	if txn.Sequence != 100 {
		t.Errorf("sequence = %d, want 100", txn.Sequence)
	}
	if err := txn.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
	if err := txn.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error: %v", err)
	}
}

func TestBuilder_SignMulti(t *testing.T) {
	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()

	addr1 := crypto.AddressFromPubKey(key1.PublicKey())
	addr2 := crypto.AddressFromPubKey(key2.PublicKey())
	destAddr := crypto.AddressFromPubKey(key1.PublicKey())

	out1 := types.Outpoint{TxID: crypto.Hash([]byte("tx1")), Index: 0}
	out2 := types.Outpoint{TxID: crypto.Hash([]byte("tx2")), Index: 1}

	b := NewBuilder(TagTransaction, "n", 1).
		AddInput(out1).
		AddInput(out2).
		AddOutput(destAddr, 3000)

	signers := map[types.Address]*crypto.PrivateKey{addr1: key1, addr2: key2}
	ownerOf := map[types.Outpoint]types.Address{out1: addr1, out2: addr2}

	if err := b.SignMulti(signers, ownerOf); err != nil {
		t.Fatalf("SignMulti() error: %v", err)
	}

	txn := b.Build()
	if err := txn.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
	if err := txn.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error: %v", err)
	}
	if string(txn.Inputs[0].PublicKey) == string(txn.Inputs[1].PublicKey) {
		t.Error("inputs should have different public keys")
	}
}

func TestBuilder_SignMulti_SameKeyTwoInputs(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	out1 := types.Outpoint{TxID: crypto.Hash([]byte("tx1")), Index: 0}
	out2 := types.Outpoint{TxID: crypto.Hash([]byte("tx2")), Index: 0}

	b := NewBuilder(TagTransaction, "n", 1).
		AddInput(out1).
		AddInput(out2).
		AddOutput(addr, 5000)

	signers := map[types.Address]*crypto.PrivateKey{addr: key}
	ownerOf := map[types.Outpoint]types.Address{out1: addr, out2: addr}

	if err := b.SignMulti(signers, ownerOf); err != nil {
		t.Fatalf("SignMulti() error: %v", err)
	}

	txn := b.Build()
	if err := txn.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error: %v", err)
	}
	if string(txn.Inputs[0].Signature) != string(txn.Inputs[1].Signature) {
		t.Error("same key should produce same signature (cache)")
	}
}

func TestBuilder_SignMulti_MissingAddress(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())
	out1 := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}

	b := NewBuilder(TagTransaction, "n", 1).
		AddInput(out1).
		AddOutput(addr, 1000)

	signers := map[types.Address]*crypto.PrivateKey{addr: key}
	ownerOf := map[types.Outpoint]types.Address{}

	if err := b.SignMulti(signers, ownerOf); err == nil {
		t.Fatal("expected error for missing address mapping")
	}
}

func TestBuilder_SignMulti_MissingSigner(t *testing.T) {
	out1 := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	addr := types.Address{Hash: [20]byte{0xAA}}

	b := NewBuilder(TagTransaction, "n", 1).
		AddInput(out1).
		AddOutput(addr, 1000)

	signers := map[types.Address]*crypto.PrivateKey{}
	ownerOf := map[types.Outpoint]types.Address{out1: addr}

	if err := b.SignMulti(signers, ownerOf); err == nil {
		t.Fatal("expected error for missing signer")
	}
}

func TestNewCoinbaseBuilder(t *testing.T) {
	addr := types.Address{Hash: [20]byte{0x01}}
	b := NewCoinbaseBuilder("coinbase-1", 1700000000000).
		AddOutput(addr, 5_000_000_000_00)

	txn := b.Build()
	if !txn.IsCoinbase {
		t.Error("expected IsCoinbase = true")
	}
	if err := txn.Validate(); err != nil {
		t.Errorf("Validate() error on coinbase: %v", err)
	}
	if err := txn.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() should no-op for coinbase: %v", err)
	}
}
