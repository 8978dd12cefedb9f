package utxo

import (
	"testing"

	"github.com/pastellaproject/pastella/internal/storage"
	"github.com/pastellaproject/pastella/pkg/crypto"
	"github.com/pastellaproject/pastella/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.NewMemory())
}

func makeOutpoint(data string, index uint32) types.Outpoint {
	return types.Outpoint{
		TxID:  crypto.Hash([]byte(data)),
		Index: index,
	}
}

func testAddress(b byte) types.Address {
	var h [20]byte
	h[0] = b
	return types.Address{Version: types.P2PKHVersion, Hash: h}
}

func makeUTXO(data string, index uint32, amount uint64) *UTXO {
	return &UTXO{
		Outpoint:      makeOutpoint(data, index),
		Address:       testAddress(0x01),
		Amount:        amount,
		HeightCreated: 1,
	}
}

func TestStore_PutAndGet(t *testing.T) {
	s := testStore(t)
	u := makeUTXO("tx1", 0, 5000)

	if err := s.Put(u); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := s.Get(u.Outpoint)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}

	if got.Amount != u.Amount {
		t.Errorf("Amount = %d, want %d", got.Amount, u.Amount)
	}
	if got.Outpoint != u.Outpoint {
		t.Error("Outpoint mismatch")
	}
	if got.HeightCreated != u.HeightCreated {
		t.Errorf("HeightCreated = %d, want %d", got.HeightCreated, u.HeightCreated)
	}
}

func TestStore_GetNonexistent(t *testing.T) {
	s := testStore(t)

	_, err := s.Get(makeOutpoint("missing", 0))
	if err == nil {
		t.Error("Get() for nonexistent UTXO should return error")
	}
}

func TestStore_Has(t *testing.T) {
	s := testStore(t)
	u := makeUTXO("tx1", 0, 1000)

	ok, _ := s.Has(u.Outpoint)
	if ok {
		t.Error("Has() should be false before Put()")
	}

	s.Put(u)

	ok, err := s.Has(u.Outpoint)
	if err != nil {
		t.Fatalf("Has() error: %v", err)
	}
	if !ok {
		t.Error("Has() should be true after Put()")
	}
}

func TestStore_Delete(t *testing.T) {
	s := testStore(t)
	u := makeUTXO("tx1", 0, 1000)

	s.Put(u)

	if err := s.Delete(u.Outpoint); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	ok, _ := s.Has(u.Outpoint)
	if ok {
		t.Error("UTXO should be gone after Delete()")
	}
}

func TestStore_MultipleOutputs(t *testing.T) {
	s := testStore(t)

	// Same tx, different output indices.
	u0 := makeUTXO("tx1", 0, 1000)
	u1 := makeUTXO("tx1", 1, 2000)
	u2 := makeUTXO("tx1", 2, 3000)

	s.Put(u0)
	s.Put(u1)
	s.Put(u2)

	got0, _ := s.Get(u0.Outpoint)
	got1, _ := s.Get(u1.Outpoint)
	got2, _ := s.Get(u2.Outpoint)

	if got0.Amount != 1000 || got1.Amount != 2000 || got2.Amount != 3000 {
		t.Error("amounts mismatch for multi-output tx")
	}

	// Delete middle one.
	s.Delete(u1.Outpoint)

	ok, _ := s.Has(u1.Outpoint)
	if ok {
		t.Error("deleted output should be gone")
	}

	// Others should remain.
	ok0, _ := s.Has(u0.Outpoint)
	ok2, _ := s.Has(u2.Outpoint)
	if !ok0 || !ok2 {
		t.Error("non-deleted outputs should remain")
	}
}

func TestStore_ImplementsSet(t *testing.T) {
	// Compile-time check that Store satisfies Set.
	var _ Set = (*Store)(nil)
}

func TestStore_AddressIndex_GetByAddress(t *testing.T) {
	s := testStore(t)

	addr := testAddress(0x42)
	u1 := &UTXO{Outpoint: makeOutpoint("a1", 0), Address: addr, Amount: 1000}
	u2 := &UTXO{Outpoint: makeOutpoint("a2", 0), Address: addr, Amount: 2000}
	other := &UTXO{Outpoint: makeOutpoint("a3", 0), Address: testAddress(0x99), Amount: 500}

	s.Put(u1)
	s.Put(u2)
	s.Put(other)

	got, err := s.GetByAddress(addr)
	if err != nil {
		t.Fatalf("GetByAddress() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetByAddress() returned %d, want 2", len(got))
	}

	var total uint64
	for _, u := range got {
		total += u.Amount
	}
	if total != 3000 {
		t.Errorf("total = %d, want 3000", total)
	}
}

func TestStore_AddressIndex_DeleteRemovesIndex(t *testing.T) {
	s := testStore(t)

	addr := testAddress(0x42)
	u := &UTXO{Outpoint: makeOutpoint("a1", 0), Address: addr, Amount: 1000}
	s.Put(u)

	if err := s.Delete(u.Outpoint); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	got, err := s.GetByAddress(addr)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("GetByAddress() returned %d after delete, want 0", len(got))
	}
}

func TestStore_ClearAll(t *testing.T) {
	s := testStore(t)
	addr := testAddress(0x01)

	for i := uint32(0); i < 5; i++ {
		s.Put(&UTXO{Outpoint: makeOutpoint("tx", i), Address: addr, Amount: 100})
	}

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll() error: %v", err)
	}

	got, err := s.GetByAddress(addr)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("GetByAddress() after ClearAll() = %d, want 0", len(got))
	}
}

func TestValidationView_Get(t *testing.T) {
	s := testStore(t)
	addr := testAddress(0x07)
	u := &UTXO{Outpoint: makeOutpoint("tx1", 0), Address: addr, Amount: 5000}
	s.Put(u)

	view := ValidationView{Store: s}

	entry, ok := view.Get(u.Outpoint)
	if !ok {
		t.Fatal("expected entry to be found")
	}
	if entry.Address != addr || entry.Amount != 5000 {
		t.Errorf("entry = %+v, want address=%v amount=5000", entry, addr)
	}

	_, ok = view.Get(makeOutpoint("missing", 0))
	if ok {
		t.Error("expected missing outpoint to return ok=false")
	}
}
