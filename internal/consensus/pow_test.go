package consensus

import (
	"math/big"
	"testing"

	"github.com/pastellaproject/pastella/pkg/block"
	"github.com/pastellaproject/pastella/pkg/types"
)

func testHeader(index, difficulty, timestamp uint64) *block.Header {
	return &block.Header{
		Index:        index,
		Timestamp:    timestamp,
		PreviousHash: types.Hash{},
		MerkleRoot:   types.Hash{1, 2, 3},
		Difficulty:   difficulty,
		Algorithm:    block.AlgorithmVelora,
	}
}

func TestTarget(t *testing.T) {
	t1 := Target(1)
	if t1.Cmp(maxUint256) != 0 {
		t.Fatalf("Target(1) = %s, want maxUint256", t1)
	}

	t2 := Target(2)
	halfMax := new(big.Int).Div(maxUint256, big.NewInt(2))
	if t2.Cmp(halfMax) != 0 {
		t.Fatalf("Target(2) = %s, want %s", t2, halfMax)
	}

	// Zero difficulty is treated as 1 rather than dividing by zero.
	if Target(0).Cmp(t1) != 0 {
		t.Fatal("Target(0) should equal Target(1)")
	}
}

func TestGenesisTarget_CapsDifficulty(t *testing.T) {
	// Above the cap, genesis target must equal the capped value's target.
	got := GenesisTarget(50_000)
	want := Target(genesisDifficultyCap)
	if got.Cmp(want) != 0 {
		t.Fatalf("GenesisTarget(50000) = %s, want %s (capped at %d)", got, want, genesisDifficultyCap)
	}

	// Below the cap, behaves like the uncapped target.
	got2 := GenesisTarget(10)
	want2 := Target(10)
	if got2.Cmp(want2) != 0 {
		t.Fatalf("GenesisTarget(10) = %s, want %s", got2, want2)
	}
}

func TestVelora_SealAndVerify(t *testing.T) {
	v := NewVelora()
	header := testHeader(1, 1, 1000) // difficulty 1: any hash satisfies the target.
	blk := block.NewBlock(header, nil)

	if err := v.Seal(blk); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if blk.Header.Hash.IsZero() {
		t.Fatal("Seal should set a non-zero hash")
	}
	if err := v.VerifyHeader(blk.Header); err != nil {
		t.Fatalf("VerifyHeader after Seal: %v", err)
	}
}

func TestVelora_VerifyHeader_RejectsBadHash(t *testing.T) {
	v := NewVelora()
	header := testHeader(1, 1, 1000)
	header.Hash = types.Hash{0xff} // does not match the recomputed Velora hash.

	if err := v.VerifyHeader(header); err == nil {
		t.Fatal("VerifyHeader should reject a stored hash that was not recomputed correctly")
	}
}

func TestVelora_VerifyHeader_ZeroDifficulty(t *testing.T) {
	v := NewVelora()
	header := testHeader(1, 0, 1000)
	if err := v.VerifyHeader(header); err == nil {
		t.Fatal("VerifyHeader(difficulty=0) should fail")
	}
}

func TestVelora_Prepare_UsesDifficultyFn(t *testing.T) {
	v := NewVelora()
	v.DifficultyFn = func(index uint64) uint64 { return index * 100 }

	header := testHeader(5, 0, 1)
	if err := v.Prepare(header); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if header.Difficulty != 500 {
		t.Fatalf("Prepare with DifficultyFn set difficulty = %d, want 500", header.Difficulty)
	}
	if header.Algorithm != block.AlgorithmVelora {
		t.Fatalf("Prepare should tag the header with the Velora algorithm")
	}
}

func TestVelora_GenesisUsesCappedTarget(t *testing.T) {
	v := NewVelora()
	header := testHeader(0, 50_000, 1000) // far above the genesis cap.
	blk := block.NewBlock(header, nil)

	if err := v.Seal(blk); err != nil {
		t.Fatalf("Seal genesis: %v", err)
	}
	if err := v.VerifyHeader(blk.Header); err != nil {
		t.Fatalf("VerifyHeader genesis: %v", err)
	}
}
