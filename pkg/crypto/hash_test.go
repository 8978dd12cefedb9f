package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/pastellaproject/pastella/pkg/types"
)

func hexToHash(t *testing.T, s string) types.Hash {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex: %v", err)
	}
	var h types.Hash
	copy(h[:], b)
	return h
}

func TestHash(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{
			name:  "empty input",
			input: []byte{},
			want:  "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"[:64],
		},
		{
			name:  "hello",
			input: []byte("hello"),
			want:  "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"[:64],
		},
		{
			name:  "pastella",
			input: []byte("pastella"),
			want:  "41c5096e1ff709361b3dea8e6de3c69a46be8d223abba677a248611c25580ad0"[:64],
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Hash(tt.input)
			want := hexToHash(t, tt.want)
			if got != want {
				t.Errorf("Hash(%q) = %x, want %x", tt.input, got, want)
			}
		})
	}
}

func TestHash_Deterministic(t *testing.T) {
	data := []byte("deterministic test input")
	h1 := Hash(data)
	h2 := Hash(data)
	if h1 != h2 {
		t.Errorf("Hash is not deterministic: %x != %x", h1, h2)
	}
}

func TestHash_DifferentInputs(t *testing.T) {
	h1 := Hash([]byte("input A"))
	h2 := Hash([]byte("input B"))
	if h1 == h2 {
		t.Error("different inputs produced the same hash")
	}
}

func TestDoubleHash(t *testing.T) {
	input := []byte("hello")
	got := DoubleHash(input)
	want := hexToHash(t, "9595c9df90075148eb06860365df33584b75bff782a510c6cd4883a419833d50"[:64])

	if got != want {
		t.Errorf("DoubleHash(%q) = %x, want %x", input, got, want)
	}
}

func TestDoubleHash_NotSameAsHash(t *testing.T) {
	data := []byte("test data")
	single := Hash(data)
	double := DoubleHash(data)
	if single == double {
		t.Error("DoubleHash should not equal single Hash")
	}
}

func TestHashConcat(t *testing.T) {
	a := Hash([]byte("left"))
	b := Hash([]byte("right"))
	result := HashConcat(a, b)

	if result == (types.Hash{}) {
		t.Error("HashConcat returned zero hash")
	}

	reversed := HashConcat(b, a)
	if result == reversed {
		t.Error("HashConcat(a,b) should differ from HashConcat(b,a)")
	}

	again := HashConcat(a, b)
	if result != again {
		t.Error("HashConcat is not deterministic")
	}
}

func TestHashConcat_EqualsManualConcat(t *testing.T) {
	a := Hash([]byte("left"))
	b := Hash([]byte("right"))

	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	want := Hash(buf[:])

	got := HashConcat(a, b)
	if got != want {
		t.Errorf("HashConcat = %x, want %x", got, want)
	}
}

func TestMerkleRoot_SingleLeaf(t *testing.T) {
	leaf := Hash([]byte("only"))
	root := MerkleRoot([]types.Hash{leaf})
	if root != leaf {
		t.Errorf("single-leaf Merkle root should equal the leaf itself")
	}
}

func TestMerkleRoot_Empty(t *testing.T) {
	root := MerkleRoot(nil)
	if root != (types.Hash{}) {
		t.Error("empty Merkle root should be zero")
	}
}

func TestMerkleRoot_OddCount(t *testing.T) {
	leaves := []types.Hash{Hash([]byte("a")), Hash([]byte("b")), Hash([]byte("c"))}
	// Duplicating the last leaf should make this equal to a balanced
	// 4-leaf tree with the last leaf repeated.
	padded := append(append([]types.Hash{}, leaves...), leaves[2])
	want := MerkleRoot(padded[:2])
	want = HashConcat(want, HashConcat(leaves[2], leaves[2]))

	got := MerkleRoot(leaves)
	if got != want {
		t.Errorf("MerkleRoot odd-count mismatch: got %x want %x", got, want)
	}
}

func TestMerkleRoot_Deterministic(t *testing.T) {
	leaves := []types.Hash{Hash([]byte("1")), Hash([]byte("2")), Hash([]byte("3")), Hash([]byte("4"))}
	r1 := MerkleRoot(leaves)
	r2 := MerkleRoot(leaves)
	if r1 != r2 {
		t.Error("MerkleRoot is not deterministic")
	}
}
