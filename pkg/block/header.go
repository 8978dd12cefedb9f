package block

import (
	"encoding/binary"
	"encoding/json"

	"github.com/pastellaproject/pastella/pkg/crypto"
	"github.com/pastellaproject/pastella/pkg/types"
)

// AlgorithmVelora is the only supported proof-of-work algorithm tag.
const AlgorithmVelora = "velora"

// Header contains block metadata. Hash is stored rather than recomputed on
// read: it is the Velora hash produced during mining/verification (see
// internal/consensus), not a cheap hash of the other fields.
type Header struct {
	Index        uint64     `json:"index"`
	Timestamp    uint64     `json:"timestamp"`
	PreviousHash types.Hash `json:"previous_hash"`
	MerkleRoot   types.Hash `json:"merkle_root"`
	Nonce        uint64     `json:"nonce"`
	Difficulty   uint64     `json:"difficulty"`
	Hash         types.Hash `json:"hash"`
	Algorithm    string     `json:"algorithm"`
}

// headerJSON mirrors Header but special-cases PreviousHash so genesis's
// literal "0" previous-hash convention round-trips (types.Hash already
// treats "0" as the zero hash on decode; this keeps the encode side
// symmetric for genesis instead of emitting 64 zero hex digits).
type headerJSON struct {
	Index        uint64     `json:"index"`
	Timestamp    uint64     `json:"timestamp"`
	PreviousHash string     `json:"previous_hash"`
	MerkleRoot   types.Hash `json:"merkle_root"`
	Nonce        uint64     `json:"nonce"`
	Difficulty   uint64     `json:"difficulty"`
	Hash         types.Hash `json:"hash"`
	Algorithm    string     `json:"algorithm"`
}

// MarshalJSON encodes the header, rendering a zero previous_hash as "0".
func (h *Header) MarshalJSON() ([]byte, error) {
	j := headerJSON{
		Index:      h.Index,
		Timestamp:  h.Timestamp,
		MerkleRoot: h.MerkleRoot,
		Nonce:      h.Nonce,
		Difficulty: h.Difficulty,
		Hash:       h.Hash,
		Algorithm:  h.Algorithm,
	}
	if h.PreviousHash.IsZero() {
		j.PreviousHash = "0"
	} else {
		j.PreviousHash = h.PreviousHash.String()
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a header, accepting "0" as the genesis previous_hash.
func (h *Header) UnmarshalJSON(data []byte) error {
	var j headerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	prev, err := types.HexToHash(j.PreviousHash)
	if err != nil {
		return err
	}
	h.Index = j.Index
	h.Timestamp = j.Timestamp
	h.PreviousHash = prev
	h.MerkleRoot = j.MerkleRoot
	h.Nonce = j.Nonce
	h.Difficulty = j.Difficulty
	h.Hash = j.Hash
	h.Algorithm = j.Algorithm
	return nil
}

// ContentHash is the "header_hash" term in Velora's seed buffer: it binds
// index and algorithm (the fields not otherwise carried into the seed
// buffer alongside nonce/timestamp/previous_hash/merkle_root/difficulty)
// without being the final, difficulty-bound block hash itself.
func (h *Header) ContentHash() types.Hash {
	buf := make([]byte, 0, 16+len(h.Algorithm))
	buf = binary.LittleEndian.AppendUint64(buf, h.Index)
	buf = append(buf, []byte(h.Algorithm)...)
	return crypto.Hash(buf)
}

// SeedBuffer returns the exact byte string Velora hashes memory reads
// against: header_hash ‖ nonce_LE64 ‖ timestamp_LE64 ‖ previous_hash ‖
// merkle_root ‖ difficulty_LE32.
func (h *Header) SeedBuffer() []byte {
	headerHash := h.ContentHash()
	buf := make([]byte, 0, 32+8+8+32+32+4)
	buf = append(buf, headerHash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Nonce)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = append(buf, h.PreviousHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(h.Difficulty))
	return buf
}
