package config

import "math"

// Denomination constants. Atomic units per coin are 10^Decimals; Coin is
// the conventional "one coin" constant used by callers that don't thread
// a decimals value through (fee estimation, CLI display defaults).
const (
	Coin      = 100_000_000 // 10^8 atomic units per coin (default decimals)
	MilliCoin = 100_000
	MicroCoin = 100
)

// CoinbaseMaturity is the number of blocks a coinbase output must wait
// before it can be spent. Prevents issues during reorgs.
const CoinbaseMaturity uint64 = 20

// Block and transaction size limits (consensus-critical).
const (
	MaxBlockSize = 2_000_000 // 2 MB max block size (header + all tx signing bytes)
	MaxBlockTxs  = 500       // Max transactions per block (including coinbase)
	MaxTxInputs  = 2500      // Max inputs per transaction
	MaxTxOutputs = 2500      // Max outputs per transaction
)

// MaxPremineAmount caps a single genesis allocation so that, combined with
// mined supply, running totals stay far clear of uint64 overflow.
const MaxPremineAmount = math.MaxUint64 / 1000

// GenesisConfig holds the parameters needed to construct (or verify) the
// genesis block. Hash/Nonce are supplied when the genesis has already been
// mined and agreed upon by the network; when absent, the node mines its
// own genesis from the remaining fields on first start.
type GenesisConfig struct {
	Timestamp      uint64 `json:"timestamp" conf:"blockchain.genesis.timestamp"`
	PremineAddress string `json:"premine_address" conf:"blockchain.genesis.premineAddress"`
	PremineAmount  uint64 `json:"premine_amount" conf:"blockchain.genesis.premineAmount"`
	Difficulty     uint64 `json:"difficulty" conf:"blockchain.genesis.difficulty"`
	Nonce          uint64 `json:"nonce,omitempty" conf:"blockchain.genesis.nonce"`
	Hash           string `json:"hash,omitempty" conf:"blockchain.genesis.hash"`
	Algorithm      string `json:"algorithm" conf:"blockchain.genesis.algorithm"`

	// CoinbaseNonce and CoinbaseAtomicSequence seed the genesis coinbase
	// transaction's replay-protection fields, so that regenerating a
	// genesis config from the same parameters always yields the same
	// coinbase id (and therefore the same merkle root).
	CoinbaseNonce          string `json:"coinbase_nonce" conf:"blockchain.genesis.coinbaseNonce"`
	CoinbaseAtomicSequence uint64 `json:"coinbase_atomic_sequence" conf:"blockchain.genesis.coinbaseAtomicSequence"`
}

// HasMinedHash reports whether the config already carries a trusted
// genesis nonce/hash pair rather than requiring the node to mine one.
func (g *GenesisConfig) HasMinedHash() bool {
	return g.Hash != ""
}

// DefaultGenesis returns the reference genesis parameters. Operators who
// want a distinct network must override these (typically via
// --generate-genesis) before first start; a node that loads an existing
// chain file never touches this function again.
func DefaultGenesis() GenesisConfig {
	return GenesisConfig{
		Timestamp:              1_700_000_000_000,
		PremineAddress:         "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		PremineAmount:          10_000_000_000,
		Difficulty:             1000,
		Algorithm:              "velora",
		CoinbaseNonce:          "genesis",
		CoinbaseAtomicSequence: 0,
	}
}
