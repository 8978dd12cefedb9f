// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: carried in the genesis block, immutable, must match
//     across all nodes (see genesis.go)
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Config holds node-specific runtime configuration.
type Config struct {
	Blockchain BlockchainConfig
	Network    NetworkConfig
	Wallet     WalletConfig
	Storage    StorageConfig
	API        APIConfig
	Mining     MiningConfig
	Log        LogConfig

	// Decimals is the number of atomic-unit decimal places (default 8).
	Decimals int `conf:"decimals"`

	// Debug enables verbose logging (not persisted in the config file).
	Debug bool
}

// DifficultyAlgorithm selects the retarget rule applied between blocks.
type DifficultyAlgorithm string

const (
	DifficultyLWMA3      DifficultyAlgorithm = "lwma3"
	DifficultyAggressive DifficultyAlgorithm = "aggressive"
	DifficultyDogecoin   DifficultyAlgorithm = "dogecoin"
)

// BlockchainConfig holds chain-timing and issuance settings.
type BlockchainConfig struct {
	BlockTime           uint64              `conf:"blockchain.blockTime"` // target spacing, ms
	CoinbaseReward      uint64              `conf:"blockchain.coinbaseReward"`
	DifficultyAlgorithm DifficultyAlgorithm `conf:"blockchain.difficultyAlgorithm"`
	HalvingInterval     uint64              `conf:"blockchain.halvingInterval"`
	Genesis             GenesisConfig
}

// NetworkConfig holds peer-to-peer network settings.
type NetworkConfig struct {
	P2PPort            uint16   `conf:"network.p2pPort"`
	SeedNodes          []string `conf:"network.seedNodes"` // ws://host:port
	MinSeedConnections int      `conf:"network.minSeedConnections"`
	MaxPeers           int      `conf:"network.maxPeers"`
	NetworkID          string   `conf:"network.networkId"`
}

// WalletConfig holds fee policy for the integrated wallet.
type WalletConfig struct {
	DefaultFee uint64 `conf:"wallet.defaultFee"`
	MinFee     uint64 `conf:"wallet.minFee"`
}

// StorageConfig holds on-disk persistence settings.
type StorageConfig struct {
	DataDir        string `conf:"storage.dataDir"`
	BlockchainFile string `conf:"storage.blockchainFile"`
}

// APIConfig holds HTTP JSON API settings. If Host is not a loopback
// address, APIKey is mandatory (enforced by Validate).
type APIConfig struct {
	Port   int    `conf:"api.port"`
	Host   string `conf:"api.host"`
	APIKey string `conf:"api.apiKey"`
}

// MiningConfig holds block-production settings. Operational, not a
// protocol rule: whether a node mines is a local choice.
type MiningConfig struct {
	Enabled  bool   `conf:"mining.enabled"`
	Coinbase string `conf:"mining.coinbase"` // address to receive block rewards
	Threads  int    `conf:"mining.threads"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.pastella
//	macOS:   ~/Library/Application Support/Pastella
//	Windows: %APPDATA%\Pastella
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pastella"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Pastella")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Pastella")
		}
		return filepath.Join(home, "AppData", "Roaming", "Pastella")
	default:
		return filepath.Join(home, ".pastella")
	}
}

// BlockchainFilePath returns the absolute path to the chain snapshot file.
func (c *Config) BlockchainFilePath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.BlockchainFile)
}

// WalletDir returns the wallet storage directory.
func (c *Config) WalletDir() string {
	return filepath.Join(c.Storage.DataDir, "wallet")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.Storage.DataDir, "keystore")
}

// UTXODir returns the UTXO database directory.
func (c *Config) UTXODir() string {
	return filepath.Join(c.Storage.DataDir, "utxo")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.Storage.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.Storage.DataDir, "pastella.conf")
}
