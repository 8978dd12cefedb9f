package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile loads node configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a node config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Blockchain
	case "blockchain.blockTime":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Blockchain.BlockTime = n
	case "blockchain.coinbaseReward":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Blockchain.CoinbaseReward = n
	case "blockchain.difficultyAlgorithm":
		cfg.Blockchain.DifficultyAlgorithm = DifficultyAlgorithm(value)
	case "blockchain.halvingInterval":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Blockchain.HalvingInterval = n
	case "blockchain.genesis.timestamp":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Blockchain.Genesis.Timestamp = n
	case "blockchain.genesis.premineAddress":
		cfg.Blockchain.Genesis.PremineAddress = value
	case "blockchain.genesis.premineAmount":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Blockchain.Genesis.PremineAmount = n
	case "blockchain.genesis.difficulty":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Blockchain.Genesis.Difficulty = n
	case "blockchain.genesis.nonce":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Blockchain.Genesis.Nonce = n
	case "blockchain.genesis.hash":
		cfg.Blockchain.Genesis.Hash = value
	case "blockchain.genesis.coinbaseNonce":
		cfg.Blockchain.Genesis.CoinbaseNonce = value
	case "blockchain.genesis.coinbaseAtomicSequence":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Blockchain.Genesis.CoinbaseAtomicSequence = n

	// Network
	case "network.p2pPort":
		n, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return err
		}
		cfg.Network.P2PPort = uint16(n)
	case "network.seedNodes":
		cfg.Network.SeedNodes = parseStringList(value)
	case "network.minSeedConnections":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Network.MinSeedConnections = n
	case "network.maxPeers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Network.MaxPeers = n
	case "network.networkId":
		cfg.Network.NetworkID = value

	// Wallet
	case "wallet.defaultFee":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Wallet.DefaultFee = n
	case "wallet.minFee":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Wallet.MinFee = n

	// Storage
	case "storage.dataDir":
		cfg.Storage.DataDir = value
	case "storage.blockchainFile":
		cfg.Storage.BlockchainFile = value

	// API
	case "api.port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.API.Port = n
	case "api.host":
		cfg.API.Host = value
	case "api.apiKey":
		cfg.API.APIKey = value

	// Mining (operational)
	case "mining.enabled", "mine":
		cfg.Mining.Enabled = parseBool(value)
	case "mining.coinbase", "coinbase":
		cfg.Mining.Coinbase = value
	case "mining.threads":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Mining.Threads = n

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	// Root
	case "decimals":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Decimals = n

	default:
		// Unknown keys are ignored.
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default node configuration file.
func WriteDefaultConfig(path string) error {
	content := `# Pastella Node Configuration
#
# This file contains node settings and the blockchain.* protocol rules
# below. Protocol rules (the genesis block, block time, reward schedule)
# are consensus-critical and must match every other node on the network.

# ============================================================================
# Blockchain
# ============================================================================

blockchain.blockTime = 60000
blockchain.coinbaseReward = 5000000000
blockchain.difficultyAlgorithm = lwma3
blockchain.halvingInterval = 210000

# ============================================================================
# P2P Network
# ============================================================================

network.p2pPort = 30303
# network.seedNodes = ws://seed1.example.com:30303,ws://seed2.example.com:30303
network.minSeedConnections = 1
network.maxPeers = 10
network.networkId = mainnet

# ============================================================================
# Wallet
# ============================================================================

wallet.defaultFee = 10000
wallet.minFee = 1000

# ============================================================================
# Storage
# ============================================================================

# storage.dataDir = ~/.pastella
storage.blockchainFile = blockchain.json

# ============================================================================
# HTTP API
# ============================================================================

api.port = 8545
api.host = 127.0.0.1
# api.apiKey is mandatory if api.host is not a loopback address.
# api.apiKey =

# ============================================================================
# Mining / Block Production
# ============================================================================

mining.enabled = false
# mining.coinbase = <your-address>
# mining.threads = 1

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false

# ============================================================================
# Display
# ============================================================================

decimals = 8
`
	return os.WriteFile(path, []byte(content), 0644)
}
