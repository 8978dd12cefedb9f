package config

import "fmt"

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Network.P2PPort > 0 {
		// uint16 already bounds the upper end; nothing else to check.
	}
	if cfg.API.Port < 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port must be in range [0, 65535]")
	}

	if cfg.Network.MinSeedConnections < 0 || cfg.Network.MinSeedConnections > 10 {
		return fmt.Errorf("network.minSeedConnections must be in range [0, 10]")
	}
	if cfg.Network.MaxPeers < 1 {
		return fmt.Errorf("network.maxPeers must be at least 1")
	}
	if cfg.Network.NetworkID == "" {
		return fmt.Errorf("network.networkId must not be empty")
	}

	switch cfg.Blockchain.DifficultyAlgorithm {
	case DifficultyLWMA3, DifficultyAggressive, DifficultyDogecoin:
	default:
		return fmt.Errorf("blockchain.difficultyAlgorithm must be one of lwma3, aggressive, dogecoin; got %q", cfg.Blockchain.DifficultyAlgorithm)
	}
	if cfg.Blockchain.BlockTime == 0 {
		return fmt.Errorf("blockchain.blockTime must be positive")
	}

	if !isLoopback(cfg.API.Host) && cfg.API.Port != 0 && cfg.API.APIKey == "" {
		return fmt.Errorf("api.apiKey is mandatory when api.host (%q) is not a loopback address", cfg.API.Host)
	}

	if cfg.Decimals <= 0 {
		return fmt.Errorf("decimals must be positive")
	}

	return nil
}

// isLoopback reports whether host is a loopback address or hostname.
func isLoopback(host string) bool {
	switch host {
	case "", "127.0.0.1", "localhost", "::1":
		return true
	default:
		return false
	}
}
