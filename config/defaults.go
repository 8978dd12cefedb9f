package config

// Default returns the default node configuration.
func Default() *Config {
	return &Config{
		Blockchain: BlockchainConfig{
			BlockTime:           60_000, // 60s target spacing
			CoinbaseReward:      50 * Coin,
			DifficultyAlgorithm: DifficultyLWMA3,
			HalvingInterval:     210_000,
			Genesis:             DefaultGenesis(),
		},
		Network: NetworkConfig{
			P2PPort:            30303,
			SeedNodes:          []string{},
			MinSeedConnections: 1,
			MaxPeers:           10,
			NetworkID:          "mainnet",
		},
		Wallet: WalletConfig{
			DefaultFee: 10_000,
			MinFee:     1_000,
		},
		Storage: StorageConfig{
			DataDir:        DefaultDataDir(),
			BlockchainFile: "blockchain.json",
		},
		API: APIConfig{
			Port: 8545,
			Host: "127.0.0.1",
		},
		Mining: MiningConfig{
			Enabled: false,
			Threads: 1,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
		Decimals: 8,
	}
}
