package config

import (
	"flag"
	"fmt"
	"os"
)

// Flags holds parsed command-line flags.
type Flags struct {
	Help    bool
	Version bool

	Config          string
	DataDir         string
	APIPort         int
	P2PPort         int
	NoAPI           bool
	NoP2P           bool
	BlockTime       uint64
	MinSeedConn     int
	APIKey          string
	Host            string
	Debug           bool
	DifficultyAlgo  string
	GenerateGenesis bool

	// Remaining positional args.
	Args []string

	// Explicitly-set bool flags (to distinguish "false" from "unset").
	SetNoAPI bool
	SetNoP2P bool
	SetDebug bool
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("pastellad", flag.ContinueOnError)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Version, "version", false, "Show version information")

	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.DataDir, "data-dir", "", "Data directory path")
	fs.IntVar(&f.APIPort, "api-port", 0, "HTTP API listen port")
	fs.IntVar(&f.P2PPort, "p2p-port", 0, "P2P listen port")
	fs.BoolVar(&f.NoAPI, "no-api", false, "Disable the HTTP API server")
	fs.BoolVar(&f.NoP2P, "no-p2p", false, "Disable P2P networking")
	fs.Uint64Var(&f.BlockTime, "block-time", 0, "Target block spacing in milliseconds")
	fs.IntVar(&f.MinSeedConn, "min-seed-conn", -1, "Minimum seed-node connections to maintain (0-10)")
	fs.StringVar(&f.APIKey, "api-key", "", "API key required for write endpoints")
	fs.StringVar(&f.Host, "host", "", "HTTP API bind host")
	fs.BoolVar(&f.Debug, "debug", false, "Enable verbose logging")
	fs.StringVar(&f.DifficultyAlgo, "difficulty-algorithm", "", "Difficulty retarget algorithm: lwma3, aggressive, or dogecoin")
	fs.BoolVar(&f.GenerateGenesis, "generate-genesis", false, "Generate and print a fresh genesis configuration, then exit")

	fs.Usage = func() {
		printUsage()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	f.SetNoAPI = isFlagSet(fs, "no-api")
	f.SetNoP2P = isFlagSet(fs, "no-p2p")
	f.SetDebug = isFlagSet(fs, "debug")

	f.Args = fs.Args()

	return f
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.DataDir != "" {
		cfg.Storage.DataDir = f.DataDir
	}
	if f.APIPort != 0 {
		cfg.API.Port = f.APIPort
	}
	if f.P2PPort != 0 {
		cfg.Network.P2PPort = uint16(f.P2PPort)
	}
	if f.SetNoAPI {
		// --no-api disables the API entirely by zeroing the port.
		cfg.API.Port = 0
	}
	if f.SetNoP2P {
		cfg.Network.P2PPort = 0
	}
	if f.BlockTime != 0 {
		cfg.Blockchain.BlockTime = f.BlockTime
	}
	if f.MinSeedConn >= 0 {
		cfg.Network.MinSeedConnections = f.MinSeedConn
	}
	if f.APIKey != "" {
		cfg.API.APIKey = f.APIKey
	}
	if f.Host != "" {
		cfg.API.Host = f.Host
	}
	if f.SetDebug {
		cfg.Debug = f.Debug
		if f.Debug {
			cfg.Log.Level = "debug"
		}
	}
	if f.DifficultyAlgo != "" {
		cfg.Blockchain.DifficultyAlgorithm = DifficultyAlgorithm(f.DifficultyAlgo)
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `Pastella - a proof-of-work UTXO blockchain node

Usage:
  pastellad [options]
  pastellad --help

Commands:
  --help              Show this help message
  --version           Show version information
  --generate-genesis  Generate and print a fresh genesis configuration, then exit

Core Options:
  --config              Config file path (default: <data-dir>/pastella.conf)
  --data-dir            Data directory (default: ~/.pastella)
  --debug               Enable verbose logging

Network Options:
  --p2p-port            P2P listen port (default: 30303)
  --no-p2p              Disable P2P networking
  --min-seed-conn       Minimum seed-node connections to maintain (0-10)

API Options:
  --api-port            HTTP API listen port (default: 8545)
  --host                HTTP API bind host (default: 127.0.0.1)
  --api-key             API key required for write endpoints
                        (mandatory if --host is not a loopback address)
  --no-api              Disable the HTTP API server

Consensus Options:
  --block-time          Target block spacing in milliseconds (default: 60000)
  --difficulty-algorithm  Retarget algorithm: lwma3 (default), aggressive, or dogecoin

Examples:
  # Start a node with defaults
  pastellad

  # Start with verbose (debug) logging
  pastellad --debug

  # Start with a custom data directory
  pastellad --data-dir=/path/to/data
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("pastellad version 0.1.0")
		os.Exit(0)
	}

	cfg := Default()

	if flags.DataDir != "" {
		cfg.Storage.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	ApplyFlags(cfg, flags)

	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default
// config file if they don't already exist. Idempotent.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.Storage.DataDir,
		cfg.UTXODir(),
		cfg.WalletDir(),
		cfg.KeystoreDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
