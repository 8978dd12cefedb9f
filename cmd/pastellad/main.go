// Pastella full node daemon.
//
// Usage:
//
//	pastellad                     Run the node with the resolved configuration
//	pastellad --generate-genesis  Mine a fresh genesis block and print its config
//	pastellad --help              Show help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pastellaproject/pastella/config"
	"github.com/pastellaproject/pastella/internal/chain"
	klog "github.com/pastellaproject/pastella/internal/log"
	"github.com/pastellaproject/pastella/internal/node"
)

func main() {
	cfg, flags, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if flags.GenerateGenesis {
		if err := generateGenesis(); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating genesis: %v\n", err)
			os.Exit(1)
		}
		return
	}

	n, err := node.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize node: %v\n", err)
		os.Exit(1)
	}

	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to start node: %v\n", err)
		os.Exit(1)
	}

	logger := klog.WithComponent("main")
	logger.Info().
		Uint64("height", n.Chain().Height()).
		Str("network_id", cfg.Network.NetworkID).
		Msg("pastellad running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- n.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "Error: shutdown timed out")
		os.Exit(1)
	}
}

// generateGenesis mines a fresh genesis block from the reference defaults
// and prints the resulting config stanza, including the discovered
// nonce/hash, ready to paste into a node's config file for a new network.
func generateGenesis() error {
	gen := config.DefaultGenesis()
	gen.Timestamp = uint64(time.Now().UnixMilli())

	blk, err := chain.CreateGenesisBlock(&gen)
	if err != nil {
		return fmt.Errorf("mine genesis: %w", err)
	}

	gen.Nonce = blk.Header.Nonce
	gen.Hash = blk.Header.Hash.String()

	fmt.Println("# Generated genesis configuration - add to pastella.conf")
	fmt.Printf("blockchain.genesis.timestamp = %d\n", gen.Timestamp)
	fmt.Printf("blockchain.genesis.premineAddress = %s\n", gen.PremineAddress)
	fmt.Printf("blockchain.genesis.premineAmount = %d\n", gen.PremineAmount)
	fmt.Printf("blockchain.genesis.difficulty = %d\n", gen.Difficulty)
	fmt.Printf("blockchain.genesis.algorithm = %s\n", gen.Algorithm)
	fmt.Printf("blockchain.genesis.coinbaseNonce = %s\n", gen.CoinbaseNonce)
	fmt.Printf("blockchain.genesis.coinbaseAtomicSequence = %d\n", gen.CoinbaseAtomicSequence)
	fmt.Printf("blockchain.genesis.nonce = %d\n", gen.Nonce)
	fmt.Printf("blockchain.genesis.hash = %s\n", gen.Hash)
	return nil
}
