// pastella-cli is a command-line client for a running pastellad node, plus
// local wallet management that operates directly on keystore files and
// (for balance/send) the node's own on-disk UTXO set.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pastellaproject/pastella/config"
	"github.com/pastellaproject/pastella/internal/rpcclient"
	"github.com/pastellaproject/pastella/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	rpcURL := "http://127.0.0.1:8545"
	dataDir := config.DefaultDataDir()
	apiKey := ""

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--api-key" && len(args) > 1:
			apiKey = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--api-key="):
			apiKey = args[0][len("--api-key="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client := rpcclient.New(rpcURL).WithAPIKey(apiKey)
	cmd, cmdArgs := args[0], args[1:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus(client)
	case "block":
		err = cmdBlock(client, cmdArgs)
	case "tx":
		err = cmdTx(client, cmdArgs)
	case "mempool":
		err = cmdMempool(client)
	case "peers":
		err = cmdPeers(client)
	case "connect":
		err = cmdConnect(client, cmdArgs)
	case "mining":
		err = cmdMining(client, cmdArgs)
	case "wallet":
		err = cmdWallet(cmdArgs, dataDir)
	case "balance":
		err = cmdBalance(cmdArgs, dataDir)
	case "send":
		err = cmdSend(client, cmdArgs, dataDir)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: pastella-cli [global flags] <command> [args]

Global flags:
  --rpc <url>       Admin API endpoint (default: http://127.0.0.1:8545)
  --datadir <path>  Data directory, for wallet/balance commands (default: `+config.DefaultDataDir()+`)
  --api-key <key>   API key for write endpoints

Commands:
  status                         Show chain status
  block <height>                 Show a block by height
  tx <id>                        Show a transaction by id
  mempool                        List pending transaction ids
  peers                          List connected peers
  connect <addr>                 Dial a peer address
  mining template [coinbase]     Fetch an unsealed block template
  mining submit <file.json>      Submit a sealed block
  wallet create <name>           Create a new wallet
  wallet list                    List wallets
  wallet new-address <name>      Derive and record the next address
  wallet address <name>          List a wallet's derived addresses
  balance <name>                 Sum UTXOs for a wallet's addresses (node must be stopped)
  send <name> --to <addr> --amount <n> [--fee <n>]
                                  Send a transaction
`)
}

func parseHash(s string) (types.Hash, error) {
	return types.HexToHash(s)
}

func parseUintArg(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
