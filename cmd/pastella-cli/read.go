package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pastellaproject/pastella/internal/rpcclient"
	"github.com/pastellaproject/pastella/pkg/block"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdStatus(c *rpcclient.Client) error {
	st, err := c.BlockchainStatus()
	if err != nil {
		return err
	}
	return printJSON(st)
}

func cmdBlock(c *rpcclient.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: block <height>")
	}
	height, err := parseUintArg(args[0])
	if err != nil {
		return fmt.Errorf("invalid height: %w", err)
	}
	blk, err := c.GetBlock(height)
	if err != nil {
		return err
	}
	return printJSON(blk)
}

func cmdTx(c *rpcclient.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: tx <id>")
	}
	id, err := parseHash(args[0])
	if err != nil {
		return fmt.Errorf("invalid tx id: %w", err)
	}
	t, err := c.GetTransaction(id)
	if err != nil {
		return err
	}
	return printJSON(t)
}

func cmdMempool(c *rpcclient.Client) error {
	list, err := c.ListTransactions()
	if err != nil {
		return err
	}
	return printJSON(list)
}

func cmdPeers(c *rpcclient.Client) error {
	peers, err := c.Peers()
	if err != nil {
		return err
	}
	return printJSON(peers)
}

func cmdConnect(c *rpcclient.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: connect <addr>")
	}
	if err := c.Connect(args[0]); err != nil {
		return err
	}
	fmt.Println("connected")
	return nil
}

func cmdMining(c *rpcclient.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: mining template [coinbase] | mining submit <file.json>")
	}
	switch args[0] {
	case "template":
		coinbase := ""
		if len(args) > 1 {
			coinbase = args[1]
		}
		tmpl, err := c.PendingBlock(coinbase)
		if err != nil {
			return err
		}
		return printJSON(tmpl)
	case "submit":
		if len(args) < 2 {
			return fmt.Errorf("usage: mining submit <file.json>")
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read block file: %w", err)
		}
		var blk block.Block
		if err := json.Unmarshal(data, &blk); err != nil {
			return fmt.Errorf("parse block file: %w", err)
		}
		result, err := c.SubmitBlock(&blk)
		if err != nil {
			return err
		}
		return printJSON(result)
	default:
		return fmt.Errorf("unknown mining subcommand: %s", args[0])
	}
}
