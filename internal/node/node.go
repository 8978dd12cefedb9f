// Package node wires together storage, consensus, chain state, mempool,
// peer-to-peer networking, the admin API, and (optionally) a miner into a
// single runnable daemon.
package node

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/pastellaproject/pastella/config"
	"github.com/pastellaproject/pastella/internal/chain"
	"github.com/pastellaproject/pastella/internal/consensus"
	klog "github.com/pastellaproject/pastella/internal/log"
	"github.com/pastellaproject/pastella/internal/mempool"
	"github.com/pastellaproject/pastella/internal/miner"
	"github.com/pastellaproject/pastella/internal/p2p"
	"github.com/pastellaproject/pastella/internal/rpc"
	"github.com/pastellaproject/pastella/internal/storage"
	"github.com/pastellaproject/pastella/internal/utxo"
	"github.com/pastellaproject/pastella/pkg/block"
	"github.com/pastellaproject/pastella/pkg/tx"
	"github.com/pastellaproject/pastella/pkg/types"
	"github.com/rs/zerolog"
)

// Node is a fully wired Pastella daemon: chain state, mempool, P2P gossip,
// the admin API, and an optional miner, sharing one on-disk store.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	db        storage.DB
	utxoStore *utxo.Store
	engine    *consensus.Velora
	chain     *chain.Chain
	pool      *mempool.Pool

	p2p *p2p.Node // nil if P2P disabled
	rpc *rpc.Server
	mnr *miner.Miner // nil if mining disabled

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Node from cfg: opens storage, recovers or initializes chain
// state, and wires the mempool, P2P node, admin API, and miner together. It
// performs no I/O beyond local disk access and does not yet listen on any
// socket; call Start for that.
func New(cfg *config.Config) (*Node, error) {
	logFile := cfg.Log.File
	if logFile == "" {
		logFile = filepath.Join(cfg.LogsDir(), "pastellad.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger := klog.WithComponent("node")

	db, err := storage.NewBadger(filepath.Join(cfg.Storage.DataDir, "chaindata"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Chain and UTXO state share the single Badger handle above; PrefixDB
	// gives each its own keyspace so a "b/" block key can never collide
	// with a "b/"-shaped UTXO or peer-store key as new prefixes are added.
	chainDB := storage.NewPrefixDB(db, []byte("chain/"))
	utxoDB := storage.NewPrefixDB(db, []byte("utxo/"))

	utxoStore := utxo.NewStore(utxoDB)
	engine := consensus.NewVelora()

	ch, err := chain.New(chainDB, utxoStore, engine)
	if err != nil {
		return nil, fmt.Errorf("init chain: %w", err)
	}
	ch.SetConsensusRules(cfg.Blockchain)
	engine.DifficultyFn = func(height uint64) uint64 {
		d, err := ch.ExpectedDifficulty(height)
		if err != nil {
			logger.Error().Err(err).Uint64("height", height).Msg("compute difficulty")
			return 0
		}
		return d
	}

	if ch.State().IsGenesis() {
		if err := ch.InitFromGenesis(&cfg.Blockchain.Genesis); err != nil {
			return nil, fmt.Errorf("init genesis: %w", err)
		}
		logger.Info().Uint64("height", 0).Msg("chain initialized from genesis")
	} else {
		logger.Info().Uint64("height", ch.Height()).Msg("chain resumed")
	}

	pool := mempool.New(utxo.ValidationView{Store: utxoStore}, 0)
	pool.SetMinFeeRate(cfg.Wallet.MinFee)
	pool.SetCoinbaseMaturity(config.CoinbaseMaturity, ch.Height, utxoStore)

	n := &Node{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		utxoStore: utxoStore,
		engine:    engine,
		chain:     ch,
		pool:      pool,
	}

	// Transactions orphaned by a reorg are re-offered to the mempool rather
	// than dropped, so wallets don't need to resubmit.
	ch.SetRevertedTxHandler(func(txs []*tx.Transaction) {
		now := uint64(time.Now().UnixMilli())
		for _, t := range txs {
			if _, err := pool.Add(t, now); err != nil {
				logger.Debug().Err(err).Str("tx", t.ID().String()).Msg("reverted tx not re-admitted")
			}
		}
	})

	if cfg.Network.P2PPort != 0 {
		p2pNode, err := p2p.New(p2p.Config{
			Port:               cfg.Network.P2PPort,
			Seeds:              cfg.Network.SeedNodes,
			MinSeedConnections: cfg.Network.MinSeedConnections,
			MaxPeers:           cfg.Network.MaxPeers,
			NetworkID:          cfg.Network.NetworkID,
			NodeVersion:        rpc.Version,
			DataDir:            cfg.Storage.DataDir,
			DB:                 db,
		})
		if err != nil {
			return nil, fmt.Errorf("init p2p: %w", err)
		}
		n.wireP2PHandlers(p2pNode)
		n.p2p = p2pNode
	}

	if cfg.API.Port != 0 {
		n.rpc = rpc.New(cfg, ch, utxoStore, pool, n.p2p, engine)
	}

	if cfg.Mining.Enabled {
		addr, err := resolveCoinbase(cfg.Mining.Coinbase)
		if err != nil {
			return nil, err
		}
		n.mnr = miner.New(ch, engine, pool, addr, cfg.Blockchain.CoinbaseReward, 0, nil)
	}

	return n, nil
}

// wireP2PHandlers connects the P2P node's callbacks to chain and mempool
// operations. Split out of New for readability; has no meaning on its own.
func (n *Node) wireP2PHandlers(p2pNode *p2p.Node) {
	p2pNode.BlockHandler = func(blk *block.Block) error {
		if err := n.chain.ProcessBlock(blk); err != nil {
			return err
		}
		n.pool.RemoveConfirmed(blk.Transactions)
		return nil
	}
	p2pNode.TxHandler = func(t *tx.Transaction) error {
		_, err := n.pool.Add(t, uint64(time.Now().UnixMilli()))
		return err
	}
	p2pNode.Tip = func() (uint64, types.Hash) {
		return n.chain.Height(), n.chain.TipHash()
	}
	p2pNode.BlocksFrom = func(from uint64, limit int) []*block.Block {
		out := make([]*block.Block, 0, limit)
		for h := from; len(out) < limit; h++ {
			blk, err := n.chain.GetBlockByHeight(h)
			if err != nil {
				break
			}
			out = append(out, blk)
		}
		return out
	}
	p2pNode.ApplyChain = func(blocks []*block.Block) error {
		for _, blk := range blocks {
			if err := n.chain.ProcessBlock(blk); err != nil {
				return err
			}
			n.pool.RemoveConfirmed(blk.Transactions)
		}
		return nil
	}
	p2pNode.MempoolHashes = n.pool.Hashes
	p2pNode.MempoolTx = n.pool.Get
}

// Start begins background operation: P2P networking, the admin API, the
// mempool cleanup loop, and (if enabled) mining.
func (n *Node) Start() error {
	n.ctx, n.cancel = context.WithCancel(context.Background())

	if n.p2p != nil {
		if err := n.p2p.Start(); err != nil {
			return fmt.Errorf("start p2p: %w", err)
		}
	}
	if n.rpc != nil {
		if err := n.rpc.Start(); err != nil {
			return fmt.Errorf("start rpc: %w", err)
		}
	}

	n.wg.Add(1)
	go n.runMempoolCleanupLoop()

	if n.mnr != nil {
		n.wg.Add(1)
		go n.runMiningLoop()
	}

	n.logger.Info().Uint64("height", n.chain.Height()).Msg("node started")
	return nil
}

// Stop shuts down all background activity and closes storage.
func (n *Node) Stop() error {
	if n.cancel != nil {
		n.cancel()
	}
	if n.rpc != nil {
		_ = n.rpc.Stop()
	}
	if n.p2p != nil {
		_ = n.p2p.Stop()
	}
	n.wg.Wait()
	return n.db.Close()
}

// runMempoolCleanupLoop evicts expired pending transactions periodically.
func (n *Node) runMempoolCleanupLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if removed := n.pool.Cleanup(uint64(time.Now().UnixMilli())); removed > 0 {
				n.logger.Debug().Int("removed", removed).Msg("mempool cleanup")
			}
		}
	}
}

// runMiningLoop repeatedly produces and applies a new block, broadcasting
// it to peers, at roughly the configured block-time cadence.
func (n *Node) runMiningLoop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return
		default:
		}

		blk, err := n.mnr.ProduceBlockCtx(n.ctx)
		if err != nil {
			if n.ctx.Err() != nil {
				return
			}
			n.logger.Error().Err(err).Msg("mining failed")
			time.Sleep(time.Second)
			continue
		}

		if err := n.chain.ProcessBlock(blk); err != nil {
			n.logger.Error().Err(err).Msg("mined block rejected by own chain")
			continue
		}
		n.pool.RemoveConfirmed(blk.Transactions)
		if n.p2p != nil {
			n.p2p.Broadcast(p2p.MsgNewBlock, blk, nil)
		}
		n.logger.Info().Uint64("height", blk.Header.Index).Str("hash", blk.Header.Hash.String()).Msg("mined block")
	}
}

// Chain returns the node's chain instance, for callers embedding Node
// directly (e.g. a GUI wallet) that need direct read access.
func (n *Node) Chain() *chain.Chain { return n.chain }

// Mempool returns the node's mempool instance.
func (n *Node) Mempool() *mempool.Pool { return n.pool }

// P2P returns the node's P2P instance, or nil if P2P is disabled.
func (n *Node) P2P() *p2p.Node { return n.p2p }
