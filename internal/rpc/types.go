package rpc

import (
	"time"

	"github.com/pastellaproject/pastella/pkg/types"
)

// errorResponse is the body written for any non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

// blockchainStatus summarizes chain tip state.
type blockchainStatus struct {
	Height               uint64     `json:"height"`
	TipHash              types.Hash `json:"tip_hash"`
	TipTimestamp         uint64     `json:"tip_timestamp"`
	Supply               uint64     `json:"supply"`
	CumulativeDifficulty uint64     `json:"cumulative_difficulty"`
}

// blockList is a page of blocks, newest first.
type blockList struct {
	Blocks []*blockSummary `json:"blocks"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// blockSummary is a block with its transactions collapsed to ids, used for
// listing endpoints where the full transaction bodies would be wasteful.
type blockSummary struct {
	Index        uint64       `json:"index"`
	Hash         types.Hash   `json:"hash"`
	PreviousHash types.Hash   `json:"previous_hash"`
	Timestamp    uint64       `json:"timestamp"`
	Difficulty   uint64       `json:"difficulty"`
	TxCount      int          `json:"tx_count"`
	TxIDs        []types.Hash `json:"tx_ids"`
}

// txList is a page of mempool-pending transaction ids.
type txList struct {
	TxIDs []types.Hash `json:"tx_ids"`
	Count int          `json:"count"`
}

// blockTemplate is an unsealed, unmined block ready for a miner to find a
// nonce for, returned by the pending-block endpoint.
type blockTemplate struct {
	Index        uint64       `json:"index"`
	PreviousHash types.Hash   `json:"previous_hash"`
	Timestamp    uint64       `json:"timestamp"`
	Difficulty   uint64        `json:"difficulty"`
	Algorithm    string        `json:"algorithm"`
	Coinbase     types.Address `json:"coinbase"`
	TxIDs        []types.Hash `json:"tx_ids"`
	Fees         uint64       `json:"fees"`
}

// networkStatus summarizes the local node's p2p state.
type networkStatus struct {
	NodeID     string `json:"node_id"`
	ListenAddr string `json:"listen_addr"`
	Connected  int    `json:"connected"`
	TotalKnown int    `json:"total_known"`
	MaxPeers   int    `json:"max_peers"`
}

// connectRequest is the body of POST /api/network/connect.
type connectRequest struct {
	Addr string `json:"addr"`
}

// daemonStatus reports basic process liveness information.
type daemonStatus struct {
	Uptime    string    `json:"uptime"`
	StartedAt time.Time `json:"started_at"`
}

// nodeInfo describes the running daemon and network it serves.
type nodeInfo struct {
	NetworkID string `json:"network_id"`
	Version   string `json:"version"`
}
