package rpcclient

import (
	"net/url"
	"strconv"
	"time"

	"github.com/pastellaproject/pastella/pkg/block"
	"github.com/pastellaproject/pastella/pkg/tx"
	"github.com/pastellaproject/pastella/pkg/types"
)

// BlockchainStatus mirrors the admin API's chain status response.
type BlockchainStatus struct {
	Height               uint64     `json:"height"`
	TipHash              types.Hash `json:"tip_hash"`
	TipTimestamp         uint64     `json:"tip_timestamp"`
	Supply               uint64     `json:"supply"`
	CumulativeDifficulty uint64     `json:"cumulative_difficulty"`
}

// BlockSummary mirrors a listed block with transactions collapsed to ids.
type BlockSummary struct {
	Index        uint64       `json:"index"`
	Hash         types.Hash   `json:"hash"`
	PreviousHash types.Hash   `json:"previous_hash"`
	Timestamp    uint64       `json:"timestamp"`
	Difficulty   uint64       `json:"difficulty"`
	TxCount      int          `json:"tx_count"`
	TxIDs        []types.Hash `json:"tx_ids"`
}

// BlockList is a page of block summaries.
type BlockList struct {
	Blocks []*BlockSummary `json:"blocks"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// TxList is a page of mempool-pending transaction ids.
type TxList struct {
	TxIDs []types.Hash `json:"tx_ids"`
	Count int          `json:"count"`
}

// BlockTemplate is an unsealed block ready for an external miner to seal.
type BlockTemplate struct {
	Index        uint64        `json:"index"`
	PreviousHash types.Hash    `json:"previous_hash"`
	Timestamp    uint64        `json:"timestamp"`
	Difficulty   uint64        `json:"difficulty"`
	Algorithm    string        `json:"algorithm"`
	Coinbase     types.Address `json:"coinbase"`
	TxIDs        []types.Hash  `json:"tx_ids"`
	Fees         uint64        `json:"fees"`
}

// NetworkStatus mirrors the node's own p2p summary.
type NetworkStatus struct {
	NodeID     string `json:"node_id"`
	ListenAddr string `json:"listen_addr"`
	Connected  int    `json:"connected"`
	TotalKnown int    `json:"total_known"`
	MaxPeers   int    `json:"max_peers"`
}

// DaemonStatus reports basic process liveness.
type DaemonStatus struct {
	Uptime    string    `json:"uptime"`
	StartedAt time.Time `json:"started_at"`
}

// NodeInfo describes the network a node serves.
type NodeInfo struct {
	NetworkID string `json:"network_id"`
	Version   string `json:"version"`
}

// Health returns "ok" if the node's admin API is reachable.
func (c *Client) Health() error {
	var out map[string]string
	return c.get("/api/health", nil, &out)
}

// Info returns the node's network id and version.
func (c *Client) Info() (*NodeInfo, error) {
	var out NodeInfo
	if err := c.get("/api/info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DaemonStatus returns the node's process uptime.
func (c *Client) DaemonStatus() (*DaemonStatus, error) {
	var out DaemonStatus
	if err := c.get("/api/daemon/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BlockchainStatus returns the chain tip summary.
func (c *Client) BlockchainStatus() (*BlockchainStatus, error) {
	var out BlockchainStatus
	if err := c.get("/api/blockchain/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBlocks returns a page of blocks walking backwards from the tip.
func (c *Client) ListBlocks(limit, offset int) (*BlockList, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var out BlockList
	if err := c.get("/api/blockchain/blocks", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBlock fetches the full block at the given height.
func (c *Client) GetBlock(height uint64) (*block.Block, error) {
	var out block.Block
	if err := c.get("/api/blockchain/blocks/"+strconv.FormatUint(height, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LatestBlock fetches the current tip block.
func (c *Client) LatestBlock() (*block.Block, error) {
	var out block.Block
	if err := c.get("/api/blockchain/latest", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTransactions returns the mempool's pending transaction ids.
func (c *Client) ListTransactions() (*TxList, error) {
	var out TxList
	if err := c.get("/api/blockchain/transactions", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransaction fetches a transaction by id from the mempool or chain.
func (c *Client) GetTransaction(id types.Hash) (*tx.Transaction, error) {
	var out tx.Transaction
	if err := c.get("/api/blockchain/transactions/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitTxResult is returned by SubmitTransaction.
type SubmitTxResult struct {
	TxID types.Hash `json:"tx_id"`
	Fee  uint64     `json:"fee"`
}

// SubmitTransaction submits a signed transaction to the node's mempool.
func (c *Client) SubmitTransaction(t *tx.Transaction) (*SubmitTxResult, error) {
	var out SubmitTxResult
	if err := c.post("/api/blockchain/transactions", t, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitBlockResult is returned by SubmitBlock.
type SubmitBlockResult struct {
	Accepted bool       `json:"accepted"`
	Hash     types.Hash `json:"hash"`
	Height   uint64     `json:"height"`
}

// SubmitBlock submits a sealed block for validation and acceptance.
func (c *Client) SubmitBlock(blk *block.Block) (*SubmitBlockResult, error) {
	var out SubmitBlockResult
	if err := c.post("/api/blocks/submit", blk, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PendingBlock fetches an unsealed block template for the given coinbase
// address, ready for an external miner to find a nonce for.
func (c *Client) PendingBlock(coinbase string) (*BlockTemplate, error) {
	var q url.Values
	if coinbase != "" {
		q = url.Values{"coinbase": {coinbase}}
	}
	var out BlockTemplate
	if err := c.get("/api/blocks/pending", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateResult is returned by ValidateBlock.
type ValidateResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ValidateBlock checks a candidate block without submitting it.
func (c *Client) ValidateBlock(blk *block.Block) (*ValidateResult, error) {
	var out ValidateResult
	if err := c.post("/api/blocks/validate", blk, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NetworkStatus returns the node's own p2p summary.
func (c *Client) NetworkStatus() (*NetworkStatus, error) {
	var out NetworkStatus
	if err := c.get("/api/network/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Peers returns raw peer info as decoded JSON, since the wire shape is
// defined by internal/p2p and not duplicated here.
func (c *Client) Peers() ([]map[string]any, error) {
	var out []map[string]any
	if err := c.get("/api/network/peers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Reputation returns raw peer reputation entries as decoded JSON.
func (c *Client) Reputation() ([]map[string]any, error) {
	var out []map[string]any
	if err := c.get("/api/network/reputation", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Connect asks the node to dial a peer address.
func (c *Client) Connect(addr string) error {
	return c.post("/api/network/connect", map[string]string{"addr": addr}, nil)
}
