package rpc

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/pastellaproject/pastella/config"
	"github.com/pastellaproject/pastella/internal/p2p"
	"github.com/pastellaproject/pastella/pkg/block"
	"github.com/pastellaproject/pastella/pkg/tx"
	"github.com/pastellaproject/pastella/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// paginate reads ?limit=&offset= query params, applying sane defaults and
// an upper bound so a client can't force an unbounded response.
func paginate(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func toSummary(blk *block.Block) *blockSummary {
	ids := make([]types.Hash, len(blk.Transactions))
	for i, t := range blk.Transactions {
		ids[i] = t.ID()
	}
	return &blockSummary{
		Index:        blk.Header.Index,
		Hash:         blk.Header.Hash,
		PreviousHash: blk.Header.PreviousHash,
		Timestamp:    blk.Header.Timestamp,
		Difficulty:   blk.Header.Difficulty,
		TxCount:      len(blk.Transactions),
		TxIDs:        ids,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nodeInfo{
		NetworkID: s.cfg.Network.NetworkID,
		Version:   Version,
	})
}

func (s *Server) handleDaemonStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, daemonStatus{
		Uptime:    time.Since(s.startedAt).String(),
		StartedAt: s.startedAt,
	})
}

func (s *Server) handleBlockchainStatus(w http.ResponseWriter, r *http.Request) {
	st := s.chain.State()
	writeJSON(w, http.StatusOK, blockchainStatus{
		Height:               st.Height,
		TipHash:              st.TipHash,
		TipTimestamp:         st.TipTimestamp,
		Supply:               st.Supply,
		CumulativeDifficulty: st.CumulativeDifficulty,
	})
}

// handleListBlocks returns a page of blocks walking backwards from the tip.
func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginate(r)
	height := s.chain.Height()

	out := make([]*blockSummary, 0, limit)
	// height is an int64-range-safe uint64 counter; stop at the genesis
	// floor rather than wrapping past zero.
	pos := int64(height) - int64(offset)
	for len(out) < limit && pos >= 0 {
		blk, err := s.chain.GetBlockByHeight(uint64(pos))
		if err == nil {
			out = append(out, toSummary(blk))
		}
		pos--
	}

	writeJSON(w, http.StatusOK, blockList{Blocks: out, Limit: limit, Offset: offset})
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("i")
	height, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "block index must be a non-negative integer")
		return
	}
	blk, err := s.chain.GetBlockByHeight(height)
	if err != nil {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	writeJSON(w, http.StatusOK, blk)
}

func (s *Server) handleLatestBlock(w http.ResponseWriter, r *http.Request) {
	blk, err := s.chain.GetBlockByHeight(s.chain.Height())
	if err != nil {
		writeError(w, http.StatusNotFound, "chain has no blocks")
		return
	}
	writeJSON(w, http.StatusOK, blk)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ids := s.pool.Hashes()
	writeJSON(w, http.StatusOK, txList{TxIDs: ids, Count: len(ids)})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := types.HexToHash(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	if t := s.pool.Get(id); t != nil {
		writeJSON(w, http.StatusOK, t)
		return
	}
	if t, err := s.chain.GetTransaction(id); err == nil {
		writeJSON(w, http.StatusOK, t)
		return
	}
	writeError(w, http.StatusNotFound, "transaction not found")
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var transaction tx.Transaction
	if err := decodeJSON(r, &transaction); err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction body: "+err.Error())
		return
	}
	fee, err := s.pool.Add(&transaction, uint64(time.Now().UnixMilli()))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tx_id": transaction.ID(), "fee": fee})
}

func (s *Server) handleSubmitBlock(w http.ResponseWriter, r *http.Request) {
	var blk block.Block
	if err := decodeJSON(r, &blk); err != nil {
		writeError(w, http.StatusBadRequest, "invalid block body: "+err.Error())
		return
	}
	if err := s.chain.ProcessBlock(&blk); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.pool.RemoveConfirmed(blk.Transactions)
	if s.p2p != nil {
		s.p2p.Broadcast(p2p.MsgNewBlock, p2p.NewBlockPayload{Block: &blk}, nil)
	}
	writeJSON(w, http.StatusOK, map[string]any{"accepted": true, "hash": blk.Header.Hash, "height": blk.Header.Index})
}

// handlePendingBlock builds an unsealed block template for external miners:
// the current tip's successor header (minus nonce/hash) and the mempool's
// best transaction selection, with a coinbase slot reserved but not
// populated (the caller supplies their own reward address via ?coinbase=).
func (s *Server) handlePendingBlock(w http.ResponseWriter, r *http.Request) {
	coinbase := r.URL.Query().Get("coinbase")
	if coinbase == "" {
		coinbase = s.cfg.Mining.Coinbase
	}
	addr, err := types.ParseAddress(coinbase)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid coinbase address")
		return
	}

	height := s.chain.Height() + 1
	difficulty, err := s.chain.ExpectedDifficulty(height)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "compute difficulty: "+err.Error())
		return
	}

	selected := s.pool.SelectForBlock(config.MaxBlockSize - 4096) // reserve room for header + coinbase
	ids := make([]types.Hash, len(selected))
	var fees uint64
	for i, t := range selected {
		ids[i] = t.ID()
		fees += s.pool.GetFee(t.ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	writeJSON(w, http.StatusOK, blockTemplate{
		Index:        height,
		PreviousHash: s.chain.TipHash(),
		Timestamp:    uint64(time.Now().UnixMilli()),
		Difficulty:   difficulty,
		Algorithm:    block.AlgorithmVelora,
		Coinbase:     addr,
		TxIDs:        ids,
		Fees:         fees,
	})
}

func (s *Server) handleValidateBlock(w http.ResponseWriter, r *http.Request) {
	var blk block.Block
	if err := decodeJSON(r, &blk); err != nil {
		writeError(w, http.StatusBadRequest, "invalid block body: "+err.Error())
		return
	}
	if err := s.validator.ValidateBlock(&blk); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "reason": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (s *Server) handleNetworkStatus(w http.ResponseWriter, r *http.Request) {
	if s.p2p == nil {
		writeError(w, http.StatusServiceUnavailable, "p2p disabled")
		return
	}
	writeJSON(w, http.StatusOK, networkStatus{
		NodeID:     s.p2p.NodeID(),
		ListenAddr: s.p2p.ListenAddr(),
		Connected:  s.p2p.ConnectedCount(),
		TotalKnown: s.p2p.TotalKnown(),
		MaxPeers:   s.p2p.MaxPeers(),
	})
}

func (s *Server) handleNetworkPeers(w http.ResponseWriter, r *http.Request) {
	if s.p2p == nil {
		writeError(w, http.StatusServiceUnavailable, "p2p disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.p2p.PeerInfos())
}

func (s *Server) handleNetworkReputation(w http.ResponseWriter, r *http.Request) {
	if s.p2p == nil {
		writeError(w, http.StatusServiceUnavailable, "p2p disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.p2p.Reputation())
}

func (s *Server) handlePartitionStats(w http.ResponseWriter, r *http.Request) {
	if s.p2p == nil {
		writeError(w, http.StatusServiceUnavailable, "p2p disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.p2p.PartitionStats())
}

func (s *Server) handleMessageValidation(w http.ResponseWriter, r *http.Request) {
	if s.p2p == nil {
		writeError(w, http.StatusServiceUnavailable, "p2p disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.p2p.ValidationStats())
}

func (s *Server) handleNetworkConnect(w http.ResponseWriter, r *http.Request) {
	if s.p2p == nil {
		writeError(w, http.StatusServiceUnavailable, "p2p disabled")
		return
	}
	var req connectRequest
	if err := decodeJSON(r, &req); err != nil || req.Addr == "" {
		writeError(w, http.StatusBadRequest, "missing addr")
		return
	}
	if err := s.p2p.Dial(req.Addr); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"connected": true})
}

func (s *Server) handlePartitionReset(w http.ResponseWriter, r *http.Request) {
	if s.p2p == nil {
		writeError(w, http.StatusServiceUnavailable, "p2p disabled")
		return
	}
	s.p2p.ResetPartitionState()
	writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
}

func (s *Server) handleMessageValidationReset(w http.ResponseWriter, r *http.Request) {
	if s.p2p == nil {
		writeError(w, http.StatusServiceUnavailable, "p2p disabled")
		return
	}
	s.p2p.ResetValidationStats()
	writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
}
