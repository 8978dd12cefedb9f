package p2p

import (
	"math/rand"
	"time"

	klog "github.com/pastellaproject/pastella/internal/log"
	"github.com/pastellaproject/pastella/pkg/tx"
)

const syncInterval = 30 * time.Second

// handleQueryLatest replies with RESPONSE_BLOCKCHAIN carrying just the tip.
func (n *Node) handleQueryLatest(p *Peer) {
	if n.Tip == nil || n.BlocksFrom == nil {
		return
	}
	height, _ := n.Tip()
	blocks := n.BlocksFrom(height, 1)
	n.send(p, MsgResponseBlockchain, ResponseBlockchainPayload{Blocks: blocks})
}

// handleQueryAll replies with RESPONSE_BLOCKCHAIN carrying the full
// chain, bounded by maxBlocksPerResponse.
func (n *Node) handleQueryAll(p *Peer) {
	if n.BlocksFrom == nil {
		return
	}
	blocks := n.BlocksFrom(0, maxBlocksPerResponse)
	n.send(p, MsgResponseBlockchain, ResponseBlockchainPayload{Blocks: blocks})
}

// handleResponseBlockchain implements the three-way rule from the spec:
// apply a contiguous tip, request the full chain for a non-contiguous
// one, or atomically replace the local chain given a full one.
func (n *Node) handleResponseBlockchain(p *Peer, payload ResponseBlockchainPayload) {
	if len(payload.Blocks) == 0 || n.Tip == nil {
		return
	}
	localHeight, localHash := n.Tip()
	last := payload.Blocks[len(payload.Blocks)-1]
	if last.Header.Index <= localHeight {
		return
	}

	if len(payload.Blocks) == 1 {
		blk := payload.Blocks[0]
		if blk.Header.PreviousHash == localHash {
			if n.BlockHandler == nil {
				return
			}
			if err := n.BlockHandler(blk); err != nil {
				klog.WithPeer(p.Addr).Debug().Err(err).Msg("failed to apply synced tip")
				n.reputation.Record(p.Addr, EventSyncFailure)
				return
			}
			n.reputation.Record(p.Addr, EventSyncSuccess)
			n.Broadcast(MsgNewBlock, NewBlockPayload{Block: blk}, p)
			return
		}
		n.send(p, MsgQueryAll, nil)
		return
	}

	if n.ApplyChain == nil {
		return
	}
	if err := n.ApplyChain(payload.Blocks); err != nil {
		klog.WithPeer(p.Addr).Warn().Err(err).Msg("failed to apply synced chain")
		n.reputation.Record(p.Addr, EventSyncFailure)
		return
	}
	n.reputation.Record(p.Addr, EventSyncSuccess)
}

// handleQueryTxPool replies with every transaction currently held.
func (n *Node) handleQueryTxPool(p *Peer) {
	if n.MempoolHashes == nil || n.MempoolTx == nil {
		return
	}
	hashes := n.MempoolHashes()
	txs := make([]*tx.Transaction, 0, len(hashes))
	for _, h := range hashes {
		if t := n.MempoolTx(h); t != nil {
			txs = append(txs, t)
		}
	}
	n.send(p, MsgResponseTxPool, ResponseTxPoolPayload{Transactions: txs})
}

// handleResponseTxPool admits every transaction in the reply to the
// local mempool via TxHandler, ignoring ones already known or invalid.
func (n *Node) handleResponseTxPool(p *Peer, payload ResponseTxPoolPayload) {
	if n.TxHandler == nil {
		return
	}
	for _, t := range payload.Transactions {
		_ = n.TxHandler(t)
	}
}

// handleRequestPeerList replies with a bounded sample of known addresses.
func (n *Node) handleRequestPeerList(p *Peer) {
	known := n.peerStore.All()
	if len(known) > maxPeerListEntries {
		known = known[:maxPeerListEntries]
	}
	n.send(p, MsgPeerListResponse, PeerListResponsePayload{Peers: known})
	n.reputation.Record(p.Addr, EventPeerList)
}

// handlePeerListResponse records every advertised address as known.
func (n *Node) handlePeerListResponse(p *Peer, payload PeerListResponsePayload) {
	for _, addr := range payload.Peers {
		n.peerStore.Seen(normalizeAddr(addr), "gossip")
	}
	n.reputation.Record(p.Addr, EventPeerList)
}

// runSyncLoop drives the 30 s periodic chain and mempool synchronisation.
func (n *Node) runSyncLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.syncRound()
		}
	}
}

func (n *Node) syncRound() {
	peers := n.Peers()
	if len(peers) == 0 {
		return
	}
	n.Broadcast(MsgQueryLatest, nil, nil)

	rand.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
	if len(peers) > mempoolSyncPeers {
		peers = peers[:mempoolSyncPeers]
	}
	for _, addr := range peers {
		if p, ok := n.peerByAddr(addr); ok {
			n.send(p, MsgQueryTxPool, nil)
		}
	}
}
