package p2p

import (
	klog "github.com/pastellaproject/pastella/internal/log"
	"github.com/pastellaproject/pastella/pkg/block"
	"github.com/pastellaproject/pastella/pkg/tx"
)

// handleNewBlock validates and, if accepted, persists and rebroadcasts
// an incoming block to every peer except the sender.
func (n *Node) handleNewBlock(p *Peer, blk *block.Block) {
	if n.BlockHandler == nil {
		return
	}
	if err := n.BlockHandler(blk); err != nil {
		klog.WithPeer(p.Addr).Debug().Err(err).Msg("rejected block")
		n.reputation.Record(p.Addr, EventBadBehavior)
		return
	}
	n.reputation.Record(p.Addr, EventGoodBehavior)
	n.Broadcast(MsgNewBlock, NewBlockPayload{Block: blk}, p)
}

// handleNewTransaction validates and, if admitted to the mempool,
// rebroadcasts an incoming transaction to every peer except the sender.
func (n *Node) handleNewTransaction(p *Peer, transaction *tx.Transaction) {
	if n.TxHandler == nil {
		return
	}
	if err := n.TxHandler(transaction); err != nil {
		klog.WithPeer(p.Addr).Debug().Err(err).Msg("rejected transaction")
		n.reputation.Record(p.Addr, EventInvalidMessage)
		return
	}
	n.reputation.Record(p.Addr, EventGoodBehavior)
	n.Broadcast(MsgNewTransaction, NewTransactionPayload{Transaction: transaction}, p)
}

// BroadcastBlock announces a locally produced or accepted block to every
// authenticated peer.
func (n *Node) BroadcastBlock(blk *block.Block) {
	n.Broadcast(MsgNewBlock, NewBlockPayload{Block: blk}, nil)
}

// BroadcastTransaction announces a locally submitted transaction to
// every authenticated peer.
func (n *Node) BroadcastTransaction(transaction *tx.Transaction) {
	n.Broadcast(MsgNewTransaction, NewTransactionPayload{Transaction: transaction}, nil)
}
