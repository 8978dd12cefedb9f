package p2p

import (
	"time"

	klog "github.com/pastellaproject/pastella/internal/log"
)

const handshakeTimeout = 10 * time.Second

// beginHandshake sends our HANDSHAKE frame and arms the handshake timeout.
func (n *Node) beginHandshake(p *Peer) {
	p.state.Store(StateHandshaking)
	n.send(p, MsgHandshake, HandshakePayload{
		NetworkID:     n.cfg.NetworkID,
		NodeVersion:   n.cfg.NodeVersion,
		NodeID:        n.nodeID,
		Timestamp:     time.Now().Unix(),
		ListeningPort: n.cfg.Port,
	})
	p.handshakeT = time.AfterFunc(handshakeTimeout, func() {
		if !p.state.Authenticated() {
			klog.WithPeer(p.Addr).Warn().Msg("handshake timed out")
			n.reputation.Record(p.Addr, EventBadBehavior)
			n.DisconnectPeer(p.Addr)
		}
	})
}

// handleHandshake processes an incoming HANDSHAKE frame.
func (n *Node) handleHandshake(p *Peer, payload HandshakePayload) {
	p.state.Store(StateAuthPending)

	if payload.NetworkID != n.cfg.NetworkID {
		n.send(p, MsgHandshakeRejected, HandshakeRejectedPayload{
			Reason:   "network_id mismatch",
			Expected: n.cfg.NetworkID,
			Received: payload.NetworkID,
		})
		p.state.Store(StateRejected)
		n.reputation.Record(p.Addr, EventBadBehavior)
		time.AfterFunc(time.Second, func() { n.DisconnectPeer(p.Addr) })
		return
	}

	p.mu.Lock()
	p.nodeID = payload.NodeID
	p.listeningPort = payload.ListeningPort
	p.mu.Unlock()

	n.send(p, MsgHandshakeAccepted, HandshakePayload{
		NetworkID:     n.cfg.NetworkID,
		NodeVersion:   n.cfg.NodeVersion,
		NodeID:        n.nodeID,
		Timestamp:     time.Now().Unix(),
		ListeningPort: n.cfg.Port,
	})

	if p.handshakeT != nil {
		p.handshakeT.Stop()
	}
	p.state.Store(StateAuthenticated)
	n.reputation.Record(p.Addr, EventGoodBehavior)

	if payload.ListeningPort != 0 {
		advertised := addrWithPort(p.Addr, payload.ListeningPort)
		n.peerStore.Seen(advertised, "gossip")
	}
}

// handleHandshakeAccepted processes an incoming HANDSHAKE_ACCEPTED.
func (n *Node) handleHandshakeAccepted(p *Peer) {
	if p.handshakeT != nil {
		p.handshakeT.Stop()
	}
	if p.state.Load() != StateRejected {
		p.state.Store(StateAuthenticated)
	}
	n.reputation.Record(p.Addr, EventGoodBehavior)
}

// handleHandshakeRejected processes an incoming HANDSHAKE_REJECTED.
func (n *Node) handleHandshakeRejected(p *Peer, payload HandshakeRejectedPayload) {
	klog.WithPeer(p.Addr).Warn().
		Str("reason", payload.Reason).
		Str("expected", payload.Expected).
		Str("received", payload.Received).
		Msg("handshake rejected by peer")
	p.state.Store(StateRejected)
	n.DisconnectPeer(p.Addr)
}
