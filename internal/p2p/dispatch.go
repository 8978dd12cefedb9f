package p2p

import (
	"encoding/json"

	klog "github.com/pastellaproject/pastella/internal/log"
)

// dispatch routes a validated frame to its handler.
func (n *Node) dispatch(p *Peer, msg Message) {
	switch msg.Type {
	case MsgHandshake:
		var payload HandshakePayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			n.reputation.Record(p.Addr, EventInvalidMessage)
			return
		}
		n.handleHandshake(p, payload)

	case MsgHandshakeAccepted:
		n.handleHandshakeAccepted(p)

	case MsgHandshakeRejected:
		var payload HandshakeRejectedPayload
		_ = json.Unmarshal(msg.Data, &payload)
		n.handleHandshakeRejected(p, payload)

	case MsgHandshakeError:
		klog.WithPeer(p.Addr).Debug().Msg("peer reported handshake error")

	case MsgAuthChallenge, MsgAuthResponse, MsgAuthSuccess, MsgAuthFailure:
		// Optional challenge/response layer: this node's policy treats
		// HANDSHAKE_ACCEPTED as sufficient authentication, so these are
		// acknowledged but not required or acted on.

	case MsgQueryLatest:
		n.handleQueryLatest(p)

	case MsgQueryAll:
		n.handleQueryAll(p)

	case MsgResponseBlockchain:
		var payload ResponseBlockchainPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			n.reputation.Record(p.Addr, EventInvalidMessage)
			return
		}
		n.handleResponseBlockchain(p, payload)

	case MsgQueryTxPool:
		n.handleQueryTxPool(p)

	case MsgResponseTxPool:
		var payload ResponseTxPoolPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			n.reputation.Record(p.Addr, EventInvalidMessage)
			return
		}
		n.handleResponseTxPool(p, payload)

	case MsgNewBlock:
		var payload NewBlockPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Block == nil {
			n.reputation.Record(p.Addr, EventInvalidMessage)
			return
		}
		n.handleNewBlock(p, payload.Block)

	case MsgNewTransaction:
		var payload NewTransactionPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Transaction == nil {
			n.reputation.Record(p.Addr, EventInvalidMessage)
			return
		}
		n.handleNewTransaction(p, payload.Transaction)

	case MsgSeedNodeInfo:
		var payload SeedNodeInfoPayload
		if err := json.Unmarshal(msg.Data, &payload); err == nil && payload.Addr != "" {
			n.peerStore.Seen(normalizeAddr(payload.Addr), "gossip")
		}

	case MsgHealthStatus:
		var payload HealthStatusPayload
		_ = json.Unmarshal(msg.Data, &payload)
		n.reputation.Record(p.Addr, EventHealth)

	case MsgRequestPeerList:
		n.handleRequestPeerList(p)

	case MsgPeerListResponse:
		var payload PeerListResponsePayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			n.reputation.Record(p.Addr, EventInvalidMessage)
			return
		}
		n.handlePeerListResponse(p, payload)

	case MsgHeartbeat:
		var payload HeartbeatPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			n.reputation.Record(p.Addr, EventInvalidMessage)
			return
		}
		n.handleHeartbeat(p, payload)

	default:
		n.reputation.Record(p.Addr, EventInvalidMessage)
	}
}
