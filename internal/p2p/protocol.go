// Package p2p implements the peer-to-peer gossip network: connection
// lifecycle, handshake, block/transaction relay, chain synchronisation,
// peer reputation and partition recovery.
package p2p

import (
	"encoding/json"
	"fmt"

	"github.com/pastellaproject/pastella/pkg/block"
	"github.com/pastellaproject/pastella/pkg/tx"
)

// MessageType is one of the closed set of wire frame types. Any other
// string is rejected by the validator and penalised as invalid_message.
type MessageType string

const (
	MsgHandshake         MessageType = "HANDSHAKE"
	MsgHandshakeAccepted MessageType = "HANDSHAKE_ACCEPTED"
	MsgHandshakeRejected MessageType = "HANDSHAKE_REJECTED"
	MsgHandshakeError    MessageType = "HANDSHAKE_ERROR"

	MsgAuthChallenge MessageType = "AUTH_CHALLENGE"
	MsgAuthResponse  MessageType = "AUTH_RESPONSE"
	MsgAuthSuccess   MessageType = "AUTH_SUCCESS"
	MsgAuthFailure   MessageType = "AUTH_FAILURE"

	MsgQueryLatest          MessageType = "QUERY_LATEST"
	MsgQueryAll             MessageType = "QUERY_ALL"
	MsgResponseBlockchain   MessageType = "RESPONSE_BLOCKCHAIN"
	MsgQueryTxPool          MessageType = "QUERY_TRANSACTION_POOL"
	MsgResponseTxPool       MessageType = "RESPONSE_TRANSACTION_POOL"
	MsgNewBlock             MessageType = "NEW_BLOCK"
	MsgNewTransaction       MessageType = "NEW_TRANSACTION"
	MsgSeedNodeInfo         MessageType = "SEED_NODE_INFO"
	MsgHealthStatus         MessageType = "HEALTH_STATUS"
	MsgRequestPeerList      MessageType = "REQUEST_PEER_LIST"
	MsgPeerListResponse     MessageType = "PEER_LIST_RESPONSE"
	MsgHeartbeat            MessageType = "HEARTBEAT"
)

// validTypes is the closed set used by the message validator.
var validTypes = map[MessageType]bool{
	MsgHandshake:         true,
	MsgHandshakeAccepted: true,
	MsgHandshakeRejected: true,
	MsgHandshakeError:    true,
	MsgAuthChallenge:     true,
	MsgAuthResponse:      true,
	MsgAuthSuccess:       true,
	MsgAuthFailure:       true,
	MsgQueryLatest:       true,
	MsgQueryAll:          true,
	MsgResponseBlockchain: true,
	MsgQueryTxPool:        true,
	MsgResponseTxPool:     true,
	MsgNewBlock:           true,
	MsgNewTransaction:     true,
	MsgSeedNodeInfo:       true,
	MsgHealthStatus:       true,
	MsgRequestPeerList:    true,
	MsgPeerListResponse:   true,
	MsgHeartbeat:          true,
}

// sensitiveTypes require the sending peer to be AUTHENTICATED.
var sensitiveTypes = map[MessageType]bool{
	MsgNewBlock:           true,
	MsgNewTransaction:     true,
	MsgResponseBlockchain: true,
	MsgResponseTxPool:     true,
}

const (
	// maxFrameBytes bounds a single wire frame (type+data envelope).
	maxFrameBytes = 8 << 20 // 8 MiB, enough for a QUERY_ALL response batch

	// maxBlocksPerResponse bounds RESPONSE_BLOCKCHAIN / QUERY_ALL replies.
	maxBlocksPerResponse = 500

	// maxPeerListEntries bounds PEER_LIST_RESPONSE.
	maxPeerListEntries = 200

	// mempoolSyncPeers is how many random peers QUERY_TRANSACTION_POOL
	// is sent to during a sync round.
	mempoolSyncPeers = 3
)

// Message is the wire frame: {"type": ..., "data": ...}.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// encode marshals a payload into a Message frame ready to write.
func encode(t MessageType, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", t, err)
		}
		raw = b
	}
	return json.Marshal(Message{Type: t, Data: raw})
}

// decodeFrame parses and validates the outer envelope. It does not
// validate the payload shape, which is the caller's job.
func decodeFrame(raw []byte) (Message, error) {
	if len(raw) > maxFrameBytes {
		return Message{}, fmt.Errorf("frame exceeds %d bytes", maxFrameBytes)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("malformed frame: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("missing type")
	}
	if !validTypes[msg.Type] {
		return Message{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
	return msg, nil
}

// HandshakePayload is carried by HANDSHAKE.
type HandshakePayload struct {
	NetworkID      string `json:"network_id"`
	NodeVersion    string `json:"node_version"`
	NodeID         string `json:"node_id"`
	Timestamp      int64  `json:"timestamp"`
	ListeningPort  uint16 `json:"listening_port"`
}

// HandshakeRejectedPayload is carried by HANDSHAKE_REJECTED.
type HandshakeRejectedPayload struct {
	Reason   string `json:"reason"`
	Expected string `json:"expected"`
	Received string `json:"received"`
}

// ResponseBlockchainPayload is carried by RESPONSE_BLOCKCHAIN.
type ResponseBlockchainPayload struct {
	Blocks []*block.Block `json:"blocks"`
}

// ResponseTxPoolPayload is carried by RESPONSE_TRANSACTION_POOL.
type ResponseTxPoolPayload struct {
	Transactions []*tx.Transaction `json:"transactions"`
}

// NewBlockPayload is carried by NEW_BLOCK.
type NewBlockPayload struct {
	Block *block.Block `json:"block"`
}

// NewTransactionPayload is carried by NEW_TRANSACTION.
type NewTransactionPayload struct {
	Transaction *tx.Transaction `json:"transaction"`
}

// SeedNodeInfoPayload is carried by SEED_NODE_INFO.
type SeedNodeInfoPayload struct {
	Addr string `json:"addr"`
}

// HealthStatusPayload is carried by HEALTH_STATUS.
type HealthStatusPayload struct {
	ConnectedPeers int    `json:"connected_peers"`
	TotalKnown     int    `json:"total_known"`
	Height         uint64 `json:"height"`
	Timestamp      int64  `json:"timestamp"`
}

// PeerListResponsePayload is carried by PEER_LIST_RESPONSE.
type PeerListResponsePayload struct {
	Peers []string `json:"peers"`
}

// HeartbeatPayload is carried by HEARTBEAT.
type HeartbeatPayload struct {
	NodeID    string `json:"node_id"`
	Height    uint64 `json:"height"`
	Timestamp int64  `json:"timestamp"`
}
