package p2p

import (
	"encoding/json"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw, err := encode(MsgHeartbeat, HeartbeatPayload{NodeID: "abc", Height: 42, Timestamp: 100})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := decodeFrame(raw)
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if msg.Type != MsgHeartbeat {
		t.Fatalf("got type %s, want %s", msg.Type, MsgHeartbeat)
	}
	var payload HeartbeatPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.NodeID != "abc" || payload.Height != 42 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestDecodeFrameRejectsUnknownType(t *testing.T) {
	_, err := decodeFrame([]byte(`{"type":"NOT_A_REAL_TYPE","data":{}}`))
	if err == nil {
		t.Fatal("expected error for unknown message type")
	}
}

func TestDecodeFrameRejectsMissingType(t *testing.T) {
	_, err := decodeFrame([]byte(`{"data":{}}`))
	if err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestDecodeFrameRejectsMalformedJSON(t *testing.T) {
	_, err := decodeFrame([]byte(`not json`))
	if err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

func TestDecodeFrameRejectsOversized(t *testing.T) {
	big := make([]byte, maxFrameBytes+1)
	for i := range big {
		big[i] = 'a'
	}
	_, err := decodeFrame(big)
	if err == nil {
		t.Fatal("expected error for oversized frame")
	}
}

func TestValidTypesCoversClosedSet(t *testing.T) {
	want := []MessageType{
		MsgHandshake, MsgHandshakeAccepted, MsgHandshakeRejected, MsgHandshakeError,
		MsgAuthChallenge, MsgAuthResponse, MsgAuthSuccess, MsgAuthFailure,
		MsgQueryLatest, MsgQueryAll, MsgResponseBlockchain,
		MsgQueryTxPool, MsgResponseTxPool, MsgNewBlock, MsgNewTransaction,
		MsgSeedNodeInfo, MsgHealthStatus, MsgRequestPeerList, MsgPeerListResponse,
		MsgHeartbeat,
	}
	if len(want) != len(validTypes) {
		t.Fatalf("validTypes has %d entries, want %d", len(validTypes), len(want))
	}
	for _, ty := range want {
		if !validTypes[ty] {
			t.Fatalf("validTypes missing %s", ty)
		}
	}
}
