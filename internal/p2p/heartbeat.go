package p2p

import "time"

const heartbeatInterval = 15 * time.Second

// runHeartbeatLoop broadcasts a liveness HEARTBEAT every 15 s.
func (n *Node) runHeartbeatLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.sendHeartbeat()
		}
	}
}

func (n *Node) sendHeartbeat() {
	var height uint64
	if n.Tip != nil {
		height, _ = n.Tip()
	}
	n.Broadcast(MsgHeartbeat, HeartbeatPayload{
		NodeID:    n.nodeID,
		Height:    height,
		Timestamp: time.Now().Unix(),
	}, nil)
}

// handleHeartbeat credits the sending peer's reputation for liveness.
func (n *Node) handleHeartbeat(p *Peer, payload HeartbeatPayload) {
	p.mu.Lock()
	p.nodeID = payload.NodeID
	p.mu.Unlock()
	n.reputation.Record(p.Addr, EventHeartbeat)
}
