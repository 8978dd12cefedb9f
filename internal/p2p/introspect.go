package p2p

import (
	"net"
	"strconv"
	"time"
)

// PeerSummary describes one connected peer for admin-API status reporting.
type PeerSummary struct {
	Addr          string    `json:"addr"`
	Inbound       bool      `json:"inbound"`
	Authenticated bool      `json:"authenticated"`
	ConnectedAt   time.Time `json:"connected_at"`
}

// PartitionInfo reports the node's current partition-detection state.
type PartitionInfo struct {
	Partitioned bool      `json:"partitioned"`
	Since       time.Time `json:"since,omitempty"`
	Attempts    int       `json:"attempts"`
	Connected   int       `json:"connected"`
	TotalKnown  int       `json:"total_known"`
}

// ValidationStats reports wire-frame validation counters since the last
// reset (counted from node start, or the last call to ResetValidationStats).
type ValidationStats struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}

// NodeID returns the node's persistent per-datadir identifier.
func (n *Node) NodeID() string { return n.nodeID }

// ListenAddr returns the configured P2P listen host:port.
func (n *Node) ListenAddr() string {
	return net.JoinHostPort(n.cfg.ListenHost, strconv.Itoa(int(n.cfg.Port)))
}

// MaxPeers returns the configured peer cap.
func (n *Node) MaxPeers() int { return n.cfg.MaxPeers }

// PeerInfos returns a snapshot of every currently connected peer,
// including ones still mid-handshake.
func (n *Node) PeerInfos() []PeerSummary {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]PeerSummary, 0, len(n.peers))
	for _, p := range n.peers {
		p.mu.Lock()
		connAt := p.connectedAt
		p.mu.Unlock()
		out = append(out, PeerSummary{
			Addr:          p.Addr,
			Inbound:       p.Inbound,
			Authenticated: p.state.Authenticated(),
			ConnectedAt:   connAt,
		})
	}
	return out
}

// Reputation returns a snapshot of every tracked peer's reputation score.
func (n *Node) Reputation() []Entry {
	return n.reputation.List()
}

// BanList returns addresses currently under an active ban.
func (n *Node) BanList() []string {
	return n.reputation.BanList()
}

// PartitionStats reports whether the node currently believes it is
// partitioned from the wider network, and its recovery progress.
func (n *Node) PartitionStats() PartitionInfo {
	n.partition.mu.Lock()
	defer n.partition.mu.Unlock()
	return PartitionInfo{
		Partitioned: n.partition.partitioned,
		Since:       n.partition.startedAt,
		Attempts:    n.partition.attempts,
		Connected:   n.ConnectedCount(),
		TotalKnown:  n.TotalKnown(),
	}
}

// ResetPartitionState clears the node's partition-detection state,
// letting the next check cycle re-evaluate from a clean slate.
func (n *Node) ResetPartitionState() {
	n.partition.mu.Lock()
	defer n.partition.mu.Unlock()
	n.partition = partitionState{}
}

// ValidationStats reports wire-frame acceptance/rejection counts.
func (n *Node) ValidationStats() ValidationStats {
	return ValidationStats{
		Accepted: n.validAccepted.Load(),
		Rejected: n.validRejected.Load(),
	}
}

// ResetValidationStats zeroes the frame validation counters.
func (n *Node) ResetValidationStats() {
	n.validAccepted.Store(0)
	n.validRejected.Store(0)
}
