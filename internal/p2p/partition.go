package p2p

import (
	"sync"
	"time"

	klog "github.com/pastellaproject/pastella/internal/log"
)

const (
	partitionCheckInterval = 30 * time.Second
	partitionRatio         = 0.5
	maxRecoveryAttempts    = 5
	recoverySpacing        = 120 * time.Second
)

// partitionState tracks whether the node believes it is cut off from
// most of its known peer set, and the progress of recovery attempts.
type partitionState struct {
	mu          sync.Mutex
	partitioned bool
	startedAt   time.Time
	attempts    int
	lastAttempt time.Time
}

// runPartitionLoop drives the 30 s partition-detection health check.
func (n *Node) runPartitionLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(partitionCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.checkPartition()
		}
	}
}

func (n *Node) checkPartition() {
	connected := n.ConnectedCount()
	totalKnown := n.TotalKnown()
	if totalKnown == 0 {
		return
	}
	ratio := float64(connected) / float64(totalKnown)

	n.partition.mu.Lock()
	if ratio < partitionRatio {
		if !n.partition.partitioned {
			n.partition.partitioned = true
			n.partition.startedAt = time.Now()
			n.partition.attempts = 0
			klog.WithComponent("p2p").Warn().
				Float64("ratio", ratio).Msg("network partition detected")
		}
		if n.partition.attempts < maxRecoveryAttempts && time.Since(n.partition.lastAttempt) >= recoverySpacing {
			n.partition.attempts++
			attempt := n.partition.attempts
			n.partition.lastAttempt = time.Now()
			n.partition.mu.Unlock()
			n.runRecoveryStrategy(attempt)
			return
		}
	} else if n.partition.partitioned {
		klog.WithComponent("p2p").Info().
			Dur("duration", time.Since(n.partition.startedAt)).
			Msg("network partition resolved")
		n.partition.partitioned = false
		n.partition.attempts = 0
	}
	n.partition.mu.Unlock()
}

// runRecoveryStrategy tries the next of four escalating recovery
// strategies, cycling if all attempts are exhausted before the ratio
// recovers.
func (n *Node) runRecoveryStrategy(attempt int) {
	strategy := (attempt - 1) % 4
	switch strategy {
	case 0:
		klog.WithComponent("p2p").Info().Int("attempt", attempt).Msg("partition recovery: reconnecting seeds")
		n.reconnectSeeds()
	case 1:
		klog.WithComponent("p2p").Info().Int("attempt", attempt).Msg("partition recovery: broadcasting health status")
		n.broadcastHealthStatus()
	case 2:
		klog.WithComponent("p2p").Info().Int("attempt", attempt).Msg("partition recovery: requesting peer lists")
		n.Broadcast(MsgRequestPeerList, nil, nil)
	case 3:
		klog.WithComponent("p2p").Info().Int("attempt", attempt).Msg("partition recovery: forcing full sync")
		n.Broadcast(MsgQueryLatest, nil, nil)
		n.Broadcast(MsgQueryTxPool, nil, nil)
	}
}

func (n *Node) broadcastHealthStatus() {
	var height uint64
	if n.Tip != nil {
		height, _ = n.Tip()
	}
	n.Broadcast(MsgHealthStatus, HealthStatusPayload{
		ConnectedPeers: n.ConnectedCount(),
		TotalKnown:     n.TotalKnown(),
		Height:         height,
		Timestamp:      time.Now().Unix(),
	}, nil)
}

// runDecayLoop applies the reputation decay rule once per decayInterval
// (24 h).
func (n *Node) runDecayLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(decayInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.reputation.Decay()
		}
	}
}

// runSnapshotLoop persists reputation and peer-store state every 5 min.
func (n *Node) runSnapshotLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(snapshotPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if err := n.reputation.Snapshot(); err != nil {
				klog.WithComponent("p2p").Warn().Err(err).Msg("reputation snapshot failed")
			}
			if err := n.peerStore.Persist(); err != nil {
				klog.WithComponent("p2p").Warn().Err(err).Msg("peer store persist failed")
			}
		}
	}
}
