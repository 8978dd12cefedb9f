package p2p

import (
	"strconv"
	"testing"

	"github.com/pastellaproject/pastella/internal/storage"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	n, err := New(Config{NetworkID: "test", Port: 0, DB: storage.NewMemory()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return n
}

func TestCheckPartitionDetectsLowRatio(t *testing.T) {
	n := newTestNode(t)
	for i := 0; i < 10; i++ {
		n.peerStore.Seen(addrFor(i), "gossip")
	}
	// No connected peers out of 10 known: ratio 0 < 0.5.
	n.checkPartition()
	n.partition.mu.Lock()
	defer n.partition.mu.Unlock()
	if !n.partition.partitioned {
		t.Fatal("expected partition to be detected")
	}
	if n.partition.attempts != 1 {
		t.Fatalf("expected first recovery attempt to have run, attempts=%d", n.partition.attempts)
	}
}

func TestCheckPartitionLowRatioKeepsState(t *testing.T) {
	n := newTestNode(t)
	n.partition.partitioned = true
	n.partition.attempts = 2
	n.peerStore.Seen("1.2.3.4:9000", "seed")
	// One known peer, and checkPartition only counts authenticated
	// connections (none here), so with totalKnown=1 ratio=0 is still below
	// the threshold and the existing partition state must not be cleared.
	n.checkPartition()
	n.partition.mu.Lock()
	defer n.partition.mu.Unlock()
	if !n.partition.partitioned {
		t.Fatal("ratio below threshold should keep partition flagged")
	}
}

func TestRecoveryStrategyCycles(t *testing.T) {
	n := newTestNode(t)
	// Exercise all four strategies plus the wraparound without panicking.
	for attempt := 1; attempt <= 5; attempt++ {
		n.runRecoveryStrategy(attempt)
	}
}

func TestCheckPartitionNoKnownPeersNoOp(t *testing.T) {
	n := newTestNode(t)
	n.checkPartition()
	n.partition.mu.Lock()
	defer n.partition.mu.Unlock()
	if n.partition.partitioned {
		t.Fatal("should not flag partition with zero known peers")
	}
}

func addrFor(i int) string {
	return "10.0.0." + strconv.Itoa(i+1) + ":9000"
}
