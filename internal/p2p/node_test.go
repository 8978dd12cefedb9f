package p2p

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/pastellaproject/pastella/internal/storage"
	"github.com/pastellaproject/pastella/pkg/block"
)

func startTestNode(t *testing.T, port uint16) *Node {
	t.Helper()
	n, err := New(Config{
		NetworkID:   "integration-test",
		NodeVersion: "0.0.0-test",
		Port:        port,
		DB:          storage.NewMemory(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = n.Stop() })
	return n
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestNodeHandshakeOverLoopback(t *testing.T) {
	a := startTestNode(t, 19501)
	b := startTestNode(t, 19502)

	if err := a.Dial("ws://127.0.0.1:19502"); err != nil {
		t.Fatalf("Dial: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		return a.ConnectedCount() == 1 && b.ConnectedCount() == 1
	})
}

func TestNodeRejectsNetworkIDMismatch(t *testing.T) {
	a := startTestNode(t, 19511)
	b, err := New(Config{
		NetworkID:   "a-different-network",
		NodeVersion: "0.0.0-test",
		Port:        19512,
		DB:          storage.NewMemory(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = b.Stop() })

	if err := a.Dial("ws://127.0.0.1:19512"); err != nil {
		t.Fatalf("Dial: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		return a.ConnectedCount() == 0 && b.ConnectedCount() == 0
	})
}

func TestNodeBroadcastBlockReachesPeer(t *testing.T) {
	a := startTestNode(t, 19521)
	b := startTestNode(t, 19522)

	var received atomic.Bool
	b.BlockHandler = func(*block.Block) error {
		received.Store(true)
		return nil
	}

	if err := a.Dial("ws://127.0.0.1:19522"); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool {
		return a.ConnectedCount() == 1 && b.ConnectedCount() == 1
	})

	blk := block.NewBlock(&block.Header{Index: 1, Timestamp: 1700000000, Algorithm: block.AlgorithmVelora}, nil)
	a.BroadcastBlock(blk)

	waitUntil(t, 2*time.Second, func() bool {
		return received.Load()
	})
}
