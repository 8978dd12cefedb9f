package p2p

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	klog "github.com/pastellaproject/pastella/internal/log"
	"github.com/pastellaproject/pastella/internal/storage"
	"github.com/pastellaproject/pastella/pkg/block"
	"github.com/pastellaproject/pastella/pkg/tx"
	"github.com/pastellaproject/pastella/pkg/types"
)

// Config configures a Node.
type Config struct {
	ListenHost         string // default "0.0.0.0"
	Port               uint16
	Seeds              []string // ws://host:port
	MinSeedConnections int
	MaxPeers           int
	NetworkID          string
	NodeVersion        string
	DataDir            string
	DB                 storage.DB
}

// TipFunc reports the local chain's current height and tip hash.
type TipFunc func() (uint64, types.Hash)

// BlocksFromFunc returns up to limit blocks starting at height from.
type BlocksFromFunc func(from uint64, limit int) []*block.Block

// ApplyChainFunc atomically replaces the local chain with a full,
// validated chain received from a peer.
type ApplyChainFunc func(blocks []*block.Block) error

// Node is a peer-to-peer gossip network endpoint.
type Node struct {
	cfg    Config
	nodeID string

	reputation *ReputationManager
	peerStore  *PeerStore

	mu    sync.RWMutex
	peers map[string]*Peer

	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	partition partitionState

	validAccepted atomic.Int64
	validRejected atomic.Int64

	// Handlers wire the node into chain and mempool state. All are
	// optional; a nil handler causes the corresponding message to be
	// acknowledged but ignored.
	BlockHandler    func(*block.Block) error
	TxHandler       func(*tx.Transaction) error
	Tip             TipFunc
	BlocksFrom      BlocksFromFunc
	ApplyChain      ApplyChainFunc
	MempoolHashes   func() []types.Hash
	MempoolTx       func(types.Hash) *tx.Transaction
}

// New creates a Node. Call Start to begin listening and connecting to
// seeds.
func New(cfg Config) (*Node, error) {
	if cfg.ListenHost == "" {
		cfg.ListenHost = "0.0.0.0"
	}
	if cfg.MinSeedConnections == 0 {
		cfg.MinSeedConnections = 2
	}
	if cfg.MaxPeers == 0 {
		cfg.MaxPeers = 50
	}

	rep, err := NewReputationManager(cfg.DB)
	if err != nil {
		return nil, err
	}
	ps, err := NewPeerStore(cfg.DB)
	if err != nil {
		return nil, err
	}

	id, err := loadOrCreateNodeID(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:        cfg,
		nodeID:     id,
		reputation: rep,
		peerStore:  ps,
		peers:      make(map[string]*Peer),
		upgrader:   websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(*http.Request) bool { return true }},
	}
	for _, s := range cfg.Seeds {
		if addr, err := seedAddr(s); err == nil {
			n.peerStore.Seen(addr, "seed")
		}
	}
	return n, nil
}

// loadOrCreateNodeID returns a stable per-datadir node identifier,
// generating one on first run.
func loadOrCreateNodeID(dataDir string) (string, error) {
	if dataDir == "" {
		b := make([]byte, 16)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		return hex.EncodeToString(b), nil
	}
	path := filepath.Join(dataDir, "node.id")
	if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
		return string(b), nil
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	id := hex.EncodeToString(b)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id), 0o600); err != nil {
		return "", err
	}
	return id, nil
}

// Start begins listening for inbound connections and dials seeds.
func (n *Node) Start() error {
	n.ctx, n.cancel = context.WithCancel(context.Background())

	addr := net.JoinHostPort(n.cfg.ListenHost, strconv.Itoa(int(n.cfg.Port)))
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return fmt.Errorf("p2p listen: %w", err)
	}
	n.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/", n.handleUpgrade)
	n.server = &http.Server{Handler: mux}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			klog.WithComponent("p2p").Error().Err(err).Msg("listener stopped")
		}
	}()

	n.dialSeeds()

	n.wg.Add(6)
	go n.runSeedReconnectLoop()
	go n.runSyncLoop()
	go n.runHeartbeatLoop()
	go n.runPartitionLoop()
	go n.runSnapshotLoop()
	go n.runDecayLoop()

	klog.WithComponent("p2p").Info().Str("addr", addr).Str("node_id", n.nodeID).Msg("p2p node started")
	return nil
}

// Stop closes all connections and background loops.
func (n *Node) Stop() error {
	if n.cancel != nil {
		n.cancel()
	}
	if n.server != nil {
		_ = n.server.Close()
	}
	n.mu.Lock()
	for _, p := range n.peers {
		p.close()
	}
	n.peers = make(map[string]*Peer)
	n.mu.Unlock()
	n.wg.Wait()
	return nil
}

// handleUpgrade accepts an inbound websocket connection.
func (n *Node) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	addr := normalizeAddr(r.RemoteAddr)
	if n.reputation.IsBanned(addr) {
		_ = conn.Close()
		return
	}
	n.acceptConn(conn, addr, true)
}

// Dial connects outbound to a "ws://host:port" peer address.
func (n *Node) Dial(wsAddr string) error {
	addr, err := seedAddr(wsAddr)
	if err != nil {
		return err
	}
	if n.reputation.IsBanned(addr) {
		return fmt.Errorf("peer %s is banned", addr)
	}
	n.mu.RLock()
	_, exists := n.peers[addr]
	n.mu.RUnlock()
	if exists {
		return nil
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(wsAddr, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsAddr, err)
	}
	n.acceptConn(conn, addr, false)
	return nil
}

// acceptConn registers a freshly established connection and starts its
// pumps and handshake.
func (n *Node) acceptConn(conn *websocket.Conn, addr string, inbound bool) {
	n.mu.Lock()
	if len(n.peers) >= n.cfg.MaxPeers {
		n.mu.Unlock()
		_ = conn.Close()
		return
	}
	if _, exists := n.peers[addr]; exists {
		n.mu.Unlock()
		_ = conn.Close()
		return
	}
	p := newPeer(conn, addr, inbound)
	n.peers[addr] = p
	n.mu.Unlock()

	n.reputation.Record(addr, EventConnect)
	n.peerStore.Seen(addr, sourceFor(inbound))

	n.wg.Add(2)
	go n.readPump(p)
	go n.writePump(p)

	n.beginHandshake(p)
}

func sourceFor(inbound bool) string {
	if inbound {
		return "inbound"
	}
	return "outbound"
}

// DisconnectPeer closes and removes the peer at addr.
func (n *Node) DisconnectPeer(addr string) {
	n.mu.Lock()
	p, ok := n.peers[addr]
	if ok {
		delete(n.peers, addr)
	}
	n.mu.Unlock()
	if ok {
		p.close()
	}
}

// readPump reads frames from one peer until the connection closes.
func (n *Node) readPump(p *Peer) {
	defer n.wg.Done()
	defer n.removeAndClose(p)

	for {
		_, data, err := p.Conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := decodeFrame(data)
		if err != nil {
			klog.WithPeer(p.Addr).Debug().Err(err).Msg("invalid frame")
			n.reputation.Record(p.Addr, EventInvalidMessage)
			n.validRejected.Add(1)
			continue
		}
		n.validAccepted.Add(1)
		n.reputation.Record(p.Addr, EventMessageReceived)
		if sensitiveTypes[msg.Type] && !p.state.Authenticated() {
			klog.WithPeer(p.Addr).Warn().Str("type", string(msg.Type)).Msg("sensitive message from unauthenticated peer")
			n.reputation.Record(p.Addr, EventBadBehavior)
			continue
		}
		n.dispatch(p, msg)
	}
}

// writePump drains a peer's send channel onto the connection.
func (n *Node) writePump(p *Peer) {
	defer n.wg.Done()
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case frame, ok := <-p.send:
			if !ok {
				return
			}
			if err := p.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			if err := p.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.closed:
			return
		}
	}
}

func (n *Node) removeAndClose(p *Peer) {
	n.mu.Lock()
	if cur, ok := n.peers[p.Addr]; ok && cur == p {
		delete(n.peers, p.Addr)
	}
	n.mu.Unlock()
	p.close()
}

// send encodes and enqueues a message for one peer.
func (n *Node) send(p *Peer, t MessageType, payload any) {
	frame, err := encode(t, payload)
	if err != nil {
		return
	}
	p.enqueue(frame)
}

// Broadcast sends a message to every authenticated peer except skip.
func (n *Node) Broadcast(t MessageType, payload any, skip *Peer) {
	frame, err := encode(t, payload)
	if err != nil {
		return
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, p := range n.peers {
		if p == skip || !p.state.Authenticated() {
			continue
		}
		p.enqueue(frame)
	}
}

// ConnectedCount returns the number of authenticated peers.
func (n *Node) ConnectedCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	count := 0
	for _, p := range n.peers {
		if p.state.Authenticated() {
			count++
		}
	}
	return count
}

// TotalKnown returns the number of addresses ever seen (connected or not).
func (n *Node) TotalKnown() int {
	return n.peerStore.Count()
}

// Peers returns the addresses of all authenticated peers.
func (n *Node) Peers() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.peers))
	for addr, p := range n.peers {
		if p.state.Authenticated() {
			out = append(out, addr)
		}
	}
	return out
}

func (n *Node) peerByAddr(addr string) (*Peer, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.peers[addr]
	return p, ok
}

// seedAddr normalises a "ws://host:port" seed URL to "host:port".
func seedAddr(wsURL string) (string, error) {
	hostPort := wsURL
	for _, prefix := range []string{"ws://", "wss://"} {
		if len(hostPort) > len(prefix) && hostPort[:len(prefix)] == prefix {
			hostPort = hostPort[len(prefix):]
			break
		}
	}
	return normalizeAddr(hostPort), nil
}
