package p2p

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// State is a peer's position in the connection/handshake state machine.
//
//	CONNECTED -> HANDSHAKING -> AUTH_PENDING -> AUTHENTICATED -> (CLOSING) -> CLOSED
//	                 \-> REJECTED -> CLOSED
type State int32

const (
	StateConnected State = iota
	StateHandshaking
	StateAuthPending
	StateAuthenticated
	StateClosing
	StateRejected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateAuthPending:
		return "AUTH_PENDING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateClosing:
		return "CLOSING"
	case StateRejected:
		return "REJECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Peer represents one connected remote node, identified by its
// normalised "host:port" address.
type Peer struct {
	Addr    string
	Conn    *websocket.Conn
	Inbound bool

	state State32

	mu            sync.Mutex
	nodeID        string
	listeningPort uint16
	connectedAt   time.Time

	send       chan []byte
	closeOnce  sync.Once
	closed     chan struct{}
	handshakeT *time.Timer
}

// State32 is an atomic wrapper around State.
type State32 struct {
	v int32
}

func (s *State32) Load() State      { return State(atomic.LoadInt32(&s.v)) }
func (s *State32) Store(st State)   { atomic.StoreInt32(&s.v, int32(st)) }
func (s *State32) Authenticated() bool { return s.Load() == StateAuthenticated }

// newPeer wraps an established websocket connection.
func newPeer(conn *websocket.Conn, addr string, inbound bool) *Peer {
	p := &Peer{
		Addr:        addr,
		Conn:        conn,
		Inbound:     inbound,
		connectedAt: time.Now(),
		send:        make(chan []byte, 256),
		closed:      make(chan struct{}),
	}
	p.state.Store(StateConnected)
	return p
}

// close is idempotent and safe to call from any goroutine.
func (p *Peer) close() {
	p.closeOnce.Do(func() {
		p.state.Store(StateClosed)
		close(p.closed)
		_ = p.Conn.Close()
	})
}

// enqueue schedules a frame for the write pump. It drops the frame (and
// reports false) if the peer's send buffer is full, which is treated as
// a slow/unresponsive peer rather than blocking the caller.
func (p *Peer) enqueue(frame []byte) bool {
	select {
	case p.send <- frame:
		return true
	case <-p.closed:
		return false
	default:
		return false
	}
}

// normalizeAddr canonicalises a dial or remote address to "host:port",
// mapping IPv6 loopback to 127.0.0.1 per the transport's IPv4-only rule.
func normalizeAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "::1" || host == "[::1]" {
		host = "127.0.0.1"
	}
	host = strings.Trim(host, "[]")
	return net.JoinHostPort(host, port)
}

// addrWithPort rewrites host:port replacing the port, used to record a
// peer's advertised listening port (distinct from its ephemeral dial
// port) once a handshake reveals it.
func addrWithPort(addr string, port uint16) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
