package p2p

import (
	"net"
	"strconv"
	"time"

	klog "github.com/pastellaproject/pastella/internal/log"
)

const seedReconnectInterval = 60 * time.Second

// dialSeeds connects to every configured seed once, concurrently.
func (n *Node) dialSeeds() {
	for _, s := range n.cfg.Seeds {
		go func(s string) {
			if err := n.Dial(s); err != nil {
				klog.WithComponent("p2p").Debug().Err(err).Str("seed", s).Msg("seed dial failed")
			}
		}(s)
	}
}

// runSeedReconnectLoop retries disconnected seeds every 60 s.
func (n *Node) runSeedReconnectLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(seedReconnectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.reconnectSeeds()
		}
	}
}

func (n *Node) reconnectSeeds() {
	for _, s := range n.cfg.Seeds {
		addr, err := seedAddr(s)
		if err != nil || n.isSelf(addr) {
			continue
		}
		if _, connected := n.peerByAddr(addr); connected {
			continue
		}
		if err := n.Dial(s); err != nil {
			klog.WithComponent("p2p").Debug().Err(err).Str("seed", s).Msg("seed reconnect failed")
		}
	}
}

// isSelf reports whether addr matches this node's own listening port,
// which would otherwise create a self-connection loop.
func (n *Node) isSelf(addr string) bool {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	return port == strconv.Itoa(int(n.cfg.Port))
}
