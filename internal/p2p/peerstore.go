package p2p

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pastellaproject/pastella/internal/storage"
)

const (
	peerKeyPrefix  = "peer/"
	staleThreshold = 24 * time.Hour
	maxKnownPeers  = 1000
)

// peerRecord is a persisted, previously-seen peer address.
type peerRecord struct {
	Addr     string    `json:"addr"`
	LastSeen time.Time `json:"last_seen"`
	Source   string    `json:"source"` // "seed", "inbound", "outbound", "gossip"
}

// PeerStore persists known peer addresses so they survive restarts and
// can answer REQUEST_PEER_LIST / feed the partition-detection total.
type PeerStore struct {
	mu      sync.Mutex
	db      storage.DB
	records map[string]*peerRecord
}

// NewPeerStore loads any persisted peer addresses from db.
func NewPeerStore(db storage.DB) (*PeerStore, error) {
	s := &PeerStore{db: db, records: make(map[string]*peerRecord)}
	if db == nil {
		return s, nil
	}
	err := db.ForEach([]byte(peerKeyPrefix), func(key, value []byte) error {
		var r peerRecord
		if err := json.Unmarshal(value, &r); err != nil {
			return nil
		}
		s.records[r.Addr] = &r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load peer records: %w", err)
	}
	return s, nil
}

// Seen records (or refreshes) an address as known, from the given source.
func (s *PeerStore) Seen(addr, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) >= maxKnownPeers {
		if _, exists := s.records[addr]; !exists {
			return
		}
	}
	s.records[addr] = &peerRecord{Addr: addr, LastSeen: time.Now(), Source: source}
}

// All returns every known (non-stale) address.
func (s *PeerStore) All() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-staleThreshold)
	out := make([]string, 0, len(s.records))
	for addr, r := range s.records {
		if r.LastSeen.Before(cutoff) {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// Count returns the number of known (non-stale) addresses.
func (s *PeerStore) Count() int {
	return len(s.All())
}

// Persist writes every record to storage. Call every snapshotPeriod.
func (s *PeerStore) Persist() error {
	if s.db == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, r := range s.records {
		b, err := json.Marshal(r)
		if err != nil {
			continue
		}
		if err := s.db.Put([]byte(peerKeyPrefix+addr), b); err != nil {
			return fmt.Errorf("persist peer %s: %w", addr, err)
		}
	}
	return nil
}
