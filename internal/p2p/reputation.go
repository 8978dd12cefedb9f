package p2p

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	klog "github.com/pastellaproject/pastella/internal/log"
	"github.com/pastellaproject/pastella/internal/storage"
)

// Event is a reputation-affecting occurrence attributed to a peer address.
type Event string

const (
	EventConnect         Event = "connect"
	EventGoodBehavior    Event = "good_behavior"
	EventHeartbeat       Event = "heartbeat"
	EventHealth          Event = "health"
	EventPeerList        Event = "peer_list"
	EventMessageReceived Event = "message_received"
	EventSyncSuccess     Event = "sync_success"
	EventSyncFailure     Event = "sync_failure"
	EventInvalidMessage  Event = "invalid_message"
	EventBadBehavior     Event = "bad_behavior"
)

// deltas maps each event to its score delta. See the reputation table.
var deltas = map[Event]int{
	EventConnect:         5,
	EventGoodBehavior:    10,
	EventHeartbeat:       10,
	EventHealth:          10,
	EventPeerList:        10,
	EventMessageReceived: 1,
	EventSyncSuccess:     15,
	EventSyncFailure:     -5,
	EventInvalidMessage:  -10,
	EventBadBehavior:     -20,
}

const (
	initialScore   = 100
	minScore       = -1000
	maxScore       = 1000
	banThreshold   = -500
	banDuration    = 24 * time.Hour
	decayRate      = 0.05 // 5% per day, toward initialScore
	decayInterval  = 24 * time.Hour
	snapshotPeriod = 5 * time.Minute

	// manipulationWindow and manipulationCount implement "5 rapid or
	// alternating score changes within one minute" detection.
	manipulationWindow = time.Minute
	manipulationCount  = 5

	reputationKeyPrefix = "reputation/"
)

// change records one scored event, used for manipulation detection.
type change struct {
	At    time.Time
	Delta int
}

// record is the persisted reputation state for one peer address.
type record struct {
	Addr        string    `json:"addr"`
	Score       int       `json:"score"`
	BannedUntil time.Time `json:"banned_until,omitempty"`
	LastUpdate  time.Time `json:"last_update"`

	recent []change // not persisted; sliding window for manipulation checks
}

// ReputationManager tracks per-peer scores, decay and bans, persisting a
// snapshot to storage every snapshotPeriod.
type ReputationManager struct {
	mu      sync.Mutex
	db      storage.DB
	records map[string]*record
}

// NewReputationManager loads any persisted reputation records from db.
func NewReputationManager(db storage.DB) (*ReputationManager, error) {
	m := &ReputationManager{db: db, records: make(map[string]*record)}
	if db == nil {
		return m, nil
	}
	err := db.ForEach([]byte(reputationKeyPrefix), func(key, value []byte) error {
		var r record
		if err := json.Unmarshal(value, &r); err != nil {
			return nil // skip corrupt entry rather than fail startup
		}
		m.records[r.Addr] = &r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load reputation records: %w", err)
	}
	return m, nil
}

// getLocked returns (creating if absent) the record for addr. Caller
// must hold m.mu.
func (m *ReputationManager) getLocked(addr string) *record {
	r, ok := m.records[addr]
	if !ok {
		r = &record{Addr: addr, Score: initialScore, LastUpdate: time.Now()}
		m.records[addr] = r
	}
	return r
}

// Record applies event's delta to addr's score, clamping to
// [minScore, maxScore], and runs manipulation detection.
func (m *ReputationManager) Record(addr string, event Event) {
	delta, ok := deltas[event]
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.getLocked(addr)
	now := time.Now()
	r.Score += delta
	if r.Score < minScore {
		r.Score = minScore
	}
	if r.Score > maxScore {
		r.Score = maxScore
	}
	r.LastUpdate = now

	r.recent = append(r.recent, change{At: now, Delta: delta})
	cutoff := now.Add(-manipulationWindow)
	kept := r.recent[:0]
	for _, c := range r.recent {
		if c.At.After(cutoff) {
			kept = append(kept, c)
		}
	}
	r.recent = kept
	if len(r.recent) >= manipulationCount {
		klog.WithPeer(addr).Warn().
			Int("changes", len(r.recent)).
			Msg("reputation_manipulation_detected")
		r.recent = nil
	}

	if r.Score <= banThreshold {
		r.BannedUntil = now.Add(banDuration)
		klog.WithPeer(addr).Warn().Int("score", r.Score).Msg("peer banned")
	}
}

// IsBanned reports whether addr is currently under an active ban.
func (m *ReputationManager) IsBanned(addr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[addr]
	if !ok || r.BannedUntil.IsZero() {
		return false
	}
	if time.Now().After(r.BannedUntil) {
		r.BannedUntil = time.Time{}
		return false
	}
	return true
}

// Score returns addr's current score, or initialScore if unknown.
func (m *ReputationManager) Score(addr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[addr]; ok {
		return r.Score
	}
	return initialScore
}

// Decay moves every record's score 5% of the way toward initialScore.
// Call once per decayInterval (24h).
func (m *ReputationManager) Decay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		diff := initialScore - r.Score
		step := int(float64(diff) * decayRate)
		if step == 0 && diff > 0 {
			step = 1
		} else if step == 0 && diff < 0 {
			step = -1
		}
		r.Score += step
	}
}

// BanList returns addresses currently banned.
func (m *ReputationManager) BanList() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []string
	for addr, r := range m.records {
		if !r.BannedUntil.IsZero() && now.Before(r.BannedUntil) {
			out = append(out, addr)
		}
	}
	return out
}

// Entry is a read-only view of one peer's reputation record, used by the
// admin API's reputation listing.
type Entry struct {
	Addr        string    `json:"addr"`
	Score       int       `json:"score"`
	Banned      bool      `json:"banned"`
	BannedUntil time.Time `json:"banned_until,omitempty"`
}

// List returns a snapshot of every tracked peer's reputation record.
func (m *ReputationManager) List() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := make([]Entry, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, Entry{
			Addr:        r.Addr,
			Score:       r.Score,
			Banned:      !r.BannedUntil.IsZero() && now.Before(r.BannedUntil),
			BannedUntil: r.BannedUntil,
		})
	}
	return out
}

// Snapshot persists every record to storage. Call every snapshotPeriod.
func (m *ReputationManager) Snapshot() error {
	if m.db == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for addr, r := range m.records {
		b, err := json.Marshal(r)
		if err != nil {
			continue
		}
		if err := m.db.Put([]byte(reputationKeyPrefix+addr), b); err != nil {
			return fmt.Errorf("persist reputation for %s: %w", addr, err)
		}
	}
	return nil
}
