package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultHeartbeatWindow is how long a session survives without a heartbeat
// before the sweeper forfeits it.
const DefaultHeartbeatWindow = 8 * time.Second

// ErrInFlight is returned when a user already holds an unresolved session for
// the same game.
var ErrInFlight = errors.New("session: game already in flight for user")

// ErrNotFound is returned for unknown or already-resolved session keys.
var ErrNotFound = errors.New("session: not found")

// ErrNotPending is returned when claiming a session another caller has
// already claimed.
var ErrNotPending = errors.New("session: not pending")

// State of a session's lifecycle.
type State string

const (
	StatePending  State = "pending"
	StateResolved State = "resolved"
)

// Session is one committed bet awaiting resolution. The key is the client's
// handle; (UserID, GameID) is the exclusivity lock.
type Session struct {
	Key       string
	UserID    string
	GameID    string
	Bet       decimal.Decimal
	BetChoice string
	TrackKey  string
	Seed      int64
	CreatedAt time.Time
	LastBeat  time.Time
	State     State
}

// Store tracks in-flight sessions. Implementations must enforce the
// one-session-per-user-per-game invariant inside Put.
type Store interface {
	Get(key string) (Session, bool)
	Put(s Session) error
	Resolve(key string) (Session, error)
	Release(key string, now time.Time)
	Delete(key string)
	Heartbeat(key string, now time.Time) error
	Sweep(now time.Time, window time.Duration) []Session
}

// MemoryStore is the in-process Store. All maps share one mutex; every method
// is safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	byKey  map[string]Session
	byLock map[lockKey]string
}

type lockKey struct {
	userID string
	gameID string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey:  make(map[string]Session),
		byLock: make(map[lockKey]string),
	}
}

// NewKey returns a fresh session key.
func NewKey() string {
	return uuid.NewString()
}

// Get returns the session for a key.
func (m *MemoryStore) Get(key string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byKey[key]
	return s, ok
}

// Put stores a new session. It fails with ErrInFlight when the user already
// has a pending session for the same game; the check and the insert are one
// critical section, so concurrent double-starts race to exactly one winner.
func (m *MemoryStore) Put(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lk := lockKey{userID: s.UserID, gameID: s.GameID}
	if existing, held := m.byLock[lk]; held {
		if cur, ok := m.byKey[existing]; ok && cur.State == StatePending {
			return ErrInFlight
		}
	}
	m.byKey[s.Key] = s
	m.byLock[lk] = s.Key
	return nil
}

// Resolve atomically claims a pending session for settlement. Exactly one of
// any number of concurrent callers wins the claim; the rest get ErrNotPending.
// Unknown keys get ErrNotFound. A claimed session is invisible to Sweep.
func (m *MemoryStore) Resolve(key string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byKey[key]
	if !ok {
		return Session{}, ErrNotFound
	}
	if s.State != StatePending {
		return Session{}, ErrNotPending
	}
	s.State = StateResolved
	m.byKey[key] = s
	return s, nil
}

// Release returns a claimed session to pending after a failed resolution. The
// beat is refreshed so the claim window does not count against the heartbeat.
func (m *MemoryStore) Release(key string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byKey[key]
	if !ok || s.State != StateResolved {
		return
	}
	s.State = StatePending
	s.LastBeat = now
	m.byKey[key] = s
}

// Delete removes a session and releases its lock.
func (m *MemoryStore) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(key)
}

// Heartbeat refreshes a pending session's last-beat time.
func (m *MemoryStore) Heartbeat(key string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byKey[key]
	if !ok || s.State != StatePending {
		return ErrNotFound
	}
	s.LastBeat = now
	m.byKey[key] = s
	return nil
}

// Sweep removes every pending session whose last beat is older than the
// window and returns the forfeited sessions for settlement.
func (m *MemoryStore) Sweep(now time.Time, window time.Duration) []Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var forfeited []Session
	for key, s := range m.byKey {
		if s.State == StatePending && now.Sub(s.LastBeat) > window {
			forfeited = append(forfeited, s)
			m.remove(key)
		}
	}
	return forfeited
}

// remove assumes the mutex is held.
func (m *MemoryStore) remove(key string) {
	s, ok := m.byKey[key]
	if !ok {
		return
	}
	delete(m.byKey, key)
	lk := lockKey{userID: s.UserID, gameID: s.GameID}
	if m.byLock[lk] == key {
		delete(m.byLock, lk)
	}
}
