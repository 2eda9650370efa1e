package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/slotwise/studio-backend/internal/models"
)

// SessionManager holds the live conversation state for every client, keyed
// by phone number. Turns for the same client are serialized through WithTurn;
// turns for different clients run in parallel. Sessions slide their expiry on
// every touch and a background sweeper drops the idle ones.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	store    SessionStore
	ttl      time.Duration
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

type sessionEntry struct {
	mu      sync.Mutex // serializes turns for this client
	session *models.Session
}

// NewSessionManager creates a manager with the given sliding TTL and starts
// the expiry sweeper. store may be nil to skip snapshot persistence.
func NewSessionManager(store SessionStore, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	m := &SessionManager{
		sessions: make(map[string]*sessionEntry),
		store:    store,
		ttl:      ttl,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// WithTurn runs fn against the client's session while holding that client's
// turn lock. A new session is created on first contact or after expiry; the
// mutated session is snapshotted after fn returns.
func (m *SessionManager) WithTurn(ctx context.Context, phone string, fn func(*models.Session) error) error {
	entry := m.entryFor(phone)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := m.now()
	if entry.session == nil || now.Sub(entry.session.LastActive) > m.ttl {
		entry.session = m.restoreOrCreate(ctx, phone, now)
	}
	entry.session.LastActive = now

	if err := fn(entry.session); err != nil {
		return err
	}

	if m.store != nil {
		if err := m.store.SaveSession(ctx, entry.session, m.ttl); err != nil {
			log.Printf("Failed to snapshot session for %s: %v", phone, err)
		}
	}
	return nil
}

// Peek returns a copy-free read of the session without resetting its TTL,
// or nil when none is live.
func (m *SessionManager) Peek(phone string) *models.Session {
	m.mu.RLock()
	entry, ok := m.sessions[phone]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.session == nil || m.now().Sub(entry.session.LastActive) > m.ttl {
		return nil
	}
	return entry.session
}

// GetActiveSessionCount returns the number of non-expired sessions.
func (m *SessionManager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	now := m.now()
	for _, entry := range m.sessions {
		if entry.session != nil && now.Sub(entry.session.LastActive) <= m.ttl {
			count++
		}
	}
	return count
}

// EndSession drops a client's session immediately, including its snapshot.
func (m *SessionManager) EndSession(ctx context.Context, phone string) {
	m.mu.Lock()
	delete(m.sessions, phone)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.DeleteSession(ctx, phone); err != nil {
			log.Printf("Failed to delete session snapshot for %s: %v", phone, err)
		}
	}
}

// Stop terminates the expiry sweeper.
func (m *SessionManager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *SessionManager) entryFor(phone string) *sessionEntry {
	m.mu.RLock()
	entry, ok := m.sessions[phone]
	m.mu.RUnlock()
	if ok {
		return entry
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok = m.sessions[phone]; ok {
		return entry
	}
	entry = &sessionEntry{}
	m.sessions[phone] = entry
	return entry
}

// restoreOrCreate loads a persisted snapshot if one survives, otherwise
// starts a fresh session. Expiry means a clean slate: no intent state from
// the dead session leaks into the new one.
func (m *SessionManager) restoreOrCreate(ctx context.Context, phone string, now time.Time) *models.Session {
	if m.store != nil {
		if restored, err := m.store.LoadSession(ctx, phone); err == nil {
			if now.Sub(restored.LastActive) <= m.ttl {
				return restored
			}
		}
	}
	return &models.Session{
		Phone:      phone,
		CreatedAt:  now,
		LastActive: now,
	}
}

func (m *SessionManager) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpired()
		case <-m.stopChan:
			return
		}
	}
}

func (m *SessionManager) cleanupExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for phone, entry := range m.sessions {
		if entry.session != nil && now.Sub(entry.session.LastActive) > m.ttl {
			delete(m.sessions, phone)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("🧹 Cleaned up %d expired sessions", removed)
	}
}
