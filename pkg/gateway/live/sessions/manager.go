// Package sessions multiplexes concurrent calls: each live connection gets
// its own tracked entry, and shutdown can cancel and drain them all.
package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one tracked call.
type Session struct {
	ID        string
	Kind      string
	StreamSID string
	StartedAt time.Time

	cancel func()
	once   sync.Once
}

type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create registers a new session and returns its handle. cancel may be
// invoked by both Destroy and CancelAll and must tolerate repeat calls.
func (m *Manager) Create(kind string, cancel func()) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now().UTC(),
		cancel:    cancel,
	}

	m.mu.Lock()
	if m.sessions == nil {
		m.sessions = make(map[string]*Session)
	}
	m.sessions[s.ID] = s
	m.wg.Add(1)
	m.mu.Unlock()

	return s
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// SetCancel attaches the cancel hook after the session's worker exists.
func (m *Manager) SetCancel(id string, cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.cancel = cancel
	}
}

// SetStreamSID records the carrier stream id once the start event names it.
func (m *Manager) SetStreamSID(id, streamSID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.StreamSID = streamSID
	}
}

// Destroy cancels and removes one session. Calling it twice, or for an
// unknown id, is a no-op.
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		m.wg.Done()
	})
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CancelAll cancels every tracked session without removing them; each one
// still unwinds through its own Destroy.
func (m *Manager) CancelAll() (canceled int) {
	var cancels []*Session
	m.mu.Lock()
	for _, s := range m.sessions {
		cancels = append(cancels, s)
	}
	m.mu.Unlock()

	for _, s := range cancels {
		if s.cancel != nil {
			s.cancel()
		}
		canceled++
	}
	return canceled
}

// Wait blocks until every session is destroyed or the context expires.
func (m *Manager) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
