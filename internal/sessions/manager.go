// Package sessions tracks per-client conversation state: message
// history, the queue of inbound messages waiting on an active
// generation, and the cancellation handle for that generation.
package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenworks/gemgate/pkg/protocol"
)

// DefaultTTL is how long an idle session stays in memory.
const DefaultTTL = 30 * time.Minute

// QueuedMessage is an inbound send frame parked while a generation is
// already running for the session.
type QueuedMessage struct {
	Text           string    `json:"text"`
	CharacterState string    `json:"characterState,omitempty"`
	EnqueuedAt     time.Time `json:"enqueuedAt"`
}

// Info is the listing view of a session.
type Info struct {
	ID           string    `json:"id"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type session struct {
	record SessionRecord

	cancel context.CancelFunc
	queue  []QueuedMessage
	timer  *time.Timer
}

// Manager owns all in-memory sessions. Mutations persist through the
// configured store; persistence failures are logged, never fatal.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session
	store    Store
	ttl      time.Duration
}

type Option func(*Manager)

// WithTTL overrides the idle eviction window. Zero disables eviction.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// NewManager loads previously persisted sessions from store.
func NewManager(store Store, opts ...Option) (*Manager, error) {
	m := &Manager{
		sessions: make(map[string]*session),
		store:    store,
		ttl:      DefaultTTL,
	}
	for _, opt := range opts {
		opt(m)
	}

	records, err := store.LoadAll()
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		s := &session{record: rec}
		m.sessions[rec.ID] = s
		m.armTimer(s)
	}
	if len(records) > 0 {
		slog.Info("sessions loaded", "count", len(records))
	}
	return m, nil
}

// Close stops eviction timers. Persisted state is already on disk.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.timer != nil {
			s.timer.Stop()
		}
	}
}

// getOrCreate must be called with m.mu held for writing.
func (m *Manager) getOrCreate(id string) *session {
	if s, ok := m.sessions[id]; ok {
		m.touch(s)
		return s
	}
	now := time.Now()
	s := &session{record: SessionRecord{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	m.sessions[id] = s
	m.armTimer(s)
	slog.Debug("session created", "session", id)
	return s
}

// touch must be called with m.mu held.
func (m *Manager) touch(s *session) {
	if s.timer != nil {
		s.timer.Reset(m.ttl)
	}
}

// armTimer must be called with m.mu held.
func (m *Manager) armTimer(s *session) {
	if m.ttl <= 0 {
		return
	}
	id := s.record.ID
	s.timer = time.AfterFunc(m.ttl, func() { m.evict(id) })
}

// evict drops an idle session from memory. The persisted record stays
// so the history can be reloaded on restart.
func (m *Manager) evict(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	// Never evict under an active generation or with queued work.
	if s.cancel != nil || len(s.queue) > 0 {
		m.touch(s)
		return
	}
	delete(m.sessions, id)
	slog.Debug("session expired", "session", id)
}

// Append adds a message to the session history and persists.
func (m *Manager) Append(id string, msg protocol.ChatMessage) {
	m.mu.Lock()
	s := m.getOrCreate(id)
	s.record.Messages = append(s.record.Messages, msg)
	s.record.UpdatedAt = time.Now()
	rec := s.record.snapshot()
	m.mu.Unlock()

	m.persist(rec)
}

// Replace swaps the full history, used after compaction rewrites it.
func (m *Manager) Replace(id string, msgs []protocol.ChatMessage) {
	m.mu.Lock()
	s := m.getOrCreate(id)
	s.record.Messages = append([]protocol.ChatMessage(nil), msgs...)
	s.record.UpdatedAt = time.Now()
	rec := s.record.snapshot()
	m.mu.Unlock()

	m.persist(rec)
}

// History returns a copy of the session's messages.
func (m *Manager) History(id string) []protocol.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getOrCreate(id)
	return append([]protocol.ChatMessage(nil), s.record.Messages...)
}

// Reset clears history and any queued messages, keeping the session.
func (m *Manager) Reset(id string) {
	m.mu.Lock()
	s := m.getOrCreate(id)
	s.record.Messages = nil
	s.queue = nil
	s.record.UpdatedAt = time.Now()
	rec := s.record.snapshot()
	m.mu.Unlock()

	m.persist(rec)
	slog.Info("session reset", "session", id)
}

// Delete removes the session from memory and the store.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		if s.timer != nil {
			s.timer.Stop()
		}
		if s.cancel != nil {
			s.cancel()
		}
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if err := m.store.Delete(id); err != nil {
		slog.Error("session delete failed", "session", id, "error", err)
	}
}

// List returns info for every in-memory session.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, Info{
			ID:           s.record.ID,
			MessageCount: len(s.record.Messages),
			CreatedAt:    s.record.CreatedAt,
			UpdatedAt:    s.record.UpdatedAt,
		})
	}
	return out
}

// StartGeneration registers the cancellation handle for a new
// generation. It returns false when one is already running, in which
// case the caller should queue the message instead.
func (m *Manager) StartGeneration(id string, cancel context.CancelFunc) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getOrCreate(id)
	if s.cancel != nil {
		return false
	}
	s.cancel = cancel
	return true
}

// EndGeneration clears the active handle without cancelling.
func (m *Manager) EndGeneration(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.cancel = nil
		m.touch(s)
	}
}

// Cancel trips the active generation. Idempotent: returns false when
// nothing was running.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	return true
}

// Busy reports whether a generation is currently active.
func (m *Manager) Busy(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return ok && s.cancel != nil
}

// Enqueue parks a message behind the active generation and returns its
// 1-based queue position.
func (m *Manager) Enqueue(id string, qm QueuedMessage) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getOrCreate(id)
	s.queue = append(s.queue, qm)
	return len(s.queue)
}

// DequeueNext pops the oldest queued message, FIFO.
func (m *Manager) DequeueNext(id string) (QueuedMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || len(s.queue) == 0 {
		return QueuedMessage{}, false
	}
	qm := s.queue[0]
	s.queue = s.queue[1:]
	return qm, true
}

// QueueLen reports how many messages are waiting.
func (m *Manager) QueueLen(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return 0
	}
	return len(s.queue)
}

func (m *Manager) persist(rec SessionRecord) {
	if err := m.store.Save(rec); err != nil {
		slog.Error("session save failed", "session", rec.ID, "error", err)
	}
}
