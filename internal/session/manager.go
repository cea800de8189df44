package session

import (
	"fmt"
	"sort"
	"sync"

	"boltforge/internal/llm"
	"boltforge/internal/protocol"

	"github.com/google/uuid"
)

const (
	defaultRingBufCapacity  = 1000
	defaultSubscriberBufCap = 100
)

// Manager owns the sessions of the server. The sandbox is shared, so only
// the most recently created session is live; creating a session terminates
// the previous one.
type Manager struct {
	completer  llm.Completer
	classifier llm.Classifier
	sandbox    Sandbox

	mu       sync.RWMutex
	sessions map[string]*managedSession
	activeID string
}

type managedSession struct {
	ctrl        *Controller
	ringBuf     *RingBuffer
	subscribers map[string]chan Event
	subMu       sync.RWMutex
}

// NewManager creates a session manager.
func NewManager(completer llm.Completer, classifier llm.Classifier, sb Sandbox) *Manager {
	return &Manager{
		completer:  completer,
		classifier: classifier,
		sandbox:    sb,
		sessions:   make(map[string]*managedSession),
	}
}

// Create starts a new idle session and terminates the previous one.
func (m *Manager) Create(label string) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.sessions[m.activeID]; ok {
		prev.ctrl.Terminate()
	}

	id := uuid.New().String()
	ms := &managedSession{
		ringBuf:     NewRingBuffer(defaultRingBufCapacity),
		subscribers: make(map[string]chan Event),
	}
	ms.ctrl = NewController(id, label, m.completer, m.classifier, m.sandbox, func(e Event) {
		m.publish(ms, e)
	})

	m.sessions[id] = ms
	m.activeID = id
	return ms.ctrl, nil
}

// publish records an event for replay and sends it to all subscribers.
func (m *Manager) publish(ms *managedSession, event Event) {
	ms.subMu.RLock()
	defer ms.subMu.RUnlock()

	ms.ringBuf.Write(event)
	for _, ch := range ms.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber channel full, drop the event.
		}
	}
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ms, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return ms.ctrl, nil
}

// Active returns the live session, if any.
func (m *Manager) Active() (*Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ms, ok := m.sessions[m.activeID]
	if !ok {
		return nil, false
	}
	return ms.ctrl, true
}

// List returns snapshots of all sessions, oldest first.
func (m *Manager) List() []Session {
	m.mu.RLock()
	ctrls := make([]*Controller, 0, len(m.sessions))
	for _, ms := range m.sessions {
		ctrls = append(ctrls, ms.ctrl)
	}
	m.mu.RUnlock()

	result := make([]Session, 0, len(ctrls))
	for _, c := range ctrls {
		result = append(result, c.Snapshot())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Subscribe creates a channel that receives events for a session.
// Returns the subscription ID, the channel and the buffered history.
func (m *Manager) Subscribe(id string) (string, <-chan Event, []Event, error) {
	m.mu.RLock()
	ms, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return "", nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	subID := uuid.New().String()
	ch := make(chan Event, defaultSubscriberBufCap)

	// Holding the write lock keeps publish out, so every event is either in
	// the history or delivered on ch, never both.
	ms.subMu.Lock()
	history := ms.ringBuf.ReadAll()
	ms.subscribers[subID] = ch
	ms.subMu.Unlock()

	return subID, ch, history, nil
}

// Unsubscribe removes a subscriber from a session.
func (m *Manager) Unsubscribe(sessionID, subID string) {
	m.mu.RLock()
	ms, ok := m.sessions[sessionID]
	m.mu.RUnlock()

	if !ok {
		return
	}

	ms.subMu.Lock()
	if ch, exists := ms.subscribers[subID]; exists {
		close(ch)
		delete(ms.subscribers, subID)
	}
	ms.subMu.Unlock()
}

// PublishFileCount tells the live session how many files the sandbox
// directory holds.
func (m *Manager) PublishFileCount(count int) {
	m.mu.RLock()
	ms, ok := m.sessions[m.activeID]
	m.mu.RUnlock()

	if !ok {
		return
	}
	ms.ctrl.emit(protocol.TypeFilesUpdate, protocol.FilesUpdatePayload{
		SessionID: ms.ctrl.ID(),
		FileCount: count,
	})
}

// Shutdown terminates the live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ms, ok := m.sessions[m.activeID]
	m.activeID = ""
	m.mu.Unlock()

	if ok {
		ms.ctrl.Terminate()
	}
}
