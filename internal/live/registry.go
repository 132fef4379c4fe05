// Package live serves practice conversations over WebSocket.
package live

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Conn is the part of a WebSocket connection the registry needs.
type Conn interface {
	Close(code websocket.StatusCode, reason string) error
}

// Registry tracks the single live connection of each trainee session.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]map[string]Conn)}
}

// Get returns the connection for a trainee session, or nil.
func (m *Registry) Get(traineeID, sessionID string) Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[traineeID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Count returns the number of registered connections.
func (m *Registry) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// Register adds conn, closing any connection it replaces.
func (m *Registry) Register(traineeID, sessionID string, conn Conn) {
	m.mu.Lock()
	if _, exists := m.active[traineeID]; !exists {
		m.active[traineeID] = make(map[string]Conn)
	}
	replaced := m.active[traineeID][sessionID]
	m.active[traineeID][sessionID] = conn
	m.mu.Unlock()

	if replaced != nil && replaced != conn {
		_ = replaced.Close(websocket.StatusPolicyViolation, "replaced by a newer connection")
	}
	slog.Info("Live channel registered", "trainee_id", traineeID, "session_id", sessionID)
}

// Restore puts conn back unless another connection took its place.
func (m *Registry) Restore(traineeID, sessionID string, conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.active[traineeID][sessionID]; exists {
		return
	}
	if _, exists := m.active[traineeID]; !exists {
		m.active[traineeID] = make(map[string]Conn)
	}
	m.active[traineeID][sessionID] = conn
}

// Unregister removes conn if it is still the registered connection.
func (m *Registry) Unregister(traineeID, sessionID string, conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[traineeID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(m.active, traineeID)
			}
			slog.Info("Live channel unregistered", "trainee_id", traineeID, "session_id", sessionID)
		}
	}
}

// CloseSession terminates the live channel of a session, if any. It is the
// session service's close hook.
func (m *Registry) CloseSession(traineeID, sessionID string) {
	m.mu.Lock()
	conn, ok := m.active[traineeID][sessionID]
	if ok {
		delete(m.active[traineeID], sessionID)
		if len(m.active[traineeID]) == 0 {
			delete(m.active, traineeID)
		}
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	// The close handshake waits on the peer, so it runs outside the lock.
	_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	slog.Info("Live channel closed", "trainee_id", traineeID, "session_id", sessionID)
}
