package session

import (
	"sync"
	"time"

	"github.com/waveform-labs/melodex/internal/domain"
	"github.com/waveform-labs/melodex/internal/search"
)

// Transport pushes events to one connected client. Implementations are
// responsible for their own write serialization.
type Transport interface {
	Push(event search.Event) error
}

// Store owns the connection and session maps. It is constructed once per
// process and passed by reference to the manager, so tests get clean
// isolation without package-level state.
//
// The mutex covers the maps and the mutable Connection fields (SessionID,
// LastActivity): the sweep goroutine reads those fields while client-event
// goroutines update them, so every mutation goes through a store accessor
// and never through a pointer obtained from connection().
type Store struct {
	mu          sync.RWMutex
	conns       map[string]*domain.Connection    // by connection id
	byTransport map[string]string                // transport id -> connection id
	sessions    map[string]*domain.SearchSession // by session id
	owners      map[string]string                // session id -> connection id
	transports  map[string]Transport             // by connection id
	timers      map[string]Timer                 // debounce timers by debounce key
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		conns:       make(map[string]*domain.Connection),
		byTransport: make(map[string]string),
		sessions:    make(map[string]*domain.SearchSession),
		owners:      make(map[string]string),
		transports:  make(map[string]Transport),
		timers:      make(map[string]Timer),
	}
}

func (s *Store) putConnection(conn *domain.Connection, t Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn.ID] = conn
	s.byTransport[conn.TransportID] = conn.ID
	if t != nil {
		s.transports[conn.ID] = t
	}
}

func (s *Store) connection(id string) (*domain.Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.conns[id]
	return conn, ok
}

func (s *Store) connectionByTransport(transportID string) (*domain.Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTransport[transportID]
	if !ok {
		return nil, false
	}
	conn, ok := s.conns[id]
	return conn, ok
}

func (s *Store) removeConnection(id string) (*domain.Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[id]
	if !ok {
		return nil, false
	}
	delete(s.conns, id)
	delete(s.byTransport, conn.TransportID)
	delete(s.transports, id)
	return conn, true
}

// touchConnection refreshes the connection's last-activity timestamp.
// Reports whether the connection exists.
func (s *Store) touchConnection(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[id]
	if !ok {
		return false
	}
	conn.LastActivity = now
	return true
}

// connSession returns the connection's current session id, which may be
// empty when no session is attached.
func (s *Store) connSession(connID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.conns[connID]
	if !ok {
		return "", false
	}
	return conn.SessionID, true
}

// detachSession clears the connection's session link and returns the
// previous session id, empty when none was attached.
func (s *Store) detachSession(connID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[connID]
	if !ok {
		return ""
	}
	prev := conn.SessionID
	conn.SessionID = ""
	return prev
}

// putSession stores the session and links it to its owning connection,
// refreshing the connection's activity timestamp under the same lock.
func (s *Store) putSession(sess *domain.SearchSession, connID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	s.owners[sess.ID] = connID
	if conn, ok := s.conns[connID]; ok {
		conn.SessionID = sess.ID
		conn.LastActivity = now
	}
}

func (s *Store) session(id string) (*domain.SearchSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// attachSession re-points an existing session at a new owning connection
// and records the link on the connection, both under one lock.
func (s *Store) attachSession(sessionID, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[sessionID] = connID
	if conn, ok := s.conns[connID]; ok {
		conn.SessionID = sessionID
	}
}

func (s *Store) removeSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	delete(s.owners, id)
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
}

// transportForSession resolves the push transport for a session's owning
// connection; ok is false for unknown or stale session ids.
func (s *Store) transportForSession(sessionID string) (Transport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	connID, ok := s.owners[sessionID]
	if !ok {
		return nil, false
	}
	t, ok := s.transports[connID]
	return t, ok
}

func (s *Store) transport(connID string) (Transport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transports[connID]
	return t, ok
}

// armTimer replaces any pending timer for the key: last-write-wins.
func (s *Store) armTimer(key string, timer Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.timers[key]; ok {
		prev.Stop()
	}
	s.timers[key] = timer
}

func (s *Store) cancelTimer(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
}

// idleConnectionIDs returns the ids of connections whose last activity is
// older than the timeout. The sweep works from ids, not pointers, so the
// LastActivity reads stay under the store lock.
func (s *Store) idleConnectionIDs(now time.Time, timeout time.Duration) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, conn := range s.conns {
		if now.Sub(conn.LastActivity) > timeout {
			out = append(out, id)
		}
	}
	return out
}

// snapshotSessions returns the current sessions for the sweep.
func (s *Store) snapshotSessions() []*domain.SearchSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.SearchSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Counts reports the live connection and session totals.
func (s *Store) Counts() (connections, sessions int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns), len(s.sessions)
}
