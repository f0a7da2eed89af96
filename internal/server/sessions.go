package server

import "sync"

// Sessions maps connections to users and back. A connection binds to
// the first userId it presents; reconnecting from a new connection
// rebinds the user and orphans the old one.
type Sessions struct {
	mu         sync.RWMutex
	userByConn map[string]string
	connByUser map[string]string
}

// NewSessions creates an empty session map
func NewSessions() *Sessions {
	return &Sessions{
		userByConn: make(map[string]string),
		connByUser: make(map[string]string),
	}
}

// Bind associates a connection with a user. A user showing up on a new
// connection takes it over; the previous connection's binding is
// dropped.
func (s *Sessions) Bind(connID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.connByUser[userID]; ok && old != connID {
		delete(s.userByConn, old)
	}
	s.userByConn[connID] = userID
	s.connByUser[userID] = connID
}

// UserFor returns the user bound to a connection
func (s *Sessions) UserFor(connID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.userByConn[connID]
	return userID, ok
}

// ConnFor returns the connection a user is currently bound to
func (s *Sessions) ConnFor(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	connID, ok := s.connByUser[userID]
	return connID, ok
}

// DropConn clears a closing connection's binding. The reverse entry is
// only removed when it still points at this connection, so a rebind
// that already happened survives.
func (s *Sessions) DropConn(connID string) (userID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok = s.userByConn[connID]
	if !ok {
		return "", false
	}
	delete(s.userByConn, connID)
	if s.connByUser[userID] == connID {
		delete(s.connByUser, userID)
	}
	return userID, true
}
