package domain

import (
	"sort"
	"sync"
	"time"
)

// SessionState is the lifecycle state of one connection.
type SessionState int

const (
	StateConnected SessionState = iota
	StateIdentified
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateIdentified:
		return "identified"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session tracks the state of a single connection. Room membership is kept
// here as the connection's own view; the hub holds the shared index.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastActiveAt time.Time

	state  SessionState
	userID string
	rooms  map[string]struct{}
	mu     sync.RWMutex
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastActiveAt: now,
		rooms:        make(map[string]struct{}),
	}
}

// Identify binds userID to the session. It returns the previously bound
// user id, which is empty on the first call.
func (s *Session) Identify(userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return "", ErrSessionClosed
	}
	prev := s.userID
	s.userID = userID
	s.state = StateIdentified
	s.LastActiveAt = time.Now()
	return prev, nil
}

// JoinRoom records membership of roomID. It reports whether the room was new
// for this session.
func (s *Session) JoinRoom(roomID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return false, ErrSessionClosed
	}
	s.LastActiveAt = time.Now()
	if _, ok := s.rooms[roomID]; ok {
		return false, nil
	}
	s.rooms[roomID] = struct{}{}
	return true, nil
}

// Disconnect moves the session to its terminal state. Only the first call
// returns true.
func (s *Session) Disconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return false
	}
	s.state = StateDisconnected
	s.rooms = make(map[string]struct{})
	return true
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) IsClosed() bool {
	return s.State() == StateDisconnected
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Rooms returns the joined room ids in sorted order.
func (s *Session) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
