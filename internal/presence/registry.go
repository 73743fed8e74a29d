package presence

import (
	"sync"

	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-relay/pkg/log"
)

// Broadcaster delivers an event to every live connection.
type Broadcaster interface {
	BroadcastAll(msg *domain.OutEnvelope)
}

// Registry binds user ids to the connection currently serving them. Each
// user has at most one connection and each connection at most one user.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]string // userID -> connID
	byConn map[string]string // connID -> userID

	out Broadcaster
}

func NewRegistry(out Broadcaster) *Registry {
	return &Registry{
		byUser: make(map[string]string),
		byConn: make(map[string]string),
		out:    out,
	}
}

// SetOnline binds userID to connID, replacing any earlier binding of either
// side, and broadcasts userStatus online. A user displaced from connID is
// announced offline first. It returns the connection that previously served
// userID, if it was a different one.
func (r *Registry) SetOnline(userID, connID string) (superseded string) {
	var displaced string

	r.mu.Lock()
	if prevConn, ok := r.byUser[userID]; ok && prevConn != connID {
		delete(r.byConn, prevConn)
		superseded = prevConn
	}
	if prevUser, ok := r.byConn[connID]; ok && prevUser != userID {
		if r.byUser[prevUser] == connID {
			delete(r.byUser, prevUser)
			displaced = prevUser
		}
	}
	r.byUser[userID] = connID
	r.byConn[connID] = userID
	r.mu.Unlock()

	if displaced != "" {
		r.out.BroadcastAll(domain.NewUserStatusEvent(displaced, domain.StatusOffline))
	}

	l := log.L()
	l.Debug().
		Str(log.FieldUserID, userID).
		Str(log.FieldConnID, connID).
		Str("superseded", superseded).
		Msg("user online")

	r.out.BroadcastAll(domain.NewUserStatusEvent(userID, domain.StatusOnline))
	return superseded
}

// ClearByConnection removes the user bound to connID and returns it. Nothing
// is returned when connID was never identified or has been superseded.
func (r *Registry) ClearByConnection(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	if r.byUser[userID] == connID {
		delete(r.byUser, userID)
	}
	return userID, true
}

// Lookup returns the connection serving userID.
func (r *Registry) Lookup(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byUser[userID]
	return connID, ok
}

func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// UserOf returns the user bound to connID.
func (r *Registry) UserOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[connID]
	return userID, ok
}

func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
