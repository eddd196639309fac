package websocket

import (
	"errors"
	"sort"
	"sync"

	"github.com/Bhogyaan/threads/backend/internal/auth"
	"github.com/Bhogyaan/threads/backend/internal/logger"
)

// ErrUnauthenticated is returned when a connection carries no usable user id
var ErrUnauthenticated = errors.New("unauthenticated connection")

// IsUnauthenticated reports whether userID must never be bound
func IsUnauthenticated(userID string) bool {
	return userID == "" || userID == auth.UnauthenticatedUserID
}

// Registry maps each online user to exactly one connection.
// A later connection for the same user replaces the earlier binding.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]string)}
}

// Bind records connectionID as the active connection of userID and returns
// the connection it replaced, if any
func (r *Registry) Bind(userID, connectionID string) (string, error) {
	if IsUnauthenticated(userID) {
		logger.Log.Warn("Refusing to bind unauthenticated connection",
			logger.WithUserID(userID),
			logger.WithConnectionID(connectionID),
		)
		return "", ErrUnauthenticated
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.bindings[userID]
	r.bindings[userID] = connectionID
	return previous, nil
}

// Unbind removes the binding only if it still points at connectionID.
// Disconnects of superseded connections return false and change nothing.
func (r *Registry) Unbind(userID, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.bindings[userID]
	if !ok || current != connectionID {
		return false
	}
	delete(r.bindings, userID)
	return true
}

// Resolve returns the active connection of userID
func (r *Registry) Resolve(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connectionID, ok := r.bindings[userID]
	return connectionID, ok
}

// OnlineUsers returns the bound user ids in sorted order
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.bindings))
	for userID := range r.bindings {
		users = append(users, userID)
	}
	r.mu.RUnlock()

	sort.Strings(users)
	return users
}

// Len returns the number of bound users
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}
