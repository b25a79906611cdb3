package presence

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Registry maps usernames to their live connection ids.
// A connection id belongs to exactly one username at a time.
type Registry struct {
	mu     sync.Mutex
	byUser map[string][]string
	byConn map[string]string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string][]string),
		byConn: make(map[string]string),
	}
}

// Add records connectionID for username. Returns true if the user had no
// connections before this call. Adding a known id again is a no-op; adding it
// under a different username moves it.
func (r *Registry) Add(username, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.byConn[connectionID]; ok {
		if owner == username {
			return false
		}
		r.detach(owner, connectionID)
	}

	first := len(r.byUser[username]) == 0
	r.byUser[username] = append(r.byUser[username], connectionID)
	r.byConn[connectionID] = username
	return first
}

// Remove drops connectionID from username's set. Returns true only when this
// call removed the user's last connection.
func (r *Registry) Remove(username, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.byConn[connectionID]; !ok || owner != username {
		return false
	}
	return r.detach(username, connectionID)
}

// RemoveConnection drops connectionID whoever owns it.
func (r *Registry) RemoveConnection(connectionID string) (username string, nowEmpty, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	username, ok = r.byConn[connectionID]
	if !ok {
		return "", false, false
	}
	return username, r.detach(username, connectionID), true
}

// detach must be called with mu held.
func (r *Registry) detach(username, connectionID string) bool {
	delete(r.byConn, connectionID)
	remaining := lo.Without(r.byUser[username], connectionID)
	if len(remaining) == 0 {
		delete(r.byUser, username)
		return true
	}
	r.byUser[username] = remaining
	return false
}

// IsOnline reports whether username has at least one connection.
func (r *Registry) IsOnline(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser[username]) > 0
}

// ConnectionsFor returns a copy of username's connection ids in insertion order.
func (r *Registry) ConnectionsFor(username string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.byUser[username])
}

// OnlineUsers returns the usernames with live connections, sorted.
func (r *Registry) OnlineUsers() []string {
	r.mu.Lock()
	users := lo.Keys(r.byUser)
	r.mu.Unlock()

	slices.Sort(users)
	return users
}

// Connections returns every live connection id, sorted.
func (r *Registry) Connections() []string {
	r.mu.Lock()
	ids := lo.Keys(r.byConn)
	r.mu.Unlock()

	slices.Sort(ids)
	return ids
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}
