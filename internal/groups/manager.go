package groups

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/datingchat-server/internal/store"
)

var (
	// ErrNotFound is returned when a connection never joined any group.
	ErrNotFound = errors.New("connection not in any group")
	// ErrPersistence is returned when the in-memory change succeeded but the
	// write-through to the store did not.
	ErrPersistence = errors.New("group persistence failed")
)

// Connection is one live transport session inside a group.
type Connection struct {
	ID       string `json:"connection_id"`
	Username string `json:"username"`
}

// Group is a snapshot of a conversation group.
type Group struct {
	Name        string       `json:"name"`
	Connections []Connection `json:"connections"`
}

type groupState struct {
	conns      []Connection
	lastActive time.Time
}

// Manager tracks which connection sits in which pair group.
// Memory is authoritative; the store is written through after the lock is released.
type Manager struct {
	mu     sync.Mutex
	groups map[string]*groupState
	owners map[string]string // connection id -> group name

	store store.GroupStore
	now   func() time.Time
	log   *zerolog.Logger
}

// NewManager builds a manager. A nil store keeps groups in memory only.
func NewManager(st store.GroupStore, logger *zerolog.Logger) *Manager {
	l := logger.With().Str("component", "groups").Logger()
	return &Manager{
		groups: make(map[string]*groupState),
		owners: make(map[string]string),
		store:  st,
		now:    time.Now,
		log:    &l,
	}
}

// GroupName returns the pairing key for two usernames; the ordinally smaller
// name always comes first.
func GroupName(a, b string) string {
	if a < b {
		return a + "-" + b
	}
	return b + "-" + a
}

// Join adds conn to the named group, creating it on first use.
// Concurrent joins are unioned. If persistence fails the joined snapshot is
// still returned together with an error wrapping ErrPersistence.
func (m *Manager) Join(ctx context.Context, name string, conn Connection) (Group, error) {
	m.mu.Lock()
	if prev, ok := m.owners[conn.ID]; ok && prev != name {
		m.detach(prev, conn.ID)
	}
	g := m.groups[name]
	if g == nil {
		g = &groupState{}
		m.groups[name] = g
	}
	if !lo.ContainsBy(g.conns, func(c Connection) bool { return c.ID == conn.ID }) {
		g.conns = append(g.conns, conn)
	}
	g.lastActive = m.now()
	m.owners[conn.ID] = name
	snapshot := g.snapshot(name)
	m.mu.Unlock()

	if m.store != nil {
		err := m.store.AddConnection(ctx, store.Connection{ID: conn.ID, Username: conn.Username, GroupName: name})
		if err != nil {
			return snapshot, fmt.Errorf("%w: add connection: %w", ErrPersistence, err)
		}
	}
	return snapshot, nil
}

// Leave removes the connection from whichever group owns it and returns that
// group's remaining state.
func (m *Manager) Leave(ctx context.Context, connectionID string) (Group, error) {
	m.mu.Lock()
	name, ok := m.owners[connectionID]
	if !ok {
		m.mu.Unlock()
		return Group{}, ErrNotFound
	}
	m.detach(name, connectionID)
	snapshot := m.groups[name].snapshot(name)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.RemoveConnection(ctx, connectionID); err != nil {
			return snapshot, fmt.Errorf("%w: remove connection: %w", ErrPersistence, err)
		}
	}
	return snapshot, nil
}

// detach must be called with mu held. The group itself is kept.
func (m *Manager) detach(name, connectionID string) {
	delete(m.owners, connectionID)
	g := m.groups[name]
	if g == nil {
		return
	}
	g.conns = lo.Reject(g.conns, func(c Connection, _ int) bool { return c.ID == connectionID })
	g.lastActive = m.now()
}

// IsPresent reports whether any connection in the group belongs to username.
func (m *Manager) IsPresent(name, username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.groups[name]
	if g == nil {
		return false
	}
	return lo.ContainsBy(g.conns, func(c Connection) bool { return c.Username == username })
}

// Group returns a snapshot of the named group.
func (m *Manager) Group(name string) (Group, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.groups[name]
	if g == nil {
		return Group{}, false
	}
	return g.snapshot(name), true
}

// Members returns the connection ids currently in the group.
func (m *Manager) Members(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.groups[name]
	if g == nil {
		return nil
	}
	return lo.Map(g.conns, func(c Connection, _ int) string { return c.ID })
}

// PruneIdle forgets groups with no connections and no activity since
// olderThan. Returns how many groups were removed.
func (m *Manager) PruneIdle(ctx context.Context, olderThan time.Time) int {
	m.mu.Lock()
	var idle []string
	for name, g := range m.groups {
		if len(g.conns) == 0 && g.lastActive.Before(olderThan) {
			idle = append(idle, name)
			delete(m.groups, name)
		}
	}
	m.mu.Unlock()

	if m.store != nil {
		for _, name := range idle {
			if err := m.store.DeleteGroup(ctx, name); err != nil {
				m.log.Warn().Err(err).Str("group", name).Msg("failed to delete idle group")
			}
		}
	}
	if len(idle) > 0 {
		m.log.Debug().Int("count", len(idle)).Msg("pruned idle groups")
	}
	return len(idle)
}

// RunJanitor prunes idle groups every interval until ctx is done.
// A non-positive interval disables it.
func (m *Manager) RunJanitor(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.PruneIdle(ctx, m.now().Add(-ttl))
		case <-ctx.Done():
			return
		}
	}
}

func (g *groupState) snapshot(name string) Group {
	conns := make([]Connection, len(g.conns))
	copy(conns, g.conns)
	return Group{Name: name, Connections: conns}
}
