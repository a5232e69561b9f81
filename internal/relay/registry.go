// Package relay tracks live connections and their bound identities via the
// Registry type. A connection's identity is set once on login and kept for
// the connection's lifetime.
package relay

import "sync"

// UserIdentity names the human behind a connection. Uniqueness of ID is not
// enforced; two connections may log in with the same identity.
type UserIdentity struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
}

// Connection is the registry's record of one live transport connection.
// Room handlers only ever see connection identifiers, never this struct, so
// no room state can alias into it.
type Connection struct {
	ID          string
	identity    *UserIdentity
	joinedRooms map[string]struct{}
}

// Registry owns the set of live connections. All access is serialized through
// its mutex; callers hold no references into the map.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Register creates an entry for a freshly connected transport. The entry has
// no identity and an empty joined-room set.
func (g *Registry) Register(connectionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.conns[connectionID] = &Connection{
		ID:          connectionID,
		joinedRooms: make(map[string]struct{}),
	}
}

// IsRegistered reports whether the connection is known to the registry.
func (g *Registry) IsRegistered(connectionID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.conns[connectionID]
	return ok
}

// Authenticate binds an identity to the connection. The first login wins:
// a second login on the same connection fails with AlreadyAuthenticated
// rather than silently overwriting the identity.
func (g *Registry) Authenticate(connectionID string, identity UserIdentity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	conn, ok := g.conns[connectionID]
	if !ok {
		return newError(CodeUnknownConnection, "connection %q is not registered", connectionID)
	}
	if conn.identity != nil {
		return newError(CodeAlreadyAuthenticated, "connection %q already logged in as %q", connectionID, conn.identity.DisplayName)
	}

	conn.identity = &identity
	return nil
}

// Identity returns the identity bound to the connection, or nil if the
// connection has not logged in. The second return reports registration.
func (g *Registry) Identity(connectionID string) (*UserIdentity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	conn, ok := g.conns[connectionID]
	if !ok {
		return nil, false
	}
	if conn.identity == nil {
		return nil, true
	}
	identity := *conn.identity
	return &identity, true
}

// Deregister removes the connection and returns the rooms it was a member
// of, so the caller can run the per-room disconnect cascade.
func (g *Registry) Deregister(connectionID string) ([]string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	conn, ok := g.conns[connectionID]
	if !ok {
		return nil, false
	}

	rooms := make([]string, 0, len(conn.joinedRooms))
	for roomID := range conn.joinedRooms {
		rooms = append(rooms, roomID)
	}
	delete(g.conns, connectionID)
	return rooms, true
}

// ConnectionIDs returns a snapshot of every registered connection id, used
// to resolve the Broadcast audience.
func (g *Registry) ConnectionIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.conns))
	for id := range g.conns {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of registered connections.
func (g *Registry) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// markJoined records room membership for the disconnect cascade. It reports
// false when the connection has been deregistered in the meantime, in which
// case the caller must not complete the join.
func (g *Registry) markJoined(connectionID, roomID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	conn, ok := g.conns[connectionID]
	if !ok {
		return false
	}
	conn.joinedRooms[roomID] = struct{}{}
	return true
}

func (g *Registry) markLeft(connectionID, roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if conn, ok := g.conns[connectionID]; ok {
		delete(conn.joinedRooms, roomID)
	}
}
