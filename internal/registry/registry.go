// Package registry tracks which live connections belong to which user.
package registry

import (
	"hash/fnv"
	"sync"
)

// DefaultShards is used when New is given a non-positive shard count.
const DefaultShards = 32

// Conn is a live, authenticated connection as seen by the registry. The
// registry never owns the underlying socket.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Registry maps user IDs to their live connections. It is safe for
// concurrent use.
//
// Connections are indexed twice: by owner in userShards and by connection ID
// in connShards. A conn shard is always locked before a user shard and at
// most one user shard is held at a time.
type Registry struct {
	userShards []*userShard
	connShards []*connShard
}

type userShard struct {
	mu    sync.RWMutex
	conns map[string]map[string]Conn
}

type connShard struct {
	mu     sync.Mutex
	owners map[string]string
}

// New creates a registry split into n shards.
func New(n int) *Registry {
	if n <= 0 {
		n = DefaultShards
	}
	r := &Registry{
		userShards: make([]*userShard, n),
		connShards: make([]*connShard, n),
	}
	for i := 0; i < n; i++ {
		r.userShards[i] = &userShard{conns: make(map[string]map[string]Conn)}
		r.connShards[i] = &connShard{owners: make(map[string]string)}
	}
	return r
}

func index(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

func (r *Registry) userShard(userID string) *userShard {
	return r.userShards[index(userID, len(r.userShards))]
}

func (r *Registry) connShard(connID string) *connShard {
	return r.connShards[index(connID, len(r.connShards))]
}

// Register records conn under userID and reports whether this is the user's
// first live connection. Registering the same connection twice is a no-op; a
// connection registered under another user is moved.
func (r *Registry) Register(userID string, conn Conn) bool {
	connID := conn.ID()
	cs := r.connShard(connID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	prev, known := cs.owners[connID]
	if known && prev == userID {
		return false
	}
	if known {
		r.detach(prev, connID)
	}
	cs.owners[connID] = userID

	us := r.userShard(userID)
	us.mu.Lock()
	defer us.mu.Unlock()
	conns, ok := us.conns[userID]
	if !ok {
		conns = make(map[string]Conn)
		us.conns[userID] = conns
	}
	conns[connID] = conn
	return len(conns) == 1
}

// Unregister removes conn wherever it is registered and returns its owner
// and whether that was the owner's last connection. Unknown connections are
// ignored.
func (r *Registry) Unregister(conn Conn) (string, bool) {
	connID := conn.ID()
	cs := r.connShard(connID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	userID, ok := cs.owners[connID]
	if !ok {
		return "", false
	}
	delete(cs.owners, connID)
	return userID, r.detach(userID, connID)
}

func (r *Registry) detach(userID, connID string) bool {
	us := r.userShard(userID)
	us.mu.Lock()
	defer us.mu.Unlock()
	conns, ok := us.conns[userID]
	if !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(us.conns, userID)
		return true
	}
	return false
}

// ConnectionsFor returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsFor(userID string) []Conn {
	us := r.userShard(userID)
	us.mu.RLock()
	defer us.mu.RUnlock()
	conns := us.conns[userID]
	out := make([]Conn, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// Online reports whether the user has at least one live connection.
func (r *Registry) Online(userID string) bool {
	us := r.userShard(userID)
	us.mu.RLock()
	defer us.mu.RUnlock()
	return len(us.conns[userID]) > 0
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	n := 0
	for _, cs := range r.connShards {
		cs.mu.Lock()
		n += len(cs.owners)
		cs.mu.Unlock()
	}
	return n
}

// Users lists users with at least one live connection.
func (r *Registry) Users() []string {
	var out []string
	for _, us := range r.userShards {
		us.mu.RLock()
		for id := range us.conns {
			out = append(out, id)
		}
		us.mu.RUnlock()
	}
	return out
}
