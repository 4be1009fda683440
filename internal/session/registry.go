// Package session tracks the server's connected clients: their assigned
// NetworkID, the address they send from and the entities they own.
package session

import (
	"net"
	"sort"
	"time"

	"github.com/energizer-project/netsync/internal/protocol"
)

// Session binds a NetworkID to a transport address.
type Session struct {
	ID        protocol.NetworkID
	Addr      net.Addr
	CreatedAt time.Time

	owned map[protocol.NetworkID]struct{}
}

// Owns reports whether the session owns entity id.
func (s *Session) Owns(id protocol.NetworkID) bool {
	_, ok := s.owned[id]
	return ok
}

// Owned returns the owned entity ids in ascending order.
func (s *Session) Owned() []protocol.NetworkID {
	ids := make([]protocol.NetworkID, 0, len(s.owned))
	for id := range s.owned {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Info is a read-only copy of a session for monitoring.
type Info struct {
	ID        protocol.NetworkID   `json:"net_id"`
	Addr      string               `json:"addr"`
	CreatedAt time.Time            `json:"created_at"`
	Owned     []protocol.NetworkID `json:"owned"`
}

// Info returns a copy of the session's state.
func (s *Session) Info() Info {
	return Info{
		ID:        s.ID,
		Addr:      s.Addr.String(),
		CreatedAt: s.CreatedAt,
		Owned:     s.Owned(),
	}
}

// Registry indexes sessions by id and by address. It is owned by the
// server tick and not safe for concurrent use.
type Registry struct {
	byID   map[protocol.NetworkID]*Session
	byAddr map[string]protocol.NetworkID
	now    func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[protocol.NetworkID]*Session),
		byAddr: make(map[string]protocol.NetworkID),
		now:    time.Now,
	}
}

// Create registers a new session. An existing session with the same id
// is replaced.
func (r *Registry) Create(id protocol.NetworkID, addr net.Addr) *Session {
	if old, ok := r.byID[id]; ok {
		delete(r.byAddr, old.Addr.String())
	}
	s := &Session{
		ID:        id,
		Addr:      addr,
		CreatedAt: r.now(),
		owned:     make(map[protocol.NetworkID]struct{}),
	}
	r.byID[id] = s
	r.byAddr[addr.String()] = id
	return s
}

// Get returns the session with the given id.
func (r *Registry) Get(id protocol.NetworkID) (*Session, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// ByAddr returns the session bound to addr.
func (r *Registry) ByAddr(addr net.Addr) (*Session, bool) {
	id, ok := r.byAddr[addr.String()]
	if !ok {
		return nil, false
	}
	return r.Get(id)
}

// AddOwned records that session id owns entity.
func (r *Registry) AddOwned(id, entity protocol.NetworkID) bool {
	s, ok := r.byID[id]
	if !ok {
		return false
	}
	s.owned[entity] = struct{}{}
	return true
}

// Remove deletes the session and returns it.
func (r *Registry) Remove(id protocol.NetworkID) (*Session, bool) {
	s, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	if r.byAddr[s.Addr.String()] == id {
		delete(r.byAddr, s.Addr.String())
	}
	return s, true
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	return len(r.byID)
}

// All returns every session in ascending id order.
func (r *Registry) All() []*Session {
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Contains reports whether id is a live session.
func (r *Registry) Contains(id protocol.NetworkID) bool {
	_, ok := r.byID[id]
	return ok
}
