package server

import (
	"time"

	"github.com/energizer-project/netsync/internal/protocol"
	"github.com/energizer-project/netsync/internal/replication"
	"github.com/energizer-project/netsync/internal/session"
)

// EntityInfo is a read-only copy of an authoritative entity.
type EntityInfo struct {
	ID     protocol.NetworkID `json:"net_id"`
	TypeID uint32             `json:"type_id"`
	Owner  protocol.NetworkID `json:"owner"`
	X      float32            `json:"x"`
	Y      float32            `json:"y"`
}

// Snapshot is the state published at the end of every tick for observers
// on other goroutines.
type Snapshot struct {
	Time     time.Time      `json:"time"`
	Addr     string         `json:"addr"`
	Sessions []session.Info `json:"sessions"`
	Entities []EntityInfo   `json:"entities"`
	Stats    Stats          `json:"stats"`
	Ticks    TickStats      `json:"ticks"`
}

// Session returns the session with the given id.
func (s Snapshot) Session(id protocol.NetworkID) (session.Info, bool) {
	for _, info := range s.Sessions {
		if info.ID == id {
			return info, true
		}
	}
	return session.Info{}, false
}

// Snapshot returns the most recently published state.
func (s *Server) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snapshot
}

type droppedCounter interface {
	Dropped() uint64
}

func (s *Server) publish() {
	sessions := s.sessions.All()
	infos := make([]session.Info, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}

	entities := make([]EntityInfo, 0, s.entities.Len())
	s.entities.Each(func(id protocol.NetworkID, e *replication.ReplicatedEntity) {
		entities = append(entities, EntityInfo{ID: id, TypeID: e.TypeID, Owner: e.Owner, X: e.X, Y: e.Y})
	})

	stats := s.stats
	stats.RPCsApplied, stats.RPCsIgnored = s.rpc.Stats()
	if dc, ok := s.transport.(droppedCounter); ok {
		stats.TransportDropped = dc.Dropped()
	}

	snap := Snapshot{
		Time:     time.Now(),
		Addr:     s.transport.LocalAddr().String(),
		Sessions: infos,
		Entities: entities,
		Stats:    stats,
		Ticks:    s.monitor.Stats(),
	}

	s.snapMu.Lock()
	s.snapshot = snap
	s.snapMu.Unlock()
}

// SessionCount returns the number of live sessions. Tick goroutine only.
func (s *Server) SessionCount() int {
	return s.sessions.Count()
}

// EntityCount returns the number of live entities. Tick goroutine only.
func (s *Server) EntityCount() int {
	return s.entities.Len()
}

// Stats returns the traffic counters. Tick goroutine only.
func (s *Server) Stats() Stats {
	stats := s.stats
	stats.RPCsApplied, stats.RPCsIgnored = s.rpc.Stats()
	return stats
}
