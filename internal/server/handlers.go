package server

import (
	"net"

	"github.com/energizer-project/netsync/internal/events"
	"github.com/energizer-project/netsync/internal/protocol"
	"github.com/energizer-project/netsync/internal/replication"
)

func (s *Server) handleDatagram(datagram []byte, from net.Addr) {
	s.stats.PacketsIn++
	pkt, err := protocol.Decode(datagram)
	if err != nil {
		s.malformed(err, from)
		return
	}

	switch pkt.Type {
	case protocol.MsgHelo:
		s.send(from, protocol.BuildHelo())
	case protocol.MsgHsk:
		s.handleHandshake(from)
	case protocol.MsgPing:
		s.send(from, protocol.BuildPing())
	case protocol.MsgBye:
		id, err := protocol.ParseBye(pkt.Payload)
		if err != nil {
			s.malformed(err, from)
			return
		}
		s.closeSession(id, events.ReasonBye)
	case protocol.MsgData:
		s.handleData(pkt, from)
	}
}

func (s *Server) malformed(err error, from net.Addr) {
	s.stats.Malformed++
	s.logger.Debug().Err(err).Str("from", from.String()).Msg("dropping datagram")
}

func (s *Server) handleHandshake(from net.Addr) {
	if sess, ok := s.sessions.ByAddr(from); ok {
		s.send(from, protocol.BuildHskReply(sess.ID))
		s.logger.Debug().Uint32("net_id", uint32(sess.ID)).Str("addr", from.String()).Msg("repeated handshake")
		return
	}

	clientID, err := s.allocate()
	if err != nil {
		s.logger.Error().Err(err).Str("addr", from.String()).Msg("cannot admit client")
		return
	}
	sess := s.sessions.Create(clientID, from)

	entityID, err := s.allocate()
	if err != nil {
		s.sessions.Remove(clientID)
		s.logger.Error().Err(err).Str("addr", from.String()).Msg("cannot spawn avatar")
		return
	}
	entity := &replication.ReplicatedEntity{
		ID:     entityID,
		TypeID: replication.TypePlayer,
		Owner:  clientID,
		X:      (s.rng.Float32()*2 - 1) * s.opts.SpawnRange,
		Y:      0,
	}
	if inst, err := s.types.Spawn(entity.TypeID); err == nil {
		entity.State = inst.State
	}
	s.entities.Register(entityID, entity)
	s.sessions.AddOwned(clientID, entityID)
	s.stats.SessionsOpened++

	s.send(from, protocol.BuildHskReply(clientID))

	s.logger.Info().
		Uint32("net_id", uint32(clientID)).
		Uint32("entity_id", uint32(entityID)).
		Str("addr", from.String()).
		Float32("x", entity.X).
		Msg("session opened")

	s.emit(events.EventSessionOpened, events.SessionPayload{NetID: uint32(sess.ID), Addr: from.String()})
	s.emit(events.EventEntitySpawned, entityPayload(entity))
}

// allocate draws an id that is not in use by a session or an entity.
func (s *Server) allocate() (protocol.NetworkID, error) {
	for i := 0; i < allocateAttempts; i++ {
		id := s.alloc.Allocate()
		if id != 0 && !s.sessions.Contains(id) && !s.entities.Contains(id) {
			return id, nil
		}
	}
	return 0, ErrIDSpaceExhausted
}

func (s *Server) handleData(pkt protocol.Packet, from net.Addr) {
	switch pkt.Data {
	case protocol.DataRpc:
		if err := s.rpc.Dispatch(pkt.Payload); err != nil {
			s.malformed(err, from)
		}
	default:
		s.logger.Trace().
			Str("data", pkt.Data.String()).
			Str("from", from.String()).
			Msg("ignoring client data")
	}
}

// closeSession removes a session and its entities. Every session connected
// before the removal, the departing one included, is told to despawn them.
// Unknown ids are a no-op.
func (s *Server) closeSession(id protocol.NetworkID, reason events.CloseReason) bool {
	if _, ok := s.sessions.Get(id); !ok {
		return false
	}
	recipients := s.sessions.All()
	sess, _ := s.sessions.Remove(id)
	s.stats.SessionsClosed++

	for _, entityID := range sess.Owned() {
		entity, ok := s.entities.Remove(entityID)
		if !ok {
			continue
		}
		frame := protocol.BuildDespawn(entityID)
		for _, r := range recipients {
			s.send(r.Addr, frame)
		}
		s.emit(events.EventEntityDespawned, entityPayload(entity))
	}

	s.logger.Info().
		Uint32("net_id", uint32(id)).
		Str("addr", sess.Addr.String()).
		Str("reason", string(reason)).
		Msg("session closed")

	s.emit(events.EventSessionClosed, events.SessionPayload{
		NetID:  uint32(id),
		Addr:   sess.Addr.String(),
		Reason: reason,
	})
	return true
}

func entityPayload(e *replication.ReplicatedEntity) events.EntityPayload {
	return events.EntityPayload{
		EntityID: uint32(e.ID),
		TypeID:   e.TypeID,
		Owner:    uint32(e.Owner),
		X:        e.X,
		Y:        e.Y,
	}
}
