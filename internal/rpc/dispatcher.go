// Package rpc applies client-asserted state changes carried in Data/Rpc
// frames.
package rpc

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/netsync/internal/protocol"
	"github.com/energizer-project/netsync/internal/replication"
)

// Dispatcher applies move commands to the server's authoritative
// entities. It performs no ownership check: any sender can move any
// entity.
type Dispatcher struct {
	entities *replication.Directory[*replication.ReplicatedEntity]
	logger   zerolog.Logger

	applied uint64
	ignored uint64
}

// NewDispatcher creates a dispatcher over the server's entity directory.
func NewDispatcher(entities *replication.Directory[*replication.ReplicatedEntity]) *Dispatcher {
	return &Dispatcher{
		entities: entities,
		logger:   log.With().Str("component", "rpc").Logger(),
	}
}

// Dispatch parses an Rpc payload and applies it. A truncated payload is
// returned as an error and nothing is applied; an unknown entity id is a
// silent no-op.
func (d *Dispatcher) Dispatch(payload []byte) error {
	cmd, err := protocol.ParseMove(payload)
	if err != nil {
		return err
	}
	d.Apply(cmd)
	return nil
}

// Apply overwrites the target entity's position. It reports whether the
// entity exists.
func (d *Dispatcher) Apply(cmd protocol.MoveCommand) bool {
	e, ok := d.entities.Lookup(cmd.ID)
	if !ok {
		d.ignored++
		d.logger.Trace().Uint32("net_id", uint32(cmd.ID)).Msg("move for unknown entity")
		return false
	}
	e.X, e.Y = cmd.X, cmd.Y
	d.applied++
	return true
}

// Stats returns the applied and ignored command counts.
func (d *Dispatcher) Stats() (applied, ignored uint64) {
	return d.applied, d.ignored
}

// ClientDispatcher handles Rpc frames arriving at a client. No client-side
// rpc kinds are defined, so frames are counted and otherwise ignored.
type ClientDispatcher struct {
	received uint64
}

// Dispatch records an inbound client rpc.
func (c *ClientDispatcher) Dispatch(payload []byte) {
	c.received++
	log.Trace().Int("payload_len", len(payload)).Msg("client rpc ignored")
}

// Received returns the number of inbound client rpcs.
func (c *ClientDispatcher) Received() uint64 {
	return c.received
}
