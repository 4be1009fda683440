package client

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/netsync/internal/events"
	"github.com/energizer-project/netsync/internal/network"
	"github.com/energizer-project/netsync/internal/protocol"
	"github.com/energizer-project/netsync/internal/replication"
	"github.com/energizer-project/netsync/internal/rpc"
	"github.com/energizer-project/netsync/internal/util"
)

// Mirrored is a locally instantiated copy of a server entity.
type Mirrored struct {
	replication.Instance
	TypeID uint32
	Owner  protocol.NetworkID
}

// Stats counts client traffic.
type Stats struct {
	PacketsIn  uint64 `json:"packets_in"`
	PacketsOut uint64 `json:"packets_out"`
	Malformed  uint64 `json:"malformed"`
	SendErrors uint64 `json:"send_errors"`
	Spawned    uint64 `json:"spawned"`
	Despawned  uint64 `json:"despawned"`
	Timeouts   uint64 `json:"timeouts"`
}

// Client drives one connection to a server. All methods must be called
// from the goroutine that runs Tick.
type Client struct {
	transport network.Transport
	server    net.Addr
	types     *replication.TypeRegistry
	opts      Options

	bus     *events.EventBus
	display StatusDisplay
	logger  zerolog.Logger

	state   ConnectionState
	idle    time.Duration
	retries int
	id      protocol.NetworkID
	hasID   bool

	mirror *replication.Directory[*Mirrored]
	rpc    rpc.ClientDispatcher
	buf    []byte
	stats  Stats
}

// New creates a client that talks to server over transport and
// instantiates replicated entities from types.
func New(transport network.Transport, server net.Addr, types *replication.TypeRegistry, opts Options) *Client {
	logger := util.ComponentLogger("client")
	return &Client{
		transport: transport,
		server:    server,
		types:     types,
		opts:      opts.withDefaults(),
		display:   LogDisplay{Logger: logger},
		logger:    logger,
		state:     StateNotConnected,
		mirror:    replication.NewDirectory[*Mirrored](),
		buf:       make([]byte, protocol.MaxDatagramSize),
	}
}

// SetEventBus attaches a bus for connection_state_changed events.
func (c *Client) SetEventBus(bus *events.EventBus) {
	c.bus = bus
}

// SetDisplay replaces the status display.
func (c *Client) SetDisplay(d StatusDisplay) {
	c.display = d
}

// Start sends the first Helo.
func (c *Client) Start() {
	c.idle = 0
	c.send(protocol.BuildHelo())
	c.logger.Info().Str("server", c.server.String()).Msg("client started")
}

// Tick drains every queued datagram, then advances the idle timer by
// delta and runs the timer action when the window has elapsed.
func (c *Client) Tick(delta time.Duration) {
	for {
		n, from, ok := c.transport.Poll(c.buf)
		if !ok {
			break
		}
		c.handleDatagram(c.buf[:n], from)
	}

	c.idle += delta
	if c.idle > c.opts.IdleTimeout {
		c.handleTimeout()
	}
}

func (c *Client) handleDatagram(datagram []byte, from net.Addr) {
	c.stats.PacketsIn++
	pkt, err := protocol.Decode(datagram)
	if err != nil {
		c.stats.Malformed++
		c.logger.Debug().Err(err).Str("from", from.String()).Msg("dropping datagram")
		return
	}
	if c.state == StateConnected {
		c.idle = 0
	}

	switch pkt.Type {
	case protocol.MsgHelo:
		if c.state == StateNotConnected {
			c.setState(StateConnecting)
		}
	case protocol.MsgHsk:
		id, err := protocol.ParseHskReply(pkt.Payload)
		if err != nil {
			c.stats.Malformed++
			c.logger.Debug().Err(err).Msg("dropping short handshake")
			return
		}
		c.id, c.hasID = id, true
		c.setState(StateConnected)
	case protocol.MsgPing:
		if c.state == StateConnected || c.state == StateSpurious {
			c.setState(StateConnected)
		}
	case protocol.MsgData:
		if c.state != StateConnected && c.state != StateSpurious {
			c.logger.Trace().Str("state", c.state.String()).Msg("data before handshake ignored")
			return
		}
		c.setState(StateConnected)
		c.handleData(pkt)
	case protocol.MsgBye:
		c.logger.Info().Msg("server closed the connection")
		c.teardown(false)
	}
}

func (c *Client) handleData(pkt protocol.Packet) {
	switch pkt.Data {
	case protocol.DataReplication:
		c.applyReplication(pkt.Payload)
	case protocol.DataDespawn:
		id, err := protocol.ParseDespawn(pkt.Payload)
		if err != nil {
			c.stats.Malformed++
			c.logger.Debug().Err(err).Msg("dropping despawn")
			return
		}
		c.despawn(id)
	case protocol.DataRpc:
		c.rpc.Dispatch(pkt.Payload)
	}
}

func (c *Client) applyReplication(payload []byte) {
	state, extra, err := protocol.ParseReplication(payload)
	if err != nil {
		c.stats.Malformed++
		c.logger.Debug().Err(err).Msg("dropping replication")
		return
	}

	if m, ok := c.mirror.Lookup(state.ID); ok {
		m.Entity.SetPosition(state.X, state.Y)
		if state.HasOwner {
			m.Owner = state.Owner
		}
		c.applyState(m, extra)
		return
	}

	inst, err := c.types.Spawn(state.TypeID)
	if err != nil {
		c.logger.Warn().Err(err).Uint32("net_id", uint32(state.ID)).Msg("cannot instantiate replicated entity")
		return
	}
	inst.Entity.SetPosition(state.X, state.Y)
	m := &Mirrored{Instance: inst, TypeID: state.TypeID}
	if state.HasOwner {
		m.Owner = state.Owner
	}
	c.applyState(m, extra)
	c.mirror.Register(state.ID, m)
	c.stats.Spawned++

	c.logger.Debug().
		Uint32("net_id", uint32(state.ID)).
		Str("type", c.types.Name(state.TypeID)).
		Float32("x", state.X).
		Float32("y", state.Y).
		Msg("spawned replicated entity")
}

func (c *Client) applyState(m *Mirrored, extra []byte) {
	if m.State == nil || len(extra) == 0 {
		return
	}
	if err := m.State.Deserialize(extra); err != nil {
		c.logger.Debug().Err(err).Msg("bad entity state")
	}
}

func (c *Client) despawn(id protocol.NetworkID) {
	m, ok := c.mirror.Remove(id)
	if !ok {
		return
	}
	m.Entity.Destroy()
	c.stats.Despawned++
	c.logger.Debug().Uint32("net_id", uint32(id)).Msg("despawned replicated entity")
}

func (c *Client) handleTimeout() {
	c.idle = 0
	switch c.state {
	case StateNotConnected:
		c.send(protocol.BuildHelo())
	case StateConnecting:
		c.send(protocol.BuildHskRequest())
	case StateConnected:
		c.setState(StateSpurious)
	case StateSpurious:
		if c.retries < c.opts.MaxPingRetries {
			c.send(protocol.BuildPing())
			c.retries++
			return
		}
		c.stats.Timeouts++
		c.logger.Warn().Int("pings", c.retries).Msg("server unresponsive, disconnecting")
		c.teardown(c.opts.SendByeOnTimeout)
	}
}

// teardown resets to NotConnected and destroys the mirror.
func (c *Client) teardown(sendBye bool) {
	if sendBye && c.hasID {
		c.send(protocol.BuildBye(c.id))
	}
	c.retries = 0
	c.mirror.Clear(func(_ protocol.NetworkID, m *Mirrored) {
		m.Entity.Destroy()
	})
	c.id, c.hasID = 0, false
	c.setState(StateNotConnected)
}

func (c *Client) setState(next ConnectionState) {
	c.idle = 0
	if next == c.state {
		return
	}
	prev := c.state
	c.state = next
	if next == StateConnected {
		c.retries = 0
	}

	if c.display != nil {
		c.display.ShowState(next, c.id)
	}
	c.bus.Emit(context.Background(), events.New(events.EventConnectionStateChanged, "client", events.ConnectionStatePayload{
		From:  prev.String(),
		To:    next.String(),
		NetID: uint32(c.id),
	}))
}

func (c *Client) send(frame []byte) {
	if _, err := c.transport.Send(c.server, frame); err != nil {
		c.stats.SendErrors++
		c.logger.Warn().Err(err).Str("server", c.server.String()).Msg("send failed")
		return
	}
	c.stats.PacketsOut++
}

// SendMove asks the server to move an entity.
func (c *Client) SendMove(id protocol.NetworkID, x, y float32) error {
	if !c.hasID {
		return ErrNotConnected
	}
	c.send(protocol.BuildMove(protocol.MoveCommand{ID: id, X: x, Y: y}))
	return nil
}

// Disconnect sends Bye when an id is held and resets the connection.
func (c *Client) Disconnect() {
	c.teardown(true)
}

// Close disconnects and closes the transport.
func (c *Client) Close() error {
	c.Disconnect()
	return c.transport.Close()
}

// LocalAddr returns the address the client sends from.
func (c *Client) LocalAddr() net.Addr {
	return c.transport.LocalAddr()
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	return c.state
}

// ID returns the id assigned by the server.
func (c *Client) ID() (protocol.NetworkID, bool) {
	return c.id, c.hasID
}

// Entity returns a mirrored entity.
func (c *Client) Entity(id protocol.NetworkID) (*Mirrored, bool) {
	return c.mirror.Lookup(id)
}

// EntityCount returns the number of mirrored entities.
func (c *Client) EntityCount() int {
	return c.mirror.Len()
}

// EntityIDs returns the mirrored entity ids in ascending order.
func (c *Client) EntityIDs() []protocol.NetworkID {
	return c.mirror.IDs()
}

// OwnedEntities returns the mirrored entities owned by this client.
func (c *Client) OwnedEntities() []protocol.NetworkID {
	if !c.hasID {
		return nil
	}
	var owned []protocol.NetworkID
	c.mirror.Each(func(id protocol.NetworkID, m *Mirrored) {
		if m.Owner == c.id {
			owned = append(owned, id)
		}
	})
	return owned
}

// Stats returns the traffic counters.
func (c *Client) Stats() Stats {
	return c.stats
}

// RPCsReceived returns the number of inbound client rpc frames.
func (c *Client) RPCsReceived() uint64 {
	return c.rpc.Received()
}
