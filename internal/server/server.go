// Package server implements the authoritative half of the netsync
// protocol. A Server owns the session registry and the entity directory,
// answers the handshake, applies move RPCs and pushes replication frames
// to every session at a fixed rate.
package server

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/netsync/internal/events"
	"github.com/energizer-project/netsync/internal/network"
	"github.com/energizer-project/netsync/internal/protocol"
	"github.com/energizer-project/netsync/internal/replication"
	"github.com/energizer-project/netsync/internal/rpc"
	"github.com/energizer-project/netsync/internal/session"
	"github.com/energizer-project/netsync/internal/util"
)

var (
	// ErrKickQueueFull is returned when kick requests arrive faster than
	// the tick drains them.
	ErrKickQueueFull = errors.New("server: kick queue full")
	// ErrIDSpaceExhausted is returned when the allocator keeps returning
	// live ids.
	ErrIDSpaceExhausted = errors.New("server: no free network id")
)

const (
	DefaultReplicationRate = 30
	DefaultSpawnRange      = 100
	DefaultKickQueueSize   = 64

	// allocateAttempts bounds redraws when the allocator returns a live id.
	allocateAttempts = 8
)

// Options configure a Server.
type Options struct {
	// ReplicationRate is the number of replication pushes per second.
	ReplicationRate int `json:"replication_rate"`
	// SpawnRange bounds the x coordinate of newly spawned avatars to
	// [-SpawnRange, SpawnRange].
	SpawnRange float32 `json:"spawn_range"`
	// KickQueueSize is the capacity of the operator kick queue.
	KickQueueSize int `json:"kick_queue_size"`
	// Seed makes spawn positions reproducible. Zero seeds randomly.
	Seed uint64 `json:"seed"`
}

// DefaultOptions returns 30 Hz replication and a ±100 spawn range.
func DefaultOptions() Options {
	return Options{
		ReplicationRate: DefaultReplicationRate,
		SpawnRange:      DefaultSpawnRange,
		KickQueueSize:   DefaultKickQueueSize,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReplicationRate <= 0 {
		o.ReplicationRate = d.ReplicationRate
	}
	if o.SpawnRange <= 0 {
		o.SpawnRange = d.SpawnRange
	}
	if o.KickQueueSize <= 0 {
		o.KickQueueSize = d.KickQueueSize
	}
	return o
}

// Stats counts server traffic.
type Stats struct {
	PacketsIn         uint64 `json:"packets_in"`
	PacketsOut        uint64 `json:"packets_out"`
	Malformed         uint64 `json:"malformed"`
	SendErrors        uint64 `json:"send_errors"`
	TransportDropped  uint64 `json:"transport_dropped"`
	ReplicationFrames uint64 `json:"replication_frames"`
	SessionsOpened    uint64 `json:"sessions_opened"`
	SessionsClosed    uint64 `json:"sessions_closed"`
	Kicks             uint64 `json:"kicks"`
	RPCsApplied       uint64 `json:"rpcs_applied"`
	RPCsIgnored       uint64 `json:"rpcs_ignored"`
	Ticks             uint64 `json:"ticks"`
}

// Server is the authoritative peer. Tick and the handlers it calls run on
// one goroutine; RequestKick and Snapshot are safe from any goroutine.
type Server struct {
	transport network.Transport
	opts      Options
	types     *replication.TypeRegistry
	alloc     replication.Allocator
	rng       *rand.Rand

	sessions *session.Registry
	entities *replication.Directory[*replication.ReplicatedEntity]
	rpc      *rpc.Dispatcher

	bus    *events.EventBus
	ctx    context.Context
	logger zerolog.Logger

	kicks      chan protocol.NetworkID
	replAcc    time.Duration
	replPeriod time.Duration
	buf        []byte
	stats      Stats
	monitor    *TickMonitor

	snapMu   sync.RWMutex
	snapshot Snapshot
}

// New creates a server that serves on transport.
func New(transport network.Transport, opts Options) *Server {
	opts = opts.withDefaults()
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	entities := replication.NewDirectory[*replication.ReplicatedEntity]()
	s := &Server{
		transport:  transport,
		opts:       opts,
		types:      replication.DefaultTypes(),
		alloc:      replication.NewRandomAllocator(),
		rng:        rand.New(rand.NewPCG(seed, seed^0xA5A5A5A5)),
		sessions:   session.NewRegistry(),
		entities:   entities,
		rpc:        rpc.NewDispatcher(entities),
		ctx:        context.Background(),
		logger:     util.ComponentLogger("server"),
		kicks:      make(chan protocol.NetworkID, opts.KickQueueSize),
		replPeriod: time.Second / time.Duration(opts.ReplicationRate),
		buf:        make([]byte, protocol.MaxDatagramSize),
		monitor:    NewTickMonitor(DefaultTickBudget),
	}
	s.publish()
	return s
}

// SetAllocator replaces the NetworkID allocator.
func (s *Server) SetAllocator(a replication.Allocator) {
	s.alloc = a
}

// SetTypes replaces the type registry used to attach state to spawned
// entities.
func (s *Server) SetTypes(types *replication.TypeRegistry) {
	s.types = types
}

// SetEventBus attaches a bus for session and entity lifecycle events.
func (s *Server) SetEventBus(bus *events.EventBus) {
	s.bus = bus
}

// LocalAddr returns the address the server is bound to.
func (s *Server) LocalAddr() net.Addr {
	return s.transport.LocalAddr()
}

// Tick runs one server step: queued kicks, every queued datagram, then the
// replication push when its period has elapsed.
func (s *Server) Tick(delta time.Duration) {
	start := time.Now()

	s.drainKicks()
	for {
		n, from, ok := s.transport.Poll(s.buf)
		if !ok {
			break
		}
		s.handleDatagram(s.buf[:n], from)
	}

	s.replAcc += delta
	if s.replAcc >= s.replPeriod {
		s.replAcc -= s.replPeriod
		if s.replAcc >= s.replPeriod {
			// Fell behind by more than a period; drop the backlog.
			s.replAcc = 0
		}
		s.replicate()
	}

	s.stats.Ticks++
	if elapsed := time.Since(start); s.monitor.Observe(elapsed) {
		s.logger.Warn().Dur("elapsed", elapsed).Int("sessions", s.sessions.Count()).Msg("long tick")
	}
	s.publish()
}

// RequestKick queues a server-initiated disconnect of session id. It is
// applied at the start of the next tick.
func (s *Server) RequestKick(id protocol.NetworkID) error {
	select {
	case s.kicks <- id:
		return nil
	default:
		return ErrKickQueueFull
	}
}

func (s *Server) drainKicks() {
	for {
		select {
		case id := <-s.kicks:
			sess, ok := s.sessions.Get(id)
			if !ok {
				s.logger.Debug().Uint32("net_id", uint32(id)).Msg("kick for unknown session")
				continue
			}
			s.send(sess.Addr, protocol.BuildBye(id))
			s.closeSession(id, events.ReasonKick)
			s.stats.Kicks++
		default:
			return
		}
	}
}

// replicate unicasts one frame per live entity to every session.
func (s *Server) replicate() {
	if s.sessions.Count() == 0 || s.entities.Len() == 0 {
		return
	}
	sessions := s.sessions.All()
	s.entities.Each(func(_ protocol.NetworkID, e *replication.ReplicatedEntity) {
		var extra []byte
		if e.State != nil {
			extra = e.State.Serialize()
		}
		frame := protocol.BuildReplication(e.Snapshot(), extra)
		for _, sess := range sessions {
			if s.send(sess.Addr, frame) {
				s.stats.ReplicationFrames++
			}
		}
	})
}

// Shutdown sends Bye to every session and tears them down.
func (s *Server) Shutdown() {
	for _, sess := range s.sessions.All() {
		s.send(sess.Addr, protocol.BuildBye(sess.ID))
		s.closeSession(sess.ID, events.ReasonStop)
	}
	s.publish()
	s.logger.Info().Msg("server shut down")
}

func (s *Server) send(addr net.Addr, frame []byte) bool {
	if _, err := s.transport.Send(addr, frame); err != nil {
		s.stats.SendErrors++
		s.logger.Warn().Err(err).Str("addr", addr.String()).Msg("send failed")
		return false
	}
	s.stats.PacketsOut++
	return true
}

func (s *Server) emit(t events.EventType, payload interface{}) {
	s.bus.Emit(s.ctx, events.New(t, "server", payload))
}
