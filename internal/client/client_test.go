package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/energizer-project/netsync/internal/events"
	"github.com/energizer-project/netsync/internal/network"
	"github.com/energizer-project/netsync/internal/protocol"
	"github.com/energizer-project/netsync/internal/replication"
)

const tick = 150 * time.Millisecond

type harness struct {
	t      *testing.T
	server *network.MemoryTransport
	client *Client
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	n := network.NewMemoryNetwork()
	srv, err := n.Bind("server:3630")
	if err != nil {
		t.Fatalf("bind server: %v", err)
	}
	tr, err := n.Bind("client:0")
	if err != nil {
		t.Fatalf("bind client: %v", err)
	}
	c := New(tr, srv.LocalAddr(), replication.DefaultTypes(), opts)
	c.SetDisplay(nil)
	return &harness{t: t, server: srv, client: c}
}

// push sends a frame from the fake server to the client.
func (h *harness) push(frame []byte) {
	h.t.Helper()
	if _, err := h.server.Send(h.client.transport.LocalAddr(), frame); err != nil {
		h.t.Fatalf("server send: %v", err)
	}
}

// received drains the fake server and returns the message types it saw.
func (h *harness) received() []protocol.MessageType {
	var out []protocol.MessageType
	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		n, _, ok := h.server.Poll(buf)
		if !ok {
			return out
		}
		pkt, err := protocol.Decode(buf[:n])
		if err != nil {
			h.t.Fatalf("client sent malformed frame: %v", err)
		}
		out = append(out, pkt.Type)
	}
}

func (h *harness) connect(id protocol.NetworkID) {
	h.t.Helper()
	h.client.Start()
	h.push(protocol.BuildHelo())
	h.push(protocol.BuildHskReply(id))
	h.client.Tick(0)
	if h.client.State() != StateConnected {
		h.t.Fatalf("state after handshake: %s", h.client.State())
	}
	h.received()
}

func TestHandshakeAssignsID(t *testing.T) {
	h := newHarness(t, Options{})
	h.client.Start()
	if got := h.received(); len(got) != 1 || got[0] != protocol.MsgHelo {
		t.Fatalf("start should send one Helo, got %v", got)
	}

	h.push(protocol.BuildHelo())
	h.client.Tick(0)
	if h.client.State() != StateConnecting {
		t.Fatalf("state after Helo: %s", h.client.State())
	}

	h.client.Tick(tick)
	if got := h.received(); len(got) != 1 || got[0] != protocol.MsgHsk {
		t.Fatalf("connecting timer should send Hsk, got %v", got)
	}

	h.push(protocol.BuildHskReply(42))
	h.client.Tick(0)
	if h.client.State() != StateConnected {
		t.Fatalf("state after Hsk: %s", h.client.State())
	}
	if id, ok := h.client.ID(); !ok || id != 42 {
		t.Fatalf("id: %d %v", id, ok)
	}
}

func TestNotConnectedRetriesHelo(t *testing.T) {
	h := newHarness(t, Options{})
	h.client.Start()
	h.client.Tick(50 * time.Millisecond)
	h.client.Tick(50 * time.Millisecond)
	if got := h.received(); len(got) != 1 {
		t.Fatalf("100ms is not past the window, got %v", got)
	}
	h.client.Tick(time.Millisecond)
	if got := h.received(); len(got) != 1 || got[0] != protocol.MsgHelo {
		t.Fatalf("expected Helo retry, got %v", got)
	}
}

func TestShortHandshakeDropped(t *testing.T) {
	h := newHarness(t, Options{})
	h.client.Start()
	h.push(protocol.BuildHelo())
	h.push([]byte{protocol.EncodeHeader(protocol.MsgHsk, protocol.DataNone), 1, 2})
	h.client.Tick(0)
	if h.client.State() != StateConnecting {
		t.Fatalf("short Hsk should be dropped, state %s", h.client.State())
	}
	if _, ok := h.client.ID(); ok {
		t.Fatalf("id assigned from short Hsk")
	}
}

func TestSilenceEndsInDisconnect(t *testing.T) {
	h := newHarness(t, Options{})
	h.connect(42)

	h.client.Tick(tick)
	if h.client.State() != StateSpurious {
		t.Fatalf("state after silence: %s", h.client.State())
	}

	pings := 0
	for i := 0; i < 10 && h.client.State() == StateSpurious; i++ {
		h.client.Tick(tick)
		for _, mt := range h.received() {
			if mt == protocol.MsgPing {
				pings++
			} else {
				t.Fatalf("unexpected %s while spurious", mt)
			}
		}
	}
	if pings != 3 {
		t.Fatalf("pings: %d", pings)
	}
	if h.client.State() != StateNotConnected {
		t.Fatalf("final state: %s", h.client.State())
	}
	if _, ok := h.client.ID(); ok {
		t.Fatalf("id should be cleared")
	}
}

func TestByeOnTimeoutWhenEnabled(t *testing.T) {
	h := newHarness(t, Options{SendByeOnTimeout: true})
	h.connect(9)
	for i := 0; i < 5; i++ {
		h.client.Tick(tick)
	}
	var sawBye bool
	for _, mt := range h.received() {
		if mt == protocol.MsgBye {
			sawBye = true
		}
	}
	if !sawBye || h.client.State() != StateNotConnected {
		t.Fatalf("bye=%v state=%s", sawBye, h.client.State())
	}
}

func TestPingRecoversFromSpurious(t *testing.T) {
	h := newHarness(t, Options{})
	h.connect(42)
	h.client.Tick(tick)
	h.client.Tick(tick)
	if h.client.State() != StateSpurious {
		t.Fatalf("state: %s", h.client.State())
	}

	h.push(protocol.BuildPing())
	h.client.Tick(0)
	if h.client.State() != StateConnected {
		t.Fatalf("ping should recover, state %s", h.client.State())
	}
	if h.client.retries != 0 {
		t.Fatalf("retries not reset: %d", h.client.retries)
	}
}

func TestReplicationSpawnsThenUpdates(t *testing.T) {
	h := newHarness(t, Options{})
	h.connect(42)

	h.push(protocol.BuildReplication(protocol.EntityState{ID: 7, TypeID: 0, X: 1, Y: 2}, nil))
	h.client.Tick(0)
	if h.client.EntityCount() != 1 {
		t.Fatalf("entities: %d", h.client.EntityCount())
	}
	m, ok := h.client.Entity(7)
	if !ok {
		t.Fatalf("entity 7 missing")
	}
	if x, y := m.Entity.Position(); x != 1 || y != 2 {
		t.Fatalf("position: %v,%v", x, y)
	}
	first := m.Entity

	avatar := &replication.Avatar{Facing: 1.5}
	h.push(protocol.BuildReplication(protocol.EntityState{ID: 7, TypeID: 0, X: 3, Y: 4, Owner: 42, HasOwner: true}, avatar.Serialize()))
	h.client.Tick(0)
	if h.client.EntityCount() != 1 {
		t.Fatalf("second frame spawned: %d", h.client.EntityCount())
	}
	m, _ = h.client.Entity(7)
	if m.Entity != first {
		t.Fatalf("entity replaced instead of updated")
	}
	if x, y := m.Entity.Position(); x != 3 || y != 4 {
		t.Fatalf("position: %v,%v", x, y)
	}
	if got := m.Entity.(*replication.Avatar).Facing; got != 1.5 {
		t.Fatalf("facing: %v", got)
	}
	if owned := h.client.OwnedEntities(); len(owned) != 1 || owned[0] != 7 {
		t.Fatalf("owned: %v", owned)
	}
}

func TestUnknownTypeDropped(t *testing.T) {
	h := newHarness(t, Options{})
	h.connect(42)
	h.push(protocol.BuildReplication(protocol.EntityState{ID: 7, TypeID: 99}, nil))
	h.client.Tick(0)
	if h.client.EntityCount() != 0 {
		t.Fatalf("unknown type spawned")
	}
}

func TestDespawnAndBye(t *testing.T) {
	h := newHarness(t, Options{})
	h.connect(42)
	h.push(protocol.BuildReplication(protocol.EntityState{ID: 7, TypeID: 1, X: 1, Y: 2}, nil))
	h.push(protocol.BuildReplication(protocol.EntityState{ID: 8, TypeID: 1}, nil))
	h.client.Tick(0)

	body, _ := h.client.Entity(7)
	h.push(protocol.BuildDespawn(7))
	h.push(protocol.BuildDespawn(1234))
	h.client.Tick(0)
	if h.client.EntityCount() != 1 {
		t.Fatalf("entities after despawn: %d", h.client.EntityCount())
	}
	if !body.Entity.(*replication.Body).Destroyed {
		t.Fatalf("despawned entity not destroyed")
	}

	h.push(protocol.BuildBye(42))
	h.client.Tick(0)
	if h.client.State() != StateNotConnected || h.client.EntityCount() != 0 {
		t.Fatalf("bye teardown: state=%s entities=%d", h.client.State(), h.client.EntityCount())
	}
	for _, mt := range h.received() {
		if mt == protocol.MsgBye {
			t.Fatalf("client must not echo Bye")
		}
	}
}

func TestDataIgnoredBeforeHandshake(t *testing.T) {
	h := newHarness(t, Options{})
	h.client.Start()
	h.push(protocol.BuildReplication(protocol.EntityState{ID: 7}, nil))
	h.client.Tick(0)
	if h.client.EntityCount() != 0 {
		t.Fatalf("replication applied while not connected")
	}
}

func TestMalformedDatagramCounted(t *testing.T) {
	h := newHarness(t, Options{})
	h.push([]byte{0xFF})
	h.push(nil)
	h.client.Tick(0)
	if got := h.client.Stats().Malformed; got != 2 {
		t.Fatalf("malformed: %d", got)
	}
}

func TestSendMoveRequiresID(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.client.SendMove(1, 0, 0); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	h.connect(5)
	if err := h.client.SendMove(5, 1, 1); err != nil {
		t.Fatalf("send move: %v", err)
	}
	if got := h.received(); len(got) != 1 || got[0] != protocol.MsgData {
		t.Fatalf("expected Data frame, got %v", got)
	}
}

func TestStateChangeEvents(t *testing.T) {
	h := newHarness(t, Options{})
	bus := events.NewEventBus()
	var mu sync.Mutex
	var seen []string
	bus.Subscribe(events.EventConnectionStateChanged, "recorder", func(ctx context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Payload.(events.ConnectionStatePayload).To)
		return nil
	})
	h.client.SetEventBus(bus)

	h.connect(42)
	bus.Drain()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("events: %v", seen)
	}
}

type recordingDisplay struct{ states []ConnectionState }

func (d *recordingDisplay) ShowState(s ConnectionState, _ protocol.NetworkID) {
	d.states = append(d.states, s)
}

func TestDisplayRefreshedOnTransition(t *testing.T) {
	h := newHarness(t, Options{})
	d := &recordingDisplay{}
	h.client.SetDisplay(d)
	h.connect(1)
	h.client.Disconnect()
	want := []ConnectionState{StateConnecting, StateConnected, StateNotConnected}
	if len(d.states) != len(want) {
		t.Fatalf("states: %v", d.states)
	}
	for i := range want {
		if d.states[i] != want[i] {
			t.Fatalf("states: %v", d.states)
		}
	}
}
