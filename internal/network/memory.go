package network

import (
	"fmt"
	"math/rand/v2"
	"net"
	"strings"
	"sync"
	"sync/atomic"
)

// MemoryAddr addresses an endpoint on a MemoryNetwork.
type MemoryAddr string

// Network implements net.Addr.
func (a MemoryAddr) Network() string { return "mem" }

// String implements net.Addr.
func (a MemoryAddr) String() string { return string(a) }

// MemoryNetwork connects in-process transports. Delivery is in order per
// sender; datagrams can be dropped at a configurable probability to mimic
// a lossy link.
type MemoryNetwork struct {
	mu        sync.Mutex
	endpoints map[MemoryAddr]*MemoryTransport
	nextPort  int

	dropProb float64
	rng      *rand.Rand

	delivered atomic.Uint64
	lost      atomic.Uint64
}

// NewMemoryNetwork creates an empty lossless network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		endpoints: make(map[MemoryAddr]*MemoryTransport),
		nextPort:  49152,
		rng:       rand.New(rand.NewPCG(1, 2)),
	}
}

// SetDropProbability makes every later Send drop with probability p,
// drawn from a generator seeded with seed.
func (n *MemoryNetwork) SetDropProbability(p float64, seed uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropProb = p
	n.rng = rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
}

// Bind registers an endpoint. An empty address or one ending in ":0" is
// given a fresh ephemeral name.
func (n *MemoryNetwork) Bind(addr string) (*MemoryTransport, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if addr == "" || strings.HasSuffix(addr, ":0") {
		host := strings.TrimSuffix(addr, ":0")
		if host == "" {
			host = "mem"
		}
		addr = fmt.Sprintf("%s:%d", host, n.nextPort)
		n.nextPort++
	}

	a := MemoryAddr(addr)
	if _, exists := n.endpoints[a]; exists {
		return nil, fmt.Errorf("bind %s: %w", addr, ErrAddrInUse)
	}

	t := &MemoryTransport{network: n, addr: a}
	n.endpoints[a] = t
	return t, nil
}

// Stats returns delivered and lost datagram counts.
func (n *MemoryNetwork) Stats() (delivered, lost uint64) {
	return n.delivered.Load(), n.lost.Load()
}

func (n *MemoryNetwork) route(from MemoryAddr, to net.Addr, data []byte) {
	n.mu.Lock()
	dst, ok := n.endpoints[MemoryAddr(to.String())]
	drop := n.dropProb > 0 && n.rng.Float64() < n.dropProb
	n.mu.Unlock()

	if !ok || drop {
		n.lost.Add(1)
		return
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	dst.enqueue(datagram{data: buf, from: from})
	n.delivered.Add(1)
}

func (n *MemoryNetwork) unbind(a MemoryAddr) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.endpoints, a)
}

// MemoryTransport is one endpoint on a MemoryNetwork.
type MemoryTransport struct {
	network *MemoryNetwork
	addr    MemoryAddr

	mu     sync.Mutex
	queue  []datagram
	closed bool
}

func (t *MemoryTransport) enqueue(d datagram) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || len(t.queue) >= InboxSize {
		return
	}
	t.queue = append(t.queue, d)
}

// Poll returns the oldest queued datagram, if any.
func (t *MemoryTransport) Poll(buf []byte) (int, net.Addr, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return 0, nil, false
	}
	d := t.queue[0]
	t.queue = t.queue[1:]
	return copy(buf, d.data), d.from, true
}

// Send routes data to addr. Unknown destinations lose the datagram
// silently, as UDP would.
func (t *MemoryTransport) Send(addr net.Addr, data []byte) (int, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	t.network.route(t.addr, addr, data)
	return len(data), nil
}

// LocalAddr returns the endpoint address.
func (t *MemoryTransport) LocalAddr() net.Addr {
	return t.addr
}

// Pending returns the number of queued datagrams.
func (t *MemoryTransport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Close unbinds the endpoint and discards queued datagrams.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.queue = nil
	t.mu.Unlock()

	t.network.unbind(t.addr)
	return nil
}
