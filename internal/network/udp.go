package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/netsync/internal/protocol"
)

// UDPTransport is a bound UDP socket. A reader goroutine moves datagrams
// into a bounded inbox so that Poll can return immediately.
type UDPTransport struct {
	conn   net.PacketConn
	inbox  chan datagram
	logger zerolog.Logger

	dropped   atomic.Uint64
	closeOnce sync.Once
	done      chan struct{}
}

// Bind opens a UDP socket on addr ("127.0.0.1:0" for an ephemeral port).
// ctx bounds the bind only and the caller owns Close. An address already
// in use is an error.
func Bind(ctx context.Context, addr string) (*UDPTransport, error) {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP transport on %s: %w", addr, err)
	}

	t := &UDPTransport{
		conn:   pc,
		inbox:  make(chan datagram, InboxSize),
		done:   make(chan struct{}),
		logger: log.With().Str("component", "udp").Str("local", pc.LocalAddr().String()).Logger(),
	}

	go t.readLoop()

	t.logger.Info().Msg("UDP transport bound")
	return t, nil
}

// readLoop copies each datagram off the socket into the inbox.
func (t *UDPTransport) readLoop() {
	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		n, from, err := t.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			t.logger.Debug().Err(err).Msg("UDP read error")
			continue
		}
		if n < 1 {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case t.inbox <- datagram{data: data, from: from}:
		default:
			t.dropped.Add(1)
		}
	}
}

// Poll returns the next queued datagram, if any.
func (t *UDPTransport) Poll(buf []byte) (int, net.Addr, bool) {
	select {
	case d := <-t.inbox:
		return copy(buf, d.data), d.from, true
	default:
		return 0, nil, false
	}
}

// Send writes one datagram to addr.
func (t *UDPTransport) Send(addr net.Addr, data []byte) (int, error) {
	select {
	case <-t.done:
		return 0, ErrClosed
	default:
	}
	return t.conn.WriteTo(data, addr)
}

// LocalAddr returns the bound address.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Dropped returns the number of datagrams discarded on a full inbox.
func (t *UDPTransport) Dropped() uint64 {
	return t.dropped.Load()
}

// Close stops the reader and closes the socket.
func (t *UDPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
		t.logger.Info().Msg("UDP transport closed")
	})
	return err
}

// ResolveAddr resolves a host:port string into a UDP address.
func ResolveAddr(addr string) (net.Addr, error) {
	ua, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}
	return ua, nil
}
