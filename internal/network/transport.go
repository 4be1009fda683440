// Package network implements the datagram transports used by the netsync
// client and server: a UDP transport with a non-blocking poll and an
// in-memory lossy network used for simulation and tests.
package network

import (
	"errors"
	"net"
)

// Transport errors.
var (
	ErrClosed    = errors.New("network: transport closed")
	ErrAddrInUse = errors.New("network: address already bound")
)

// Transport moves whole datagrams. Poll never blocks: ok is false when no
// datagram is queued. Send is best effort; a nil error does not imply
// delivery.
type Transport interface {
	Poll(buf []byte) (n int, from net.Addr, ok bool)
	Send(addr net.Addr, data []byte) (int, error)
	LocalAddr() net.Addr
	Close() error
}

// InboxSize bounds the number of datagrams queued between polls. Datagrams
// arriving on a full inbox are dropped.
const InboxSize = 1024

type datagram struct {
	data []byte
	from net.Addr
}
