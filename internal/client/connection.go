// Package client implements the client half of the netsync protocol: the
// connection state machine that performs the Helo/Hsk handshake and
// keepalive, and the replication mirror of the server's entities.
package client

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/netsync/internal/protocol"
)

// ConnectionState is the client's view of its link to the server.
type ConnectionState int

const (
	StateNotConnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateSpurious
)

var connectionStateStrings = map[ConnectionState]string{
	StateNotConnected: "NotConnected",
	StateConnecting:   "Connecting",
	StateConnected:    "Connected",
	StateSpurious:     "Spurious",
}

// String returns the state name.
func (s ConnectionState) String() string {
	if str, ok := connectionStateStrings[s]; ok {
		return str
	}
	return "Unknown"
}

// MarshalJSON serializes the state as its name.
func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ErrNotConnected is returned by operations that need an assigned id.
var ErrNotConnected = errors.New("client: not connected")

// StatusDisplay is refreshed on every state transition.
type StatusDisplay interface {
	ShowState(state ConnectionState, id protocol.NetworkID)
}

// LogDisplay renders state transitions as log lines.
type LogDisplay struct {
	Logger zerolog.Logger
}

// ShowState logs the new state.
func (d LogDisplay) ShowState(state ConnectionState, id protocol.NetworkID) {
	d.Logger.Info().
		Str("state", state.String()).
		Uint32("net_id", uint32(id)).
		Msg("connection state")
}

// Options tune the state machine timers.
type Options struct {
	// IdleTimeout is the window after which the current state's timer
	// action runs. Zero selects the default.
	IdleTimeout time.Duration `json:"idle_timeout"`
	// MaxPingRetries is the number of pings sent while Spurious before
	// the client gives up. Zero selects the default.
	MaxPingRetries int `json:"max_ping_retries"`
	// SendByeOnTimeout sends a Bye when retries are exhausted.
	SendByeOnTimeout bool `json:"send_bye_on_timeout"`
}

// DefaultOptions returns the stock timers: 100ms window, 3 pings.
func DefaultOptions() Options {
	return Options{
		IdleTimeout:    100 * time.Millisecond,
		MaxPingRetries: 3,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = d.IdleTimeout
	}
	if o.MaxPingRetries <= 0 {
		o.MaxPingRetries = d.MaxPingRetries
	}
	return o
}
