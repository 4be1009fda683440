// Package protocol implements the wire format shared by the netsync client
// and server: a one-byte message header followed by a positional,
// little-endian payload. There are no length prefixes and no framing; one
// UDP datagram carries exactly one message.
package protocol

import "errors"

// NetworkID identifies a connected client or a replicated entity.
// Zero is reserved and never allocated.
type NetworkID uint32

// MaxDatagramSize is the receive buffer size used by both peers.
const MaxDatagramSize = 1500

// Fixed payload widths (bytes after the header) per message kind.
const (
	HskReplySize      = 4
	ByeSize           = 4
	DespawnSize       = 4
	MoveSize          = 12
	ReplicationSize   = 16
	ReplicationOwned  = 20
	HeaderSize        = 1
	HskReplyFrameSize = HeaderSize + HskReplySize
)

// Protocol errors. A packet that fails with any of these is dropped whole.
var (
	ErrEmptyPacket        = errors.New("protocol: empty packet")
	ErrUnknownMessageType = errors.New("protocol: unknown message type")
	ErrOutOfBounds        = errors.New("protocol: read past end of buffer")
	ErrTruncated          = errors.New("protocol: truncated payload")
)

// Packet is one decoded datagram: the header fields and the raw payload.
type Packet struct {
	Type    MessageType
	Data    DataType
	Payload []byte
}

// MoveCommand is the client-asserted position change carried in Data/Rpc.
type MoveCommand struct {
	ID NetworkID
	X  float32
	Y  float32
}

// EntityState is the authoritative entity snapshot carried in Data/Replication.
type EntityState struct {
	ID     NetworkID
	TypeID uint32
	X      float32
	Y      float32
	Owner  NetworkID

	// HasOwner is false for frames that omit the owner field.
	HasOwner bool
}
