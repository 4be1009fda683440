package protocol

import "fmt"

// MessageType occupies the high six bits of the header byte.
type MessageType uint8

const (
	MsgHelo MessageType = iota
	MsgHsk
	MsgPing
	MsgData
	MsgBye
)

var messageTypeStrings = map[MessageType]string{
	MsgHelo: "helo",
	MsgHsk:  "hsk",
	MsgPing: "ping",
	MsgData: "data",
	MsgBye:  "bye",
}

// String returns the lowercase name of the message type.
func (t MessageType) String() string {
	if s, ok := messageTypeStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("message(%d)", uint8(t))
}

// Valid reports whether t is a defined message type.
func (t MessageType) Valid() bool {
	return t <= MsgBye
}

// DataType occupies the low two bits of the header byte.
type DataType uint8

const (
	DataNone DataType = iota
	DataRpc
	DataReplication
	DataDespawn
)

var dataTypeStrings = map[DataType]string{
	DataNone:        "none",
	DataRpc:         "rpc",
	DataReplication: "replication",
	DataDespawn:     "despawn",
}

// String returns the lowercase name of the data type.
func (d DataType) String() string {
	if s, ok := dataTypeStrings[d]; ok {
		return s
	}
	return fmt.Sprintf("data(%d)", uint8(d))
}

// EncodeHeader packs a message type and data type into one byte.
func EncodeHeader(t MessageType, d DataType) byte {
	return byte(t)<<2 | byte(d)&0x3
}

// DecodeHeader unpacks a header byte. The data bits always map to a
// DataType; the message bits fail with ErrUnknownMessageType when they fall
// outside the defined range.
func DecodeHeader(b byte) (MessageType, DataType, error) {
	t := MessageType(b >> 2)
	if !t.Valid() {
		return 0, 0, fmt.Errorf("header 0x%02X: %w", b, ErrUnknownMessageType)
	}
	return t, DataType(b & 0x3), nil
}

// Decode splits a datagram into its header fields and payload.
// The payload aliases the input slice.
func Decode(datagram []byte) (Packet, error) {
	if len(datagram) < HeaderSize {
		return Packet{}, ErrEmptyPacket
	}
	t, d, err := DecodeHeader(datagram[0])
	if err != nil {
		return Packet{}, err
	}
	return Packet{Type: t, Data: d, Payload: datagram[HeaderSize:]}, nil
}
