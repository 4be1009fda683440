package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PacketBuilder appends little-endian values in call order. It writes no
// length prefixes; readers must consume fields in the same order and types.
type PacketBuilder struct {
	buf bytes.Buffer
}

// NewPacketBuilder creates a new PacketBuilder.
func NewPacketBuilder() *PacketBuilder {
	return &PacketBuilder{}
}

// NewFrame creates a builder whose first byte is the given header.
func NewFrame(t MessageType, d DataType) *PacketBuilder {
	b := NewPacketBuilder()
	b.WriteUint8(EncodeHeader(t, d))
	return b
}

// Reset clears the builder for reuse.
func (b *PacketBuilder) Reset() {
	b.buf.Reset()
}

// WriteUint8 writes a single byte.
func (b *PacketBuilder) WriteUint8(v uint8) *PacketBuilder {
	b.buf.WriteByte(v)
	return b
}

// WriteUint16 writes a uint16 in little-endian order.
func (b *PacketBuilder) WriteUint16(v uint16) *PacketBuilder {
	binary.Write(&b.buf, binary.LittleEndian, v)
	return b
}

// WriteUint32 writes a uint32 in little-endian order.
func (b *PacketBuilder) WriteUint32(v uint32) *PacketBuilder {
	binary.Write(&b.buf, binary.LittleEndian, v)
	return b
}

// WriteUint64 writes a uint64 in little-endian order.
func (b *PacketBuilder) WriteUint64(v uint64) *PacketBuilder {
	binary.Write(&b.buf, binary.LittleEndian, v)
	return b
}

// WriteInt32 writes an int32 in little-endian order.
func (b *PacketBuilder) WriteInt32(v int32) *PacketBuilder {
	binary.Write(&b.buf, binary.LittleEndian, v)
	return b
}

// WriteFloat32 writes a float32 in little-endian order.
func (b *PacketBuilder) WriteFloat32(v float32) *PacketBuilder {
	binary.Write(&b.buf, binary.LittleEndian, v)
	return b
}

// WriteFloat64 writes a float64 in little-endian order.
func (b *PacketBuilder) WriteFloat64(v float64) *PacketBuilder {
	binary.Write(&b.buf, binary.LittleEndian, v)
	return b
}

// WriteID writes a NetworkID as a uint32.
func (b *PacketBuilder) WriteID(id NetworkID) *PacketBuilder {
	return b.WriteUint32(uint32(id))
}

// WriteBytes writes raw bytes.
func (b *PacketBuilder) WriteBytes(data []byte) *PacketBuilder {
	b.buf.Write(data)
	return b
}

// Build returns the constructed bytes. The slice aliases the builder until
// the next write or Reset.
func (b *PacketBuilder) Build() []byte {
	return b.buf.Bytes()
}

// Len returns the current size of the packet being built.
func (b *PacketBuilder) Len() int {
	return b.buf.Len()
}

// String returns a hex dump of the current packet for debugging.
func (b *PacketBuilder) String() string {
	data := b.buf.Bytes()
	return fmt.Sprintf("PacketBuilder[%d bytes]: %x", len(data), data)
}

// ---- Frame constructors ----

// BuildHelo creates an address-confirmation frame.
func BuildHelo() []byte {
	return NewFrame(MsgHelo, DataNone).Build()
}

// BuildHskRequest creates the client's handshake request.
func BuildHskRequest() []byte {
	return NewFrame(MsgHsk, DataNone).Build()
}

// BuildHskReply creates the server's handshake reply.
// Format: [header:1][net_id:4]
func BuildHskReply(id NetworkID) []byte {
	return NewFrame(MsgHsk, DataNone).WriteID(id).Build()
}

// BuildPing creates a keepalive frame.
func BuildPing() []byte {
	return NewFrame(MsgPing, DataNone).Build()
}

// BuildBye creates a disconnect frame carrying the client's id.
// Format: [header:1][net_id:4]
func BuildBye(id NetworkID) []byte {
	return NewFrame(MsgBye, DataNone).WriteID(id).Build()
}

// BuildMove creates a Data/Rpc position command.
// Format: [header:1][net_id:4][x:f32][y:f32]
func BuildMove(cmd MoveCommand) []byte {
	return NewFrame(MsgData, DataRpc).
		WriteID(cmd.ID).
		WriteFloat32(cmd.X).
		WriteFloat32(cmd.Y).
		Build()
}

// BuildReplication creates a Data/Replication frame. The owner field is
// written when s.HasOwner is set; extra carries capability state and is
// only meaningful after an owner field.
// Format: [header:1][net_id:4][type_id:4][x:f32][y:f32][owner:4][extra...]
func BuildReplication(s EntityState, extra []byte) []byte {
	b := NewFrame(MsgData, DataReplication).
		WriteID(s.ID).
		WriteUint32(s.TypeID).
		WriteFloat32(s.X).
		WriteFloat32(s.Y)
	if s.HasOwner {
		b.WriteID(s.Owner)
		b.WriteBytes(extra)
	}
	return b.Build()
}

// BuildDespawn creates a Data/Despawn frame.
// Format: [header:1][net_id:4]
func BuildDespawn(id NetworkID) []byte {
	return NewFrame(MsgData, DataDespawn).WriteID(id).Build()
}
