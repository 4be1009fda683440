package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PacketReader consumes little-endian values from a byte slice, advancing
// a cursor. A read that would pass the end of the buffer returns an error
// wrapping ErrOutOfBounds and leaves the cursor untouched.
type PacketReader struct {
	buf    []byte
	cursor int
}

// NewPacketReader creates a reader positioned at the start of buf.
func NewPacketReader(buf []byte) *PacketReader {
	return &PacketReader{buf: buf}
}

func (r *PacketReader) take(size int) ([]byte, error) {
	if r.cursor+size > len(r.buf) {
		return nil, fmt.Errorf("read %d bytes at offset %d of %d: %w", size, r.cursor, len(r.buf), ErrOutOfBounds)
	}
	b := r.buf[r.cursor : r.cursor+size]
	r.cursor += size
	return b, nil
}

// ReadUint8 reads one byte.
func (r *PacketReader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 reads a little-endian uint16.
func (r *PacketReader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 reads a little-endian uint32.
func (r *PacketReader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 reads a little-endian uint64.
func (r *PacketReader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadInt32 reads a little-endian int32.
func (r *PacketReader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadFloat32 reads a little-endian IEEE 754 float32.
func (r *PacketReader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 reads a little-endian IEEE 754 float64.
func (r *PacketReader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadID reads a NetworkID.
func (r *PacketReader) ReadID() (NetworkID, error) {
	v, err := r.ReadUint32()
	return NetworkID(v), err
}

// Offset returns the cursor position.
func (r *PacketReader) Offset() int {
	return r.cursor
}

// Remaining returns the number of unread bytes.
func (r *PacketReader) Remaining() int {
	return len(r.buf) - r.cursor
}

// Rest returns the unread bytes without advancing.
func (r *PacketReader) Rest() []byte {
	return r.buf[r.cursor:]
}
