package protocol

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestBuilderReaderRoundTrip(t *testing.T) {
	b := NewPacketBuilder().
		WriteUint32(0xDEADBEEF).
		WriteFloat32(1.5).
		WriteFloat32(float32(math.Inf(-1)))

	want := []byte{
		0xEF, 0xBE, 0xAD, 0xDE,
		0x00, 0x00, 0xC0, 0x3F,
		0x00, 0x00, 0x80, 0xFF,
	}
	if !bytes.Equal(b.Build(), want) {
		t.Fatalf("encoding mismatch: got=%x want=%x", b.Build(), want)
	}

	r := NewPacketReader(b.Build())
	u, err := r.ReadUint32()
	if err != nil || u != 0xDEADBEEF {
		t.Fatalf("u32: got=%x err=%v", u, err)
	}
	x, err := r.ReadFloat32()
	if err != nil || math.Float32bits(x) != math.Float32bits(1.5) {
		t.Fatalf("x: got=%v err=%v", x, err)
	}
	y, err := r.ReadFloat32()
	if err != nil || !math.IsInf(float64(y), -1) {
		t.Fatalf("y: got=%v err=%v", y, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected buffer consumed, %d left", r.Remaining())
	}
}

func TestBuilderMixedWidths(t *testing.T) {
	data := NewPacketBuilder().
		WriteUint8(7).
		WriteUint16(0x0102).
		WriteInt32(-2).
		WriteUint64(1 << 40).
		WriteFloat64(-0.25).
		Build()

	r := NewPacketReader(data)
	if v, _ := r.ReadUint8(); v != 7 {
		t.Fatalf("u8: %d", v)
	}
	if v, _ := r.ReadUint16(); v != 0x0102 {
		t.Fatalf("u16: %x", v)
	}
	if v, _ := r.ReadInt32(); v != -2 {
		t.Fatalf("i32: %d", v)
	}
	if v, _ := r.ReadUint64(); v != 1<<40 {
		t.Fatalf("u64: %d", v)
	}
	if v, _ := r.ReadFloat64(); v != -0.25 {
		t.Fatalf("f64: %v", v)
	}
}

func TestReaderOutOfBoundsIsReported(t *testing.T) {
	r := NewPacketReader([]byte{1, 2, 3})
	if _, err := r.ReadUint32(); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	if r.Offset() != 0 {
		t.Fatalf("failed read advanced cursor to %d", r.Offset())
	}
	if v, err := r.ReadUint16(); err != nil || v != 0x0201 {
		t.Fatalf("u16 after failed read: v=%x err=%v", v, err)
	}
}

func TestNewFrameWritesHeader(t *testing.T) {
	frame := NewFrame(MsgPing, DataNone).Build()
	if len(frame) != 1 || frame[0] != EncodeHeader(MsgPing, DataNone) {
		t.Fatalf("unexpected ping frame %x", frame)
	}
}
