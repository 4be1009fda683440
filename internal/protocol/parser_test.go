package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestHskReplyFrame(t *testing.T) {
	frame := BuildHskReply(42)
	if len(frame) != HskReplyFrameSize {
		t.Fatalf("hsk reply size: got=%d want=%d", len(frame), HskReplyFrameSize)
	}
	id, err := ParseHskReply(frame[1:])
	if err != nil || id != 42 {
		t.Fatalf("parse hsk reply: id=%d err=%v", id, err)
	}
}

func TestParseMove(t *testing.T) {
	frame := BuildMove(MoveCommand{ID: 9, X: -3.5, Y: 12})
	pkt, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pkt.Type != MsgData || pkt.Data != DataRpc {
		t.Fatalf("unexpected header %+v", pkt)
	}
	cmd, err := ParseMove(pkt.Payload)
	if err != nil {
		t.Fatalf("parse move: %v", err)
	}
	if cmd != (MoveCommand{ID: 9, X: -3.5, Y: 12}) {
		t.Fatalf("move mismatch: %+v", cmd)
	}
}

func TestParseReplicationWithOwnerAndExtra(t *testing.T) {
	in := EntityState{ID: 7, TypeID: 2, X: 1, Y: 2, Owner: 11, HasOwner: true}
	frame := BuildReplication(in, []byte{0xAA, 0xBB})
	if len(frame) != HeaderSize+ReplicationOwned+2 {
		t.Fatalf("frame size %d", len(frame))
	}
	out, extra, err := ParseReplication(frame[1:])
	if err != nil {
		t.Fatalf("parse replication: %v", err)
	}
	if out != in {
		t.Fatalf("state mismatch: got=%+v want=%+v", out, in)
	}
	if !bytes.Equal(extra, []byte{0xAA, 0xBB}) {
		t.Fatalf("extra mismatch: %x", extra)
	}
}

func TestParseReplicationWithoutOwner(t *testing.T) {
	frame := BuildReplication(EntityState{ID: 7, X: 1, Y: 2}, nil)
	if len(frame) != HeaderSize+ReplicationSize {
		t.Fatalf("frame size %d", len(frame))
	}
	out, extra, err := ParseReplication(frame[1:])
	if err != nil {
		t.Fatalf("parse replication: %v", err)
	}
	if out.HasOwner || extra != nil {
		t.Fatalf("unexpected owner/extra: %+v %x", out, extra)
	}
}

func TestParsersRejectShortPayloads(t *testing.T) {
	short := []byte{1, 2, 3}
	cases := []struct {
		name string
		fn   func() error
	}{
		{"hsk", func() error { _, err := ParseHskReply(short); return err }},
		{"bye", func() error { _, err := ParseBye(short); return err }},
		{"despawn", func() error { _, err := ParseDespawn(short); return err }},
		{"move", func() error { _, err := ParseMove(make([]byte, MoveSize-1)); return err }},
		{"replication", func() error { _, _, err := ParseReplication(make([]byte, ReplicationSize-1)); return err }},
	}
	for _, tc := range cases {
		err := tc.fn()
		if !errors.Is(err, ErrTruncated) || !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("%s: expected ErrTruncated wrapping ErrOutOfBounds, got %v", tc.name, err)
		}
	}
}
