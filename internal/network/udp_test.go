package network

import (
	"context"
	"testing"
	"time"

	"github.com/energizer-project/netsync/internal/protocol"
)

func TestUDPTransportLoopback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := Bind(ctx, "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp unavailable: %v", err)
	}
	defer server.Close()
	client, err := Bind(ctx, "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp unavailable: %v", err)
	}
	defer client.Close()

	buf := make([]byte, 64)
	if _, _, ok := server.Poll(buf); ok {
		t.Fatalf("poll on idle socket returned data")
	}

	if _, err := client.Send(server.LocalAddr(), []byte{0x08}); err != nil {
		t.Fatalf("send: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, from, ok := server.Poll(buf)
		if ok {
			if n != 1 || buf[0] != 0x08 {
				t.Fatalf("unexpected datagram %x", buf[:n])
			}
			if from.String() != client.LocalAddr().String() {
				t.Fatalf("from mismatch: %s vs %s", from, client.LocalAddr())
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("datagram never arrived")
}

func TestUDPTransportSendAfterClose(t *testing.T) {
	tr, err := Bind(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp unavailable: %v", err)
	}
	tr.Close()
	if _, err := tr.Send(tr.LocalAddr(), []byte{1}); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestUDPBindConflict(t *testing.T) {
	first, err := Bind(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp unavailable: %v", err)
	}
	defer first.Close()

	second, err := Bind(context.Background(), first.LocalAddr().String())
	if err == nil {
		second.Close()
		t.Fatalf("second bind of %s succeeded", first.LocalAddr())
	}
}

func TestUDPSendAfterContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr, err := Bind(ctx, "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp unavailable: %v", err)
	}
	defer tr.Close()
	peer, err := Bind(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp unavailable: %v", err)
	}
	defer peer.Close()

	cancel()
	time.Sleep(5 * time.Millisecond)

	bye := protocol.BuildBye(7)
	if _, err := tr.Send(peer.LocalAddr(), bye); err != nil {
		t.Fatalf("send after cancel: %v", err)
	}
	if !waitForDatagram(peer, bye) {
		t.Fatalf("peer never received the frame")
	}
}

func waitForDatagram(tr *UDPTransport, want []byte) bool {
	buf := make([]byte, 64)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _, ok := tr.Poll(buf); ok {
			return string(buf[:n]) == string(want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
