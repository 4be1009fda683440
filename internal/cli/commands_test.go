package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/energizer-project/netsync/internal/config"
	"github.com/energizer-project/netsync/internal/db"
	"github.com/energizer-project/netsync/internal/events"
	"github.com/energizer-project/netsync/internal/protocol"
	"github.com/energizer-project/netsync/internal/server"
	"github.com/energizer-project/netsync/internal/session"
	"github.com/energizer-project/netsync/internal/util"
)

type fakeMonitor struct {
	snap  server.Snapshot
	kicks []protocol.NetworkID
}

func (f *fakeMonitor) Snapshot() server.Snapshot { return f.snap }

func (f *fakeMonitor) RequestKick(id protocol.NetworkID) error {
	f.kicks = append(f.kicks, id)
	return nil
}

type fakeHistory []db.SessionRecord

func (f fakeHistory) Recent(ctx context.Context, limit int) ([]db.SessionRecord, error) {
	if limit < len(f) {
		return f[:limit], nil
	}
	return f, nil
}

func newTestCLI(t *testing.T, bus *events.EventBus) (*CLI, *fakeMonitor, *bytes.Buffer) {
	t.Helper()
	mon := &fakeMonitor{snap: server.Snapshot{
		Addr:     "127.0.0.1:3630",
		Sessions: []session.Info{{ID: 4, Addr: "127.0.0.1:40000", CreatedAt: time.Now(), Owned: []protocol.NetworkID{5, 6}}},
		Entities: []server.EntityInfo{{ID: 5, Owner: 4, X: 1.25, Y: -2}},
		Stats:    server.Stats{PacketsIn: 10, PacketsOut: 20},
	}}
	out := &bytes.Buffer{}
	c := NewCLI(config.DefaultConfig(), bus, mon)
	c.SetIO(strings.NewReader(""), out)
	return c, mon, out
}

func TestStatusAndTables(t *testing.T) {
	c, _, out := newTestCLI(t, nil)
	ctx := context.Background()

	for _, cmd := range []string{"status", "sessions", "entities"} {
		if err := c.execute(ctx, cmd, nil); err != nil {
			t.Fatalf("%s: %v", cmd, err)
		}
	}

	text := out.String()
	for _, want := range []string{"127.0.0.1:3630", "10 in / 20 out", "127.0.0.1:40000", "5,6", "1.25", "-2.00"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestKick(t *testing.T) {
	c, mon, out := newTestCLI(t, nil)
	ctx := context.Background()

	if err := c.execute(ctx, "kick", []string{"4"}); err != nil {
		t.Fatalf("kick: %v", err)
	}
	if len(mon.kicks) != 1 || mon.kicks[0] != 4 {
		t.Fatalf("kicks: %v", mon.kicks)
	}
	if !strings.Contains(out.String(), "Kick queued for session 4") {
		t.Fatalf("output: %s", out.String())
	}

	if err := c.execute(ctx, "kick", []string{"9"}); err == nil {
		t.Fatalf("expected error for unknown session")
	}
	if err := c.execute(ctx, "kick", nil); err == nil {
		t.Fatalf("expected error without id")
	}
	if err := c.execute(ctx, "kick", []string{"x"}); err == nil {
		t.Fatalf("expected error for bad id")
	}
}

func TestHistory(t *testing.T) {
	c, _, out := newTestCLI(t, nil)
	ctx := context.Background()

	if err := c.execute(ctx, "history", nil); err == nil {
		t.Fatalf("expected error when history is disabled")
	}

	opened := time.Now()
	c.SetHistory(fakeHistory{
		{NetID: 1, Addr: "a:1", OpenedAt: &opened, Reason: "bye"},
		{NetID: 2, Addr: "b:2", OpenedAt: &opened},
	})
	if err := c.execute(ctx, "history", []string{"1"}); err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out.String(), "a:1") || strings.Contains(out.String(), "b:2") {
		t.Fatalf("output: %s", out.String())
	}
	if err := c.execute(ctx, "history", []string{"0"}); err == nil {
		t.Fatalf("expected error for bad count")
	}
}

func TestLogLevel(t *testing.T) {
	t.Cleanup(func() { util.SetLevel("debug") })
	c, _, _ := newTestCLI(t, nil)

	if err := c.execute(context.Background(), "loglevel", []string{"error"}); err != nil {
		t.Fatalf("loglevel: %v", err)
	}
	if c.cfg.GetLogging().Level != "error" {
		t.Fatalf("config level: %s", c.cfg.GetLogging().Level)
	}
	if err := c.execute(context.Background(), "loglevel", []string{"nope"}); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestQuitEmitsShutdown(t *testing.T) {
	bus := events.NewEventBus()
	got := make(chan struct{}, 1)
	bus.Subscribe(events.EventShutdown, "test", func(ctx context.Context, e events.Event) error {
		got <- struct{}{}
		return nil
	})

	c, _, _ := newTestCLI(t, bus)
	c.SetIO(strings.NewReader("status\nquit\nstatus\n"), &bytes.Buffer{})
	c.Start(context.Background())

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatalf("shutdown event not emitted")
	}
}

func TestStartReturnsOnEOF(t *testing.T) {
	c, _, out := newTestCLI(t, nil)
	c.SetIO(strings.NewReader("bogus\n\n"), out)
	c.Start(context.Background())
	if !strings.Contains(out.String(), "Unknown command: 'bogus'") {
		t.Fatalf("output: %s", out.String())
	}
}

func TestExecuteQuitSentinel(t *testing.T) {
	c, _, _ := newTestCLI(t, nil)
	if err := c.execute(context.Background(), "quit", nil); !errors.Is(err, errQuit) {
		t.Fatalf("expected errQuit, got %v", err)
	}
}
