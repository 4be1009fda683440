package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/energizer-project/netsync/internal/client"
	"github.com/energizer-project/netsync/internal/server"
)

func TestRunSimulationLossless(t *testing.T) {
	report, err := runSimulation(simOptions{
		Clients:  3,
		Duration: 2 * time.Second,
		TickRate: 60,
		Seed:     11,
		Speed:    5,
		Server:   server.Options{ReplicationRate: 30, SpawnRange: 100},
	})
	if err != nil {
		t.Fatalf("simulation: %v", err)
	}

	if report.Ticks != 120 {
		t.Fatalf("ticks: %d", report.Ticks)
	}
	if len(report.Server.Sessions) != 3 || len(report.Server.Entities) != 3 {
		t.Fatalf("server: %d sessions, %d entities", len(report.Server.Sessions), len(report.Server.Entities))
	}
	if report.Lost != 0 {
		t.Fatalf("lossless network lost %d datagrams", report.Lost)
	}

	seen := map[uint32]bool{}
	for _, c := range report.Clients {
		if c.State != client.StateConnected {
			t.Errorf("client %s state %s", c.Addr, c.State)
		}
		if c.Entities != 3 || c.Owned != 1 {
			t.Errorf("client %s mirrors %d entities, owns %d", c.Addr, c.Entities, c.Owned)
		}
		if c.Moves == 0 {
			t.Errorf("client %s bot sent no moves", c.Addr)
		}
		if seen[c.ID] {
			t.Errorf("duplicate client id %d", c.ID)
		}
		seen[c.ID] = true
	}
	if report.Server.Stats.RPCsApplied == 0 {
		t.Fatalf("server applied no RPCs")
	}
}

func TestRunSimulationNeedsClients(t *testing.T) {
	if _, err := runSimulation(simOptions{Duration: time.Second}); err == nil {
		t.Fatalf("expected error without clients")
	}
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	writeReport(&buf, simReport{
		Ticks:   10,
		Clients: []simClientResult{{Addr: "client:49152", ID: 42, State: client.StateConnected, Entities: 2, Owned: 1}},
	})
	out := buf.String()
	for _, want := range []string{"Simulated 10 ticks", "client:49152", "42", "Connected"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
