package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/energizer-project/netsync/internal/client"
	"github.com/energizer-project/netsync/internal/network"
	"github.com/energizer-project/netsync/internal/replication"
	"github.com/energizer-project/netsync/internal/server"
	"github.com/energizer-project/netsync/internal/util"
)

// simOptions configure an in-process run of one server and several bots
// over a lossy memory network. Time is simulated, so a run completes as
// fast as the ticks execute.
type simOptions struct {
	Clients  int
	Duration time.Duration
	TickRate int
	Drop     float64
	Seed     uint64
	Speed    float64
	Client   client.Options
	Server   server.Options
}

type simClientResult struct {
	Addr     string
	ID       uint32
	State    client.ConnectionState
	Entities int
	Owned    int
	Moves    uint64
	Stats    client.Stats
}

type simReport struct {
	Ticks     int
	Server    server.Snapshot
	Clients   []simClientResult
	Delivered uint64
	Lost      uint64
}

func simCmd(env *environment) *cli.Command {
	opts := simOptions{Clients: 4, Duration: 10 * time.Second, Drop: 0.05, Speed: 5}
	return &cli.Command{
		Name:  "sim",
		Usage: "Simulate a server and bot clients over a lossy in-memory network",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "clients", Aliases: []string{"n"}, Usage: "Number of bot clients", Destination: &opts.Clients, Value: opts.Clients},
			&cli.DurationFlag{Name: "duration", Aliases: []string{"d"}, Usage: "Simulated time", Destination: &opts.Duration, Value: opts.Duration},
			&cli.Float64Flag{Name: "drop", Usage: "Datagram drop probability", Destination: &opts.Drop, Value: opts.Drop},
			&cli.Uint64Flag{Name: "seed", Usage: "Seed for loss, spawn positions and bots (0 = random)", Destination: &opts.Seed},
			&cli.Float64Flag{Name: "speed", Usage: "Bot speed in units per second", Destination: &opts.Speed, Value: opts.Speed},
		},
		Action: func(c *cli.Context) error {
			netCfg := env.cfg.GetNetwork()
			opts.TickRate = netCfg.TickRateHz
			opts.Client = clientOptions(env.cfg.GetClient())
			opts.Server = server.Options{
				ReplicationRate: netCfg.ReplicationRateHz,
				SpawnRange:      float32(netCfg.SpawnRange),
				KickQueueSize:   netCfg.KickQueueSize,
			}
			if opts.Seed == 0 {
				opts.Seed = uint64(time.Now().UnixNano())
			}
			report, err := runSimulation(opts)
			if err != nil {
				return err
			}
			writeReport(os.Stdout, report)
			return nil
		},
	}
}

func runSimulation(opts simOptions) (simReport, error) {
	if opts.Clients < 1 {
		return simReport{}, fmt.Errorf("sim: need at least one client")
	}
	if opts.TickRate <= 0 {
		opts.TickRate = 60
	}

	mem := network.NewMemoryNetwork()
	mem.SetDropProbability(opts.Drop, opts.Seed)

	st, err := mem.Bind("server:3630")
	if err != nil {
		return simReport{}, err
	}
	srvOpts := opts.Server
	srvOpts.Seed = opts.Seed
	srv := server.New(st, srvOpts)

	clients := make([]*client.Client, opts.Clients)
	bots := make([]*bot, opts.Clients)
	for i := range clients {
		ct, err := mem.Bind("client:0")
		if err != nil {
			return simReport{}, err
		}
		clients[i] = client.New(ct, st.LocalAddr(), replication.DefaultTypes(), opts.Client)
		bots[i] = newBot(opts.Seed+uint64(i)+1, opts.Speed, 100*time.Millisecond)
		clients[i].Start()
	}

	logger := util.ComponentLogger("sim")
	logger.Info().
		Int("clients", opts.Clients).
		Dur("duration", opts.Duration).
		Float64("drop", opts.Drop).
		Uint64("seed", opts.Seed).
		Msg("simulation starting")

	dt := time.Second / time.Duration(opts.TickRate)
	ticks := int(opts.Duration / dt)
	for i := 0; i < ticks; i++ {
		srv.Tick(dt)
		for j, c := range clients {
			c.Tick(dt)
			bots[j].step(c, dt)
		}
	}

	report := simReport{Ticks: ticks, Server: srv.Snapshot(), Clients: make([]simClientResult, len(clients))}
	for i, c := range clients {
		id, _ := c.ID()
		report.Clients[i] = simClientResult{
			Addr:     c.LocalAddr().String(),
			ID:       uint32(id),
			State:    c.State(),
			Entities: c.EntityCount(),
			Owned:    len(c.OwnedEntities()),
			Moves:    bots[i].sent,
			Stats:    c.Stats(),
		}
		c.Close()
	}
	srv.Shutdown()
	st.Close()

	report.Delivered, report.Lost = mem.Stats()
	log.Info().Int("ticks", ticks).Uint64("lost", report.Lost).Msg("simulation finished")
	return report, nil
}

func writeReport(w io.Writer, r simReport) {
	st := r.Server.Stats
	fmt.Fprintf(w, "\nSimulated %d ticks: %d sessions, %d entities on the server\n",
		r.Ticks, len(r.Server.Sessions), len(r.Server.Entities))
	fmt.Fprintf(w, "Network: %d delivered, %d lost\n", r.Delivered, r.Lost)
	fmt.Fprintf(w, "Server: %d in / %d out, %d replication frames, %d RPCs applied, %d ignored\n\n",
		st.PacketsIn, st.PacketsOut, st.ReplicationFrames, st.RPCsApplied, st.RPCsIgnored)

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Client", "Net ID", "State", "Entities", "Owned", "Moves", "In", "Out", "Timeouts"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	for _, c := range r.Clients {
		tw.Append([]string{
			c.Addr,
			strconv.FormatUint(uint64(c.ID), 10),
			c.State.String(),
			strconv.Itoa(c.Entities),
			strconv.Itoa(c.Owned),
			strconv.FormatUint(c.Moves, 10),
			strconv.FormatUint(c.Stats.PacketsIn, 10),
			strconv.FormatUint(c.Stats.PacketsOut, 10),
			strconv.FormatUint(c.Stats.Timeouts, 10),
		})
	}
	tw.Render()
}
