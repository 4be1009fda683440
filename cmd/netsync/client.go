package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/energizer-project/netsync/internal/client"
	"github.com/energizer-project/netsync/internal/config"
	"github.com/energizer-project/netsync/internal/network"
	"github.com/energizer-project/netsync/internal/replication"
	"github.com/energizer-project/netsync/internal/scheduler"
	"github.com/energizer-project/netsync/internal/util"
)

type clientFlags struct {
	server string
	bind   string
	bot    bool
	speed  float64
}

func clientCmd(env *environment) *cli.Command {
	f := clientFlags{speed: 5}
	return &cli.Command{
		Name:  "client",
		Usage: "Connect a headless client to a sync server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Aliases: []string{"s"}, Usage: "Server address (overrides network.server_addr)", Destination: &f.server},
			&cli.StringFlag{Name: "bind", Usage: "Local UDP address (overrides network.client_bind_addr)", Destination: &f.bind},
			&cli.BoolFlag{Name: "bot", Usage: "Wander owned entities with move RPCs", Destination: &f.bot},
			&cli.Float64Flag{Name: "speed", Usage: "Bot speed in units per second", Destination: &f.speed, Value: f.speed},
		},
		Action: func(c *cli.Context) error {
			return runClient(c.Context, env, f)
		},
	}
}

func clientOptions(cfg config.ClientConfig) client.Options {
	return client.Options{
		IdleTimeout:      cfg.IdleTimeout(),
		MaxPingRetries:   cfg.MaxPingRetries,
		SendByeOnTimeout: cfg.SendByeOnTimeout,
	}
}

func runClient(ctx context.Context, env *environment, f clientFlags) error {
	netCfg := env.cfg.GetNetwork()
	serverAddr := netCfg.ServerAddr
	if f.server != "" {
		serverAddr = f.server
	}
	bind := netCfg.ClientBindAddr
	if f.bind != "" {
		bind = f.bind
	}

	to, err := network.ResolveAddr(serverAddr)
	if err != nil {
		return err
	}
	transport, err := network.Bind(ctx, bind)
	if err != nil {
		return err
	}

	c := client.New(transport, to, replication.DefaultTypes(), clientOptions(env.cfg.GetClient()))
	c.SetDisplay(client.LogDisplay{Logger: util.ComponentLogger("display")})
	defer c.Close()

	var b *bot
	if f.bot {
		b = newBot(uint64(time.Now().UnixNano()), f.speed, 100*time.Millisecond)
	}

	log.Info().Str("server", serverAddr).Str("local", transport.LocalAddr().String()).Msg("client starting")
	c.Start()

	driver := scheduler.Driver{Rate: netCfg.TickRateHz}
	err = driver.Run(ctx, func(delta time.Duration) {
		c.Tick(delta)
		if b != nil {
			b.step(c, delta)
		}
	})

	st := c.Stats()
	log.Info().
		Uint64("packets_in", st.PacketsIn).
		Uint64("packets_out", st.PacketsOut).
		Uint64("malformed", st.Malformed).
		Uint64("timeouts", st.Timeouts).
		Msg("client stopped")
	return err
}
