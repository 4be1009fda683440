package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/energizer-project/netsync/internal/api"
	console "github.com/energizer-project/netsync/internal/cli"
	"github.com/energizer-project/netsync/internal/db"
	"github.com/energizer-project/netsync/internal/events"
	"github.com/energizer-project/netsync/internal/network"
	"github.com/energizer-project/netsync/internal/scheduler"
	"github.com/energizer-project/netsync/internal/server"
	"github.com/energizer-project/netsync/internal/telemetry"
	"github.com/energizer-project/netsync/internal/util"
)

type serverFlags struct {
	addr        string
	apiAddr     string
	noAPI       bool
	interactive bool
}

func serverCmd(env *environment) *cli.Command {
	var f serverFlags
	return &cli.Command{
		Name:  "server",
		Usage: "Run the authoritative sync server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Usage: "UDP address to bind (overrides network.server_addr)", Destination: &f.addr},
			&cli.StringFlag{Name: "api-addr", Usage: "REST API listen address (overrides api.listen_addr)", Destination: &f.apiAddr},
			&cli.BoolFlag{Name: "no-api", Usage: "Disable the REST API", Destination: &f.noAPI},
			&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "Run the operator console on stdin", Destination: &f.interactive},
		},
		Action: func(c *cli.Context) error {
			fmt.Printf(Banner, AppVersion)
			return runServer(c.Context, env, f)
		},
	}
}

func runServer(ctx context.Context, env *environment, f serverFlags) error {
	cfg := env.cfg
	netCfg := cfg.GetNetwork()
	addr := netCfg.ServerAddr
	if f.addr != "" {
		addr = f.addr
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	transport, err := network.Bind(ctx, addr)
	if err != nil {
		return err
	}
	defer transport.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eventBus := events.NewEventBus()
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(context.Context, events.Event) error {
		cancel()
		return nil
	})

	srv := server.New(transport, server.Options{
		ReplicationRate: netCfg.ReplicationRateHz,
		SpawnRange:      float32(netCfg.SpawnRange),
		KickQueueSize:   netCfg.KickQueueSize,
	})
	srv.SetEventBus(eventBus)

	var sessionLog *db.SessionLog
	if dbCfg := cfg.GetDatabase(); dbCfg.Enabled {
		sessionLog, err = db.NewSessionLog(dbCfg.Path)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open session log, history disabled")
		} else {
			sessionLog.Attach(eventBus)
			defer sessionLog.Close()
		}
	}

	var wg sync.WaitGroup

	if mqttCfg := cfg.GetMQTT(); mqttCfg.Enabled {
		handler, err := telemetry.NewMQTTHandler(mqttCfg, eventBus, srv)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				log.Info().Msg("starting MQTT telemetry")
				if err := handler.Start(ctx); err != nil {
					log.Warn().Err(err).Msg("MQTT telemetry failed")
				}
			}()
		}
	}

	if apiCfg := cfg.GetAPI(); apiCfg.Enabled && !f.noAPI {
		if f.apiAddr != "" {
			cfg.API.ListenAddr = f.apiAddr
		}
		apiServer := api.NewServer(cfg, eventBus, srv)
		if sessionLog != nil {
			apiServer.SetHistory(sessionLog)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := startWithRetry(ctx, "API server", apiServer.Start, 5); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
		}()
	}

	if f.interactive {
		cliHandler := console.NewCLI(cfg, eventBus, srv)
		if sessionLog != nil {
			cliHandler.SetHistory(sessionLog)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			cliHandler.Start(ctx)
		}()
	}

	log.Info().
		Str("addr", srv.LocalAddr().String()).
		Int("tick_hz", netCfg.TickRateHz).
		Int("replication_hz", netCfg.ReplicationRateHz).
		Msg("sync server running")

	driver := scheduler.Driver{Rate: netCfg.TickRateHz}
	if err := driver.Run(ctx, srv.Tick); err != nil {
		return err
	}

	log.Info().Msg("initiating graceful shutdown...")
	srv.Shutdown()
	eventBus.Drain()
	if err := eventBus.EmitSync(context.Background(), events.New(events.EventShutdown, "main", nil)); err != nil {
		log.Warn().Err(err).Msg("shutdown observer failed")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("shutdown timed out, forcing exit")
	}
	eventBus.Stop()
	return nil
}

// startWithRetry retries startFn, which typically fails while a previous
// process still holds the port.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
