// netsync runs an authoritative UDP game-state sync server, a headless
// client, or an in-process simulation of both.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

const (
	AppName    = "netsync"
	AppVersion = "1.0.0"
	Banner     = `
             _                          
  _ __   ___| |_ ___ _   _ _ __   ___  
 | '_ \ / _ \ __/ __| | | | '_ \ / __| 
 | | | |  __/ |_\__ \ |_| | | | | (__  
 |_| |_|\___|\__|___/\__, |_| |_|\___| 
                     |___/  v%s
 UDP game-state sync engine
`
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		log.Error().Err(err).Msg("netsync failed")
		os.Exit(1)
	}
}
