// Package cli implements the interactive operator console for a running
// sync server.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/netsync/internal/config"
	"github.com/energizer-project/netsync/internal/db"
	"github.com/energizer-project/netsync/internal/events"
	"github.com/energizer-project/netsync/internal/protocol"
	"github.com/energizer-project/netsync/internal/server"
	"github.com/energizer-project/netsync/internal/util"
)

// Monitor is the view of the sync server the console needs.
type Monitor interface {
	Snapshot() server.Snapshot
	RequestKick(id protocol.NetworkID) error
}

// History lists sessions from the audit log.
type History interface {
	Recent(ctx context.Context, limit int) ([]db.SessionRecord, error)
}

var errQuit = errors.New("quit")

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	monitor  Monitor
	history  History

	in  io.Reader
	out io.Writer
}

// NewCLI creates a console on stdin and stdout.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, monitor Monitor) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		monitor:  monitor,
		in:       os.Stdin,
		out:      os.Stdout,
	}
}

// SetHistory enables the history command.
func (c *CLI) SetHistory(h History) {
	c.history = h
}

// SetIO replaces the console input and output.
func (c *CLI) SetIO(in io.Reader, out io.Writer) {
	c.in = in
	c.out = out
}

// Start runs the command loop until ctx is cancelled, input ends or the
// operator quits.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nnetsync console ready. Type 'help' for available commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, "netsync> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			parts := strings.Fields(line)
			if len(parts) == 0 {
				continue
			}
			err := c.execute(ctx, strings.ToLower(parts[0]), parts[1:])
			if errors.Is(err, errQuit) {
				return
			}
			if err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
		}
	}
}

func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "sessions":
		c.printSessions()
	case "entities":
		c.printEntities()
	case "kick":
		return c.cmdKick(ctx, args)
	case "history":
		return c.cmdHistory(ctx, args)
	case "loglevel":
		return c.cmdLogLevel(args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down netsync...")
		c.eventBus.Emit(ctx, events.New(events.EventShutdown, "cli", nil))
		return errQuit
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, `
  status             Show server address, population and counters
  sessions           List connected sessions
  entities           List replicated entities
  kick <id>          Disconnect a session
  history [n]        Show the last n sessions from the audit log
  loglevel <level>   Change the log level
  quit               Shut down netsync
  help               Show this help message`)
}

func (c *CLI) printStatus() {
	snap := c.monitor.Snapshot()
	st := snap.Stats

	fmt.Fprintf(c.out, "\n  Address:      %s\n", snap.Addr)
	fmt.Fprintf(c.out, "  Sessions:     %d\n", len(snap.Sessions))
	fmt.Fprintf(c.out, "  Entities:     %d\n", len(snap.Entities))
	fmt.Fprintf(c.out, "  Packets:      %d in / %d out (%d malformed)\n", st.PacketsIn, st.PacketsOut, st.Malformed)
	fmt.Fprintf(c.out, "  Replication:  %d frames\n", st.ReplicationFrames)
	fmt.Fprintf(c.out, "  RPCs:         %d applied / %d ignored\n", st.RPCsApplied, st.RPCsIgnored)
	fmt.Fprintf(c.out, "  Ticks:        %d (%d long, max %s)\n", snap.Ticks.Count, snap.Ticks.LongTicks, snap.Ticks.Max)
	fmt.Fprintln(c.out)
}

func (c *CLI) printSessions() {
	snap := c.monitor.Snapshot()
	if len(snap.Sessions) == 0 {
		fmt.Fprintln(c.out, "No sessions")
		return
	}

	tw := c.table([]string{"Net ID", "Address", "Connected", "Entities"})
	for _, s := range snap.Sessions {
		tw.Append([]string{
			strconv.FormatUint(uint64(s.ID), 10),
			s.Addr,
			time.Since(s.CreatedAt).Truncate(time.Second).String(),
			joinIDs(s.Owned),
		})
	}
	tw.Render()
}

func (c *CLI) printEntities() {
	snap := c.monitor.Snapshot()
	if len(snap.Entities) == 0 {
		fmt.Fprintln(c.out, "No entities")
		return
	}

	tw := c.table([]string{"Net ID", "Type", "Owner", "X", "Y"})
	for _, e := range snap.Entities {
		tw.Append([]string{
			strconv.FormatUint(uint64(e.ID), 10),
			strconv.FormatUint(uint64(e.TypeID), 10),
			strconv.FormatUint(uint64(e.Owner), 10),
			fmt.Sprintf("%.2f", e.X),
			fmt.Sprintf("%.2f", e.Y),
		})
	}
	tw.Render()
}

func (c *CLI) cmdKick(ctx context.Context, args []string) error {
	id, err := parseIDArg(args)
	if err != nil {
		return err
	}

	info, ok := c.monitor.Snapshot().Session(id)
	if !ok {
		return fmt.Errorf("no session with id %d", id)
	}
	if err := c.monitor.RequestKick(id); err != nil {
		return err
	}

	c.eventBus.Emit(ctx, events.New(events.EventKickRequested, "cli", events.SessionPayload{
		NetID:  uint32(id),
		Addr:   info.Addr,
		Reason: events.ReasonKick,
	}))
	log.Info().Uint32("net_id", uint32(id)).Msg("CLI: kick requested")
	fmt.Fprintf(c.out, "Kick queued for session %d (%s)\n", id, info.Addr)
	return nil
}

func (c *CLI) cmdHistory(ctx context.Context, args []string) error {
	if c.history == nil {
		return fmt.Errorf("session history is disabled")
	}

	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		limit = n
	}

	records, err := c.history.Recent(ctx, limit)
	if err != nil {
		return err
	}

	tw := c.table([]string{"Net ID", "Address", "Opened", "Closed", "Reason"})
	for _, r := range records {
		tw.Append([]string{
			strconv.FormatUint(uint64(r.NetID), 10),
			r.Addr,
			formatTime(r.OpenedAt),
			formatTime(r.ClosedAt),
			r.Reason,
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) cmdLogLevel(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: loglevel <level>")
	}
	if err := util.SetLevel(args[0]); err != nil {
		return err
	}
	c.cfg.SetLogLevel(args[0])
	fmt.Fprintf(c.out, "Log level set to %s\n", args[0])
	return nil
}

func (c *CLI) table(header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

func parseIDArg(args []string) (protocol.NetworkID, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("session id required")
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid session id: %s", args[0])
	}
	return protocol.NetworkID(id), nil
}

func joinIDs(ids []protocol.NetworkID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
