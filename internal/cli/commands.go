// Package cli implements the operator console read from stdin.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/Rune-Status/aj8/internal/events"
	"github.com/Rune-Status/aj8/internal/game"
	"github.com/Rune-Status/aj8/internal/health"
	"github.com/Rune-Status/aj8/internal/network"
)

// World is the part of game.World the console drives.
type World interface {
	Snapshot() *game.Snapshot
	Kick(ctx context.Context, username string) error
	Broadcast(text string) error
	SystemUpdate(ticks int) error
	SaveAll() error
}

// Sessions lists live connections. network.SessionRegistry implements it.
type Sessions interface {
	Sessions() []network.SessionInfo
}

// Lag reports aggregated tick overruns. health.LagMonitor implements it.
type Lag interface {
	Stats() health.LagStats
}

// Health reports check results. health.Manager implements it.
type Health interface {
	Results() []health.CheckResult
}

// Publisher receives the shutdown event.
type Publisher interface {
	Emit(ctx context.Context, event events.Event)
}

// Options wires the console to the running server.
type Options struct {
	World        World
	Sessions     Sessions
	Lag          Lag
	Health       Health
	Publisher    Publisher
	TickInterval time.Duration
	// Shutdown is called by quit.
	Shutdown func()
	In       io.Reader
	Out      io.Writer
}

// CLI is the interactive console.
type CLI struct {
	opts Options
	out  io.Writer
}

// NewCLI creates a console.
func NewCLI(opts Options) *CLI {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 600 * time.Millisecond
	}
	return &CLI{opts: opts, out: opts.Out}
}

// Start reads commands until ctx is cancelled or the input ends.
func (c *CLI) Start(ctx context.Context) {
	c.printf("\naj8 console ready. Type 'help' for available commands.\n")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.opts.In)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Msg("console input failed")
		}
	}()

	for {
		c.printf("aj8> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := c.Execute(ctx, line); err != nil {
				c.printf("Error: %v\n", err)
			}
		}
	}
}

// Execute runs one console line.
func (c *CLI) Execute(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		return c.printStatus()
	case "players", "p":
		return c.printPlayers()
	case "sessions":
		c.printSessions()
	case "kick":
		return c.cmdKick(ctx, args)
	case "broadcast", "say":
		return c.cmdBroadcast(args)
	case "update":
		return c.cmdUpdate(args)
	case "save":
		if err := c.opts.World.SaveAll(); err != nil {
			return err
		}
		c.printf("Saving every player.\n")
	case "lag":
		c.printLag()
	case "health":
		c.printHealth()
	case "quit", "exit", "q":
		c.printf("Shutting down aj8...\n")
		if c.opts.Publisher != nil {
			c.opts.Publisher.Emit(ctx, events.New(events.EventShutdown, "cli", nil))
		}
		if c.opts.Shutdown != nil {
			c.opts.Shutdown()
		}
	default:
		c.printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

func (c *CLI) printHelp() {
	c.printf("\nCommands:\n")
	tw := c.table([]string{"Command", "Description"})
	tw.AppendBulk([][]string{
		{"status", "World state, tick and load"},
		{"players", "Online players"},
		{"sessions", "Open connections"},
		{"kick <name>", "Log a player out"},
		{"broadcast <text>", "Message every player"},
		{"update <seconds>", "Start a system update countdown"},
		{"save", "Save every player now"},
		{"lag", "Tick overrun statistics"},
		{"health", "Health check results"},
		{"quit", "Shut the server down"},
	})
	tw.Render()
}

func (c *CLI) snapshot() (*game.Snapshot, error) {
	snap := c.opts.World.Snapshot()
	if snap == nil {
		return nil, errors.New("world has not started")
	}
	return snap, nil
}

func (c *CLI) printStatus() error {
	snap, err := c.snapshot()
	if err != nil {
		return err
	}
	tw := c.table([]string{"State", "Tick", "Players", "Uptime", "Tick Time", "Tasks"})
	tw.Append([]string{
		snap.State.String(),
		strconv.FormatUint(snap.Tick, 10),
		fmt.Sprintf("%d/%d", len(snap.Players), snap.Capacity),
		snap.Uptime().Round(time.Second).String(),
		snap.TickTime.String(),
		strconv.Itoa(snap.Scheduler.Active),
	})
	tw.Render()
	if snap.UpdateRemaining > 0 {
		c.printf("System update in %d ticks.\n", snap.UpdateRemaining)
	}
	return nil
}

func (c *CLI) printPlayers() error {
	snap, err := c.snapshot()
	if err != nil {
		return err
	}
	if len(snap.Players) == 0 {
		c.printf("No players online.\n")
		return nil
	}
	players := append([]game.PlayerInfo(nil), snap.Players...)
	sort.Slice(players, func(i, j int) bool { return players[i].Index < players[j].Index })

	tw := c.table([]string{"Index", "Username", "Rights", "Position", "Remote", "Online"})
	for _, p := range players {
		tw.Append([]string{
			strconv.Itoa(p.Index),
			p.Username,
			strconv.Itoa(p.Privilege),
			fmt.Sprintf("%d, %d, %d", p.Position.X, p.Position.Y, p.Position.Height),
			p.Remote,
			snap.TakenAt.Sub(p.JoinedAt).Round(time.Second).String(),
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) printSessions() {
	sessions := c.opts.Sessions.Sessions()
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ConnectedAt.Before(sessions[j].ConnectedAt) })

	tw := c.table([]string{"Session", "Remote", "Username", "Stage", "Connected"})
	for _, s := range sessions {
		tw.Append([]string{s.ID, s.Remote, s.Username, s.Stage, s.ConnectedAt.Format(time.RFC3339)})
	}
	tw.Render()
}

func (c *CLI) cmdKick(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: kick <name>")
	}
	name := strings.Join(args, " ")
	if err := c.opts.World.Kick(ctx, name); err != nil {
		return err
	}
	c.printf("Kicked %s\n", name)
	return nil
}

func (c *CLI) cmdBroadcast(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: broadcast <text>")
	}
	text := strings.Join(args, " ")
	if err := c.opts.World.Broadcast(text); err != nil {
		return err
	}
	c.printf("Broadcast: %s\n", text)
	return nil
}

func (c *CLI) cmdUpdate(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: update <seconds>")
	}
	seconds, err := strconv.Atoi(args[0])
	if err != nil || seconds < 1 {
		return fmt.Errorf("invalid seconds: %s", args[0])
	}
	ticks := SecondsToTicks(seconds, c.opts.TickInterval)
	if err := c.opts.World.SystemUpdate(ticks); err != nil {
		return err
	}
	c.printf("System update in %d seconds (%d ticks)\n", seconds, ticks)
	return nil
}

func (c *CLI) printLag() {
	stats := c.opts.Lag.Stats()
	tw := c.table([]string{"Total", "Last Hour", "Max", "Average", "Last"})
	last := "-"
	if !stats.LastOverrun.IsZero() {
		last = stats.LastOverrun.Format(time.RFC3339)
	}
	tw.Append([]string{
		strconv.Itoa(stats.TotalOverruns),
		strconv.Itoa(stats.OverrunsThisHour),
		stats.MaxDuration.String(),
		stats.AvgDuration.String(),
		last,
	})
	tw.Render()
}

func (c *CLI) printHealth() {
	tw := c.table([]string{"Check", "Healthy", "Message"})
	for _, r := range c.opts.Health.Results() {
		tw.Append([]string{r.Name, strconv.FormatBool(r.Healthy), r.Message})
	}
	tw.Render()
}

func (c *CLI) table(header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

func (c *CLI) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// SecondsToTicks rounds a countdown up to whole ticks.
func SecondsToTicks(seconds int, tick time.Duration) int {
	total := time.Duration(seconds) * time.Second
	return int((total + tick - 1) / tick)
}
