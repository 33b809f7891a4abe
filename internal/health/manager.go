// Package health runs periodic checks on the running world and the host:
// tick liveness, memory, disk and session load. It also publishes the
// periodic server status used by telemetry and aggregates tick overruns.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rune-Status/aj8/internal/events"
	"github.com/Rune-Status/aj8/internal/game"
	"github.com/Rune-Status/aj8/internal/util"
)

// WorldView exposes the published world snapshot. game.World implements it.
type WorldView interface {
	Snapshot() *game.Snapshot
}

// SessionCounter reports live connections. network.SessionRegistry
// implements it.
type SessionCounter interface {
	Count() int
}

// Publisher receives health and status events.
type Publisher interface {
	Emit(ctx context.Context, event events.Event)
}

// Options tunes the manager.
type Options struct {
	TickInterval   time.Duration
	CheckInterval  time.Duration
	StatusInterval time.Duration
	// DataDir is the directory whose disk is watched.
	DataDir string
	// StalledTicks is how many tick intervals may pass without a snapshot
	// before the world counts as stalled.
	StalledTicks    int
	MemoryThreshold float64
	DiskThreshold   float64
}

func (o *Options) applyDefaults() {
	if o.TickInterval <= 0 {
		o.TickInterval = 600 * time.Millisecond
	}
	if o.CheckInterval <= 0 {
		o.CheckInterval = 30 * time.Second
	}
	if o.StatusInterval <= 0 {
		o.StatusInterval = 30 * time.Second
	}
	if o.DataDir == "" {
		o.DataDir = "."
	}
	if o.StalledTicks <= 0 {
		o.StalledTicks = 10
	}
	if o.MemoryThreshold <= 0 {
		o.MemoryThreshold = 90
	}
	if o.DiskThreshold <= 0 {
		o.DiskThreshold = 95
	}
}

// CheckResult is the latest outcome of one check.
type CheckResult struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Message   string    `json:"message"`
	CheckedAt time.Time `json:"checked_at"`
}

// Manager runs the health checks.
type Manager struct {
	opts      Options
	world     WorldView
	sessions  SessionCounter
	publisher Publisher
	alerts    AlertRecorder
	logger    zerolog.Logger

	memory func() (*util.MemoryUsage, error)
	disk   func(path string) (*util.DiskUsage, error)
	now    func() time.Time

	mu      sync.RWMutex
	results map[string]CheckResult
}

// NewManager creates a health manager. alerts may be nil.
func NewManager(opts Options, world WorldView, sessions SessionCounter, publisher Publisher, alerts AlertRecorder) *Manager {
	opts.applyDefaults()
	return &Manager{
		opts:      opts,
		world:     world,
		sessions:  sessions,
		publisher: publisher,
		alerts:    alerts,
		logger:    log.With().Str("component", "health").Logger(),
		memory:    util.GetMemoryUsage,
		disk:      util.GetDiskUsage,
		now:       time.Now,
		results:   make(map[string]CheckResult),
	}
}

type check struct {
	name string
	fn   func(ctx context.Context) (bool, string)
}

func (m *Manager) checks() []check {
	return []check{
		{"tick_liveness", m.checkTickLiveness},
		{"memory", m.checkMemory},
		{"disk", m.checkDisk},
		{"sessions", m.checkSessions},
	}
}

// Start runs the checks and the status heartbeat until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	go m.statusLoop(ctx)

	ticker := time.NewTicker(m.opts.CheckInterval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", m.opts.CheckInterval).Msg("health manager started")
	m.RunChecks(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("health manager stopped")
			return
		case <-ticker.C:
			m.RunChecks(ctx)
		}
	}
}

// RunChecks runs every check once.
func (m *Manager) RunChecks(ctx context.Context) {
	for _, c := range m.checks() {
		healthy, message := c.fn(ctx)
		m.record(ctx, c.name, healthy, message)
	}
}

// Results returns the latest result of every check, sorted by name.
func (m *Manager) Results() []CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]CheckResult, 0, len(m.results))
	for _, r := range m.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Healthy reports whether every check passed on its last run.
func (m *Manager) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.results {
		if !r.Healthy {
			return false
		}
	}
	return true
}

// record stores a result and announces transitions. A check that starts out
// healthy is not announced.
func (m *Manager) record(ctx context.Context, name string, healthy bool, message string) {
	m.mu.Lock()
	prev, seen := m.results[name]
	m.results[name] = CheckResult{Name: name, Healthy: healthy, Message: message, CheckedAt: m.now()}
	m.mu.Unlock()

	if seen && prev.Healthy == healthy {
		return
	}
	if !seen && healthy {
		return
	}

	if healthy {
		m.logger.Info().Str("check", name).Msg("health check recovered")
	} else {
		m.logger.Warn().Str("check", name).Str("reason", message).Msg("health check failed")
		if m.alerts != nil {
			if err := m.alerts.CreateAlert(ctx, name, "warning", message); err != nil {
				m.logger.Error().Err(err).Msg("failed to record health alert")
			}
		}
	}

	if m.publisher != nil {
		m.publisher.Emit(ctx, events.New(events.EventHealthChanged, "health", events.HealthChangedPayload{
			Check:   name,
			Healthy: healthy,
			Message: message,
		}))
	}
}

func (m *Manager) checkTickLiveness(_ context.Context) (bool, string) {
	snap := m.world.Snapshot()
	if snap == nil {
		return false, "world has not published a snapshot"
	}
	switch snap.State {
	case events.WorldStateRunning, events.WorldStateUpdating:
	default:
		return true, fmt.Sprintf("world is %s", snap.State)
	}

	stalled := time.Duration(m.opts.StalledTicks) * m.opts.TickInterval
	if age := m.now().Sub(snap.TakenAt); age > stalled {
		return false, fmt.Sprintf("no tick for %s (tick %d)", age.Round(time.Millisecond), snap.Tick)
	}
	return true, fmt.Sprintf("tick %d", snap.Tick)
}

func (m *Manager) checkMemory(_ context.Context) (bool, string) {
	usage, err := m.memory()
	if err != nil {
		return false, fmt.Sprintf("failed to read memory usage: %v", err)
	}
	message := fmt.Sprintf("memory at %.1f%% (%d MB available)", usage.UsedPercent, usage.Available)
	return usage.UsedPercent < m.opts.MemoryThreshold, message
}

func (m *Manager) checkDisk(_ context.Context) (bool, string) {
	usage, err := m.disk(m.opts.DataDir)
	if err != nil {
		return false, fmt.Sprintf("failed to read disk usage: %v", err)
	}
	message := fmt.Sprintf("disk at %.1f%% (%d GB free)", usage.UsedPercent, usage.Free)
	return usage.UsedPercent < m.opts.DiskThreshold, message
}

func (m *Manager) checkSessions(_ context.Context) (bool, string) {
	snap := m.world.Snapshot()
	sessions := m.sessions.Count()
	if snap == nil {
		return true, fmt.Sprintf("%d sessions", sessions)
	}
	message := fmt.Sprintf("%d sessions, %d/%d players", sessions, len(snap.Players), snap.Capacity)
	return len(snap.Players) < snap.Capacity, message
}

func (m *Manager) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.PublishStatus(ctx)
		}
	}
}

// PublishStatus emits one server status event.
func (m *Manager) PublishStatus(ctx context.Context) {
	snap := m.world.Snapshot()
	if snap == nil || m.publisher == nil {
		return
	}
	m.publisher.Emit(ctx, events.New(events.EventServerStatus, "health", events.ServerStatusPayload{
		State:     snap.State,
		Tick:      snap.Tick,
		Players:   len(snap.Players),
		Capacity:  snap.Capacity,
		Sessions:  m.sessions.Count(),
		Uptime:    snap.Uptime(),
		TickTime:  snap.TickTime,
		Scheduled: snap.Scheduler.Active,
	}))
}
