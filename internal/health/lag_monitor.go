package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rune-Status/aj8/internal/events"
)

// Overruns in the trailing hour that raise a lag alert.
const (
	LagWarningThreshold  = 10
	LagCriticalThreshold = 50

	maxLagHistory = 1000
)

// AlertRecorder persists operator alerts. db.AlertStore implements it.
type AlertRecorder interface {
	CreateAlert(ctx context.Context, alertType, level, message string) error
}

// LagMonitor aggregates tick overruns reported by the world. It backs the
// /api/monitor/lag endpoint and the console lag command.
type LagMonitor struct {
	mu     sync.RWMutex
	bus    *events.EventBus
	alerts AlertRecorder

	total    int
	last     time.Time
	max      time.Duration
	sum      time.Duration
	hourly   map[int]int
	history  []Overrun
	lastSeen int

	warningThreshold  int
	criticalThreshold int
}

// Overrun is one tick that took longer than its budget.
type Overrun struct {
	Tick      uint64        `json:"tick"`
	Duration  time.Duration `json:"duration"`
	Budget    time.Duration `json:"budget"`
	Players   int           `json:"players"`
	Timestamp time.Time     `json:"timestamp"`
}

// LagStats summarises the overruns seen so far.
type LagStats struct {
	TotalOverruns    int           `json:"total_overruns"`
	OverrunsThisHour int           `json:"overruns_this_hour"`
	LastOverrun      time.Time     `json:"last_overrun"`
	MaxDuration      time.Duration `json:"max_duration"`
	AvgDuration      time.Duration `json:"avg_duration"`
	HourlyBuckets    map[int]int   `json:"hourly_buckets"`
	Recent           []Overrun     `json:"recent"`
}

// LagAlert is raised when the trailing hour crosses a threshold.
type LagAlert struct {
	Level   string `json:"level"`
	Events  int    `json:"events"`
	Message string `json:"message"`
}

// NewLagMonitor creates a lag monitor subscribed to tick overruns. alerts may
// be nil.
func NewLagMonitor(bus *events.EventBus, alerts AlertRecorder) *LagMonitor {
	lm := &LagMonitor{
		bus:               bus,
		alerts:            alerts,
		hourly:            make(map[int]int),
		history:           make([]Overrun, 0, 100),
		warningThreshold:  LagWarningThreshold,
		criticalThreshold: LagCriticalThreshold,
	}
	bus.Subscribe(events.EventTickOverrun, "lag_monitor", lm.handleOverrun)
	return lm
}

func (lm *LagMonitor) handleOverrun(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TickOverrunPayload)
	if !ok {
		return nil
	}
	lm.Record(Overrun{
		Tick:      payload.Tick,
		Duration:  payload.Duration,
		Budget:    payload.Budget,
		Players:   payload.Players,
		Timestamp: event.Timestamp,
	})
	return nil
}

// Record adds one overrun.
func (lm *LagMonitor) Record(o Overrun) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.total++
	lm.sum += o.Duration
	lm.last = o.Timestamp
	lm.max = max(lm.max, o.Duration)
	lm.hourly[o.Timestamp.Hour()]++

	lm.history = append(lm.history, o)
	if len(lm.history) > maxLagHistory {
		lm.history = lm.history[len(lm.history)-maxLagHistory:]
	}
}

// Stats returns a copy of the aggregated data as of now.
func (lm *LagMonitor) Stats() LagStats {
	return lm.statsAt(time.Now())
}

func (lm *LagMonitor) statsAt(now time.Time) LagStats {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	stats := LagStats{
		TotalOverruns:    lm.total,
		OverrunsThisHour: lm.since(now.Add(-time.Hour)),
		LastOverrun:      lm.last,
		MaxDuration:      lm.max,
		HourlyBuckets:    make(map[int]int, len(lm.hourly)),
	}
	if lm.total > 0 {
		stats.AvgDuration = lm.sum / time.Duration(lm.total)
	}
	for hour, n := range lm.hourly {
		stats.HourlyBuckets[hour] = n
	}
	recent := lm.history[max(0, len(lm.history)-20):]
	stats.Recent = append([]Overrun(nil), recent...)
	return stats
}

func (lm *LagMonitor) since(cutoff time.Time) int {
	n := 0
	for i := len(lm.history) - 1; i >= 0 && lm.history[i].Timestamp.After(cutoff); i-- {
		n++
	}
	return n
}

// CheckThresholds returns an alert when the trailing hour is over a
// threshold, nil otherwise.
func (lm *LagMonitor) CheckThresholds(now time.Time) *LagAlert {
	lm.mu.RLock()
	recent := lm.since(now.Add(-time.Hour))
	lm.mu.RUnlock()

	var level string
	switch {
	case recent >= lm.criticalThreshold:
		level = "critical"
	case recent >= lm.warningThreshold:
		level = "warning"
	default:
		return nil
	}
	return &LagAlert{
		Level:   level,
		Events:  recent,
		Message: fmt.Sprintf("%d tick overruns in the last hour", recent),
	}
}

// Start checks the thresholds every interval until ctx is cancelled.
func (lm *LagMonitor) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			lm.check(ctx, now)
		}
	}
}

func (lm *LagMonitor) check(ctx context.Context, now time.Time) {
	alert := lm.CheckThresholds(now)
	if alert == nil {
		return
	}

	lm.mu.Lock()
	total := lm.total
	repeated := total == lm.lastSeen
	lm.lastSeen = total
	lm.mu.Unlock()
	if repeated {
		return
	}

	log.Warn().
		Str("level", alert.Level).
		Int("events", alert.Events).
		Msg("lag threshold alert")

	if lm.alerts != nil {
		level := "warning"
		if alert.Level == "critical" {
			level = "error"
		}
		if err := lm.alerts.CreateAlert(ctx, "tick_lag", level, alert.Message); err != nil {
			log.Error().Err(err).Msg("failed to record lag alert")
		}
	}

	if alert.Level == "critical" {
		lm.bus.Emit(ctx, events.New(events.EventHealthChanged, "lag_monitor", events.HealthChangedPayload{
			Check:   "tick_lag",
			Healthy: false,
			Message: alert.Message,
		}))
	}
}
