package game

import (
	"fmt"
	"time"

	"github.com/Rune-Status/aj8/internal/events"
	"github.com/Rune-Status/aj8/internal/message"
	"github.com/Rune-Status/aj8/internal/scheduler"
)

type systemUpdate struct {
	task     *scheduler.ScheduledTask
	deadline uint64
}

func (u *systemUpdate) remaining(tick uint64) int {
	if tick >= u.deadline {
		return 0
	}
	return int(u.deadline - tick)
}

// SystemUpdate starts a countdown of ticks after which every player is
// logged out and Options.OnSystemUpdate is called. New logins are refused
// while it runs. Starting another countdown replaces the current one.
func (w *World) SystemUpdate(ticks int) error {
	if ticks <= 0 {
		return fmt.Errorf("system update countdown must be positive, got %d", ticks)
	}
	if !w.Submit(func(w *World) { w.startUpdate(ticks) }) {
		return ErrWorldStopped
	}
	return nil
}

func (w *World) startUpdate(ticks int) {
	if w.update != nil {
		w.update.task.Stop()
	}
	if !w.state.CompareAndSwap(int32(events.WorldStateRunning), int32(events.WorldStateUpdating)) {
		w.state.CompareAndSwap(int32(events.WorldStateStarting), int32(events.WorldStateUpdating))
	}

	// The task is admitted before this tick's scheduler pulse, which counts
	// as the first of its ticks.
	task := scheduler.NewTask(ticks, false, func(t *scheduler.ScheduledTask) error {
		t.Stop()
		w.completeUpdate()
		return nil
	})
	w.update = &systemUpdate{task: task, deadline: w.tick + uint64(ticks) - 1}
	w.scheduler.Schedule(task)

	w.players.Each(func(p *Player) {
		p.Send(message.SystemUpdateMessage{Time: ticks})
	})

	remaining := time.Duration(ticks) * w.opts.TickInterval
	w.logger.Warn().
		Int("ticks", ticks).
		Dur("remaining", remaining).
		Msg("system update started")
	w.emit(events.EventSystemUpdate, events.SystemUpdatePayload{Ticks: ticks, Remaining: remaining})
}

func (w *World) completeUpdate() {
	online := w.players.Size()
	w.players.Each(func(p *Player) {
		w.logout(p, "system update")
	})
	w.update = nil
	w.logger.Warn().Int("players", online).Msg("system update complete")

	if w.opts.OnSystemUpdate != nil {
		w.opts.OnSystemUpdate()
	}
}

func (w *World) scheduleAutosave() {
	if w.opts.AutosaveTicks <= 0 {
		return
	}
	w.scheduler.Schedule(scheduler.NewTask(w.opts.AutosaveTicks, false, func(*scheduler.ScheduledTask) error {
		w.saveAll()
		return nil
	}))
}

// SaveAll saves every online player on the next tick.
func (w *World) SaveAll() error {
	if !w.Submit((*World).saveAll) {
		return ErrWorldStopped
	}
	return nil
}

func (w *World) saveAll() {
	n := 0
	w.players.Each(func(p *Player) {
		w.save(p.Record())
		n++
	})
	w.logger.Debug().Int("players", n).Msg("saving players")
}
