// Package game is the simulation side of the server. A single goroutine owns
// every player and advances the world one tick at a time; the network layer
// talks to it through Client handles and commands staged with Submit.
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rune-Status/aj8/internal/db"
	"github.com/Rune-Status/aj8/internal/events"
	"github.com/Rune-Status/aj8/internal/login"
	"github.com/Rune-Status/aj8/internal/message"
	"github.com/Rune-Status/aj8/internal/scheduler"
)

var (
	ErrWorldStopped  = errors.New("world is not running")
	ErrPlayerOffline = errors.New("player is not online")
)

// PlayerStore loads and saves characters. db.PlayerStore implements it.
type PlayerStore interface {
	Load(ctx context.Context, username, password string) (*db.PlayerRecord, error)
	Save(ctx context.Context, rec *db.PlayerRecord) error
}

// Publisher receives world events. events.EventBus implements it.
type Publisher interface {
	Emit(ctx context.Context, event events.Event)
}

// Options tune the world.
type Options struct {
	Name             string
	TickInterval     time.Duration
	Capacity         int
	MessagesPerPulse int
	// AutosaveTicks is the interval between saves of every online player;
	// 0 disables autosave.
	AutosaveTicks int
	Traversal     TraversalMap
	SaveTimeout   time.Duration
	// OnSystemUpdate is called on the tick goroutine once a system update
	// countdown has elapsed and every player has been logged out.
	OnSystemUpdate func()
}

func (o *Options) applyDefaults() {
	if o.Name == "" {
		o.Name = "aj8"
	}
	if o.TickInterval <= 0 {
		o.TickInterval = 600 * time.Millisecond
	}
	if o.Capacity <= 0 {
		o.Capacity = 2000
	}
	if o.MessagesPerPulse <= 0 {
		o.MessagesPerPulse = 10
	}
	if o.Traversal == nil {
		o.Traversal = OpenTraversalMap{}
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = 10 * time.Second
	}
}

// World owns the players and the task scheduler. Everything except Submit,
// Login, the operator helpers and Snapshot runs on the tick goroutine.
type World struct {
	opts      Options
	store     PlayerStore
	publisher Publisher
	logger    zerolog.Logger

	scheduler *scheduler.Scheduler
	handlers  map[message.Type]Handler
	commands  map[string]Command

	players *Repository[*Player]
	online  map[string]*Player

	tick      uint64
	startedAt time.Time
	update    *systemUpdate

	mu      sync.Mutex
	queue   []func(*World)
	stopped bool

	state    atomic.Int32
	snapshot atomic.Pointer[Snapshot]
	saves    sync.WaitGroup
	done     chan struct{}
}

// NewWorld creates a world that has not started ticking yet.
func NewWorld(opts Options, store PlayerStore, publisher Publisher) *World {
	opts.applyDefaults()
	w := &World{
		opts:      opts,
		store:     store,
		publisher: publisher,
		logger:    log.With().Str("component", "world").Logger(),
		scheduler: scheduler.NewScheduler(),
		handlers:  defaultHandlers(),
		commands:  defaultCommands(),
		players:   NewRepository[*Player](opts.Capacity),
		online:    make(map[string]*Player),
		done:      make(chan struct{}),
	}
	w.state.Store(int32(events.WorldStateStarting))
	w.publish(0)
	return w
}

// Scheduler returns the task scheduler pulsed by the world.
func (w *World) Scheduler() *scheduler.Scheduler { return w.scheduler }

// State returns the lifecycle state of the tick loop.
func (w *World) State() events.WorldState {
	return events.WorldState(w.state.Load())
}

// Snapshot returns the state published by the last tick.
func (w *World) Snapshot() *Snapshot {
	return w.snapshot.Load()
}

// Done is closed once the world has shut down and every save finished.
func (w *World) Done() <-chan struct{} {
	return w.done
}

// Submit stages fn to run on the tick goroutine at the start of the next
// tick. It returns false once the world is shutting down.
func (w *World) Submit(fn func(*World)) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	w.queue = append(w.queue, fn)
	return true
}

// Run ticks the world until ctx is cancelled, then logs everyone out and
// waits for their saves.
func (w *World) Run(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(events.WorldStateStarting), int32(events.WorldStateRunning)) {
		return fmt.Errorf("world cannot start from state %s", w.State())
	}
	w.startedAt = time.Now()
	w.scheduleAutosave()

	ticker := time.NewTicker(w.opts.TickInterval)
	defer ticker.Stop()

	w.logger.Info().
		Dur("tick", w.opts.TickInterval).
		Int("capacity", w.opts.Capacity).
		Msg("world started")

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return nil
		case <-ticker.C:
			w.Pulse()
		}
	}
}

// Pulse advances the world by one tick.
func (w *World) Pulse() {
	start := time.Now()
	w.tick++

	w.runCommands()
	w.processPlayers()
	w.scheduler.Pulse()
	w.movePlayers()
	w.synchronize()

	elapsed := time.Since(start)
	w.publish(elapsed)

	if elapsed > w.opts.TickInterval {
		w.logger.Warn().
			Uint64("tick", w.tick).
			Dur("duration", elapsed).
			Int("players", w.players.Size()).
			Msg("tick overran its interval")
		w.emit(events.EventTickOverrun, events.TickOverrunPayload{
			Tick:     w.tick,
			Duration: elapsed,
			Budget:   w.opts.TickInterval,
			Players:  w.players.Size(),
		})
	}
}

func (w *World) runCommands() {
	w.mu.Lock()
	queue := w.queue
	w.queue = nil
	w.mu.Unlock()

	for _, fn := range queue {
		fn(w)
	}
}

func (w *World) processPlayers() {
	w.players.Each(func(p *Player) {
		if p.client.Closed() {
			w.logout(p, "connection closed")
			return
		}
		if p.logoutRequested {
			w.logout(p, "logout requested")
			return
		}
		for i := 0; i < w.opts.MessagesPerPulse; i++ {
			m, ok := p.client.Poll()
			if !ok {
				break
			}
			w.handle(p, m)
		}
	})
}

func (w *World) handle(p *Player, m message.Message) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("message", m.Type().String()).
				Interface("panic", r).
				Msg("message handler panicked, disconnecting")
			p.client.Close("handler failure")
		}
	}()

	h, ok := w.handlers[m.Type()]
	if !ok {
		p.logger.Debug().Str("message", m.Type().String()).Msg("no handler for message")
		return
	}
	h(w, p, m)
}

func (w *World) movePlayers() {
	w.players.Each(func(p *Player) {
		p.position, p.firstDirection, p.secondDirection = p.walking.Pulse()
	})
}

func (w *World) synchronize() {
	w.players.Each(func(p *Player) {
		if p.regionUpdateRequired() {
			p.lastKnownRegion = p.position
			p.hasRegion = true
			p.regionChanged = true
			p.Send(message.RegionChangeMessage{Position: p.position})
		}
		p.Send(message.PlayerSynchronizationMessage{
			LastKnownRegion: p.lastKnownRegion,
			Position:        p.position,
			Teleporting:     p.teleporting,
			RegionChanged:   p.regionChanged,
			FirstDirection:  p.firstDirection,
			SecondDirection: p.secondDirection,
		})
	})
	w.players.Each((*Player).resetMovementFlags)
}

func (w *World) publish(tickTime time.Duration) {
	s := &Snapshot{
		State:     w.State(),
		Tick:      w.tick,
		Capacity:  w.players.Capacity(),
		Players:   make([]PlayerInfo, 0, w.players.Size()),
		TickTime:  tickTime,
		Scheduler: w.scheduler.Stats(),
		StartedAt: w.startedAt,
		TakenAt:   time.Now(),
	}
	if w.update != nil {
		s.UpdateRemaining = w.update.remaining(w.tick)
	}
	w.players.Each(func(p *Player) {
		s.Players = append(s.Players, p.info())
	})
	w.snapshot.Store(s)
}

// Login verifies a decoded login request and, when it succeeds, registers
// the player on the next tick. It blocks until the tick goroutine answered
// or ctx expires. A player registered after ctx expired is logged out again
// on the following tick once the caller closes client.
func (w *World) Login(ctx context.Context, req *login.Request, client Client) login.Response {
	switch w.State() {
	case events.WorldStateUpdating:
		return w.reject(req, client, login.StatusUpdating)
	case events.WorldStateStopping, events.WorldStateStopped:
		return w.reject(req, client, login.StatusLoginServerOffline)
	}

	rec, err := w.store.Load(ctx, req.Credentials.Username, req.Credentials.Password)
	if err != nil {
		status := loginStatus(err)
		if status == login.StatusCouldNotComplete {
			w.logger.Error().Err(err).Str("player", req.Credentials.Username).Msg("failed to load player")
		}
		return w.reject(req, client, status)
	}

	reply := make(chan login.Response, 1)
	if !w.Submit(func(w *World) { reply <- w.register(rec, req, client) }) {
		return w.reject(req, client, login.StatusLoginServerOffline)
	}

	select {
	case resp := <-reply:
		return resp
	case <-w.done:
		return login.Response{Status: login.StatusLoginServerOffline}
	case <-ctx.Done():
		return login.Response{Status: login.StatusCouldNotComplete}
	}
}

func loginStatus(err error) login.Status {
	switch {
	case errors.Is(err, db.ErrInvalidCredentials),
		errors.Is(err, db.ErrPlayerNotFound),
		errors.Is(err, db.ErrInvalidUsername):
		return login.StatusInvalidCredentials
	case errors.Is(err, db.ErrAccountDisabled):
		return login.StatusAccountDisabled
	default:
		return login.StatusCouldNotComplete
	}
}

func (w *World) reject(req *login.Request, client Client, status login.Status) login.Response {
	w.logger.Info().
		Str("player", req.Credentials.Username).
		Str("remote", client.RemoteAddr()).
		Stringer("status", status).
		Msg("login rejected")
	w.emit(events.EventLoginRejected, events.LoginRejectedPayload{
		Username: req.Credentials.Username,
		Remote:   client.RemoteAddr(),
		Status:   status.String(),
	})
	return login.Response{Status: status}
}

func (w *World) register(rec *db.PlayerRecord, req *login.Request, client Client) login.Response {
	if w.State() != events.WorldStateRunning && w.State() != events.WorldStateStarting {
		return w.reject(req, client, login.StatusUpdating)
	}

	key := normalize(rec.Username)
	if existing, ok := w.online[key]; ok {
		if !req.Reconnecting || !existing.client.Closed() {
			return w.reject(req, client, login.StatusAccountOnline)
		}
		existing.attach(client)
		w.initialize(existing)
		existing.logger.Info().Str("remote", client.RemoteAddr()).Msg("player reconnected")
		return login.Response{Status: login.StatusReconnectionOK, Rights: rights(existing.privilege)}
	}

	p := newPlayer(rec, client, w.opts.Traversal)
	if !w.players.Add(p) {
		return w.reject(req, client, login.StatusServerFull)
	}
	w.online[key] = p
	w.initialize(p)

	p.logger.Info().
		Int("index", p.index).
		Str("remote", client.RemoteAddr()).
		Stringer("position", p.position).
		Msg("player logged in")
	w.emit(events.EventPlayerLogin, playerPayload(p))

	status := login.StatusOK
	if req.Reconnecting {
		status = login.StatusReconnectionOK
	}
	return login.Response{Status: status, Rights: rights(p.privilege)}
}

// Sidebar interfaces of the 317 client, by tab.
var tabInterfaces = []int{2423, 3917, 638, 3213, 1644, 5608, 1151, -1, 5065, 5715, 2449, 904, 147, 962}

func (w *World) initialize(p *Player) {
	p.Send(message.IDAssignmentMessage{Index: p.index, Members: p.members})
	p.SendMessage("Welcome to " + w.opts.Name + ".")
	for tab, id := range tabInterfaces {
		if id >= 0 {
			p.Send(message.SwitchTabInterfaceMessage{Tab: tab, InterfaceID: id})
		}
	}
	for id := 0; id < SkillCount; id++ {
		p.SendSkill(id)
	}
}

func rights(privilege int) int {
	return min(max(privilege, db.PrivilegeStandard), db.PrivilegeAdministrator)
}

func (w *World) logout(p *Player, reason string) {
	p.StopCurrentAction()
	p.walking.Clear()
	if !p.client.Closed() {
		p.Send(message.LogoutMessage{})
		p.client.Close(reason)
	}

	payload := playerPayload(p)
	rec := p.Record()
	w.players.Remove(p)
	delete(w.online, normalize(p.username))
	w.save(rec)

	p.logger.Info().Str("reason", reason).Msg("player logged out")
	w.emit(events.EventPlayerLogout, payload)
}

func (w *World) save(rec *db.PlayerRecord) {
	w.saves.Add(1)
	go func() {
		defer w.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), w.opts.SaveTimeout)
		defer cancel()
		if err := w.store.Save(ctx, rec); err != nil {
			w.logger.Error().Err(err).Str("player", rec.Username).Msg("failed to save player")
		}
	}()
}

// WaitForSaves blocks until every pending save has finished.
func (w *World) WaitForSaves() {
	w.saves.Wait()
}

func (w *World) shutdown() {
	w.state.Store(int32(events.WorldStateStopping))

	w.mu.Lock()
	w.stopped = true
	dropped := len(w.queue)
	w.queue = nil
	w.mu.Unlock()

	online := w.players.Size()
	w.players.Each(func(p *Player) {
		w.logout(p, "server shutting down")
	})
	w.scheduler.StopAll()
	w.saves.Wait()

	w.state.Store(int32(events.WorldStateStopped))
	w.publish(0)
	close(w.done)

	w.logger.Info().
		Int("players", online).
		Int("dropped_commands", dropped).
		Uint64("ticks", w.tick).
		Msg("world stopped")
}

func (w *World) emit(eventType events.EventType, payload any) {
	if w.publisher == nil {
		return
	}
	w.publisher.Emit(context.Background(), events.New(eventType, "world", payload))
}

func playerPayload(p *Player) events.PlayerPayload {
	return events.PlayerPayload{
		Username:  p.username,
		Index:     p.index,
		Remote:    p.client.RemoteAddr(),
		Privilege: p.privilege,
		X:         p.position.X,
		Y:         p.position.Y,
		Height:    p.position.Height,
	}
}

func normalize(username string) string {
	return db.NormalizeUsername(username)
}

// Kick logs a player out on the next tick.
func (w *World) Kick(ctx context.Context, username string) error {
	return w.call(ctx, func(w *World) error {
		p, ok := w.online[normalize(username)]
		if !ok {
			return ErrPlayerOffline
		}
		payload := playerPayload(p)
		w.logout(p, "kicked")
		w.emit(events.EventPlayerKicked, payload)
		return nil
	})
}

// Broadcast sends text to every player's chat box.
func (w *World) Broadcast(text string) error {
	if !w.Submit(func(w *World) {
		w.players.Each(func(p *Player) { p.SendMessage(text) })
		w.emit(events.EventBroadcast, events.BroadcastPayload{Text: text})
	}) {
		return ErrWorldStopped
	}
	return nil
}

// call runs fn on the tick goroutine and waits for its result.
func (w *World) call(ctx context.Context, fn func(*World) error) error {
	result := make(chan error, 1)
	if !w.Submit(func(w *World) { result <- fn(w) }) {
		return ErrWorldStopped
	}
	select {
	case err := <-result:
		return err
	case <-w.done:
		return ErrWorldStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
