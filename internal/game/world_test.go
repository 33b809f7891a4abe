package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rune-Status/aj8/internal/db"
	"github.com/Rune-Status/aj8/internal/events"
	"github.com/Rune-Status/aj8/internal/login"
	"github.com/Rune-Status/aj8/internal/message"
	"github.com/Rune-Status/aj8/internal/model"
)

var spawn = model.NewPosition(3222, 3222)

type fakeClient struct {
	mu       sync.Mutex
	id       string
	inbound  []message.Message
	sent     []message.Message
	closed   bool
	reason   string
	sendFull bool
}

func newFakeClient(id string) *fakeClient { return &fakeClient{id: id} }

func (c *fakeClient) ID() string         { return c.id }
func (c *fakeClient) RemoteAddr() string { return "10.0.0.1:" + c.id }

func (c *fakeClient) Poll() (message.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inbound) == 0 {
		return nil, false
	}
	m := c.inbound[0]
	c.inbound = c.inbound[1:]
	return m, true
}

func (c *fakeClient) Send(m message.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendFull {
		return errors.New("queue full")
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *fakeClient) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.reason = reason
	}
}

func (c *fakeClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) push(msgs ...message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbound = append(c.inbound, msgs...)
}

func (c *fakeClient) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inbound)
}

// take returns and forgets the messages sent so far.
func (c *fakeClient) take() []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	sent := c.sent
	c.sent = nil
	return sent
}

func ofType[T message.Message](msgs []message.Message) []T {
	var out []T
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func texts(msgs []message.Message) []string {
	var out []string
	for _, m := range ofType[message.ServerMessage](msgs) {
		out = append(out, m.Text)
	}
	return out
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*db.PlayerRecord
	saved   []*db.PlayerRecord
	loadErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*db.PlayerRecord)}
}

func (s *fakeStore) Load(_ context.Context, username, password string) (*db.PlayerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	key := db.NormalizeUsername(username)
	rec, ok := s.records[key]
	if !ok {
		rec = &db.PlayerRecord{Username: username, Position: spawn}
		s.records[key] = rec
	}
	copied := *rec
	return &copied, nil
}

func (s *fakeStore) Save(_ context.Context, rec *db.PlayerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, rec)
	s.records[db.NormalizeUsername(rec.Username)] = rec
	return nil
}

func (s *fakeStore) savedNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, rec := range s.saved {
		names = append(names, rec.Username)
	}
	return names
}

func (s *fakeStore) setPrivilege(username string, privilege int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[db.NormalizeUsername(username)] = &db.PlayerRecord{
		Username:  username,
		Privilege: privilege,
		Position:  spawn,
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Emit(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingPublisher) count(t events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type testWorld struct {
	*World
	store     *fakeStore
	publisher *recordingPublisher
}

func newTestWorld(t *testing.T, opts Options) *testWorld {
	t.Helper()
	store := newFakeStore()
	publisher := &recordingPublisher{}
	return &testWorld{World: NewWorld(opts, store, publisher), store: store, publisher: publisher}
}

func request(username string) *login.Request {
	return &login.Request{Credentials: login.Credentials{Username: username, Password: "secret"}}
}

func (w *testWorld) queued() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// login runs a login to completion, pulsing the world once the registration
// has been staged.
func (w *testWorld) login(t *testing.T, req *login.Request, client Client) login.Response {
	t.Helper()
	result := make(chan login.Response, 1)
	go func() { result <- w.Login(context.Background(), req, client) }()

	require.Eventually(t, func() bool { return w.queued() > 0 }, time.Second, time.Millisecond)
	w.Pulse()

	select {
	case resp := <-result:
		return resp
	case <-time.After(time.Second):
		t.Fatal("login did not complete")
		return login.Response{}
	}
}

func (w *testWorld) player(username string) *Player {
	return w.online[normalize(username)]
}

func TestLoginRegistersPlayer(t *testing.T) {
	w := newTestWorld(t, Options{Name: "Test World"})
	client := newFakeClient("a")

	resp := w.login(t, request("Mopar"), client)
	require.Equal(t, login.StatusOK, resp.Status)
	assert.Equal(t, 0, resp.Rights)

	sent := client.take()
	require.NotEmpty(t, sent)
	assert.Equal(t, message.IDAssignmentMessage{Index: 1}, sent[0])
	assert.Contains(t, texts(sent), "Welcome to Test World.")
	assert.Len(t, ofType[message.UpdateSkillMessage](sent), SkillCount)
	assert.Len(t, ofType[message.SwitchTabInterfaceMessage](sent), len(tabInterfaces)-1)

	regions := ofType[message.RegionChangeMessage](sent)
	require.Len(t, regions, 1)
	assert.Equal(t, spawn, regions[0].Position)

	syncs := ofType[message.PlayerSynchronizationMessage](sent)
	require.Len(t, syncs, 1)
	assert.True(t, syncs[0].RegionChanged)
	assert.Equal(t, spawn, syncs[0].Position)

	snap := w.Snapshot()
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "Mopar", snap.Players[0].Username)
	assert.Equal(t, uint64(1), snap.Tick)
	info, ok := snap.Player("mopar")
	require.True(t, ok)
	assert.Equal(t, 1, info.Index)

	assert.Equal(t, 1, w.publisher.count(events.EventPlayerLogin))
}

func TestSynchronizationAfterFirstTick(t *testing.T) {
	w := newTestWorld(t, Options{})
	client := newFakeClient("a")
	w.login(t, request("mopar"), client)
	client.take()

	w.Pulse()
	sent := client.take()
	assert.Empty(t, ofType[message.RegionChangeMessage](sent))
	syncs := ofType[message.PlayerSynchronizationMessage](sent)
	require.Len(t, syncs, 1)
	assert.False(t, syncs[0].RegionChanged)
	assert.False(t, syncs[0].Teleporting)
	assert.Equal(t, model.DirectionNone, syncs[0].FirstDirection)
}

func TestLoginRejections(t *testing.T) {
	t.Run("store errors", func(t *testing.T) {
		cases := []struct {
			err  error
			want login.Status
		}{
			{db.ErrInvalidCredentials, login.StatusInvalidCredentials},
			{db.ErrPlayerNotFound, login.StatusInvalidCredentials},
			{fmt.Errorf("failed to load: %w", db.ErrInvalidUsername), login.StatusInvalidCredentials},
			{db.ErrAccountDisabled, login.StatusAccountDisabled},
			{errors.New("disk on fire"), login.StatusCouldNotComplete},
		}
		for _, tc := range cases {
			w := newTestWorld(t, Options{})
			w.store.loadErr = tc.err
			resp := w.Login(context.Background(), request("mopar"), newFakeClient("a"))
			assert.Equal(t, tc.want, resp.Status, tc.err.Error())
			assert.Equal(t, 1, w.publisher.count(events.EventLoginRejected))
		}
	})

	t.Run("already online", func(t *testing.T) {
		w := newTestWorld(t, Options{})
		require.Equal(t, login.StatusOK, w.login(t, request("mopar"), newFakeClient("a")).Status)
		assert.Equal(t, login.StatusAccountOnline, w.login(t, request("MOPAR"), newFakeClient("b")).Status)
	})

	t.Run("world full", func(t *testing.T) {
		w := newTestWorld(t, Options{Capacity: 1})
		require.Equal(t, login.StatusOK, w.login(t, request("one"), newFakeClient("a")).Status)
		assert.Equal(t, login.StatusServerFull, w.login(t, request("two"), newFakeClient("b")).Status)
	})

	t.Run("updating", func(t *testing.T) {
		w := newTestWorld(t, Options{})
		require.NoError(t, w.SystemUpdate(100))
		w.Pulse()
		resp := w.Login(context.Background(), request("mopar"), newFakeClient("a"))
		assert.Equal(t, login.StatusUpdating, resp.Status)
	})
}

func TestReconnectionTakesOverClosedSession(t *testing.T) {
	w := newTestWorld(t, Options{})
	old := newFakeClient("a")
	require.Equal(t, login.StatusOK, w.login(t, request("mopar"), old).Status)

	req := request("mopar")
	req.Reconnecting = true
	assert.Equal(t, login.StatusAccountOnline, w.login(t, req, newFakeClient("b")).Status,
		"a live session is not taken over")

	old.Close("timeout")
	fresh := newFakeClient("c")
	resp := w.login(t, req, fresh)
	assert.Equal(t, login.StatusReconnectionOK, resp.Status)

	p := w.player("mopar")
	require.NotNil(t, p)
	assert.Same(t, fresh, p.Client())
	assert.Equal(t, 1, w.players.Size())
	assert.NotEmpty(t, ofType[message.RegionChangeMessage](fresh.take()), "map is rebuilt for the new session")
}

func TestReconnectionLoginOfNewPlayer(t *testing.T) {
	w := newTestWorld(t, Options{})
	req := request("mopar")
	req.Reconnecting = true
	assert.Equal(t, login.StatusReconnectionOK, w.login(t, req, newFakeClient("a")).Status)
}

func TestDisconnectLogsOutAndSaves(t *testing.T) {
	w := newTestWorld(t, Options{})
	client := newFakeClient("a")
	w.login(t, request("mopar"), client)

	p := w.player("mopar")
	client.push(message.CommandMessage{Command: "stop"})
	w.Pulse()

	client.Close("connection reset")
	w.Pulse()
	w.WaitForSaves()

	assert.Nil(t, w.player("mopar"))
	assert.Equal(t, 0, w.players.Size())
	assert.Equal(t, 0, p.Index())
	assert.Equal(t, []string{"mopar"}, w.store.savedNames())
	assert.Equal(t, 1, w.publisher.count(events.EventPlayerLogout))
	assert.Empty(t, w.Snapshot().Players)
}

func TestLogoutButton(t *testing.T) {
	w := newTestWorld(t, Options{})
	client := newFakeClient("a")
	w.login(t, request("mopar"), client)
	client.take()

	client.push(message.ButtonMessage{Widget: LogoutButton})
	w.Pulse()
	require.NotNil(t, w.player("mopar"), "removal happens on the following tick")

	w.Pulse()
	w.WaitForSaves()
	assert.Nil(t, w.player("mopar"))
	assert.True(t, client.Closed())
	assert.NotEmpty(t, ofType[message.LogoutMessage](client.take()))
}

func TestWalkMovesPlayer(t *testing.T) {
	w := newTestWorld(t, Options{})
	client := newFakeClient("a")
	w.login(t, request("mopar"), client)
	client.take()

	client.push(message.WalkMessage{Steps: []model.Position{
		model.NewPosition(3223, 3222),
		model.NewPosition(3225, 3222),
	}})
	w.Pulse()

	p := w.player("mopar")
	assert.Equal(t, model.NewPosition(3223, 3222), p.Position())
	syncs := ofType[message.PlayerSynchronizationMessage](client.take())
	require.Len(t, syncs, 1)
	assert.Equal(t, model.DirectionEast, syncs[0].FirstDirection)
	assert.Equal(t, model.DirectionNone, syncs[0].SecondDirection)

	client.push(message.WalkMessage{Steps: []model.Position{
		model.NewPosition(3224, 3222),
		model.NewPosition(3226, 3224),
	}, Run: true})
	w.Pulse()
	assert.Equal(t, model.NewPosition(3225, 3223), p.Position())
	syncs = ofType[message.PlayerSynchronizationMessage](client.take())
	require.Len(t, syncs, 1)
	assert.Equal(t, model.DirectionEast, syncs[0].FirstDirection)
	assert.Equal(t, model.DirectionNorthEast, syncs[0].SecondDirection)
}

func TestMessagesPerPulseLimit(t *testing.T) {
	w := newTestWorld(t, Options{MessagesPerPulse: 4})
	client := newFakeClient("a")
	w.login(t, request("mopar"), client)

	for i := 0; i < 10; i++ {
		client.push(message.KeepAliveMessage{})
	}
	w.Pulse()
	assert.Equal(t, 6, client.pending())
	w.Pulse()
	assert.Equal(t, 2, client.pending())
}

func TestHandlerPanicDisconnectsPlayer(t *testing.T) {
	w := newTestWorld(t, Options{})
	w.RegisterHandler(message.TypeMouseClick, func(*World, *Player, message.Message) {
		panic("boom")
	})
	broken, healthy := newFakeClient("a"), newFakeClient("b")
	w.login(t, request("broken"), broken)
	w.login(t, request("healthy"), healthy)

	broken.push(message.MouseClickMessage{})
	healthy.push(message.KeepAliveMessage{})
	w.Pulse()

	assert.True(t, broken.Closed())
	assert.False(t, healthy.Closed())

	w.Pulse()
	w.WaitForSaves()
	assert.Nil(t, w.player("broken"))
	assert.NotNil(t, w.player("healthy"))
}

func TestOutboundOverflowDisconnects(t *testing.T) {
	w := newTestWorld(t, Options{})
	client := newFakeClient("a")
	w.login(t, request("mopar"), client)

	client.mu.Lock()
	client.sendFull = true
	client.mu.Unlock()

	w.Pulse()
	assert.True(t, client.Closed())
	w.Pulse()
	w.WaitForSaves()
	assert.Nil(t, w.player("mopar"))
}

func TestCommands(t *testing.T) {
	w := newTestWorld(t, Options{})
	w.store.setPrivilege("admin", db.PrivilegeAdministrator)
	admin, user := newFakeClient("a"), newFakeClient("b")
	require.Equal(t, db.PrivilegeAdministrator, w.login(t, request("admin"), admin).Rights)
	w.login(t, request("user"), user)
	admin.take()
	user.take()

	command := func(c *fakeClient, name string, args ...string) []message.Message {
		c.push(message.CommandMessage{Command: name, Arguments: args})
		w.Pulse()
		return c.take()
	}

	assert.Contains(t, texts(command(user, "pos")), "You are at (3222, 3222, 0).")
	assert.Contains(t, texts(command(user, "players")), "There are 2 players online.")
	assert.Contains(t, texts(command(user, "tele", "3093", "3493")), "Unknown command: tele")
	assert.Contains(t, texts(command(user, "dance")), "Unknown command: dance")

	assert.Contains(t, texts(command(admin, "tele", "3093")), "Usage: ::tele x y [height]")
	assert.Contains(t, texts(command(admin, "tele", "3093", "3493", "9")), "Invalid position (3093, 3493, 9).")

	sent := command(admin, "tele", "3093", "3493", "1")
	assert.Equal(t, model.Position{X: 3093, Y: 3493, Height: 1}, w.player("admin").Position())
	require.NotEmpty(t, ofType[message.RegionChangeMessage](sent), "teleporting out of the loaded map rebuilds it")
	syncs := ofType[message.PlayerSynchronizationMessage](sent)
	require.Len(t, syncs, 1)
	assert.True(t, syncs[0].Teleporting)

	command(admin, "tele", "99999", "-5")
	assert.Equal(t, model.Position{X: model.MaxCoordinate, Y: 0, Height: 1}, w.player("admin").Position())
}

func TestSkillTrainingAction(t *testing.T) {
	w := newTestWorld(t, Options{})
	w.store.setPrivilege("admin", db.PrivilegeAdministrator)
	client := newFakeClient("a")
	w.login(t, request("admin"), client)
	client.take()
	p := w.player("admin")

	client.push(message.CommandMessage{Command: "skill", Arguments: []string{"14", "100"}})
	w.Pulse()
	sent := client.take()
	assert.Contains(t, texts(sent), "You start training Mining.")
	assert.Contains(t, texts(sent), "Congratulations, you just advanced a Mining level.")
	assert.Equal(t, 100, p.Skills().Get(SkillMining).Experience)
	require.NotNil(t, p.CurrentAction())

	client.push(message.CommandMessage{Command: "skill", Arguments: []string{"14", "100"}})
	w.Pulse()
	assert.NotContains(t, texts(client.take()), "You start training Mining.", "same action is not restarted")

	for i := 0; i < trainingDelay; i++ {
		w.Pulse()
	}
	assert.Equal(t, 200, p.Skills().Get(SkillMining).Experience)

	client.push(message.WalkMessage{Steps: []model.Position{model.NewPosition(3223, 3222)}})
	w.Pulse()
	assert.Nil(t, p.CurrentAction(), "walking stops the action")

	for i := 0; i < trainingDelay*2; i++ {
		w.Pulse()
	}
	assert.Equal(t, 200, p.Skills().Get(SkillMining).Experience)
	assert.Equal(t, 0, w.Scheduler().Stats().Active)
}

func TestSystemUpdate(t *testing.T) {
	updated := make(chan struct{})
	w := newTestWorld(t, Options{OnSystemUpdate: func() { close(updated) }})
	client := newFakeClient("a")
	w.login(t, request("mopar"), client)
	client.take()

	assert.Error(t, w.SystemUpdate(0))
	require.NoError(t, w.SystemUpdate(3))
	w.Pulse()

	assert.Equal(t, events.WorldStateUpdating, w.State())
	assert.Equal(t, []message.SystemUpdateMessage{{Time: 3}}, ofType[message.SystemUpdateMessage](client.take()))
	assert.Equal(t, 2, w.Snapshot().UpdateRemaining)
	assert.Equal(t, 1, w.publisher.count(events.EventSystemUpdate))

	w.Pulse()
	assert.NotNil(t, w.player("mopar"))
	w.Pulse()
	w.WaitForSaves()

	assert.Nil(t, w.player("mopar"))
	assert.True(t, client.Closed())
	select {
	case <-updated:
	default:
		t.Fatal("update callback was not called")
	}
}

func TestKickAndBroadcast(t *testing.T) {
	w := newTestWorld(t, Options{})
	a, b := newFakeClient("a"), newFakeClient("b")
	w.login(t, request("alice"), a)
	w.login(t, request("bob"), b)
	a.take()
	b.take()

	require.NoError(t, w.Broadcast("Server restarting soon."))
	w.Pulse()
	assert.Contains(t, texts(a.take()), "Server restarting soon.")
	assert.Contains(t, texts(b.take()), "Server restarting soon.")
	assert.Equal(t, 1, w.publisher.count(events.EventBroadcast))

	kicked := make(chan error, 2)
	go func() { kicked <- w.Kick(context.Background(), "Bob") }()
	go func() { kicked <- w.Kick(context.Background(), "nobody") }()
	require.Eventually(t, func() bool { return w.queued() == 2 }, time.Second, time.Millisecond)
	w.Pulse()

	results := []error{<-kicked, <-kicked}
	assert.Contains(t, results, nil)
	assert.Contains(t, results, ErrPlayerOffline)
	assert.True(t, b.Closed())
	assert.Nil(t, w.player("bob"))
	assert.Equal(t, 1, w.publisher.count(events.EventPlayerKicked))
}

func TestTickOverrunIsReported(t *testing.T) {
	w := newTestWorld(t, Options{TickInterval: time.Nanosecond})
	w.login(t, request("mopar"), newFakeClient("a"))
	assert.Positive(t, w.publisher.count(events.EventTickOverrun))
}

func TestRunAndShutdown(t *testing.T) {
	w := newTestWorld(t, Options{TickInterval: 5 * time.Millisecond, AutosaveTicks: 2})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- w.Run(ctx) }()

	client := newFakeClient("a")
	resp := w.Login(context.Background(), request("mopar"), client)
	require.Equal(t, login.StatusOK, resp.Status)
	require.Eventually(t, func() bool {
		return len(w.store.savedNames()) > 0
	}, time.Second, time.Millisecond, "autosave runs")

	cancel()
	require.NoError(t, <-stopped)
	<-w.Done()

	assert.Equal(t, events.WorldStateStopped, w.State())
	assert.True(t, client.Closed())
	assert.Empty(t, w.Snapshot().Players)
	assert.False(t, w.Submit(func(*World) {}))
	assert.ErrorIs(t, w.Broadcast("late"), ErrWorldStopped)

	late := w.Login(context.Background(), request("late"), newFakeClient("b"))
	assert.Equal(t, login.StatusLoginServerOffline, late.Status)
	assert.Error(t, w.Run(context.Background()), "a stopped world cannot restart")
}
