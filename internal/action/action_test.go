package action

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rune-Status/aj8/internal/model"
	"github.com/Rune-Status/aj8/internal/scheduler"
)

type testCharacter struct {
	current  *Action
	stopped  []*Action
	position model.Position
}

func (c *testCharacter) CurrentAction() *Action   { return c.current }
func (c *testCharacter) SetAction(a *Action)      { c.current = a }
func (c *testCharacter) Position() model.Position { return c.position }

func (c *testCharacter) StopAction(a *Action) {
	c.stopped = append(c.stopped, a)
	if c.current == a {
		c.current = nil
	}
}

func TestStartEqualActionIsDiscarded(t *testing.T) {
	s := scheduler.NewScheduler()
	c := &testCharacter{}
	a := New(1, false, c, "mine:rock", nil)
	b := New(1, false, c, "mine:rock", nil)

	require.True(t, Start(s, a))
	assert.False(t, Start(s, b))

	assert.Same(t, a, c.current)
	assert.Empty(t, c.stopped)
	assert.True(t, a.Running())
	assert.Equal(t, scheduler.StatePending, b.State())
}

func TestStartUnequalActionReplaces(t *testing.T) {
	s := scheduler.NewScheduler()
	c := &testCharacter{}
	a := New(1, false, c, "mine:rock", nil)
	other := New(1, false, c, "chop:tree", nil)

	Start(s, a)
	require.True(t, Start(s, other))

	assert.Same(t, other, c.current)
	require.Len(t, c.stopped, 1)
	assert.Same(t, a, c.stopped[0])
	assert.False(t, a.Running())
	assert.True(t, other.Running())
}

func TestStartRefusedActionLeavesSlotFree(t *testing.T) {
	s := scheduler.NewScheduler()
	c := &testCharacter{}

	stale := New(1, false, c, "mine:rock", nil)
	stale.Stop()
	assert.False(t, Start(s, stale))
	assert.Nil(t, c.current)

	fresh := New(1, false, c, "mine:rock", nil)
	require.True(t, Start(s, fresh))
	assert.Same(t, fresh, c.current)
}

func TestStartAdmittedActionTwice(t *testing.T) {
	s := scheduler.NewScheduler()
	c := &testCharacter{}
	a := New(1, false, c, "mine:rock", nil)
	require.True(t, Start(s, a))

	// The slot was cleared elsewhere but a is still admitted.
	c.current = nil
	assert.False(t, Start(s, a))
	assert.Nil(t, c.current)

	other := New(1, false, c, "mine:rock", nil)
	assert.True(t, Start(s, other))
	assert.Same(t, other, c.current)
}

func TestStopNotifiesOnce(t *testing.T) {
	c := &testCharacter{}
	a := New(0, false, c, nil, nil)
	c.current = a

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Stop()
		}()
	}
	wg.Wait()
	a.Stop()

	assert.Len(t, c.stopped, 1)
	assert.Nil(t, c.current)
	assert.True(t, a.Stopped())
}

func TestStaleStopKeepsNewAction(t *testing.T) {
	c := &testCharacter{}
	old := New(0, false, c, nil, nil)
	fresh := New(0, false, c, nil, nil)
	c.current = fresh

	old.Stop()
	assert.Same(t, fresh, c.current)
}

func TestEquals(t *testing.T) {
	c := &testCharacter{}
	other := &testCharacter{}
	a := New(0, false, c, 7, nil)

	assert.True(t, a.Equals(a))
	assert.True(t, a.Equals(New(0, false, c, 7, nil)))
	assert.False(t, a.Equals(New(0, false, c, 8, nil)))
	assert.False(t, a.Equals(New(0, false, other, 7, nil)))
	assert.False(t, a.Equals(nil))

	// keyless actions are only equal to themselves
	keyless := New(0, false, c, nil, nil)
	assert.False(t, keyless.Equals(New(0, false, c, nil, nil)))
}

func TestBodyStopsAction(t *testing.T) {
	s := scheduler.NewScheduler()
	c := &testCharacter{}
	runs := 0
	a := New(2, true, c, nil, func(a *Action) error {
		runs++
		if runs == 2 {
			a.Stop()
		}
		return nil
	})
	Start(s, a)

	for i := 0; i < 6; i++ {
		s.Pulse()
	}
	assert.Equal(t, 2, runs)
	assert.Len(t, c.stopped, 1)
	assert.Nil(t, c.current)
}

func TestFailedActionReleasesSlot(t *testing.T) {
	s := scheduler.NewScheduler()
	c := &testCharacter{}
	a := New(0, false, c, nil, func(*Action) error {
		panic("broken content")
	})
	Start(s, a)

	s.Pulse()
	assert.Nil(t, c.current)
	assert.Len(t, c.stopped, 1)
}

func TestDistancedWaitsForArrival(t *testing.T) {
	s := scheduler.NewScheduler()
	c := &testCharacter{position: model.NewPosition(3200, 3200)}
	target := model.NewPosition(3205, 3200)
	runs := 0
	a := NewDistanced(2, true, c, "talk", target, 1, func(*Action) error {
		runs++
		return nil
	})
	Start(s, a)

	s.Pulse()
	s.Pulse()
	assert.Equal(t, 0, runs)

	c.position = model.NewPosition(3204, 3200)
	s.Pulse()
	assert.Equal(t, 1, runs)

	s.Pulse()
	assert.Equal(t, 1, runs)
	s.Pulse()
	assert.Equal(t, 2, runs)
}

func TestDistancedDelayedStart(t *testing.T) {
	s := scheduler.NewScheduler()
	c := &testCharacter{position: model.NewPosition(10, 10)}
	runs := 0
	Start(s, NewDistanced(2, false, c, nil, model.NewPosition(10, 11), 1, func(*Action) error {
		runs++
		return nil
	}))

	s.Pulse()
	assert.Equal(t, 0, runs)
	s.Pulse()
	assert.Equal(t, 0, runs)
	s.Pulse()
	assert.Equal(t, 1, runs)
}
