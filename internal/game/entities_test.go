package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rune-Status/aj8/internal/db"
	"github.com/Rune-Status/aj8/internal/model"
)

type slot struct{ index int }

func (s *slot) Index() int         { return s.index }
func (s *slot) SetIndex(index int) { s.index = index }

func TestRepositoryIndices(t *testing.T) {
	r := NewRepository[*slot](3)
	a, b, c, d := &slot{}, &slot{}, &slot{}, &slot{}

	require.True(t, r.Add(a))
	require.True(t, r.Add(b))
	require.True(t, r.Add(c))
	assert.Equal(t, 1, a.Index())
	assert.Equal(t, 3, c.Index())
	assert.True(t, r.Full())
	assert.False(t, r.Add(d))

	require.True(t, r.Remove(b))
	assert.Equal(t, 0, b.Index())
	assert.Nil(t, r.Get(2))
	assert.False(t, r.Remove(b))

	require.True(t, r.Add(d))
	assert.Equal(t, 2, d.Index(), "freed index is reused")
	assert.Same(t, d, r.Get(2))
	assert.Equal(t, 3, r.Size())

	assert.Panics(t, func() { r.Get(0) })
	assert.Panics(t, func() { r.Get(4) })
}

func TestRepositoryEachAllowsRemoval(t *testing.T) {
	r := NewRepository[*slot](4)
	for i := 0; i < 4; i++ {
		r.Add(&slot{})
	}
	visited := 0
	r.Each(func(s *slot) {
		visited++
		r.Remove(s)
	})
	assert.Equal(t, 4, visited)
	assert.Equal(t, 0, r.Size())
}

type mover struct{ position model.Position }

func (m *mover) Position() model.Position { return m.position }

func walk(q *WalkingQueue, m *mover) (model.Direction, model.Direction) {
	var first, second model.Direction
	m.position, first, second = q.Pulse()
	return first, second
}

func TestWalkingQueueInterpolatesSteps(t *testing.T) {
	m := &mover{position: model.NewPosition(3200, 3200)}
	q := NewWalkingQueue(m, nil)

	require.True(t, q.AddFirstStep(model.NewPosition(3201, 3200)))
	q.AddStep(model.NewPosition(3204, 3203))
	assert.Equal(t, 4, q.Size())

	first, second := walk(q, m)
	assert.Equal(t, model.DirectionEast, first)
	assert.Equal(t, model.DirectionNone, second)

	for i := 0; i < 3; i++ {
		first, _ = walk(q, m)
		assert.Equal(t, model.DirectionNorthEast, first)
	}
	assert.Equal(t, model.NewPosition(3204, 3203), m.position)

	first, _ = walk(q, m)
	assert.Equal(t, model.DirectionNone, first)
}

func TestWalkingQueueRunsTwoSteps(t *testing.T) {
	m := &mover{position: model.NewPosition(3200, 3200)}
	q := NewWalkingQueue(m, nil)
	require.True(t, q.AddFirstStep(model.NewPosition(3200, 3201)))
	q.AddStep(model.NewPosition(3200, 3203))
	q.SetRunning(true)

	first, second := walk(q, m)
	assert.Equal(t, model.DirectionNorth, first)
	assert.Equal(t, model.DirectionNorth, second)

	first, second = walk(q, m)
	assert.Equal(t, model.DirectionNorth, first)
	assert.Equal(t, model.DirectionNone, second)
	assert.False(t, q.Running(), "running resets once the path is walked")
	assert.Equal(t, model.NewPosition(3200, 3203), m.position)
}

func TestWalkingQueueTravelsBack(t *testing.T) {
	m := &mover{position: model.NewPosition(3200, 3200)}
	q := NewWalkingQueue(m, nil)
	require.True(t, q.AddFirstStep(model.NewPosition(3201, 3200)))
	q.AddStep(model.NewPosition(3203, 3200))
	walk(q, m)
	walk(q, m)
	require.Equal(t, model.NewPosition(3202, 3200), m.position)

	// (3199, 3202) does not line up with the server position, so the path is
	// routed back through a remembered step.
	require.True(t, q.AddFirstStep(model.NewPosition(3199, 3202)))
	assert.Positive(t, q.Size())

	require.False(t, NewWalkingQueue(m, nil).AddFirstStep(model.NewPosition(3210, 3205)))
}

func TestWalkingQueueStopsAtBlockedTile(t *testing.T) {
	m := &mover{position: model.NewPosition(3200, 3200)}
	blocked := BlockedTraversalMap{}
	blocked.Block(model.NewPosition(3202, 3200))
	q := NewWalkingQueue(m, blocked)
	require.True(t, q.AddFirstStep(model.NewPosition(3201, 3200)))
	q.AddStep(model.NewPosition(3204, 3200))

	first, _ := walk(q, m)
	assert.Equal(t, model.DirectionEast, first)
	first, _ = walk(q, m)
	assert.Equal(t, model.DirectionNone, first)
	assert.Equal(t, 0, q.Size())
	assert.Equal(t, model.NewPosition(3201, 3200), m.position)
}

func TestWalkingQueueCapacity(t *testing.T) {
	m := &mover{position: model.NewPosition(3000, 3000)}
	q := NewWalkingQueue(m, nil)
	require.True(t, q.AddFirstStep(model.NewPosition(3001, 3000)))
	q.AddStep(model.NewPosition(3400, 3000))
	assert.Equal(t, MaxWalkingQueueSize, q.Size())
}

func TestExperienceTable(t *testing.T) {
	assert.Equal(t, 0, ExperienceForLevel(1))
	assert.Equal(t, 83, ExperienceForLevel(2))
	assert.Equal(t, 1154, ExperienceForLevel(10))
	assert.Equal(t, 13034431, ExperienceForLevel(99))

	assert.Equal(t, 1, LevelForExperience(82))
	assert.Equal(t, 2, LevelForExperience(83))
	assert.Equal(t, 99, LevelForExperience(MaxExperience))
}

func TestSkillSet(t *testing.T) {
	s := NewSkillSet()
	assert.Equal(t, Skill{Level: 10, Experience: 1154}, s.Get(SkillHitpoints))
	assert.Equal(t, 1, s.Get(SkillAttack).Level)
	assert.Equal(t, SkillCount-1+10, s.TotalLevel())

	assert.Equal(t, 1, s.AddExperience(SkillMining, 83))
	assert.Equal(t, 2, s.Get(SkillMining).Level)
	assert.Equal(t, 0, s.AddExperience(SkillMining, -500))

	s.AddExperience(SkillMining, MaxExperience)
	assert.Equal(t, MaxExperience, s.Get(SkillMining).Experience)
	assert.Equal(t, 99, s.Get(SkillMining).Level)

	assert.Panics(t, func() { s.AddExperience(SkillCount, 1) })

	restored := SkillSetFromRecords(s.Records())
	assert.Equal(t, s.Get(SkillMining), restored.Get(SkillMining))

	partial := SkillSetFromRecords([]db.SkillRecord{{Experience: 1154}})
	assert.Equal(t, 10, partial.Get(SkillAttack).Level)
	assert.Equal(t, 10, partial.Get(SkillHitpoints).Level)
}
