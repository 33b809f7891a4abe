package game

import "github.com/Rune-Status/aj8/internal/model"

// MaxWalkingQueueSize bounds the number of queued steps. Further steps are
// dropped.
const MaxWalkingQueueSize = 128

// TraversalMap decides whether a character may step from a position in a
// direction.
type TraversalMap interface {
	Traversable(from model.Position, d model.Direction) bool
}

// OpenTraversalMap lets every step through.
type OpenTraversalMap struct{}

// Traversable always returns true.
func (OpenTraversalMap) Traversable(model.Position, model.Direction) bool { return true }

// BlockedTraversalMap forbids entering a fixed set of tiles.
type BlockedTraversalMap map[model.Position]struct{}

// Block marks tiles as untraversable.
func (m BlockedTraversalMap) Block(positions ...model.Position) {
	for _, p := range positions {
		m[p] = struct{}{}
	}
}

// Traversable reports whether the destination tile is open.
func (m BlockedTraversalMap) Traversable(from model.Position, d model.Direction) bool {
	_, blocked := m[from.Step(d)]
	return !blocked
}

type step struct {
	position  model.Position
	direction model.Direction
}

// WalkingQueue is the path a character follows, one step per tick or two
// when running.
type WalkingQueue struct {
	mover interface {
		Position() model.Position
	}
	traversal TraversalMap

	points    []step
	oldPoints []step
	running   bool
}

// NewWalkingQueue creates an empty queue for a character.
func NewWalkingQueue(mover interface{ Position() model.Position }, traversal TraversalMap) *WalkingQueue {
	if traversal == nil {
		traversal = OpenTraversalMap{}
	}
	return &WalkingQueue{mover: mover, traversal: traversal}
}

// SetRunning makes the current path run, two steps per tick.
func (q *WalkingQueue) SetRunning(running bool) {
	q.running = running
}

// Running reports whether the current path is run.
func (q *WalkingQueue) Running() bool {
	return q.running
}

// Size returns the number of queued steps.
func (q *WalkingQueue) Size() int {
	return len(q.points)
}

// Clear drops the queued and remembered steps.
func (q *WalkingQueue) Clear() {
	q.points = q.points[:0]
	q.oldPoints = q.oldPoints[:0]
}

// AddFirstStep starts a new path at the client's idea of where the character
// is. The client can lag behind the server, so when that position is not
// next to the server position the queue walks back along the steps it has
// already taken until it finds one that connects. It returns false, leaving
// the queue empty, if no such step exists.
func (q *WalkingQueue) AddFirstStep(clientPosition model.Position) bool {
	server := q.mover.Position()

	if model.Connectable(clientPosition.X-server.X, clientPosition.Y-server.Y) {
		q.Clear()
		q.AddStep(clientPosition)
		return true
	}

	var travelBack []model.Position
	for len(q.oldPoints) > 0 {
		last := q.oldPoints[len(q.oldPoints)-1]
		q.oldPoints = q.oldPoints[:len(q.oldPoints)-1]

		old := last.position
		travelBack = append(travelBack, old)

		if model.Connectable(old.X-server.X, old.Y-server.Y) {
			q.Clear()
			for _, p := range travelBack {
				q.AddStep(p)
			}
			q.AddStep(clientPosition)
			return true
		}
	}

	q.Clear()
	return false
}

// AddStep extends the path to next, filling in the straight or diagonal
// tiles between the end of the path and next.
func (q *WalkingQueue) AddStep(next model.Position) {
	last := q.last()
	dx := next.X - last.position.X
	dy := next.Y - last.position.Y

	steps := max(abs(dx), abs(dy))
	for i := 0; i < steps; i++ {
		switch {
		case dx < 0:
			dx++
		case dx > 0:
			dx--
		}
		switch {
		case dy < 0:
			dy++
		case dy > 0:
			dy--
		}
		q.addPoint(next.X-dx, next.Y-dy)
	}
}

func (q *WalkingQueue) addPoint(x, y int) {
	if len(q.points) >= MaxWalkingQueueSize {
		return
	}
	last := q.last()
	d := model.FromDeltas(x-last.position.X, y-last.position.Y)
	if d == model.DirectionNone {
		return
	}
	p := step{
		position:  model.Position{X: x, Y: y, Height: q.mover.Position().Height},
		direction: d,
	}
	q.points = append(q.points, p)
	q.oldPoints = append(q.oldPoints, p)
}

func (q *WalkingQueue) last() step {
	if len(q.points) == 0 {
		return step{position: q.mover.Position(), direction: model.DirectionNone}
	}
	return q.points[len(q.points)-1]
}

// Pulse takes this tick's steps. It returns the new position and the
// directions walked, DirectionNone when no step was taken. An untraversable
// step clears the queue.
func (q *WalkingQueue) Pulse() (model.Position, model.Direction, model.Direction) {
	position := q.mover.Position()
	first, second := model.DirectionNone, model.DirectionNone

	if len(q.points) == 0 {
		return position, first, second
	}

	next := q.poll()
	traversable := q.traversal.Traversable(position, next.direction)
	if traversable {
		first = next.direction
		position = next.position

		if q.running && len(q.points) > 0 {
			next = q.poll()
			traversable = q.traversal.Traversable(position, next.direction)
			if traversable {
				second = next.direction
				position = next.position
			}
		}
	}

	if !traversable {
		q.Clear()
	}
	if len(q.points) == 0 {
		q.running = false
	}
	return position, first, second
}

func (q *WalkingQueue) poll() step {
	next := q.points[0]
	q.points = q.points[1:]
	return next
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
