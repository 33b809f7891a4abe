package model

// Direction is one of the eight walking directions, numbered as the client
// expects them in movement updates.
type Direction int

const (
	DirectionNone      Direction = -1
	DirectionNorthWest Direction = 0
	DirectionNorth     Direction = 1
	DirectionNorthEast Direction = 2
	DirectionWest      Direction = 3
	DirectionEast      Direction = 4
	DirectionSouthWest Direction = 5
	DirectionSouth     Direction = 6
	DirectionSouthEast Direction = 7
)

var directionDeltas = map[Direction][2]int{
	DirectionNorthWest: {-1, 1},
	DirectionNorth:     {0, 1},
	DirectionNorthEast: {1, 1},
	DirectionWest:      {-1, 0},
	DirectionEast:      {1, 0},
	DirectionSouthWest: {-1, -1},
	DirectionSouth:     {0, -1},
	DirectionSouthEast: {1, -1},
}

// FromDeltas returns the direction of a single step, or DirectionNone when
// the deltas are not a single step.
func FromDeltas(dx, dy int) Direction {
	for d, delta := range directionDeltas {
		if delta[0] == dx && delta[1] == dy {
			return d
		}
	}
	return DirectionNone
}

// Connectable reports whether a straight or diagonal line joins two points
// separated by the deltas.
func Connectable(dx, dy int) bool {
	return abs(dx) == abs(dy) || dx == 0 || dy == 0
}

// Deltas returns the unit step of d.
func (d Direction) Deltas() (dx, dy int) {
	delta := directionDeltas[d]
	return delta[0], delta[1]
}

func (d Direction) String() string {
	switch d {
	case DirectionNorthWest:
		return "NORTH_WEST"
	case DirectionNorth:
		return "NORTH"
	case DirectionNorthEast:
		return "NORTH_EAST"
	case DirectionWest:
		return "WEST"
	case DirectionEast:
		return "EAST"
	case DirectionSouthWest:
		return "SOUTH_WEST"
	case DirectionSouth:
		return "SOUTH"
	case DirectionSouthEast:
		return "SOUTH_EAST"
	default:
		return "NONE"
	}
}
