package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromDeltas(t *testing.T) {
	for d, delta := range directionDeltas {
		assert.Equal(t, d, FromDeltas(delta[0], delta[1]))
	}
	assert.Equal(t, DirectionNone, FromDeltas(0, 0))
	assert.Equal(t, DirectionNone, FromDeltas(2, 0))
}

func TestConnectable(t *testing.T) {
	assert.True(t, Connectable(5, 0))
	assert.True(t, Connectable(0, -3))
	assert.True(t, Connectable(-4, 4))
	assert.False(t, Connectable(2, 1))
}

func TestRegionCoordinates(t *testing.T) {
	p := Position{X: 3222, Y: 3218}

	assert.Equal(t, 402, p.CentralRegionX())
	assert.Equal(t, 402, p.CentralRegionY())
	assert.Equal(t, 396, p.TopLeftRegionX())
	assert.Equal(t, 54, p.LocalX(p))
	assert.Equal(t, 50, p.LocalY(p))
}

func TestWithinDistance(t *testing.T) {
	p := Position{X: 10, Y: 10}

	assert.True(t, p.WithinDistance(Position{X: 12, Y: 8}, 2))
	assert.False(t, p.WithinDistance(Position{X: 13, Y: 10}, 2))
	assert.False(t, p.WithinDistance(Position{X: 10, Y: 10, Height: 1}, 2))
	assert.Equal(t, Position{X: 9, Y: 11}, p.Step(DirectionNorthWest))
}

func TestClamp(t *testing.T) {
	tests := []struct {
		in, want Position
	}{
		{Position{X: 3222, Y: 3218, Height: 2}, Position{X: 3222, Y: 3218, Height: 2}},
		{Position{X: -1, Y: 20000}, Position{X: 0, Y: MaxCoordinate}},
		{Position{X: MaxCoordinate + 1, Y: -40, Height: 1}, Position{X: MaxCoordinate, Y: 0, Height: 1}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.Clamp())
	}
}
