// Package model holds the small value types shared by the game world and the
// protocol messages.
package model

import "fmt"

// Region and viewport sizes, in tiles.
const (
	RegionSize   = 8
	ViewportSize = 104
)

// MaxHeight is the highest plane a position can be on.
const MaxHeight = 3

// MaxCoordinate is the largest X or Y the client map can address: 256
// map squares of 64 tiles on each axis.
const MaxCoordinate = 256*64 - 1

// Position is a tile coordinate on one plane.
type Position struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Height int `json:"height"`
}

// NewPosition creates a position on the ground plane.
func NewPosition(x, y int) Position {
	return Position{X: x, Y: y}
}

// Clamp moves p onto the addressable map, keeping its plane.
func (p Position) Clamp() Position {
	p.X = min(max(p.X, 0), MaxCoordinate)
	p.Y = min(max(p.Y, 0), MaxCoordinate)
	return p
}

// CentralRegionX is the region the client centres its map on.
func (p Position) CentralRegionX() int {
	return p.X / RegionSize
}

// CentralRegionY is the region the client centres its map on.
func (p Position) CentralRegionY() int {
	return p.Y / RegionSize
}

// TopLeftRegionX is the first region of the loaded 13x13 region area.
func (p Position) TopLeftRegionX() int {
	return p.CentralRegionX() - 6
}

// TopLeftRegionY is the first region of the loaded 13x13 region area.
func (p Position) TopLeftRegionY() int {
	return p.CentralRegionY() - 6
}

// LocalX is the x coordinate relative to the map loaded around base.
func (p Position) LocalX(base Position) int {
	return p.X - base.TopLeftRegionX()*RegionSize
}

// LocalY is the y coordinate relative to the map loaded around base.
func (p Position) LocalY(base Position) int {
	return p.Y - base.TopLeftRegionY()*RegionSize
}

// LongestDelta is the Chebyshev distance between two positions, ignoring the
// plane.
func (p Position) LongestDelta(other Position) int {
	return max(abs(p.X-other.X), abs(p.Y-other.Y))
}

// WithinDistance reports whether other is on the same plane and at most
// distance tiles away on both axes.
func (p Position) WithinDistance(other Position, distance int) bool {
	return p.Height == other.Height && p.LongestDelta(other) <= distance
}

// Step returns the adjacent position in direction d.
func (p Position) Step(d Direction) Position {
	dx, dy := d.Deltas()
	return Position{X: p.X + dx, Y: p.Y + dy, Height: p.Height}
}

func (p Position) String() string {
	return fmt.Sprintf("(%d, %d, %d)", p.X, p.Y, p.Height)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
