// pkg/core/position.go
package core

import "fmt"

// Position is a block coordinate in a named world.
// It is comparable and used directly as a map key.
type Position struct {
	World string `json:"world"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
}

func (p Position) String() string {
	return fmt.Sprintf("%s %d,%d,%d", p.World, p.X, p.Y, p.Z)
}

// InvalidRegionError is returned when the two corners of a region are not in the same world.
type InvalidRegionError struct {
	First  string
	Second string
}

func (e *InvalidRegionError) Error() string {
	return fmt.Sprintf("positions of a region must be in the same world (got %q and %q)", e.First, e.Second)
}

// Region is an axis-aligned inclusive box. Min is less than or equal to Max on every axis.
type Region struct {
	Min Position `json:"min"`
	Max Position `json:"max"`
}

// NewRegion builds a region from two arbitrary corners.
func NewRegion(a, b Position) (Region, error) {
	if a.World != b.World {
		return Region{}, &InvalidRegionError{First: a.World, Second: b.World}
	}

	return Region{
		Min: Position{World: a.World, X: min(a.X, b.X), Y: min(a.Y, b.Y), Z: min(a.Z, b.Z)},
		Max: Position{World: a.World, X: max(a.X, b.X), Y: max(a.Y, b.Y), Z: max(a.Z, b.Z)},
	}, nil
}

// World returns the world both corners live in.
func (r Region) World() string {
	return r.Max.World
}

// Contains reports whether p lies inside the region, bounds included.
func (r Region) Contains(p Position) bool {
	return r.Max.World == p.World &&
		r.Min.X <= p.X && p.X <= r.Max.X &&
		r.Min.Y <= p.Y && p.Y <= r.Max.Y &&
		r.Min.Z <= p.Z && p.Z <= r.Max.Z
}

// Collides reports whether two regions share a world and overlap on all three axes.
func (r Region) Collides(o Region) bool {
	return r.Max.World == o.Max.World &&
		r.Min.X <= o.Max.X && r.Max.X >= o.Min.X &&
		r.Min.Y <= o.Max.Y && r.Max.Y >= o.Min.Y &&
		r.Min.Z <= o.Max.Z && r.Max.Z >= o.Min.Z
}

// Center is derived from min/max on every call.
func (r Region) Center() Position {
	return Position{
		World: r.Max.World,
		X:     (r.Max.X + r.Min.X) / 2,
		Y:     (r.Max.Y + r.Min.Y) / 2,
		Z:     (r.Max.Z + r.Min.Z) / 2,
	}
}

// Volume is the number of block positions in the region.
func (r Region) Volume() int {
	return (r.Max.X - r.Min.X + 1) * (r.Max.Y - r.Min.Y + 1) * (r.Max.Z - r.Min.Z + 1)
}

// Each calls fn for every position in the region in x, y, z order.
func (r Region) Each(fn func(Position)) {
	for x := r.Min.X; x <= r.Max.X; x++ {
		for y := r.Min.Y; y <= r.Max.Y; y++ {
			for z := r.Min.Z; z <= r.Max.Z; z++ {
				fn(Position{World: r.Max.World, X: x, Y: y, Z: z})
			}
		}
	}
}
