package castle

import (
	"sort"
	"sync"

	"github.com/bastionmc/castles/pkg/core"
)

// Wall is a destructible block belonging to a castle.
type Wall struct {
	Position core.Position
	Material core.Material
	Strength int
}

// WallLedger maps positions to walls. Safe for concurrent use.
type WallLedger struct {
	mu    sync.Mutex
	walls map[core.Position]*Wall
}

// NewWallLedger creates an empty ledger.
func NewWallLedger() *WallLedger {
	return &WallLedger{walls: make(map[core.Position]*Wall)}
}

// ScanWalls collects every position in region whose material matches.
func ScanWalls(region core.Region, material core.Material, strength int, store core.BlockStore) *WallLedger {
	l := NewWallLedger()
	region.Each(func(p core.Position) {
		if store.Material(p) == material {
			l.walls[p] = &Wall{Position: p, Material: material, Strength: strength}
		}
	})
	return l
}

// Len returns the number of tracked walls.
func (l *WallLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.walls)
}

// Get returns a copy of the wall at p.
func (l *WallLedger) Get(p core.Position) (Wall, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.walls[p]
	if !ok {
		return Wall{}, false
	}
	return *w, true
}

// Put stores a wall, replacing any record at the same position.
func (l *WallLedger) Put(w Wall) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.walls[w.Position] = &w
}

// Add merges other into l. Existing positions keep their record.
// Returns the number of positions that were not tracked before.
func (l *WallLedger) Add(other *WallLedger) int {
	incoming := other.Walls()

	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, w := range incoming {
		if _, ok := l.walls[w.Position]; ok {
			continue
		}
		w := w
		l.walls[w.Position] = &w
		count++
	}
	return count
}

// Remove deletes the given positions and returns how many were tracked.
func (l *WallLedger) Remove(positions []core.Position) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, p := range positions {
		if _, ok := l.walls[p]; ok {
			delete(l.walls, p)
			count++
		}
	}
	return count
}

// Positions lists tracked positions.
func (l *WallLedger) Positions() []core.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]core.Position, 0, len(l.walls))
	for p := range l.walls {
		out = append(out, p)
	}
	return out
}

// Clear drops every wall.
func (l *WallLedger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.walls = make(map[core.Position]*Wall)
}

// Damage lowers the strength of the wall at p by one. Once strength is at or
// below zero the block is cleared in the store; the record stays in the ledger.
// tracked is false when p is not a wall, in which case nothing happens.
func (l *WallLedger) Damage(p core.Position, store core.BlockStore) (wall Wall, tracked bool) {
	l.mu.Lock()
	w, ok := l.walls[p]
	if !ok {
		l.mu.Unlock()
		return Wall{}, false
	}
	w.Strength--
	wall = *w
	l.mu.Unlock()

	if wall.Strength <= 0 {
		store.SetMaterial(p, core.MaterialAir)
	}
	return wall, true
}

// Rebuild restores every wall block and resets strength.
func (l *WallLedger) Rebuild(store core.BlockStore, strength int) {
	l.mu.Lock()
	walls := make([]Wall, 0, len(l.walls))
	for _, w := range l.walls {
		w.Strength = strength
		walls = append(walls, *w)
	}
	l.mu.Unlock()

	for _, w := range walls {
		store.SetMaterial(w.Position, w.Material)
	}
}

// ResetStrength sets every wall's strength without touching the world.
func (l *WallLedger) ResetStrength(strength int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.walls {
		w.Strength = strength
	}
}

// Walls returns a copy of all walls ordered by position.
func (l *WallLedger) Walls() []Wall {
	l.mu.Lock()
	out := make([]Wall, 0, len(l.walls))
	for _, w := range l.walls {
		out = append(out, *w)
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Position, out[j].Position
		if a.World != b.World {
			return a.World < b.World
		}
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return out
}
