// pkg/core/ports.go
package core

import "time"

// Material identifies a block type in the host world.
type Material string

// MaterialAir is written to the block store when a wall is destroyed.
const MaterialAir Material = "AIR"

// Permission nodes checked by the core.
const (
	PermissionWarpNoWarmUp  = "castle.warps.nowarmup"
	PermissionWarpUseOthers = "castle.warps.use.others"
)

// Actor is a connected user of the host world.
type Actor interface {
	ID() string
	Name() string
	// Location is the actor's current block position.
	Location() Position
	HasPermission(node string) bool
}

// Faction is a snapshot of a group as known by the faction registry.
type Faction struct {
	ID            string
	Tag           string
	ComparisonTag string
	// Members holds member names.
	Members []string
}

// Same reports whether both snapshots describe the same faction.
func (f Faction) Same(o Faction) bool {
	return f.ID == o.ID
}

// FactionRegistry resolves factions and memberships.
type FactionRegistry interface {
	Faction(id string) (Faction, bool)
	// Wilderness is the neutral faction of factionless actors and unowned castles.
	Wilderness() Faction
	// FactionOf returns the actor's current faction, Wilderness when it has none.
	FactionOf(actor Actor) Faction
}

// ActorDirectory finds connected actors by id.
type ActorDirectory interface {
	Actor(id string) (Actor, bool)
}

// BlockStore reads and writes block materials in the live world.
type BlockStore interface {
	Material(pos Position) Material
	SetMaterial(pos Position, material Material)
}

// Broadcaster delivers text lines to users.
type Broadcaster interface {
	Broadcast(message string)
	Send(actor Actor, message string)
}

// CommandExecutor runs a textual command with elevated authority. Fire-and-forget.
type CommandExecutor interface {
	Execute(command string)
}

// Teleporter moves an actor to a position.
type Teleporter interface {
	Teleport(actor Actor, dest Position)
}

// Task is a scheduled callback that may still be stopped.
type Task interface {
	// Stop prevents the callback from firing. It reports false if it already fired or was stopped.
	Stop() bool
}

// Timer schedules delayed callbacks.
type Timer interface {
	AfterFunc(d time.Duration, f func()) Task
}

// Selector yields the region corners an actor has selected, if any.
type Selector interface {
	Selection(actor Actor) (Position, Position, bool)
}
