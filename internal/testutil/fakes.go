// Package testutil provides in-memory implementations of the core collaborator
// interfaces for package tests.
package testutil

import (
	"sync"
	"time"

	"github.com/bastionmc/castles/pkg/core"
)

// Actor is a mutable core.Actor.
type Actor struct {
	mu          sync.Mutex
	id          string
	name        string
	location    core.Position
	permissions map[string]bool
}

func NewActor(id, name string, location core.Position, permissions ...string) *Actor {
	a := &Actor{id: id, name: name, location: location, permissions: make(map[string]bool)}
	for _, p := range permissions {
		a.permissions[p] = true
	}
	return a
}

func (a *Actor) ID() string   { return a.id }
func (a *Actor) Name() string { return a.name }

func (a *Actor) Location() core.Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.location
}

func (a *Actor) MoveTo(p core.Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.location = p
}

func (a *Actor) HasPermission(node string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.permissions[node]
}

func (a *Actor) Grant(node string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.permissions[node] = true
}

// Factions is a core.FactionRegistry with explicit memberships.
type Factions struct {
	mu         sync.Mutex
	wilderness core.Faction
	factions   map[string]core.Faction
	members    map[string]string // actor id -> faction id
}

func NewFactions() *Factions {
	return &Factions{
		wilderness: core.Faction{ID: "0", Tag: "Wilderness", ComparisonTag: "wilderness"},
		factions:   make(map[string]core.Faction),
		members:    make(map[string]string),
	}
}

// Add registers a faction and its member actors.
func (f *Factions) Add(id, tag string, members ...*Actor) core.Faction {
	f.mu.Lock()
	defer f.mu.Unlock()
	fac := core.Faction{ID: id, Tag: tag, ComparisonTag: tag}
	for _, m := range members {
		fac.Members = append(fac.Members, m.Name())
		f.members[m.ID()] = id
	}
	f.factions[id] = fac
	return fac
}

// Leave makes the actor factionless.
func (f *Factions) Leave(actor core.Actor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members, actor.ID())
}

func (f *Factions) Faction(id string) (core.Faction, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.wilderness.ID {
		return f.wilderness, true
	}
	fac, ok := f.factions[id]
	return fac, ok
}

func (f *Factions) Wilderness() core.Faction {
	return f.wilderness
}

func (f *Factions) FactionOf(actor core.Actor) core.Faction {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.members[actor.ID()]
	if !ok {
		return f.wilderness
	}
	return f.factions[id]
}

// Broadcaster records every message.
type Broadcaster struct {
	mu        sync.Mutex
	broadcast []string
	direct    map[string][]string
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{direct: make(map[string][]string)}
}

func (b *Broadcaster) Broadcast(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcast = append(b.broadcast, message)
}

func (b *Broadcaster) Send(actor core.Actor, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.direct[actor.ID()] = append(b.direct[actor.ID()], message)
}

// Broadcasts returns and clears the recorded broadcasts.
func (b *Broadcaster) Broadcasts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.broadcast
	b.broadcast = nil
	return out
}

// Messages returns and clears the messages sent to actor.
func (b *Broadcaster) Messages(actor core.Actor) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.direct[actor.ID()]
	delete(b.direct, actor.ID())
	return out
}

// Executor records executed commands.
type Executor struct {
	mu       sync.Mutex
	commands []string
}

func (e *Executor) Execute(command string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = append(e.commands, command)
}

// Commands returns and clears the executed commands.
func (e *Executor) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.commands
	e.commands = nil
	return out
}

// Blocks is an in-memory core.BlockStore.
type Blocks struct {
	mu     sync.Mutex
	blocks map[core.Position]core.Material
	writes []core.Position
}

func NewBlocks() *Blocks {
	return &Blocks{blocks: make(map[core.Position]core.Material)}
}

func (b *Blocks) Material(pos core.Position) core.Material {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.blocks[pos]
	if !ok {
		return core.MaterialAir
	}
	return m
}

func (b *Blocks) SetMaterial(pos core.Position, material core.Material) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocks[pos] = material
	b.writes = append(b.writes, pos)
}

// Writes returns and clears the positions written through SetMaterial.
func (b *Blocks) Writes() []core.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.writes
	b.writes = nil
	return out
}

// Teleporter records teleports.
type Teleporter struct {
	mu        sync.Mutex
	teleports map[string][]core.Position
}

func NewTeleporter() *Teleporter {
	return &Teleporter{teleports: make(map[string][]core.Position)}
}

func (t *Teleporter) Teleport(actor core.Actor, dest core.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.teleports[actor.ID()] = append(t.teleports[actor.ID()], dest)
}

func (t *Teleporter) Teleports(actor core.Actor) []core.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.Position(nil), t.teleports[actor.ID()]...)
}

// Timer is a manually driven core.Timer.
type Timer struct {
	mu    sync.Mutex
	tasks []*Task
}

// Task is a callback scheduled on Timer.
type Task struct {
	timer   *Timer
	Delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *Timer) AfterFunc(d time.Duration, f func()) core.Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	task := &Task{timer: t, Delay: d, fn: f}
	t.tasks = append(t.tasks, task)
	return task
}

func (k *Task) Stop() bool {
	k.timer.mu.Lock()
	defer k.timer.mu.Unlock()
	if k.stopped || k.fired {
		return false
	}
	k.stopped = true
	return true
}

// Fire runs the callback even if the task was stopped, emulating a timer
// that expired concurrently with Stop.
func (k *Task) Fire() {
	k.timer.mu.Lock()
	k.fired = true
	k.timer.mu.Unlock()
	k.fn()
}

// Pending returns tasks neither stopped nor fired.
func (t *Timer) Pending() []*Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Task
	for _, k := range t.tasks {
		if !k.stopped && !k.fired {
			out = append(out, k)
		}
	}
	return out
}

// Tasks returns every task ever scheduled.
func (t *Timer) Tasks() []*Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Task(nil), t.tasks...)
}

// FireAll runs every pending task.
func (t *Timer) FireAll() {
	for _, k := range t.Pending() {
		k.Fire()
	}
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
