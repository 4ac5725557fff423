package castle

import (
	"sync"
	"time"

	"github.com/bastionmc/castles/pkg/core"
)

// DefaultCaptureDuration applies to castles created without an explicit duration.
const DefaultCaptureDuration = 5 * time.Minute

// DefaultRewardType names the reward profile new castles use.
const DefaultRewardType = "default"

// Participant is an actor standing in a castle region, annotated with the
// faction it belonged to at the last evaluation.
type Participant struct {
	Actor   core.Actor
	Faction core.Faction
}

// Castle is a named, capturable region.
// Configuration and contest state are guarded by the castle's lock; the wall
// ledger has its own.
type Castle struct {
	mu sync.Mutex

	// configuration
	name            string
	region          core.Region
	walls           *WallLedger
	captureDuration time.Duration
	rewardType      string
	warp            *core.Position
	enabled         bool
	factionID       string

	// contest state, never persisted
	previousHead  *core.Faction
	capping       []Participant
	captureEnd    time.Time
	lastBroadcast time.Duration
}

// New creates a disabled castle owned by the given (neutral) faction.
func New(name string, region core.Region, factionID string) *Castle {
	return &Castle{
		name:            name,
		region:          region,
		walls:           NewWallLedger(),
		captureDuration: DefaultCaptureDuration,
		rewardType:      DefaultRewardType,
		factionID:       factionID,
		lastBroadcast:   DefaultCaptureDuration + time.Millisecond,
	}
}

// FromRecord restores a castle with fresh contest state and walls at the given strength.
func FromRecord(rec core.CastleRecord, wallStrength int) *Castle {
	c := New(rec.Name, rec.Region, rec.FactionID)
	c.captureDuration = rec.CaptureDuration
	if rec.RewardType != "" {
		c.rewardType = rec.RewardType
	}
	if rec.Warp != nil {
		w := *rec.Warp
		c.warp = &w
	}
	c.enabled = rec.Enabled
	c.lastBroadcast = c.captureDuration + time.Millisecond
	for _, w := range rec.Walls {
		c.walls.Put(Wall{Position: w.Position, Material: w.Material, Strength: wallStrength})
	}
	return c
}

// Record snapshots the persisted fields.
func (c *Castle) Record() core.CastleRecord {
	c.mu.Lock()
	rec := core.CastleRecord{
		Name:            c.name,
		Region:          c.region,
		CaptureDuration: c.captureDuration,
		RewardType:      c.rewardType,
		Enabled:         c.enabled,
		FactionID:       c.factionID,
	}
	if c.warp != nil {
		w := *c.warp
		rec.Warp = &w
	}
	c.mu.Unlock()

	for _, w := range c.walls.Walls() {
		rec.Walls = append(rec.Walls, core.WallRecord{Position: w.Position, Material: w.Material})
	}
	return rec
}

func (c *Castle) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

func (c *Castle) setName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
}

func (c *Castle) Region() core.Region {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region
}

// SetRegion replaces the region. Overlap with other castles is not checked.
func (c *Castle) SetRegion(r core.Region) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.region = r
}

// Walls returns the castle's wall ledger.
func (c *Castle) Walls() *WallLedger {
	return c.walls
}

func (c *Castle) CaptureDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captureDuration
}

func (c *Castle) SetCaptureDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captureDuration = d
}

func (c *Castle) RewardType() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rewardType
}

func (c *Castle) SetRewardType(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rewardType = name
}

// Warp returns the warp destination, if set.
func (c *Castle) Warp() (core.Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.warp == nil {
		return core.Position{}, false
	}
	return *c.warp, true
}

func (c *Castle) SetWarp(p core.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warp = &p
}

func (c *Castle) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// FactionID returns the owning faction id.
func (c *Castle) FactionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.factionID
}

// SetFactionID changes ownership directly, bypassing rewards.
func (c *Castle) SetFactionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factionID = id
}

// BeginCapture appends actor to the contest list unless it is already there.
func (c *Castle) BeginCapture(actor core.Actor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.capping {
		if p.Actor.ID() == actor.ID() {
			return false
		}
	}
	c.capping = append(c.capping, Participant{Actor: actor})
	return true
}

// Participants returns a copy of the contest list in insertion order.
func (c *Castle) Participants() []Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Participant, len(c.capping))
	copy(out, c.capping)
	return out
}

// Contest gives the capture engine exclusive access to the castle's state.
// fn runs with the castle lock held and must not call locking methods of c.
func (c *Castle) Contest(fn func(s *ContestState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&ContestState{c: c})
}

// PreviousHead returns the faction that led the contest at the last evaluation.
func (c *Castle) PreviousHead() (core.Faction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.previousHead == nil {
		return core.Faction{}, false
	}
	return *c.previousHead, true
}

// ContestState is the lock-held view of a castle handed out by Contest.
type ContestState struct {
	c *Castle
}

func (s *ContestState) Name() string                   { return s.c.name }
func (s *ContestState) Region() core.Region            { return s.c.region }
func (s *ContestState) Enabled() bool                  { return s.c.enabled }
func (s *ContestState) SetEnabled(v bool)              { s.c.enabled = v }
func (s *ContestState) FactionID() string              { return s.c.factionID }
func (s *ContestState) SetFactionID(id string)         { s.c.factionID = id }
func (s *ContestState) RewardType() string             { return s.c.rewardType }
func (s *ContestState) CaptureDuration() time.Duration { return s.c.captureDuration }
func (s *ContestState) Walls() *WallLedger             { return s.c.walls }
func (s *ContestState) CaptureEnd() time.Time          { return s.c.captureEnd }
func (s *ContestState) LastBroadcast() time.Duration   { return s.c.lastBroadcast }
func (s *ContestState) SetLastBroadcast(d time.Duration) {
	s.c.lastBroadcast = d
}

// PreviousHead returns the remembered contest head, nil if none.
func (s *ContestState) PreviousHead() *core.Faction { return s.c.previousHead }

// SetPreviousHead remembers f as contest head; nil clears it.
func (s *ContestState) SetPreviousHead(f *core.Faction) {
	if f == nil {
		s.c.previousHead = nil
		return
	}
	head := *f
	s.c.previousHead = &head
}

// Participants exposes the live contest list.
func (s *ContestState) Participants() []Participant { return s.c.capping }

// Retain keeps only participants for which keep returns true, preserving order.
// keep may update the participant in place. The list is replaced only once
// every participant has been visited, so a panicking keep leaves it unchanged.
func (s *ContestState) Retain(keep func(p *Participant) bool) {
	kept := make([]Participant, 0, len(s.c.capping))
	for _, p := range s.c.capping {
		if keep(&p) {
			kept = append(kept, p)
		}
	}
	s.c.capping = kept
}

// ResetCountdown starts a new capture window ending duration after now.
func (s *ContestState) ResetCountdown(now time.Time) {
	s.c.captureEnd = now.Add(s.c.captureDuration)
	s.c.lastBroadcast = s.c.captureDuration + time.Millisecond
}
