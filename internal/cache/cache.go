// Package cache keeps the host's actors, factions and selections in memory so
// the capture tick never waits on the host.
package cache

import (
	"sort"
	"sync"

	"github.com/bastionmc/castles/pkg/core"
	"github.com/bastionmc/castles/pkg/protocol"
)

// Actor is a connected actor as last reported by the host.
type Actor struct {
	mu          sync.Mutex
	id          string
	name        string
	location    core.Position
	permissions map[string]bool
}

func (a *Actor) ID() string { return a.id }

func (a *Actor) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

func (a *Actor) Location() core.Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.location
}

func (a *Actor) HasPermission(node string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.permissions[node]
}

func (a *Actor) update(p protocol.ActorPayload) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.name = p.Name
	a.location = p.Location
	a.permissions = make(map[string]bool, len(p.Permissions))
	for _, node := range p.Permissions {
		a.permissions[node] = true
	}
}

func (a *Actor) moveTo(p core.Position) {
	a.mu.Lock()
	a.location = p
	a.mu.Unlock()
}

type selection struct {
	a, b core.Position
}

// FactionCache implements core.FactionRegistry, core.ActorDirectory and
// core.Selector from host pushes.
type FactionCache struct {
	mu         sync.RWMutex
	wilderness core.Faction
	actors     map[string]*Actor
	names      map[string]string // actor id -> last known name, kept after quit
	factions   map[string]core.Faction
	membership map[string]string // actor id -> faction id
	selections map[string]selection
}

func NewFactionCache(wilderness core.Faction) *FactionCache {
	if wilderness.ComparisonTag == "" {
		wilderness.ComparisonTag = wilderness.Tag
	}
	return &FactionCache{
		wilderness: wilderness,
		actors:     make(map[string]*Actor),
		names:      make(map[string]string),
		factions:   make(map[string]core.Faction),
		membership: make(map[string]string),
		selections: make(map[string]selection),
	}
}

// Join registers or refreshes a connected actor. An actor that rejoins keeps
// its identity so contests it started still refer to it.
func (c *FactionCache) Join(p protocol.ActorPayload) *Actor {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.actors[p.ID]
	if !ok {
		a = &Actor{id: p.ID}
		c.actors[p.ID] = a
	}
	a.update(p)
	c.names[p.ID] = p.Name
	return a
}

// Quit forgets a disconnected actor and its selection. Faction membership is
// kept. The actor's location is cleared so it drops out of any contest.
func (c *FactionCache) Quit(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.actors[id]; ok {
		a.moveTo(core.Position{})
	}
	delete(c.actors, id)
	delete(c.selections, id)
}

// Move records a new location for a connected actor.
func (c *FactionCache) Move(id string, to core.Position) (*Actor, bool) {
	c.mu.RLock()
	a, ok := c.actors[id]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	a.moveTo(to)
	return a, true
}

// PutFaction creates or updates a faction. Updates to the wilderness id are ignored.
func (c *FactionCache) PutFaction(p protocol.FactionPayload) {
	if p.ID == c.wilderness.ID {
		return
	}
	if p.ComparisonTag == "" {
		p.ComparisonTag = p.Tag
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factions[p.ID] = core.Faction{ID: p.ID, Tag: p.Tag, ComparisonTag: p.ComparisonTag}
}

// RemoveFaction disbands a faction. Its members become factionless.
func (c *FactionCache) RemoveFaction(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.factions, id)
	for actor, faction := range c.membership {
		if faction == id {
			delete(c.membership, actor)
		}
	}
}

// SetMembership puts an actor in a faction. An empty or wilderness faction id
// removes the membership.
func (c *FactionCache) SetMembership(actorID, factionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if factionID == "" || factionID == c.wilderness.ID {
		delete(c.membership, actorID)
		return
	}
	c.membership[actorID] = factionID
}

// SetSelection stores the region corners an actor selected.
func (c *FactionCache) SetSelection(actorID string, a, b core.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selections[actorID] = selection{a: a, b: b}
}

func (c *FactionCache) Selection(actor core.Actor) (core.Position, core.Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.selections[actor.ID()]
	return s.a, s.b, ok
}

func (c *FactionCache) Actor(id string) (core.Actor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.actors[id]
	if !ok {
		return nil, false
	}
	return a, true
}

// Online lists connected actors ordered by id.
func (c *FactionCache) Online() []*Actor {
	c.mu.RLock()
	out := make([]*Actor, 0, len(c.actors))
	for _, a := range c.actors {
		out = append(out, a)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (c *FactionCache) Wilderness() core.Faction {
	return c.wilderness
}

// Faction returns a snapshot with member names filled in.
func (c *FactionCache) Faction(id string) (core.Faction, bool) {
	if id == c.wilderness.ID {
		return c.wilderness, true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factions[id]
	if !ok {
		return core.Faction{}, false
	}
	return c.withMembers(f), true
}

func (c *FactionCache) FactionOf(actor core.Actor) core.Faction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.membership[actor.ID()]
	if !ok {
		return c.wilderness
	}
	f, ok := c.factions[id]
	if !ok {
		return c.wilderness
	}
	return c.withMembers(f)
}

// Factions returns every known faction except wilderness, ordered by tag.
func (c *FactionCache) Factions() []core.Faction {
	c.mu.RLock()
	out := make([]core.Faction, 0, len(c.factions))
	for _, f := range c.factions {
		out = append(out, c.withMembers(f))
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// withMembers must be called with c.mu held.
func (c *FactionCache) withMembers(f core.Faction) core.Faction {
	var members []string
	for actor, faction := range c.membership {
		if faction != f.ID {
			continue
		}
		name, ok := c.names[actor]
		if !ok {
			name = actor
		}
		members = append(members, name)
	}
	sort.Strings(members)
	f.Members = members
	return f
}

// Reset drops everything. Used before the host resends its state.
func (c *FactionCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.actors {
		a.moveTo(core.Position{})
	}
	c.actors = make(map[string]*Actor)
	c.names = make(map[string]string)
	c.factions = make(map[string]core.Faction)
	c.membership = make(map[string]string)
	c.selections = make(map[string]selection)
}
