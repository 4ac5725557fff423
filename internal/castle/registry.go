package castle

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bastionmc/castles/pkg/core"
)

var (
	// ErrNameTaken is returned when a castle name is already in use.
	ErrNameTaken = errors.New("castle name already in use")
	ErrNotFound  = errors.New("castle not found")
)

// RegionCollisionError reports that a proposed region overlaps an existing castle.
type RegionCollisionError struct {
	Existing string
}

func (e *RegionCollisionError) Error() string {
	return fmt.Sprintf("region collides with castle %s", e.Existing)
}

// Registry owns every castle, keyed by lower-cased name.
type Registry struct {
	mu           sync.RWMutex
	castles      map[string]*Castle
	wildernessID string
}

// NewRegistry creates an empty registry. New castles are owned by wildernessID.
func NewRegistry(wildernessID string) *Registry {
	return &Registry{
		castles:      make(map[string]*Castle),
		wildernessID: wildernessID,
	}
}

func key(name string) string {
	return strings.ToLower(name)
}

// Create registers a new castle. Nothing is stored when the region overlaps
// another castle or the name is taken.
func (r *Registry) Create(name string, region core.Region) (*Castle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.castles[key(name)]; ok {
		return nil, ErrNameTaken
	}
	for _, c := range r.castles {
		if c.Region().Collides(region) {
			return nil, &RegionCollisionError{Existing: c.Name()}
		}
	}

	c := New(name, region, r.wildernessID)
	r.castles[key(name)] = c
	return c, nil
}

// Delete removes a castle, reporting whether it existed.
func (r *Registry) Delete(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.castles[key(name)]; !ok {
		return false
	}
	delete(r.castles, key(name))
	return true
}

// Rename moves a castle to a new key. A change of case only is allowed.
func (r *Registry) Rename(oldName, newName string) (*Castle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.castles[key(oldName)]
	if !ok {
		return nil, ErrNotFound
	}
	if other, ok := r.castles[key(newName)]; ok && other != c {
		return nil, ErrNameTaken
	}

	delete(r.castles, key(oldName))
	c.setName(newName)
	r.castles[key(newName)] = c
	return c, nil
}

// Resize replaces a castle's region without checking for overlap.
func (r *Registry) Resize(name string, region core.Region) (*Castle, bool) {
	c, ok := r.ByName(name)
	if !ok {
		return nil, false
	}
	c.SetRegion(region)
	return c, true
}

// ByName looks a castle up case-insensitively.
func (r *Registry) ByName(name string) (*Castle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.castles[key(name)]
	return c, ok
}

// ByLocation returns the castle whose region contains p.
func (r *Registry) ByLocation(p core.Position) (*Castle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.castles {
		if c.Region().Contains(p) {
			return c, true
		}
	}
	return nil, false
}

// WallAt finds the castle tracking a wall at p.
func (r *Registry) WallAt(p core.Position) (*Castle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.castles {
		if _, ok := c.Walls().Get(p); ok {
			return c, true
		}
	}
	return nil, false
}

// All returns every castle sorted by name.
func (r *Registry) All() []*Castle {
	r.mu.RLock()
	out := make([]*Castle, 0, len(r.castles))
	for _, c := range r.castles {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return key(out[i].Name()) < key(out[j].Name())
	})
	return out
}

// Len returns the number of castles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.castles)
}

// BeginCapture registers actor as a participant of the castle containing its location.
func (r *Registry) BeginCapture(actor core.Actor) (*Castle, bool) {
	c, ok := r.ByLocation(actor.Location())
	if !ok {
		return nil, false
	}
	c.BeginCapture(actor)
	return c, true
}

// Load replaces the registry content with the given records.
// Wall strengths are set to wallStrength and contest state starts empty.
func (r *Registry) Load(records []core.CastleRecord, wallStrength int) {
	castles := make(map[string]*Castle, len(records))
	for _, rec := range records {
		if rec.FactionID == "" {
			rec.FactionID = r.wildernessID
		}
		castles[key(rec.Name)] = FromRecord(rec, wallStrength)
	}

	r.mu.Lock()
	r.castles = castles
	r.mu.Unlock()
}

// Records snapshots every castle for persistence.
func (r *Registry) Records() []core.CastleRecord {
	all := r.All()
	out := make([]core.CastleRecord, 0, len(all))
	for _, c := range all {
		out = append(out, c.Record())
	}
	return out
}

// ResetWallStrength applies a new default strength to every wall.
func (r *Registry) ResetWallStrength(strength int) {
	for _, c := range r.All() {
		c.Walls().ResetStrength(strength)
	}
}
