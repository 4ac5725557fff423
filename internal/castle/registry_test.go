package castle

import (
	"errors"
	"testing"
	"time"

	"github.com/bastionmc/castles/internal/testutil"
	"github.com/bastionmc/castles/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Create(t *testing.T) {
	r := NewRegistry("0")

	c, err := r.Create("Keep", region(t, pos(0, 0, 0), pos(10, 10, 10)))
	require.NoError(t, err)

	assert.Equal(t, "Keep", c.Name())
	assert.Equal(t, "0", c.FactionID())
	assert.False(t, c.Enabled())
	assert.Equal(t, DefaultCaptureDuration, c.CaptureDuration())
	assert.Equal(t, DefaultRewardType, c.RewardType())

	got, ok := r.ByName("keep")
	require.True(t, ok)
	assert.Same(t, c, got)
}

func TestRegistry_CreateCollision(t *testing.T) {
	r := NewRegistry("0")
	_, err := r.Create("Keep", region(t, pos(0, 0, 0), pos(10, 10, 10)))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = r.Create("Tower", region(t, pos(10, 0, 0), pos(20, 10, 10)))
		require.Error(t, err)

		var collision *RegionCollisionError
		require.True(t, errors.As(err, &collision))
		assert.Equal(t, "Keep", collision.Existing)
		assert.Equal(t, 1, r.Len())
		_, ok := r.ByName("Tower")
		assert.False(t, ok)
	}
}

func TestRegistry_CreateNameTaken(t *testing.T) {
	r := NewRegistry("0")
	_, err := r.Create("Keep", region(t, pos(0, 0, 0), pos(1, 1, 1)))
	require.NoError(t, err)

	_, err = r.Create("KEEP", region(t, pos(50, 0, 0), pos(51, 1, 1)))
	assert.ErrorIs(t, err, ErrNameTaken)
}

func TestRegistry_Rename(t *testing.T) {
	r := NewRegistry("0")
	c, _ := r.Create("Keep", region(t, pos(0, 0, 0), pos(1, 1, 1)))
	_, _ = r.Create("Tower", region(t, pos(50, 0, 0), pos(51, 1, 1)))

	_, err := r.Rename("keep", "tower")
	assert.ErrorIs(t, err, ErrNameTaken)

	_, err = r.Rename("nope", "x")
	assert.ErrorIs(t, err, ErrNotFound)

	renamed, err := r.Rename("keep", "Citadel")
	require.NoError(t, err)
	assert.Same(t, c, renamed)
	assert.Equal(t, "Citadel", c.Name())

	_, ok := r.ByName("keep")
	assert.False(t, ok)
	got, ok := r.ByName("citadel")
	require.True(t, ok)
	assert.Same(t, c, got)

	// case-only rename
	_, err = r.Rename("citadel", "CITADEL")
	require.NoError(t, err)
	assert.Equal(t, "CITADEL", c.Name())
}

func TestRegistry_ResizeDoesNotCheckOverlap(t *testing.T) {
	r := NewRegistry("0")
	_, _ = r.Create("Keep", region(t, pos(0, 0, 0), pos(10, 10, 10)))
	_, _ = r.Create("Tower", region(t, pos(50, 0, 0), pos(60, 10, 10)))

	c, ok := r.Resize("tower", region(t, pos(5, 0, 0), pos(60, 10, 10)))
	require.True(t, ok)
	assert.Equal(t, pos(5, 0, 0), c.Region().Min)

	_, ok = r.Resize("missing", region(t, pos(0, 0, 0), pos(1, 1, 1)))
	assert.False(t, ok)
}

func TestRegistry_DeleteAndAll(t *testing.T) {
	r := NewRegistry("0")
	_, _ = r.Create("b", region(t, pos(0, 0, 0), pos(1, 1, 1)))
	_, _ = r.Create("A", region(t, pos(5, 0, 0), pos(6, 1, 1)))
	_, _ = r.Create("c", region(t, pos(9, 0, 0), pos(9, 1, 1)))

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "A", all[0].Name())
	assert.Equal(t, "b", all[1].Name())

	assert.True(t, r.Delete("B"))
	assert.False(t, r.Delete("B"))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_ByLocationAndBeginCapture(t *testing.T) {
	r := NewRegistry("0")
	keep, _ := r.Create("Keep", region(t, pos(0, 0, 0), pos(10, 10, 10)))

	inside := testutil.NewActor("a1", "alice", pos(5, 5, 5))
	outside := testutil.NewActor("a2", "bob", pos(50, 5, 5))

	c, ok := r.BeginCapture(inside)
	require.True(t, ok)
	assert.Same(t, keep, c)

	_, ok = r.BeginCapture(outside)
	assert.False(t, ok)

	// repeated entry keeps a single participant
	r.BeginCapture(inside)
	assert.Len(t, keep.Participants(), 1)
}

func TestRegistry_WallAt(t *testing.T) {
	r := NewRegistry("0")
	keep, _ := r.Create("Keep", region(t, pos(0, 0, 0), pos(10, 10, 10)))
	keep.Walls().Put(Wall{Position: pos(0, 0, 0), Material: "STONE", Strength: 1})

	c, ok := r.WallAt(pos(0, 0, 0))
	require.True(t, ok)
	assert.Same(t, keep, c)

	_, ok = r.WallAt(pos(1, 0, 0))
	assert.False(t, ok)
}

func TestRegistry_LoadAndRecords(t *testing.T) {
	warp := pos(3, 4, 5)
	records := []core.CastleRecord{
		{
			Name:            "Keep",
			Region:          region(t, pos(0, 0, 0), pos(10, 10, 10)),
			Walls:           []core.WallRecord{{Position: pos(0, 0, 0), Material: "STONE"}},
			CaptureDuration: time.Minute,
			RewardType:      "gold",
			Warp:            &warp,
			Enabled:         true,
			FactionID:       "7",
		},
		{
			Name:   "Tower",
			Region: region(t, pos(50, 0, 0), pos(60, 10, 10)),
		},
	}

	r := NewRegistry("0")
	r.Load(records, 15)

	keep, ok := r.ByName("keep")
	require.True(t, ok)
	assert.True(t, keep.Enabled())
	assert.Equal(t, "7", keep.FactionID())
	assert.Equal(t, time.Minute, keep.CaptureDuration())
	w, ok := keep.Walls().Get(pos(0, 0, 0))
	require.True(t, ok)
	assert.Equal(t, 15, w.Strength)
	dest, ok := keep.Warp()
	require.True(t, ok)
	assert.Equal(t, warp, dest)

	tower, _ := r.ByName("tower")
	assert.Equal(t, "0", tower.FactionID())
	assert.Equal(t, DefaultRewardType, tower.RewardType())

	out := r.Records()
	require.Len(t, out, 2)
	assert.Equal(t, records[0], out[0])
}
