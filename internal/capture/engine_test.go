package capture

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bastionmc/castles/internal/castle"
	"github.com/bastionmc/castles/internal/config"
	"github.com/bastionmc/castles/internal/reward"
	"github.com/bastionmc/castles/internal/storage"
	"github.com/bastionmc/castles/internal/testutil"
	"github.com/bastionmc/castles/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	registry *castle.Registry
	factions *testutil.Factions
	blocks   *testutil.Blocks
	messages *testutil.Broadcaster
	executor *testutil.Executor
	clock    *testutil.Clock
	settings *config.SettingsStore
	engine   *Engine
	events   []core.CaptureEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry: castle.NewRegistry("0"),
		factions: testutil.NewFactions(),
		blocks:   testutil.NewBlocks(),
		messages: testutil.NewBroadcaster(),
		executor: &testutil.Executor{},
		clock:    testutil.NewClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)),
		settings: config.NewSettingsStore(&config.Settings{
			TickInterval: 50 * time.Millisecond,
			WarpWarmUp:   5 * time.Second,
			WallStrength: 20,
			WildernessID: "0",
			Rewards: map[string]config.RewardProfile{
				"default": config.DefaultReward,
			},
		}),
	}

	var err error
	f.engine, err = NewEngine(Dependencies{
		Registry: f.registry,
		Factions: f.factions,
		Blocks:   f.blocks,
		Messages: f.messages,
		Rewards:  reward.NewDispatcher(f.executor),
		Settings: f.settings,
		Now:      f.clock.Now,
	})
	require.NoError(t, err)
	f.engine.Observe(ObserverFunc(func(ev core.CaptureEvent) {
		f.events = append(f.events, ev)
	}))
	return f
}

func p(x, y, z int) core.Position {
	return core.Position{World: "world", X: x, Y: y, Z: z}
}

var outside = p(500, 64, 500)

// keep creates an enabled castle spanning 0..10 on every axis.
func (f *fixture) keep(t *testing.T, duration time.Duration, owner string) *castle.Castle {
	t.Helper()
	r, err := core.NewRegion(p(0, 0, 0), p(10, 10, 10))
	require.NoError(t, err)
	c, err := f.registry.Create("Keep", r)
	require.NoError(t, err)
	c.SetCaptureDuration(duration)
	c.SetFactionID(owner)
	f.engine.Enable(c)
	return c
}

func (f *fixture) enter(actor *testutil.Actor, at core.Position) {
	actor.MoveTo(at)
	f.registry.BeginCapture(actor)
}

func (f *fixture) tick(d time.Duration) []string {
	f.clock.Advance(d)
	f.engine.Tick()
	return f.messages.Broadcasts()
}

func TestWorkedExample_CaptureNeutralCastle(t *testing.T) {
	f := newFixture(t)
	c := f.keep(t, 300000*time.Millisecond, "0")

	alice := testutil.NewActor("a1", "alice", outside)
	f.factions.Add("7", "Knights", alice)
	f.enter(alice, p(5, 5, 5))

	msgs := f.tick(0)
	assert.Equal(t, []string{"Knights are now capturing castle Keep"}, msgs)
	head, ok := c.PreviousHead()
	require.True(t, ok)
	assert.Equal(t, "7", head.ID)

	// one tick per second until 295000ms have elapsed
	var announced []string
	for elapsed := time.Second; elapsed < 295*time.Second; elapsed += time.Second {
		announced = append(announced, f.tick(time.Second)...)
	}
	assert.Equal(t, []string{
		"Knights now have 5m until capturing castle Keep",
		"Knights now have 4m until capturing castle Keep",
		"Knights now have 3m until capturing castle Keep",
		"Knights now have 2m until capturing castle Keep",
		"Knights now have 1m until capturing castle Keep",
		"Knights now have 30s until capturing castle Keep",
		"Knights now have 10s until capturing castle Keep",
	}, announced)

	assert.Equal(t, []string{"Knights now have 5s until capturing castle Keep"}, f.tick(time.Second))
	assert.Equal(t, "0", c.FactionID())

	for i := 0; i < 4; i++ {
		require.Len(t, f.tick(time.Second), 1)
	}

	msgs = f.tick(time.Second)
	assert.Equal(t, []string{"Knights have captured castle Keep"}, msgs)
	assert.Equal(t, "7", c.FactionID())
	assert.Equal(t, []string{"f powerboost f Knights 50"}, f.executor.Commands())

	require.Len(t, f.events, 1)
	assert.Equal(t, core.OutcomeCaptured, f.events[0].Outcome)
	assert.Equal(t, "Keep", f.events[0].Castle)
	assert.Equal(t, "7", f.events[0].FactionID)

	// the new owner holding the castle produces nothing further
	for i := 0; i < 10; i++ {
		assert.Empty(t, f.tick(time.Minute))
	}
	assert.Empty(t, f.executor.Commands())
}

func TestOwnerOnlyContestNeverCountsDown(t *testing.T) {
	f := newFixture(t)
	c := f.keep(t, 10*time.Second, "7")

	alice := testutil.NewActor("a1", "alice", outside)
	f.factions.Add("7", "Knights", alice)
	f.enter(alice, p(1, 1, 1))

	for i := 0; i < 30; i++ {
		assert.Empty(t, f.tick(time.Second))
	}
	assert.Equal(t, "7", c.FactionID())
	assert.Empty(t, f.executor.Commands())
	assert.Empty(t, f.events)
}

func TestThresholdsAnnouncedOnceUnderRepeatedTicks(t *testing.T) {
	f := newFixture(t)
	f.keep(t, 10*time.Second, "0")

	alice := testutil.NewActor("a1", "alice", outside)
	f.factions.Add("7", "Knights", alice)
	f.enter(alice, p(1, 1, 1))
	f.tick(0)

	assert.Equal(t, []string{"Knights now have 10s until capturing castle Keep"}, f.tick(time.Millisecond))
	assert.Empty(t, f.tick(0))
	assert.Empty(t, f.tick(0))

	// a jump across several thresholds announces only the first one reached
	assert.Equal(t, []string{"Knights now have 5s until capturing castle Keep"}, f.tick(7*time.Second))
	assert.Equal(t, []string{"Knights now have 4s until capturing castle Keep"}, f.tick(0))
}

func TestNeutralizeOwnedCastle(t *testing.T) {
	f := newFixture(t)
	c := f.keep(t, 3*time.Second, "9")
	c.Walls().Put(castle.Wall{Position: p(0, 0, 0), Material: "STONE", Strength: 1})

	bob := testutil.NewActor("b1", "bob", outside)
	carol := testutil.NewActor("c1", "carol", outside)
	f.factions.Add("7", "Knights", bob)
	f.factions.Add("9", "Rogues", carol)
	f.enter(bob, p(2, 2, 2))

	assert.Equal(t, []string{"Knights are now capturing castle Keep"}, f.tick(0))
	assert.Equal(t, []string{"Knights now have 3s until neutralizing castle Keep"}, f.tick(time.Second))
	assert.Equal(t, []string{"Knights now have 2s until neutralizing castle Keep"}, f.tick(time.Second))
	assert.Equal(t, []string{
		"Knights now have 1s until neutralizing castle Keep",
		"Knights have neutralized castle Keep",
	}, f.tick(time.Second))

	assert.Equal(t, "0", c.FactionID())
	assert.Equal(t, []string{"f powerboost f Rogues reset"}, f.executor.Commands())
	assert.Empty(t, f.blocks.Writes(), "neutralizing does not rebuild walls")

	require.Len(t, f.events, 1)
	ev := f.events[0]
	assert.Equal(t, core.OutcomeNeutralized, ev.Outcome)
	assert.Equal(t, "9", ev.FactionID)
	assert.Equal(t, "7", ev.HeadID)

	// the countdown restarts at once and the head now captures the neutral castle
	assert.Equal(t, []string{"Knights now have 3s until capturing castle Keep"}, f.tick(time.Second))
	f.tick(time.Second)
	assert.Equal(t, []string{
		"Knights now have 1s until capturing castle Keep",
		"Knights have captured castle Keep",
	}, f.tick(time.Second))
	assert.Equal(t, "7", c.FactionID())
}

func TestWinRebuildsWalls(t *testing.T) {
	f := newFixture(t)
	c := f.keep(t, time.Second, "0")
	c.Walls().Put(castle.Wall{Position: p(0, 0, 0), Material: "STONE", Strength: 20})
	c.Walls().Put(castle.Wall{Position: p(10, 0, 0), Material: "OBSIDIAN", Strength: 20})
	for i := 0; i < 20; i++ {
		c.Walls().Damage(p(0, 0, 0), f.blocks)
	}
	require.Equal(t, core.MaterialAir, f.blocks.Material(p(0, 0, 0)))
	f.blocks.Writes()

	alice := testutil.NewActor("a1", "alice", outside)
	f.factions.Add("7", "Knights", alice)
	f.enter(alice, p(5, 5, 5))
	f.tick(0)
	f.tick(time.Second)

	assert.Equal(t, "7", c.FactionID())
	assert.ElementsMatch(t, []core.Position{p(0, 0, 0), p(10, 0, 0)}, f.blocks.Writes())
	assert.Equal(t, core.Material("STONE"), f.blocks.Material(p(0, 0, 0)))
	assert.Equal(t, core.Material("OBSIDIAN"), f.blocks.Material(p(10, 0, 0)))
	for _, w := range c.Walls().Walls() {
		assert.Equal(t, 20, w.Strength)
	}
	assert.Equal(t, []string{"f powerboost f Knights 50"}, f.executor.Commands())
}

func TestEveryoneLeft(t *testing.T) {
	t.Run("neutral castle", func(t *testing.T) {
		f := newFixture(t)
		c := f.keep(t, time.Minute, "0")
		alice := testutil.NewActor("a1", "alice", outside)
		f.factions.Add("7", "Knights", alice)

		f.enter(alice, p(5, 5, 5))
		f.tick(0)
		alice.MoveTo(outside)

		assert.Equal(t, []string{"Knights are no longer capturing castle Keep"}, f.tick(time.Second))
		_, ok := c.PreviousHead()
		assert.False(t, ok)
		assert.Empty(t, c.Participants())
		assert.Empty(t, f.tick(time.Second))
	})

	t.Run("owned castle", func(t *testing.T) {
		f := newFixture(t)
		f.keep(t, time.Minute, "9")
		alice := testutil.NewActor("a1", "alice", outside)
		f.factions.Add("7", "Knights", alice)
		f.factions.Add("9", "Rogues")

		f.enter(alice, p(5, 5, 5))
		f.tick(0)
		alice.MoveTo(outside)

		assert.Equal(t, []string{"Rogues have kept their claim over castle Keep"}, f.tick(time.Second))
	})

	t.Run("owner leaving is silent", func(t *testing.T) {
		f := newFixture(t)
		f.keep(t, time.Minute, "7")
		alice := testutil.NewActor("a1", "alice", outside)
		f.factions.Add("7", "Knights", alice)

		f.enter(alice, p(5, 5, 5))
		f.tick(0)
		alice.MoveTo(outside)

		assert.Empty(t, f.tick(time.Second))
	})
}

func TestFactionlessActorsNeverCount(t *testing.T) {
	f := newFixture(t)
	c := f.keep(t, time.Second, "0")
	drifter := testutil.NewActor("d1", "drifter", outside)

	f.enter(drifter, p(5, 5, 5))
	require.Len(t, c.Participants(), 1)

	assert.Empty(t, f.tick(time.Second))
	assert.Empty(t, c.Participants())
	assert.Equal(t, "0", c.FactionID())
}

func TestLeavingFactionDropsParticipant(t *testing.T) {
	f := newFixture(t)
	c := f.keep(t, time.Minute, "0")
	alice := testutil.NewActor("a1", "alice", outside)
	f.factions.Add("7", "Knights", alice)

	f.enter(alice, p(5, 5, 5))
	f.tick(0)
	f.factions.Leave(alice)

	assert.Empty(t, f.tick(time.Second))
	assert.Empty(t, c.Participants())
	_, ok := c.PreviousHead()
	assert.False(t, ok)
}

func TestHeadIsFirstToEnter(t *testing.T) {
	f := newFixture(t)
	c := f.keep(t, time.Minute, "0")
	alice := testutil.NewActor("a1", "alice", outside)
	bob := testutil.NewActor("b1", "bob", outside)
	f.factions.Add("7", "Knights", alice)
	f.factions.Add("9", "Rogues", bob)

	f.enter(alice, p(5, 5, 5))
	f.enter(bob, p(6, 6, 6))
	assert.Equal(t, []string{"Knights are now capturing castle Keep"}, f.tick(0))

	// later arrivals do not take over
	for _, msg := range f.tick(time.Second) {
		assert.NotContains(t, msg, "are now capturing")
	}
	head, _ := c.PreviousHead()
	assert.Equal(t, "7", head.ID)

	alice.MoveTo(outside)
	assert.Equal(t, []string{"Rogues are now capturing castle Keep"}, f.tick(time.Second))
	head, _ = c.PreviousHead()
	assert.Equal(t, "9", head.ID)
}

func TestOwnerRetakesHead(t *testing.T) {
	f := newFixture(t)
	c := f.keep(t, time.Minute, "9")
	alice := testutil.NewActor("a1", "alice", outside)
	bob := testutil.NewActor("b1", "bob", outside)
	f.factions.Add("7", "Knights", alice)
	f.factions.Add("9", "Rogues", bob)

	f.enter(alice, p(5, 5, 5))
	f.enter(bob, p(6, 6, 6))
	f.tick(0)

	alice.MoveTo(outside)
	assert.Equal(t, []string{"Rogues have kept their claim over castle Keep"}, f.tick(time.Second))
	assert.Equal(t, "9", c.FactionID())

	for i := 0; i < 5; i++ {
		assert.Empty(t, f.tick(time.Minute))
	}
}

func TestDisabledCastleSkipped(t *testing.T) {
	f := newFixture(t)
	c := f.keep(t, time.Second, "0")
	f.engine.Disable(c)

	alice := testutil.NewActor("a1", "alice", outside)
	f.factions.Add("7", "Knights", alice)
	f.enter(alice, p(5, 5, 5))

	assert.Empty(t, f.tick(time.Minute))
	assert.Equal(t, "0", c.FactionID())
	assert.Len(t, c.Participants(), 1, "disabled castles keep their list untouched")
	assert.Empty(t, f.events)
}

func TestDisableForcesLoss(t *testing.T) {
	f := newFixture(t)
	c := f.keep(t, time.Minute, "9")
	f.factions.Add("9", "Rogues")
	alice := testutil.NewActor("a1", "alice", outside)
	f.factions.Add("7", "Knights", alice)
	f.enter(alice, p(5, 5, 5))
	f.tick(0)

	f.engine.Disable(c)

	assert.False(t, c.Enabled())
	assert.Equal(t, "0", c.FactionID())
	assert.Equal(t, []string{"f powerboost f Rogues reset"}, f.executor.Commands())
	assert.Empty(t, f.messages.Broadcasts())
	_, ok := c.PreviousHead()
	assert.False(t, ok)

	require.Len(t, f.events, 1)
	assert.Equal(t, core.OutcomeDisabled, f.events[0].Outcome)
	assert.Equal(t, "9", f.events[0].FactionID)
}

func TestMissingRewardProfile(t *testing.T) {
	f := newFixture(t)
	c := f.keep(t, time.Second, "0")
	c.SetRewardType("unknown")

	alice := testutil.NewActor("a1", "alice", outside)
	f.factions.Add("7", "Knights", alice)
	f.enter(alice, p(5, 5, 5))
	f.tick(0)
	f.tick(time.Second)

	assert.Equal(t, "7", c.FactionID())
	assert.Empty(t, f.executor.Commands())
}

type panicActor struct {
	*testutil.Actor
}

func (panicActor) Location() core.Position {
	panic("location unavailable")
}

func TestPanicIsolatedPerCastle(t *testing.T) {
	f := newFixture(t)

	ra, _ := core.NewRegion(p(0, 0, 0), p(10, 10, 10))
	rb, _ := core.NewRegion(p(100, 0, 0), p(110, 10, 10))
	broken, err := f.registry.Create("A", ra)
	require.NoError(t, err)
	healthy, err := f.registry.Create("B", rb)
	require.NoError(t, err)
	f.engine.Enable(broken)
	f.engine.Enable(healthy)

	ghost := testutil.NewActor("g1", "ghost", p(1, 1, 1))
	alice := testutil.NewActor("a1", "alice", p(105, 5, 5))
	f.factions.Add("7", "Knights", ghost, alice)

	broken.BeginCapture(panicActor{ghost})
	healthy.BeginCapture(alice)

	msgs := f.tick(0)
	assert.Equal(t, []string{"Knights are now capturing castle B"}, msgs)
	assert.Equal(t, uint64(1), f.engine.Ticks())

	// the panicking castle stays usable
	broken.Contest(func(s *castle.ContestState) {
		assert.True(t, s.Enabled())
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.settings.Set(&config.Settings{TickInterval: time.Millisecond, WildernessID: "0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.engine.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return f.engine.Ticks() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
}

// slowStore blocks every write for delay.
type slowStore struct {
	delay time.Duration
	saves atomic.Int32
}

func (s *slowStore) Init() error                               { return nil }
func (s *slowStore) Close() error                              { return nil }
func (s *slowStore) LoadCastles() ([]core.CastleRecord, error) { return nil, nil }

func (s *slowStore) SaveCastles([]core.CastleRecord) error {
	time.Sleep(s.delay)
	s.saves.Add(1)
	return nil
}

func (s *slowStore) RecordCapture(core.CaptureEvent) error {
	time.Sleep(s.delay)
	return nil
}

func TestSlowStorageDoesNotDelayTick(t *testing.T) {
	f := newFixture(t)
	store := &slowStore{delay: 300 * time.Millisecond}
	writer := storage.NewWriter(storage.WriterDependencies{
		Backend:  store,
		Snapshot: f.registry.Records,
		Logger:   zerolog.New(io.Discard),
	})
	writer.Start()
	f.engine.Observe(writer)

	c := f.keep(t, time.Second, "0")
	alice := testutil.NewActor("a1", "alice", outside)
	f.factions.Add("7", "Knights", alice)
	f.enter(alice, p(5, 5, 5))
	f.tick(0)

	start := time.Now()
	f.tick(time.Second)
	elapsed := time.Since(start)

	require.Equal(t, "7", c.FactionID())
	assert.Less(t, elapsed, 100*time.Millisecond)

	writer.Close()
	assert.Equal(t, int32(1), store.saves.Load())
}
