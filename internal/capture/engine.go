// Package capture runs the castle contest state machine.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bastionmc/castles/internal/castle"
	"github.com/bastionmc/castles/internal/config"
	"github.com/bastionmc/castles/internal/reward"
	"github.com/bastionmc/castles/internal/util"
	"github.com/bastionmc/castles/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Thresholds are the remaining-time checkpoints announced during a contest, descending.
var Thresholds = []time.Duration{
	10 * time.Minute,
	5 * time.Minute,
	4 * time.Minute,
	3 * time.Minute,
	2 * time.Minute,
	time.Minute,
	30 * time.Second,
	10 * time.Second,
	5 * time.Second,
	4 * time.Second,
	3 * time.Second,
	2 * time.Second,
	time.Second,
}

// Observer is notified after every contest resolution.
type Observer interface {
	CaptureResolved(ev core.CaptureEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(core.CaptureEvent)

func (f ObserverFunc) CaptureResolved(ev core.CaptureEvent) { f(ev) }

// Dependencies holds the collaborators of an Engine.
type Dependencies struct {
	Registry *castle.Registry
	Factions core.FactionRegistry
	Blocks   core.BlockStore
	Messages core.Broadcaster
	Rewards  *reward.Dispatcher
	Settings *config.SettingsStore
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Engine evaluates every castle once per tick.
type Engine struct {
	deps Dependencies

	tickMu sync.Mutex
	ticks  atomic.Uint64

	obsMu     sync.RWMutex
	observers []Observer

	tickCounter    metric.Int64Counter
	captureCounter metric.Int64Counter
}

// NewEngine creates an Engine. Metrics use the global OTel meter (no-op if not configured).
func NewEngine(deps Dependencies) (*Engine, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	e := &Engine{deps: deps}
	m := meter()

	var err error
	e.tickCounter, err = m.Int64Counter(
		"castles.ticks",
		metric.WithDescription("Total capture ticks evaluated"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick counter: %w", err)
	}

	e.captureCounter, err = m.Int64Counter(
		"castles.captures",
		metric.WithDescription("Total contest resolutions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating capture counter: %w", err)
	}

	return e, nil
}

// Observe registers an observer for capture events.
func (e *Engine) Observe(o Observer) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, o)
}

// Ticks returns the number of completed ticks.
func (e *Engine) Ticks() uint64 {
	return e.ticks.Load()
}

// Run ticks at the configured interval until ctx is cancelled.
// A changed interval takes effect after the next tick.
func (e *Engine) Run(ctx context.Context) {
	interval := e.deps.Settings.Get().TickInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.deps.Logger.Info("capture engine started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			e.deps.Logger.Info("capture engine stopped", "ticks", e.ticks.Load())
			return
		case <-ticker.C:
			e.Tick()
			if next := e.deps.Settings.Get().TickInterval; next != interval && next > 0 {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// Tick evaluates every castle once. Concurrent calls are serialized.
func (e *Engine) Tick() {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	settings := e.deps.Settings.Get()
	now := e.deps.Now()

	var events []core.CaptureEvent
	for _, c := range e.deps.Registry.All() {
		events = append(events, e.safeTickCastle(c, settings, now)...)
	}

	e.ticks.Add(1)
	e.tickCounter.Add(context.Background(), 1)

	for _, ev := range events {
		e.notify(ev)
	}
}

func (e *Engine) safeTickCastle(c *castle.Castle, settings *config.Settings, now time.Time) (events []core.CaptureEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.deps.Logger.Error("castle evaluation panicked", "castle", c.Name(), "panic", r)
			events = nil
		}
	}()
	return e.tickCastle(c, settings, now)
}

func (e *Engine) tickCastle(c *castle.Castle, settings *config.Settings, now time.Time) []core.CaptureEvent {
	var events []core.CaptureEvent

	c.Contest(func(s *castle.ContestState) {
		if !s.Enabled() {
			return
		}

		wilderness := e.deps.Factions.Wilderness()

		// factionless actors never count
		s.Retain(func(p *castle.Participant) bool {
			p.Faction = e.deps.Factions.FactionOf(p.Actor)
			return !p.Faction.Same(wilderness)
		})
		if len(s.Participants()) == 0 {
			s.SetPreviousHead(nil)
			return
		}

		region := s.Region()
		s.Retain(func(p *castle.Participant) bool {
			return region.Contains(p.Actor.Location())
		})

		owner := e.owner(s.FactionID())
		neutral := s.FactionID() == wilderness.ID

		if len(s.Participants()) == 0 {
			if prev := s.PreviousHead(); prev != nil && prev.ID != s.FactionID() {
				if neutral {
					e.broadcast("%s are no longer capturing castle %s", prev.Tag, s.Name())
				} else {
					e.broadcast("%s have kept their claim over castle %s", owner.Tag, s.Name())
				}
			}
			s.SetPreviousHead(nil)
			return
		}

		head := s.Participants()[0].Faction
		restarted := false

		if prev := s.PreviousHead(); prev == nil || !prev.Same(head) {
			s.ResetCountdown(now)
			restarted = true

			if head.ID == s.FactionID() {
				if prev != nil {
					e.broadcast("%s have kept their claim over castle %s", owner.Tag, s.Name())
				}
				s.SetPreviousHead(&head)
				return
			}

			e.broadcast("%s are now capturing castle %s", head.Tag, s.Name())
			s.SetPreviousHead(&head)
		}

		if head.ID == s.FactionID() {
			return
		}

		remaining := s.CaptureEnd().Sub(now)

		if !restarted {
			for _, threshold := range Thresholds {
				if threshold >= s.LastBroadcast() || threshold < remaining {
					continue
				}
				s.SetLastBroadcast(threshold)
				action := "neutralizing"
				if neutral {
					action = "capturing"
				}
				e.broadcast("%s now have %s until %s castle %s",
					head.Tag, util.FormatShorthand(threshold), action, s.Name())
				break
			}
		}

		if remaining > 0 {
			return
		}

		if neutral {
			events = append(events, e.win(s, head, settings, now))
			e.broadcast("%s have captured castle %s", head.Tag, s.Name())
		} else {
			ev := e.loss(s, settings, now)
			ev.HeadID, ev.HeadTag = head.ID, head.Tag
			events = append(events, ev)
			e.broadcast("%s have neutralized castle %s", head.Tag, s.Name())
		}
		s.ResetCountdown(now)
	})

	return events
}

// owner resolves the owning faction, falling back to wilderness for unknown ids.
func (e *Engine) owner(id string) core.Faction {
	if f, ok := e.deps.Factions.Faction(id); ok {
		return f
	}
	return e.deps.Factions.Wilderness()
}

func (e *Engine) win(s *castle.ContestState, head core.Faction, settings *config.Settings, now time.Time) core.CaptureEvent {
	commands := e.dispatchReward(s, reward.Win, head, settings)
	s.SetFactionID(head.ID)
	s.Walls().Rebuild(e.deps.Blocks, settings.WallStrength)

	e.deps.Logger.Info("castle captured", "castle", s.Name(), "faction", head.Tag, "walls", s.Walls().Len())
	return core.CaptureEvent{
		Time:       now,
		Castle:     s.Name(),
		Outcome:    core.OutcomeCaptured,
		FactionID:  head.ID,
		FactionTag: head.Tag,
		HeadID:     head.ID,
		HeadTag:    head.Tag,
		Commands:   commands,
	}
}

func (e *Engine) loss(s *castle.ContestState, settings *config.Settings, now time.Time) core.CaptureEvent {
	losing := e.owner(s.FactionID())
	commands := e.dispatchReward(s, reward.Loss, losing, settings)
	s.SetFactionID(e.deps.Factions.Wilderness().ID)

	e.deps.Logger.Info("castle neutralized", "castle", s.Name(), "faction", losing.Tag)
	return core.CaptureEvent{
		Time:       now,
		Castle:     s.Name(),
		Outcome:    core.OutcomeNeutralized,
		FactionID:  losing.ID,
		FactionTag: losing.Tag,
		Commands:   commands,
	}
}

func (e *Engine) dispatchReward(s *castle.ContestState, side reward.Side, faction core.Faction, settings *config.Settings) []string {
	profile, ok := settings.Reward(s.RewardType())
	if !ok {
		e.deps.Logger.Warn("reward profile not found", "castle", s.Name(), "reward", s.RewardType())
		return nil
	}
	return e.deps.Rewards.Dispatch(profile, side, faction)
}

// Enable starts contest evaluation for c.
func (e *Engine) Enable(c *castle.Castle) {
	c.Contest(func(s *castle.ContestState) {
		s.SetEnabled(true)
	})
}

// Disable stops contest evaluation for c. A castle held by a real faction is
// neutralized at once with loss rewards and no broadcast.
func (e *Engine) Disable(c *castle.Castle) {
	settings := e.deps.Settings.Get()
	var ev *core.CaptureEvent

	c.Contest(func(s *castle.ContestState) {
		s.SetEnabled(false)
		if s.FactionID() != e.deps.Factions.Wilderness().ID {
			loss := e.loss(s, settings, e.deps.Now())
			loss.Outcome = core.OutcomeDisabled
			ev = &loss
		}
		s.SetPreviousHead(nil)
	})

	if ev != nil {
		e.notify(*ev)
	}
}

func (e *Engine) broadcast(format string, args ...any) {
	e.deps.Messages.Broadcast(fmt.Sprintf(format, args...))
}

func (e *Engine) notify(ev core.CaptureEvent) {
	e.captureCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", string(ev.Outcome))))

	e.obsMu.RLock()
	observers := append([]Observer(nil), e.observers...)
	e.obsMu.RUnlock()

	for _, o := range observers {
		o.CaptureResolved(ev)
	}
}
