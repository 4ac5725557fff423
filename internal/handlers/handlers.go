// Package handlers turns host events into registry, capture and warp calls.
package handlers

import (
	"fmt"
	"log/slog"

	"github.com/bastionmc/castles/internal/cache"
	"github.com/bastionmc/castles/internal/capture"
	"github.com/bastionmc/castles/internal/castle"
	"github.com/bastionmc/castles/internal/config"
	"github.com/bastionmc/castles/internal/dispatcher"
	"github.com/bastionmc/castles/internal/storage"
	"github.com/bastionmc/castles/internal/warp"
	"github.com/bastionmc/castles/pkg/core"
	"github.com/bastionmc/castles/pkg/protocol"
)

// Dependencies holds all dependencies needed by handlers.
type Dependencies struct {
	Registry *castle.Registry
	Engine   *capture.Engine
	Warps    *warp.Scheduler
	// State is the host state cache; it also serves as faction registry and selector.
	State    *cache.FactionCache
	Blocks   core.BlockStore
	Messages core.Broadcaster
	Settings *config.SettingsStore
	// History is optional; /castle history reports it unavailable when nil.
	History  storage.History
	// OnChange runs after an admin command changed the registry.
	OnChange func()
	Logger   *slog.Logger
}

// Service provides handler methods for host events and admin commands.
type Service struct {
	deps     Dependencies
	commands map[string]*command
}

func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Service{deps: deps}
	s.commands = s.commandTable()
	return s
}

// RegisterHandlers registers all host events with the dispatcher.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	// State pushes - sync so later events see them
	d.Register(protocol.TypeSync, s.handleSync, dispatcher.Logged())
	d.Register(protocol.TypeActorJoin, s.handleActorJoin, dispatcher.Logged())
	d.Register(protocol.TypeActorQuit, s.handleActorQuit, dispatcher.Logged())
	d.Register(protocol.TypeFaction, s.handleFaction, dispatcher.Logged())
	d.Register(protocol.TypeFactionRemove, s.handleFactionRemove, dispatcher.Logged())
	d.Register(protocol.TypeMembership, s.handleMembership, dispatcher.Logged())
	d.Register(protocol.TypeSelection, s.handleSelection, dispatcher.Logged())

	// Movement - sync, high volume, not logged
	d.Register(protocol.TypeMove, s.handleMove)

	// Vetoes - sync, the host waits for the reply
	d.Register(protocol.TypeTeleport, s.handleTeleport, dispatcher.Logged())
	d.Register(protocol.TypeBlockBreak, s.handleBlockBreak, dispatcher.Logged())

	d.Register(protocol.TypeDamage, s.handleDamage, dispatcher.Buffered(1000))

	// Admin commands - buffered, wall scans wait on block reads from the host
	d.Register(protocol.TypeCommand, s.handleCommand, dispatcher.Buffered(100), dispatcher.Logged())
}

// Route adapts the dispatcher to inbound bridge envelopes.
func Route(d *dispatcher.Dispatcher) func(env protocol.Envelope) (any, error) {
	return func(env protocol.Envelope) (any, error) {
		return d.Dispatch(dispatcher.Event{
			Command: env.Type,
			ActorID: env.Actor,
			Args:    env.Args,
			Payload: env.Payload,
		})
	}
}

// actor resolves the event's actor from the state cache.
func (s *Service) actor(e dispatcher.Event) (*cache.Actor, error) {
	a, ok := s.deps.State.Actor(e.ActorID)
	if !ok {
		return nil, fmt.Errorf("%s: unknown actor %q", e.Command, e.ActorID)
	}
	return a.(*cache.Actor), nil
}

func (s *Service) send(actor core.Actor, format string, args ...any) {
	s.deps.Messages.Send(actor, fmt.Sprintf(format, args...))
}

func (s *Service) changed() {
	if s.deps.OnChange != nil {
		s.deps.OnChange()
	}
}
