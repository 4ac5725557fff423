// Package warp schedules delayed, cancellable teleports to castle warp points.
package warp

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bastionmc/castles/internal/util"
	"github.com/bastionmc/castles/pkg/core"
)

// Messages sent to the warping actor.
const (
	MsgCancelled = "Pending warp cancelled"
	msgWarmUp    = "Warping in %s. Do not move."
	msgSuccess   = "Successfully warped to castle %s"
)

// SystemTimer schedules callbacks on the runtime timer.
type SystemTimer struct{}

func (SystemTimer) AfterFunc(d time.Duration, f func()) core.Task {
	return time.AfterFunc(d, f)
}

type pending struct {
	task core.Task
}

// Dependencies holds the collaborators of a Scheduler.
type Dependencies struct {
	Timer      core.Timer
	Teleporter core.Teleporter
	Messages   core.Broadcaster
	// WarmUp returns the current warm-up delay; it is read on every request.
	WarmUp func() time.Duration
	Logger *slog.Logger
}

// Scheduler keeps at most one pending warp per actor.
type Scheduler struct {
	deps    Dependencies
	mu      sync.Mutex
	pending map[string]*pending
}

// NewScheduler creates a Scheduler.
func NewScheduler(deps Dependencies) *Scheduler {
	if deps.Timer == nil {
		deps.Timer = SystemTimer{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Scheduler{
		deps:    deps,
		pending: make(map[string]*pending),
	}
}

// Request warps actor to dest. Actors with the no-warm-up permission are
// teleported at once; everyone else replaces any pending warp with a new
// delayed one. Ownership of the destination castle is checked by the caller.
func (s *Scheduler) Request(actor core.Actor, dest core.Position, castleName string) {
	if actor.HasPermission(core.PermissionWarpNoWarmUp) {
		s.deps.Teleporter.Teleport(actor, dest)
		s.deps.Messages.Send(actor, fmt.Sprintf(msgSuccess, castleName))
		return
	}

	warmUp := s.deps.WarmUp()
	p := &pending{}

	// the old entry is replaced under the same lock so concurrent requests
	// leave exactly one live warp
	s.mu.Lock()
	old, replaced := s.pending[actor.ID()]
	p.task = s.deps.Timer.AfterFunc(warmUp, func() {
		s.fire(actor, p, dest, castleName)
	})
	s.pending[actor.ID()] = p
	s.mu.Unlock()

	if replaced {
		old.task.Stop()
		s.deps.Messages.Send(actor, MsgCancelled)
	}
	s.deps.Messages.Send(actor, fmt.Sprintf(msgWarmUp, util.FormatLonghand(warmUp)))
	s.deps.Logger.Debug("warp scheduled", "actor", actor.Name(), "castle", castleName, "warmUp", warmUp)
}

func (s *Scheduler) fire(actor core.Actor, p *pending, dest core.Position, castleName string) {
	s.mu.Lock()
	current, ok := s.pending[actor.ID()]
	if !ok || current != p {
		s.mu.Unlock()
		return
	}
	delete(s.pending, actor.ID())
	s.mu.Unlock()

	s.deps.Teleporter.Teleport(actor, dest)
	s.deps.Messages.Send(actor, fmt.Sprintf(msgSuccess, castleName))
}

// Cancel drops the actor's pending warp, if any, and tells the actor.
func (s *Scheduler) Cancel(actor core.Actor) bool {
	s.mu.Lock()
	p, ok := s.pending[actor.ID()]
	if ok {
		delete(s.pending, actor.ID())
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	p.task.Stop()
	s.deps.Messages.Send(actor, MsgCancelled)
	return true
}

// Pending reports whether actor has a warp waiting.
func (s *Scheduler) Pending(actor core.Actor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[actor.ID()]
	return ok
}

// Len returns the number of pending warps.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// CancelAll stops every pending warp without notifying actors.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	all := s.pending
	s.pending = make(map[string]*pending)
	s.mu.Unlock()

	for _, p := range all {
		p.task.Stop()
	}
}
