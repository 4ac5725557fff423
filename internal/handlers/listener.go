package handlers

import (
	"github.com/bastionmc/castles/internal/dispatcher"
	"github.com/bastionmc/castles/pkg/core"
	"github.com/bastionmc/castles/pkg/protocol"
)

const (
	msgWallDamaged  = "Wall damaged, now at %d strength"
	msgWarpNotOwned = "You are not allowed to warp to castles that you do not own"
)

func (s *Service) handleSync(_ dispatcher.Event) (any, error) {
	s.deps.State.Reset()
	return nil, nil
}

func (s *Service) handleActorJoin(e dispatcher.Event) (any, error) {
	var p protocol.ActorPayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = e.ActorID
	}
	s.deps.State.Join(p)
	return nil, nil
}

func (s *Service) handleActorQuit(e dispatcher.Event) (any, error) {
	if a, ok := s.deps.State.Actor(e.ActorID); ok {
		s.deps.Warps.Cancel(a)
	}
	s.deps.State.Quit(e.ActorID)
	return nil, nil
}

func (s *Service) handleFaction(e dispatcher.Event) (any, error) {
	var p protocol.FactionPayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	s.deps.State.PutFaction(p)
	return nil, nil
}

func (s *Service) handleFactionRemove(e dispatcher.Event) (any, error) {
	var p protocol.FactionPayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	s.deps.State.RemoveFaction(p.ID)
	return nil, nil
}

func (s *Service) handleMembership(e dispatcher.Event) (any, error) {
	var p protocol.MembershipPayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	if p.Actor == "" {
		p.Actor = e.ActorID
	}
	s.deps.State.SetMembership(p.Actor, p.Faction)
	return nil, nil
}

func (s *Service) handleSelection(e dispatcher.Event) (any, error) {
	var p protocol.SelectionPayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	s.deps.State.SetSelection(e.ActorID, p.A, p.B)
	return nil, nil
}

// handleMove cancels a pending warp and joins the contest of the castle the
// actor stepped into. Moves within the same block are ignored.
func (s *Service) handleMove(e dispatcher.Event) (any, error) {
	var p protocol.MovePayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	a, ok := s.deps.State.Move(e.ActorID, p.To)
	if !ok {
		return nil, nil
	}
	if p.From == p.To {
		return nil, nil
	}

	s.deps.Warps.Cancel(a)
	s.deps.Registry.BeginCapture(a)
	return nil, nil
}

// handleTeleport cancels a pending warp and vetoes teleports into a castle
// owned by another faction.
func (s *Service) handleTeleport(e dispatcher.Event) (any, error) {
	var p protocol.MovePayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	a, err := s.actor(e)
	if err != nil {
		return nil, err
	}

	s.deps.Warps.Cancel(a)

	if c, ok := s.deps.Registry.ByLocation(p.To); ok {
		owns := c.FactionID() == s.deps.State.FactionOf(a).ID
		if !owns && !a.HasPermission(core.PermissionWarpUseOthers) {
			s.send(a, msgWarpNotOwned)
			return protocol.VetoResult{Cancel: true}, nil
		}
	}

	s.deps.State.Move(a.ID(), p.To)
	return protocol.VetoResult{}, nil
}

func (s *Service) handleDamage(e dispatcher.Event) (any, error) {
	a, err := s.actor(e)
	if err != nil {
		return nil, err
	}
	s.deps.Warps.Cancel(a)
	return nil, nil
}

// handleBlockBreak vetoes breaking a castle wall and damages it instead. The
// ledger clears the block once strength runs out.
func (s *Service) handleBlockBreak(e dispatcher.Event) (any, error) {
	var p protocol.BlockPayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}

	c, ok := s.deps.Registry.WallAt(p.Position)
	if !ok {
		return protocol.VetoResult{}, nil
	}
	wall, tracked := c.Walls().Damage(p.Position, s.deps.Blocks)
	if !tracked {
		return protocol.VetoResult{}, nil
	}

	if wall.Strength > 0 {
		if a, ok := s.deps.State.Actor(e.ActorID); ok {
			s.send(a, msgWallDamaged, wall.Strength)
		}
	}
	s.deps.Logger.Debug("wall damaged", "castle", c.Name(), "position", p.Position.String(), "strength", wall.Strength)
	return protocol.VetoResult{Cancel: true}, nil
}
