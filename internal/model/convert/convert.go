package convert

import (
	"encoding/json"
	"time"

	"github.com/bastionmc/castles/internal/model"
	"github.com/bastionmc/castles/pkg/core"
)

// CastleToCore converts a GORM Castle and its preloaded walls to a core.CastleRecord.
func CastleToCore(c model.Castle) core.CastleRecord {
	rec := core.CastleRecord{
		Name: c.Name,
		Region: core.Region{
			Min: core.Position{World: c.World, X: c.MinX, Y: c.MinY, Z: c.MinZ},
			Max: core.Position{World: c.World, X: c.MaxX, Y: c.MaxY, Z: c.MaxZ},
		},
		Walls:           make([]core.WallRecord, 0, len(c.Walls)),
		CaptureDuration: time.Duration(c.CaptureDuration) * time.Millisecond,
		RewardType:      c.RewardType,
		Enabled:         c.Enabled,
		FactionID:       c.FactionID,
	}

	if len(c.Warp) > 0 && string(c.Warp) != "null" {
		var warp core.Position
		if err := json.Unmarshal(c.Warp, &warp); err == nil {
			rec.Warp = &warp
		}
	}

	for _, w := range c.Walls {
		rec.Walls = append(rec.Walls, WallToCore(w))
	}
	return rec
}

// WallToCore converts a GORM Wall to a core.WallRecord.
func WallToCore(w model.Wall) core.WallRecord {
	return core.WallRecord{
		Position: core.Position{World: w.World, X: w.X, Y: w.Y, Z: w.Z},
		Material: core.Material(w.Material),
	}
}

// CaptureEventToCore converts a GORM CaptureEvent to a core.CaptureEvent.
func CaptureEventToCore(e model.CaptureEvent) core.CaptureEvent {
	var commands []string
	if len(e.Commands) > 0 {
		_ = json.Unmarshal(e.Commands, &commands)
	}
	if len(commands) == 0 {
		commands = nil
	}

	return core.CaptureEvent{
		Time:       e.Time,
		Castle:     e.Castle,
		Outcome:    core.CaptureOutcome(e.Outcome),
		FactionID:  e.FactionID,
		FactionTag: e.FactionTag,
		HeadID:     e.HeadID.String,
		HeadTag:    e.HeadTag.String,
		Commands:   commands,
	}
}
