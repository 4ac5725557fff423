// Package convert provides functions to convert between GORM models and core records
package convert

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/bastionmc/castles/internal/model"
	"github.com/bastionmc/castles/pkg/core"
	"gorm.io/datatypes"
)

// commandsToJSON converts a []string to datatypes.JSON for DB storage.
func commandsToJSON(commands []string) datatypes.JSON {
	if len(commands) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(commands)
	return datatypes.JSON(data)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CoreToCastle converts a core.CastleRecord to a GORM model.Castle with its walls.
func CoreToCastle(r core.CastleRecord) model.Castle {
	var warp datatypes.JSON
	if r.Warp != nil {
		warp, _ = json.Marshal(r.Warp)
	}

	walls := make([]model.Wall, 0, len(r.Walls))
	for _, w := range r.Walls {
		walls = append(walls, CoreToWall(w))
	}

	return model.Castle{
		Name:            r.Name,
		World:           r.Region.World(),
		MinX:            r.Region.Min.X,
		MinY:            r.Region.Min.Y,
		MinZ:            r.Region.Min.Z,
		MaxX:            r.Region.Max.X,
		MaxY:            r.Region.Max.Y,
		MaxZ:            r.Region.Max.Z,
		Walls:           walls,
		CaptureDuration: r.CaptureDuration.Milliseconds(),
		RewardType:      r.RewardType,
		Warp:            warp,
		Enabled:         r.Enabled,
		FactionID:       r.FactionID,
	}
}

// CoreToWall converts a core.WallRecord to a GORM model.Wall.
func CoreToWall(w core.WallRecord) model.Wall {
	return model.Wall{
		World:    w.Position.World,
		X:        w.Position.X,
		Y:        w.Position.Y,
		Z:        w.Position.Z,
		Material: string(w.Material),
	}
}

// CoreToCaptureEvent converts a core.CaptureEvent to a GORM model.CaptureEvent.
func CoreToCaptureEvent(e core.CaptureEvent) model.CaptureEvent {
	return model.CaptureEvent{
		Time:       e.Time.UTC().Truncate(time.Millisecond),
		Castle:     e.Castle,
		Outcome:    string(e.Outcome),
		FactionID:  e.FactionID,
		FactionTag: e.FactionTag,
		HeadID:     nullString(e.HeadID),
		HeadTag:    nullString(e.HeadTag),
		Commands:   commandsToJSON(e.Commands),
	}
}
