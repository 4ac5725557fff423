package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Castle{},
	&Wall{},
	&CaptureEvent{},
}

////////////////////////
// CASTLE MODELS
////////////////////////

// Castle is the persisted configuration of a castle
type Castle struct {
	gorm.Model
	Name            string `json:"name" gorm:"size:64;uniqueIndex"`
	World           string `json:"world" gorm:"size:127"`
	MinX            int    `json:"minX"`
	MinY            int    `json:"minY"`
	MinZ            int    `json:"minZ"`
	MaxX            int    `json:"maxX"`
	MaxY            int    `json:"maxY"`
	MaxZ            int    `json:"maxZ"`
	Walls           []Wall `json:"walls" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:CastleID;"`
	CaptureDuration int64  `json:"captureDurationMs"`
	RewardType      string `json:"rewardType" gorm:"size:64"`
	// Warp is NULL when no warp destination is set.
	Warp      datatypes.JSON `json:"warp"`
	Enabled   bool           `json:"enabled"`
	FactionID string         `json:"factionId" gorm:"size:64"`
}

func (*Castle) TableName() string {
	return "castles"
}

// Wall is a tracked wall block of a castle
type Wall struct {
	ID       uint   `json:"id" gorm:"primarykey"`
	CastleID uint   `json:"castleId" gorm:"index:idx_wall_castle_id"`
	World    string `json:"world" gorm:"size:127"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Z        int    `json:"z"`
	Material string `json:"material" gorm:"size:64"`
}

func (*Wall) TableName() string {
	return "walls"
}

// CaptureEvent is one resolved contest
type CaptureEvent struct {
	ID         uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time       time.Time      `json:"time" gorm:"index:idx_capture_time"`
	Castle     string         `json:"castle" gorm:"size:64;index:idx_capture_castle"`
	Outcome    string         `json:"outcome" gorm:"size:16"`
	FactionID  string         `json:"factionId" gorm:"size:64"`
	FactionTag string         `json:"factionTag" gorm:"size:64"`
	HeadID     sql.NullString `json:"headId" gorm:"size:64"`
	HeadTag    sql.NullString `json:"headTag" gorm:"size:64"`
	Commands   datatypes.JSON `json:"commands"`
}

func (*CaptureEvent) TableName() string {
	return "capture_events"
}
