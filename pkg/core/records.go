// pkg/core/records.go
package core

import "time"

// CastleRecord is the persisted part of a castle. Contest state and wall strength are not included.
type CastleRecord struct {
	Name            string        `json:"name"`
	Region          Region        `json:"region"`
	Walls           []WallRecord  `json:"walls"`
	CaptureDuration time.Duration `json:"captureDuration"`
	RewardType      string        `json:"rewardType"`
	Warp            *Position     `json:"warp,omitempty"`
	Enabled         bool          `json:"enabled"`
	FactionID       string        `json:"faction"`
}

// WallRecord is the persisted part of a wall.
type WallRecord struct {
	Position Position `json:"position"`
	Material Material `json:"material"`
}

// CaptureOutcome is the result of a resolved contest.
type CaptureOutcome string

const (
	OutcomeCaptured    CaptureOutcome = "captured"
	OutcomeNeutralized CaptureOutcome = "neutralized"
	// OutcomeDisabled is a forced loss caused by disabling an owned castle.
	OutcomeDisabled CaptureOutcome = "disabled"
)

// CaptureEvent describes a resolution of a castle contest.
type CaptureEvent struct {
	Time       time.Time
	Castle     string
	Outcome    CaptureOutcome
	FactionID  string // faction that won or lost ownership
	FactionTag string
	HeadID     string // contest head that caused the resolution, empty for disabled
	HeadTag    string
	Commands   []string
}
