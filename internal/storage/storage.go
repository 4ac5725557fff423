// Package storage defines the persistence boundary for castles and capture history.
package storage

import "github.com/bastionmc/castles/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Castle configuration. SaveCastles replaces the whole stored set.
	LoadCastles() ([]core.CastleRecord, error)
	SaveCastles(records []core.CastleRecord) error

	// History
	RecordCapture(ev core.CaptureEvent) error
}

// History is an optional interface for backends that can read capture history back.
type History interface {
	// Captures returns the newest events for a castle, newest first. An empty name matches every castle.
	Captures(castle string, limit int) ([]core.CaptureEvent, error)
}
