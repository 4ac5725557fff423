// Package monitor periodically snapshots castle and runtime state to status.txt and status sinks.
package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bastionmc/castles/internal/castle"
	"github.com/bastionmc/castles/pkg/core"
)

// StatusFile is written into the configured directory.
const StatusFile = "status.txt"

// CastleStatus is the state of one castle at snapshot time
type CastleStatus struct {
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	Holder       string `json:"holder"`
	Contested    bool   `json:"contested"`
	Participants int    `json:"participants"`
	Walls        int    `json:"walls"`
	// IntactWalls counts walls with strength left.
	IntactWalls int `json:"intactWalls"`
}

// Status is one snapshot of the running service
type Status struct {
	Time            time.Time      `json:"time"`
	Ticks           uint64         `json:"ticks"`
	Online          int            `json:"online"`
	PendingWarps    int            `json:"pendingWarps"`
	QueuedCaptures  int            `json:"queuedCaptures"`
	DroppedCaptures uint64         `json:"droppedCaptures"`
	Castles         []CastleStatus `json:"castles"`
}

// Sink receives every snapshot.
type Sink interface {
	WriteStatus(st Status) error
}

// Backlog is implemented by storage backends that queue writes.
type Backlog interface {
	Pending() int
	Dropped() uint64
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Registry *castle.Registry
	Factions core.FactionRegistry
	// Ticks, Online and PendingWarps are optional counters.
	Ticks        func() uint64
	Online       func() int
	PendingWarps func() int
	Backlog      Backlog
	Sinks        []Sink
	Dir          string
	Interval     time.Duration
	Logger       *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Interval <= 0 {
		deps.Interval = 5 * time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot collects the current status
func (s *Service) Snapshot() Status {
	st := Status{Time: s.deps.Now()}
	if s.deps.Ticks != nil {
		st.Ticks = s.deps.Ticks()
	}
	if s.deps.Online != nil {
		st.Online = s.deps.Online()
	}
	if s.deps.PendingWarps != nil {
		st.PendingWarps = s.deps.PendingWarps()
	}
	if s.deps.Backlog != nil {
		st.QueuedCaptures = s.deps.Backlog.Pending()
		st.DroppedCaptures = s.deps.Backlog.Dropped()
	}

	st.Castles = make([]CastleStatus, 0, s.deps.Registry.Len())
	for _, c := range s.deps.Registry.All() {
		st.Castles = append(st.Castles, s.castleStatus(c))
	}
	return st
}

func (s *Service) castleStatus(c *castle.Castle) CastleStatus {
	holder := s.deps.Factions.Wilderness()
	if f, ok := s.deps.Factions.Faction(c.FactionID()); ok {
		holder = f
	}

	intact := 0
	walls := c.Walls().Walls()
	for _, w := range walls {
		if w.Strength > 0 {
			intact++
		}
	}

	head, contested := c.PreviousHead()
	return CastleStatus{
		Name:         c.Name(),
		Enabled:      c.Enabled(),
		Holder:       holder.Tag,
		Contested:    contested && head.ID != c.FactionID(),
		Participants: len(c.Participants()),
		Walls:        len(walls),
		IntactWalls:  intact,
	}
}

// WriteStatus writes a snapshot to status.txt and every sink
func (s *Service) WriteStatus(st Status) error {
	var errs []error

	if s.deps.Dir != "" {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling status: %w", err)
		}
		if err := os.WriteFile(filepath.Join(s.deps.Dir, StatusFile), append(data, '\n'), 0644); err != nil {
			errs = append(errs, fmt.Errorf("writing status file: %w", err))
		}
	}

	for _, sink := range s.deps.Sinks {
		if err := sink.WriteStatus(st); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.deps.Dir != "" {
		if err := os.MkdirAll(s.deps.Dir, 0755); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("creating status directory: %w", err)
		}
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)

		s.deps.Logger.Debug("Starting status monitor", "interval", s.deps.Interval)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.WriteStatus(s.Snapshot()); err != nil {
					s.deps.Logger.Error("Error writing status", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for the goroutine to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
}
