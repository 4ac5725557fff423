// Package memory keeps castles in memory and persists them as JSON files.
package memory

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bastionmc/castles/internal/config"
	"github.com/bastionmc/castles/pkg/core"
)

const (
	castlesFile  = "castles.json"
	capturesFile = "captures.jsonl"
)

// castlesDocument is the root JSON structure of castles.json
type castlesDocument struct {
	Version int                 `json:"version"`
	Castles []core.CastleRecord `json:"castles"`
}

// Backend stores castles in memory and writes them to castles.json on save
type Backend struct {
	cfg config.MemoryConfig

	castles  []core.CastleRecord
	captures []core.CaptureEvent
	history  *os.File

	mu sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init creates the output directory, loads castles.json and the capture history, and
// opens the history file for appending.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	castles, err := readCastles(b.path(castlesFile))
	if err != nil {
		return err
	}
	b.castles = castles

	captures, err := readCaptures(b.path(capturesFile))
	if err != nil {
		return err
	}
	b.captures = captures

	f, err := os.OpenFile(b.path(capturesFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open capture history: %w", err)
	}
	b.history = f
	return nil
}

// Close closes the capture history file
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.history == nil {
		return nil
	}
	err := b.history.Close()
	b.history = nil
	return err
}

// LoadCastles returns the stored castles
func (b *Backend) LoadCastles() ([]core.CastleRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.CastleRecord(nil), b.castles...), nil
}

// SaveCastles replaces the stored castles and rewrites castles.json
func (b *Backend) SaveCastles(records []core.CastleRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.castles = append([]core.CastleRecord(nil), records...)
	if b.cfg.OutputDir == "" {
		return nil
	}
	return writeCastles(b.path(castlesFile), b.castles)
}

// RecordCapture appends a capture event to the history
func (b *Backend) RecordCapture(ev core.CaptureEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.captures = append(b.captures, ev)
	if b.history == nil {
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal capture event: %w", err)
	}
	if _, err := b.history.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write capture event: %w", err)
	}
	return nil
}

// Captures returns the newest capture events for a castle, newest first
func (b *Backend) Captures(castle string, limit int) ([]core.CaptureEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.CaptureEvent
	for i := len(b.captures) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		ev := b.captures[i]
		if castle == "" || strings.EqualFold(ev.Castle, castle) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (b *Backend) path(name string) string {
	return filepath.Join(b.cfg.OutputDir, name)
}

func readCastles(path string) ([]core.CastleRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", castlesFile, err)
	}

	var doc castlesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", castlesFile, err)
	}
	return doc.Castles, nil
}

// writeCastles writes to a temporary file first so a failed write keeps the previous file.
func writeCastles(path string, castles []core.CastleRecord) error {
	if castles == nil {
		castles = []core.CastleRecord{}
	}
	data, err := json.MarshalIndent(castlesDocument{Version: 1, Castles: castles}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal castles: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write castles: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace castles file: %w", err)
	}
	return nil
}

func readCaptures(path string) ([]core.CaptureEvent, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open capture history: %w", err)
	}
	defer f.Close()

	var out []core.CaptureEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev core.CaptureEvent
		// a torn last line from a crash is skipped
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read capture history: %w", err)
	}
	return out, nil
}
