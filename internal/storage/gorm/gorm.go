// Package gormstorage implements the storage.Backend interface using GORM.
// Castles are written synchronously; capture history goes through an internal queue
// drained by a background writer goroutine.
package gormstorage

import (
	"fmt"
	"sync"
	"time"

	"github.com/bastionmc/castles/internal/model"
	"github.com/bastionmc/castles/internal/model/convert"
	"github.com/bastionmc/castles/internal/queue"
	"github.com/bastionmc/castles/pkg/core"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	defaultFlushInterval = 2 * time.Second
	// maxQueuedCaptures bounds the history kept in memory while the database is unreachable.
	maxQueuedCaptures = 10000
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger zerolog.Logger
	// FlushInterval is how often queued capture events are written. Defaults to 2s.
	FlushInterval time.Duration
}

// Backend implements storage.Backend using GORM with a queued capture-history writer.
type Backend struct {
	deps     Dependencies
	captures *queue.Queue[model.CaptureEvent]

	writeMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	return &Backend{
		deps:     deps,
		captures: queue.NewBounded[model.CaptureEvent](maxQueuedCaptures),
	}
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("no database configured")
	}
	if err := b.deps.DB.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the DB writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	<-b.done
	b.stopChan = nil
	return b.flush()
}

// LoadCastles reads every castle with its walls.
func (b *Backend) LoadCastles() ([]core.CastleRecord, error) {
	var castles []model.Castle
	err := b.deps.DB.Preload("Walls", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).Order("id").Find(&castles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load castles: %w", err)
	}

	out := make([]core.CastleRecord, 0, len(castles))
	for _, c := range castles {
		out = append(out, convert.CastleToCore(c))
	}
	return out, nil
}

// SaveCastles replaces the stored castles and walls in one transaction.
func (b *Backend) SaveCastles(records []core.CastleRecord) error {
	castles := make([]model.Castle, 0, len(records))
	for _, r := range records {
		castles = append(castles, convert.CoreToCastle(r))
	}

	err := b.deps.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("1 = 1").Delete(&model.Wall{}).Error; err != nil {
			return fmt.Errorf("clearing walls: %w", err)
		}
		if err := tx.Unscoped().Where("1 = 1").Delete(&model.Castle{}).Error; err != nil {
			return fmt.Errorf("clearing castles: %w", err)
		}
		if len(castles) == 0 {
			return nil
		}
		if err := tx.Create(&castles).Error; err != nil {
			return fmt.Errorf("inserting castles: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save castles: %w", err)
	}
	return nil
}

// RecordCapture converts and queues a capture event.
func (b *Backend) RecordCapture(ev core.CaptureEvent) error {
	b.captures.Push(convert.CoreToCaptureEvent(ev))
	return nil
}

// Captures returns the newest capture events for a castle, newest first.
// Queued events are written before reading.
func (b *Backend) Captures(castle string, limit int) ([]core.CaptureEvent, error) {
	if err := b.flush(); err != nil {
		return nil, err
	}

	q := b.deps.DB.Model(&model.CaptureEvent{}).Order("time desc").Order("id desc")
	if castle != "" {
		q = q.Where("LOWER(castle) = LOWER(?)", castle)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []model.CaptureEvent
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read capture history: %w", err)
	}

	out := make([]core.CaptureEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.CaptureEventToCore(r))
	}
	return out, nil
}

// Pending returns the number of capture events waiting to be written.
func (b *Backend) Pending() int {
	return b.captures.Len()
}

func (b *Backend) writeLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.flush(); err != nil {
				b.deps.Logger.Error().Err(err).Msg("Error writing capture events")
			}
		}
	}
}

// Dropped returns how many capture events were discarded because the queue overflowed.
func (b *Backend) Dropped() uint64 {
	return b.captures.Dropped()
}

// flush writes all queued capture events in a transaction. On failure they are requeued.
func (b *Backend) flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return writeQueue(b.deps.DB, b.captures, "capture events", b.deps.Logger)
}

// writeQueue writes all items from a queue to the database in a transaction.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log zerolog.Logger) error {
	if q.Empty() {
		return nil
	}

	start := time.Now()
	items := q.GetAndEmpty()
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		tx.Rollback()
		q.Requeue(items...)
		return fmt.Errorf("error creating %s: %w", name, err)
	}
	if err := tx.Commit().Error; err != nil {
		q.Requeue(items...)
		return fmt.Errorf("error committing %s: %w", name, err)
	}

	log.Debug().Int("count", len(items)).Str("table", name).Dur("duration", time.Since(start)).Msg("Wrote queued rows")
	return nil
}
