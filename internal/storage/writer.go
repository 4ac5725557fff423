package storage

import (
	"sync"

	"github.com/bastionmc/castles/internal/queue"
	"github.com/bastionmc/castles/pkg/core"
	"github.com/rs/zerolog"
)

// maxPendingCaptures bounds the events held while the backend is slow.
const maxPendingCaptures = 10000

// WriterDependencies holds all dependencies for a Writer.
type WriterDependencies struct {
	Backend Backend
	// Snapshot returns the castle set to store. It is called on the writer goroutine.
	Snapshot func() []core.CastleRecord
	Logger   zerolog.Logger
}

// Writer owns every write to a Backend. Callers only enqueue; one goroutine
// records captures and saves castles, so saves never overlap and a slow
// backend never blocks the caller.
type Writer struct {
	deps     WriterDependencies
	captures *queue.Queue[core.CaptureEvent]

	dirtyMu sync.Mutex
	dirty   bool

	wake     chan struct{}
	stopChan chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewWriter creates a Writer. Call Start before use.
func NewWriter(deps WriterDependencies) *Writer {
	return &Writer{
		deps:     deps,
		captures: queue.NewBounded[core.CaptureEvent](maxPendingCaptures),
		wake:     make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the write loop.
func (w *Writer) Start() {
	go w.writeLoop()
}

// RequestSave marks the castle set dirty. Requests made before the loop
// gets to them collapse into one save.
func (w *Writer) RequestSave() {
	w.dirtyMu.Lock()
	w.dirty = true
	w.dirtyMu.Unlock()
	w.signal()
}

// CaptureResolved queues the event and a castle save.
func (w *Writer) CaptureResolved(ev core.CaptureEvent) {
	w.captures.Push(ev)
	w.RequestSave()
}

// Pending returns the number of capture events not yet handed to the backend.
func (w *Writer) Pending() int {
	return w.captures.Len()
}

// Dropped returns how many capture events were discarded because the queue overflowed.
func (w *Writer) Dropped() uint64 {
	return w.captures.Dropped()
}

// Close stops the loop and writes whatever is still pending.
func (w *Writer) Close() {
	w.once.Do(func() {
		close(w.stopChan)
		<-w.done
		w.flush()
	})
}

func (w *Writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Writer) writeLoop() {
	defer close(w.done)

	for {
		select {
		case <-w.stopChan:
			return
		case <-w.wake:
			w.flush()
		}
	}
}

// flush records queued captures then saves the castles once if anything asked for it.
func (w *Writer) flush() {
	for _, ev := range w.captures.GetAndEmpty() {
		if err := w.deps.Backend.RecordCapture(ev); err != nil {
			w.deps.Logger.Error().Err(err).Str("castle", ev.Castle).Msg("Failed to record capture")
		}
	}

	w.dirtyMu.Lock()
	dirty := w.dirty
	w.dirty = false
	w.dirtyMu.Unlock()
	if !dirty {
		return
	}

	if err := w.deps.Backend.SaveCastles(w.deps.Snapshot()); err != nil {
		w.deps.Logger.Error().Err(err).Msg("Failed to save castles")
	}
}
