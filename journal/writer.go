package journal

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Saver persists a batch of order records.
type Saver interface {
	SaveOrders(ctx context.Context, recs []OrderRecord) error
}

// Writer batches order records in the background so the game loop never
// waits on the database. Records are dropped when the buffer is full.
type Writer struct {
	saver   Saver
	session string

	ch      chan OrderRecord
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Int64

	batch   int
	maxWait time.Duration
}

func NewWriter(saver Saver, session string, buffer int) *Writer {
	if buffer <= 0 {
		buffer = 4096
	}
	w := &Writer{
		saver:   saver,
		session: session,
		ch:      make(chan OrderRecord, buffer),
		batch:   256,
		maxWait: 500 * time.Millisecond,
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Record queues one record. It reports false if the record was dropped.
func (w *Writer) Record(rec OrderRecord) bool {
	if w.closed.Load() {
		return false
	}
	rec.SessionID = w.session
	select {
	case w.ch <- rec:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

func (w *Writer) Dropped() int64 { return w.dropped.Load() }

// Close flushes pending records and stops the writer.
func (w *Writer) Close() {
	w.once.Do(func() {
		w.closed.Store(true)
		close(w.ch)
		w.wg.Wait()
	})
}

func (w *Writer) loop() {
	defer w.wg.Done()

	pending := make([]OrderRecord, 0, w.batch)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.saver.SaveOrders(ctx, pending); err != nil {
			slog.Warn("journal write failed", "records", len(pending), "error", err)
		}
		pending = pending[:0]
	}

	ticker := time.NewTicker(w.maxWait)
	defer ticker.Stop()
	for {
		select {
		case rec, ok := <-w.ch:
			if !ok {
				flush()
				return
			}
			pending = append(pending, rec)
			if len(pending) >= w.batch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
