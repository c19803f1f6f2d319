// Package writer decouples durable persistence of conversation messages
// from the synchronous webhook path: enqueues are non-blocking and a single
// background consumer flushes batches to the persistent store.
package writer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"consorcio_bot/internal/core"
	"consorcio_bot/internal/logger"
)

// Config holds the write-behind tunables.
type Config struct {
	// BatchSize is the maximum rows flushed in one transaction.
	BatchSize int
	// BatchTimeout bounds the wait for each additional item while a batch
	// is being drained.
	BatchTimeout time.Duration
	// QueueCapacity bounds the pending-write buffer. When full, new writes
	// are dropped and counted rather than blocking the hot path.
	QueueCapacity int
	// FlushTimeout bounds each store transaction.
	FlushTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 5 * time.Second
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 4096
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 30 * time.Second
	}
}

// Writer is the write-behind queue plus its background consumer.
type Writer struct {
	store core.LeadStore
	cfg   Config

	queue chan core.StoredMessage
	done  chan struct{}

	mu      sync.RWMutex
	closed  bool
	started bool

	dropped atomic.Int64
	flushed atomic.Int64
}

// New creates a Writer over the given store. Call Start to launch the
// consumer and Close to drain and stop it.
func New(store core.LeadStore, cfg Config) *Writer {
	cfg.applyDefaults()
	return &Writer{
		store: store,
		cfg:   cfg,
		queue: make(chan core.StoredMessage, cfg.QueueCapacity),
		done:  make(chan struct{}),
	}
}

// Start launches the background consumer. Idempotent.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true
	go w.run()
}

// QueueWrite appends a pending durable write. Never blocks: when the queue
// is full or the writer is closed the record is dropped and counted.
func (w *Writer) QueueWrite(whatsappNumber, role, content string) {
	msg := core.StoredMessage{
		WhatsAppNumber: whatsappNumber,
		Role:           role,
		Content:        content,
		Timestamp:      time.Now(),
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		logger.Warn().Str("whatsapp_number", whatsappNumber).Msg("Writer closed, dropping message")
		return
	}
	select {
	case w.queue <- msg:
	default:
		w.dropped.Add(1)
		logger.Warn().Str("whatsapp_number", whatsappNumber).Int("capacity", w.cfg.QueueCapacity).Msg("Write queue full, dropping message")
	}
}

// Close stops intake, drains everything already queued and waits for the
// final flush. Safe to call more than once.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	started := w.started
	w.mu.Unlock()

	if started {
		<-w.done
	}
}

// Depth reports the number of queued pending writes.
func (w *Writer) Depth() int {
	return len(w.queue)
}

// Dropped reports how many writes were discarded because the queue was full
// or closed.
func (w *Writer) Dropped() int64 {
	return w.dropped.Load()
}

// Flushed reports how many rows reached the persistent store.
func (w *Writer) Flushed() int64 {
	return w.flushed.Load()
}

func (w *Writer) run() {
	defer close(w.done)
	for w.cycle() {
	}
}

// cycle collects and flushes one batch. Returns false once the queue is
// closed and fully drained. A panic anywhere in the cycle is logged and
// followed by a short pause so a persistent fault cannot spin the consumer.
func (w *Writer) cycle() (again bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Write-behind cycle panicked")
			time.Sleep(time.Second)
			again = true
		}
	}()

	// Block until at least one item is available.
	first, ok := <-w.queue
	if !ok {
		return false
	}

	batch := make([]core.StoredMessage, 0, w.cfg.BatchSize)
	batch = append(batch, first)

	// Opportunistically drain more items, each with a bounded wait.
	timer := time.NewTimer(w.cfg.BatchTimeout)
	defer timer.Stop()
	for len(batch) < w.cfg.BatchSize {
		select {
		case msg, ok := <-w.queue:
			if !ok {
				w.flush(batch)
				return false
			}
			batch = append(batch, msg)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.cfg.BatchTimeout)
		case <-timer.C:
			w.flush(batch)
			return true
		}
	}

	w.flush(batch)
	return true
}

// flush writes one batch in a single transaction. A failed batch is dropped
// after logging: the design accepts this bounded data-loss window rather
// than blocking or retrying on the consumer.
func (w *Writer) flush(batch []core.StoredMessage) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.FlushTimeout)
	defer cancel()

	if err := w.store.InsertMessages(ctx, batch); err != nil {
		logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to flush message batch, dropping")
		return
	}
	w.flushed.Add(int64(len(batch)))
	logger.Debug().Int("batch_size", len(batch)).Msg("Message batch flushed")
}
