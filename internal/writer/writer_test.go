package writer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consorcio_bot/internal/core"
)

// batchStore records every flushed batch and can fail a configurable
// number of flushes.
type batchStore struct {
	mu       sync.Mutex
	batches  [][]core.StoredMessage
	failNext int
}

func (s *batchStore) FindLead(ctx context.Context, number string) (*core.LeadRecord, error) {
	return nil, nil
}

func (s *batchStore) UpsertLead(ctx context.Context, lead *core.LeadRecord) error {
	return nil
}

func (s *batchStore) ListRecentMessages(ctx context.Context, number string, limit int) ([]core.StoredMessage, error) {
	return nil, nil
}

func (s *batchStore) InsertMessages(ctx context.Context, batch []core.StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return errors.New("store unreachable")
	}
	copied := make([]core.StoredMessage, len(batch))
	copy(copied, batch)
	s.batches = append(s.batches, copied)
	return nil
}

func (s *batchStore) snapshot() [][]core.StoredMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]core.StoredMessage, len(s.batches))
	copy(out, s.batches)
	return out
}

func (s *batchStore) totalRows() int {
	total := 0
	for _, b := range s.snapshot() {
		total += len(b)
	}
	return total
}

func TestBatching(t *testing.T) {
	store := &batchStore{}
	w := New(store, Config{
		BatchSize:    10,
		BatchTimeout: 50 * time.Millisecond,
	})

	// Enqueue before starting so the consumer sees a full backlog and the
	// batch split is deterministic.
	for i := 0; i < 25; i++ {
		w.QueueWrite("5511999999999", core.RoleUser, fmt.Sprintf("msg %d", i))
	}
	w.Start()
	w.Close()

	batches := store.snapshot()
	assert.LessOrEqual(t, len(batches), 3)
	for _, batch := range batches {
		assert.LessOrEqual(t, len(batch), 10)
	}
	assert.Equal(t, 25, store.totalRows())
	assert.Equal(t, int64(25), w.Flushed())

	// FIFO order survives batching.
	var all []core.StoredMessage
	for _, batch := range batches {
		all = append(all, batch...)
	}
	for i, msg := range all {
		assert.Equal(t, fmt.Sprintf("msg %d", i), msg.Content)
	}
}

func TestFailedBatchIsDropped(t *testing.T) {
	store := &batchStore{failNext: 1}
	w := New(store, Config{
		BatchSize:    10,
		BatchTimeout: 20 * time.Millisecond,
	})

	for i := 0; i < 10; i++ {
		w.QueueWrite("5511999999999", core.RoleUser, "lost")
	}
	w.Start()

	// First batch fails and is dropped; the consumer keeps going.
	require.Eventually(t, func() bool {
		return w.Depth() == 0
	}, time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		w.QueueWrite("5511999999999", core.RoleAssistant, "kept")
	}
	w.Close()

	assert.Equal(t, 3, store.totalRows())
	for _, batch := range store.snapshot() {
		for _, msg := range batch {
			assert.Equal(t, "kept", msg.Content)
		}
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	store := &batchStore{}
	w := New(store, Config{
		BatchSize:    4,
		BatchTimeout: 10 * time.Millisecond,
	})
	w.Start()

	for i := 0; i < 11; i++ {
		w.QueueWrite("5511999999999", core.RoleUser, "pending")
	}
	w.Close()

	assert.Equal(t, 11, store.totalRows())

	// Close is safe to repeat, and intake after close only counts drops.
	w.Close()
	w.QueueWrite("5511999999999", core.RoleUser, "late")
	assert.Equal(t, int64(1), w.Dropped())
	assert.Equal(t, 11, store.totalRows())
}

func TestQueueFullDropsWrites(t *testing.T) {
	store := &batchStore{}
	w := New(store, Config{
		BatchSize:     10,
		BatchTimeout:  10 * time.Millisecond,
		QueueCapacity: 2,
	})

	// Consumer not started: the buffer fills and overflow is dropped.
	for i := 0; i < 5; i++ {
		w.QueueWrite("5511999999999", core.RoleUser, "burst")
	}
	assert.Equal(t, int64(3), w.Dropped())
	assert.Equal(t, 2, w.Depth())

	w.Start()
	w.Close()
	assert.Equal(t, 2, store.totalRows())
}
