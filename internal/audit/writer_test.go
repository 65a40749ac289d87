package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	batches [][]*models.AuditEntry
}

func (s *memorySink) CreateBatch(ctx context.Context, entries []*models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, entries)
	return nil
}

func (s *memorySink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestWriter(t *testing.T) {
	t.Run("full batches are written without waiting for the ticker", func(t *testing.T) {
		sink := &memorySink{}
		w := NewWriter(sink, Config{BatchSize: 5, FlushInterval: time.Hour}, nil)
		w.Start()

		for i := 0; i < 5; i++ {
			w.Record(models.AuditEntry{CommunityID: "g1", Reason: "trivial"})
		}

		assert.Eventually(t, func() bool { return sink.total() == 5 }, time.Second, 10*time.Millisecond)
		require.NoError(t, w.Stop(context.Background()))
	})

	t.Run("stop flushes the partial batch", func(t *testing.T) {
		sink := &memorySink{}
		w := NewWriter(sink, Config{BatchSize: 100, FlushInterval: time.Hour}, nil)
		w.Start()

		for i := 0; i < 7; i++ {
			w.Record(models.AuditEntry{CommunityID: "g1", Reason: "duplicate"})
		}

		require.NoError(t, w.Stop(context.Background()))
		assert.Equal(t, 7, sink.total())
	})

	t.Run("record never blocks when the buffer is full", func(t *testing.T) {
		sink := &memorySink{}
		w := NewWriter(sink, Config{BufferSize: 2}, nil)

		done := make(chan struct{})
		go func() {
			for i := 0; i < 10; i++ {
				w.Record(models.AuditEntry{Reason: "gibberish"})
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Record blocked on a full buffer")
		}
	})
}
