package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/metrics"
	"github.com/aman-churiwal/chat-admission/internal/models"
)

type BatchInserter interface {
	CreateBatch(ctx context.Context, entries []*models.AuditEntry) error
}

type Config struct {
	BufferSize    int           // Default: 1000
	BatchSize     int           // Default: 100
	FlushInterval time.Duration // Default: 5s
}

// Writer appends locally rejected requests to the audit table in batches.
// Record never blocks; when the buffer is full the entry is dropped.
type Writer struct {
	sink     BatchInserter
	entries  chan *models.AuditEntry
	batch    int
	interval time.Duration
	logger   *slog.Logger

	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}
}

func NewWriter(sink BatchInserter, cfg Config, logger *slog.Logger) *Writer {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		sink:     sink,
		entries:  make(chan *models.AuditEntry, cfg.BufferSize),
		batch:    cfg.BatchSize,
		interval: cfg.FlushInterval,
		logger:   logger.With("component", "audit"),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start runs the background batching worker
func (w *Writer) Start() {
	go w.run()
}

func (w *Writer) Record(entry models.AuditEntry) {
	select {
	case w.entries <- &entry:
	default:
		metrics.AuditDropped.Inc()
		w.logger.Warn("audit buffer full, dropping entry", "community_id", entry.CommunityID, "reason", entry.Reason)
	}
}

// Stop flushes buffered entries and waits for the worker to exit
func (w *Writer) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.done) })

	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) run() {
	defer close(w.stopped)

	batch := make([]*models.AuditEntry, 0, w.batch)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-w.entries:
			batch = append(batch, entry)
			if len(batch) >= w.batch {
				w.insert(batch)
				batch = make([]*models.AuditEntry, 0, w.batch)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.insert(batch)
				batch = make([]*models.AuditEntry, 0, w.batch)
			}
		case <-w.done:
			for {
				select {
				case entry := <-w.entries:
					batch = append(batch, entry)
				default:
					w.insert(batch)
					return
				}
			}
		}
	}
}

func (w *Writer) insert(batch []*models.AuditEntry) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.sink.CreateBatch(ctx, batch); err != nil {
		w.logger.Error("failed to insert audit entries", "count", len(batch), "error", err)
	}
}
