package core

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/engram-ai/engram-go/pkg/storage"
)

// ledgerWriteTimeout bounds a single ledger flush so a stalled store
// cannot wedge the worker.
const ledgerWriteTimeout = 5 * time.Second

// accessLedger records access events asynchronously.
//
// Retrievals enqueue event batches and return immediately; a single
// worker goroutine drains the queue and writes each batch to the store.
// A full queue drops the batch with a warning rather than blocking the
// read path. Ledger failures are logged, never surfaced to callers.
type accessLedger struct {
	store  storage.Store
	logger *zap.Logger

	queue chan []*storage.AccessEvent
	done  chan struct{}

	// mu guards closed so record never sends on a closed queue.
	mu     sync.Mutex
	closed bool
}

// newAccessLedger creates a ledger with the given queue capacity and
// starts its worker.
func newAccessLedger(store storage.Store, logger *zap.Logger, buffer int) *accessLedger {
	l := &accessLedger{
		store:  store,
		logger: logger,
		queue:  make(chan []*storage.AccessEvent, buffer),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// record enqueues a batch without blocking. Batches that do not fit, or
// that arrive after close, are dropped; the counters those events would
// have bumped simply stay behind.
func (l *accessLedger) record(events []*storage.AccessEvent) {
	if len(events) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		l.logger.Warn("access ledger closed, dropping batch",
			zap.Int("events", len(events)))
		return
	}

	select {
	case l.queue <- events:
	default:
		l.logger.Warn("access ledger queue full, dropping batch",
			zap.Int("events", len(events)))
	}
}

// run drains the queue until the queue is closed, then flushes what
// remains and signals completion.
func (l *accessLedger) run() {
	defer close(l.done)

	for events := range l.queue {
		l.flush(events)
	}
}

// flush writes one batch with a bounded deadline.
func (l *accessLedger) flush(events []*storage.AccessEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), ledgerWriteTimeout)
	defer cancel()

	if err := l.store.RecordAccess(ctx, events); err != nil {
		l.logger.Warn("access ledger write failed",
			zap.Int("events", len(events)),
			zap.Error(err))
	}
}

// close stops accepting batches and waits for the worker to drain the
// queue. Safe to call more than once.
func (l *accessLedger) close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()

	<-l.done
}
