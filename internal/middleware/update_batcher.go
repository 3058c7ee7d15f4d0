package middleware

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	domrepo "VolGuard/internal/domain/repository"
	applogger "VolGuard/pkg/logger"
)

// ErrBatcherFull is returned when the intake buffer cannot take more updates.
var ErrBatcherFull = errors.New("update batcher buffer full")

// Flusher runs one fan-out for a set of instruments.
type Flusher interface {
	Dispatch(ctx context.Context, instruments []string) error
}

// UpdateBatcher sits between the update consumer and the risk fan-out.
// It coalesces instruments arriving within a window into one run, so a client
// holding several refreshed instruments is evaluated once per window.
type UpdateBatcher struct {
	flusher  Flusher
	metrics  domrepo.Metrics
	l        *applogger.Logger
	interval time.Duration
	maxBatch int
	bufSize  int
	inCh     chan []string
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
}

type BatcherOption func(*UpdateBatcher)

// WithFlushInterval sets how long updates are coalesced before a run.
func WithFlushInterval(d time.Duration) BatcherOption {
	return func(b *UpdateBatcher) {
		if d > 0 {
			b.interval = d
		}
	}
}

// WithMaxBatch flushes early once this many distinct instruments are pending.
func WithMaxBatch(n int) BatcherOption {
	return func(b *UpdateBatcher) {
		if n > 0 {
			b.maxBatch = n
		}
	}
}

// WithBufferSize sets the intake buffer size.
func WithBufferSize(n int) BatcherOption {
	return func(b *UpdateBatcher) {
		if n > 0 {
			b.bufSize = n
		}
	}
}

func NewUpdateBatcher(flusher Flusher, metrics domrepo.Metrics, l *applogger.Logger, opts ...BatcherOption) *UpdateBatcher {
	b := &UpdateBatcher{
		flusher:  flusher,
		metrics:  metrics,
		l:        l,
		interval: 2 * time.Second,
		maxBatch: 256,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.inCh = make(chan []string, b.bufSize)
	return b
}

// Dispatch enqueues instruments without blocking.
func (b *UpdateBatcher) Dispatch(_ context.Context, instruments []string) error {
	if len(instruments) == 0 {
		return nil
	}
	select {
	case b.inCh <- instruments:
		b.metrics.RecordLatency("batcher_buffer_depth", float64(len(b.inCh)))
		return nil
	default:
		b.metrics.RecordError("batcher_buffer_full")
		return ErrBatcherFull
	}
}

// Start launches the background flush loop.
func (b *UpdateBatcher) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	go b.loop(ctx)
}

// Stop flushes what is pending and waits for the loop to exit.
func (b *UpdateBatcher) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	b.mu.Unlock()
	close(b.stopCh)
	<-b.doneCh
}

func (b *UpdateBatcher) loop(ctx context.Context) {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	pending := make(map[string]struct{})
	// after a failed run, size triggers wait for the next tick
	backoff := false
	for {
		select {
		case insts := <-b.inCh:
			for _, s := range insts {
				pending[s] = struct{}{}
			}
			if len(pending) >= b.maxBatch && !backoff {
				pending, backoff = b.flush(ctx, pending)
			}
		case <-ticker.C:
			if len(pending) > 0 {
				pending, backoff = b.flush(ctx, pending)
			}
		case <-b.stopCh:
			b.drain(pending)
			if len(pending) > 0 {
				b.flush(context.WithoutCancel(ctx), pending)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *UpdateBatcher) drain(pending map[string]struct{}) {
	for {
		select {
		case insts := <-b.inCh:
			for _, s := range insts {
				pending[s] = struct{}{}
			}
		default:
			return
		}
	}
}

// flush runs the fan-out and returns the set to keep pending and whether the
// run failed. A failed run is retried on the next tick with its instruments
// merged into later arrivals.
func (b *UpdateBatcher) flush(ctx context.Context, pending map[string]struct{}) (map[string]struct{}, bool) {
	insts := make([]string, 0, len(pending))
	for s := range pending {
		insts = append(insts, s)
	}
	sort.Strings(insts)

	start := time.Now()
	if err := b.flusher.Dispatch(ctx, insts); err != nil {
		b.metrics.RecordError("batcher_flush")
		b.l.Error("fan-out run failed, keeping instruments pending",
			applogger.Strings("instruments", insts),
			applogger.Error(err),
		)
		return pending, true
	}
	b.metrics.RecordLatency("batcher_flush_seconds", time.Since(start).Seconds())
	return make(map[string]struct{}), false
}
