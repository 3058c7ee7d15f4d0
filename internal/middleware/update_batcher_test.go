package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	applogger "VolGuard/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordMessageSent(string, string) {}
func (nopMetrics) RecordError(string) {}
func (nopMetrics) RecordVolatility(string, float64) {}
func (nopMetrics) RecordOutcome(string, string) {}
func (nopMetrics) RecordLatency(string, float64) {}

type recordingFlusher struct {
	mu    sync.Mutex
	runs     [][]string
	fails    int
	attempts int
}

func (f *recordingFlusher) Dispatch(_ context.Context, insts []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.fails > 0 {
		f.fails--
		return errors.New("directory unavailable")
	}
	f.runs = append(f.runs, insts)
	return nil
}

func (f *recordingFlusher) attempted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *recordingFlusher) snapshot() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.runs...)
}

func TestBatcherCoalescesOnStop(t *testing.T) {
	f := &recordingFlusher{}
	b := NewUpdateBatcher(f, nopMetrics{}, applogger.NewNop(), WithFlushInterval(time.Hour))
	b.Start(context.Background())

	for _, insts := range [][]string{{"AAA"}, {"BBB", "AAA"}, {"CCC"}} {
		if err := b.Dispatch(context.Background(), insts); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}
	b.Stop()

	runs := f.snapshot()
	if len(runs) != 1 {
		t.Fatalf("expected one coalesced run, got %v", runs)
	}
	if got := runs[0]; len(got) != 3 || got[0] != "AAA" || got[2] != "CCC" {
		t.Fatalf("unexpected instruments %v", got)
	}
}

func TestBatcherFlushesAtMaxBatch(t *testing.T) {
	f := &recordingFlusher{}
	b := NewUpdateBatcher(f, nopMetrics{}, applogger.NewNop(), WithFlushInterval(time.Hour), WithMaxBatch(2))
	b.Start(context.Background())
	defer b.Stop()

	_ = b.Dispatch(context.Background(), []string{"AAA", "BBB"})
	deadline := time.Now().Add(2 * time.Second)
	for len(f.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected an early flush")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBatcherRetriesFailedRun(t *testing.T) {
	f := &recordingFlusher{fails: 1}
	b := NewUpdateBatcher(f, nopMetrics{}, applogger.NewNop(), WithFlushInterval(10*time.Millisecond))
	b.Start(context.Background())
	defer b.Stop()

	_ = b.Dispatch(context.Background(), []string{"AAA"})
	deadline := time.Now().Add(2 * time.Second)
	for len(f.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("failed run was not retried")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if runs := f.snapshot(); runs[0][0] != "AAA" {
		t.Fatalf("unexpected run %v", runs)
	}
}

func TestBatcherBufferFull(t *testing.T) {
	b := NewUpdateBatcher(&recordingFlusher{}, nopMetrics{}, applogger.NewNop(), WithBufferSize(1))
	_ = b.Dispatch(context.Background(), []string{"AAA"})
	if err := b.Dispatch(context.Background(), []string{"BBB"}); !errors.Is(err, ErrBatcherFull) {
		t.Fatalf("expected ErrBatcherFull, got %v", err)
	}
}

func TestBatcherWaitsForTickAfterFailedSizeFlush(t *testing.T) {
	f := &recordingFlusher{fails: 100}
	b := NewUpdateBatcher(f, nopMetrics{}, applogger.NewNop(), WithFlushInterval(time.Hour), WithMaxBatch(1))
	b.Start(context.Background())
	defer b.Stop()

	_ = b.Dispatch(context.Background(), []string{"AAA"})
	deadline := time.Now().Add(2 * time.Second)
	for f.attempted() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected a size flush")
		}
		time.Sleep(5 * time.Millisecond)
	}

	for _, s := range []string{"BBB", "CCC", "DDD"} {
		_ = b.Dispatch(context.Background(), []string{s})
	}
	deadline = time.Now().Add(2 * time.Second)
	for len(b.inCh) > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("intake not drained")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if n := f.attempted(); n != 1 {
		t.Fatalf("expected no size flush before the next tick, got %d attempts", n)
	}
}
