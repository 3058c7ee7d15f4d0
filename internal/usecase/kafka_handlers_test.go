package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"VolGuard/internal/domain/models"
	"VolGuard/internal/services/bars"
	pkgkafka "VolGuard/pkg/kafka"
	applogger "VolGuard/pkg/logger"
)

func barsPayload(t *testing.T, key string, in []models.PriceBar) []byte {
	t.Helper()
	b, err := json.Marshal(BarsMessage{SourceReference: key, Bars: bars.ToInputs(in)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestBarsHandler(t *testing.T) {
	f := newVolFixture()
	h := NewKafkaBarsHandler("volguard.bars", f.uc, nopMetrics{}, applogger.NewNop())

	if err := h.Handle(context.Background(), []byte("{not json")); !pkgkafka.IsPermanent(err) {
		t.Fatalf("malformed payload should be dead-lettered without retries, got %v", err)
	}
	if err := h.Handle(context.Background(), barsPayload(t, "uploads/AAA.csv", series("AAA", 40))); err != nil {
		t.Fatalf("foreign keys are a benign skip, got %v", err)
	}
	if got, _ := f.bars.GetLatestBars(context.Background(), "AAA", 100); len(got) != 0 {
		t.Fatalf("skipped message must not store bars")
	}
	if err := h.Handle(context.Background(), barsPayload(t, "market-data/stocks/AAA/a.csv", series("AAA", 10))); err != nil {
		t.Fatalf("insufficient history is a benign skip, got %v", err)
	}
	if err := h.Handle(context.Background(), barsPayload(t, "market-data/stocks/BBB/b.csv", series("BBB", 40))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec, _ := f.vols.GetLatest(context.Background(), "BBB"); rec == nil || rec.SourceReference != "market-data/stocks/BBB/b.csv" {
		t.Fatalf("expected record for BBB, got %+v", rec)
	}
}

func TestBarsHandlerRejectsInvalidSeriesWithoutRetry(t *testing.T) {
	f := newVolFixture()
	h := NewKafkaBarsHandler("volguard.bars", f.uc, nopMetrics{}, applogger.NewNop())

	in := series("CCC", 40)
	in[5].Date = in[4].Date
	err := h.Handle(context.Background(), barsPayload(t, "market-data/stocks/CCC/c.csv", in))
	if !pkgkafka.IsPermanent(err) || !models.IsValidation(err) {
		t.Fatalf("duplicate dates should be a permanent validation error, got %v", err)
	}
	if got, _ := f.bars.GetLatestBars(context.Background(), "CCC", 100); len(got) != 0 {
		t.Fatalf("invalid series must not be stored, got %d bars", len(got))
	}
}

type recordingDispatcher struct {
	mu   sync.Mutex
	runs [][]string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, insts []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runs = append(d.runs, insts)
	return nil
}

func TestUpdatesHandler(t *testing.T) {
	d := &recordingDispatcher{}
	h := NewKafkaUpdatesHandler("volguard.volatility-updates", d, nopMetrics{})

	if err := h.Handle(context.Background(), []byte(`{"instruments":[]}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.Handle(context.Background(), []byte(`{"instruments":["AAA","BBB"],"emitted_at":"2024-01-05T00:00:00Z"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.runs) != 1 || len(d.runs[0]) != 2 {
		t.Fatalf("expected one dispatch with 2 instruments, got %v", d.runs)
	}
}
