package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"VolGuard/internal/domain/models"
	"VolGuard/internal/services/analytics"
	"VolGuard/internal/services/bars"
	applogger "VolGuard/pkg/logger"
)

type volFixture struct {
	bars *memBars
	vols *memVols
	pub  *recordingPublisher
	uc   *VolatilityUseCase
}

func newVolFixture() volFixture {
	f := volFixture{bars: &memBars{}, vols: newMemVols(nil), pub: &recordingPublisher{}}
	f.uc = NewVolatilityUseCase(f.bars, f.vols, f.pub, analytics.NewHistoricalEstimator(),
		nopMetrics{}, applogger.NewNop(), 120, "^GSPC")
	f.uc.now = func() time.Time { return time.Unix(1704412800, 0) }
	return f
}

func TestIngestWritesRecordAndPublishes(t *testing.T) {
	f := newVolFixture()
	in := series("AAA", 40)

	rec, err := f.uc.Ingest(context.Background(), bars.KindStock, in, "market-data/stocks/AAA/AAA.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil || rec.Instrument != "AAA" || rec.PredictedVolatility <= 0 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.Date.Equal(in[len(in)-1].Date) {
		t.Fatalf("record date should be the last bar date, got %v", rec.Date)
	}
	stored, _ := f.vols.GetLatest(context.Background(), "AAA")
	if stored == nil || stored.PredictedVolatility != rec.PredictedVolatility {
		t.Fatalf("record not stored: %+v", stored)
	}
	if len(f.pub.updates) != 1 || f.pub.updates[0].Instruments[0] != "AAA" {
		t.Fatalf("expected one update for AAA, got %+v", f.pub.updates)
	}

	want, _ := analytics.NewHistoricalEstimator().Estimate(context.Background(), in, nil)
	if rec.PredictedVolatility != want {
		t.Fatalf("expected %v, got %v", want, rec.PredictedVolatility)
	}

	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var wire map[string]string
	if err := json.Unmarshal(b, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if wire["date"] != "09.02.2024" || wire["computed_at"] != "1704412800" {
		t.Fatalf("unexpected wire form %s", b)
	}
}

func TestIngestInsufficientHistory(t *testing.T) {
	f := newVolFixture()
	_, err := f.uc.Ingest(context.Background(), bars.KindStock, series("AAA", 20), "")
	var ie *models.InsufficientDataError
	if !errors.As(err, &ie) || ie.Have != 20 {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if rec, _ := f.vols.GetLatest(context.Background(), "AAA"); rec != nil {
		t.Fatalf("nothing should be stored")
	}
	if len(f.pub.updates) != 0 {
		t.Fatalf("nothing should be published")
	}
}

func TestIngestBenchmarkStoresOnly(t *testing.T) {
	f := newVolFixture()
	rec, err := f.uc.Ingest(context.Background(), bars.KindBenchmark, series("GSPC", 40), "")
	if err != nil || rec != nil {
		t.Fatalf("benchmark ingest should only store bars, got %+v %v", rec, err)
	}
	got, _ := f.bars.GetLatestBars(context.Background(), "GSPC", 100)
	if len(got) != 40 {
		t.Fatalf("expected 40 stored benchmark bars, got %d", len(got))
	}
}

func TestEstimateRejectsDuplicates(t *testing.T) {
	f := newVolFixture()
	in := series("AAA", 40)
	in[10].Date = in[9].Date
	if _, err := f.uc.Estimate(context.Background(), in, nil, ""); !models.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestLatestNotFound(t *testing.T) {
	f := newVolFixture()
	if _, err := f.uc.Latest(context.Background(), "AAA"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
