package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordOutcome("notify", "sent")
	r.RecordOutcome("notify", "sent")
	r.RecordVolatility("AAPL", 0.25)
	r.RecordError("bars_read")

	if got := testutil.ToFloat64(r.outcomes.WithLabelValues("notify", "sent")); got != 2 {
		t.Fatalf("expected 2 sent outcomes, got %v", got)
	}
	if got := testutil.ToFloat64(r.volatility.WithLabelValues("AAPL")); got != 0.25 {
		t.Fatalf("expected gauge 0.25, got %v", got)
	}
	if got := testutil.ToFloat64(r.errorsTotal.WithLabelValues("bars_read")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
}
