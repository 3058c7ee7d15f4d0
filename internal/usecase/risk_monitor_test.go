package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"VolGuard/internal/domain/models"
	"VolGuard/internal/services/dedup"
	"VolGuard/internal/services/notify"
	"VolGuard/internal/services/risk"
	applogger "VolGuard/pkg/logger"
)

func testClients() []models.ClientProfile {
	return []models.ClientProfile{
		{
			ClientID: "C1", Name: "Ada", ContactAddress: "ada@example.com",
			Holdings:         []models.Holding{{Instrument: "AAA", Quantity: 100}, {Instrument: "BBB", Quantity: 300}},
			TargetVolatility: ptr(0.30), VolatilityTolerance: ptr(0.10),
		},
		{
			ClientID: "C2", ContactAddress: "c2@example.com",
			Holdings: []models.Holding{{Instrument: "ZZZ", Quantity: 50}},
		},
		{
			ClientID: "C3", ContactAddress: "c3@example.com",
			Holdings: []models.Holding{{Instrument: "AAA", Quantity: 10}},
		},
		{
			ClientID: "C4", ContactAddress: "c4@example.com",
			Holdings: []models.Holding{{Instrument: "NOREC", Quantity: 10}},
		},
	}
}

type monitorFixture struct {
	dir    *memDirectory
	sender *recordingSender
	sink   *recordingSink
	mon    *RiskMonitor
}

func newMonitor(t *testing.T, cfg RiskMonitorConfig) monitorFixture {
	t.Helper()
	ev, err := risk.NewEvaluator(risk.DefaultTolerance)
	if err != nil {
		t.Fatalf("evaluator: %v", err)
	}
	f := monitorFixture{
		dir:    &memDirectory{clients: testClients()},
		sender: &recordingSender{},
		sink:   &recordingSink{},
	}
	vols := newMemVols(map[string]float64{"AAA": 0.2, "BBB": 0.4, "ZZZ": 0.9})
	gate := dedup.NewController(dedup.NewMemoryStore())
	f.mon = NewRiskMonitor(f.dir, vols, ev, gate, notify.NewComposer(notify.WithSender("ops@example.com")),
		f.sender, f.sink, nopMetrics{}, applogger.NewNop(), cfg)
	return f
}

func TestHandleUpdateEvaluatesHoldersOnly(t *testing.T) {
	for _, mode := range []string{FanoutIndex, FanoutScan} {
		f := newMonitor(t, RiskMonitorConfig{Cooldown: 300 * time.Second, FanoutMode: mode, PageSize: 1, Workers: 4})

		sum, err := f.mon.HandleUpdate(context.Background(), []string{"aaa", "BBB", "NOREC", "BBB"})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", mode, err)
		}
		if strings.Join(sum.UpdatedInstruments, ",") != "AAA,BBB,NOREC" {
			t.Fatalf("%s: unexpected instruments %v", mode, sum.UpdatedInstruments)
		}
		if sum.ProcessedClients != 2 || sum.NotificationsSent != 2 {
			t.Fatalf("%s: unexpected summary %+v", mode, sum)
		}
		if _, ok := f.dir.currentFor("C2"); ok {
			t.Fatalf("%s: client without updated holdings was evaluated", mode)
		}
		if v, _ := f.dir.currentFor("C1"); math.Abs(v-0.35) > 1e-12 {
			t.Fatalf("%s: expected current volatility 0.35, got %v", mode, v)
		}

		var c1 models.PortfolioRiskAssessment
		for _, a := range f.sink.got {
			if a.ClientID == "C1" {
				c1 = a
			}
		}
		if c1.WithinBand || math.Abs(c1.LowerBound-0.27) > 1e-12 || math.Abs(c1.UpperBound-0.33) > 1e-12 {
			t.Fatalf("%s: unexpected assessment %+v", mode, c1)
		}
	}
}

func TestHandleUpdateRespectsCooldown(t *testing.T) {
	f := newMonitor(t, RiskMonitorConfig{Cooldown: 300 * time.Second, Workers: 2})
	if _, err := f.mon.HandleUpdate(context.Background(), []string{"AAA"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sum, err := f.mon.HandleUpdate(context.Background(), []string{"AAA"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.ProcessedClients != 2 || sum.NotificationsSent != 0 {
		t.Fatalf("second run inside cooldown should not notify, got %+v", sum)
	}
	if len(f.sender.sent) != 2 {
		t.Fatalf("expected 2 notifications overall, got %d", len(f.sender.sent))
	}
}

func TestHandleUpdateConcurrentRunsNotifyOnce(t *testing.T) {
	f := newMonitor(t, RiskMonitorConfig{Cooldown: time.Hour, Workers: 4})
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, _ = f.mon.HandleUpdate(context.Background(), []string{"AAA"})
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	perClient := map[string]int{}
	for _, n := range f.sender.sent {
		perClient[n.ClientID]++
	}
	if perClient["C1"] != 1 || perClient["C3"] != 1 {
		t.Fatalf("expected one notification per client, got %v", perClient)
	}
}

func TestHandleUpdateOutsidePolicy(t *testing.T) {
	f := newMonitor(t, RiskMonitorConfig{Cooldown: time.Minute, NotifyPolicy: NotifyOutside})
	sum, err := f.mon.HandleUpdate(context.Background(), []string{"AAA"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// C3 has no target so it always sits inside its own band
	if sum.NotificationsSent != 1 || f.sender.sent[0].ClientID != "C1" {
		t.Fatalf("expected only C1 notified, got %+v", f.sender.sent)
	}
}

func TestAssess(t *testing.T) {
	f := newMonitor(t, RiskMonitorConfig{})
	a, err := f.mon.Assess(context.Background(), "C1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(a.PortfolioVolatility-0.35) > 1e-12 || a.WithinBand {
		t.Fatalf("unexpected assessment %+v", a)
	}
	if len(f.sender.sent) != 0 {
		t.Fatalf("assess must not notify")
	}
	if _, err := f.mon.Assess(context.Background(), "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.mon.Assess(context.Background(), "C4"); !errors.Is(err, models.ErrAggregationEmpty) {
		t.Fatalf("expected ErrAggregationEmpty, got %v", err)
	}
}
