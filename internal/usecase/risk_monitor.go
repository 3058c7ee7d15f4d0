package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"VolGuard/internal/domain/models"
	domrepo "VolGuard/internal/domain/repository"
	domsvc "VolGuard/internal/domain/service"
	"VolGuard/internal/services/bars"
	"VolGuard/internal/services/notify"
	"VolGuard/internal/services/portfolio"
	"VolGuard/internal/services/risk"
	applogger "VolGuard/pkg/logger"
)

const (
	NotifyAlways  = "always"
	NotifyOutside = "outside"

	FanoutIndex = "index"
	FanoutScan  = "scan"
)

// RiskMonitorConfig tunes fan-out and notification policy.
type RiskMonitorConfig struct {
	Cooldown     time.Duration
	NotifyPolicy string
	FanoutMode   string
	PageSize     int
	Workers      int
}

// RiskMonitor re-evaluates every client holding an updated instrument and
// notifies them through the dedup gate.
type RiskMonitor struct {
	clients   domrepo.ClientDirectory
	vols      domrepo.VolatilityStore
	evaluator *risk.Evaluator
	gate      domsvc.DedupGate
	composer  *notify.Composer
	sender    domrepo.NotificationSender
	sink      domrepo.AssessmentSink
	metrics   domrepo.Metrics
	l         *applogger.Logger
	cfg       RiskMonitorConfig
	now       func() time.Time
}

func NewRiskMonitor(
	clients domrepo.ClientDirectory,
	vols domrepo.VolatilityStore,
	evaluator *risk.Evaluator,
	gate domsvc.DedupGate,
	composer *notify.Composer,
	sender domrepo.NotificationSender,
	sink domrepo.AssessmentSink,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg RiskMonitorConfig,
) *RiskMonitor {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.NotifyPolicy == "" {
		cfg.NotifyPolicy = NotifyAlways
	}
	if cfg.FanoutMode == "" {
		cfg.FanoutMode = FanoutIndex
	}
	return &RiskMonitor{
		clients:   clients,
		vols:      vols,
		evaluator: evaluator,
		gate:      gate,
		composer:  composer,
		sender:    sender,
		sink:      sink,
		metrics:   metrics,
		l:         l,
		cfg:       cfg,
		now:       time.Now,
	}
}

// HandleUpdate runs one fan-out for the updated instruments. Failures are
// contained per client; only candidate discovery failures abort the run.
func (m *RiskMonitor) HandleUpdate(ctx context.Context, instruments []string) (models.RunSummary, error) {
	set := make(map[string]struct{}, len(instruments))
	for _, inst := range instruments {
		if s := bars.SanitizeInstrument(inst); s != "" {
			set[s] = struct{}{}
		}
	}
	updated := make([]string, 0, len(set))
	for inst := range set {
		updated = append(updated, inst)
	}
	sort.Strings(updated)
	summary := models.RunSummary{UpdatedInstruments: updated}
	if len(updated) == 0 {
		return summary, nil
	}

	start := time.Now()
	candidates, err := m.candidates(ctx, updated, set)
	if err != nil {
		m.metrics.RecordError("fanout_discovery")
		return summary, err
	}

	agg := portfolio.NewAggregator(portfolio.NewRunCache(m.vols))
	var processed, sent atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for _, c := range candidates {
		client := c
		g.Go(func() error {
			evaluated, notified := m.processClient(gctx, agg, client)
			if evaluated {
				processed.Add(1)
			}
			if notified {
				sent.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.ProcessedClients = int(processed.Load())
	summary.NotificationsSent = int(sent.Load())
	m.metrics.RecordLatency("fanout_seconds", time.Since(start).Seconds())
	m.l.Info("fan-out finished",
		applogger.Strings("instruments", updated),
		applogger.Int("candidates", len(candidates)),
		applogger.Int("processed_clients", summary.ProcessedClients),
		applogger.Int("notifications_sent", summary.NotificationsSent),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return summary, nil
}

// Assess evaluates one client without updating state or notifying.
func (m *RiskMonitor) Assess(ctx context.Context, clientID string) (models.PortfolioRiskAssessment, error) {
	client, err := m.clients.Get(ctx, clientID)
	if err != nil {
		return models.PortfolioRiskAssessment{}, err
	}
	if client == nil {
		return models.PortfolioRiskAssessment{}, models.ErrNotFound
	}
	pv, lines, err := portfolio.NewAggregator(m.vols).Aggregate(ctx, client.Holdings)
	if err != nil {
		return models.PortfolioRiskAssessment{}, err
	}
	return m.evaluator.Evaluate(*client, pv, lines)
}

func (m *RiskMonitor) candidates(ctx context.Context, updated []string, set map[string]struct{}) ([]models.ClientProfile, error) {
	var found []models.ClientProfile
	switch m.cfg.FanoutMode {
	case FanoutScan:
		token := ""
		for {
			page, next, err := m.clients.List(ctx, token, m.cfg.PageSize)
			if err != nil {
				return nil, fmt.Errorf("scan clients: %w", err)
			}
			found = append(found, page...)
			if next == "" {
				break
			}
			token = next
		}
	default:
		var err error
		found, err = m.clients.ListHolding(ctx, updated)
		if err != nil {
			return nil, fmt.Errorf("list holders: %w", err)
		}
	}

	out := found[:0]
	for _, c := range found {
		if c.HoldsAny(set) {
			out = append(out, c)
		}
	}
	return out, nil
}

// processClient reports whether the client was evaluated and whether a
// notification went out.
func (m *RiskMonitor) processClient(ctx context.Context, agg *portfolio.Aggregator, client models.ClientProfile) (bool, bool) {
	log := m.l.With(applogger.String("client_id", client.ClientID))

	pv, lines, err := agg.Aggregate(ctx, client.Holdings)
	if errors.Is(err, models.ErrAggregationEmpty) {
		m.metrics.RecordOutcome("aggregate", "empty")
		log.Debug("no volatility for any holding, skipping")
		return false, false
	}
	if err != nil {
		m.metrics.RecordOutcome("aggregate", "error")
		log.Error("aggregation failed", applogger.Error(err))
		return false, false
	}

	if err := m.clients.UpdateCurrentVolatility(ctx, client.ClientID, pv, m.now().UTC()); err != nil {
		m.metrics.RecordError("client_update")
		log.Error("update current volatility failed", applogger.Error(err))
	}

	a, err := m.evaluator.Evaluate(client, pv, lines)
	if err != nil {
		m.metrics.RecordOutcome("evaluate", "invalid")
		log.Error("band evaluation failed", applogger.Error(err))
		return false, false
	}
	if a.WithinBand {
		m.metrics.RecordOutcome("evaluate", "within")
	} else {
		m.metrics.RecordOutcome("evaluate", "outside")
	}
	if m.sink != nil {
		m.sink.Publish(a)
	}

	if m.cfg.NotifyPolicy == NotifyOutside && a.WithinBand {
		return true, false
	}
	return true, m.notify(ctx, log, client, a)
}

func (m *RiskMonitor) notify(ctx context.Context, log *applogger.Logger, client models.ClientProfile, a models.PortfolioRiskAssessment) bool {
	if client.ContactAddress == "" {
		m.metrics.RecordOutcome("notify", "no_recipient")
		log.Warn("no contact address, skipping notification")
		return false
	}
	n, err := m.composer.Compose(client, a)
	if err != nil {
		m.metrics.RecordOutcome("notify", "compose_error")
		log.Error("compose notification failed", applogger.Error(err))
		return false
	}

	ok, err := m.gate.TryAcquire(ctx, client.ClientID, m.cfg.Cooldown)
	if err != nil {
		// the gate already logged and denied
		return false
	}
	if !ok {
		log.Debug("notification suppressed by cooldown", applogger.Duration("cooldown_ms", m.cfg.Cooldown))
		return false
	}

	if err := m.sender.Send(ctx, n); err != nil {
		m.metrics.RecordOutcome("notify", "send_error")
		log.Error("send notification failed",
			applogger.String("notification_id", n.ID),
			applogger.Error(err),
		)
		return false
	}
	m.metrics.RecordOutcome("notify", "sent")
	log.Info("notification sent",
		applogger.String("notification_id", n.ID),
		applogger.Float64("portfolio_volatility", a.PortfolioVolatility),
		applogger.Bool("within_band", a.WithinBand),
	)
	return true
}

// Dispatch runs the fan-out synchronously. It satisfies UpdateDispatcher when
// no batching is configured.
func (m *RiskMonitor) Dispatch(ctx context.Context, instruments []string) error {
	_, err := m.HandleUpdate(ctx, instruments)
	return err
}
