package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"VolGuard/internal/domain/models"
	domrepo "VolGuard/internal/domain/repository"
	"VolGuard/internal/services/bars"
	pkgkafka "VolGuard/pkg/kafka"
	applogger "VolGuard/pkg/logger"
)

// BarsMessage is the payload on the bars topic.
type BarsMessage struct {
	// SourceReference is the object key the bars were read from, e.g.
	// market-data/stocks/AAPL/AAPL_20240102_000000.csv.
	SourceReference string            `json:"source_reference"`
	Bars            []models.BarInput `json:"bars"`
}

// KafkaBarsHandler ingests price bars and refreshes the instrument's volatility.
type KafkaBarsHandler struct {
	topic   string
	uc      *VolatilityUseCase
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewKafkaBarsHandler(topic string, uc *VolatilityUseCase, metrics domrepo.Metrics, l *applogger.Logger) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, uc: uc, metrics: metrics, l: l}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// Handle returns nil for benign skips so the offset is committed. Malformed
// payloads and invalid series are dead-lettered without retries; store
// failures are returned for retry.
func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	log := h.l
	if id := pkgkafka.TraceIDFrom(ctx); id != "" {
		log = log.With(applogger.String("trace_id", id))
	}

	var m BarsMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(err)
	}

	kind := bars.KindStock
	if m.SourceReference != "" {
		var ok bool
		_, kind, ok = bars.InstrumentFromKey(m.SourceReference)
		if !ok {
			h.metrics.RecordOutcome("ingest", "ignored_key")
			log.Debug("ignoring bars outside market-data prefix", applogger.String("source_reference", m.SourceReference))
			return nil
		}
	}

	series, err := bars.FromInputs(m.Bars)
	if err != nil {
		h.metrics.RecordError("consumer_validate")
		return pkgkafka.Permanent(err)
	}

	start := time.Now()
	rec, err := h.uc.Ingest(ctx, kind, series, m.SourceReference)
	h.metrics.RecordLatency("ingest_seconds", time.Since(start).Seconds())
	switch {
	case err == nil:
	case models.IsInsufficientData(err):
		log.Info("skipping estimate", applogger.String("source_reference", m.SourceReference), applogger.Error(err))
		return nil
	case models.IsValidation(err):
		h.metrics.RecordError("consumer_validate")
		log.Warn("rejecting invalid bars", applogger.String("source_reference", m.SourceReference), applogger.Error(err))
		return pkgkafka.Permanent(err)
	case errors.Is(err, models.ErrModelUnavailable):
		log.Error("model unavailable", applogger.Error(err))
		return err
	default:
		h.metrics.RecordError("consumer_ingest")
		return err
	}
	if rec != nil {
		h.metrics.RecordMessageSent("volatility_store", rec.Instrument)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
