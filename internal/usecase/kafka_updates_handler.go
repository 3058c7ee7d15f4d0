package usecase

import (
	"context"
	"encoding/json"
	"time"

	"VolGuard/internal/domain/models"
	domrepo "VolGuard/internal/domain/repository"
	pkgkafka "VolGuard/pkg/kafka"
)

// UpdateDispatcher hands updated instruments to the risk fan-out.
type UpdateDispatcher interface {
	Dispatch(ctx context.Context, instruments []string) error
}

// KafkaUpdatesHandler consumes volatility update events.
type KafkaUpdatesHandler struct {
	topic      string
	dispatcher UpdateDispatcher
	metrics    domrepo.Metrics
}

func NewKafkaUpdatesHandler(topic string, dispatcher UpdateDispatcher, metrics domrepo.Metrics) *KafkaUpdatesHandler {
	return &KafkaUpdatesHandler{topic: topic, dispatcher: dispatcher, metrics: metrics}
}

func (h *KafkaUpdatesHandler) Topic() string { return h.topic }

func (h *KafkaUpdatesHandler) Handle(ctx context.Context, b []byte) error {
	var u models.VolatilityUpdate
	if err := json.Unmarshal(b, &u); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(err)
	}
	if len(u.Instruments) == 0 {
		return nil
	}
	if !u.EmittedAt.IsZero() {
		h.metrics.RecordLatency("update_lag_seconds", time.Since(u.EmittedAt).Seconds())
	}
	if err := h.dispatcher.Dispatch(ctx, u.Instruments); err != nil {
		h.metrics.RecordError("consumer_dispatch")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaUpdatesHandler)(nil)
