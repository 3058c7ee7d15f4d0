package repository

import (
	"context"
	"errors"
	"fmt"

	"VolGuard/internal/domain/models"
	domrepo "VolGuard/internal/domain/repository"
	pkgkafka "VolGuard/pkg/kafka"
	applogger "VolGuard/pkg/logger"
)

// Publisher is the subset of the Kafka producer the repositories use.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

var _ Publisher = (*pkgkafka.Producer)(nil)

// KafkaUpdatePublisher announces volatility updates on the updates topic.
type KafkaUpdatePublisher struct {
	producer Publisher
	topic    string
}

func NewKafkaUpdatePublisher(producer Publisher, topic string) *KafkaUpdatePublisher {
	return &KafkaUpdatePublisher{producer: producer, topic: topic}
}

func (p *KafkaUpdatePublisher) PublishUpdate(ctx context.Context, update models.VolatilityUpdate) error {
	if len(update.Instruments) == 0 {
		return nil
	}
	var key []byte
	if len(update.Instruments) == 1 {
		key = []byte(update.Instruments[0])
	}
	if err := p.producer.Publish(ctx, p.topic, key, update); err != nil {
		return fmt.Errorf("publish update: %w", err)
	}
	return nil
}

var _ domrepo.UpdatePublisher = (*KafkaUpdatePublisher)(nil)

// ErrNoSender is returned when a notification has no sender address.
var ErrNoSender = errors.New("notification sender address is not configured")

// KafkaNotificationSender hands rendered notifications to the delivery
// service through the notifications topic, keyed by client.
type KafkaNotificationSender struct {
	producer Publisher
	topic    string
}

func NewKafkaNotificationSender(producer Publisher, topic string) *KafkaNotificationSender {
	return &KafkaNotificationSender{producer: producer, topic: topic}
}

func (s *KafkaNotificationSender) Send(ctx context.Context, n models.Notification) error {
	if n.Sender == "" {
		return ErrNoSender
	}
	if n.Recipient == "" {
		return &models.ValidationError{Field: "recipient", Reason: "is required"}
	}
	if err := s.producer.Publish(ctx, s.topic, []byte(n.ClientID), n); err != nil {
		return fmt.Errorf("publish notification %s: %w", n.ID, err)
	}
	return nil
}

var _ domrepo.NotificationSender = (*KafkaNotificationSender)(nil)

// LogNotificationSender writes notifications to the log. Used in development.
type LogNotificationSender struct {
	l *applogger.Logger
}

func NewLogNotificationSender(l *applogger.Logger) *LogNotificationSender {
	return &LogNotificationSender{l: l}
}

func (s *LogNotificationSender) Send(_ context.Context, n models.Notification) error {
	s.l.Info("notification",
		applogger.String("notification_id", n.ID),
		applogger.String("client_id", n.ClientID),
		applogger.String("recipient", n.Recipient),
		applogger.String("subject", n.Subject),
		applogger.String("text", n.Text),
	)
	return nil
}

var _ domrepo.NotificationSender = (*LogNotificationSender)(nil)
