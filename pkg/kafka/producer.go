package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// TraceHeader carries the correlation id between services.
const TraceHeader = "trace_id"

// Producer publishes JSON payloads. The trace id found in the publish context
// is forwarded as a header.
type Producer struct {
	writer *kafka.Writer
	comp   string
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	bal := kafka.Balancer(&kafka.LeastBytes{})
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  compressions[cfg.Compression],
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}

	producerMetricsOnce.Do(registerProducerMetrics)
	return &Producer{writer: writer, comp: cfg.Compression}, nil
}

// Publish sends one message. []byte and string values are sent verbatim,
// anything else as JSON.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	start := time.Now()
	v, err := payload(value)
	if err != nil {
		return err
	}

	msg := kafka.Message{Topic: topic, Key: key, Value: v, Time: start}
	if id := TraceIDFrom(ctx); id != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: TraceHeader, Value: []byte(id)})
	}

	err = p.writer.WriteMessages(ctx, msg)
	observePublish(topic, p.comp, len(v), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishMessage sends value without a key.
func (p *Producer) PublishMessage(ctx context.Context, topic string, value interface{}) error {
	return p.Publish(ctx, topic, nil, value)
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func payload(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return b, nil
	}
}

var (
	producerMetricsOnce sync.Once
	producerMsgsTotal   *prometheus.CounterVec
	producerBytesTotal  *prometheus.CounterVec
	producerLatency     *prometheus.HistogramVec
)

func registerProducerMetrics() {
	producerMsgsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volguard_kafka_producer_messages_total",
		Help: "Messages published to Kafka by result.",
	}, []string{"topic", "compression", "result"})
	producerBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volguard_kafka_producer_bytes_total",
		Help: "Payload bytes published.",
	}, []string{"topic"})
	producerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "volguard_kafka_producer_publish_seconds",
		Help:    "Publish latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
}

func observePublish(topic, comp string, bytes int, dur time.Duration, err error) {
	if producerMsgsTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMsgsTotal.WithLabelValues(topic, comp, result).Inc()
	producerBytesTotal.WithLabelValues(topic).Add(float64(bytes))
	producerLatency.WithLabelValues(topic).Observe(dur.Seconds())
}
