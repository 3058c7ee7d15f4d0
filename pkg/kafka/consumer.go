package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	applogger "VolGuard/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds reader, worker and retry settings.
type ConsumerConfig struct {
	Brokers         []string
	GroupID         string
	AutoOffsetReset string // earliest or latest, for groups without commits
	WorkerCount     int
	BufferSize      int
	RetryMax        int
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	DLQTopic        string
	MinBytes        int
	MaxBytes        int
	Logger          *applogger.Logger
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if groupID != "" {
			c.GroupID = groupID
		}
	}
}

func WithConsumerAutoOffsetReset(reset string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if reset != "" {
			c.AutoOffsetReset = reset
		}
	}
}

func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if count > 0 {
			c.WorkerCount = count
		}
	}
}

// WithConsumerRetry sets handler retries and the backoff range between them.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		if max >= 0 {
			c.RetryMax = max
		}
		if backoffMin > 0 {
			c.BackoffMin = backoffMin
		}
		if backoffMax > 0 {
			c.BackoffMax = backoffMax
		}
	}
}

// WithConsumerDLQ sends messages that exhaust their retries to topic.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if minBytes > 0 {
			c.MinBytes = minBytes
		}
		if maxBytes > 0 {
			c.MaxBytes = maxBytes
		}
	}
}

// WithConsumerBufferSize sets the queue between readers and workers.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

// WithConsumerLogger sets the logger for lifecycle and handler errors.
func WithConsumerLogger(l *applogger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) { c.Logger = l }
}

// Consumer reads registered topics with one reader each and fans messages out
// to a worker pool. At most one message per partition is in flight, so
// per-key ordering survives the pool.
type Consumer struct {
	cfg      ConsumerConfig
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	hook     ConsumerHook
	l        *applogger.Logger
	dlq      *kafka.Writer

	queue    chan *message
	stop     chan struct{}
	stopOnce sync.Once
	readWg   sync.WaitGroup
	workWg   sync.WaitGroup

	partMu    sync.Mutex
	partLocks map[partitionKey]*sync.Mutex
}

type message struct {
	topic string
	km    kafka.Message
}

type partitionKey struct {
	topic     string
	partition int
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := ConsumerConfig{
		GroupID:         "volguard",
		AutoOffsetReset: "earliest",
		WorkerCount:     1,
		BufferSize:      64,
		RetryMax:        3,
		BackoffMin:      50 * time.Millisecond,
		BackoffMax:      2 * time.Second,
		MinBytes:        1,
		MaxBytes:        10e6,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.AutoOffsetReset != "earliest" && cfg.AutoOffsetReset != "latest" {
		return nil, fmt.Errorf("auto offset reset must be earliest or latest, got %q", cfg.AutoOffsetReset)
	}

	l := cfg.Logger
	if l == nil {
		l = applogger.NewNop()
	}
	c := &Consumer{
		cfg:       cfg,
		readers:   make(map[string]*kafka.Reader),
		handlers:  make(map[string]MessageHandler),
		hook:      NoopHook{},
		l:         l,
		queue:     make(chan *message, cfg.BufferSize),
		stop:      make(chan struct{}),
		partLocks: make(map[partitionKey]*sync.Mutex),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.Hash{}}
	}

	consumerMetricsOnce.Do(registerConsumerMetrics)
	return c, nil
}

// RegisterHandler must be called before Start. A second handler for the same
// topic is ignored.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.l.Warn("kafka consumer: handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook sets the hook run around every handler call.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	start := kafka.FirstOffset
	if c.cfg.AutoOffsetReset == "latest" {
		start = kafka.LastOffset
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workWg.Add(1)
		go c.work()
	}
	for topic := range c.handlers {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: start,
		})
		c.readers[topic] = reader
		c.readWg.Add(1)
		go c.read(topic, reader)
	}

	c.l.Info("kafka consumer: started",
		applogger.Int("topics", len(c.readers)),
		applogger.Int("workers", c.cfg.WorkerCount),
		applogger.String("group_id", c.cfg.GroupID),
	)
	return nil
}

// Stop stops reading, lets workers drain the queue and closes the readers.
// It returns early with an error when ctx expires first.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		c.l.Info("kafka consumer: stopping")
		close(c.stop)

		done := make(chan struct{})
		go func() {
			c.readWg.Wait()
			close(c.queue)
			c.workWg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.l.Error("kafka consumer: close reader", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.l.Error("kafka consumer: close dlq writer", applogger.Error(err))
			}
		}
		if stopErr == nil {
			c.l.Info("kafka consumer: stopped")
		}
	})
	return stopErr
}

func (c *Consumer) read(topic string, reader *kafka.Reader) {
	defer c.readWg.Done()

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		km, err := reader.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				c.l.Error("kafka consumer: fetch message", applogger.String("topic", topic), applogger.Error(err))
			}
			continue
		}

		// blocks while workers are saturated
		select {
		case c.queue <- &message{topic: topic, km: km}:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.queue)))
		case <-c.stop:
			return
		}
	}
}

func (c *Consumer) work() {
	defer c.workWg.Done()
	for msg := range c.queue {
		c.process(msg)
	}
}

func (c *Consumer) process(msg *message) {
	handler, ok := c.handlers[msg.topic]
	if !ok {
		return
	}
	start := time.Now()

	pl := c.partitionLock(msg.topic, msg.km.Partition)
	pl.Lock()
	defer pl.Unlock()

	attempts, err := c.handle(handler, msg)
	result := "ok"
	if err != nil {
		result = "failed"
		c.l.Error("kafka consumer: handler failed",
			applogger.String("topic", msg.topic),
			applogger.Int("partition", msg.km.Partition),
			applogger.Int64("offset", msg.km.Offset),
			applogger.Int("attempts", attempts),
			applogger.Error(err),
		)
		if c.dlq != nil {
			if dlqErr := c.deadLetter(msg, err); dlqErr != nil {
				c.l.Error("kafka consumer: dlq write", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(dlqErr))
			} else {
				result = "dead_lettered"
			}
		}
	}

	// commit on success or once parked in the DLQ so poison messages do not loop
	if err == nil || result == "dead_lettered" {
		if reader := c.readers[msg.topic]; reader != nil {
			_ = c.commitWithRetry(reader, msg.km, 3)
		}
	}
	consumerMessagesTotal.WithLabelValues(msg.topic, result).Inc()
	consumerHandleLatency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
}

// handle runs the hook chain and handler with retries. Panics count as
// failed attempts; permanent errors end the loop at once.
func (c *Consumer) handle(handler MessageHandler, msg *message) (attempts int, err error) {
	for {
		attempts++
		err = c.attempt(handler, msg)
		if err == nil || attempts > c.cfg.RetryMax || IsPermanent(err) {
			return attempts, err
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-c.stop:
			return attempts, err
		}
	}
}

func (c *Consumer) attempt(handler MessageHandler, msg *message) (err error) {
	ctx, km, data, err := c.hook.BeforeHandle(context.Background(), msg.topic, msg.km, msg.km.Value)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("handler panic: %v", r)}
		}
		c.hook.AfterHandle(ctx, msg.topic, km, data, err)
		if err != nil {
			c.hook.OnError(ctx, msg.topic, km, data, err)
		}
	}()
	return handler.Handle(ctx, data)
}

func (c *Consumer) deadLetter(msg *message, cause error) error {
	headers := append([]kafka.Header{}, msg.km.Headers...)
	headers = append(headers,
		kafka.Header{Key: "source_topic", Value: []byte(msg.topic)},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.dlq.WriteMessages(ctx, kafka.Message{
		Key:     msg.km.Key,
		Value:   msg.km.Value,
		Time:    time.Now(),
		Headers: headers,
	})
}

func (c *Consumer) commitWithRetry(reader *kafka.Reader, km kafka.Message, max int) error {
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.l.Error("kafka consumer: commit failed",
		applogger.String("topic", km.Topic),
		applogger.Int64("offset", km.Offset),
		applogger.Error(err),
	)
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	key := partitionKey{topic: topic, partition: partition}
	c.partMu.Lock()
	defer c.partMu.Unlock()
	l, ok := c.partLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.partLocks[key] = l
	}
	return l
}

// backoffWithJitter doubles from min up to max and subtracts up to half as
// jitter.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt <= 30 {
		if d := min << uint(attempt-1); d > 0 && d < max {
			exp = d
		}
	}
	return exp - time.Duration(rand.Int63n(int64(exp)/2+1))
}

var (
	consumerMetricsOnce   sync.Once
	consumerQueueDepth    *prometheus.GaugeVec
	consumerMessagesTotal *prometheus.CounterVec
	consumerHandleLatency *prometheus.HistogramVec
)

func registerConsumerMetrics() {
	consumerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "volguard_kafka_consumer_queue_depth",
		Help: "Messages waiting for a worker.",
	}, []string{"topic"})
	consumerMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volguard_kafka_consumer_messages_total",
		Help: "Messages handled by final result.",
	}, []string{"topic", "result"})
	consumerHandleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "volguard_kafka_consumer_handle_seconds",
		Help: "Handling time per message including retries.",
	}, []string{"topic"})
}
