package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type flakyHandler struct {
	failures  int
	calls     int
	panics    bool
	permanent bool
	traceIDs  []string
}

func (h *flakyHandler) Topic() string { return "bars" }

func (h *flakyHandler) Handle(ctx context.Context, _ []byte) error {
	h.calls++
	h.traceIDs = append(h.traceIDs, TraceIDFrom(ctx))
	if h.panics {
		panic("bad payload")
	}
	if h.permanent {
		return Permanent(errors.New("bad series"))
	}
	if h.calls <= h.failures {
		return errors.New("transient")
	}
	return nil
}

func newTestConsumer(t *testing.T) *Consumer {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.WithConsumerHook(NewHookChain(TraceHook()))
	return c
}

func TestConsumerRetriesUntilSuccess(t *testing.T) {
	c := newTestConsumer(t)
	h := &flakyHandler{failures: 2}

	attempts, err := c.handle(h, &message{topic: "bars", km: kafka.Message{Partition: 1, Offset: 7}})
	if err != nil || attempts != 3 {
		t.Fatalf("expected success on third attempt, got %d attempts err=%v", attempts, err)
	}
	for _, id := range h.traceIDs {
		if id != "bars/1/7" {
			t.Fatalf("expected trace id on every attempt, got %v", h.traceIDs)
		}
	}
}

func TestConsumerGivesUpAndRecoversPanics(t *testing.T) {
	c := newTestConsumer(t)
	h := &flakyHandler{panics: true}

	attempts, err := c.handle(h, &message{topic: "bars"})
	var he *HookError
	if !errors.As(err, &he) || he.Code != "ERR_PANIC" {
		t.Fatalf("expected panic error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected RetryMax+1 attempts, got %d", attempts)
	}
}

func TestConsumerDoesNotRetryPermanentErrors(t *testing.T) {
	c := newTestConsumer(t)
	h := &flakyHandler{permanent: true}

	attempts, err := c.handle(h, &message{topic: "bars"})
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 || h.calls != 1 {
		t.Fatalf("expected a single attempt, got %d attempts %d calls", attempts, h.calls)
	}
	if Permanent(nil) != nil {
		t.Fatalf("Permanent(nil) should stay nil")
	}
}

func TestNewConsumerRejectsBadOffsetReset(t *testing.T) {
	_, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerAutoOffsetReset("middle"))
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestStopWithoutStart(t *testing.T) {
	c := newTestConsumer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("second stop should be a no-op, got %v", err)
	}
}
