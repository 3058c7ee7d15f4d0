package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestTraceHookUsesHeaderOrOffset(t *testing.T) {
	h := TraceHook()

	ctx, _, _, err := h.BeforeHandle(context.Background(), "bars", kafka.Message{
		Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := TraceIDFrom(ctx); got != "abc" {
		t.Fatalf("expected header trace id, got %q", got)
	}
	if _, ok := StartTimeFrom(ctx); !ok {
		t.Fatalf("expected start time in context")
	}

	ctx, _, _, _ = h.BeforeHandle(context.Background(), "bars", kafka.Message{Partition: 2, Offset: 41}, nil)
	if got := TraceIDFrom(ctx); got != "bars/2/41" {
		t.Fatalf("expected offset trace id, got %q", got)
	}
}

func TestHookChainStopsOnErrorAndRecoversPanics(t *testing.T) {
	var errs int
	failing := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			panic("boom")
		},
	}
	counting := HookFuncs{
		Err: func(context.Context, string, kafka.Message, []byte, error) { errs++ },
	}
	chain := NewHookChain(counting, failing, nil)

	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	if !errors.As(err, &he) || he.Code != "ERR_PANIC" {
		t.Fatalf("expected panic hook error, got %v", err)
	}
	if errs != 1 {
		t.Fatalf("expected OnError once per hook, got %d", errs)
	}
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 6; attempt++ {
		d := backoffWithJitter(0, 0, attempt)
		if d <= 0 || d > 50*time.Millisecond {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}
