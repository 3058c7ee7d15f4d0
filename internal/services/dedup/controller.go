package dedup

import (
	"context"
	"fmt"
	"time"

	"VolGuard/internal/domain/models"
	domrepo "VolGuard/internal/domain/repository"
	domsvc "VolGuard/internal/domain/service"
	applogger "VolGuard/pkg/logger"
)

// Controller admits at most one notification per client per cooldown window.
// The decision is delegated to a single atomic CompareAndMark on the store;
// store failures deny the send.
type Controller struct {
	store   domrepo.CooldownStore
	metrics domrepo.Metrics
	l       *applogger.Logger
	now     func() time.Time
}

type Option func(*Controller)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithMetrics records acquire outcomes.
func WithMetrics(m domrepo.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the logger used for store failures.
func WithLogger(l *applogger.Logger) Option {
	return func(c *Controller) { c.l = l }
}

func NewController(store domrepo.CooldownStore, opts ...Option) *Controller {
	c := &Controller{store: store, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TryAcquire returns true and records the send time only when the client has no
// mark or its mark is older than now-cooldown. A false result has no side effect.
func (c *Controller) TryAcquire(ctx context.Context, clientID string, cooldown time.Duration) (bool, error) {
	if clientID == "" {
		return false, &models.ValidationError{Field: "client_id", Reason: "is required"}
	}
	if cooldown < 0 {
		return false, &models.ValidationError{Field: "cooldown", Reason: "must be >= 0"}
	}

	ok, err := c.store.CompareAndMark(ctx, clientID, c.now().UTC(), cooldown)
	if err != nil {
		c.record("error")
		if c.l != nil {
			c.l.Error("dedup store failure, suppressing send",
				applogger.String("client_id", clientID),
				applogger.Error(err),
			)
		}
		return false, fmt.Errorf("dedup %s: %w", clientID, err)
	}
	if ok {
		c.record("acquired")
	} else {
		c.record("suppressed")
	}
	return ok, nil
}

func (c *Controller) record(outcome string) {
	if c.metrics != nil {
		c.metrics.RecordOutcome("dedup", outcome)
	}
}

var _ domsvc.DedupGate = (*Controller)(nil)
