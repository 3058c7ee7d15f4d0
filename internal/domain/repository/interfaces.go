package repository

import (
	"context"
	"time"

	"VolGuard/internal/domain/models"
)

// VolatilityStore keeps the latest VolatilityRecord per (instrument, date).
type VolatilityStore interface {
	// GetLatest returns the most recent record for the instrument, or nil when none exists.
	GetLatest(ctx context.Context, instrument string) (*models.VolatilityRecord, error)
	// Put upserts the record; the last write for a key wins.
	Put(ctx context.Context, rec models.VolatilityRecord) error
}

// ClientDirectory is the read/write view of client profiles.
type ClientDirectory interface {
	// List pages through every client. An empty next token marks the last page.
	List(ctx context.Context, pageToken string, pageSize int) ([]models.ClientProfile, string, error)
	// ListHolding returns clients holding at least one of the instruments.
	ListHolding(ctx context.Context, instruments []string) ([]models.ClientProfile, error)
	Get(ctx context.Context, clientID string) (*models.ClientProfile, error)
	UpdateCurrentVolatility(ctx context.Context, clientID string, vol float64, at time.Time) error
}

// ClientWriter maintains client profile fields and holdings.
type ClientWriter interface {
	Upsert(ctx context.Context, p models.ClientProfile) error
}

// CooldownStore performs the atomic check-and-set behind the dedup gate.
type CooldownStore interface {
	// CompareAndMark records now as the last notification time and returns true
	// only if no mark exists or the existing mark is older than now-cooldown.
	CompareAndMark(ctx context.Context, clientID string, now time.Time, cooldown time.Duration) (bool, error)
}

// ModelSource fetches the serialized predictive model artifact.
type ModelSource interface {
	Fetch(ctx context.Context) ([]byte, error)
	Describe() string
}

// UpdatePublisher announces freshly written volatility records.
type UpdatePublisher interface {
	PublishUpdate(ctx context.Context, update models.VolatilityUpdate) error
}

// NotificationSender delivers a rendered notification.
type NotificationSender interface {
	Send(ctx context.Context, n models.Notification) error
}

// AssessmentSink receives every computed assessment, e.g. for live streaming.
type AssessmentSink interface {
	Publish(a models.PortfolioRiskAssessment)
}

type Metrics interface {
	RecordMessageSent(backend, instrument string)
	RecordError(kind string)
	RecordVolatility(instrument string, vol float64)
	RecordOutcome(stage, outcome string)
	RecordLatency(op string, seconds float64)
}
