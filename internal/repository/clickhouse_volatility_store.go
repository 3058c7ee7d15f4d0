package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"VolGuard/internal/domain/models"
	domrepo "VolGuard/internal/domain/repository"
	pkgch "VolGuard/pkg/clickhouse"
	applogger "VolGuard/pkg/logger"
)

// CHVolatilityStore keeps volatility records in a ReplacingMergeTree keyed by
// (instrument, date); the row with the newest computed_at wins.
type CHVolatilityStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHVolatilityStore(ch *pkgch.Client, database string, l *applogger.Logger) *CHVolatilityStore {
	return &CHVolatilityStore{db: ch.DB(), table: database + ".volatility", l: l}
}

func (s *CHVolatilityStore) Put(ctx context.Context, rec models.VolatilityRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	q := fmt.Sprintf("INSERT INTO %s (instrument, date, predicted_volatility, computed_at, source_reference) VALUES (?, ?, ?, ?, ?)", s.table)
	if _, err := s.db.ExecContext(ctx, q, rec.Instrument, rec.Date.UTC(), rec.PredictedVolatility, rec.ComputedAt.UTC(), rec.SourceReference); err != nil {
		s.l.Error("clickhouse put_volatility error",
			applogger.String("instrument", rec.Instrument),
			applogger.Error(err),
		)
		return fmt.Errorf("put volatility: %w", err)
	}
	return nil
}

func (s *CHVolatilityStore) GetLatest(ctx context.Context, instrument string) (*models.VolatilityRecord, error) {
	q := fmt.Sprintf(`
        SELECT instrument, date, predicted_volatility, computed_at, source_reference
        FROM %s FINAL
        WHERE instrument = ?
        ORDER BY date DESC
        LIMIT 1
    `, s.table)
	var rec models.VolatilityRecord
	err := s.db.QueryRowContext(ctx, q, instrument).
		Scan(&rec.Instrument, &rec.Date, &rec.PredictedVolatility, &rec.ComputedAt, &rec.SourceReference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.l.Error("clickhouse latest_volatility error",
			applogger.String("instrument", instrument),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest volatility: %w", err)
	}
	rec.Date = rec.Date.UTC()
	rec.ComputedAt = rec.ComputedAt.UTC()
	return &rec, nil
}

var _ domrepo.VolatilityStore = (*CHVolatilityStore)(nil)
