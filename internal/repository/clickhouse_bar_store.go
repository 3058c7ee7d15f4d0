package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"VolGuard/internal/domain/models"
	domrepo "VolGuard/internal/domain/repository"
	pkgch "VolGuard/pkg/clickhouse"
	applogger "VolGuard/pkg/logger"
)

// CHBarStore implements BarStore backed by ClickHouse.
type CHBarStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client, database string, l *applogger.Logger) *CHBarStore {
	return &CHBarStore{db: ch.DB(), table: database + ".price_bars", l: l}
}

func (s *CHBarStore) StoreBars(ctx context.Context, bars []models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()
	const chunkSize = 2000
	for lo := 0; lo < len(bars); lo += chunkSize {
		hi := lo + chunkSize
		if hi > len(bars) {
			hi = len(bars)
		}

		values := make([]string, 0, hi-lo)
		args := make([]interface{}, 0, (hi-lo)*8)
		for _, b := range bars[lo:hi] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, b.Instrument, b.Date.UTC(), b.Open, b.High, b.Low, b.Close, b.AdjustedClose, b.Volume)
		}
		q := fmt.Sprintf("INSERT INTO %s (instrument, date, open, high, low, close, adj_close, volume) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse store_bars error",
				applogger.String("table", s.table),
				applogger.String("instrument", bars[lo].Instrument),
				applogger.Int("rows", hi-lo),
				applogger.Error(err),
			)
			return fmt.Errorf("store bars: %w", err)
		}
	}
	s.l.Debug("clickhouse store_bars ok",
		applogger.String("instrument", bars[0].Instrument),
		applogger.Int("rows", len(bars)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CHBarStore) GetLatestBars(ctx context.Context, instrument string, n int) ([]models.PriceBar, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT instrument, date, open, high, low, close, adj_close, volume
        FROM %s FINAL
        WHERE instrument = ?
        ORDER BY date DESC
        LIMIT ?
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, instrument, n)
	if err != nil {
		s.l.Error("clickhouse latest_bars query error",
			applogger.String("instrument", instrument),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest bars: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.PriceBar, 0, n)
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Instrument, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjustedClose, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Date = b.Date.UTC()
		tmp = append(tmp, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	s.l.Debug("clickhouse latest_bars ok",
		applogger.String("instrument", instrument),
		applogger.Int("rows", len(tmp)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return tmp, nil
}

var _ domrepo.BarStore = (*CHBarStore)(nil)
