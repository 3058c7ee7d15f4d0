package usecase

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"VolGuard/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordMessageSent(string, string) {}
func (nopMetrics) RecordError(string) {}
func (nopMetrics) RecordVolatility(string, float64) {}
func (nopMetrics) RecordOutcome(string, string) {}
func (nopMetrics) RecordLatency(string, float64) {}

type memVols struct {
	mu   sync.Mutex
	recs map[string]models.VolatilityRecord
}

func newMemVols(vols map[string]float64) *memVols {
	s := &memVols{recs: make(map[string]models.VolatilityRecord)}
	for inst, v := range vols {
		s.recs[inst] = models.VolatilityRecord{Instrument: inst, PredictedVolatility: v}
	}
	return s
}

func (s *memVols) GetLatest(_ context.Context, instrument string) (*models.VolatilityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[instrument]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memVols) Put(_ context.Context, rec models.VolatilityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.Instrument] = rec
	return nil
}

type memDirectory struct {
	mu      sync.Mutex
	clients []models.ClientProfile
	current map[string]float64
}

func (d *memDirectory) List(_ context.Context, token string, pageSize int) ([]models.ClientProfile, string, error) {
	start := 0
	if token != "" {
		start, _ = strconv.Atoi(token)
	}
	end := start + pageSize
	if end >= len(d.clients) {
		return d.clients[start:], "", nil
	}
	return d.clients[start:end], strconv.Itoa(end), nil
}

// ListHolding ignores the filter to prove callers never trust the index blindly.
func (d *memDirectory) ListHolding(_ context.Context, _ []string) ([]models.ClientProfile, error) {
	return append([]models.ClientProfile(nil), d.clients...), nil
}

func (d *memDirectory) Get(_ context.Context, id string) (*models.ClientProfile, error) {
	for _, c := range d.clients {
		if c.ClientID == id {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (d *memDirectory) UpdateCurrentVolatility(_ context.Context, id string, vol float64, _ time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		d.current = make(map[string]float64)
	}
	d.current[id] = vol
	return nil
}

func (d *memDirectory) currentFor(id string) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.current[id]
	return v, ok
}

type recordingSender struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (s *recordingSender) Send(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

type recordingSink struct {
	mu  sync.Mutex
	got []models.PortfolioRiskAssessment
}

func (s *recordingSink) Publish(a models.PortfolioRiskAssessment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, a)
}

type memBars struct {
	mu   sync.Mutex
	bars map[string][]models.PriceBar
}

func (s *memBars) GetLatestBars(_ context.Context, instrument string, n int) ([]models.PriceBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.bars[instrument]
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return append([]models.PriceBar(nil), all...), nil
}

func (s *memBars) StoreBars(_ context.Context, bars []models.PriceBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bars == nil {
		s.bars = make(map[string][]models.PriceBar)
	}
	for _, b := range bars {
		s.bars[b.Instrument] = append(s.bars[b.Instrument], b)
	}
	return nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	updates []models.VolatilityUpdate
}

func (p *recordingPublisher) PublishUpdate(_ context.Context, u models.VolatilityUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
	return nil
}

func series(instrument string, n int) []models.PriceBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.PriceBar, n)
	price := 100.0
	for i := range out {
		price *= 1 + 0.01*math.Sin(float64(i))
		out[i] = models.PriceBar{
			Instrument:    instrument,
			Date:          start.AddDate(0, 0, i),
			Open:          price,
			High:          price + 1,
			Low:           price - 1,
			Close:         price,
			AdjustedClose: math.NaN(),
			Volume:        1000,
		}
	}
	return out
}

func ptr(v float64) *float64 { return &v }
