package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"VolGuard/internal/domain/models"
	domrepo "VolGuard/internal/domain/repository"
	applogger "VolGuard/pkg/logger"
)

// LinearModel is a regression artifact shipped together with its feature column order.
type LinearModel struct {
	Name           string             `json:"name"`
	Version        string             `json:"version"`
	FeatureColumns []string           `json:"feature_columns"`
	Intercept      float64            `json:"intercept"`
	Coefficients   []float64          `json:"coefficients"`
	Defaults       map[string]float64 `json:"defaults"`
}

// ParseModel decodes and checks a serialized LinearModel.
func ParseModel(raw []byte) (*LinearModel, error) {
	var m LinearModel
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if len(m.FeatureColumns) == 0 {
		return nil, fmt.Errorf("model %q declares no feature columns", m.Name)
	}
	if len(m.FeatureColumns) != len(m.Coefficients) {
		return nil, fmt.Errorf("model %q: %d columns but %d coefficients", m.Name, len(m.FeatureColumns), len(m.Coefficients))
	}
	seen := make(map[string]struct{}, len(m.FeatureColumns))
	for _, c := range m.FeatureColumns {
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("model %q: duplicate column %q", m.Name, c)
		}
		seen[c] = struct{}{}
	}
	return &m, nil
}

// Reindex lays features out in the model's column order. Columns the vector
// does not provide take the artifact default, or 0 when none is declared.
func (m *LinearModel) Reindex(features map[string]float64) []float64 {
	x := make([]float64, len(m.FeatureColumns))
	for i, col := range m.FeatureColumns {
		v, ok := features[col]
		if !ok || models.IsMissing(v) {
			v = m.Defaults[col]
		}
		x[i] = v
	}
	return x
}

// Predict evaluates intercept + coef·x on a reindexed row.
func (m *LinearModel) Predict(x []float64) float64 {
	y := m.Intercept
	for i, c := range m.Coefficients {
		y += c * x[i]
	}
	return y
}

// ModelHolder loads the model once per process and hands out the cached copy.
// A failed load leaves the holder empty so the next call fetches again.
type ModelHolder struct {
	src   domrepo.ModelSource
	l     *applogger.Logger
	mu    sync.Mutex
	model atomic.Pointer[LinearModel]
}

func NewModelHolder(src domrepo.ModelSource, l *applogger.Logger) *ModelHolder {
	return &ModelHolder{src: src, l: l}
}

// Get returns the cached model, fetching it when the holder is empty.
func (h *ModelHolder) Get(ctx context.Context) (*LinearModel, error) {
	if m := h.model.Load(); m != nil {
		return m, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.model.Load(); m != nil {
		return m, nil
	}

	raw, err := h.src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", models.ErrModelUnavailable, h.src.Describe(), err)
	}
	m, err := ParseModel(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrModelUnavailable, err)
	}
	h.model.Store(m)
	if h.l != nil {
		h.l.Info("model loaded",
			applogger.String("source", h.src.Describe()),
			applogger.String("name", m.Name),
			applogger.String("version", m.Version),
			applogger.Int("columns", len(m.FeatureColumns)),
		)
	}
	return m, nil
}
