package models

import "time"

// Holding is a position of a client in one instrument.
type Holding struct {
	Instrument string  `json:"instrument"`
	Quantity   float64 `json:"quantity"`
}

// ClientProfile is a client record from the directory.
// TargetVolatility and VolatilityTolerance are optional; nil means unset.
type ClientProfile struct {
	ClientID            string     `json:"client_id"`
	Name                string     `json:"name"`
	ContactAddress      string     `json:"contact_address"`
	Holdings            []Holding  `json:"holdings"`
	TargetVolatility    *float64   `json:"target_volatility,omitempty"`
	VolatilityTolerance *float64   `json:"volatility_tolerance,omitempty"`
	CurrentVolatility   *float64   `json:"current_volatility,omitempty"`
	LastUpdatedAt       *time.Time `json:"last_updated_at,omitempty"`
	LastNotifiedAt      *time.Time `json:"last_notified_at,omitempty"`
}

// HoldsAny reports whether the client holds at least one of the instruments.
func (c ClientProfile) HoldsAny(instruments map[string]struct{}) bool {
	for _, h := range c.Holdings {
		if _, ok := instruments[h.Instrument]; ok {
			return true
		}
	}
	return false
}

// HoldingVolatility is one display line of an assessment.
// Volatility is nil when the instrument has no record.
type HoldingVolatility struct {
	Instrument string   `json:"instrument"`
	Quantity   float64  `json:"quantity"`
	Volatility *float64 `json:"volatility"`
}

// PortfolioRiskAssessment is the band evaluation of one client.
type PortfolioRiskAssessment struct {
	ClientID            string              `json:"client_id"`
	PortfolioVolatility float64             `json:"portfolio_volatility"`
	TargetVolatility    float64             `json:"target_volatility"`
	Tolerance           float64             `json:"tolerance"`
	LowerBound          float64             `json:"lower_bound"`
	UpperBound          float64             `json:"upper_bound"`
	WithinBand          bool                `json:"within_band"`
	Holdings            []HoldingVolatility `json:"holdings"`
	EvaluatedAt         time.Time           `json:"evaluated_at"`
}

// Notification is a rendered message ready for delivery.
type Notification struct {
	ID        string `json:"id"`
	ClientID  string `json:"client_id"`
	Sender    string `json:"sender,omitempty"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Text      string `json:"text"`
	HTML      string `json:"html"`
}

// RunSummary reports the outcome of one fan-out run.
type RunSummary struct {
	ProcessedClients   int      `json:"processed_clients"`
	NotificationsSent  int      `json:"notifications_sent"`
	UpdatedInstruments []string `json:"updated_instruments"`
}
