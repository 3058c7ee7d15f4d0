package models

// Requests for the volatility HTTP endpoints. Defined in domain for consistency and reuse.

type LatestVolatilityRequest struct {
	Instrument string `param:"instrument" json:"instrument" validate:"required,instrument"`
}

type AssessmentRequest struct {
	ClientID string `param:"id" json:"client_id" validate:"required,max=64"`
}

type EstimateRequest struct {
	SourceReference string     `json:"source_reference" default:"api"`
	Bars            []BarInput `json:"bars" validate:"required,min=1,dive"`
	Benchmark       []BarInput `json:"benchmark" validate:"omitempty,dive"`
}

// BarInput is the request form of a PriceBar. Nil numeric fields are missing values.
type BarInput struct {
	Instrument    string   `json:"instrument" validate:"required,instrument"`
	Date          string   `json:"date" validate:"required"`
	Open          *float64 `json:"open"`
	High          *float64 `json:"high"`
	Low           *float64 `json:"low"`
	Close         *float64 `json:"close" validate:"required"`
	AdjustedClose *float64 `json:"adjusted_close"`
	Volume        *float64 `json:"volume"`
}

type UpsertClientRequest struct {
	ClientID            string         `param:"id" json:"-" validate:"required,max=64"`
	Name                string         `json:"name"`
	ContactAddress      string         `json:"contact_address" validate:"omitempty,email"`
	TargetVolatility    *float64       `json:"target_volatility" validate:"omitempty,gte=0"`
	VolatilityTolerance *float64       `json:"volatility_tolerance" validate:"omitempty,gte=0"`
	Holdings            []HoldingInput `json:"holdings" validate:"dive"`
}

type HoldingInput struct {
	Instrument string  `json:"instrument" validate:"required,instrument"`
	Quantity   float64 `json:"quantity" validate:"gte=0"`
}
