package models

// RiskLimits parameterize the risk manager. MaxPositionShare is the fraction
// of total portfolio value a single ticker may hold. MarginRequirement is the
// fraction of total value available to aggregate short exposure; zero
// disables shorting entirely.
type RiskLimits struct {
	MaxPositionShare  float64 `json:"max_position_share" yaml:"max_position_share"`
	MarginRequirement float64 `json:"margin_requirement" yaml:"margin_requirement"`
}

// PositionCap bounds the additional shares that may be opened on a ticker
// today. Closing trades are never capped.
type PositionCap struct {
	Ticker   string  `json:"ticker"`
	MaxBuy   float64 `json:"max_buy"`
	MaxShort float64 `json:"max_short"`
}
