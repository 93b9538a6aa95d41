package models

// Position tracks the long and short sides of a single ticker separately.
// Both sides may be open at once while a day's orders are being applied;
// quantities are always non-negative.
type Position struct {
	LongQuantity   float64 `json:"long_quantity"`
	ShortQuantity  float64 `json:"short_quantity"`
	LongCostBasis  float64 `json:"long_cost_basis"`
	ShortCostBasis float64 `json:"short_cost_basis"`
}

func (p *Position) IsFlat() bool {
	return p.LongQuantity == 0 && p.ShortQuantity == 0
}

// NetValue is the position's contribution to total portfolio value.
func (p *Position) NetValue(price float64) float64 {
	return p.LongQuantity*price - p.ShortQuantity*price
}

// GrossExposure counts both sides against a ticker's position limit.
func (p *Position) GrossExposure(price float64) float64 {
	return p.LongQuantity*price + p.ShortQuantity*price
}

func (p *Position) Copy() *Position {
	copied := *p
	return &copied
}
