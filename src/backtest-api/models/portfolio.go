package models

import "sort"

// Portfolio is the ledger mutated once per trading day by the executor.
// Realized gains accumulate per ticker and survive the position being closed.
type Portfolio struct {
	Cash          float64              `json:"cash"`
	Positions     map[string]*Position `json:"positions"`
	RealizedGains map[string]float64   `json:"realized_gains"`
}

func NewPortfolio(initialCash float64) *Portfolio {
	return &Portfolio{
		Cash:          initialCash,
		Positions:     make(map[string]*Position),
		RealizedGains: make(map[string]float64),
	}
}

// GetPosition returns a value copy; callers must not mutate ledger state
// outside the executor.
func (p *Portfolio) GetPosition(ticker string) Position {
	position, ok := p.Positions[ticker]
	if !ok {
		return Position{}
	}

	return *position
}

func (p *Portfolio) TotalValue(prices map[string]float64) float64 {
	total := p.Cash
	for ticker, position := range p.Positions {
		total += position.NetValue(prices[ticker])
	}

	return total
}

// ShortExposure is the aggregate market value of all open short sides.
func (p *Portfolio) ShortExposure(prices map[string]float64) float64 {
	exposure := 0.0
	for ticker, position := range p.Positions {
		exposure += position.ShortQuantity * prices[ticker]
	}

	return exposure
}

func (p *Portfolio) TotalRealizedGains() float64 {
	total := 0.0
	for _, gain := range p.RealizedGains {
		total += gain
	}

	return total
}

// Tickers returns the tickers with open positions in sorted order so that
// callers iterating the ledger stay deterministic.
func (p *Portfolio) Tickers() []string {
	tickers := make([]string, 0, len(p.Positions))
	for ticker := range p.Positions {
		tickers = append(tickers, ticker)
	}

	sort.Strings(tickers)

	return tickers
}

func (p *Portfolio) Copy() *Portfolio {
	copied := &Portfolio{
		Cash:          p.Cash,
		Positions:     make(map[string]*Position, len(p.Positions)),
		RealizedGains: make(map[string]float64, len(p.RealizedGains)),
	}

	for ticker, position := range p.Positions {
		copied.Positions[ticker] = position.Copy()
	}

	for ticker, gain := range p.RealizedGains {
		copied.RealizedGains[ticker] = gain
	}

	return copied
}
