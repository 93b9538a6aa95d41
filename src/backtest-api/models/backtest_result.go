package models

// BacktestResult bundles everything a finished session produced. It is the
// payload published on the event bus when a session reaches a terminal state
// and the source for the snapshots and run-sync endpoints.
type BacktestResult struct {
	Session        *BacktestSession    `json:"session"`
	Metrics        *PerformanceMetrics `json:"metrics,omitempty"`
	Snapshots      []*DailySnapshot    `json:"snapshots"`
	Trades         []*ExecutedTrade    `json:"trades"`
	FinalPortfolio *Portfolio          `json:"final_portfolio,omitempty"`
}
