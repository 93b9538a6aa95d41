package models

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// PerformanceMetrics are derived from the snapshot series. Ratios are
// annualized with 252 trading days; total_return is a fraction, not a
// percentage. A metric whose denominator degenerates is reported as 0,
// never NaN or Inf.
type PerformanceMetrics struct {
	TotalReturn    float64 `json:"total_return"`
	FinalValue     float64 `json:"final_value"`
	InitialCapital float64 `json:"initial_capital"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	SortinoRatio   float64 `json:"sortino_ratio"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	TotalTrades    int     `json:"total_trades"`
	WinRate        float64 `json:"win_rate"`
}

func (m PerformanceMetrics) String() string {
	display := &strings.Builder{}
	p := message.NewPrinter(language.English)

	table := tablewriter.NewWriter(display)

	table.SetAlignment(tablewriter.ALIGN_CENTER)
	table.SetColumnSeparator("")
	display.WriteString("Performance:\n")

	rows := [][]string{
		{"Initial Capital", fmt.Sprintf("$%s", p.Sprintf("%.2f", m.InitialCapital))},
		{"Final Value", fmt.Sprintf("$%s", p.Sprintf("%.2f", m.FinalValue))},
		{"Total Return", fmt.Sprintf("%.2f%%", m.TotalReturn*100)},
		{"Sharpe Ratio", fmt.Sprintf("%.2f", m.SharpeRatio)},
		{"Sortino Ratio", fmt.Sprintf("%.2f", m.SortinoRatio)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", m.MaxDrawdown*100)},
		{"Total Trades", fmt.Sprintf("%d", m.TotalTrades)},
		{"Win Rate", fmt.Sprintf("%.2f%%", m.WinRate*100)},
	}

	for _, row := range rows {
		table.Append(row)
	}

	table.Render()
	return display.String()
}
