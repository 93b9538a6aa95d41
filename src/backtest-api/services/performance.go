package services

import (
	"math"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/montanaflynn/stats"
)

const tradingDaysPerYear = 252

// PerformanceCalculator derives risk and return metrics from a snapshot
// series. Recompute walks the whole series; RunningPerformance maintains the
// same figures incrementally while a session runs. Both use population
// statistics and annualize by sqrt(252) with a zero risk-free rate.
type PerformanceCalculator struct{}

func NewPerformanceCalculator() *PerformanceCalculator {
	return &PerformanceCalculator{}
}

// Recompute builds the metrics from scratch. Daily returns are derived from
// consecutive snapshot values, not from the stored per-day figures, so the
// result is independent of how the series was produced.
func (c *PerformanceCalculator) Recompute(snapshots []*models.DailySnapshot, trades []*models.ExecutedTrade, initialCapital float64) *models.PerformanceMetrics {
	metrics := &models.PerformanceMetrics{
		InitialCapital: initialCapital,
		FinalValue:     initialCapital,
		TotalTrades:    len(trades),
	}

	if len(snapshots) > 0 {
		metrics.FinalValue = snapshots[len(snapshots)-1].TotalValue
	}
	if initialCapital > 0 {
		metrics.TotalReturn = metrics.FinalValue/initialCapital - 1
	}

	returns := make([]float64, 0, len(snapshots))
	for i := 1; i < len(snapshots); i++ {
		previous := snapshots[i-1].TotalValue
		if previous <= 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, snapshots[i].TotalValue/previous-1)
	}

	metrics.SharpeRatio, metrics.SortinoRatio = annualizedRatios(returns)
	metrics.MaxDrawdown = maxDrawdown(snapshots)
	metrics.WinRate = winRate(trades)

	return metrics
}

func annualizedRatios(returns []float64) (sharpe, sortino float64) {
	if len(returns) == 0 {
		return 0, 0
	}

	mean, err := stats.Mean(stats.Float64Data(returns))
	if err != nil {
		return 0, 0
	}

	std, err := stats.StandardDeviationPopulation(stats.Float64Data(returns))
	if err == nil && std > 0 {
		sharpe = mean / std * math.Sqrt(tradingDaysPerYear)
	}

	var negatives []float64
	for _, r := range returns {
		if r < 0 {
			negatives = append(negatives, r)
		}
	}
	if len(negatives) > 0 {
		downside, err := stats.StandardDeviationPopulation(stats.Float64Data(negatives))
		if err == nil && downside > 0 {
			sortino = mean / downside * math.Sqrt(tradingDaysPerYear)
		}
	}

	return sharpe, sortino
}

func maxDrawdown(snapshots []*models.DailySnapshot) float64 {
	drawdown := 0.0
	peak := 0.0
	for _, snapshot := range snapshots {
		if snapshot.TotalValue > peak {
			peak = snapshot.TotalValue
		}
		if peak <= 0 {
			continue
		}
		if dd := snapshot.TotalValue/peak - 1; dd < drawdown {
			drawdown = dd
		}
	}
	return drawdown
}

func winRate(trades []*models.ExecutedTrade) float64 {
	closing := 0
	wins := 0
	for _, trade := range trades {
		if trade.RealizedGain == nil {
			continue
		}
		closing++
		if *trade.RealizedGain > 0 {
			wins++
		}
	}
	if closing == 0 {
		return 0
	}
	return float64(wins) / float64(closing)
}

// RunningPerformance accumulates the same metrics one snapshot at a time so
// the day loop can emit a performance update without rescanning the series.
type RunningPerformance struct {
	initialCapital float64
	lastValue      float64
	peak           float64
	drawdown       float64

	count     int
	sum       float64
	sumSq     float64
	downCount int
	downSum   float64
	downSumSq float64

	totalTrades int
	closing     int
	wins        int
}

// NewRunningPerformance seeds the tracker with the opening snapshot value. The
// seed contributes to the drawdown peak but produces no return observation.
func NewRunningPerformance(initialCapital float64, openingValue float64) *RunningPerformance {
	return &RunningPerformance{
		initialCapital: initialCapital,
		lastValue:      openingValue,
		peak:           openingValue,
	}
}

// AddSnapshot records the next day's closing value.
func (r *RunningPerformance) AddSnapshot(value float64) {
	if r.lastValue > 0 {
		ret := value/r.lastValue - 1
		r.count++
		r.sum += ret
		r.sumSq += ret * ret
		if ret < 0 {
			r.downCount++
			r.downSum += ret
			r.downSumSq += ret * ret
		}
	}
	r.lastValue = value

	if value > r.peak {
		r.peak = value
	}
	if r.peak > 0 {
		if dd := value/r.peak - 1; dd < r.drawdown {
			r.drawdown = dd
		}
	}
}

// AddTrade records a fill so trade counts and the win rate stay current.
func (r *RunningPerformance) AddTrade(trade *models.ExecutedTrade) {
	r.totalTrades++
	if trade.RealizedGain == nil {
		return
	}
	r.closing++
	if *trade.RealizedGain > 0 {
		r.wins++
	}
}

// Metrics returns the figures as of the last recorded snapshot.
func (r *RunningPerformance) Metrics() *models.PerformanceMetrics {
	metrics := &models.PerformanceMetrics{
		InitialCapital: r.initialCapital,
		FinalValue:     r.lastValue,
		MaxDrawdown:    r.drawdown,
		TotalTrades:    r.totalTrades,
	}
	if r.initialCapital > 0 {
		metrics.TotalReturn = r.lastValue/r.initialCapital - 1
	}
	if r.closing > 0 {
		metrics.WinRate = float64(r.wins) / float64(r.closing)
	}

	if r.count > 0 {
		mean := r.sum / float64(r.count)
		variance := r.sumSq/float64(r.count) - mean*mean
		if variance < 0 {
			variance = 0
		}
		if std := math.Sqrt(variance); std > 0 {
			metrics.SharpeRatio = mean / std * math.Sqrt(tradingDaysPerYear)
		}

		if r.downCount > 0 {
			downMean := r.downSum / float64(r.downCount)
			downVariance := r.downSumSq/float64(r.downCount) - downMean*downMean
			if downVariance < 0 {
				downVariance = 0
			}
			if downside := math.Sqrt(downVariance); downside > 0 {
				metrics.SortinoRatio = mean / downside * math.Sqrt(tradingDaysPerYear)
			}
		}
	}

	return metrics
}
