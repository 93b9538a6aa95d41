package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// BacktestRecord archives a finished session. Snapshots and trades hang off
// it so a completed run can be reloaded for reporting without re-simulating.
type BacktestRecord struct {
	gorm.Model
	SessionID         uuid.UUID        `gorm:"column:session_id;type:uuid;not null;uniqueIndex:idx_backtest_session_id"`
	Status            string           `gorm:"column:status;type:text;not null"`
	Tickers           pq.StringArray   `gorm:"column:tickers;type:text[]"`
	Producers         pq.StringArray   `gorm:"column:producers;type:text[]"`
	StartAt           time.Time        `gorm:"column:start_at;type:timestamptz;not null"`
	EndAt             time.Time        `gorm:"column:end_at;type:timestamptz;not null"`
	InitialCapital    float64          `gorm:"column:initial_capital;type:numeric;not null"`
	MarginRequirement float64          `gorm:"column:margin_requirement;type:numeric;not null"`
	FinalValue        float64          `gorm:"column:final_value;type:numeric"`
	TotalReturn       float64          `gorm:"column:total_return;type:numeric"`
	SharpeRatio       float64          `gorm:"column:sharpe_ratio;type:numeric"`
	SortinoRatio      float64          `gorm:"column:sortino_ratio;type:numeric"`
	MaxDrawdown       float64          `gorm:"column:max_drawdown;type:numeric"`
	ErrorMessage      *string          `gorm:"column:error_message;type:text"`
	Snapshots         []SnapshotRecord `gorm:"foreignKey:BacktestID"`
	Trades            []TradeRecord    `gorm:"foreignKey:BacktestID"`
}

type SnapshotRecord struct {
	gorm.Model
	BacktestID  uint      `gorm:"column:backtest_id;not null;index:idx_snapshot_backtest_id"`
	Date        time.Time `gorm:"column:date;type:timestamptz;not null"`
	Cash        float64   `gorm:"column:cash;type:numeric;not null"`
	TotalValue  float64   `gorm:"column:total_value;type:numeric;not null"`
	DailyReturn float64   `gorm:"column:daily_return;type:numeric;not null"`
}

type TradeRecord struct {
	gorm.Model
	BacktestID uint      `gorm:"column:backtest_id;not null;index:idx_trade_backtest_id"`
	Date       time.Time `gorm:"column:date;type:timestamptz;not null"`
	Ticker     string    `gorm:"column:ticker;type:text;not null"`
	Action     string    `gorm:"column:action;type:text;not null"`
	Quantity   float64   `gorm:"column:quantity;type:numeric;not null"`
	Price      float64   `gorm:"column:price;type:numeric;not null"`
}

func NewBacktestRecord(session *BacktestSession, metrics *PerformanceMetrics, snapshots []*DailySnapshot, trades []*ExecutedTrade) (*BacktestRecord, error) {
	start, end, err := session.Request.Dates()
	if err != nil {
		return nil, err
	}

	record := &BacktestRecord{
		SessionID:         session.ID,
		Status:            string(session.Status),
		Tickers:           session.Request.Tickers,
		Producers:         session.Request.Producers,
		StartAt:           start,
		EndAt:             end,
		InitialCapital:    session.Request.InitialCapital,
		MarginRequirement: session.Request.MarginRequirement,
		ErrorMessage:      session.ErrorMessage,
	}

	if metrics != nil {
		record.FinalValue = metrics.FinalValue
		record.TotalReturn = metrics.TotalReturn
		record.SharpeRatio = metrics.SharpeRatio
		record.SortinoRatio = metrics.SortinoRatio
		record.MaxDrawdown = metrics.MaxDrawdown
	}

	for _, snapshot := range snapshots {
		record.Snapshots = append(record.Snapshots, SnapshotRecord{
			Date:        snapshot.Date,
			Cash:        snapshot.Cash,
			TotalValue:  snapshot.TotalValue,
			DailyReturn: snapshot.DailyReturn,
		})
	}

	for _, trade := range trades {
		record.Trades = append(record.Trades, TradeRecord{
			Date:     trade.Date,
			Ticker:   trade.Ticker,
			Action:   string(trade.Action),
			Quantity: trade.Quantity,
			Price:    trade.Price,
		})
	}

	return record, nil
}
