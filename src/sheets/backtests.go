package sheets

import (
	"context"
	"fmt"

	"google.golang.org/api/sheets/v4"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/utils"
)

const (
	summarySheetName = "Backtests"
	tradesSheetName  = "Trades"
)

// AppendBacktestSummary adds one row per finished session to the summary tab.
func AppendBacktestSummary(ctx context.Context, srv *sheets.Service, spreadsheetID string, result *models.BacktestResult) error {
	session := result.Session
	metrics := result.Metrics

	row := []interface{}{
		session.ID.String(),
		string(session.Status),
		session.Request.StartDate,
		session.Request.EndDate,
		metrics.InitialCapital,
		metrics.FinalValue,
		metrics.TotalReturn,
		metrics.SharpeRatio,
		metrics.SortinoRatio,
		metrics.MaxDrawdown,
		metrics.TotalTrades,
		metrics.WinRate,
	}

	return appendRows(ctx, srv, spreadsheetID, summarySheetName, [][]interface{}{row})
}

// AppendBacktestTrades adds the session's fills to the trades tab, one row per
// executed trade.
func AppendBacktestTrades(ctx context.Context, srv *sheets.Service, spreadsheetID string, result *models.BacktestResult) error {
	if len(result.Trades) == 0 {
		return nil
	}

	values := make([][]interface{}, 0, len(result.Trades))
	for _, trade := range result.Trades {
		realized := interface{}("")
		if trade.RealizedGain != nil {
			realized = *trade.RealizedGain
		}
		values = append(values, []interface{}{
			result.Session.ID.String(),
			trade.Date.Format(utils.DateLayout),
			trade.Ticker,
			string(trade.Action),
			trade.Quantity,
			trade.Price,
			trade.PortfolioValue,
			realized,
		})
	}

	return appendRows(ctx, srv, spreadsheetID, tradesSheetName, values)
}

func appendRows(ctx context.Context, srv *sheets.Service, spreadsheetID string, sheetName string, values [][]interface{}) error {
	row := &sheets.ValueRange{
		Values: values,
	}

	response, err := srv.Spreadsheets.Values.Append(spreadsheetID, sheetName, row).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return err
	}

	if response.HTTPStatusCode != 200 {
		return fmt.Errorf("invalid http status code: %v", response.HTTPStatusCode)
	}

	return nil
}
