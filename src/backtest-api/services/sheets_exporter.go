package services

import (
	"context"

	log "github.com/sirupsen/logrus"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventpubsub"
	"github.com/fundsim/fund-backtester/src/sheets"
)

// SheetsExporter mirrors completed sessions into a Google spreadsheet: one
// summary row per session plus every fill. Export failures are logged and
// never affect the session itself.
type SheetsExporter struct {
	ctx           context.Context
	srv           *sheetsapi.Service
	spreadsheetID string
}

func NewSheetsExporter(ctx context.Context, srv *sheetsapi.Service, spreadsheetID string) *SheetsExporter {
	return &SheetsExporter{
		ctx:           ctx,
		srv:           srv,
		spreadsheetID: spreadsheetID,
	}
}

// Start subscribes the exporter to completed sessions.
func (s *SheetsExporter) Start() error {
	return eventpubsub.Subscribe(eventpubsub.BacktestCompletedEvent, s.exportResult)
}

func (s *SheetsExporter) exportResult(result *models.BacktestResult) {
	if result == nil || result.Session == nil || result.Metrics == nil {
		log.Error("SheetsExporter.exportResult: received an incomplete result")
		return
	}

	if err := sheets.AppendBacktestSummary(s.ctx, s.srv, s.spreadsheetID, result); err != nil {
		log.Errorf("SheetsExporter.exportResult: summary for %s: %v", result.Session.ID, err)
		return
	}

	if err := sheets.AppendBacktestTrades(s.ctx, s.srv, s.spreadsheetID, result); err != nil {
		log.Errorf("SheetsExporter.exportResult: trades for %s: %v", result.Session.ID, err)
		return
	}

	log.Infof("SheetsExporter.exportResult: exported session %s (%d trades)", result.Session.ID, len(result.Trades))
}
