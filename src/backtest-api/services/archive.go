package services

import (
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventpubsub"
)

// ArchiveService persists every terminal session to Postgres. It listens on
// the event bus rather than being called by the runner, so archiving stays
// off the day loop's critical path.
type ArchiveService struct {
	db *gorm.DB
}

func NewArchiveService(db *gorm.DB) *ArchiveService {
	return &ArchiveService{db: db}
}

// Start subscribes the archive to the terminal session topics.
func (s *ArchiveService) Start() error {
	for _, topic := range []string{
		eventpubsub.BacktestCompletedEvent,
		eventpubsub.BacktestCancelledEvent,
		eventpubsub.BacktestFailedEvent,
	} {
		if err := eventpubsub.Subscribe(topic, s.archiveResult); err != nil {
			return err
		}
	}
	return nil
}

func (s *ArchiveService) archiveResult(result *models.BacktestResult) {
	if result == nil || result.Session == nil {
		log.Error("ArchiveService.archiveResult: received an empty result")
		return
	}

	record, err := models.NewBacktestRecord(result.Session, result.Metrics, result.Snapshots, result.Trades)
	if err != nil {
		log.Errorf("ArchiveService.archiveResult: building record for %s: %v", result.Session.ID, err)
		return
	}

	if err := s.db.Create(record).Error; err != nil {
		log.Errorf("ArchiveService.archiveResult: saving %s: %v", result.Session.ID, err)
		return
	}

	log.Infof("ArchiveService.archiveResult: archived session %s (%s)", result.Session.ID, result.Session.Status)
}
