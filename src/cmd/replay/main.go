package main

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fundsim/fund-backtester/src/eventmodels"
	"github.com/fundsim/fund-backtester/src/eventstore"
	"github.com/fundsim/fund-backtester/src/utils"
)

type RunArgs struct {
	GoEnv     string
	SessionID string
	Verbose   bool
}

type RunResult struct {
	Events     int
	Mismatches int
}

var runCmd = &cobra.Command{
	Use:   "go run src/cmd/replay/main.go --session 0d7ff0b7-0b29-4e83-a98f-602e6d9a1a94",
	Short: "Replay a recorded backtest stream and verify its equity series",
	Run: func(cmd *cobra.Command, args []string) {
		goEnv, err := cmd.Flags().GetString("go-env")
		if err != nil {
			log.Fatalf("error getting go-env: %v", err)
		}

		sessionID, err := cmd.Flags().GetString("session")
		if err != nil {
			log.Fatalf("error getting session: %v", err)
		}

		verbose, err := cmd.Flags().GetBool("verbose")
		if err != nil {
			log.Fatalf("error getting verbose: %v", err)
		}

		result, err := Run(RunArgs{
			GoEnv:     goEnv,
			SessionID: sessionID,
			Verbose:   verbose,
		})

		if err != nil {
			log.Fatalf("Error: %v", err)
		}

		if result.Mismatches > 0 {
			log.Fatalf("replayed %d events, found %d equity mismatches", result.Events, result.Mismatches)
		}

		fmt.Printf("Replayed %d events\n", result.Events)
	},
}

func Run(args RunArgs) (RunResult, error) {
	projectsDir := os.Getenv("PROJECTS_DIR")
	if projectsDir == "" {
		log.Fatalf("missing PROJECTS_DIR environment variable")
	}

	if err := utils.InitEnvironmentVariables(projectsDir, args.GoEnv); err != nil {
		log.Fatalf("error loading environment variables: %v", err)
	}

	eventStoreDbURL, err := utils.GetEnv("EVENTSTOREDB_URL")
	if err != nil {
		log.Fatalf("missing EVENTSTOREDB_URL environment variable")
	}

	sessionID, err := uuid.Parse(args.SessionID)
	if err != nil {
		return RunResult{}, fmt.Errorf("invalid session id %q: %w", args.SessionID, err)
	}

	client, err := eventstore.NewClient(eventStoreDbURL)
	if err != nil {
		return RunResult{}, fmt.Errorf("error connecting to eventstoredb: %w", err)
	}
	defer client.Close()

	events, err := eventstore.ReadSession(context.Background(), client, sessionID)
	if err != nil {
		return RunResult{}, fmt.Errorf("error reading session stream: %w", err)
	}

	counts := make(map[eventmodels.BacktestEventType]int)

	var updates []*eventmodels.PortfolioUpdateEvent
	var complete *eventmodels.BacktestCompleteEvent

	for _, event := range events {
		counts[event.GetType()]++

		switch e := event.(type) {
		case *eventmodels.PortfolioUpdateEvent:
			updates = append(updates, e)
		case *eventmodels.BacktestCompleteEvent:
			complete = e
		}

		if args.Verbose {
			log.Info(describeEvent(event))
		}
	}

	for _, eventType := range []eventmodels.BacktestEventType{
		eventmodels.BacktestEventTypeStart,
		eventmodels.BacktestEventTypeProgress,
		eventmodels.BacktestEventTypeTrading,
		eventmodels.BacktestEventTypePortfolioUpdate,
		eventmodels.BacktestEventTypePerformanceUpdate,
		eventmodels.BacktestEventTypeComplete,
		eventmodels.BacktestEventTypeError,
	} {
		if counts[eventType] > 0 {
			log.Infof("%-20s %d", eventType, counts[eventType])
		}
	}

	mismatches := verifyEquitySeries(updates, complete)

	return RunResult{Events: len(events), Mismatches: mismatches}, nil
}

// verifyEquitySeries checks the daily portfolio updates against the snapshot
// series in the complete event. The first snapshot seeds the series before any
// trading day, so snapshot i+1 corresponds to update i.
func verifyEquitySeries(updates []*eventmodels.PortfolioUpdateEvent, complete *eventmodels.BacktestCompleteEvent) int {
	if complete == nil {
		log.Warn("replay: no complete event recorded, session did not finish")
		return 0
	}

	mismatches := 0

	if len(complete.Snapshots) != len(updates)+1 {
		log.Warnf("replay: %d portfolio updates but %d snapshots", len(updates), len(complete.Snapshots))
		mismatches++
	}

	for i, update := range updates {
		if i+1 >= len(complete.Snapshots) {
			break
		}

		snapshot := complete.Snapshots[i+1]
		if snapshot.Date != update.Date || math.Abs(snapshot.TotalValue-update.TotalValue) > 1e-6 {
			log.Warnf("replay: update %s total %.2f disagrees with snapshot %s total %.2f", update.Date, update.TotalValue, snapshot.Date, snapshot.TotalValue)
			mismatches++
		}
	}

	if mismatches == 0 {
		log.Infof("replay: equity series verified across %d trading days", len(updates))
	}

	return mismatches
}

func describeEvent(event eventmodels.BacktestEvent) string {
	switch e := event.(type) {
	case *eventmodels.BacktestStartEvent:
		return fmt.Sprintf("backtest_start: %d tickers over %d trading days", len(e.Tickers), e.TotalDays)
	case *eventmodels.BacktestProgressEvent:
		return fmt.Sprintf("backtest_progress: %s (%d of %d)", e.CurrentDate, e.CompletedDays, e.TotalDays)
	case *eventmodels.TradingEvent:
		return fmt.Sprintf("trading: %s %s %.0f %s @ %.2f", e.Date, e.Action, e.Quantity, e.Ticker, e.Price)
	case *eventmodels.PortfolioUpdateEvent:
		return fmt.Sprintf("portfolio_update: %s total %.2f cash %.2f", e.Date, e.TotalValue, e.Cash)
	case *eventmodels.PerformanceUpdateEvent:
		return fmt.Sprintf("performance_update: return %.2f%% sharpe %.2f drawdown %.2f%%", e.TotalReturn*100, e.SharpeRatio, e.MaxDrawdown*100)
	case *eventmodels.BacktestCompleteEvent:
		return fmt.Sprintf("backtest_complete: final %.2f over %d snapshots", e.FinalPerformance.FinalValue, len(e.Snapshots))
	case *eventmodels.BacktestErrorEvent:
		return fmt.Sprintf("error: %s", e.Message)
	default:
		return string(event.GetType())
	}
}

func main() {
	runCmd.PersistentFlags().String("go-env", "development", "The go environment to run the command in.")
	runCmd.PersistentFlags().String("session", "", "The backtest session id to replay.")
	runCmd.PersistentFlags().Bool("verbose", false, "Print every replayed event.")

	runCmd.MarkPersistentFlagRequired("session")

	runCmd.Execute()
}
