package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/backtest-api/services"
	"github.com/fundsim/fund-backtester/src/eventmodels"
	"github.com/fundsim/fund-backtester/src/eventservices"
	"github.com/fundsim/fund-backtester/src/strategy"
	"github.com/fundsim/fund-backtester/src/utils"
	"github.com/fundsim/fund-backtester/src/worker"
)

type RunArgs struct {
	GoEnv             string
	Tickers           []string
	Producers         []string
	StartDate         string
	EndDate           string
	InitialCapital    float64
	MarginRequirement float64
	Source            string
	OutDir            string
}

var runCmd = &cobra.Command{
	Use:   "go run src/cmd/backtester/main.go --tickers AAPL,MSFT --start 2024-01-02 --end 2024-03-28",
	Short: "Run a backtest offline and print the performance report",
	Run: func(cmd *cobra.Command, args []string) {
		goEnv, err := cmd.Flags().GetString("go-env")
		if err != nil {
			log.Fatalf("error getting go-env: %v", err)
		}

		tickers, err := cmd.Flags().GetStringSlice("tickers")
		if err != nil {
			log.Fatalf("error getting tickers: %v", err)
		}

		producers, err := cmd.Flags().GetStringSlice("producers")
		if err != nil {
			log.Fatalf("error getting producers: %v", err)
		}

		start, err := cmd.Flags().GetString("start")
		if err != nil {
			log.Fatalf("error getting start: %v", err)
		}

		end, err := cmd.Flags().GetString("end")
		if err != nil {
			log.Fatalf("error getting end: %v", err)
		}

		capital, err := cmd.Flags().GetFloat64("capital")
		if err != nil {
			log.Fatalf("error getting capital: %v", err)
		}

		margin, err := cmd.Flags().GetFloat64("margin")
		if err != nil {
			log.Fatalf("error getting margin: %v", err)
		}

		source, err := cmd.Flags().GetString("source")
		if err != nil {
			log.Fatalf("error getting source: %v", err)
		}

		outDir, err := cmd.Flags().GetString("outDir")
		if err != nil {
			log.Fatalf("error getting outDir: %v", err)
		}

		result, err := Run(RunArgs{
			GoEnv:             goEnv,
			Tickers:           tickers,
			Producers:         producers,
			StartDate:         start,
			EndDate:           end,
			InitialCapital:    capital,
			MarginRequirement: margin,
			Source:            source,
			OutDir:            outDir,
		})

		if err != nil {
			log.Fatalf("Error: %v", err)
		}

		fmt.Println(result.Metrics)
	},
}

func Run(args RunArgs) (*models.BacktestResult, error) {
	projectsDir := os.Getenv("PROJECTS_DIR")
	if projectsDir == "" {
		log.Fatalf("missing PROJECTS_DIR environment variable")
	}

	if err := utils.InitEnvironmentVariables(projectsDir, args.GoEnv); err != nil {
		log.Fatalf("error loading environment variables: %v", err)
	}

	config := eventmodels.NewDefaultEngineConfig()
	if configFile, err := utils.GetEnv("ENGINE_CONFIG_FILE"); err == nil {
		configPath := configFile
		if !filepath.IsAbs(configPath) {
			configPath = path.Join(projectsDir, "fund-backtester", "src", configFile)
		}

		loaded, loadErr := eventmodels.NewEngineConfigFromFile(configPath)
		if loadErr != nil {
			return nil, fmt.Errorf("error loading engine config: %w", loadErr)
		}

		config = loaded
	}

	if args.Source != "" {
		config.Data.Source = args.Source
	}

	provider, err := eventservices.NewBarProviderFromConfig(config, projectsDir)
	if err != nil {
		return nil, fmt.Errorf("error setting up bar provider: %w", err)
	}

	producers, err := strategy.NewDefaultRegistry(config)
	if err != nil {
		return nil, fmt.Errorf("error setting up producer registry: %w", err)
	}

	pool := worker.NewPool(config.WorkerPoolSize)
	pool.Start()
	defer pool.Stop()

	runner := services.NewRunner(provider, producers, pool, config)
	registry := services.NewSessionRegistry(runner, producers, config)

	producerIDs := args.Producers
	if len(producerIDs) == 0 {
		for _, info := range producers.List() {
			producerIDs = append(producerIDs, info.ID)
		}
	}

	result, err := registry.RunSync(context.Background(), models.BacktestRequest{
		Tickers:           args.Tickers,
		Producers:         producerIDs,
		StartDate:         args.StartDate,
		EndDate:           args.EndDate,
		InitialCapital:    args.InitialCapital,
		MarginRequirement: args.MarginRequirement,
	})

	if err != nil {
		return nil, fmt.Errorf("error running backtest: %w", err)
	}

	for _, warning := range result.Session.Warnings {
		log.Warnf("backtest warning: %s", warning)
	}

	log.Infof("session %s finished %s with %d trades over %d days", result.Session.ID, result.Session.Status, len(result.Trades), result.Session.TotalDays)

	if args.OutDir != "" {
		if err := writeResult(args.OutDir, result); err != nil {
			return nil, fmt.Errorf("error writing result: %w", err)
		}
	}

	return result, nil
}

func writeResult(outDir string, result *models.BacktestResult) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("writeResult: failed to create %s: %w", outDir, err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("writeResult: failed to marshal result: %w", err)
	}

	filename := path.Join(outDir, fmt.Sprintf("backtest_%s.json", result.Session.ID))
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writeResult: failed to write %s: %w", filename, err)
	}

	log.Infof("wrote result to %s", filename)

	return nil
}

func main() {
	runCmd.PersistentFlags().String("go-env", "development", "The go environment to run the command in.")
	runCmd.PersistentFlags().StringSlice("tickers", []string{}, "The tickers to backtest.")
	runCmd.PersistentFlags().StringSlice("producers", []string{}, "The signal producers to consult. Defaults to every registered producer.")
	runCmd.PersistentFlags().String("start", "", "The first trading day, formatted as 2006-01-02.")
	runCmd.PersistentFlags().String("end", "", "The last trading day, formatted as 2006-01-02.")
	runCmd.PersistentFlags().Float64("capital", 100000, "The initial capital in dollars.")
	runCmd.PersistentFlags().Float64("margin", 0.5, "The margin requirement for short positions.")
	runCmd.PersistentFlags().String("source", "", "Override the engine config data source: csv, polygon or synthetic.")
	runCmd.PersistentFlags().String("outDir", "", "The directory to write the result JSON to.")

	runCmd.MarkPersistentFlagRequired("tickers")
	runCmd.MarkPersistentFlagRequired("start")
	runCmd.MarkPersistentFlagRequired("end")

	runCmd.Execute()
}
