package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otellogrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdk_trace "go.opentelemetry.io/otel/sdk/trace"

	backtest_router "github.com/fundsim/fund-backtester/src/backtest-api/router"
	"github.com/fundsim/fund-backtester/src/backtest-api/services"
	"github.com/fundsim/fund-backtester/src/dbutils"
	"github.com/fundsim/fund-backtester/src/eventmodels"
	"github.com/fundsim/fund-backtester/src/eventpubsub"
	"github.com/fundsim/fund-backtester/src/eventservices"
	"github.com/fundsim/fund-backtester/src/eventstore"
	"github.com/fundsim/fund-backtester/src/sheets"
	"github.com/fundsim/fund-backtester/src/strategy"
	"github.com/fundsim/fund-backtester/src/utils"
	"github.com/fundsim/fund-backtester/src/worker"
)

func main() {
	run()
}

// setupOTelSDK bootstraps the OpenTelemetry pipeline.
// If it does not return an error, make sure to call shutdown for proper cleanup.
func setupOTelSDK(ctx context.Context) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	// shutdown calls cleanup functions registered via shutdownFuncs.
	// The errors from the calls are joined.
	// Each registered cleanup will be invoked once.
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	// handleErr calls shutdown for cleanup and makes sure that all errors are returned.
	handleErr := func(inErr error) {
		err = errors.Join(inErr, shutdown(ctx))
	}

	prop := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(prop)

	traceExporter, err := otlptrace.New(ctx, otlptracehttp.NewClient())
	if err != nil {
		return nil, err
	}

	res, _ := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", "fund-backtester")))

	tracerProvider := sdk_trace.NewTracerProvider(
		sdk_trace.WithBatcher(traceExporter),
		sdk_trace.WithResource(res),
	)

	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	metricExporter, err := otlpmetrichttp.New(ctx)
	if err != nil {
		handleErr(err)
		return
	}

	meterProvider := metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(metricExporter)))
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	if err = runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		log.Fatalf("runtime.Start: %v", err)
	}

	return
}

// loadEngineConfig reads the engine config named by ENGINE_CONFIG_FILE, or
// falls back to built-in defaults when the variable is unset.
func loadEngineConfig(projectsDir string) (*eventmodels.EngineConfigYAML, error) {
	configFile, err := utils.GetEnv("ENGINE_CONFIG_FILE")
	if err != nil {
		log.Info("ENGINE_CONFIG_FILE not set, using default engine config")
		return eventmodels.NewDefaultEngineConfig(), nil
	}

	configPath := configFile
	if !filepath.IsAbs(configPath) {
		configPath = path.Join(projectsDir, "fund-backtester", "src", configFile)
	}

	return eventmodels.NewEngineConfigFromFile(configPath)
}

func run() {
	projectsDir, err := utils.GetEnv("PROJECTS_DIR")
	if err != nil {
		log.Fatalf("PROJECTS_DIR not set: %v", err)
	}

	goEnv, err := utils.GetEnv("GO_ENV")
	if err != nil {
		log.Fatalf("GO_ENV not set: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	if err := utils.InitEnvironmentVariables(projectsDir, goEnv); err != nil {
		log.Panic(err)
	}

	eventpubsub.Init()

	log.SetOutput(os.Stdout)

	log.Infof("Log level set to %v", log.GetLevel())

	// Set up Telemetry
	log.AddHook(otellogrus.NewHook(otellogrus.WithLevels(
		log.PanicLevel,
		log.FatalLevel,
		log.ErrorLevel,
		log.WarnLevel,
		log.InfoLevel,
	)))

	if _, err := utils.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT"); err == nil {
		otelShutdown, setupErr := setupOTelSDK(ctx)
		if setupErr != nil {
			log.Fatalf("failed to setup otel sdk: %v", setupErr)
		}

		defer func() {
			if shutdownErr := otelShutdown(context.Background()); shutdownErr != nil {
				log.Errorf("failed to shutdown otel sdk: %v", shutdownErr)
			}
		}()
	}

	// Load engine config
	config, err := loadEngineConfig(projectsDir)
	if err != nil {
		log.Fatalf("failed to load engine config: %v", err)
	}

	// Setup price data provider
	provider, err := eventservices.NewBarProviderFromConfig(config, projectsDir)
	if err != nil {
		log.Fatalf("failed to setup bar provider: %v", err)
	}

	// Setup signal producers
	producers, err := strategy.NewDefaultRegistry(config)
	if err != nil {
		log.Fatalf("failed to setup producer registry: %v", err)
	}

	// Setup worker pool
	pool := worker.NewPool(config.WorkerPoolSize)
	pool.Start()

	runner := services.NewRunner(provider, producers, pool, config)

	// Setup event store recorder
	if eventStoreDbURL, err := utils.GetEnv("EVENTSTOREDB_URL"); err == nil {
		esdbClient, esdbErr := eventstore.NewClient(eventStoreDbURL)
		if esdbErr != nil {
			log.Fatalf("failed to connect to eventstoredb: %v", esdbErr)
		}
		defer esdbClient.Close()

		runner.SetEventSink(eventstore.NewRecorder(esdbClient))
		log.Info("Main: event recording enabled")
	}

	sessionRegistry := services.NewSessionRegistry(runner, producers, config)

	// Setup postgres archive
	if postgresHost, err := utils.GetEnv("POSTGRES_HOST"); err == nil {
		postgresPort, err := utils.GetEnv("POSTGRES_PORT")
		if err != nil {
			log.Fatalf("$POSTGRES_PORT not set: %v", err)
		}

		postgresUser, err := utils.GetEnv("POSTGRES_USER")
		if err != nil {
			log.Fatalf("$POSTGRES_USER not set: %v", err)
		}

		postgresPassword, err := utils.GetEnv("POSTGRES_PASSWORD")
		if err != nil {
			log.Fatalf("$POSTGRES_PASSWORD not set: %v", err)
		}

		postgresDb, err := utils.GetEnv("POSTGRES_DB")
		if err != nil {
			log.Fatalf("$POSTGRES_DB not set: %v", err)
		}

		db, err := dbutils.InitPostgres(postgresHost, postgresPort, postgresUser, postgresPassword, postgresDb)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		if err := services.NewArchiveService(db).Start(); err != nil {
			log.Fatalf("failed to start archive service: %v", err)
		}
		log.Info("Main: archive enabled")
	}

	// Setup google sheets export
	if spreadsheetID, err := utils.GetEnv("BACKTEST_SPREADSHEET_ID"); err == nil {
		srv, sheetsErr := sheets.Setup(ctx)
		if sheetsErr != nil {
			log.Fatalf("failed to create google sheets client: %v", sheetsErr)
		}

		if err := services.NewSheetsExporter(ctx, srv, spreadsheetID).Start(); err != nil {
			log.Fatalf("failed to start sheets exporter: %v", err)
		}
		log.Info("Main: sheets export enabled")
	}

	// Setup router
	port, err := utils.GetEnv("PORT")
	if err != nil {
		log.Fatalf("$PORT not set: %v", err)
	}

	router := mux.NewRouter()
	backtest_router.SetupHandler(router.PathPrefix("/backtest").Subrouter(), sessionRegistry, producers, config)

	// Register pprof handlers
	pprofRouter := router.PathPrefix("/debug/pprof").Subrouter()
	pprofRouter.HandleFunc("/", http.HandlerFunc(pprof.Index))
	pprofRouter.HandleFunc("/cmdline", http.HandlerFunc(pprof.Cmdline))
	pprofRouter.HandleFunc("/profile", http.HandlerFunc(pprof.Profile))
	pprofRouter.HandleFunc("/symbol", http.HandlerFunc(pprof.Symbol))
	pprofRouter.HandleFunc("/trace", http.HandlerFunc(pprof.Trace))
	pprofRouter.Handle("/allocs", pprof.Handler("allocs"))
	pprofRouter.Handle("/block", pprof.Handler("block"))
	pprofRouter.Handle("/goroutine", pprof.Handler("goroutine"))
	pprofRouter.Handle("/heap", pprof.Handler("heap"))
	pprofRouter.Handle("/mutex", pprof.Handler("mutex"))
	pprofRouter.Handle("/threadcreate", pprof.Handler("threadcreate"))

	// Setup web server
	srv := &http.Server{
		Handler: otelhttp.NewHandler(router, "backtest-api"),
		Addr:    fmt.Sprintf(":%s", port),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	// Start web server
	go func() {
		log.Infof("listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil {
			if err.Error() != "http: Server closed" {
				log.Fatalf("failed to start server: %v", err)
			}
		}
	}()

	// Create channel for shutdown signals.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	signal.Notify(stop, syscall.SIGTERM)

	log.Info("Main: init complete")

	// Block here until program is shut down
	<-stop

	// shut down the web server, then let running sessions observe the cancel
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("failed to shutdown server: %v", err)
	}

	cancel()

	sessionRegistry.Wait()
	pool.Stop()

	log.Info("Main: gracefully stopped!")
}
