package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/videopipe/video-analyzer/internal/chaos"
	"github.com/videopipe/video-analyzer/internal/config"
	"github.com/videopipe/video-analyzer/shared/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("CHAOS_HARNESS_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/chaos-harness/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateHarnessConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting chaos harness",
		slog.String("api_base_url", cfg.Harness.APIBaseURL),
		slog.String("owner_id", cfg.Harness.OwnerID),
	)

	harness := chaos.NewHarness(
		chaos.NewAPIClient(cfg.Harness.APIBaseURL),
		chaos.Options{
			OwnerID:            cfg.Harness.OwnerID,
			ResultPollTimeout:  cfg.Harness.ResultPollTimeout.Std(),
			ResultPollInterval: cfg.Harness.ResultPollInterval.Std(),
			DLQPollTimeout:     cfg.Harness.DLQPollTimeout.Std(),
			DLQPollInterval:    cfg.Harness.DLQPollInterval.Std(),
			InducedDelay:       cfg.Harness.InducedDelay.Std(),
		},
		appLogger.Logger,
	)

	// A signal cancels the run; the harness restores its snapshot before
	// returning, so faults never outlive an interrupted run.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		appLogger.Warn("Received signal, aborting run and restoring state",
			slog.String("signal", sig.String()),
		)
		cancel()
	}()

	report, runErr := harness.Run(ctx)

	if len(report.Phases) > 0 {
		reportPath, err := report.Write(cfg.Harness.ReportDir)
		if err != nil {
			appLogger.Error("Failed to write report", slog.Any("error", err))
		} else {
			appLogger.Info("Report written", slog.String("path", reportPath))
		}
	}

	if runErr != nil {
		return fmt.Errorf("harness run aborted: %w", runErr)
	}

	if !report.Passed() {
		for _, phase := range report.Phases {
			if !phase.Passed {
				appLogger.Error("Phase failed",
					slog.String("phase", phase.Name),
					slog.String("error", phase.Error),
				)
			}
		}
		return fmt.Errorf("resilience run failed")
	}

	appLogger.Info("All phases passed")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}
