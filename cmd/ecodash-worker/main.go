package main

import (
	"context"
	"errors"
	"os"
	"time"

	"ecodash/internal/amqp"
	"ecodash/internal/backend"
	"ecodash/internal/cli"
	applog "ecodash/internal/log"
	"ecodash/internal/sheets"
	gsheet "ecodash/internal/sheets/google"
	memsheet "ecodash/internal/sheets/memory"
	"ecodash/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting ecodash-worker")

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	// The worker only reads; writes and their events come from the API.
	backendCfg.AMQPURL = ""
	result, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).
		CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	var mirror sheets.ReportWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		mirror = client
		logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		mirror = memsheet.New()
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory")
	}

	mirrorWorker := worker.NewMirrorWorker(result.Source, mirror)

	var events *amqp.Client
	if cfg.AMQPURL != "" {
		events, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue+".mirror")
		if err != nil {
			logger.Warn("Change events disabled, relying on periodic mirror", "error", err)
			events = nil
		}
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if events != nil {
			if err := events.Close(); err != nil {
				logger.Error("AMQP close error", "error", err)
			}
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
	})

	if events != nil {
		go func() {
			if err := events.ConsumeRecordWritten(ctx, mirrorWorker.HandleRecordWritten); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
		}()
	}

	if err := mirrorWorker.Run(ctx, cfg.MirrorInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Mirror worker stopped", "error", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
