package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ecodash/internal/amqp"
	"ecodash/internal/backend"
	"ecodash/internal/cli"
	apphttp "ecodash/internal/http"
	applog "ecodash/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	factory := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger)
	result, err := factory.CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	serverCfg := apphttp.DefaultConfig()
	serverCfg.CloseDelay = cfg.SuccessCloseDelay
	serverCfg.ProbePolicy = cfg.ProbePolicy
	serverCfg.ImportErrorLimit = cfg.ImportErrorLimit
	serverCfg.MaxUploadBytes = cfg.ImportMaxBytes
	serverCfg.RequestsPerMinute = cfg.RequestsPerMinute
	serverCfg.SourceTimeout = cfg.RecordSourceTimeout

	srv := apphttp.NewServer(":"+cfg.Port, result.Source, serverCfg, logger)

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Change events from other writers are optional; the dashboard still
	// drops its own cache after every write it makes.
	var events *amqp.Client
	if cfg.AMQPURL != "" {
		events, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue+".dashboard")
		if err != nil {
			logger.Warn("Change events disabled", "error", err)
			events = nil
		}
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
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
			if err := srv.ListenForChanges(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Change listener stopped", "error", err)
			}
		}()
	}

	logger.Info("Starting ecodash dashboard", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
