package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ecodash/internal/backend"
	"ecodash/internal/cli"
	applog "ecodash/internal/log"
	"ecodash/internal/recordapi"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentAPI)
	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.DataBackend == string(backend.RESTBackend) {
		logger.Error("The record API cannot proxy to another record API", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).
		CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	apiCfg := recordapi.DefaultConfig()
	apiCfg.MaxUploadBytes = cfg.ImportMaxBytes
	apiCfg.ErrorLimit = cfg.ImportErrorLimit

	srv := recordapi.NewServer(":"+cfg.APIPort, result.Source, apiCfg, logger)
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
	})

	logger.Info("Starting ecodash record API", "port", cfg.APIPort, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.APIPort)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Record API stopped gracefully")
}
