package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ecodash/internal/adapters"
	"ecodash/internal/amqp"
	"ecodash/internal/core"
	"ecodash/internal/source"
	"ecodash/internal/source/memory"
	"ecodash/internal/source/rest"
	"ecodash/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case RESTBackend:
		return f.createRESTBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	companies := config.SeedCompanies
	if len(companies) == 0 {
		companies, _ = memory.NewFromFiles(dataDir(config)).ListCompanies(ctx)
	}
	if err := sqliteRepo.SeedReference(ctx, companies, core.DefaultExpenditureTypes); err != nil {
		_ = sqliteRepo.Close()
		return nil, fmt.Errorf("failed to seed reference data: %w", err)
	}

	var (
		src         source.RecordSource = sqliteRepo
		cleanup                         = sqliteRepo.Close
		amqpEnabled bool
	)

	// AMQP is optional
	if config.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without change events", "error", err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			src = adapters.NewPublishingSource(sqliteRepo, amqpClient)
			amqpEnabled = true
			cleanup = func() error {
				return errors.Join(amqpClient.Close(), sqliteRepo.Close())
			}
		}
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", amqpEnabled)

	return &BackendResult{Source: src, Cleanup: cleanup}, nil
}

func (f *DefaultFactory) createRESTBackend(config Config) (*BackendResult, error) {
	client := rest.NewClient(config.RecordSourceURL, config.RecordSourceTimeout)

	f.logger.Info("Initialized REST backend",
		"url", config.RecordSourceURL,
		"timeout", config.RecordSourceTimeout)

	return &BackendResult{Source: client}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	var store *memory.Store
	if len(config.SeedCompanies) > 0 {
		store = memory.New(config.SeedCompanies, core.DefaultExpenditureTypes)
	} else {
		store = memory.NewFromFiles(dataDir(config))
	}

	f.logger.Info("Initialized memory backend", "data_directory", dataDir(config))

	return &BackendResult{Source: store}, nil
}

func dataDir(config Config) string {
	if config.DataDirectory == "" {
		return "data"
	}
	return config.DataDirectory
}
