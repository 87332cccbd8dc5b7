package backend

import (
	"context"
	"time"

	"ecodash/internal/core"
	"ecodash/internal/source"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the Record Source and optional cleanup function
type BackendResult struct {
	Source  source.RecordSource
	Cleanup CleanupFunc
}

// Factory creates Record Sources based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Reference data seeded into memory and sqlite backends. Empty means
	// the seed files in DataDirectory, or built-in defaults.
	SeedCompanies []core.Company

	// SQLite specific
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// REST specific
	RecordSourceURL     string
	RecordSourceTimeout time.Duration

	// Memory backend specific
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	RESTBackend   BackendType = "rest"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, RESTBackend:
		return true
	default:
		return false
	}
}
