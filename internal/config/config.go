package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ecodash/internal/core"
	"ecodash/internal/services"
)

type Config struct {
	// HTTP servers
	Port    string
	APIPort string

	// Backend selection
	DataBackend string
	DataDir     string

	// REST Record Source
	RecordSourceURL     string
	RecordSourceTimeout time.Duration

	// Database
	SQLiteDBPath  string
	SeedCompanies []string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Write workflow
	ProbePolicy       services.ProbePolicy
	SuccessCloseDelay time.Duration
	RequestsPerMinute int

	// Imports
	ImportMaxBytes   int64
	ImportErrorLimit int

	// Google Sheets mirror
	GoogleSpreadsheetID string
	GoogleSheetPrefix   string
	MirrorInterval      time.Duration

	LogLevel string
}

var validBackends = []string{"memory", "sqlite", "rest"}

func Load() *Config {
	cfg := &Config{
		Port:    getEnv("PORT", "8081"),
		APIPort: getEnv("API_PORT", "8090"),

		DataBackend: getEnv("DATA_BACKEND", "memory"),
		DataDir:     getEnv("DATA_DIR", "data"),

		RecordSourceURL:     getEnv("RECORD_SOURCE_URL", "http://localhost:8090"),
		RecordSourceTimeout: getEnvDuration("RECORD_SOURCE_TIMEOUT", 10*time.Second),

		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/ecodash.db"),
		SeedCompanies: getEnvList("SEED_COMPANIES"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "ecodash"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "record_written"),

		ProbePolicy:       services.ProbePolicy(getEnv("CONFLICT_PROBE_POLICY", string(services.ProbeFailOpen))),
		SuccessCloseDelay: getEnvDuration("SUCCESS_CLOSE_DELAY", 1500*time.Millisecond),
		RequestsPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		ImportMaxBytes:   int64(getEnvInt("IMPORT_MAX_BYTES", 10<<20)),
		ImportErrorLimit: getEnvInt("IMPORT_ERROR_LIMIT", 50),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetPrefix:   getEnv("GOOGLE_SHEET_PREFIX", ""),
		MirrorInterval:      getEnvDuration("MIRROR_INTERVAL", 5*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error listing every
// problem found.
func (c *Config) Validate() error {
	var errors []string

	ports := []struct{ name, value string }{{"port", c.Port}, {"API port", c.APIPort}}
	for _, port := range ports {
		if p, err := strconv.Atoi(port.value); err != nil {
			errors = append(errors, fmt.Sprintf("invalid %s '%s': must be a number", port.name, port.value))
		} else if p < 1 || p > 65535 {
			errors = append(errors, fmt.Sprintf("invalid %s %d: must be between 1 and 65535", port.name, p))
		}
	}

	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.DataBackend == "rest" {
		if u, err := url.Parse(c.RecordSourceURL); err != nil || c.RecordSourceURL == "" {
			errors = append(errors, fmt.Sprintf("invalid record source URL '%s'", c.RecordSourceURL))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid record source URL scheme '%s': must be 'http' or 'https'", u.Scheme))
		}
	}
	if c.RecordSourceTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid record source timeout %v: must be positive", c.RecordSourceTimeout))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if !c.ProbePolicy.IsValid() {
		errors = append(errors, fmt.Sprintf("invalid conflict probe policy '%s': must be '%s' or '%s'", c.ProbePolicy, services.ProbeFailOpen, services.ProbeFailClosed))
	}
	if c.SuccessCloseDelay < 0 || c.SuccessCloseDelay > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid success close delay %v: must be between 0 and 1 minute", c.SuccessCloseDelay))
	}
	if c.RequestsPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RequestsPerMinute))
	}

	if c.ImportMaxBytes < 1024 {
		errors = append(errors, fmt.Sprintf("invalid import max bytes %d: must be at least 1024", c.ImportMaxBytes))
	}
	if c.ImportErrorLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid import error limit %d: must be at least 1", c.ImportErrorLimit))
	}

	if c.MirrorInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid mirror interval %v: must be at least 1 second", c.MirrorInterval))
	} else if c.MirrorInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid mirror interval %v: must be at most 24 hours", c.MirrorInterval))
	}

	for _, entry := range c.SeedCompanies {
		if id, _ := splitSeed(entry); id == "" {
			errors = append(errors, fmt.Sprintf("invalid seed company '%s': id is required", entry))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Companies returns SEED_COMPANIES as reference data. Entries are "ID" or
// "ID:Name".
func (c *Config) Companies() []core.Company {
	out := make([]core.Company, 0, len(c.SeedCompanies))
	for _, entry := range c.SeedCompanies {
		id, name := splitSeed(entry)
		if id == "" {
			continue
		}
		out = append(out, core.Company{ID: id, Name: name})
	}
	return out
}

func splitSeed(entry string) (string, string) {
	id, name, _ := strings.Cut(entry, ":")
	id, name = strings.TrimSpace(id), strings.TrimSpace(name)
	if name == "" {
		name = id
	}
	return id, name
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blank entries.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
