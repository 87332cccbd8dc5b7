package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	applog "ecodash/internal/log"
)

func discardLogger() *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Output = io.Discard
	return applog.New(cfg)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFileConfig(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "toml",
			file: "ecodash.toml",
			content: `api_url = "http://api:8090"
timeout = "5s"
formats = ["csv", "pdf"]
company = "ACME"
year = 2023
`,
		},
		{
			name: "yaml",
			file: "ecodash.yml",
			content: `api_url: http://api:8090
timeout: 5s
formats: [csv, pdf]
company: ACME
year: 2023
`,
		},
		{
			name:    "json",
			file:    "ecodash.json",
			content: `{"api_url":"http://api:8090","timeout":"5s","formats":["csv","pdf"],"company":"ACME","year":2023}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFileConfig(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("LoadFileConfig: %v", err)
			}
			if cfg.APIURL != "http://api:8090" {
				t.Errorf("APIURL = %q", cfg.APIURL)
			}
			if strings.Join(cfg.Formats, ",") != "csv,pdf" {
				t.Errorf("Formats = %v", cfg.Formats)
			}
			if cfg.Company != "ACME" || cfg.Year != 2023 {
				t.Errorf("filter = %q/%d", cfg.Company, cfg.Year)
			}
			timeout, err := cfg.TimeoutOr(time.Minute)
			if err != nil || timeout != 5*time.Second {
				t.Errorf("TimeoutOr = %v, %v", timeout, err)
			}
		})
	}
}

func TestLoadFileConfigErrors(t *testing.T) {
	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadFileConfig(t.TempDir()); err == nil || !strings.Contains(err.Error(), "directory") {
		t.Errorf("expected directory error, got %v", err)
	}
	if _, err := LoadFileConfig(writeFile(t, "cfg.ini", "a=b")); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("expected unsupported format error, got %v", err)
	}
	if _, err := LoadFileConfig(writeFile(t, "cfg.json", "{")); err == nil {
		t.Error("expected parse error")
	}
}

func TestTimeoutOr(t *testing.T) {
	var nilCfg *FileConfig
	if d, err := nilCfg.TimeoutOr(time.Second); err != nil || d != time.Second {
		t.Errorf("nil config = %v, %v", d, err)
	}
	if _, err := (&FileConfig{Timeout: "soon"}).TimeoutOr(time.Second); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestRunShutdownRunsCleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cleaned := make(chan struct{})
	done := runShutdown(ctx, cancel, discardLogger(), time.Second, func(context.Context) {
		close(cleaned)
	})

	cancel()
	WaitForShutdown(ctx, done)

	select {
	case <-cleaned:
	default:
		t.Fatal("cleanup did not run")
	}
}

func TestRunShutdownTimesOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)

	done := runShutdown(ctx, cancel, discardLogger(), 20*time.Millisecond, func(ctx context.Context) {
		<-release
	})
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not give up after timeout")
	}
}

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger("debug", applog.ComponentCLI)
	if logger.Component() != applog.ComponentCLI {
		t.Errorf("component = %q", logger.Component())
	}
	if !logger.Enabled(context.Background(), -4) {
		t.Error("debug level should be enabled")
	}
}
