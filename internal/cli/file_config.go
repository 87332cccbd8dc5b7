package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// FileConfig holds the ecodash-cli settings that can be kept in a TOML,
// YAML or JSON file. Command-line flags override every field.
type FileConfig struct {
	APIURL   string   `toml:"api_url" yaml:"api_url" json:"api_url"`
	Timeout  string   `toml:"timeout" yaml:"timeout" json:"timeout"`
	Formats  []string `toml:"formats" yaml:"formats" json:"formats"`
	Dir      string   `toml:"dir" yaml:"dir" json:"dir"`
	Company  string   `toml:"company" yaml:"company" json:"company"`
	Year     int      `toml:"year" yaml:"year" json:"year"`
	Sections []string `toml:"sections" yaml:"sections" json:"sections"`
}

// TimeoutOr parses Timeout, returning def when it is unset.
func (c *FileConfig) TimeoutOr(def time.Duration) (time.Duration, error) {
	if c == nil || strings.TrimSpace(c.Timeout) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(c.Timeout))
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	return d, nil
}

// LoadFileConfig reads a TOML, YAML or JSON config file chosen by extension.
func LoadFileConfig(path string) (*FileConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a file", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("error parsing TOML file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("error parsing YAML file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("error parsing JSON file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}
	return &cfg, nil
}
