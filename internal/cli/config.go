package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultURL     = "http://localhost:8080"
	defaultTimeout = 10 * time.Second
)

// Config is read from ~/.jobtrack.yaml. JOBTRACK_URL overrides url.
type Config struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".jobtrack.yaml"
	}
	return filepath.Join(home, ".jobtrack.yaml")
}

// LoadConfig reads path if it exists and applies defaults and the
// environment override.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("JOBTRACK_URL"); v != "" {
		cfg.URL = v
	}
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return cfg, nil
}
