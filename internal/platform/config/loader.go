package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	envConfigPath  = "VITARP_CONFIG"
	envServerToken = "VITARP_SERVER_TOKEN"
	envServerPort  = "VITARP_SERVER_PORT"
	envLogLevel    = "VITARP_LOG_LEVEL"
	envDataDir     = "VITARP_DATA_DIR"
)

// Loader reads the YAML configuration with optional .env support.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader that resolves the config path from the
// environment when not set explicitly.
func NewLoader() *Loader {
	return &Loader{useDotEnv: true}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the configuration file path (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load merges file contents over the defaults, then applies env overrides.
// A missing file is not an error; the defaults are used as-is.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		_ = godotenv.Load()
	}

	path := l.path
	if path == "" {
		path = os.Getenv(envConfigPath)
	}
	if path == "" {
		path = "config.yaml"
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		path = ""
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	return &Result{
		Config: cfg,
		Path:   path,
	}, nil
}

func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv(envServerToken); token != "" {
		cfg.Server.Token = token
		cfg.Server.Auth.Enabled = true
	}
	if port := os.Getenv(envServerPort); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			cfg.Server.Port = p
		}
	}
	if level := os.Getenv(envLogLevel); level != "" {
		cfg.Log.Level = level
	}
	if dir := os.Getenv(envDataDir); dir != "" {
		cfg.Storage.DataDir = dir
	}
}
