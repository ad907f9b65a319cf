// Package config resolves dispatcher settings from defaults, an optional YAML
// file, a .env file, and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultFileName is looked up in the working directory when no explicit
	// config path is given.
	DefaultFileName = "tooldispatch.yaml"

	DefaultHost     = "0.0.0.0"
	DefaultPort     = 3000
	DefaultToolsDir = "tools"

	// DefaultMaxBodyBytes caps POST /tool request bodies.
	DefaultMaxBodyBytes int64 = 100 << 10
)

// Environment variable names.
const (
	EnvPort               = "PORT"
	EnvHost               = "TOOLDISPATCH_HOST"
	EnvToolsDir           = "TOOLDISPATCH_TOOLS_DIR"
	EnvJournal            = "TOOLDISPATCH_JOURNAL"
	EnvLogLevel           = "TOOLDISPATCH_LOG_LEVEL"
	EnvMaxBodyBytes       = "TOOLDISPATCH_MAX_BODY_BYTES"
	EnvOTLPEndpoint       = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPTracesEndpoint = "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"
)

// Config is the resolved dispatcher configuration.
type Config struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ToolsDir     string        `yaml:"tools_dir"`
	CORSOrigin   string        `yaml:"cors_origin"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	LogLevel     string        `yaml:"log_level"`
	LogFormat    string        `yaml:"log_format"`
	Journal      JournalConfig `yaml:"journal"`
	Telemetry    Telemetry     `yaml:"telemetry"`
}

// JournalConfig controls the optional SQLite invocation journal.
type JournalConfig struct {
	// Path is the SQLite file; empty disables the journal.
	Path          string        `yaml:"path"`
	Retention     time.Duration `yaml:"retention"`
	PruneSchedule string        `yaml:"prune_schedule"`
}

// Telemetry controls OpenTelemetry export.
type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		ToolsDir:     DefaultToolsDir,
		CORSOrigin:   "*",
		MaxBodyBytes: DefaultMaxBodyBytes,
		LogLevel:     "info",
		LogFormat:    "text",
		Journal: JournalConfig{
			Retention:     7 * 24 * time.Hour,
			PruneSchedule: "@hourly",
		},
		Telemetry: Telemetry{
			ServiceName: "tooldispatch",
		},
	}
}

// Options tells Load where to look.
type Options struct {
	// ConfigPath is an explicit YAML file; a missing explicit file is an error.
	ConfigPath string
	// EnvFile is a dotenv file loaded before reading the environment. A missing
	// file is ignored.
	EnvFile string
	// WorkDir anchors the default config lookup; defaults to os.Getwd.
	WorkDir string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Load resolves configuration with precedence env > file > defaults. Command
// line flags are applied on top by the caller.
func Load(opts Options) (Config, error) {
	if opts.EnvFile != "" {
		if err := loadDotEnv(opts.EnvFile); err != nil {
			return Config{}, fmt.Errorf("config: load env file %q: %w", opts.EnvFile, err)
		}
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := Default()

	path, found, err := discoverPath(opts.ConfigPath, opts.WorkDir)
	if err != nil {
		return Config{}, err
	}
	if found {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration values that cannot be served.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if strings.TrimSpace(c.ToolsDir) == "" {
		return errors.New("config: tools_dir is required")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: max_body_bytes must be positive, got %d", c.MaxBodyBytes)
	}
	if c.Journal.Retention < 0 {
		return errors.New("config: journal retention must not be negative")
	}
	return nil
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func discoverPath(explicitPath, workDir string) (string, bool, error) {
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		clean = filepath.Clean(clean)
		info, err := os.Stat(clean)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", false, fmt.Errorf("config: file %q not found", clean)
			}
			return "", false, fmt.Errorf("config: checking %q: %w", clean, err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config: %q is a directory", clean)
		}
		return clean, true, nil
	}

	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", false, fmt.Errorf("config: resolve working directory: %w", err)
		}
		workDir = wd
	}
	candidate := filepath.Join(workDir, DefaultFileName)
	info, err := os.Stat(candidate)
	switch {
	case err == nil && !info.IsDir():
		return candidate, true, nil
	case err == nil, errors.Is(err, fs.ErrNotExist):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("config: checking %q: %w", candidate, err)
	}
}

func loadFile(path string, cfg *Config) error {
	// #nosec G304 -- path resolved from explicit local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %q: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return fmt.Errorf("config: parsing %q: %w", path, err)
	}
	// Relative tools/journal paths are anchored to the config file.
	baseDir := filepath.Dir(path)
	cfg.ToolsDir = resolveRelative(baseDir, cfg.ToolsDir)
	cfg.Journal.Path = resolveRelative(baseDir, cfg.Journal.Path)
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if raw := strings.TrimSpace(getenv(EnvPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("config: invalid %s %q: %w", EnvPort, raw, err)
		}
		cfg.Port = port
	}
	if raw := strings.TrimSpace(getenv(EnvMaxBodyBytes)); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("config: invalid %s %q: %w", EnvMaxBodyBytes, raw, err)
		}
		cfg.MaxBodyBytes = n
	}
	if v := strings.TrimSpace(getenv(EnvHost)); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(getenv(EnvToolsDir)); v != "" {
		cfg.ToolsDir = v
	}
	if v := strings.TrimSpace(getenv(EnvJournal)); v != "" {
		cfg.Journal.Path = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(getenv(EnvOTLPTracesEndpoint)); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	} else if v := strings.TrimSpace(getenv(EnvOTLPEndpoint)); v != "" {
		// The generic variable is a base URL; traces live under /v1/traces.
		cfg.Telemetry.OTLPEndpoint = strings.TrimSuffix(v, "/") + "/v1/traces"
	}
	return nil
}

func resolveRelative(baseDir, p string) string {
	if strings.TrimSpace(p) == "" || strings.HasPrefix(strings.ToLower(p), "file:") {
		return p
	}
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return clean
	}
	return filepath.Join(baseDir, clean)
}
