package cli

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/tooldispatch/config"
)

// resolveConfig loads configuration and applies any flags the user set
// explicitly on cmd.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.Load(config.Options{
		ConfigPath: configPath,
		EnvFile:    envFile,
	})
	if err != nil {
		return config.Config{}, exitError(exitConfig, "%v", err)
	}

	if flagChanged(cmd, "host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if flagChanged(cmd, "port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if flagChanged(cmd, "tools-dir") {
		cfg.ToolsDir, _ = cmd.Flags().GetString("tools-dir")
	}
	if flagChanged(cmd, "cors-origin") {
		cfg.CORSOrigin, _ = cmd.Flags().GetString("cors-origin")
	}
	if flagChanged(cmd, "max-body-bytes") {
		cfg.MaxBodyBytes, _ = cmd.Flags().GetInt64("max-body-bytes")
	}
	if flagChanged(cmd, "journal") {
		cfg.Journal.Path, _ = cmd.Flags().GetString("journal")
	}
	if flagChanged(cmd, "otlp-endpoint") {
		cfg.Telemetry.OTLPEndpoint, _ = cmd.Flags().GetString("otlp-endpoint")
	}
	if flagChanged(cmd, "log-format") {
		cfg.LogFormat, _ = cmd.Flags().GetString("log-format")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, exitError(exitConfig, "%v", err)
	}
	return cfg, nil
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

// newLogger builds the process logger. --verbose and --quiet override the
// configured level.
func newLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	return buildLogger(cmd.ErrOrStderr(), cfg.LogFormat, resolveLevel(cmd, cfg.LogLevel))
}

func resolveLevel(cmd *cobra.Command, configured string) slog.Level {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")
	switch {
	case quiet:
		return slog.LevelError
	case verbose:
		return slog.LevelDebug
	}
	return parseLevel(configured)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
