package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/shaharia-lab/notifyd/internal/channel"
)

// AppConfig holds all process-level configuration loaded from environment variables.
type AppConfig struct {
	// Port is the HTTP server port. Defaults to 8990.
	Port int `envconfig:"PORT" default:"8990"`

	// DataDir is the root data directory. Defaults to ~/.notifyd.
	DataDir string `envconfig:"NOTIFYD_DATA_DIR"`

	// LogLevel sets the minimum log level (debug, info, warn, error). Defaults to info.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Debug turns on skip and rejection diagnostics regardless of LogLevel.
	Debug bool `envconfig:"NOTIFYD_DEBUG"`

	// DispatchFile is the dispatch policy YAML. Defaults to <DataDir>/dispatch.yaml.
	DispatchFile string `envconfig:"NOTIFYD_DISPATCH_FILE"`

	// Workers is the number of concurrent delivery workers.
	Workers int `envconfig:"NOTIFYD_WORKERS" default:"3"`

	// MaxAttempts bounds how often a delivery job runs when it hits storage errors.
	MaxAttempts int `envconfig:"NOTIFYD_MAX_ATTEMPTS" default:"3"`

	// RetryDelay is the backoff before a job's first retry.
	RetryDelay time.Duration `envconfig:"NOTIFYD_RETRY_DELAY" default:"5s"`

	// StaleAfter is how long a delivery may stay pending or sending before the
	// sweeper marks it failed.
	StaleAfter time.Duration `envconfig:"NOTIFYD_STALE_AFTER" default:"15m"`

	// SweepInterval is how often the sweeper looks for stale deliveries.
	SweepInterval time.Duration `envconfig:"NOTIFYD_SWEEP_INTERVAL" default:"1m"`

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `envconfig:"NOTIFYD_CORS_ORIGINS"`

	// OTLPEndpoint is the OpenTelemetry collector (host:port) for traces, metrics
	// and logs. Empty disables OTLP export.
	OTLPEndpoint string `envconfig:"NOTIFYD_OTLP_ENDPOINT"`
	OTLPInsecure bool   `envconfig:"NOTIFYD_OTLP_INSECURE"`

	// AttachmentDir is the only directory mail attachments (issued
	// certificates) are read from. Empty disables attachments.
	AttachmentDir string `envconfig:"NOTIFYD_ATTACHMENT_DIR"`

	SMTP channel.SMTPConfig `envconfig:"SMTP"`
	SMS  channel.SMSConfig  `envconfig:"SMS"`
}

// Load reads AppConfig from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	var c AppConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".notifyd")
	}
	if c.DispatchFile == "" {
		c.DispatchFile = filepath.Join(c.DataDir, "dispatch.yaml")
	}
	c.SMTP.AttachmentDir = c.AttachmentDir
	return &c, nil
}

// SlogLevel converts the LogLevel string to a slog.Level. Debug forces
// slog.LevelDebug. Unknown values default to slog.LevelInfo.
func (c *AppConfig) SlogLevel() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogDir returns the path to the log directory (~/.notifyd/logs).
func (c *AppConfig) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// DBPath returns the path to the SQLite database.
func (c *AppConfig) DBPath() string {
	return filepath.Join(c.DataDir, "notifyd.db")
}
