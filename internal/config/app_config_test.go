package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppConfig_SlogLevel(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		debug    bool
		want     slog.Level
	}{
		{"debug", "debug", false, slog.LevelDebug},
		{"info", "info", false, slog.LevelInfo},
		{"warn", "warn", false, slog.LevelWarn},
		{"error", "ERROR", false, slog.LevelError},
		{"unknown defaults to info", "unknown", false, slog.LevelInfo},
		{"empty defaults to info", "", false, slog.LevelInfo},
		{"debug flag wins", "error", true, slog.LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &AppConfig{LogLevel: tt.logLevel, Debug: tt.debug}
			assert.Equal(t, tt.want, c.SlogLevel())
		})
	}
}

func TestAppConfig_Paths(t *testing.T) {
	c := &AppConfig{DataDir: "/data"}
	assert.Equal(t, "/data/logs", c.LogDir())
	assert.Equal(t, "/data/notifyd.db", c.DBPath())
}

func TestLoad(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("NOTIFYD_DATA_DIR", "/tmp/test-notifyd")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("NOTIFYD_DISPATCH_FILE", "")
	t.Setenv("NOTIFYD_RETRY_DELAY", "250ms")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_FROM", "noreply@example.com")
	t.Setenv("SMS_GATEWAY_URL", "https://sms.example.com/send")
	t.Setenv("SMTP_ATTACHMENT_DIR", "/etc")
	t.Setenv("NOTIFYD_ATTACHMENT_DIR", "/srv/certs")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test-notifyd", cfg.DataDir)
	assert.Equal(t, "/tmp/test-notifyd/dispatch.yaml", cfg.DispatchFile)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 3, cfg.Workers)

	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "starttls", cfg.SMTP.Encryption)
	assert.Equal(t, "/srv/certs", cfg.AttachmentDir)
	assert.Equal(t, "/srv/certs", cfg.SMTP.AttachmentDir, "only the top-level setting reaches the mail driver")
	assert.Equal(t, "https://sms.example.com/send", cfg.SMS.GatewayURL)
	assert.Equal(t, 10*time.Second, cfg.SMS.Timeout)
}
