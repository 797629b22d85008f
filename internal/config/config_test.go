package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/pulse/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 2*time.Hour, cfg.Cron.Interval)
	assert.Equal(t, "alerts", cfg.Cron.JobName)
	assert.Equal(t, 8, cfg.Cron.MaxConcurrency)
	assert.Equal(t, 10, cfg.Cron.ErrorSampleSize)
	assert.False(t, cfg.Cron.ScheduleInProc)
	assert.Equal(t, 10*time.Second, cfg.Alerts.ChannelTimeout)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.False(t, cfg.Email.Enabled())
	assert.Equal(t, "https://api.telegram.org", cfg.Telegram.APIURL)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, time.Minute, cfg.RateLimit.ManualInterval)
	assert.Equal(t, 1, cfg.RateLimit.ManualBurst)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "pricing/", cfg.Pricing.Dir)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	data := []byte(`
storage:
  path: /tmp/test.db
server:
  listen: ":9090"
cron:
  secret: s3cret
  interval: 30m
  schedule_in_process: true
email:
  smtp_host: smtp.example.com
  from: alerts@example.com
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(cfgPath, data, 0o644))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.Storage.Path)
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, "s3cret", cfg.Cron.Secret)
	assert.Equal(t, 30*time.Minute, cfg.Cron.Interval)
	assert.True(t, cfg.Cron.ScheduleInProc)
	assert.True(t, cfg.Email.Enabled())
	assert.Equal(t, "alerts@example.com", cfg.Email.From)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PULSE_LOGGING_LEVEL", "error")
	t.Setenv("PULSE_SERVER_LISTEN", ":7070")
	t.Setenv("PULSE_CRON_SECRET", "from-env")
	t.Setenv("PULSE_RATELIMIT_REDIS_ADDR", "localhost:6379")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, ":7070", cfg.Server.Listen)
	assert.Equal(t, "from-env", cfg.Cron.Secret)
	assert.Equal(t, "localhost:6379", cfg.RateLimit.RedisAddr)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("invalid: [yaml"), 0o644))

	_, err := config.Load(cfgPath)
	assert.Error(t, err)
}
