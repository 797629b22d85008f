package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all PULSE configuration.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
	Cron      CronConfig      `mapstructure:"cron"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Email     EmailConfig     `mapstructure:"email"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Session   SessionConfig   `mapstructure:"session"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	FX        FXConfig        `mapstructure:"fx"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StorageConfig defines database settings.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// CronConfig defines the alert run trigger and scheduling.
type CronConfig struct {
	Secret          string        `mapstructure:"secret"`
	Interval        time.Duration `mapstructure:"interval"`
	JobName         string        `mapstructure:"job_name"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	ErrorSampleSize int           `mapstructure:"error_sample_size"`
	ScheduleInProc  bool          `mapstructure:"schedule_in_process"`
}

// AlertsConfig defines delivery behaviour.
type AlertsConfig struct {
	ChannelTimeout time.Duration `mapstructure:"channel_timeout"`
}

// EmailConfig defines the SMTP relay. An empty host disables email.
type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// Enabled reports whether an SMTP relay is configured.
func (e EmailConfig) Enabled() bool {
	return e.SMTPHost != ""
}

// TelegramConfig defines the Bot API endpoint. Tokens are per organization.
type TelegramConfig struct {
	APIURL string `mapstructure:"api_url"`
}

// SessionConfig defines session token signing.
type SessionConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig defines manual trigger throttling.
type RateLimitConfig struct {
	ManualInterval time.Duration `mapstructure:"manual_interval"`
	ManualBurst    int           `mapstructure:"manual_burst"`
	RedisAddr      string        `mapstructure:"redis_addr"`
}

// FXConfig defines exchange rate settings.
type FXConfig struct {
	RatesFile string `mapstructure:"rates_file"`
}

// PricingConfig defines pricing data settings.
type PricingConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".pulse"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("PULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Every key needs a default, even an empty one, so AutomaticEnv can see it on Unmarshal.
func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	v.SetDefault("storage.path", filepath.Join(home, ".pulse", "pulse.db"))

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")

	v.SetDefault("cron.secret", "")
	v.SetDefault("cron.interval", "2h")
	v.SetDefault("cron.job_name", "alerts")
	v.SetDefault("cron.max_concurrency", 8)
	v.SetDefault("cron.error_sample_size", 10)
	v.SetDefault("cron.schedule_in_process", false)

	v.SetDefault("alerts.channel_timeout", "10s")

	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from", "")

	v.SetDefault("telegram.api_url", "https://api.telegram.org")

	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", "24h")

	v.SetDefault("ratelimit.manual_interval", "1m")
	v.SetDefault("ratelimit.manual_burst", 1)
	v.SetDefault("ratelimit.redis_addr", "")

	v.SetDefault("fx.rates_file", "config/fx.yaml")
	v.SetDefault("pricing.dir", "pricing/")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
