package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/pulse/internal/clock"
	"github.com/ogulcanaydogan/pulse/internal/config"
	"github.com/ogulcanaydogan/pulse/internal/metrics"
	"github.com/ogulcanaydogan/pulse/pkg/alerts"
	"github.com/ogulcanaydogan/pulse/pkg/engine"
	"github.com/ogulcanaydogan/pulse/pkg/fx"
	"github.com/ogulcanaydogan/pulse/pkg/pricing"
	"github.com/ogulcanaydogan/pulse/pkg/storage"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "PULSE - multi-tenant cloud and AI spend alerts",
	Long: `PULSE tracks cloud and AI provider spend per organization, evaluates
threshold alert rules on a schedule and notifies members by email, Telegram,
signed webhooks and in-app notifications.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.pulse/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// resolveDir falls back to a directory of the same name next to the executable.
func resolveDir(dir string) string {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		exePath, _ := os.Executable()
		if exePath != "" {
			alt := filepath.Join(filepath.Dir(exePath), filepath.Base(filepath.Clean(dir)))
			if _, altErr := os.Stat(alt); altErr == nil {
				return alt
			}
		}
	}
	return dir
}

// initRegistry loads the AI pricing tables.
func initRegistry(cfg *config.Config) (*pricing.Registry, error) {
	registry, err := pricing.LoadDir(resolveDir(cfg.Pricing.Dir))
	if err != nil {
		return nil, fmt.Errorf("load pricing: %w", err)
	}
	return registry, nil
}

// initRates loads exchange rates. Without a rates file only EUR records can be summed.
func initRates(cfg *config.Config, logger *slog.Logger) (*fx.Converter, error) {
	path := cfg.FX.RatesFile
	if path == "" {
		return fx.NewConverter(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn("exchange rates file not found, only EUR costs are supported", "path", path)
		return fx.NewConverter(), nil
	}
	rates, err := fx.LoadRates(path)
	if err != nil {
		return nil, fmt.Errorf("load exchange rates: %w", err)
	}
	return rates, nil
}

// initStorage creates a storage backend from config.
func initStorage(cfg *config.Config) (storage.Storage, error) {
	return storage.NewSQLite(cfg.Storage.Path)
}

// initChannels builds the outbound senders. Email stays nil without an SMTP host.
func initChannels(cfg *config.Config, logger *slog.Logger) engine.Channels {
	ch := engine.Channels{
		Telegram: alerts.NewTelegramClient(cfg.Telegram.APIURL),
		Webhook:  alerts.NewWebhookPoster(),
	}
	if cfg.Email.Enabled() {
		mailer, err := alerts.NewSMTPMailer(alerts.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		})
		if err != nil {
			logger.Warn("email alerts disabled", "error", err)
		} else {
			ch.Email = mailer
		}
	}
	return ch
}

// app is the wired alert engine shared by the serve and alerts commands.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        storage.Storage
	metrics      *metrics.Metrics
	orchestrator *engine.Orchestrator
}

func newApp(cfg *config.Config) (*app, error) {
	logger := newLogger(cfg)

	rates, err := initRates(cfg, logger)
	if err != nil {
		return nil, err
	}
	store, err := initStorage(cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	clk := clock.Real{}
	agg := engine.NewAggregator(store, rates, clk)
	eval := engine.NewEvaluator(store, agg, clk, m, logger)
	disp := engine.NewDispatcher(store, initChannels(cfg, logger), cfg.Alerts.ChannelTimeout, m, logger)
	orch := engine.NewOrchestrator(store, eval, disp, engine.OrchestratorConfig{
		JobName:         cfg.Cron.JobName,
		MaxConcurrency:  cfg.Cron.MaxConcurrency,
		ErrorSampleSize: cfg.Cron.ErrorSampleSize,
	}, clk, m, logger)

	return &app{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		metrics:      m,
		orchestrator: orch,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
