package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/pulse/internal/clock"
	"github.com/ogulcanaydogan/pulse/internal/ratelimit"
	"github.com/ogulcanaydogan/pulse/internal/scheduler"
	"github.com/ogulcanaydogan/pulse/internal/server"
	"github.com/ogulcanaydogan/pulse/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the alert API server",
	Long: `Start the HTTP API that exposes the scheduled and manual alert run triggers,
run status, in-app notifications and Prometheus metrics. With
cron.schedule_in_process enabled the alert job also runs on cron.interval.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Listen address (default from config)")
	serveCmd.Flags().Bool("schedule", false, "Run the alert job in-process every cron.interval")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}
	if schedule, _ := cmd.Flags().GetBool("schedule"); schedule {
		cfg.Cron.ScheduleInProc = true
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	if cfg.Cron.Secret == "" {
		logger.Warn("cron.secret is not set, alert run triggers will answer 500")
	}

	limiter, closeLimiter := initLimiter(cmd.Context(), a)
	defer closeLimiter()

	apiServer := server.NewServer(a.store, a.orchestrator, server.Options{
		CronSecret:   cfg.Cron.Secret,
		CronInterval: cfg.Cron.Interval,
		Sessions:     session.NewManager(cfg.Session.Secret, cfg.Session.TTL, nil),
		Limiter:      limiter,
		Metrics:      a.metrics,
	}, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Cron.ScheduleInProc {
		sched := scheduler.New(a.orchestrator.JobName(), cfg.Cron.Interval, cfg.Cron.Interval, func(ctx context.Context) error {
			_, err := a.orchestrator.RunAll(ctx)
			return err
		}, logger)
		go sched.RunForever(ctx)
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", "listen", cfg.Server.Listen)
		fmt.Fprintf(os.Stderr, "PULSE listening on %s\n", cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// initLimiter uses Redis when ratelimit.redis_addr is set so several
// replicas share the manual run budget, and an in-process bucket otherwise.
func initLimiter(ctx context.Context, a *app) (ratelimit.Limiter, func()) {
	rl := a.cfg.RateLimit
	if rl.RedisAddr == "" {
		return ratelimit.NewMemory(rl.ManualInterval, rl.ManualBurst, clock.Real{}), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: rl.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.logger.Warn("redis unreachable, manual runs fail until it recovers", "addr", rl.RedisAddr, "error", err)
	}
	return ratelimit.NewRedis(client, rl.ManualInterval, rl.ManualBurst), func() { client.Close() }
}
