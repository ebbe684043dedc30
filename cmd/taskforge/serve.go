package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/alecgard/taskforge/internal/activity"
	"github.com/alecgard/taskforge/internal/api"
	"github.com/alecgard/taskforge/internal/config"
	"github.com/alecgard/taskforge/internal/metrics"
	"github.com/alecgard/taskforge/internal/ratelimit"
	"github.com/alecgard/taskforge/internal/realtime"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the TaskForge HTTP and websocket server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	m := metrics.New()
	a.recorder.SetObserver(m)
	a.auth.SetObserver(m)
	if a.pool != nil {
		m.RegisterDBPoolCollector(a.db.Stat)
	}

	if rb, ok := a.bus.(*activity.RedisBus); ok {
		go func() {
			if err := rb.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("activity bus stopped", "error", err)
			}
		}()
	}

	gateway := realtime.NewGateway(a.bus, a.auth, a.teams, realtime.Options{
		SendBuffer:     cfg.Realtime.SendBuffer,
		WriteWait:      cfg.Realtime.WriteWait,
		PongWait:       cfg.Realtime.PongWait,
		PingPeriod:     cfg.Realtime.PingPeriod,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	gateway.SetObserver(m)

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)

	scheduler, err := newScheduler(cfg, a, limiter, m)
	if err != nil {
		return err
	}
	scheduler.Start()

	router := api.NewRouter(api.RouterDeps{
		Auth:             a.auth,
		Teams:            a.teams,
		Tasks:            a.tasks,
		Comments:         a.comments,
		Activity:         a.activity,
		Realtime:         gateway,
		Metrics:          m,
		DB:               a.db,
		Limiter:          limiter,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr(), "events_backend", cfg.Events.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", "error", err)
			return err
		}
	}
	slog.Info("shutting down")

	<-scheduler.Stop().Done()
	gateway.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newScheduler registers the maintenance jobs: purging expired sessions and
// evicting idle rate-limit buckets.
func newScheduler(cfg *config.Config, a *app, limiter *ratelimit.Limiter, m *metrics.Metrics) (*cron.Cron, error) {
	c := cron.New()

	if a.pool != nil {
		_, err := c.AddFunc(cfg.Jobs.SessionPurgeSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			n, err := a.users.PurgeExpiredSessions(ctx, time.Now().Add(-cfg.Jobs.SessionRetention))
			if err != nil {
				slog.Error("purging sessions", "error", err)
				return
			}
			m.AddSessionsPurged(n)
			if n > 0 {
				slog.Info("purged expired sessions", "count", n)
			}
		})
		if err != nil {
			return nil, err
		}
	}

	_, err := c.AddFunc(cfg.Jobs.LimiterCleanupSchedule, func() {
		if n := limiter.Cleanup(cfg.Jobs.LimiterIdleTimeout); n > 0 {
			slog.Debug("evicted idle rate limit buckets", "count", n)
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
