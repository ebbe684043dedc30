package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecgard/taskforge/internal/activity"
	"github.com/alecgard/taskforge/internal/auth"
	"github.com/alecgard/taskforge/internal/comment"
	"github.com/alecgard/taskforge/internal/config"
	"github.com/alecgard/taskforge/internal/database"
	"github.com/alecgard/taskforge/internal/task"
	"github.com/alecgard/taskforge/internal/team"
	"github.com/alecgard/taskforge/internal/user"
)

// app holds the stores and services shared by serve and seed.
type app struct {
	pool     *pgxpool.Pool
	db       *database.DB
	users    *user.Store
	activity *activity.Store
	bus      activity.Bus
	redis    *redis.Client
	recorder *activity.Recorder
	auth     *auth.Service
	teams    *team.Service
	tasks    *task.Service
	comments *comment.Service
}

// newApp connects to the database when one is configured and builds the
// services on top of it. Without a URL the stores fail with
// database.ErrNotConfigured.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	if cfg.Database.URL != "" {
		pool, err := database.Connect(ctx, cfg.Database.URL, database.PoolOptions{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		a.pool = pool
		slog.Info("connected to database")
	} else {
		slog.Warn("database.url is empty, data routes will answer 503")
	}
	a.db = database.New(a.pool)

	switch cfg.Events.Backend {
	case config.EventsBackendRedis:
		opts, err := redis.ParseURL(cfg.Events.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		a.bus = activity.NewRedisBus(a.redis, cfg.Events.Channel)
	default:
		a.bus = activity.NewLocalBus()
	}

	a.users = user.NewStore(a.db)
	teamStore := team.NewStore(a.db)
	taskStore := task.NewStore(a.db)
	a.activity = activity.NewStore(a.db)
	a.recorder = activity.NewRecorder(a.activity, a.bus)

	tokens := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
	})
	a.auth = auth.NewService(a.users, a.db, tokens, cfg.Auth.BcryptCost)
	a.teams = team.NewService(teamStore, a.users, a.db, a.recorder)
	a.tasks = task.NewService(taskStore, teamStore, a.db, a.recorder)
	a.comments = comment.NewService(comment.NewStore(a.db), taskStore, a.db, a.recorder)
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("closing redis client", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
