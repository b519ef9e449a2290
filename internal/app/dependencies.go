// Package app opens the shared infrastructure clients used by the API and the worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/storefront/internal/config"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/ratelimit"
)

// Dependencies enumerates the infrastructure shared across the API's modules.
type Dependencies struct {
	DB           *pgxpool.Pool
	Redis        *redis.Client
	LimiterStore limiter.Store
	Tasks        *asynq.Client
}

// Open connects Postgres, Redis and the task client. Partially opened clients are closed on
// failure.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger, appName string) (*Dependencies, error) {
	deps := &Dependencies{}
	var err error
	if deps.DB, err = NewPool(ctx, cfg.DatabaseURL, appName, logger); err != nil {
		return nil, err
	}
	if deps.Redis, err = NewRedis(ctx, cfg.RedisURL, cfg.Obs.MetricsEnabled, logger); err != nil {
		deps.Close(logger)
		return nil, err
	}
	if deps.LimiterStore, err = ratelimit.NewRedisStore(deps.Redis, "ratelimit:fixed"); err != nil {
		deps.Close(logger)
		return nil, err
	}
	opt, err := TaskRedisOpt(cfg.RedisURL)
	if err != nil {
		deps.Close(logger)
		return nil, err
	}
	deps.Tasks = asynq.NewClient(opt)
	return deps, nil
}

// Close releases every opened client.
func (d *Dependencies) Close(logger zerolog.Logger) {
	if d == nil {
		return
	}
	if d.Tasks != nil {
		if err := d.Tasks.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

// NewPool opens the catalog pool with query tracing. Statements over 250ms are logged.
func NewPool(ctx context.Context, databaseURL, appName string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.QueryTracer{Logger: logger, SlowThreshold: 250 * time.Millisecond}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewRedis opens an instrumented Redis client. Instrumentation failures are logged, not fatal.
func NewRedis(ctx context.Context, redisURL string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// TaskRedisOpt derives the asynq connection from REDIS_URL.
func TaskRedisOpt(redisURL string) (asynq.RedisConnOpt, error) {
	if redisURL == "" {
		return nil, errors.New("redis url required")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse task redis url: %w", err)
	}
	return opt, nil
}
