package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/app"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/config"
	"github.com/noah-isme/storefront/internal/notify"
	"github.com/noah-isme/storefront/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, prometheus.DefaultRegisterer)

	redisOpt, err := app.TaskRedisOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	var mail common.EmailSender = common.NopEmailSender{}
	if sender := notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.NotifyEmailFrom); sender != nil {
		mail = sender
	} else if cfg.NotifyEmailEnabled {
		logger.Warn().Msg("SMTP_HOST not set, order emails will be dropped")
	}

	mux := notify.NewServeMux(notify.OrderEmailHandler{
		Mail:     mail,
		Enabled:  cfg.NotifyEmailEnabled,
		StoreURL: cfg.StoreURL,
		Logger:   logger,
	})

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{"notifications": 1},
		Logger:      taskLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

// taskLogger routes asynq's internal logging through zerolog.
type taskLogger struct {
	logger zerolog.Logger
}

func (l taskLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l taskLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l taskLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l taskLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l taskLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
