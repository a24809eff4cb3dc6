package main

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/evoqwell/evoqsite/internal/common"
	"github.com/evoqwell/evoqsite/internal/config"
	"github.com/evoqwell/evoqsite/internal/notify"
	"github.com/evoqwell/evoqsite/internal/obs"
	"github.com/evoqwell/evoqsite/internal/store"
)

func main() {
	cfg := config.MustLoad()

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool := mustConnectDB(ctx, cfg, logger)
	defer pool.Close()

	mailer := buildMailer(cfg, logger)

	mux := asynq.NewServeMux()
	mux.Handle(notify.TypeOrderConfirmation, notify.OrderConfirmationHandler{
		Store:  store.New(pool),
		Mailer: mailer,
	})

	srv := asynq.NewServer(asynqRedisOpt(cfg.RedisURL), asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Logger:      asynqLogger{logger},
	})

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker exited unexpectedly")
	}
}

func buildMailer(cfg *config.Config, logger zerolog.Logger) notify.OrderMailer {
	if !cfg.NotifyEmailEnabled {
		logger.Info().Msg("order email disabled")
		return notify.OrderMailer{Mail: common.NopEmailSender{}, Enabled: false}
	}
	if !cfg.EmailConfigured() {
		logger.Warn().Msg("EmailJS credentials missing, order email disabled")
		return notify.OrderMailer{Mail: common.NopEmailSender{}, Enabled: false}
	}

	buyer := notify.NewEmailJS(cfg.EmailJSServiceID, cfg.EmailJSBuyerTemplateID, cfg.EmailJSPublicKey, cfg.EmailJSPrivateKey)
	var admin common.EmailSender
	if cfg.EmailJSAdminTemplateID != "" {
		admin = notify.NewEmailJS(cfg.EmailJSServiceID, cfg.EmailJSAdminTemplateID, cfg.EmailJSPublicKey, cfg.EmailJSPrivateKey)
	}
	return notify.OrderMailer{
		Mail:          buyer,
		AdminMail:     admin,
		AdminEmail:    cfg.AdminEmail,
		VenmoUsername: cfg.VenmoUsername,
		Enabled:       true,
	}
}

func mustConnectDB(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "evoq-worker"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func asynqRedisOpt(redisURL string) asynq.RedisClientOpt {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{Addr: "localhost:6379"}
	}
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

// asynqLogger adapts zerolog to the asynq logging interface.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msgf("%v", args) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msgf("%v", args) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msgf("%v", args) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msgf("%v", args) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msgf("%v", args) }
