package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/evoqwell/evoqsite/internal/auth"
	"github.com/evoqwell/evoqsite/internal/catalog"
	"github.com/evoqwell/evoqsite/internal/checkout"
	"github.com/evoqwell/evoqsite/internal/config"
	"github.com/evoqwell/evoqsite/internal/db"
	"github.com/evoqwell/evoqsite/internal/health"
	"github.com/evoqwell/evoqsite/internal/notify"
	"github.com/evoqwell/evoqsite/internal/obs"
	"github.com/evoqwell/evoqsite/internal/order"
	"github.com/evoqwell/evoqsite/internal/promo"
	"github.com/evoqwell/evoqsite/internal/ratelimit"
	"github.com/evoqwell/evoqsite/internal/security"
	"github.com/evoqwell/evoqsite/internal/store"
)

func main() {
	cfg := config.MustLoad()

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "evoq-api",
			Endpoint:      cfg.TracingEndpoint,
			Exporter:      "otlp",
			SamplingRatio: cfg.TracingSamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool := mustConnectDB(ctx, cfg, logger)
	defer pool.Close()

	if err := db.MigrateUp(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	redisClient := mustConnectRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	taskClient := asynq.NewClient(asynqRedisOpt(cfg.RedisURL))
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	validate := validator.New()
	st := store.New(pool)

	catalogSvc := catalog.NewService(catalog.ServiceConfig{
		Store:                 st,
		Cache:                 catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		Validate:              validate,
		ShippingFlatRateCents: cfg.ShippingFlatRateCents,
		CurrencyCode:          cfg.CurrencyCode,
	})
	catalogHandler := catalog.NewHandler(catalogSvc)
	catalogAdmin := catalog.NewAdminHandler(catalogSvc)

	promoSvc := promo.NewService(st, validate)
	promoHandler := promo.NewHandler(promoSvc)
	promoAdmin := promo.NewAdminHandler(promoSvc)

	checkoutSvc := checkout.NewService(checkout.ServiceConfig{
		Store:                 st,
		Validate:              validate,
		Enqueuer:              notify.Enqueuer{Client: taskClient},
		Logger:                logger,
		ShippingFlatRateCents: cfg.ShippingFlatRateCents,
		VenmoUsername:         cfg.VenmoUsername,
	})
	checkoutHandler := checkout.NewHandler(checkoutSvc)

	orderHandler := order.NewHandler(st, cfg.VenmoUsername)
	orderAdmin := order.NewAdminHandler(st, cfg.VenmoUsername)

	adminToken := auth.AdminToken{Token: cfg.AdminAccessToken}

	slidingLimiter := ratelimit.Limiter{Client: redisClient, Prefix: "rl"}
	limitErrLogger := func(err error) {
		logger.Warn().Err(err).Msg("rate limiter unavailable, failing open")
	}
	orderLimit := ratelimit.Handler{
		Limiter: slidingLimiter,
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("orders"),
			Window: cfg.OrderRateWindow,
			Max:    cfg.OrderRateLimit,
		},
		OnError: limitErrLogger,
	}
	promoLimit := ratelimit.Handler{
		Limiter: slidingLimiter,
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("promos"),
			Window: cfg.PromoRateWindow,
			Max:    cfg.PromoRateLimit,
		},
		OnError: limitErrLogger,
	}

	limiterStore, err := ratelimit.NewGeneralStore(redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise limiter store")
	}
	generalLimiter := limiterstdlib.NewMiddleware(limiter.New(limiterStore, limiter.Rate{
		Period: cfg.GeneralRateWindow,
		Limit:  int64(cfg.GeneralRateLimit),
	}))

	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBucketsMS), nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{
		Enable:                cfg.SecurityHeaders,
		EnableHSTS:            cfg.HSTSEnabled,
		HSTSMaxAge:            cfg.HSTSMaxAge,
		HSTSIncludeSubdomains: true,
	}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.RequestBodyLimit}.Middleware)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))
	r.Use(generalLimiter.Handler)

	r.Handle("/metrics", promhttp.Handler())
	if cfg.AppEnv != "production" {
		user := os.Getenv("PPROF_BASIC_AUTH_USER")
		pass := os.Getenv("PPROF_BASIC_AUTH_PASS")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker: health.Probes{DB: pool, Redis: redisClient},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.List)
		v.Get("/products/{sku}", catalogHandler.Detail)

		v.With(promoLimit.Middleware).Get("/promo-codes/{code}", promoHandler.Get)

		v.Post("/orders/quote", checkoutHandler.Quote)
		v.With(orderLimit.Middleware).Post("/orders", checkoutHandler.Create)
		v.Get("/orders/{number}", orderHandler.Get)

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(adminToken.Middleware)

			admin.Get("/products", catalogAdmin.List)
			admin.Post("/products", catalogAdmin.Create)
			admin.Put("/products/{sku}", catalogAdmin.Update)
			admin.Delete("/products/{sku}", catalogAdmin.Delete)

			admin.Get("/promo-codes", promoAdmin.List)
			admin.Post("/promo-codes", promoAdmin.Create)
			admin.Put("/promo-codes/{code}", promoAdmin.Update)
			admin.Delete("/promo-codes/{code}", promoAdmin.Delete)

			admin.Get("/orders", orderAdmin.List)
			admin.Get("/orders/{number}", orderAdmin.Get)
			admin.Patch("/orders/{number}/status", orderAdmin.PatchStatus)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		health.SetReady(false)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
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
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "evoq-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustConnectRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

// asynqRedisOpt converts a Redis URL into asynq connection options.
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

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
