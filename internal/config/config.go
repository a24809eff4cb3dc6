package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	// Observability.
	LogFormat            string
	LogLevel             string
	MetricsNamespace     string
	MetricsBucketsMS     string
	TracingEnabled       bool
	TracingEndpoint      string
	TracingSamplingRatio float64

	// Storefront settings.
	VenmoUsername         string
	ShippingFlatRateCents int64
	CurrencyCode          string

	// Admin API access.
	AdminAccessToken string

	// Rate limits. The general limit applies to the whole API surface;
	// order and promo limits protect the two abuse-prone endpoints.
	GeneralRateLimit  int
	GeneralRateWindow time.Duration
	OrderRateLimit    int
	OrderRateWindow   time.Duration
	PromoRateLimit    int
	PromoRateWindow   time.Duration

	CatalogCacheTTL    time.Duration
	RequestBodyLimit   int64
	SecurityHeaders    bool
	HSTSEnabled        bool
	HSTSMaxAge         int
	WorkerConcurrency  int
	NotifyEmailEnabled bool

	// EmailJS transactional email settings.
	EmailJSServiceID       string
	EmailJSBuyerTemplateID string
	EmailJSAdminTemplateID string
	EmailJSPublicKey       string
	EmailJSPrivateKey      string
	AdminEmail             string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		LogFormat:            valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:             valueOrDefault(k.String("LOG_LEVEL"), "info"),
		MetricsNamespace:     valueOrDefault(k.String("METRICS_NAMESPACE"), "evoq"),
		MetricsBucketsMS:     k.String("METRICS_BUCKETS_MS"),
		TracingEnabled:       parseBool(k.String("TRACING_ENABLED"), false),
		TracingEndpoint:      k.String("TRACING_OTLP_ENDPOINT"),
		TracingSamplingRatio: parseFloat(k.String("TRACING_SAMPLING_RATIO"), 1),

		VenmoUsername:         valueOrDefault(k.String("VENMO_USERNAME"), "EVOQWELL"),
		ShippingFlatRateCents: parseInt64(k.String("SHIPPING_FLAT_RATE_CENTS"), 1000),
		CurrencyCode:          valueOrDefault(k.String("CURRENCY_CODE"), "USD"),

		AdminAccessToken: strings.TrimSpace(k.String("ADMIN_ACCESS_TOKEN")),

		GeneralRateLimit:  parseInt(k.String("RATE_LIMIT_GENERAL_MAX"), 100),
		GeneralRateWindow: parseDuration(k.String("RATE_LIMIT_GENERAL_WINDOW"), "15m"),
		OrderRateLimit:    parseInt(k.String("RATE_LIMIT_ORDER_MAX"), 10),
		OrderRateWindow:   parseDuration(k.String("RATE_LIMIT_ORDER_WINDOW"), "1h"),
		PromoRateLimit:    parseInt(k.String("RATE_LIMIT_PROMO_MAX"), 20),
		PromoRateWindow:   parseDuration(k.String("RATE_LIMIT_PROMO_WINDOW"), "1h"),

		CatalogCacheTTL:    parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		RequestBodyLimit:   parseInt64(k.String("REQUEST_BODY_LIMIT_BYTES"), 64<<10),
		SecurityHeaders:    parseBool(k.String("SECURITY_HEADERS_ENABLED"), true),
		HSTSEnabled:        parseBool(k.String("SECURITY_HSTS_ENABLED"), true),
		HSTSMaxAge:         parseInt(k.String("SECURITY_HSTS_MAX_AGE"), 31536000),
		WorkerConcurrency:  parseInt(k.String("WORKER_CONCURRENCY"), 4),
		NotifyEmailEnabled: parseBool(k.String("NOTIFY_EMAIL_ENABLED"), true),

		EmailJSServiceID:       k.String("EMAILJS_SERVICE_ID"),
		EmailJSBuyerTemplateID: k.String("EMAILJS_BUYER_TEMPLATE_ID"),
		EmailJSAdminTemplateID: k.String("EMAILJS_ADMIN_TEMPLATE_ID"),
		EmailJSPublicKey:       k.String("EMAILJS_PUBLIC_KEY"),
		EmailJSPrivateKey:      k.String("EMAILJS_PRIVATE_KEY"),
		AdminEmail:             k.String("ADMIN_EMAIL"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.ShippingFlatRateCents < 0 {
		return nil, errors.New("SHIPPING_FLAT_RATE_CENTS must not be negative")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// EmailConfigured reports whether the EmailJS credentials needed for
// transactional email are present.
func (c *Config) EmailConfigured() bool {
	return c.EmailJSServiceID != "" &&
		c.EmailJSBuyerTemplateID != "" &&
		c.EmailJSPublicKey != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseInt64(value string, fallback int64) int64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Intended for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without
// leaking changes into the surrounding process.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
