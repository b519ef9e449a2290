package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	DBMigrate          bool
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	AccessCookieName   string
	CORSAllowedOrigins []string
	CookieDomain       string
	CookieSecure       bool
	CookieSameSite     http.SameSite
	SessionCookieName  string
	CSRFEnabled        bool

	CartTTL               time.Duration
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
	TaxRateBPS            int
	CurrencyCode          string
	PaymentMethods        []string
	CatalogCacheTTL       time.Duration

	OrderAPIBaseURL          string
	OrderAPITimeout          time.Duration
	OrderAPIMaxAttempts      int
	CircuitOrderMinRequests  int
	CircuitOrderFailureRatio float64
	CircuitOrderOpenFor      time.Duration
	CheckoutLockTTL          time.Duration
	IdempotencyTTL           time.Duration

	RateLimitCartPerMinute     int
	RateLimitCheckoutPerMinute int
	BodyLimitBytes             int64
	SecurityHeadersEnabled     bool
	HSTSEnabled                bool

	NotifyEmailEnabled bool
	NotifyEmailFrom    string
	SMTPHost           string
	SMTPPort           int
	SMTPUser           string
	SMTPPassword       string
	StoreURL           string
	WorkerConcurrency  int

	Obs Obs

	HealthDBTimeout    time.Duration
	HealthRedisTimeout time.Duration
}

// Obs groups logging, metrics, tracing and profiling switches.
type Obs struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	MetricsEnabled   bool
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	TracingSampling  float64
	PprofEnabled     bool
	PprofUser        string
	PprofPassword    string
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
		DBMigrate:          parseBool(k.String("DB_MIGRATE"), false),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "storefront"),
		JWTAudience:        valueOrDefault(k.String("JWT_AUDIENCE"), "storefront-web"),
		AccessCookieName:   valueOrDefault(k.String("ACCESS_COOKIE_NAME"), "access_token"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CookieDomain:       strings.TrimSpace(k.String("COOKIE_DOMAIN")),
		CookieSecure:       parseBool(k.String("COOKIE_SECURE"), false),
		CookieSameSite:     parseSameSite(k.String("COOKIE_SAMESITE")),
		SessionCookieName:  valueOrDefault(k.String("SESSION_COOKIE_NAME"), "cart_session"),
		CSRFEnabled:        parseBool(k.String("CSRF_ENABLED"), false),

		CartTTL:         parseDuration(k.String("CART_TTL"), "720h"),
		TaxRateBPS:      parseInt(k.String("TAX_RATE_BPS"), 1500),
		CurrencyCode:    strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "USD")),
		PaymentMethods:  splitAndTrim(valueOrDefault(k.String("PAYMENT_METHODS"), "PayPal")),
		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "60s"),

		OrderAPIBaseURL:          strings.TrimRight(strings.TrimSpace(k.String("ORDER_API_BASE_URL")), "/"),
		OrderAPITimeout:          parseDuration(k.String("ORDER_API_TIMEOUT"), "5s"),
		OrderAPIMaxAttempts:      parseInt(k.String("ORDER_API_MAX_ATTEMPTS"), 1),
		CircuitOrderMinRequests:  parseInt(k.String("CIRCUIT_ORDER_MIN_REQUESTS"), 5),
		CircuitOrderFailureRatio: parseFloat(k.String("CIRCUIT_ORDER_FAILURE_RATIO"), 0.5),
		CircuitOrderOpenFor:      parseDuration(k.String("CIRCUIT_ORDER_OPEN_FOR"), "30s"),
		CheckoutLockTTL:          parseDuration(k.String("CHECKOUT_LOCK_TTL"), "30s"),
		IdempotencyTTL:           parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		RateLimitCartPerMinute:     parseInt(k.String("RATE_LIMIT_CART_PER_MINUTE"), 120),
		RateLimitCheckoutPerMinute: parseInt(k.String("RATE_LIMIT_CHECKOUT_PER_MINUTE"), 10),
		BodyLimitBytes:             int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		SecurityHeadersEnabled:     parseBool(k.String("SECURITY_HEADERS_ENABLED"), true),
		HSTSEnabled:                parseBool(k.String("SECURITY_HSTS_ENABLED"), false),

		NotifyEmailEnabled: parseBool(k.String("NOTIFY_EMAIL_ENABLED"), false),
		NotifyEmailFrom:    valueOrDefault(k.String("NOTIFY_EMAIL_FROM"), "orders@storefront.local"),
		SMTPHost:           strings.TrimSpace(k.String("SMTP_HOST")),
		SMTPPort:           parseInt(k.String("SMTP_PORT"), 587),
		SMTPUser:           k.String("SMTP_USER"),
		SMTPPassword:       k.String("SMTP_PASSWORD"),
		StoreURL:           strings.TrimRight(valueOrDefault(k.String("STORE_URL"), "http://localhost:3000"), "/"),
		WorkerConcurrency:  parseInt(k.String("WORKER_CONCURRENCY"), 5),

		Obs: Obs{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "storefront"),
			MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), true),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			TracingSampling:  parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
			PprofEnabled:     parseBool(k.String("OBS_ENABLE_PPROF"), false),
			PprofUser:        k.String("SECURE_PPROF_BASIC_AUTH_USER"),
			PprofPassword:    k.String("SECURE_PPROF_BASIC_AUTH_PASS"),
		},

		HealthDBTimeout:    time.Duration(parseInt(k.String("HEALTH_READY_DB_TIMEOUT_MS"), 500)) * time.Millisecond,
		HealthRedisTimeout: time.Duration(parseInt(k.String("HEALTH_READY_REDIS_TIMEOUT_MS"), 300)) * time.Millisecond,
	}

	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}

	var err error
	if cfg.FreeShippingThreshold, err = parseDecimal(k.String("FREE_SHIPPING_THRESHOLD"), "100"); err != nil {
		return nil, fmt.Errorf("FREE_SHIPPING_THRESHOLD: %w", err)
	}
	if cfg.FlatShippingFee, err = parseDecimal(k.String("FLAT_SHIPPING_FEE"), "10"); err != nil {
		return nil, fmt.Errorf("FLAT_SHIPPING_FEE: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.OrderAPIBaseURL == "" {
		return nil, errors.New("ORDER_API_BASE_URL is required")
	}
	if u, err := url.Parse(cfg.OrderAPIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ORDER_API_BASE_URL must be an absolute URL: %q", cfg.OrderAPIBaseURL)
	}
	if cfg.FreeShippingThreshold.IsNegative() || cfg.FlatShippingFee.IsNegative() {
		return nil, errors.New("shipping amounts must not be negative")
	}
	if cfg.TaxRateBPS < 0 {
		return nil, errors.New("TAX_RATE_BPS must not be negative")
	}
	if cfg.OrderAPIMaxAttempts < 1 {
		cfg.OrderAPIMaxAttempts = 1
	}
	if len(cfg.PaymentMethods) == 0 {
		cfg.PaymentMethods = []string{"PayPal"}
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

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
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
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDecimal(value, fallback string) (decimal.Decimal, error) {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	return decimal.NewFromString(base)
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
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
