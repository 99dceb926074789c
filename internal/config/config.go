package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName       string
	AppVersion    string
	Environment   string
	HTTPAddr      string
	AuthJWTSecret string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBSQLitePath      string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Stripe    StripeConfig
	RateLimit RateLimitConfig
	Renderer  RendererConfig
	Reconcile ReconcileConfig
	Metrics   AccountingMetricsConfig
}

type StripeConfig struct {
	SecretKey         string
	WebhookSecret     string
	ProPriceID        string
	EnterprisePriceID string
	AppURL            string
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RenderRate    float64
	RenderBurst   int
}

type RendererConfig struct {
	RemoteURL string
	ExecPath  string
	Timeout   time.Duration
	NoSandbox bool
}

type ReconcileConfig struct {
	Enabled      bool
	PollInterval time.Duration
	StaleAfter   time.Duration
}

type AccountingMetricsConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "htmlpdf"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		OTLPEndpoint:  strings.TrimSpace(getenv("OTLP_ENDPOINT", "")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "htmlpdf"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBSQLitePath:      getenv("DATABASE_SQLITE_PATH", "htmlpdf.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Stripe: StripeConfig{
			SecretKey:         strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:     strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			ProPriceID:        getenv("STRIPE_PRO_PRICE_ID", "price_pro"),
			EnterprisePriceID: getenv("STRIPE_ENTERPRISE_PRICE_ID", "price_enterprise"),
			AppURL:            strings.TrimRight(getenv("APP_URL", "http://localhost:3000"), "/"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379")),
			RedisPassword: getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			RenderRate:    getenvFloat("RATE_LIMIT_RENDER_RATE", 5),
			RenderBurst:   getenvInt("RATE_LIMIT_RENDER_BURST", 10),
		},
		Renderer: RendererConfig{
			RemoteURL: strings.TrimSpace(getenv("RENDERER_REMOTE_URL", "")),
			ExecPath:  strings.TrimSpace(getenv("RENDERER_EXEC_PATH", "")),
			Timeout:   getenvDuration("RENDERER_TIMEOUT", 30*time.Second),
			NoSandbox: getenvBool("RENDERER_NO_SANDBOX", true),
		},
		Reconcile: ReconcileConfig{
			Enabled:      getenvBool("RECONCILE_ENABLED", true),
			PollInterval: getenvDuration("RECONCILE_POLL_INTERVAL", 30*time.Second),
			StaleAfter:   getenvDuration("RECONCILE_STALE_AFTER", 10*time.Minute),
		},
		Metrics: AccountingMetricsConfig{
			Enabled:   getenvBool("ACCOUNTING_METRICS_ENABLED", false),
			Exporter:  strings.ToLower(getenv("ACCOUNTING_METRICS_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("ACCOUNTING_METRICS_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("ACCOUNTING_METRICS_AUTH_TOKEN", "")),
			Interval:  getenvDuration("ACCOUNTING_METRICS_INTERVAL", 5*time.Minute),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// IsDevelopment reports whether error payloads may carry internal detail.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
