package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

// Config holds application configuration.
type Config struct {
	AppName     string `validate:"required"`
	AppVersion  string
	Environment string `validate:"required"`
	HTTPAddr    string `validate:"required"`

	LogLevel  string `validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `validate:"omitempty,oneof=json console"`

	OTLPEndpoint   string
	OTLPProtocol   string `validate:"omitempty,oneof=grpc http"`
	TracingEnabled bool
	MetricsEnabled bool

	DBType            string `validate:"required,oneof=postgres mysql sqlite"`
	DBHost            string
	DBPort            string
	DBName            string `validate:"required"`
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int `validate:"gte=0"`
	DBMaxOpenConn     int `validate:"gte=0"`
	DBConnMaxLifetime int `validate:"gte=0"`
	DBConnMaxIdleTime int `validate:"gte=0"`
	RunMigrations     bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int `validate:"gte=0"`

	SnowflakeNode int64 `validate:"gte=0,lte=1023"`

	SeedTenantID    int64 `validate:"gte=0"`
	SeedOwnerUserID int64 `validate:"gte=0"`

	Sequence    SequenceConfig
	BOM         BOMConfig
	RateLimit   RateLimitConfig
	MetricsPush MetricsPushConfig
}

type SequenceConfig struct {
	LockBackend   string `validate:"required,oneof=local redis"`
	LockTimeoutMS int64  `validate:"gte=1"`
	LockRetries   int    `validate:"gte=0,lte=20"`
	DefaultsPath  string
}

// RateLimitConfig bounds generate calls per tenant and sequence. Buckets
// live in redis so every replica shares them.
type RateLimitConfig struct {
	Enabled       bool
	GenerateRate  float64 `validate:"gte=0"`
	GenerateBurst int     `validate:"gte=0"`
}

// MetricsPushConfig ships the prometheus registry to a remote collector for
// deployments that cannot be scraped.
type MetricsPushConfig struct {
	Exporter        string `validate:"omitempty,oneof=prometheus_remote_write prometheus_pushgateway"`
	Endpoint        string
	AuthToken       string
	IntervalSeconds int `validate:"gte=0"`
}

type BOMConfig struct {
	MaxDepth    int `validate:"gte=1,lte=1000"`
	Parallelism int `validate:"gte=1,lte=64"`
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "erpcore"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getenv("LOG_FORMAT", "json")),

		OTLPEndpoint:   getenv("OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol:   strings.ToLower(getenv("OTLP_PROTOCOL", "grpc")),
		TracingEnabled: getenvBool("TRACING_ENABLED", false),
		MetricsEnabled: getenvBool("METRICS_ENABLED", false),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "erpcore"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		RunMigrations:     getenvBool("RUN_MIGRATIONS", true),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		SnowflakeNode: getenvInt64("SNOWFLAKE_NODE", 1),

		SeedTenantID:    getenvInt64("SEED_TENANT_ID", 0),
		SeedOwnerUserID: getenvInt64("SEED_OWNER_USER_ID", 0),

		Sequence: SequenceConfig{
			LockBackend:   strings.ToLower(getenv("SEQUENCE_LOCK_BACKEND", LockBackendLocal)),
			LockTimeoutMS: getenvInt64("SEQUENCE_LOCK_TIMEOUT_MS", 5000),
			LockRetries:   getenvInt("SEQUENCE_LOCK_RETRIES", 3),
			DefaultsPath:  strings.TrimSpace(getenv("SEQUENCE_DEFAULTS_PATH", "")),
		},
		BOM: BOMConfig{
			MaxDepth:    getenvInt("BOM_MAX_DEPTH", 50),
			Parallelism: getenvInt("BOM_EXPLODE_PARALLELISM", 4),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			GenerateRate:  getenvFloat("RATE_LIMIT_GENERATE_RATE", 50),
			GenerateBurst: getenvInt("RATE_LIMIT_GENERATE_BURST", 100),
		},
		MetricsPush: MetricsPushConfig{
			Exporter:        strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", ""))),
			Endpoint:        strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken:       strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
			IntervalSeconds: getenvInt("METRICS_PUSH_INTERVAL_SECONDS", 60),
		},
	}
}

var validate = validator.New()

// Validate checks struct constraints and returns every violation at once.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Sequence.LockBackend == LockBackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("invalid config: REDIS_ADDR is required when SEQUENCE_LOCK_BACKEND=redis")
	}
	if c.RateLimit.Enabled {
		if c.RedisAddr == "" {
			return fmt.Errorf("invalid config: REDIS_ADDR is required when RATE_LIMIT_ENABLED=true")
		}
		if c.RateLimit.GenerateRate <= 0 || c.RateLimit.GenerateBurst <= 0 {
			return fmt.Errorf("invalid config: generate rate limit must be positive")
		}
	}
	if c.MetricsPush.Exporter != "" && c.MetricsPush.Endpoint == "" {
		return fmt.Errorf("invalid config: METRICS_PUSH_ENDPOINT is required when METRICS_PUSH_EXPORTER is set")
	}
	return nil
}

// New loads and validates configuration.
func New() (Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
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
