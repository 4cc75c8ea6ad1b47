package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	awspkg "github.com/Mark23Dev/project-nexus/pkg/aws"
	"github.com/joho/godotenv"
)

const dbSecretName = "order/DB_CREDENTIALS"

type Config struct {
	Port             string
	AppEnv           string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string
	LockTimeout      time.Duration

	RedisURL string
	CacheTTL time.Duration

	AuthMode  string
	JWTSecret string

	PriceSource        string
	ProductServiceURL  string
	PriceLookupTimeout time.Duration

	RequestTimeout time.Duration
	AllowedOrigins string
	RateLimitRPS   float64
	RateLimitBurst int

	OrderSNSTopicARN      string
	KafkaBrokers          []string
	OrderEventsTopic      string
	ProductEventsQueueURL string
	OutboxPollInterval    time.Duration

	CloudWatchEnabled  bool
	CloudWatchLogGroup string
	MetricsNamespace   string
}

// secretSource is satisfied by *awspkg.SecretsClient.
type secretSource interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8083"),
		AppEnv:           getEnv("APP_ENV", "development"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),
		LockTimeout:      getDuration("POSTGRES_LOCK_TIMEOUT", 5*time.Second),

		RedisURL: os.Getenv("REDIS_URL"),
		CacheTTL: getDuration("CACHE_TTL", 5*time.Minute),

		AuthMode:  strings.ToLower(getEnv("AUTH_MODE", "gateway")),
		JWTSecret: os.Getenv("JWT_SECRET"),

		PriceSource:        strings.ToLower(getEnv("PRICE_SOURCE", "catalog")),
		ProductServiceURL:  getEnv("PRODUCT_SERVICE_URL", "http://product-service:8082"),
		PriceLookupTimeout: getDuration("PRICE_LOOKUP_TIMEOUT", 2*time.Second),

		RequestTimeout: getDuration("REQUEST_TIMEOUT", 30*time.Second),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 40),

		OrderSNSTopicARN:      os.Getenv("ORDER_SNS_TOPIC_ARN"),
		KafkaBrokers:          splitList(os.Getenv("KAFKA_BROKERS")),
		OrderEventsTopic:      getEnv("ORDER_EVENTS_TOPIC", "order.events"),
		ProductEventsQueueURL: os.Getenv("PRODUCT_EVENTS_QUEUE_URL"),
		OutboxPollInterval:    getDuration("OUTBOX_POLL_INTERVAL", time.Second),

		CloudWatchEnabled:  os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchLogGroup: getEnv("CLOUDWATCH_LOG_GROUP", "/marketplace/order-service"),
		MetricsNamespace:   getEnv("METRICS_NAMESPACE", "Marketplace"),
	}

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := awspkg.LoadAWSConfig(context.Background()); err == nil {
			applyDBSecret(context.Background(), cfg, awspkg.NewSecretsClient(awsCfg))
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDBSecret overrides the database settings with the values stored in
// Secrets Manager. A missing secret leaves the environment values in place.
func applyDBSecret(ctx context.Context, cfg *Config, secrets secretSource) {
	m, err := secrets.GetSecretMap(ctx, dbSecretName)
	if err != nil {
		return
	}
	override := func(dst *string, key string) {
		if v, ok := m[key]; ok && v != "" {
			*dst = v
		}
	}
	override(&cfg.PostgresUser, "POSTGRES_USER")
	override(&cfg.PostgresPassword, "POSTGRES_PASSWORD")
	override(&cfg.PostgresDB, "POSTGRES_DB")
	override(&cfg.PostgresHost, "POSTGRES_HOST")
	override(&cfg.PostgresPort, "POSTGRES_PORT")
}

func (c *Config) validate() error {
	var missing []string
	for key, val := range map[string]string{
		"POSTGRES_USER":     c.PostgresUser,
		"POSTGRES_PASSWORD": c.PostgresPassword,
		"POSTGRES_DB":       c.PostgresDB,
		"POSTGRES_HOST":     c.PostgresHost,
	} {
		if val == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("database config incomplete: missing %s", strings.Join(missing, ", "))
	}

	switch c.AuthMode {
	case "gateway":
	case "jwt":
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode)
	}

	switch c.PriceSource {
	case "catalog":
	case "http":
		if c.ProductServiceURL == "" {
			return fmt.Errorf("PRODUCT_SERVICE_URL is required when PRICE_SOURCE=http")
		}
	default:
		return fmt.Errorf("unknown PRICE_SOURCE %q", c.PriceSource)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && f > 0 {
		return f
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
