// Package config loads process settings from the environment and routing
// policy from a YAML file.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration.
type Config struct {
	Addr       string
	LogLevel   string
	LogFormat  string
	PolicyPath string

	LedgerID           string
	LedgerStore        string // "memory" | "postgres" | "sqlite"
	DatabaseURL        string
	SQLitePath         string
	CheckpointInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuditLogPath   string
	AuditQueueSize int

	AdminSecret string
	ArchiveURI  string

	OTelEnabled  bool
	OTelEndpoint string
	OTelInsecure bool
	Environment  string

	RateLimitRPS   float64
	RateLimitBurst int
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Addr:       getenv("ROUTER_ADDR", ":8080"),
		LogLevel:   getenv("LOG_LEVEL", "INFO"),
		LogFormat:  getenv("LOG_FORMAT", "json"),
		PolicyPath: os.Getenv("ROUTER_POLICY"),

		LedgerID:           getenv("ROUTER_LEDGER_ID", "default"),
		LedgerStore:        getenv("ROUTER_LEDGER_STORE", "memory"),
		DatabaseURL:        getenv("DATABASE_URL", "postgres://router@localhost:5432/router?sslmode=disable"),
		SQLitePath:         getenv("ROUTER_SQLITE_PATH", "hybridrouter.db"),
		CheckpointInterval: getDuration("ROUTER_CHECKPOINT_INTERVAL", 5*time.Second),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		AuditLogPath:   os.Getenv("ROUTER_AUDIT_LOG"),
		AuditQueueSize: getInt("ROUTER_AUDIT_QUEUE", 4096),

		AdminSecret: os.Getenv("ROUTER_ADMIN_SECRET"),
		ArchiveURI:  os.Getenv("ROUTER_ARCHIVE_URI"),

		OTelEnabled:  os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelInsecure: os.Getenv("OTEL_INSECURE") == "true",
		Environment:  getenv("ENVIRONMENT", "development"),

		RateLimitRPS:   getFloat("ROUTER_RATE_LIMIT_RPS", 50),
		RateLimitBurst: getInt("ROUTER_RATE_LIMIT_BURST", 100),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
