package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration. Built from environment
// variables so main stays lean; lifecycle definitions load separately from
// their YAML file.
type Server struct {
	Addr             string
	DatabaseURL      string
	RedisURL         string
	DefinitionsPath  string
	ReauthSigningKey string
	ReauthMaxAge     time.Duration
	ReviewSweep      time.Duration
	KafkaBrokers     []string
	AuditExportTopic string
	ShutdownTimeout  time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:             envOr("RECORDVAULT_ADDR", ":8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		DefinitionsPath:  os.Getenv("LIFECYCLE_DEFINITIONS"),
		ReauthSigningKey: os.Getenv("REAUTH_SIGNING_KEY"),
		ReauthMaxAge:     durationOr("REAUTH_MAX_AGE", 2*time.Minute),
		ReviewSweep:      durationOr("REVIEW_SWEEP_INTERVAL", time.Hour),
		AuditExportTopic: envOr("AUDIT_EXPORT_TOPIC", "recordvault.audit"),
		ShutdownTimeout:  durationOr("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if cfg.ReauthSigningKey == "" {
		// Use a default for development - should be overridden in production
		cfg.ReauthSigningKey = "dev-secret-key-change-in-production"
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
