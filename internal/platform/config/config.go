package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr            string
	DatabaseURL     string
	RedisURL        string
	JWTSigningKey   string
	KafkaBrokers    []string
	KafkaTopic      string
	RenewalInterval time.Duration
	RequestTimeout  time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("ARMORA_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	renewalInterval := 30 * 24 * time.Hour
	if v := os.Getenv("ARMORA_RENEWAL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			renewalInterval = d
		}
	}

	requestTimeout := 30 * time.Second
	if v := os.Getenv("ARMORA_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			requestTimeout = d
		}
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	topic := os.Getenv("KAFKA_AUDIT_TOPIC")

	return Server{
		Addr:            addr,
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		JWTSigningKey:   jwtSigningKey,
		KafkaBrokers:    brokers,
		KafkaTopic:      topic,
		RenewalInterval: renewalInterval,
		RequestTimeout:  requestTimeout,
	}
}
