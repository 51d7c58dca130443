package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string
	Port        string
	RedisURL    string
	DatabaseURL string
	JWTSecret   string
	AuthTimeout time.Duration
	LogLevel    string
	LogFormat   string

	MaxConnections      int
	MaxConnectionsPerIP int
	ConnectionRate      float64
	ConnectionBurst     int
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		RedisURL:    getEnv("REDIS_URL", ""),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(cfg.JWTSecret))
	}

	authTimeout := getEnv("AUTH_TIMEOUT", "10s")
	d, err := time.ParseDuration(authTimeout)
	if err != nil {
		return nil, fmt.Errorf("AUTH_TIMEOUT must be a valid duration: %w", err)
	}
	if d <= 0 {
		return nil, fmt.Errorf("AUTH_TIMEOUT must be positive, got %s", d)
	}
	cfg.AuthTimeout = d

	if cfg.MaxConnections, err = getIntEnv("MAX_CONNECTIONS", 10000); err != nil {
		return nil, err
	}
	if cfg.MaxConnectionsPerIP, err = getIntEnv("MAX_CONNECTIONS_PER_IP", 16); err != nil {
		return nil, err
	}
	burst, err := getIntEnv("CONNECTION_BURST", 20)
	if err != nil {
		return nil, err
	}
	cfg.ConnectionBurst = burst

	rateStr := getEnv("CONNECTION_RATE", "10")
	rate, err := strconv.ParseFloat(rateStr, 64)
	if err != nil || rate <= 0 {
		return nil, fmt.Errorf("CONNECTION_RATE must be a positive number, got %q", rateStr)
	}
	cfg.ConnectionRate = rate

	return cfg, nil
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, value)
	}
	return n, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
