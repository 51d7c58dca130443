package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/chat")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.AuthTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 10000, cfg.MaxConnections)
	assert.Equal(t, 16, cfg.MaxConnectionsPerIP)
	assert.Equal(t, 10.0, cfg.ConnectionRate)
	assert.Equal(t, 20, cfg.ConnectionBurst)
}

func TestLoad_ConnectionLimits(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_CONNECTIONS", "500")
	t.Setenv("MAX_CONNECTIONS_PER_IP", "8")
	t.Setenv("CONNECTION_RATE", "2.5")
	t.Setenv("CONNECTION_BURST", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.MaxConnections)
	assert.Equal(t, 8, cfg.MaxConnectionsPerIP)
	assert.Equal(t, 2.5, cfg.ConnectionRate)
	assert.Equal(t, 5, cfg.ConnectionBurst)
}

func TestLoad_InvalidConnectionLimits(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric max connections", "MAX_CONNECTIONS", "many"},
		{"zero per-ip cap", "MAX_CONNECTIONS_PER_IP", "0"},
		{"negative rate", "CONNECTION_RATE", "-1"},
		{"non-numeric burst", "CONNECTION_BURST", "lots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		unset   string
		wantErr string
	}{
		{"missing redis", "REDIS_URL", "REDIS_URL is required"},
		{"missing database", "DATABASE_URL", "DATABASE_URL is required"},
		{"missing jwt secret", "JWT_SECRET", "JWT_SECRET is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ShortJWTSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "too-short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestLoad_AuthTimeout(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTH_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.AuthTimeout)
}

func TestLoad_InvalidAuthTimeout(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTH_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_TIMEOUT")
}
