package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"JWT_SECRET":     "secret",
		"ENCRYPTION_KEY": "key",
	})
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 30*time.Second, cfg.RingTimeout)
	assert.Equal(t, "0.0.0.0:8000", cfg.HTTPAddr())
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSOrigins)
	assert.Equal(t, 24*time.Hour, cfg.AccessTokenTTL())
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"JWT_SECRET":        "secret",
		"ENCRYPTION_KEY":    "key",
		"DB_DRIVER":         "postgres",
		"CALL_RING_TIMEOUT": "5s",
		"CORS_ORIGINS":      "https://a.example,https://b.example",
	})
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 5*time.Second, cfg.RingTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoadFromRequiresSecrets(t *testing.T) {
	_, err := LoadFrom(map[string]string{"ENCRYPTION_KEY": "key"})
	assert.Error(t, err)
}

func TestLoadFromRejectsUnknownDriver(t *testing.T) {
	_, err := LoadFrom(map[string]string{
		"JWT_SECRET":     "secret",
		"ENCRYPTION_KEY": "key",
		"DB_DRIVER":      "mysql",
	})
	assert.Error(t, err)
}
