package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://escrow@localhost/escrow")
	t.Setenv("ESCROW_SERVICE_TOKEN", "gateway-token")
	t.Setenv("CALLER_TOKEN_SECRET", "secret")
	t.Setenv("ESCROW_CUSTODY_ADDRESS", "0x0000000000000000000000000000000000c05701")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "5200", cfg.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, "escrow:notifications", cfg.NotifyStream)
	assert.Equal(t, 5*time.Second, cfg.RelayInterval)
	assert.False(t, cfg.AllowFreeRegistration)
	assert.False(t, cfg.R2.Enabled())
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ESCROW_OPERATORS", "0x01,0x02")
	t.Setenv("ALLOW_FREE_REGISTRATION", "true")
	t.Setenv("RELAY_INTERVAL", "250ms")
	t.Setenv("R2_BUCKET_NAME", "commitments")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"0x01", "0x02"}, cfg.Operators)
	assert.True(t, cfg.AllowFreeRegistration)
	assert.Equal(t, 250*time.Millisecond, cfg.RelayInterval)
	assert.True(t, cfg.R2.Enabled())
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ESCROW_SERVICE_TOKEN", "")
	t.Setenv("CALLER_TOKEN_SECRET", "")
	t.Setenv("ESCROW_CUSTODY_ADDRESS", "")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestNewLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	logger, err := NewLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
	assert.True(t, logger.Core().Enabled(1))
}
