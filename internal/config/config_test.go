package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "taverna")
	t.Setenv("DB_NAME", "taverna")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("BASE_URL", "https://loja.example.com")
	t.Setenv("MP_ENABLED", "true")
	t.Setenv("MP_ACCESS_TOKEN", "tok")
	t.Setenv("MP_SANDBOX", "false")
	t.Setenv("PAYPAL_ENABLED", "true")
	t.Setenv("PAYPAL_CLIENT_ID", "cid")

	cfg := LoadConfig()

	assert.Equal(t, "localhost", cfg.DBHost)
	assert.Equal(t, "https://loja.example.com", cfg.BaseURL)
	assert.True(t, cfg.MercadoPago.Enabled)
	assert.Equal(t, "tok", cfg.MercadoPago.AccessToken)
	assert.False(t, cfg.MercadoPago.Sandbox)
	assert.True(t, cfg.PayPal.Enabled)
	assert.Equal(t, "cid", cfg.PayPal.ClientID)
}

func TestEnvBool(t *testing.T) {
	t.Setenv("FLAG_A", "true")
	t.Setenv("FLAG_B", "0")
	t.Setenv("FLAG_C", "maybe")

	assert.True(t, envBool("FLAG_A", false))
	assert.False(t, envBool("FLAG_B", true))
	assert.True(t, envBool("FLAG_C", true), "unparseable falls back")
	assert.True(t, envBool("FLAG_MISSING", true))
	assert.False(t, envBool("FLAG_MISSING", false))
}
