package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.DB.URL = "postgres://localhost/studko"
	cfg.Stripe.SecretKey = "sk_test"
	cfg.Stripe.WebhookSecret = "whsec_test"
	cfg.Stripe.PlatformFeePercent = 20
	cfg.GPT.APIKey = "sk-openai"
	cfg.Supabase.JWTSecret = "jwt-secret"
	cfg.Calendar.Timezone = "Europe/Bratislava"
	return cfg
}

func TestFromEnvReadsVariables(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_live_x")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_main")
	t.Setenv("PLATFORM_FEE_PERCENT", "15")
	t.Setenv("TELEGRAM_OPERATOR_CHAT_ID", "-100200300")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("STORAGE_USE_SSL", "false")

	cfg := FromEnv()

	assert.Equal(t, "sk_live_x", cfg.Stripe.SecretKey)
	assert.Equal(t, "whsec_main", cfg.Stripe.PurchaseWebhookSecret, "purchase secret falls back to the main webhook secret")
	assert.Equal(t, 15, cfg.Stripe.PlatformFeePercent)
	assert.Equal(t, int64(-100200300), cfg.Telegram.OperatorChatID)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.Storage.UseSSL)
	assert.Equal(t, "Europe/Bratislava", cfg.Calendar.Timezone)
	assert.Equal(t, 20, cfg.AI.FreeDailyMessages)
}

func TestFromEnvIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("AI_FREE_DAILY_MESSAGES", "lots")
	t.Setenv("DB_CONN_LIFETIME", "forever")

	cfg := FromEnv()

	assert.Equal(t, 20, cfg.AI.FreeDailyMessages)
	assert.Equal(t, 5*time.Minute, cfg.DB.ConnLifetime)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing stripe secret", func(c *Config) { c.Stripe.SecretKey = "" }},
		{"missing webhook secret", func(c *Config) { c.Stripe.WebhookSecret = "" }},
		{"missing openai key", func(c *Config) { c.GPT.APIKey = "" }},
		{"missing jwt secret", func(c *Config) { c.Supabase.JWTSecret = "" }},
		{"fee above hundred", func(c *Config) { c.Stripe.PlatformFeePercent = 120 }},
		{"unknown timezone", func(c *Config) { c.Calendar.Timezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
