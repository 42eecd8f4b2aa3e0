// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type DBConfig struct {
	URL          string
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

type StripeConfig struct {
	SecretKey             string
	WebhookSecret         string
	PurchaseWebhookSecret string
	ProPriceID            string
	Currency              string
	PlatformFeePercent    int
}

type SupabaseConfig struct {
	URL       string
	JWTSecret string
}

type GPTConfig struct {
	APIKey string
	Model  string
}

type EmailConfig struct {
	Provider       string
	From           string
	ResendAPIKey   string
	SendGridAPIKey string
}

type TelegramConfig struct {
	Token          string
	OperatorChatID int64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

type AIConfig struct {
	FreeDailyMessages int
	HistoryLimit      int
}

type Config struct {
	DB       DBConfig
	Stripe   StripeConfig
	Supabase SupabaseConfig
	GPT      GPTConfig
	Email    EmailConfig
	Discord  struct {
		WebhookURL string
	}
	Telegram TelegramConfig
	Redis    RedisConfig
	Storage  StorageConfig
	AI       AIConfig
	Calendar struct {
		Timezone string
	}
	Server struct {
		Port          string
		PublicSiteURL string
	}
	LogLevel        string
	ShutdownTimeout time.Duration
}

// Load loads the configuration
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetConfigType("json")

	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")
	v.AddConfigPath("$HOME/.studko")

	setDefaults(v)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
		return FromEnv(), nil
	}

	// Process any ${ENV_VAR} syntax in the config values
	for _, key := range v.AllKeys() {
		value := v.GetString(key)
		if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(value, "}"), "${")
			if envValue := os.Getenv(envVar); envValue != "" {
				v.Set(key, envValue)
			} else {
				v.Set(key, "")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ShutdownTimeout", 10*time.Second)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("GPT.Model", "gpt-4o-mini")
	v.SetDefault("Server.Port", "8080")
	v.SetDefault("DB.MaxOpenConns", 20)
	v.SetDefault("DB.MaxIdleConns", 5)
	v.SetDefault("DB.ConnLifetime", 5*time.Minute)
	v.SetDefault("Stripe.Currency", "eur")
	v.SetDefault("Stripe.PlatformFeePercent", 20)
	v.SetDefault("Email.Provider", "resend")
	v.SetDefault("Email.From", "Študko <noreply@studko.sk>")
	v.SetDefault("AI.FreeDailyMessages", 20)
	v.SetDefault("AI.HistoryLimit", 20)
	v.SetDefault("Calendar.Timezone", "Europe/Bratislava")
	v.SetDefault("Storage.Bucket", "notes")
	v.SetDefault("Storage.Region", "us-east-1")
	v.SetDefault("Storage.UseSSL", true)
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() *Config {
	cfg := &Config{}

	cfg.DB.URL = os.Getenv("DATABASE_URL")
	cfg.DB.Host = getEnvOr("DB_HOST", "localhost")
	cfg.DB.Port = getEnvOr("DB_PORT", "5432")
	cfg.DB.User = getEnvOr("DB_USER", "postgres")
	cfg.DB.Password = getEnvOr("DB_PASSWORD", "postgres")
	cfg.DB.DBName = getEnvOr("DB_NAME", "postgres")
	cfg.DB.SSLMode = getEnvOr("DB_SSL_MODE", "disable")
	cfg.DB.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 20)
	cfg.DB.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DB.ConnLifetime = getEnvDuration("DB_CONN_LIFETIME", 5*time.Minute)

	cfg.Stripe.SecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.Stripe.WebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	cfg.Stripe.PurchaseWebhookSecret = getEnvOr("STRIPE_PURCHASE_WEBHOOK_SECRET", cfg.Stripe.WebhookSecret)
	cfg.Stripe.ProPriceID = os.Getenv("STRIPE_PRO_PRICE_ID")
	cfg.Stripe.Currency = getEnvOr("STRIPE_CURRENCY", "eur")
	cfg.Stripe.PlatformFeePercent = getEnvInt("PLATFORM_FEE_PERCENT", 20)

	cfg.Supabase.URL = os.Getenv("SUPABASE_URL")
	cfg.Supabase.JWTSecret = os.Getenv("SUPABASE_JWT_SECRET")

	cfg.GPT.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.GPT.Model = getEnvOr("OPENAI_MODEL", "gpt-4o-mini")

	cfg.Email.Provider = getEnvOr("EMAIL_PROVIDER", "resend")
	cfg.Email.From = getEnvOr("EMAIL_FROM", "Študko <noreply@studko.sk>")
	cfg.Email.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.Email.SendGridAPIKey = os.Getenv("SENDGRID_API_KEY")

	cfg.Discord.WebhookURL = os.Getenv("DISCORD_WEBHOOK_URL")

	cfg.Telegram.Token = os.Getenv("TELEGRAM_TOKEN")
	cfg.Telegram.OperatorChatID = int64(getEnvInt("TELEGRAM_OPERATOR_CHAT_ID", 0))

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Storage.Endpoint = os.Getenv("STORAGE_ENDPOINT")
	cfg.Storage.AccessKey = os.Getenv("STORAGE_ACCESS_KEY")
	cfg.Storage.SecretKey = os.Getenv("STORAGE_SECRET_KEY")
	cfg.Storage.Bucket = getEnvOr("STORAGE_BUCKET", "notes")
	cfg.Storage.Region = getEnvOr("STORAGE_REGION", "us-east-1")
	cfg.Storage.UseSSL = getEnvOr("STORAGE_USE_SSL", "true") == "true"

	cfg.AI.FreeDailyMessages = getEnvInt("AI_FREE_DAILY_MESSAGES", 20)
	cfg.AI.HistoryLimit = getEnvInt("AI_HISTORY_LIMIT", 20)

	cfg.Calendar.Timezone = getEnvOr("CALENDAR_TIMEZONE", "Europe/Bratislava")

	cfg.Server.Port = getEnvOr("SERVER_PORT", "8080")
	cfg.Server.PublicSiteURL = getEnvOr("PUBLIC_SITE_URL", "http://localhost:5173")

	cfg.LogLevel = getEnvOr("LOG_LEVEL", "info")
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)

	return cfg
}

// Validate reports the first missing setting the server cannot start without.
func (c *Config) Validate() error {
	switch {
	case c.DB.URL == "" && c.DB.Host == "":
		return errors.New("database is not configured")
	case c.Stripe.SecretKey == "" || c.Stripe.WebhookSecret == "":
		return errors.New("stripe configuration is incomplete")
	case c.GPT.APIKey == "":
		return errors.New("openai api key is not configured")
	case c.Supabase.JWTSecret == "":
		return errors.New("supabase jwt secret is not configured")
	case c.Stripe.PlatformFeePercent < 0 || c.Stripe.PlatformFeePercent > 100:
		return fmt.Errorf("platform fee percent out of range: %d", c.Stripe.PlatformFeePercent)
	}
	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		return fmt.Errorf("invalid calendar timezone %q: %w", c.Calendar.Timezone, err)
	}
	return nil
}

// Helper function to get environment variable with default value
func getEnvOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
