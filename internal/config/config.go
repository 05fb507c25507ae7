package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string

	// BaseURL is the public URL of this service, used to build webhook
	// notification URLs and buyer return URLs.
	BaseURL string

	SecretKey         string
	AdminUser         string
	AdminPasswordHash string

	MercadoPago MercadoPagoConfig
	PayPal      PayPalConfig
}

// MercadoPagoConfig holds the Checkout Preferences credentials.
type MercadoPagoConfig struct {
	Enabled      bool
	AccessToken  string
	PublicKey    string
	Sandbox      bool
	WebhookToken string
}

// PayPalConfig holds the REST API v2 credentials.
type PayPalConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	Sandbox      bool
	WebhookID    string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		AppPort:    os.Getenv("APP_PORT"),
		AppEnv:     os.Getenv("APP_ENV"),
		BaseURL:    os.Getenv("BASE_URL"),

		SecretKey:         os.Getenv("SECRET_KEY"),
		AdminUser:         os.Getenv("ADMIN_USER"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),

		MercadoPago: MercadoPagoConfig{
			Enabled:      envBool("MP_ENABLED", true),
			AccessToken:  os.Getenv("MP_ACCESS_TOKEN"),
			PublicKey:    os.Getenv("MP_PUBLIC_KEY"),
			Sandbox:      envBool("MP_SANDBOX", true),
			WebhookToken: os.Getenv("MP_WEBHOOK_TOKEN"),
		},
		PayPal: PayPalConfig{
			Enabled:      envBool("PAYPAL_ENABLED", false),
			ClientID:     os.Getenv("PAYPAL_CLIENT_ID"),
			ClientSecret: os.Getenv("PAYPAL_CLIENT_SECRET"),
			Sandbox:      envBool("PAYPAL_SANDBOX", true),
			WebhookID:    os.Getenv("PAYPAL_WEBHOOK_ID"),
		},
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
