package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Env         string
	Port        int
	DatabaseURL string
	LogJSON     bool
	JWTSecret   string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	PayMock               bool

	PendingTTL    time.Duration
	SweepInterval time.Duration

	ShippingFlat      decimal.Decimal
	ShippingFreeAbove decimal.Decimal
	TaxRate           decimal.Decimal
	Currency          string
}

func Default() Config {
	return Config{
		Env:               "dev",
		Port:              8082,
		LogJSON:           false,
		PayMock:           false,
		PendingTTL:        30 * time.Minute,
		SweepInterval:     time.Minute,
		ShippingFlat:      decimal.NewFromInt(50),
		ShippingFreeAbove: decimal.NewFromInt(500),
		TaxRate:           decimal.Zero,
		Currency:          "INR",
	}
}

// Load reads a .env file if one is present, then layers the environment on
// top of the defaults.
func Load(files ...string) Config {
	_ = godotenv.Load(files...)
	return EnvDefaults()
}

func EnvDefaults() Config {
	return fromEnv(Default())
}

func fromEnv(c Config) Config {
	if v := os.Getenv("ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v, ok := parseBool(os.Getenv("LOG_JSON")); ok {
		c.LogJSON = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("RAZORPAY_KEY_ID"); v != "" {
		c.RazorpayKeyID = v
	}
	if v := os.Getenv("RAZORPAY_KEY_SECRET"); v != "" {
		c.RazorpayKeySecret = v
	}
	if v := os.Getenv("RAZORPAY_WEBHOOK_SECRET"); v != "" {
		c.RazorpayWebhookSecret = v
	}
	if v, ok := parseBool(os.Getenv("PAY_MOCK")); ok {
		c.PayMock = v
	}
	if v := os.Getenv("PENDING_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PendingTTL = d
		}
	}
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SweepInterval = d
		}
	}
	if v := os.Getenv("SHIPPING_FLAT"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			c.ShippingFlat = d
		}
	}
	if v := os.Getenv("SHIPPING_FREE_ABOVE"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			c.ShippingFreeAbove = d
		}
	}
	if v := os.Getenv("TAX_RATE"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			c.TaxRate = d
		}
	}
	if v := os.Getenv("CURRENCY"); v != "" {
		c.Currency = v
	}
	return c
}

func parseBool(v string) (bool, bool) {
	switch v {
	case "1", "true", "TRUE":
		return true, true
	case "0", "false", "FALSE":
		return false, true
	}
	return false, false
}

// UseMockGateway is true when payments should not reach Razorpay, either
// because PAY_MOCK is set or because no API keys are configured.
func (c Config) UseMockGateway() bool {
	return c.PayMock || c.RazorpayKeyID == "" || c.RazorpayKeySecret == ""
}
