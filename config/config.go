package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type AppConfig struct {
	BotToken   string
	OwnerID    int64
	UpdateMode string // "polling" или "webhook"
	// Домен и секретный путь, по которым Telegram присылает апдейты в режиме webhook
	WebhookDomain     string
	WebhookSecretPath string
	Port              int

	DatabaseURL string
	Redis       RedisConfig
	LogLevel    string

	Coinbase    CoinbaseConfig
	Flutterwave FlutterwaveConfig
	PayPal      PayPalConfig

	PlatformFeePercent    decimal.Decimal
	MinimumDeposit        decimal.Decimal
	MaximumDeposit        decimal.Decimal
	MembershipDuration    time.Duration
	MembershipGracePeriod time.Duration

	SuccessRedirectURL string
	CancelRedirectURL  string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type CoinbaseConfig struct {
	APIKey        string
	WebhookSecret string
	APIURL        string
}

type FlutterwaveConfig struct {
	SecretKey string
	PublicKey string
	APIURL    string
}

type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	Env          string
}

var ErrMissingRequired = errors.New("critical environment variables are missing")

// LoadConfig читает .env (если есть) и переменные окружения
func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Println(".env file not found, relying on environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_PORT", 8080)
	v.SetDefault("BOT_UPDATE_MODE", "polling")
	v.SetDefault("BOT_WEBHOOK_SECRET_PATH", "tgapi/v2")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("COINBASE_API_URL", "https://api.commerce.coinbase.com")
	v.SetDefault("FLUTTERWAVE_API_URL", "https://api.flutterwave.com")
	v.SetDefault("PAYPAL_ENV", "sandbox")
	v.SetDefault("PLATFORM_FEE_PERCENT", "15")
	v.SetDefault("MINIMUM_DEPOSIT", "5")
	v.SetDefault("MAXIMUM_DEPOSIT", "1000")
	v.SetDefault("MEMBERSHIP_DURATION", "720h")
	v.SetDefault("MEMBERSHIP_GRACE_PERIOD", "24h")
	v.SetDefault("SUCCESS_REDIRECT_URL", "https://example.com/success")
	v.SetDefault("CANCEL_REDIRECT_URL", "https://example.com/cancel")

	cfg := &AppConfig{
		BotToken:          v.GetString("BOT_TOKEN"),
		OwnerID:           v.GetInt64("BOT_OWNER_ID"),
		UpdateMode:        strings.ToLower(strings.TrimSpace(v.GetString("BOT_UPDATE_MODE"))),
		WebhookDomain:     v.GetString("BOT_WEBHOOK_DOMAIN"),
		WebhookSecretPath: strings.Trim(v.GetString("BOT_WEBHOOK_SECRET_PATH"), "/"),
		Port:              v.GetInt("APP_PORT"),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		Redis: RedisConfig{
			Addr: v.GetString("REDIS_ADDR"),
			Pass: v.GetString("REDIS_PASS"),
			DB:   v.GetInt("REDIS_DB"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
		Coinbase: CoinbaseConfig{
			APIKey:        v.GetString("COINBASE_API_KEY"),
			WebhookSecret: v.GetString("COINBASE_WEBHOOK_SECRET"),
			APIURL:        v.GetString("COINBASE_API_URL"),
		},
		Flutterwave: FlutterwaveConfig{
			SecretKey: v.GetString("FLUTTERWAVE_SECRET_KEY"),
			PublicKey: v.GetString("FLUTTERWAVE_PUBLIC_KEY"),
			APIURL:    v.GetString("FLUTTERWAVE_API_URL"),
		},
		PayPal: PayPalConfig{
			ClientID:     v.GetString("PAYPAL_CLIENT_ID"),
			ClientSecret: v.GetString("PAYPAL_CLIENT_SECRET"),
			Env:          strings.ToLower(v.GetString("PAYPAL_ENV")),
		},
		PlatformFeePercent:    decimalOr(v.GetString("PLATFORM_FEE_PERCENT"), decimal.NewFromInt(15)),
		MinimumDeposit:        decimalOr(v.GetString("MINIMUM_DEPOSIT"), decimal.NewFromInt(5)),
		MaximumDeposit:        decimalOr(v.GetString("MAXIMUM_DEPOSIT"), decimal.NewFromInt(1000)),
		MembershipDuration:    durationOr(v.GetString("MEMBERSHIP_DURATION"), 30*24*time.Hour),
		MembershipGracePeriod: durationOr(v.GetString("MEMBERSHIP_GRACE_PERIOD"), 24*time.Hour),
		SuccessRedirectURL:    v.GetString("SUCCESS_REDIRECT_URL"),
		CancelRedirectURL:     v.GetString("CANCEL_REDIRECT_URL"),
	}

	if cfg.BotToken == "" || cfg.DatabaseURL == "" {
		return nil, ErrMissingRequired
	}
	if cfg.UpdateMode == "webhook" && cfg.WebhookDomain == "" {
		return nil, errors.New("BOT_WEBHOOK_DOMAIN is required when BOT_UPDATE_MODE=webhook")
	}
	return cfg, nil
}

// WebhookURL адрес, который регистрируется в Telegram
func (c *AppConfig) WebhookURL() string {
	return c.PublicURL(c.WebhookSecretPath)
}

// PublicURL внешний адрес маршрута этого сервера; пусто без BOT_WEBHOOK_DOMAIN
func (c *AppConfig) PublicURL(path string) string {
	if c.WebhookDomain == "" {
		return ""
	}
	return "https://" + c.WebhookDomain + "/" + strings.TrimLeft(path, "/")
}

func (c PayPalConfig) APIURL() string {
	if c.Env == "live" {
		return "https://api-m.paypal.com"
	}
	return "https://api-m.sandbox.paypal.com"
}

func (c PayPalConfig) IPNURL() string {
	if c.Env == "live" {
		return "https://ipnpb.paypal.com/cgi-bin/webscr"
	}
	return "https://ipnpb.sandbox.paypal.com/cgi-bin/webscr"
}

// PlatformFee комиссия платформы с суммы
func (c *AppConfig) PlatformFee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(c.PlatformFeePercent).Div(decimal.NewFromInt(100)).Round(2)
}

func decimalOr(s string, def decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return d
}

func durationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
