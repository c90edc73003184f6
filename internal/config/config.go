package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ProviderTwilio = "twilio"
	ProviderMock   = "mock"
)

type Config struct {
	BotToken  string `mapstructure:"TELEGRAM_BOT_TOKEN" validate:"required"`
	ChannelID string `mapstructure:"TELEGRAM_CHANNEL_ID"`

	DatabaseURL    string `mapstructure:"DATABASE_URL" validate:"required"`
	MigrateOnStart bool   `mapstructure:"MIGRATE_ON_START"`

	SMSProvider       string `mapstructure:"SMS_PROVIDER" validate:"oneof=twilio mock"`
	TwilioAccountSID  string `mapstructure:"TWILIO_ACCOUNT_SID" validate:"required_if=SMSProvider twilio"`
	TwilioAuthToken   string `mapstructure:"TWILIO_AUTH_TOKEN" validate:"required_if=SMSProvider twilio"`
	TwilioPhoneNumber string `mapstructure:"TWILIO_PHONE_NUMBER" validate:"required_if=SMSProvider twilio"`
	NumberRegion      string `mapstructure:"NUMBER_REGION" validate:"len=2"`

	MaxMonthlyCost  float64 `mapstructure:"MAX_MONTHLY_COST" validate:"gt=0"`
	SMSCostEstimate float64 `mapstructure:"SMS_COST_ESTIMATE" validate:"gte=0"`
	NumberCost      float64 `mapstructure:"NUMBER_COST" validate:"gte=0"`

	RedisURL        string        `mapstructure:"REDIS_URL"`
	ConversationTTL time.Duration `mapstructure:"CONVERSATION_TTL"`

	NATSURL          string `mapstructure:"NATS_URL"`
	NATSAuditSubject string `mapstructure:"NATS_AUDIT_SUBJECT"`

	MetricsAddr string `mapstructure:"METRICS_ADDR"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`
}

var defaults = map[string]any{
	"TELEGRAM_BOT_TOKEN":  "",
	"TELEGRAM_CHANNEL_ID": "",
	"DATABASE_URL":        "postgres://localhost:5432/twilio_bot_db?sslmode=disable",
	"MIGRATE_ON_START":    true,
	"SMS_PROVIDER":        ProviderTwilio,
	"TWILIO_ACCOUNT_SID":  "",
	"TWILIO_AUTH_TOKEN":   "",
	"TWILIO_PHONE_NUMBER": "",
	"NUMBER_REGION":       "US",
	"MAX_MONTHLY_COST":    5.0,
	"SMS_COST_ESTIMATE":   0.008,
	"NUMBER_COST":         1.0,
	"REDIS_URL":           "",
	"CONVERSATION_TTL":    "24h",
	"NATS_URL":            "",
	"NATS_AUDIT_SUBJECT":  "numberbot.audit",
	"METRICS_ADDR":        "",
	"LOG_LEVEL":           "info",
	"LOG_FILE":            "logs/bot.log",
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.SMSProvider = strings.ToLower(strings.TrimSpace(cfg.SMSProvider))
	cfg.NumberRegion = strings.ToUpper(strings.TrimSpace(cfg.NumberRegion))

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}
