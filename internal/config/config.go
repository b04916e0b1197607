package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port        string `validate:"required,numeric"`
	Env         string `validate:"oneof=development staging production test"`
	// FrontendURL is the tenant API: services, working hours, appointments.
	FrontendURL string `validate:"required,url"`
	// ChatbotURL is this service's public address.
	ChatbotURL  string `validate:"omitempty,url"`

	LogLevel       string
	CORSOrigins    []string
	AdminJWTSecret string

	DefaultTenantID string
	Timezone        string `validate:"required"`
	AttendantPhone  string

	UpstreamTimeout   time.Duration `validate:"gt=0"`
	UpstreamRateLimit float64       `validate:"gt=0"`
	UpstreamRateBurst int           `validate:"gt=0"`
	CatalogTTL        time.Duration `validate:"gte=0"`

	SessionIdleTTL            time.Duration `validate:"gt=0"`
	SessionCompletedRetention time.Duration `validate:"gte=0"`

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DatabaseURL   string

	UseMemoryQueue       bool
	WorkerCount          int           `validate:"gt=0"`
	HandleTimeout        time.Duration `validate:"gt=0"`
	ConversationQueueURL string        `validate:"required_if=UseMemoryQueue false"`
	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string

	Channel               string `validate:"oneof=log whatsapp telegram"`
	WhatsAppToken         string `validate:"required_if=Channel whatsapp"`
	WhatsAppPhoneNumberID string `validate:"required_if=Channel whatsapp"`
	WhatsAppVerifyToken   string
	WhatsAppAppSecret     string
	TelegramBotToken      string `validate:"required_if=Channel telegram"`

	KafkaBrokers       []string
	KafkaBookingsTopic string

	OutboxInterval time.Duration `validate:"gt=0"`
	APIRateLimit   float64       `validate:"gte=0"`
	APIRateBurst   int           `validate:"gte=0"`
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "3001"),
		Env:            strings.ToLower(getEnv("ENV", getEnv("NODE_ENV", "development"))),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		FrontendURL:    strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		ChatbotURL:     getEnv("CHATBOT_URL", "http://localhost:3001"),
		CORSOrigins:    getEnvAsList("CORS_ORIGIN", []string{"*"}),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		DefaultTenantID: getEnv("DEFAULT_TENANT_ID", ""),
		Timezone:        getEnv("TIMEZONE", "America/Sao_Paulo"),
		AttendantPhone:  getEnv("ATTENDANT_PHONE", ""),

		UpstreamTimeout:   getEnvAsDuration("UPSTREAM_TIMEOUT", 10*time.Second),
		UpstreamRateLimit: getEnvAsFloat("UPSTREAM_RATE_LIMIT", 20),
		UpstreamRateBurst: getEnvAsInt("UPSTREAM_RATE_BURST", 5),
		CatalogTTL:        getEnvAsDuration("CATALOG_TTL", 10*time.Minute),

		SessionIdleTTL:            getEnvAsDuration("SESSION_IDLE_TTL", 2*time.Hour),
		SessionCompletedRetention: getEnvAsDuration("SESSION_COMPLETED_RETENTION", 24*time.Hour),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		UseMemoryQueue:       getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 4),
		HandleTimeout:        getEnvAsDuration("MESSAGE_HANDLE_TIMEOUT", 45*time.Second),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		Channel:               strings.ToLower(getEnv("CHANNEL", "log")),
		WhatsAppToken:         getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),

		KafkaBrokers:       getEnvAsList("KAFKA_BROKERS", nil),
		KafkaBookingsTopic: getEnv("KAFKA_BOOKINGS_TOPIC", "agendmed.bookings"),

		OutboxInterval: getEnvAsDuration("OUTBOX_INTERVAL", 5*time.Second),
		APIRateLimit:   getEnvAsFloat("API_RATE_LIMIT", 10),
		APIRateBurst:   getEnvAsInt("API_RATE_BURST", 20),
	}
}

// Validate checks the struct rules and returns soft warnings for settings
// that work but should not ship to production.
func (c *Config) Validate() (warnings []string, err error) {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return nil, fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
		}
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return nil, fmt.Errorf("config: invalid TIMEZONE %q: %w", c.Timezone, err)
	}

	if c.DefaultTenantID == "" {
		warnings = append(warnings, "DEFAULT_TENANT_ID not set; unregistered callers cannot book")
	}
	if c.IsProduction() {
		if !strings.HasPrefix(c.FrontendURL, "https://") {
			warnings = append(warnings, "FRONTEND_URL should use HTTPS in production")
		}
		if c.ChatbotURL != "" && !strings.HasPrefix(c.ChatbotURL, "https://") {
			warnings = append(warnings, "CHATBOT_URL should use HTTPS in production")
		}
		if c.AdminJWTSecret == "" {
			warnings = append(warnings, "ADMIN_JWT_SECRET not set; admin API is closed")
		}
	}
	return warnings, nil
}

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
