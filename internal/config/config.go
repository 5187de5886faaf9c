package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName       string
	AppVersion    string
	Environment   string
	HTTPAddr      string
	PublicBaseURL string

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Credits      CreditsConfig
	Conversation ConversationConfig
	Completion   CompletionConfig
	Payment      PaymentConfig
	Telegram     TelegramConfig
	Redis        RedisConfig
	RateLimit    RateLimitConfig

	AdminUserIDs   []int64
	AdminJWTSecret string
	CatalogPath    string
}

// TelemetryConfig drives logging, tracing and metrics export.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

type CreditsConfig struct {
	Default      int64
	PerMessage   int64
	HistoryLimit int
}

type ConversationConfig struct {
	Timeout         time.Duration
	SweepRetryDelay time.Duration
}

type CompletionConfig struct {
	Provider        string
	Model           string
	MaxTokens       int64
	Temperature     float64
	Timeout         time.Duration
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	GeminiAPIKey    string
}

type PaymentConfig struct {
	Provider            string
	PayPalClientID      string
	PayPalClientSecret  string
	PayPalMode          string
	PayPalWebhookID     string
	StripeSecretKey     string
	StripeWebhookSecret string
	BotUsername         string
}

type TelegramConfig struct {
	Token               string
	NotificationChannel string
}

type RateLimitConfig struct {
	MessageRate  float64
	MessageBurst int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "creavisionbot"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OTLPEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "sqlite")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "creavisionbot"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "bot_database.db"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 300)),

		Credits: CreditsConfig{
			Default:      getenvInt64("DEFAULT_CREDITS", 5),
			PerMessage:   getenvInt64("CREDITS_PER_MESSAGE", 1),
			HistoryLimit: int(getenvInt64("HISTORY_LIMIT", 10)),
		},
		Conversation: ConversationConfig{
			Timeout:         time.Duration(getenvInt64("CONVERSATION_TIMEOUT_MINUTES", 30)) * time.Minute,
			SweepRetryDelay: getenvDuration("SWEEP_RETRY_DELAY", time.Minute),
		},
		Completion: CompletionConfig{
			Provider:        strings.ToLower(getenv("COMPLETION_PROVIDER", "openai")),
			Model:           strings.TrimSpace(getenv("COMPLETION_MODEL", "")),
			MaxTokens:       getenvInt64("COMPLETION_MAX_TOKENS", 500),
			Temperature:     getenvFloat("COMPLETION_TEMPERATURE", 0.7),
			Timeout:         getenvDuration("COMPLETION_TIMEOUT", 60*time.Second),
			OpenAIAPIKey:    strings.TrimSpace(getenv("OPENAI_API_KEY", "")),
			OpenAIBaseURL:   strings.TrimSpace(getenv("OPENAI_BASE_URL", "")),
			AnthropicAPIKey: strings.TrimSpace(getenv("ANTHROPIC_API_KEY", "")),
			GeminiAPIKey:    strings.TrimSpace(getenv("GEMINI_API_KEY", "")),
		},
		Payment: PaymentConfig{
			Provider:            strings.ToLower(getenv("PAYMENT_PROVIDER", "paypal")),
			PayPalClientID:      strings.TrimSpace(getenv("PAYPAL_CLIENT_ID", "")),
			PayPalClientSecret:  strings.TrimSpace(getenv("PAYPAL_CLIENT_SECRET", "")),
			PayPalMode:          strings.ToLower(getenv("PAYPAL_MODE", "sandbox")),
			PayPalWebhookID:     strings.TrimSpace(getenv("PAYPAL_WEBHOOK_ID", "")),
			StripeSecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			StripeWebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			BotUsername:         strings.TrimPrefix(getenv("BOT_USERNAME", "CreaVisionBot"), "@"),
		},
		Telegram: TelegramConfig{
			Token:               strings.TrimSpace(getenv("TELEGRAM_TOKEN", "")),
			NotificationChannel: strings.TrimSpace(getenv("NOTIFICATION_CHANNEL", "")),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
			LockTTL:  getenvDuration("LOCK_TTL", 2*time.Minute),
		},
		RateLimit: RateLimitConfig{
			MessageRate:  getenvFloat("RATE_LIMIT_MESSAGES_PER_SECOND", 0.5),
			MessageBurst: int(getenvInt64("RATE_LIMIT_MESSAGE_BURST", 5)),
		},

		AdminUserIDs:   parseIDs(getenv("ADMIN_USER_IDS", "")),
		AdminJWTSecret: strings.TrimSpace(getenv("ADMIN_JWT_SECRET", "")),
		CatalogPath:    strings.TrimSpace(getenv("CATALOG_PATH", "")),
	}

	return cfg
}

// IsAdmin reports whether the user id is listed in ADMIN_USER_IDS.
func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseIDs(raw string) []int64 {
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
