package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Twilio webhook verification. PublicWebhookURL must be the exact
	// callback URL registered with Twilio or signatures never match.
	TwilioAuthToken  string
	PublicWebhookURL string

	OpenAIAPIKey string
	OpenAIModel  string

	GoogleCalendarID      string
	GoogleCredentialsFile string

	// Business scheduling parameters. All dialogue happens in the
	// business timezone; the calendar boundary is UTC only.
	BusinessTimezone    string
	BusinessOpenHour    int
	BusinessCloseHour   int
	AppointmentDuration time.Duration
	SlotStep            time.Duration
	MaxAlternatives     int

	SessionIdleTimeout    time.Duration
	TranscriptLimit       int
	RequireBookingKeyword bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		PublicWebhookURL: getEnv("PUBLIC_WEBHOOK_URL", ""),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o"),

		GoogleCalendarID:      getEnv("GOOGLE_CALENDAR_ID", "primary"),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),

		BusinessTimezone:    getEnv("BUSINESS_TIMEZONE", "America/Monterrey"),
		BusinessOpenHour:    getEnvAsInt("BUSINESS_OPEN_HOUR", 9),
		BusinessCloseHour:   getEnvAsInt("BUSINESS_CLOSE_HOUR", 18),
		AppointmentDuration: getEnvAsDuration("APPOINTMENT_DURATION", 30*time.Minute),
		SlotStep:            getEnvAsDuration("SLOT_STEP", 15*time.Minute),
		MaxAlternatives:     getEnvAsInt("MAX_ALTERNATIVES", 5),

		SessionIdleTimeout:    getEnvAsDuration("SESSION_IDLE_TIMEOUT", 120*time.Minute),
		TranscriptLimit:       getEnvAsInt("TRANSCRIPT_LIMIT", 6),
		RequireBookingKeyword: getEnvAsBool("REQUIRE_BOOKING_KEYWORD", false),
	}
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
