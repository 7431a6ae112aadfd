package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	GeminiAPIKey string
	GeminiModel  string
	LLMTimeout   time.Duration

	WhatsAppProvider    string
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioFromNumber    string
	TwilioWebhookSecret string

	ClinicName          string
	ClinicOpenHour      int
	ClinicCloseHour     int
	SlotDurationMinutes int
	BookingHorizonDays  int
	SessionIdleTimeout  time.Duration

	ReminderLookahead time.Duration
	ReminderInterval  time.Duration

	DoctorPhone string
	DoctorEmail string

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	AdminJWTSecret string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		LLMTimeout:   getEnvAsDuration("LLM_TIMEOUT", 10*time.Second),

		WhatsAppProvider:    getEnv("WHATSAPP_PROVIDER", "console"),
		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:    getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioWebhookSecret: getEnv("TWILIO_WEBHOOK_SECRET", ""),

		ClinicName:          getEnv("CLINIC_NAME", "City Clinic"),
		ClinicOpenHour:      getEnvAsInt("CLINIC_OPEN_HOUR", 10),
		ClinicCloseHour:     getEnvAsInt("CLINIC_CLOSE_HOUR", 20),
		SlotDurationMinutes: getEnvAsInt("SLOT_DURATION_MINUTES", 30),
		BookingHorizonDays:  getEnvAsInt("BOOKING_HORIZON_DAYS", 30),
		SessionIdleTimeout:  getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),

		ReminderLookahead: getEnvAsDuration("REMINDER_LOOKAHEAD", 24*time.Hour),
		ReminderInterval:  getEnvAsDuration("REMINDER_INTERVAL", time.Hour),

		DoctorPhone: getEnv("DOCTOR_PHONE", ""),
		DoctorEmail: getEnv("DOCTOR_EMAIL", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Clinic Receptionist"),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
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
