package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds runtime configuration sourced from environment variables.
type Config struct {
	Port           string
	UseMemoryStore bool

	DBUser                 string
	DBPass                 string
	DBName                 string
	DBHost                 string
	DBPort                 string
	InstanceConnectionName string

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioWhatsAppNum string

	RedisURL string

	DefaultTimezone    string
	BusinessHoursStart int
	BusinessHoursEnd   int

	SessionTTL           time.Duration
	AvailabilityCacheTTL time.Duration

	NotifyMaxAttempts int
	NotifyBaseDelay   time.Duration
	NotifyMaxDelay    time.Duration

	MaxClarifyAttempts int
	MaxQueuedIntents   int
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		UseMemoryStore:         os.Getenv("USE_MEMORY_STORE") == "true",
		DBUser:                 getEnv("DB_USER", "postgres"),
		DBPass:                 os.Getenv("DB_PASS"),
		DBName:                 getEnv("DB_NAME", "studio"),
		DBHost:                 getEnv("DB_HOST", "localhost"),
		DBPort:                 getEnv("DB_PORT", "5432"),
		InstanceConnectionName: os.Getenv("INSTANCE_CONNECTION_NAME"),
		TwilioAccountSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:        os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioWhatsAppNum:      os.Getenv("TWILIO_WHATSAPP_FROM"),
		RedisURL:               os.Getenv("REDIS_URL"),
		DefaultTimezone:        getEnv("DEFAULT_TIMEZONE", "America/Bogota"),
		BusinessHoursStart:     getEnvInt("BUSINESS_HOURS_START", 9),
		BusinessHoursEnd:       getEnvInt("BUSINESS_HOURS_END", 17),
		SessionTTL:             time.Duration(getEnvInt("SESSION_TTL_HOURS", 24)) * time.Hour,
		AvailabilityCacheTTL:   time.Duration(getEnvInt("AVAILABILITY_CACHE_TTL_SECONDS", 30)) * time.Second,
		NotifyMaxAttempts:      getEnvInt("NOTIFY_MAX_ATTEMPTS", 5),
		NotifyBaseDelay:        time.Duration(getEnvInt("NOTIFY_BASE_DELAY_SECONDS", 5)) * time.Second,
		NotifyMaxDelay:         time.Duration(getEnvInt("NOTIFY_MAX_DELAY_SECONDS", 300)) * time.Second,
		MaxClarifyAttempts:     getEnvInt("MAX_CLARIFY_ATTEMPTS", 2),
		MaxQueuedIntents:       getEnvInt("MAX_QUEUED_INTENTS", 3),
	}

	if cfg.BusinessHoursStart < 0 || cfg.BusinessHoursStart > 23 ||
		cfg.BusinessHoursEnd < 0 || cfg.BusinessHoursEnd > 23 ||
		cfg.BusinessHoursEnd <= cfg.BusinessHoursStart {
		log.Printf("Invalid business hours %d-%d, falling back to 9-17",
			cfg.BusinessHoursStart, cfg.BusinessHoursEnd)
		cfg.BusinessHoursStart = 9
		cfg.BusinessHoursEnd = 17
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
