package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Login security policy
	PasswordMinLength int
	MaxLoginAttempts  int
	LockoutDuration   time.Duration

	// AI provider
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	TranscriptionModel string
	SummaryModel       string
	SummaryMaxTokens   int
	SummaryTemperature float64
	AITimeout          time.Duration

	// Storage
	DataDir  string
	AudioDir string

	// Server
	Port        string
	CORSOrigins string
}

func Load() *Config {
	dataDir := getEnv("DATA_DIR", "data")
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "casevault"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 168*time.Hour),

		PasswordMinLength: parseInt(getEnv("PASSWORD_MIN_LENGTH", "8"), 8),
		MaxLoginAttempts:  parseInt(getEnv("MAX_LOGIN_ATTEMPTS", "5"), 5),
		LockoutDuration:   parseDuration(getEnv("LOCKOUT_DURATION", "15m"), 15*time.Minute),

		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		TranscriptionModel: getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
		SummaryModel:       getEnv("SUMMARY_MODEL", "gpt-4o"),
		SummaryMaxTokens:   parseInt(getEnv("SUMMARY_MAX_TOKENS", "1500"), 1500),
		SummaryTemperature: parseFloat(getEnv("SUMMARY_TEMPERATURE", "0.3"), 0.3),
		AITimeout:          parseDuration(getEnv("AI_TIMEOUT", "120s"), 120*time.Second),

		DataDir:  dataDir,
		AudioDir: getEnv("AUDIO_DIR", filepath.Join(dataDir, "audio")),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(s string, fallback float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}
