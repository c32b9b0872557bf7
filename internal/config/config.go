package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	LogLevel string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Directory DirectoryConfig
	Scheduler SchedulerConfig
}

// DirectoryConfig configures the remote team directory client.
type DirectoryConfig struct {
	BaseURL        string
	AuthBaseURL    string
	TimeoutSeconds int
	RequestsPerSec float64
	Burst          int
}

// SchedulerConfig configures the reminder sweep loop.
type SchedulerConfig struct {
	IntervalSeconds int
	DueDays         int
	SendBatchSize   int
	LockTTLSeconds  int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "seatwise"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		LogLevel: getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "seatwise"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Directory: DirectoryConfig{
			BaseURL:        getenv("DIRECTORY_BASE_URL", "https://chatgpt.com/backend-api"),
			AuthBaseURL:    getenv("DIRECTORY_AUTH_BASE_URL", "https://auth.openai.com"),
			TimeoutSeconds: getenvInt("DIRECTORY_TIMEOUT_SECONDS", 30),
			RequestsPerSec: getenvFloat("DIRECTORY_REQUESTS_PER_SEC", 2),
			Burst:          getenvInt("DIRECTORY_BURST", 4),
		},
		Scheduler: SchedulerConfig{
			IntervalSeconds: getenvInt("SCHEDULER_INTERVAL_SECONDS", 3600),
			DueDays:         getenvInt("SCHEDULER_DUE_DAYS", 3),
			SendBatchSize:   getenvInt("SCHEDULER_SEND_BATCH_SIZE", 50),
			LockTTLSeconds:  getenvInt("SCHEDULER_LOCK_TTL_SECONDS", 300),
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

func getenvFloat(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fallback
	}
	return value
}
