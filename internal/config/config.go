package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string
	InstanceID  string

	// Database
	DatabaseURL    string
	ResultsBackend string
	MigrateOnStart bool
	MigrationsDir  string

	// Redis / shared state
	RedisURL       string
	StoreBackend   string
	StoreTimeoutMs int

	// Server
	Port                   string
	FrontendURL            string
	ShutdownTimeoutSeconds int

	// Match settings
	MaxBalls         int
	MatchedDelayMs   int
	CountdownSeconds int
	ResultDelayMs    int
	InningsDelayMs   int

	// Expiry
	SessionTTLMinutes       int
	SessionRetentionSeconds int
	StatusTTLMinutes        int

	// Idle detection
	IdleWarningSeconds int
	IdleForfeitSeconds int
	IdleWorkerPollMs   int

	// Matchmaking
	MatchmakerPollMs int

	// Security
	JWTSecret string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	hostname, _ := os.Hostname()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),
		InstanceID:  getEnv("INSTANCE_ID", hostname),

		// Database
		DatabaseURL:    getEnv("DATABASE_URL", "postgres://localhost:5432/handcricket?sslmode=disable"),
		ResultsBackend: getEnv("RESULTS_BACKEND", "postgres"),
		MigrateOnStart: getEnv("MIGRATE_ON_START", "false") == "true",
		MigrationsDir:  getEnv("MIGRATIONS_DIR", "migrations"),

		// Redis
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		StoreBackend:   getEnv("STORE_BACKEND", "redis"),
		StoreTimeoutMs: getEnvInt("STORE_TIMEOUT_MS", 2000),

		// Server
		Port:                   getEnv("APP_PORT", "8080"),
		FrontendURL:            getEnv("FRONTEND_URL", "http://localhost:5173"),
		ShutdownTimeoutSeconds: getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 10),

		// Match settings
		MaxBalls:         getEnvInt("MAX_BALLS", 6),
		MatchedDelayMs:   getEnvInt("MATCHED_DELAY_MS", 1000),
		CountdownSeconds: getEnvInt("COUNTDOWN_SECONDS", 3),
		ResultDelayMs:    getEnvInt("RESULT_DELAY_MS", 2000),
		InningsDelayMs:   getEnvInt("INNINGS_DELAY_MS", 3000),

		// Expiry
		SessionTTLMinutes:       getEnvInt("SESSION_TTL_MINUTES", 60),
		SessionRetentionSeconds: getEnvInt("SESSION_RETENTION_SECONDS", 300),
		StatusTTLMinutes:        getEnvInt("STATUS_TTL_MINUTES", 60),

		// Idle detection
		IdleWarningSeconds: getEnvInt("IDLE_WARNING_SECONDS", 20),
		IdleForfeitSeconds: getEnvInt("IDLE_FORFEIT_SECONDS", 40),
		IdleWorkerPollMs:   getEnvInt("IDLE_WORKER_POLL_MS", 1000),

		// Matchmaking
		MatchmakerPollMs: getEnvInt("MATCHMAKER_POLL_MS", 2000),

		// Security
		JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),
	}
}

// Millis converts a millisecond setting into a time.Duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
