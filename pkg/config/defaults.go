// Package config provides centralized default values for threshold
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

// getEnvSecret reads a secret without echoing its value.
func getEnvSecret(key string) string {
	val := os.Getenv(key)
	if val != "" {
		log.Printf("Config override: %s=<redacted>", key)
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue string) []string {
	raw := getEnvString(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	GinReleaseMode     bool
	CORSAllowOrigins   []string

	// Database
	DBDriver                 string
	DBURL                    string
	DBAuthToken              string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	SlowQueryThreshold       time.Duration

	// Logging
	LogDirectory     string
	LogToFile        bool
	LogJSON          bool
	LogLevel         string
	LogIncludeSource bool

	// Secrets
	CronSecret      string
	JWTSecret       string
	SessionTokenTTL time.Duration

	// Scheduler (tier promotion evaluator)
	SchedulerRateLimit  int
	SchedulerRateWindow time.Duration
	SchedulerInterval   time.Duration

	// Live sessions
	SessionTickInterval  time.Duration
	SessionFlushInterval time.Duration
	SessionIdleTimeout   time.Duration
	MaxLiveSessions      int
	MaxStreamClients     int

	// Thresholds
	ThresholdsFile string

	// Operator reports
	ResendAPIKey    string
	OperatorEmail   string
	ReportFromEmail string
	ReportFromName  string
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	GinReleaseMode = getEnvString("GIN_MODE", "debug") == "release"
	CORSAllowOrigins = getEnvList("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:4321,http://127.0.0.1:3000,http://127.0.0.1:4321")

	// Database
	DBDriver = getEnvString("DB_DRIVER", "sqlite3")
	DBURL = getEnvString("DB_URL", "")
	DBAuthToken = getEnvSecret("DB_AUTH_TOKEN")
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 500*time.Millisecond)

	// Logging
	LogDirectory = getEnvString("LOG_DIRECTORY", "logs")
	LogToFile = getEnvBool("LOG_TO_FILE", false)
	LogJSON = getEnvBool("LOG_JSON", true)
	LogLevel = getEnvString("LOG_LEVEL", "INFO")
	LogIncludeSource = getEnvBool("LOG_INCLUDE_SOURCE", false)

	// Secrets
	CronSecret = getEnvSecret("CRON_SECRET")
	JWTSecret = getEnvSecret("JWT_SECRET")
	SessionTokenTTL = getEnvDuration("SESSION_TOKEN_TTL", 12*time.Hour)

	// Scheduler
	SchedulerRateLimit = getEnvInt("SCHEDULER_RATE_LIMIT", 2)
	SchedulerRateWindow = getEnvDuration("SCHEDULER_RATE_WINDOW", time.Hour)
	SchedulerInterval = getEnvDuration("SCHEDULER_INTERVAL", 0)

	// Live sessions
	SessionTickInterval = getEnvDuration("SESSION_TICK_INTERVAL", 2*time.Second)
	SessionFlushInterval = getEnvDuration("SESSION_FLUSH_INTERVAL", 30*time.Second)
	SessionIdleTimeout = getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute)
	MaxLiveSessions = getEnvInt("MAX_LIVE_SESSIONS", 5000)
	MaxStreamClients = getEnvInt("MAX_STREAM_CLIENTS", 1000)

	// Thresholds
	ThresholdsFile = getEnvString("THRESHOLDS_FILE", "")

	// Operator reports
	ResendAPIKey = getEnvSecret("RESEND_API_KEY")
	OperatorEmail = getEnvString("OPERATOR_EMAIL", "")
	ReportFromEmail = getEnvString("REPORT_EMAIL_FROM", "noreply@threshold.local")
	ReportFromName = getEnvString("REPORT_EMAIL_FROM_NAME", "Threshold")
}
