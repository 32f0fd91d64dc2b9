package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthCookieSecure bool

	// PlatformAdminSecret authorizes institution provisioning requests.
	PlatformAdminSecret string

	// SeedDefaultInstitution provisions a starter institution on first boot
	// so self-hosted deployments work out of the box.
	SeedDefaultInstitution bool

	OTLPEndpoint string
	RedisAddr    string

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
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	return Config{
		AppName:                getenv("APP_SERVICE", "atrium"),
		AppVersion:             getenv("APP_VERSION", "0.1.0"),
		Environment:            environment,
		HTTPAddr:               getenv("HTTP_ADDR", ":8080"),
		AuthCookieSecure:       authCookieSecure,
		PlatformAdminSecret:    strings.TrimSpace(getenv("PLATFORM_ADMIN_SECRET", "")),
		SeedDefaultInstitution: getenvBool("SEED_DEFAULT_INSTITUTION", true),
		OTLPEndpoint:           getenv("OTLP_ENDPOINT", "localhost:4317"),
		RedisAddr:              strings.TrimSpace(getenv("REDIS_ADDR", "")),
		DBType:                 getenv("DB_TYPE", "sqlite"),
		DBHost:                 getenv("DB_HOST", "localhost"),
		DBPort:                 getenv("DB_PORT", "5432"),
		DBName:                 getenv("DB_NAME", "atrium"),
		DBUser:                 getenv("DB_USER", "atrium"),
		DBPassword:             getenv("DB_PASSWORD", ""),
		DBSSLMode:              getenv("DB_SSLMODE", "disable"),
		DBMaxIdleConn:          getenvInt("DB_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:          getenvInt("DB_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime:      getenvInt("DB_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime:      getenvInt("DB_CONN_MAX_IDLE_TIME", 300),
	}
}

// Module wires configuration for the application.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPlatformConfigHolder),
)

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}
