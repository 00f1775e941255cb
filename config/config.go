package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// This function will Load the ENVIRONMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return nil
}

type EnvironmentVariable struct {
	GO_ENV    string
	PORT      int
	LOG_LEVEL string
	// Database
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	// JWT
	JWT_SECRET string
	JWT_ISSUER string
	// Redis
	REDIS_URL string
	// Secret used to derive the key that encrypts stored LLM API keys
	ENCRYPTION_SECRET string
	// Orchestration runtime
	BROADCAST_BACKEND    string // memory, redis, postgres
	CRON_ENABLED         bool
	TASK_WORKERS         int
	SESSION_IDLE_TIMEOUT time.Duration
	ALLOWED_ORIGINS      string
}

// IsProduction reports whether GO_ENV is production
func (e *EnvironmentVariable) IsProduction() bool {
	return e.GO_ENV == "production"
}

// PostgresDSN builds the libpq style connection string shared by GORM and the LISTEN/NOTIFY broadcaster
func (e *EnvironmentVariable) PostgresDSN() string {
	return "host=" + e.DB_HOST +
		" user=" + e.DB_USER_NAME +
		" password=" + e.DB_PASSWORD +
		" dbname=" + e.DB_NAME +
		" port=" + e.DB_PORT +
		" sslmode=" + e.DB_SSL_MODE +
		" TimeZone=UTC"
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("JWT_ISSUER", "agentsphere-api")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("BROADCAST_BACKEND", "")
	v.SetDefault("CRON_ENABLED", true)
	v.SetDefault("TASK_WORKERS", 4)
	v.SetDefault("SESSION_IDLE_TIMEOUT", 2*time.Hour)
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")

	return v
}

func Get() (*EnvironmentVariable, error) {
	v := newViper()

	workers := v.GetInt("TASK_WORKERS")
	if workers < 1 {
		workers = 1
	}

	idle := v.GetDuration("SESSION_IDLE_TIMEOUT")
	if idle <= 0 {
		idle = 2 * time.Hour
	}

	envVariables := &EnvironmentVariable{
		GO_ENV:    v.GetString("GO_ENV"),
		PORT:      v.GetInt("PORT"),
		LOG_LEVEL: v.GetString("LOG_LEVEL"),
		// Database
		DB_USER_NAME: v.GetString("DB_USER_NAME"),
		DB_PASSWORD:  v.GetString("DB_PASSWORD"),
		DB_NAME:      v.GetString("DB_NAME"),
		DB_HOST:      v.GetString("DB_HOST"),
		DB_PORT:      v.GetString("DB_PORT"),
		DB_SSL_MODE:  v.GetString("DB_SSL_MODE"),
		// JWT
		JWT_SECRET: v.GetString("JWT_SECRET"),
		JWT_ISSUER: v.GetString("JWT_ISSUER"),
		// Redis
		REDIS_URL: v.GetString("REDIS_URL"),
		// Crypto
		ENCRYPTION_SECRET: v.GetString("ENCRYPTION_SECRET"),
		// Runtime
		BROADCAST_BACKEND:    v.GetString("BROADCAST_BACKEND"),
		CRON_ENABLED:         v.GetBool("CRON_ENABLED"),
		TASK_WORKERS:         workers,
		SESSION_IDLE_TIMEOUT: idle,
		ALLOWED_ORIGINS:      v.GetString("ALLOWED_ORIGINS"),
	}

	if envVariables.PORT == 0 {
		envVariables.PORT = 8080
	}

	return envVariables, nil
}
