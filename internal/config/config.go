package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string

	// Subsystems
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Chat     ChatConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	AllowedOrigin   string
	RateLimitRPS    int
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	Enabled      bool
}

// AuthConfig holds credential and token configuration
type AuthConfig struct {
	JWTSecret    string
	TokenExpiry  time.Duration
	BcryptCost   int
	CookieSecure bool
}

// ChatConfig holds the real-time chat core configuration
type ChatConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	PersistTimeout time.Duration
	MaxConnections int
	SendBufferSize int
	HistoryLimit   int
}

// Load loads configuration from environment variables
// It automatically loads .env file if it exists in the current directory or parent directories
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 5000),
			AllowedOrigin:   getEnv("SERVER_ALLOWED_ORIGIN", "*"),
			RateLimitRPS:    getEnvAsInt("SERVER_RATE_LIMIT_RPS", 100),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "chat"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
			Enabled:      getEnvAsBool("REDIS_ENABLED", true),
		},
		Auth: AuthConfig{
			JWTSecret:    getEnv("JWT_SECRET", ""),
			TokenExpiry:  getEnvAsDuration("JWT_EXPIRY", 7*24*time.Hour),
			BcryptCost:   getEnvAsInt("BCRYPT_COST", 10),
			CookieSecure: getEnvAsBool("COOKIE_SECURE", false),
		},
		Chat: ChatConfig{
			ReadTimeout:    getEnvAsDuration("CHAT_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:   getEnvAsDuration("CHAT_WRITE_TIMEOUT", 10*time.Second),
			PingInterval:   getEnvAsDuration("CHAT_PING_INTERVAL", 30*time.Second),
			PersistTimeout: getEnvAsDuration("CHAT_PERSIST_TIMEOUT", 5*time.Second),
			MaxConnections: getEnvAsInt("CHAT_MAX_CONNECTIONS", 1000),
			SendBufferSize: getEnvAsInt("CHAT_SEND_BUFFER_SIZE", 256),
			HistoryLimit:   getEnvAsInt("CHAT_HISTORY_LIMIT", 100),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Chat.SendBufferSize <= 0 {
		return fmt.Errorf("CHAT_SEND_BUFFER_SIZE must be positive")
	}
	if c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("CHAT_HISTORY_LIMIT must be positive")
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required when REDIS_ENABLED is set")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
