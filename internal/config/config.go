// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Relay           RelayConfig
	Backend         BackendConfig
	Store           StoreConfig
	AdminPort       string // empty disables the admin HTTP server
	GRPCHealthPort  string // empty disables the gRPC health service
	HealthInterval  time.Duration
	LogLevel        slog.Level
	ConversationLog ConversationLogConfig
}

// RelayConfig controls the datagram listener.
type RelayConfig struct {
	Addr       string
	BufferSize int
	Workers    int
}

// BackendConfig controls the chat-completion client.
type BackendConfig struct {
	URL             string
	Model           string
	Timeout         time.Duration
	MalformedPolicy string
}

// StoreConfig selects where transcripts are persisted.
type StoreConfig struct {
	Driver string // file, sqlite or bolt
	Dir    string
	DBPath string
}

// ConversationLogConfig controls NDJSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	driver := strings.ToLower(getEnv("STORE_DRIVER", "file"))

	cfg := &Config{
		Relay: RelayConfig{
			Addr:       getEnv("RELAY_ADDR", "0.0.0.0:8765"),
			BufferSize: getEnvInt("RELAY_BUFFER_SIZE", 1024),
			Workers:    getEnvInt("RELAY_WORKERS", 1),
		},
		Backend: BackendConfig{
			URL:             getEnv("BACKEND_URL", "http://localhost:11434"),
			Model:           getEnv("BACKEND_MODEL", "llama3.1"),
			Timeout:         getEnvDuration("BACKEND_TIMEOUT", 120*time.Second),
			MalformedPolicy: strings.ToLower(getEnv("BACKEND_MALFORMED_POLICY", "degrade")),
		},
		Store: StoreConfig{
			Driver: driver,
			Dir:    getEnv("STORE_DIR", "conversation_histories"),
			DBPath: getEnv("STORE_DB_PATH", defaultDBPath(driver)),
		},
		AdminPort:      getEnv("ADMIN_PORT", "8080"),
		GRPCHealthPort: getEnv("GRPC_HEALTH_PORT", ""),
		HealthInterval: getEnvDuration("HEALTH_INTERVAL", 30*time.Second),
		LogLevel:       getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Relay.Addr == "" {
		return fmt.Errorf("RELAY_ADDR cannot be empty")
	}
	if c.Relay.BufferSize <= 0 || c.Relay.BufferSize > 65535 {
		return fmt.Errorf("RELAY_BUFFER_SIZE must be between 1 and 65535")
	}
	if c.Relay.Workers <= 0 {
		return fmt.Errorf("RELAY_WORKERS must be > 0")
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("BACKEND_URL cannot be empty")
	}
	if c.Backend.Model == "" {
		return fmt.Errorf("BACKEND_MODEL cannot be empty")
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("BACKEND_TIMEOUT cannot be negative")
	}
	switch c.Backend.MalformedPolicy {
	case "degrade", "fail":
	default:
		return fmt.Errorf("BACKEND_MALFORMED_POLICY must be degrade or fail")
	}
	switch c.Store.Driver {
	case "file":
		if c.Store.Dir == "" {
			return fmt.Errorf("STORE_DIR cannot be empty")
		}
	case "sqlite", "bolt":
		if c.Store.DBPath == "" {
			return fmt.Errorf("STORE_DB_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of file, sqlite, bolt")
	}
	if c.HealthInterval <= 0 {
		return fmt.Errorf("HEALTH_INTERVAL must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

func defaultDBPath(driver string) string {
	if driver == "bolt" {
		return "./data/transcripts.bolt"
	}
	return "./data/transcripts.db"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
