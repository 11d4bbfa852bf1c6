package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the userbot relay service
type Config struct {
	Database DatabaseConfig
	Kafka    KafkaConfig
	Logging  LoggingConfig
	Service  ServiceConfig
	Dispatch DispatchConfig
	Registry RegistryConfig
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN builds the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// KafkaConfig holds audit event stream configuration.
// Empty Brokers disables the audit producer.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Name            string
	Port            string
	ShutdownTimeout time.Duration
}

// DispatchConfig holds the delivery policy constants
type DispatchConfig struct {
	// CooldownWindow is the minimum gap between two sends to the same chat
	CooldownWindow time.Duration

	// SendPacing and JoinPacing are the fixed pre-call delays that soften
	// the burst signature of outbound traffic
	SendPacing time.Duration
	JoinPacing time.Duration

	// FloodMargin is added on top of every provider-suggested wait
	FloodMargin time.Duration

	// FloodWarnAfter is the cumulative backoff past which a warning is
	// logged; retries continue until the provider stops signalling or the
	// context is cancelled
	FloodWarnAfter time.Duration
}

// RegistryConfig holds chat registry behavior settings
type RegistryConfig struct {
	// TargetKeyword/WarmupKeyword drive automatic dependency linking:
	// a chat whose title contains TargetKeyword is linked to the first
	// known chat whose title contains WarmupKeyword. Empty disables it.
	TargetKeyword string
	WarmupKeyword string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cooldown, err := time.ParseDuration(getEnv("DISPATCH_COOLDOWN_WINDOW", "120s"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_COOLDOWN_WINDOW: %w", err)
	}

	sendPacing, err := time.ParseDuration(getEnv("DISPATCH_SEND_PACING", "3s"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_SEND_PACING: %w", err)
	}

	joinPacing, err := time.ParseDuration(getEnv("DISPATCH_JOIN_PACING", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_JOIN_PACING: %w", err)
	}

	floodMargin, err := time.ParseDuration(getEnv("DISPATCH_FLOOD_MARGIN", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_FLOOD_MARGIN: %w", err)
	}

	floodWarnAfter, err := time.ParseDuration(getEnv("DISPATCH_FLOOD_WARN_AFTER", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_FLOOD_WARN_AFTER: %w", err)
	}

	shutdownTimeout, err := time.ParseDuration(getEnv("SERVICE_SHUTDOWN_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVICE_SHUTDOWN_TIMEOUT: %w", err)
	}

	brokers := []string{}
	brokersStr := getEnv("KAFKA_BROKERS", "")
	if brokersStr != "" {
		brokers = strings.Split(brokersStr, ",")
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "userbot"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "userbot_relay"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:    brokers,
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "userbot-audit-events"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Service: ServiceConfig{
			Name:            getEnv("SERVICE_NAME", "userbot-relay"),
			Port:            getEnv("SERVICE_PORT", "8086"),
			ShutdownTimeout: shutdownTimeout,
		},
		Dispatch: DispatchConfig{
			CooldownWindow: cooldown,
			SendPacing:     sendPacing,
			JoinPacing:     joinPacing,
			FloodMargin:    floodMargin,
			FloodWarnAfter: floodWarnAfter,
		},
		Registry: RegistryConfig{
			TargetKeyword: getEnv("REGISTRY_TARGET_KEYWORD", ""),
			WarmupKeyword: getEnv("REGISTRY_WARMUP_KEYWORD", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}

	if c.Dispatch.CooldownWindow <= 0 {
		return fmt.Errorf("DISPATCH_COOLDOWN_WINDOW must be positive")
	}

	if _, err := strconv.Atoi(c.Service.Port); err != nil {
		return fmt.Errorf("invalid SERVICE_PORT: %w", err)
	}

	return nil
}

// Out exposes sub-configs as separate fx-injectable values
func Out(cfg *Config) (*DatabaseConfig, *KafkaConfig, *LoggingConfig, *ServiceConfig, *DispatchConfig, *RegistryConfig) {
	return &cfg.Database, &cfg.Kafka, &cfg.Logging, &cfg.Service, &cfg.Dispatch, &cfg.Registry
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
