package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	Environment string

	// AWS configuration
	AWSRegion     string
	DynamoDBTable string
	EventBusName  string

	// StoreBackend selects the document store adapter: "memory" or
	// "dynamodb".
	StoreBackend string

	// Relay configuration
	RelayCollection string
	RelaySource     string
	BufferWindowMs  int

	// Logging
	LogLevel string

	// Feature flags
	EnableMetrics    bool
	EnableTracing    bool
	MetricsNamespace string
	ServiceName      string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable: getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", "taskhub-documents")),
		EventBusName:  getEnv("EVENT_BUS_NAME", "taskhub-events"),

		StoreBackend: getEnv("STORE_BACKEND", "dynamodb"),

		RelayCollection: getEnv("RELAY_COLLECTION", "tasks"),
		RelaySource:     getEnv("RELAY_SOURCE", "taskhub.documents"),
		BufferWindowMs:  getEnvInt("BUFFER_WINDOW_MS", 1000),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		EnableMetrics:    getEnvBool("ENABLE_METRICS", false),
		EnableTracing:    getEnvBool("ENABLE_TRACING", false),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "TaskHub/Engine"),
		ServiceName:      getEnv("SERVICE_NAME", "taskhub-backend"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "memory", "dynamodb":
	default:
		return fmt.Errorf("STORE_BACKEND must be 'memory' or 'dynamodb', got %q", c.StoreBackend)
	}
	if c.BufferWindowMs <= 0 {
		return fmt.Errorf("BUFFER_WINDOW_MS must be positive")
	}

	if c.Environment == "production" {
		if c.StoreBackend != "dynamodb" {
			return fmt.Errorf("STORE_BACKEND must be 'dynamodb' in production")
		}
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required")
		}
		if c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
