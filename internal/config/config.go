package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"tabflow/domain/core"
)

// Config represents the complete application configuration
type Config struct {
	Server ServerConfig
	Paths  PathConfig
	Engine EngineConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port     string
	LogLevel string
}

// PathConfig holds file system paths
type PathConfig struct {
	// DataDir is the root for resolving relative source file paths
	DataDir string
	// StoreDir holds saved workflow templates
	StoreDir string
	// ExportDir is where run outputs are written
	ExportDir string
}

// EngineConfig holds execution settings
type EngineConfig struct {
	MaxConcurrentGroups int
	SchemaSampleRows    int
}

// Load reads configuration from a .env file when present, then the
// environment, and validates the result
func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:     getEnvOrDefault("PORT", "8080"),
			LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
		},
		Paths: PathConfig{
			DataDir:   getEnvOrDefault("DATA_DIR", "."),
			StoreDir:  getEnvOrDefault("STORE_DIR", "./templates"),
			ExportDir: getEnvOrDefault("EXPORT_DIR", "./exports"),
		},
		Engine: EngineConfig{
			MaxConcurrentGroups: getEnvIntOrDefault("MAX_CONCURRENT_GROUPS", 4),
			SchemaSampleRows:    getEnvIntOrDefault("SCHEMA_SAMPLE_ROWS", 500),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return core.NewValidationError("config", "server port cannot be empty")
	}
	if config.Paths.StoreDir == "" {
		return core.NewValidationError("config", "store directory cannot be empty")
	}
	if config.Engine.MaxConcurrentGroups < 1 {
		return core.NewValidationError("config", "MAX_CONCURRENT_GROUPS must be at least 1")
	}
	if config.Engine.SchemaSampleRows < 1 {
		return core.NewValidationError("config", "SCHEMA_SAMPLE_ROWS must be at least 1")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
