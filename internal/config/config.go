package config

import (
	"os"
	"strconv"
	"time"

	"goglm/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Engine   EngineConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Server   ServerConfig
	Paths    PathConfig
	LogLevel string
}

// EngineConfig holds the computation parameters shared by every analysis
type EngineConfig struct {
	NumericSamples  int
	Workers         int
	LiftBins        int
	UnivariateBins  int
	QuantileBinning bool
}

// DatabaseConfig holds report archive connection settings
type DatabaseConfig struct {
	URL     string
	Enabled bool
}

// CacheConfig holds the optional Redis L2 cache settings
type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// PathConfig holds default input files
type PathConfig struct {
	ModelSpec    string
	Coefficients string
	TrainData    string
	TestData     string
}

// Defaults
const (
	DefaultNumericSamples = 10
	DefaultWorkers        = 4
	DefaultLiftBins       = 8
	DefaultUnivariateBins = 20
)

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Engine:   *loadEngineConfig(),
		Database: *loadDatabaseConfig(),
		Cache:    *loadCacheConfig(),
		Server:   *loadServerConfig(),
		Paths:    *loadPathConfig(),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadEngineConfig() *EngineConfig {
	return &EngineConfig{
		NumericSamples:  getEnvIntOrDefault("GOGLM_NUMERIC_SAMPLES", DefaultNumericSamples),
		Workers:         getEnvIntOrDefault("GOGLM_WORKERS", DefaultWorkers),
		LiftBins:        getEnvIntOrDefault("GOGLM_LIFT_BINS", DefaultLiftBins),
		UnivariateBins:  getEnvIntOrDefault("GOGLM_UNIVARIATE_BINS", DefaultUnivariateBins),
		QuantileBinning: getEnvBoolOrDefault("GOGLM_QUANTILE_BINS", false),
	}
}

func loadDatabaseConfig() *DatabaseConfig {
	url := getEnvOrDefault("DATABASE_URL", "")
	return &DatabaseConfig{
		URL:     url,
		Enabled: url != "",
	}
}

func loadCacheConfig() *CacheConfig {
	return &CacheConfig{
		RedisURL: getEnvOrDefault("REDIS_URL", ""),
		TTL:      getEnvDurationOrDefault("CACHE_TTL", time.Hour),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port: getEnvOrDefault("PORT", "8080"),
	}
}

func loadPathConfig() *PathConfig {
	return &PathConfig{
		ModelSpec:    getEnvOrDefault("GOGLM_MODEL_SPEC", ""),
		Coefficients: getEnvOrDefault("GOGLM_COEFFICIENTS", ""),
		TrainData:    getEnvOrDefault("GOGLM_TRAIN_DATA", ""),
		TestData:     getEnvOrDefault("GOGLM_TEST_DATA", ""),
	}
}

func validateConfig(config *Config) error {
	if config.Engine.NumericSamples < 1 {
		return errors.InvalidInput("GOGLM_NUMERIC_SAMPLES must be at least 1")
	}
	if config.Engine.Workers < 1 {
		return errors.InvalidInput("GOGLM_WORKERS must be at least 1")
	}
	if config.Engine.LiftBins < 1 {
		return errors.InvalidInput("GOGLM_LIFT_BINS must be at least 1")
	}
	if config.Engine.UnivariateBins < 1 {
		return errors.InvalidInput("GOGLM_UNIVARIATE_BINS must be at least 1")
	}
	if config.Cache.TTL < 0 {
		return errors.InvalidInput("CACHE_TTL cannot be negative")
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

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
