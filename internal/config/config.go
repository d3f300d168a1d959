// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Execution backend
	SimulatorURL    string
	SimMaxAttempts  int
	SimBaseDelayMs  int
	SimTimeoutSec   int
	AllowedChainIDs []int64 // empty = any positive chain id

	// Chain introspection
	RPCURL         string
	NativeName     string
	NativeSymbol   string
	NativeDecimals int

	// Intelligence data
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Security
	RateLimitRPM int
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultRPCURL         = "https://eth.llamarpc.com"
	DefaultNativeName     = "Ether"
	DefaultNativeSymbol   = "ETH"
	DefaultNativeDecimals = 18
	DefaultRateLimit      = 120
	DefaultSimAttempts    = 3
	DefaultSimBaseDelay   = 250
	DefaultSimTimeout     = 15
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		SimulatorURL:    os.Getenv("SIMULATOR_URL"), // Required, no default
		SimMaxAttempts:  int(getEnvInt64("SIM_MAX_ATTEMPTS", DefaultSimAttempts)),
		SimBaseDelayMs:  int(getEnvInt64("SIM_BASE_DELAY_MS", DefaultSimBaseDelay)),
		SimTimeoutSec:   int(getEnvInt64("SIM_TIMEOUT_SEC", DefaultSimTimeout)),
		AllowedChainIDs: parseChainIDs(os.Getenv("ALLOWED_CHAIN_IDS")),
		RPCURL:          getEnv("RPC_URL", DefaultRPCURL),
		NativeName:      getEnv("NATIVE_NAME", DefaultNativeName),
		NativeSymbol:    getEnv("NATIVE_SYMBOL", DefaultNativeSymbol),
		NativeDecimals:  int(getEnvInt64("NATIVE_DECIMALS", DefaultNativeDecimals)),
		DatabaseURL:     os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RateLimitRPM:    int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.SimulatorURL == "" {
		return fmt.Errorf("SIMULATOR_URL is required")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.NativeDecimals < 0 || c.NativeDecimals > 36 {
		return fmt.Errorf("NATIVE_DECIMALS must be between 0 and 36")
	}
	if c.SimMaxAttempts <= 0 {
		return fmt.Errorf("SIM_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// ChainAllowed reports whether a chain id passes the optional allowlist
func (c *Config) ChainAllowed(chainID int64) bool {
	if len(c.AllowedChainIDs) == 0 {
		return true
	}
	for _, id := range c.AllowedChainIDs {
		if id == chainID {
			return true
		}
	}
	return false
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseChainIDs(value string) []int64 {
	if value == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}
