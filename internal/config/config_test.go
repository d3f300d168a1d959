package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "SIMULATOR_URL", "http://localhost:9000/simulate")
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultRPCURL, cfg.RPCURL)
	assert.Equal(t, DefaultNativeSymbol, cfg.NativeSymbol)
	assert.Equal(t, DefaultNativeDecimals, cfg.NativeDecimals)
	assert.Equal(t, DefaultSimAttempts, cfg.SimMaxAttempts)
}

func TestLoad_MissingSimulatorURL(t *testing.T) {
	setEnv(t, "SIMULATOR_URL", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "SIMULATOR_URL is required")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid config",
			config: Config{
				SimulatorURL:   "http://localhost:9000/simulate",
				RPCURL:         "https://eth.llamarpc.com",
				NativeDecimals: 18,
				SimMaxAttempts: 3,
			},
			wantErr: "",
		},
		{
			name: "missing simulator URL",
			config: Config{
				SimulatorURL:   "",
				RPCURL:         "https://eth.llamarpc.com",
				NativeDecimals: 18,
				SimMaxAttempts: 3,
			},
			wantErr: "SIMULATOR_URL is required",
		},
		{
			name: "missing RPC URL",
			config: Config{
				SimulatorURL:   "http://localhost:9000/simulate",
				RPCURL:         "",
				NativeDecimals: 18,
				SimMaxAttempts: 3,
			},
			wantErr: "RPC_URL is required",
		},
		{
			name: "decimals out of range",
			config: Config{
				SimulatorURL:   "http://localhost:9000/simulate",
				RPCURL:         "https://eth.llamarpc.com",
				NativeDecimals: 72,
				SimMaxAttempts: 3,
			},
			wantErr: "NATIVE_DECIMALS",
		},
		{
			name: "zero retry attempts",
			config: Config{
				SimulatorURL:   "http://localhost:9000/simulate",
				RPCURL:         "https://eth.llamarpc.com",
				NativeDecimals: 18,
				SimMaxAttempts: 0,
			},
			wantErr: "SIM_MAX_ATTEMPTS must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_ChainAllowed(t *testing.T) {
	cfg := &Config{}
	assert.True(t, cfg.ChainAllowed(1), "empty allowlist permits any chain")
	assert.True(t, cfg.ChainAllowed(137))

	cfg.AllowedChainIDs = []int64{1, 10}
	assert.True(t, cfg.ChainAllowed(1))
	assert.True(t, cfg.ChainAllowed(10))
	assert.False(t, cfg.ChainAllowed(137))
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestParseChainIDs(t *testing.T) {
	assert.Nil(t, parseChainIDs(""))
	assert.Equal(t, []int64{1, 10, 137}, parseChainIDs("1, 10,137"))
	assert.Equal(t, []int64{1}, parseChainIDs("1,bogus,-5"))
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}
