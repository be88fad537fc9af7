package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Test loading default config
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Verify defaults
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Storage.Adapter)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 5*time.Minute, cfg.Engine.DedupWindow)
	assert.Equal(t, 100.0, cfg.Engine.MaxAccuracyMeters)
	assert.Equal(t, 0.8, cfg.Engine.TriggerThreshold)
	assert.Equal(t, 30*time.Minute, cfg.Engine.ExtendedVisit)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GEOTRIGGER_ENGINE_DEDUP_WINDOW", "2m")
	t.Setenv("GEOTRIGGER_ENGINE_TRIGGER_THRESHOLD", "0.9")
	t.Setenv("GEOTRIGGER_WEBHOOK_SIGNING_SECRET", "hunter2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Engine.DedupWindow)
	assert.Equal(t, 0.9, cfg.Engine.TriggerThreshold)
	assert.Equal(t, "hunter2", cfg.Webhook.SigningSecret)
}

func TestLoadFromFile(t *testing.T) {
	// Create a temporary config file
	configContent := `{
		"environment": "testing",
		"server": {
			"address": ":9090"
		},
		"storage": {
			"adapter": "memory"
		},
		"engine": {
			"trigger_threshold": 0.75
		}
	}`

	tmpFile, err := os.CreateTemp("", "config_test_*.json")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString(configContent)
	require.NoError(t, err)
	tmpFile.Close()

	// Load config from file
	cfg, err := LoadFromFile(tmpFile.Name())
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Verify loaded values
	assert.Equal(t, EnvTesting, cfg.Environment)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Storage.Adapter)
	assert.Equal(t, 0.75, cfg.Engine.TriggerThreshold)
	// Untouched sections keep their defaults
	assert.Equal(t, 5*time.Minute, cfg.Engine.DedupWindow)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return DefaultConfig() }

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:        "valid config",
			mutate:      func(*Config) {},
			expectError: false,
		},
		{
			name:        "invalid environment",
			mutate:      func(c *Config) { c.Environment = "" },
			expectError: true,
		},
		{
			name:        "invalid server timeout",
			mutate:      func(c *Config) { c.Server.ReadTimeout = 0 },
			expectError: true,
		},
		{
			name:        "unknown storage adapter",
			mutate:      func(c *Config) { c.Storage.Adapter = "cassandra" },
			expectError: true,
		},
		{
			name:        "sql adapter without dsn",
			mutate:      func(c *Config) { c.Storage.Adapter = "sql" },
			expectError: true,
		},
		{
			name:        "threshold above one",
			mutate:      func(c *Config) { c.Engine.TriggerThreshold = 1.5 },
			expectError: true,
		},
		{
			name:        "zero dedup window",
			mutate:      func(c *Config) { c.Engine.DedupWindow = 0 },
			expectError: true,
		},
		{
			name:        "bad dispatch mode",
			mutate:      func(c *Config) { c.Engine.Dispatch = "parallel" },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProfiles(t *testing.T) {
	tests := []struct {
		name         string
		profileName  string
		expectConfig bool
		environment  Environment
	}{
		{"development", "development", true, EnvDevelopment},
		{"testing", "testing", true, EnvTesting},
		{"staging", "staging", true, EnvStaging},
		{"production", "production", true, EnvProduction},
		{"unknown", "unknown", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadProfile(tt.profileName)
			if tt.expectConfig {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				assert.Equal(t, tt.environment, cfg.Environment)
			} else {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			}
		})
	}
}

func TestProductionProfileHardening(t *testing.T) {
	cfg, err := LoadProfile("production")
	require.NoError(t, err)
	assert.Equal(t, "async", cfg.Engine.Dispatch)
	assert.True(t, cfg.Metrics.Enabled)
	assert.True(t, cfg.Security.EnableRateLimit)
}

func TestSecrets(t *testing.T) {
	// Test environment secret store
	store := NewEnvironmentSecretStore()

	// Set test environment variable
	testKey := "TEST_SECRET_KEY"
	testValue := "test_secret_value"
	os.Setenv(testKey, testValue)
	defer os.Unsetenv(testKey)

	ctx := context.Background()

	// Test Get
	value, err := store.Get(ctx, testKey)
	assert.NoError(t, err)
	assert.Equal(t, testValue, value)

	// Test GetWithDefault
	defaultValue := "default"
	value = store.GetWithDefault(ctx, "NONEXISTENT_KEY", defaultValue)
	assert.Equal(t, defaultValue, value)

	value = store.GetWithDefault(ctx, testKey, defaultValue)
	assert.Equal(t, testValue, value)
}

func TestValidateConfigPath(t *testing.T) {
	t.Run("valid json file", func(t *testing.T) {
		tmpFile, err := os.CreateTemp("", "config_test_*.json")
		require.NoError(t, err)
		defer os.Remove(tmpFile.Name())
		_, _ = tmpFile.WriteString("{}")
		tmpFile.Close()

		assert.NoError(t, validateConfigPath(tmpFile.Name()))
	})

	t.Run("empty path", func(t *testing.T) {
		assert.Error(t, validateConfigPath(""))
	})

	t.Run("non-json file", func(t *testing.T) {
		tmpFile, err := os.CreateTemp("", "config_test_*.txt")
		require.NoError(t, err)
		defer os.Remove(tmpFile.Name())
		_, _ = tmpFile.WriteString("{}")
		tmpFile.Close()

		assert.Error(t, validateConfigPath(tmpFile.Name()))
	})

	t.Run("nonexistent file", func(t *testing.T) {
		assert.Error(t, validateConfigPath("nonexistent.json"))
	})
}
