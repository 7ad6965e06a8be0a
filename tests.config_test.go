package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const testConfigYAML = `
app_name: "Test Library"
log_level: "debug"
ops_endpoints_enable: true
server:
  host: "127.0.0.1"
  port: "8080"
  request_timeout: 5s
gateway:
  base_url: "http://library.local/api"
  rate_limit: 20
cache:
  live_buffer: 8
boltdb:
  enabled: true
  filepath: "./data/test.db"
  bucket_name: "mutations"
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestLoadConfigFile ensures the yaml file is decoded into the config.
func TestLoadConfigFile(t *testing.T) {
	t.Run("should pass: valid file", func(t *testing.T) {
		config, err := LoadConfigFile(writeTestConfig(t, testConfigYAML))
		require.NoError(t, err)
		assert.Equal(t, "Test Library", config.AppName)
		assert.Equal(t, zapcore.DebugLevel, config.LogLevel)
		assert.True(t, config.OpsEndpointsEnable)
		assert.Equal(t, "8080", config.Server.Port)
		assert.Equal(t, 5*time.Second, config.Server.RequestTimeout)
		assert.Equal(t, "http://library.local/api", config.Gateway.BaseURL)
		assert.Equal(t, float64(20), config.Gateway.RateLimit)
		assert.Equal(t, 8, config.Cache.LiveBuffer)
		assert.True(t, config.BoltDB.Enabled)
	})

	t.Run("should fail: missing file", func(t *testing.T) {
		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("should fail: malformed file", func(t *testing.T) {
		_, err := LoadConfigFile(writeTestConfig(t, "server: [unclosed"))
		assert.Error(t, err)
	})
}

// TestLoadConfigEnvs ensures environment variables override the file values.
func TestLoadConfigEnvs(t *testing.T) {
	config, err := LoadConfigFile(writeTestConfig(t, testConfigYAML))
	require.NoError(t, err)

	t.Setenv("LIBF_SERVER_PORT", "9090")
	t.Setenv("LIBF_GATEWAY_BASE_URL", "http://remote.local/api")
	t.Setenv("LIBF_CACHE_KEEP_UNUSED_FOR", "2m")
	t.Setenv("LIBF_REDIS_ENABLED", "true")

	require.NoError(t, LoadConfigEnvs("LIBF", config))
	assert.Equal(t, "9090", config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, "http://remote.local/api", config.Gateway.BaseURL)
	assert.Equal(t, 2*time.Minute, config.Cache.KeepUnusedFor)
	assert.True(t, config.Redis.Enabled)
}

// TestInitConfig ensures build values, defaults and the required settings checks.
func TestInitConfig(t *testing.T) {
	base := func() *Config {
		return &Config{Server: ServerConfig{Host: "127.0.0.1", Port: "8080"}}
	}

	t.Run("should pass: defaults applied", func(t *testing.T) {
		config := base()
		require.NoError(t, InitConfig(config, "abc123", "v1.0.0", "2023-07-02"))
		assert.Equal(t, "abc123", config.GitCommit)
		assert.Equal(t, "v1.0.0", config.GitTag)
		assert.Equal(t, "2023-07-02", config.BuildTime)
		assert.Equal(t, "http://localhost:5000/api", config.Gateway.BaseURL)
		assert.Equal(t, 10*time.Second, config.Gateway.Timeout)
		assert.Equal(t, 60*time.Second, config.Cache.KeepUnusedFor)
		assert.Equal(t, 16, config.Cache.LiveBuffer)
		assert.Equal(t, "library.invalidations", config.Redis.Channel)
		assert.Equal(t, 60*time.Second, config.Server.LongRequestWriteTimeout)
		assert.Equal(t, 0, config.Gateway.RateBurst)
	})

	t.Run("should pass: burst defaults with rate limit", func(t *testing.T) {
		config := base()
		config.Gateway.RateLimit = 5
		require.NoError(t, InitConfig(config, "", "", ""))
		assert.Equal(t, 1, config.Gateway.RateBurst)
	})

	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing port", func(c *Config) { c.Server.Port = "" }},
		{"relative base url", func(c *Config) { c.Gateway.BaseURL = "/api" }},
		{"redis without address", func(c *Config) { c.Redis.Enabled = true }},
		{"boltdb without file", func(c *Config) { c.BoltDB.Enabled = true }},
	}
	for _, tc := range testCases {
		t.Run("should fail: "+tc.name, func(t *testing.T) {
			config := base()
			tc.mutate(config)
			assert.Error(t, InitConfig(config, "", "", ""))
		})
	}
}
