package handler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertypackaging/internal/ratelimit"
)

var configEnvKeys = []string{
	"CONFIG_PATH", "PORT", "HOST", "METRICS_PORT", "GOOGLE_SHEETS_CREDENTIALS",
	"GOOGLE_SHEET_ID_MARKET_PERFORMANCE", "GEOAPIFY_API_KEY", "OPENAI_API_KEY",
	"OPENAI_BASE_URL", "OPENAI_API_BASE_URL", "GHL_OBJECT_ID", "GHL_LOCATION_ID",
	"GHL_BEARER_TOKEN", "VERCEL_PROJECT_NAME", "RATE_LIMIT_PER_HOUR",
	"RATE_LIMIT_BURST_5MIN", "RATE_LIMIT_GLOBAL_DAILY", "USAGE_DB_PATH",
	"UPSTREAM_TIMEOUT", "SHUTDOWN_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	config := LoadConfig()
	assert.Equal(t, "8080", config.Port)
	assert.Equal(t, "0.0.0.0", config.Host)
	assert.Equal(t, "9090", config.MetricsPort)
	assert.Equal(t, "usage.db", config.UsageDBPath)
	assert.Equal(t, "property-packaging", config.VercelProjectName)
	assert.Equal(t, 60*time.Second, config.UpstreamTimeout)
	assert.Equal(t, 10*time.Second, config.ShutdownTimeout)
	assert.Equal(t, ratelimit.DefaultLimits(), config.Limits())
	assert.False(t, config.HasGoogleConfig())
	assert.False(t, config.HasOpenAIConfig())
	assert.False(t, config.HasGHLConfig())
}

func TestLoadConfigEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PORT", "3000")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_API_BASE_URL", "https://proxy.example.com/v1")
	t.Setenv("RATE_LIMIT_BURST_5MIN", "3")
	t.Setenv("RATE_LIMIT_PER_HOUR", "not-a-number")
	t.Setenv("UPSTREAM_TIMEOUT", "45")
	t.Setenv("SHUTDOWN_TIMEOUT", "2s")
	t.Setenv("GHL_OBJECT_ID", "obj")
	t.Setenv("GHL_LOCATION_ID", "loc")

	config := LoadConfig()
	assert.Equal(t, "3000", config.Port)
	assert.True(t, config.HasOpenAIConfig())
	assert.Equal(t, "https://proxy.example.com/v1", config.OpenAIBaseURL)
	assert.Equal(t, ratelimit.Limits{PerHour: 20, Burst5Min: 3, GlobalDaily: 100}, config.Limits())
	assert.Equal(t, 45*time.Second, config.UpstreamTimeout)
	assert.Equal(t, 2*time.Second, config.ShutdownTimeout)
	assert.False(t, config.HasGHLConfig(), "token missing")

	t.Setenv("OPENAI_BASE_URL", "https://api.example.com")
	assert.Equal(t, "https://api.example.com", LoadConfig().OpenAIBaseURL)
}

func TestLoadConfigFileOverlay(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7000"
geoapify_api_key: file-key
market_performance_sheet_id: sheet-1
rate_limit_global_daily: 500
upstream_timeout: 30s
log_level: debug
`), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("LOG_LEVEL", "warn")

	config := LoadConfig()
	assert.Equal(t, "7000", config.Port)
	assert.Equal(t, "file-key", config.GeoapifyAPIKey)
	assert.True(t, config.HasGeoapifyConfig())
	assert.Equal(t, "sheet-1", config.MarketPerformanceSheetID)
	assert.Equal(t, 500, config.RateLimitGlobalDaily)
	assert.Equal(t, 30*time.Second, config.UpstreamTimeout)
	assert.Equal(t, "warn", config.LogLevel, "environment wins over the file")
}

func TestLoadConfigBadFileFallsBackToEnv(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated"), 0o600))
	t.Setenv("CONFIG_PATH", path)

	config := LoadConfig()
	assert.Equal(t, "8080", config.Port)
}

func TestHasDriveConfig(t *testing.T) {
	config := &Config{GoogleCredentials: "{}", SharedDriveID: "d", TemplateFolderID: "t"}
	assert.False(t, config.HasDriveConfig())
	config.PropertiesFolderID = "p"
	assert.True(t, config.HasDriveConfig())
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("FEATURE_FLAG", "true")
	assert.True(t, getEnvAsBool("FEATURE_FLAG", false))
	t.Setenv("FEATURE_FLAG", "maybe")
	assert.False(t, getEnvAsBool("FEATURE_FLAG", false))
}
