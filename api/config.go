package handler

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	log "propertypackaging/internal/logging"
	"propertypackaging/internal/ratelimit"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port        string `yaml:"port"`
	Host        string `yaml:"host"`
	MetricsPort string `yaml:"metrics_port"`

	// Google Sheets and Drive
	GoogleCredentials         string `yaml:"google_credentials"`
	MarketPerformanceSheetID  string `yaml:"market_performance_sheet_id"`
	InvestmentHighlightsSheet string `yaml:"investment_highlights_sheet_id"`
	AdminSheetID              string `yaml:"admin_sheet_id"`
	SharedDriveID             string `yaml:"shared_drive_id"`
	TemplateFolderID          string `yaml:"template_folder_id"`
	PropertiesFolderID        string `yaml:"properties_folder_id"`

	// Geocoding and places
	GeoapifyAPIKey  string `yaml:"geoapify_api_key"`
	GeoapifyBaseURL string `yaml:"geoapify_base_url"`
	GeoscapeAPIKey  string `yaml:"geoscape_api_key"`
	GeoscapeBaseURL string `yaml:"geoscape_base_url"`

	// OpenAI
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`

	// GHL custom objects
	GHLBaseURL     string `yaml:"ghl_base_url"`
	GHLObjectID    string `yaml:"ghl_object_id"`
	GHLLocationID  string `yaml:"ghl_location_id"`
	GHLBearerToken string `yaml:"ghl_bearer_token"`
	GHLAPIVersion  string `yaml:"ghl_api_version"`

	// Make.com webhooks
	MakeCheckAddressURL   string `yaml:"make_webhook_check_address"`
	MakePropertySearchURL string `yaml:"make_webhook_property_search"`
	StashWebhookURL       string `yaml:"stash_webhook_url"`

	// Vercel management API
	VercelToken       string `yaml:"vercel_api_token"`
	VercelBaseURL     string `yaml:"vercel_api_base_url"`
	VercelTeamID      string `yaml:"vercel_team_id"`
	VercelProjectName string `yaml:"vercel_project_name"`

	// Proximity rate limits
	RateLimitPerHour     int `yaml:"rate_limit_per_hour"`
	RateLimitBurst5Min   int `yaml:"rate_limit_burst_5min"`
	RateLimitGlobalDaily int `yaml:"rate_limit_global_daily"`

	UsageDBPath     string        `yaml:"usage_db_path"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Logging configuration
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// LoadConfig loads configuration from the optional CONFIG_PATH file and then
// from environment variables, which take precedence.
func LoadConfig() *Config {
	config, err := loadConfigFile(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Warn("ignoring config file: ", err)
		config = &Config{}
	}
	config.applyEnv()
	return config
}

func loadConfigFile(path string) (*Config, error) {
	config := &Config{}
	if path == "" {
		return config, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return config, nil
}

func (c *Config) applyEnv() {
	limits := ratelimit.DefaultLimits()

	// Server defaults
	c.Port = getEnv("PORT", or(c.Port, "8080"))
	c.Host = getEnv("HOST", or(c.Host, "0.0.0.0"))
	c.MetricsPort = getEnv("METRICS_PORT", or(c.MetricsPort, "9090"))

	c.GoogleCredentials = getEnv("GOOGLE_SHEETS_CREDENTIALS", c.GoogleCredentials)
	c.MarketPerformanceSheetID = getEnv("GOOGLE_SHEET_ID_MARKET_PERFORMANCE", c.MarketPerformanceSheetID)
	c.InvestmentHighlightsSheet = getEnv("GOOGLE_SHEET_ID_INVESTMENT_HIGHLIGHTS", c.InvestmentHighlightsSheet)
	c.AdminSheetID = getEnv("GOOGLE_SHEET_ID_ADMIN", c.AdminSheetID)
	c.SharedDriveID = getEnv("GOOGLE_DRIVE_SHARED_DRIVE_ID", c.SharedDriveID)
	c.TemplateFolderID = getEnv("GOOGLE_DRIVE_TEMPLATE_FOLDER_ID", c.TemplateFolderID)
	c.PropertiesFolderID = getEnv("GOOGLE_DRIVE_PROPERTIES_FOLDER_ID", c.PropertiesFolderID)

	c.GeoapifyAPIKey = getEnv("GEOAPIFY_API_KEY", c.GeoapifyAPIKey)
	c.GeoapifyBaseURL = getEnv("GEOAPIFY_API_BASE_URL", c.GeoapifyBaseURL)
	c.GeoscapeAPIKey = getEnv("GEOSCAPE_API_KEY", c.GeoscapeAPIKey)
	c.GeoscapeBaseURL = getEnv("PSMA_API_ENDPOINT", c.GeoscapeBaseURL)

	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", getEnv("OPENAI_API_BASE_URL", c.OpenAIBaseURL))
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)

	c.GHLBaseURL = getEnv("GHL_BASE_URL", c.GHLBaseURL)
	c.GHLObjectID = getEnv("GHL_OBJECT_ID", c.GHLObjectID)
	c.GHLLocationID = getEnv("GHL_LOCATION_ID", c.GHLLocationID)
	c.GHLBearerToken = getEnv("GHL_BEARER_TOKEN", c.GHLBearerToken)
	c.GHLAPIVersion = getEnv("GHL_API_VERSION", c.GHLAPIVersion)

	c.MakeCheckAddressURL = getEnv("MAKE_WEBHOOK_CHECK_ADDRESS", c.MakeCheckAddressURL)
	c.MakePropertySearchURL = getEnv("MAKE_WEBHOOK_PROPERTY_SEARCH", c.MakePropertySearchURL)
	c.StashWebhookURL = getEnv("STASH_WEBHOOK_URL", c.StashWebhookURL)

	c.VercelToken = getEnv("VERCEL_API_TOKEN", c.VercelToken)
	c.VercelBaseURL = getEnv("VERCEL_API_BASE_URL", c.VercelBaseURL)
	c.VercelTeamID = getEnv("VERCEL_TEAM_ID", c.VercelTeamID)
	c.VercelProjectName = getEnv("VERCEL_PROJECT_NAME", or(c.VercelProjectName, "property-packaging"))

	c.RateLimitPerHour = getEnvAsInt("RATE_LIMIT_PER_HOUR", orInt(c.RateLimitPerHour, limits.PerHour))
	c.RateLimitBurst5Min = getEnvAsInt("RATE_LIMIT_BURST_5MIN", orInt(c.RateLimitBurst5Min, limits.Burst5Min))
	c.RateLimitGlobalDaily = getEnvAsInt("RATE_LIMIT_GLOBAL_DAILY", orInt(c.RateLimitGlobalDaily, limits.GlobalDaily))

	c.UsageDBPath = getEnv("USAGE_DB_PATH", or(c.UsageDBPath, "usage.db"))
	c.UpstreamTimeout = getEnvAsDuration("UPSTREAM_TIMEOUT", orDuration(c.UpstreamTimeout, 60*time.Second))
	c.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", orDuration(c.ShutdownTimeout, 10*time.Second))

	// Logging
	c.LogLevel = getEnv("LOG_LEVEL", or(c.LogLevel, "info"))
	c.LogFormat = getEnv("LOG_FORMAT", or(c.LogFormat, "text"))
}

func or(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func orInt(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func orDuration(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer with a fallback default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as boolean with a fallback default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return getEnvAsBool("PRODUCTION", false) || os.Getenv("GIN_MODE") == "release" || os.Getenv("VERCEL_ENV") == "production"
}

// Limits returns the proximity rate limits.
func (c *Config) Limits() ratelimit.Limits {
	return ratelimit.Limits{
		PerHour:     c.RateLimitPerHour,
		Burst5Min:   c.RateLimitBurst5Min,
		GlobalDaily: c.RateLimitGlobalDaily,
	}
}

// HasGoogleConfig returns true if service-account credentials are configured
func (c *Config) HasGoogleConfig() bool {
	return c.GoogleCredentials != ""
}

// HasDriveConfig returns true if the template and properties folders are configured
func (c *Config) HasDriveConfig() bool {
	return c.HasGoogleConfig() && c.SharedDriveID != "" && c.TemplateFolderID != "" && c.PropertiesFolderID != ""
}

func (c *Config) HasOpenAIConfig() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasGeoapifyConfig() bool {
	return c.GeoapifyAPIKey != ""
}

func (c *Config) HasGeoscapeConfig() bool {
	return c.GeoscapeAPIKey != ""
}

// HasGHLConfig returns true if the GHL object, location and token are all set
func (c *Config) HasGHLConfig() bool {
	return c.GHLObjectID != "" && c.GHLLocationID != "" && c.GHLBearerToken != ""
}

// HasMakeConfig returns true if any Make.com webhook is configured
func (c *Config) HasMakeConfig() bool {
	return c.MakeCheckAddressURL != "" || c.MakePropertySearchURL != "" || c.StashWebhookURL != ""
}

func (c *Config) HasVercelConfig() bool {
	return c.VercelToken != ""
}
