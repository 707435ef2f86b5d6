package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/isoplanner/backend/pkg/utils"
)

// DefaultORSBaseURL is the public OpenRouteService isochrone endpoint; the
// transport mode is appended as the last path segment.
const DefaultORSBaseURL = "https://api.openrouteservice.org/v2/isochrones"

// Config holds the application configuration
type Config struct {
	Port        string
	Env         string
	Routing     RoutingConfig
	DatabaseURL string // PostgreSQL, preferred when set
	MySQLDSN    string
	Log         LogConfig
	Tracing     TracingConfig
}

// RoutingConfig configures the outbound isochrone client
type RoutingConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// LogConfig selects log level and handler format
type LogConfig struct {
	Level  string
	Format string
}

// TracingConfig governs how tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout | otlp
	Endpoint    string // used when Exporter == otlp
	SampleRatio float64
	Environment string // deployment.environment resource attribute
}

// Load reads a .env file when present and then the process environment.
// A missing .env file is not an error.
func Load(envFiles ...string) (*Config, bool) {
	loaded := godotenv.Load(envFiles...) == nil
	return FromEnv(), loaded
}

// FromEnv builds the configuration from environment variables only
func FromEnv() *Config {
	env := getEnv("GO_ENV", "development")
	return &Config{
		Port: getEnv("PORT", "8080"),
		Env:  env,
		Routing: RoutingConfig{
			APIKey:  getEnv("ORS_API_KEY", ""),
			BaseURL: strings.TrimRight(getEnv("ORS_BASE_URL", DefaultORSBaseURL), "/"),
			Timeout: getDuration("ORS_TIMEOUT", 30*time.Second),
		},
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MySQLDSN:    getEnv("MYSQL_DSN", ""),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Tracing: TracingConfig{
			Enabled:     strings.EqualFold(os.Getenv("TRACING_ENABLED"), "true"),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "isochrone-planner"),
			Exporter:    strings.ToLower(getEnv("TRACING_EXPORTER", "stdout")),
			Endpoint:    os.Getenv("OTLP_ENDPOINT"),
			SampleRatio: getRatio("TRACING_SAMPLE_RATIO", 1.0),
			Environment: env,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

func getRatio(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultValue
	}
	return utils.Clamp(parsed, 0, 1)
}
